package web

import (
	"database/sql"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/ops"
)

// Handlers contains HTTP route handlers for the transcript viewer.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /turns: the turn log, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.ListInput{
		SessionID:      ptrString(q.Get("session_id")),
		Mode:           ptrString(q.Get("mode")),
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData: PageData{
			Title:   "Turns",
			Version: h.renderer.version,
			Nav:     "turns",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		SessionID:  q.Get("session_id"),
		Mode:       q.Get("mode"),
		Deleted:    input.IncludeDeleted,
	})
}

// HandleLatest handles GET /turns/latest: redirects to the newest turn.
func (h *Handlers) HandleLatest(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Latest(r.Context(), h.db, ops.LatestInput{
		SessionID: ptrString(r.URL.Query().Get("session_id")),
		Mode:      ptrString(r.URL.Query().Get("mode")),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if result.Item == nil {
		h.renderer.renderError(w, r, errors.NewNotFound("latest turn"))
		return
	}
	http.Redirect(w, r, "/turns/"+url.PathEscape(result.Item.ID), http.StatusFound)
}

// HandleSearch handles GET /turns/search: substring search over the log.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:     query,
		SessionID: q.Get("session_id"),
		Mode:      q.Get("mode"),
		Deleted:   parseBoolParam(r, "include_deleted"),
		HasQuery:  query != "",
	}

	if query == "" {
		h.renderer.renderPage(w, "search", data)
		return
	}

	result, err := ops.Search(r.Context(), h.db, ops.SearchInput{
		Query:          query,
		SessionID:      ptrString(data.SessionID),
		Mode:           ptrString(data.Mode),
		Limit:          parseIntParam(r, "limit", ops.DefaultSearchLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: data.Deleted,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Items = result.Items
	data.Pagination = result.Pagination
	h.renderer.renderPage(w, "search", data)
}

// HandleDetail handles GET /turns/{id}: one exchange with its response
// rendered as markdown.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("turn ID is required"))
		return
	}

	t, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{
		ID:             id,
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, t)
		return
	}

	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData: PageData{
			Title:   shortID(t.ID),
			Version: h.renderer.version,
			Nav:     "turns",
		},
		Turn:         t,
		ResponseHTML: h.renderer.renderMarkdown(t.Response),
	})
}

// HandleDelete handles DELETE /turns/{id} and the POST form fallback.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("turn ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/turns", http.StatusSeeOther)
}

// HandlePurge handles POST /turns/purge: permanently delete soft-deleted turns.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/turns?include_deleted=true", http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
