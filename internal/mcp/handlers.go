package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/ops"
	"github.com/hpungsan/tars/internal/trigger"
)

// overlayTimeout bounds a round trip to the running overlay.
const overlayTimeout = 5 * time.Second

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	socket string
}

// NewHandlers creates a new Handlers instance. socket is the overlay's
// trigger socket path.
func NewHandlers(db *sql.DB, cfg *config.Config, socket string) *Handlers {
	return &Handlers{db: db, cfg: cfg, socket: socket}
}

// Request types for each tool

// FetchRequest represents the arguments for turn_fetch.
type FetchRequest struct {
	ID             string `json:"id"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ListRequest represents the arguments for turn_list.
type ListRequest struct {
	SessionID      *string `json:"session_id,omitempty"`
	Mode           *string `json:"mode,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	Offset         int     `json:"offset,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// LatestRequest represents the arguments for turn_latest.
type LatestRequest struct {
	SessionID       *string `json:"session_id,omitempty"`
	Mode            *string `json:"mode,omitempty"`
	IncludeResponse *bool   `json:"include_response,omitempty"`
	IncludeDeleted  bool    `json:"include_deleted,omitempty"`
}

// SearchRequest represents the arguments for turn_search.
type SearchRequest struct {
	Query          string  `json:"query"`
	SessionID      *string `json:"session_id,omitempty"`
	Mode           *string `json:"mode,omitempty"`
	Limit          int     `json:"limit,omitempty"`
	Offset         int     `json:"offset,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// DeleteRequest represents the arguments for turn_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// ExportRequest represents the arguments for turn_export.
type ExportRequest struct {
	Path           string  `json:"path,omitempty"`
	SessionID      *string `json:"session_id,omitempty"`
	Mode           *string `json:"mode,omitempty"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// ImportRequest represents the arguments for turn_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// PurgeRequest represents the arguments for turn_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// OverlayTriggerRequest represents the arguments for overlay_trigger.
type OverlayTriggerRequest struct {
	Action string `json:"action"`
}

// Handler implementations

// HandleFetch handles the turn_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:             input.ID,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the turn_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		SessionID:      input.SessionID,
		Mode:           input.Mode,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLatest handles the turn_latest tool call.
func (h *Handlers) HandleLatest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LatestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Latest(ctx, h.db, ops.LatestInput{
		SessionID:       input.SessionID,
		Mode:            input.Mode,
		IncludeResponse: input.IncludeResponse,
		IncludeDeleted:  input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the turn_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Search(ctx, h.db, ops.SearchInput{
		Query:          input.Query,
		SessionID:      input.SessionID,
		Mode:           input.Mode,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the turn_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the turn_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:           input.Path,
		SessionID:      input.SessionID,
		Mode:           input.Mode,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the turn_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePurge handles the turn_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleOverlayState handles the overlay_state tool call.
func (h *Handlers) HandleOverlayState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := decodeStrict[struct{}](req); err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	resp, err := h.sendOverlay(ctx, trigger.ActionState)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(resp.State)
}

// HandleOverlayTrigger handles the overlay_trigger tool call.
func (h *Handlers) HandleOverlayTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeStrict[OverlayTriggerRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	input.Action = strings.ToLower(strings.TrimSpace(input.Action))
	switch input.Action {
	case "clipboard", "screenshot", "copy", trigger.ActionDismiss, trigger.ActionHide:
	default:
		return errorResult(errors.NewInvalidRequest("action must be one of: clipboard, screenshot, copy, dismiss, hide")), nil
	}

	if _, err := h.sendOverlay(ctx, input.Action); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"ok": true, "action": input.Action})
}

func (h *Handlers) sendOverlay(ctx context.Context, action string) (*trigger.Response, error) {
	if h.socket == "" {
		return nil, errors.NewNotConfigured("trigger socket")
	}
	ctx, cancel := context.WithTimeout(ctx, overlayTimeout)
	defer cancel()

	resp, err := trigger.Send(ctx, h.socket, trigger.Request{Action: action})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var tErr *errors.TarsError
	if stderrors.As(err, &tErr) {
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": wrappedMessage(err, tErr),
			"status":  tErr.Status,
		}
		// Details may carry file paths; never for INTERNAL errors.
		if tErr.Code != errors.ErrInternal && tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// wrappedMessage keeps any fmt.Errorf context around a TarsError, minus the
// "CODE: " prefix of the inner error.
func wrappedMessage(err error, tErr *errors.TarsError) string {
	if err == error(tErr) || tErr.Code == errors.ErrInternal {
		return tErr.Message
	}
	full := err.Error()
	inner := tErr.Error()
	if len(full) > len(inner) && full[len(full)-len(inner):] == inner {
		return full[:len(full)-len(inner)] + tErr.Message
	}
	return tErr.Message
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
