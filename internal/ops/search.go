package ops

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// Search limits
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryLength     = db.MaxSearchQueryChars
	MaxSnippetChars    = 300

	// snippetRadius is the number of runes kept on each side of a match.
	snippetRadius = 80
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query          string  // required
	SessionID      *string // optional filter
	Mode           *string // optional filter
	Limit          int     // default: 20, max: 100
	Offset         int     // default: 0
	IncludeDeleted bool
}

// SearchResultItem wraps a turn summary with a match snippet.
type SearchResultItem struct {
	turn.Summary
	// Field is where the first match was found: question, response or context.
	Field string `json:"field"`
	// Snippet is HTML-safe: turn content is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// Search finds turns whose question, response or context contains the query.
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	filters, err := buildFilters(input.SessionID, input.Mode)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit)
	offset := max(input.Offset, 0)

	turns, total, err := db.Search(ctx, database, query, filters, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, len(turns))
	for i, t := range turns {
		field, snippet := matchSnippet(t, query)
		items[i] = SearchResultItem{
			Summary: t.ToSummary(),
			Field:   field,
			Snippet: truncateSnippet(snippet, MaxSnippetChars),
		}
	}

	return &SearchOutput{
		Items:      items,
		Pagination: newPagination(limit, offset, len(items), total),
		Sort:       "created_at_desc",
	}, nil
}

// matchSnippet locates the first match in question, response, then context
// and returns the field name with an escaped, highlighted excerpt.
func matchSnippet(t *turn.Turn, query string) (string, string) {
	fields := []struct {
		name string
		text string
	}{
		{"question", t.Question},
		{"response", t.Response},
	}
	if t.Context != nil {
		fields = append(fields, struct {
			name string
			text string
		}{"context", *t.Context})
	}

	for _, f := range fields {
		if start := indexFold(f.text, query); start >= 0 {
			return f.name, highlight(f.text, start, start+len(query))
		}
	}
	// The database matched case-insensitively in a way Go folding did not.
	return "question", html.EscapeString(turn.Preview(t.Question, snippetRadius*2))
}

// indexFold returns the byte offset of the first case-insensitive match of
// sub in s, or -1. Matches start on rune boundaries and span len(sub) bytes.
func indexFold(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if strings.EqualFold(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}

// highlight cuts a window of snippetRadius runes around s[start:end],
// escapes it and wraps the match in <b> tags.
func highlight(s string, start, end int) string {
	before := []rune(s[:start])
	after := []rune(s[end:])

	prefix := ""
	if len(before) > snippetRadius {
		before = before[len(before)-snippetRadius:]
		prefix = "..."
	}
	suffix := ""
	if len(after) > snippetRadius {
		after = after[:snippetRadius]
		suffix = "..."
	}

	return prefix +
		html.EscapeString(collapse(string(before))) +
		"<b>" + html.EscapeString(s[start:end]) + "</b>" +
		html.EscapeString(collapse(string(after))) +
		suffix
}

// collapse turns newlines and tabs into spaces so snippets stay on one line.
func collapse(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}

	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// Trim any partial tag or entity suffix. Only <b> and </b> tags are
	// present; escaped content may contain entities such as &lt;.
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	unclosed := strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>")
	for range unclosed {
		truncated += "</b>"
	}

	return truncated + "..."
}
