package turn

import (
	"strings"
	"unicode/utf8"
)

// Modes a turn can be recorded under.
const (
	ModeClipboard  = "clipboard"
	ModeScreenshot = "screenshot"
)

// QuestionPreviewChars bounds the question shown in summaries.
const QuestionPreviewChars = 120

// Turn is one recorded question/response exchange.
type Turn struct {
	// ID is a ULID, so ids sort by creation time
	ID string `json:"id"`

	// SessionID groups the turns of one overlay process (UUID)
	SessionID string `json:"session_id"`

	Question string `json:"question"`
	Response string `json:"response"`

	// Context is the ambient clipboard text attached to the question (nullable)
	Context *string `json:"context,omitempty"`

	// Mode is the mode the overlay was in: clipboard or screenshot
	Mode string `json:"mode"`

	// Model is the model id the question was sent to (nullable)
	Model *string `json:"model,omitempty"`

	// OneShot marks prefix-routed vision questions that bypass history
	OneShot bool `json:"one_shot,omitempty"`

	// ResponseChars is the response length in runes
	ResponseChars int `json:"response_chars"`

	CreatedAt int64  `json:"created_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

// ValidMode reports whether m is a recordable mode.
func ValidMode(m string) bool {
	return m == ModeClipboard || m == ModeScreenshot
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// Preview collapses whitespace and truncates s to at most max runes,
// marking a cut with an ellipsis.
func Preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
