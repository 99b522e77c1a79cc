package turn

// Summary is a turn's metadata plus a question preview, without the response body.
// Used for browse operations (list, latest, search).
type Summary struct {
	ID            string  `json:"id"`
	SessionID     string  `json:"session_id"`
	Question      string  `json:"question"`
	Mode          string  `json:"mode"`
	Model         *string `json:"model,omitempty"`
	OneShot       bool    `json:"one_shot,omitempty"`
	HasContext    bool    `json:"has_context"`
	ResponseChars int     `json:"response_chars"`
	CreatedAt     int64   `json:"created_at"`
	DeletedAt     *int64  `json:"deleted_at,omitempty"`
}

// ToSummary converts a Turn to a Summary.
func (t *Turn) ToSummary() Summary {
	return Summary{
		ID:            t.ID,
		SessionID:     t.SessionID,
		Question:      Preview(t.Question, QuestionPreviewChars),
		Mode:          t.Mode,
		Model:         t.Model,
		OneShot:       t.OneShot,
		HasContext:    t.Context != nil && *t.Context != "",
		ResponseChars: t.ResponseChars,
		CreatedAt:     t.CreatedAt,
		DeletedAt:     t.DeletedAt,
	}
}
