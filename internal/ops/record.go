package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// RecordInput contains parameters for the Record operation.
type RecordInput struct {
	SessionID string // required
	Question  string // required
	Response  string // required
	Context   string // optional, stored as NULL when empty
	Mode      string // clipboard or screenshot
	Model     string // optional
	OneShot   bool
	At        time.Time // default: now
}

// RecordOutput contains the result of the Record operation.
type RecordOutput struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Record appends a completed exchange to the turn log.
func Record(ctx context.Context, database *sql.DB, input RecordInput) (*RecordOutput, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, errors.NewInvalidRequest("session_id is required")
	}
	if strings.TrimSpace(input.Question) == "" {
		return nil, errors.NewInvalidRequest("question is required")
	}
	if input.Response == "" {
		return nil, errors.NewInvalidRequest("response is required")
	}
	if !turn.ValidMode(input.Mode) {
		return nil, errors.NewInvalidRequest("mode must be one of: clipboard, screenshot")
	}

	at := input.At
	if at.IsZero() {
		at = time.Now()
	}

	t := &turn.Turn{
		ID:            generateULID(at),
		SessionID:     input.SessionID,
		Question:      input.Question,
		Response:      input.Response,
		Mode:          input.Mode,
		OneShot:       input.OneShot,
		ResponseChars: turn.CountChars(input.Response),
		CreatedAt:     at.Unix(),
	}
	if input.Context != "" {
		c := input.Context
		t.Context = &c
	}
	if input.Model != "" {
		m := input.Model
		t.Model = &m
	}

	if err := db.Insert(ctx, database, t); err != nil {
		return nil, err
	}

	return &RecordOutput{ID: t.ID, CreatedAt: t.CreatedAt}, nil
}
