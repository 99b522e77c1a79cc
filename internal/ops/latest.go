package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/turn"
)

// LatestInput contains parameters for the Latest operation.
type LatestInput struct {
	SessionID       *string // optional filter
	Mode            *string // optional filter
	IncludeResponse *bool   // default: false (summary only)
	IncludeDeleted  bool
}

// LatestOutput contains the result of the Latest operation.
type LatestOutput struct {
	Item *LatestItem `json:"item"` // nil if the log is empty
}

// LatestItem is the latest turn summary, with the full exchange on request.
type LatestItem struct {
	turn.Summary
	Response string  `json:"response,omitempty"`
	Context  *string `json:"context,omitempty"`
}

// Latest retrieves the most recent turn.
func Latest(ctx context.Context, database *sql.DB, input LatestInput) (*LatestOutput, error) {
	filters, err := buildFilters(input.SessionID, input.Mode)
	if err != nil {
		return nil, err
	}

	t, err := db.GetLatest(ctx, database, filters, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &LatestOutput{Item: nil}, nil
	}

	item := &LatestItem{Summary: t.ToSummary()}
	if input.IncludeResponse != nil && *input.IncludeResponse {
		item.Summary.Question = t.Question
		item.Response = t.Response
		item.Context = t.Context
	}
	return &LatestOutput{Item: item}, nil
}
