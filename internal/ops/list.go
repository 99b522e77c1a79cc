package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/turn"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	SessionID      *string // optional filter
	Mode           *string // optional filter
	Limit          int     // default: 20, max: 100
	Offset         int     // default: 0
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []turn.Summary `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"`
}

// List retrieves turn summaries, newest first, with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	filters, err := buildFilters(input.SessionID, input.Mode)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	summaries, total, err := db.List(ctx, database, filters, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []turn.Summary{}
	}

	return &ListOutput{
		Items:      summaries,
		Pagination: newPagination(limit, offset, len(summaries), total),
		Sort:       "created_at_desc",
	}, nil
}
