package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID             string // required
	IncludeDeleted bool
}

// Fetch retrieves a single turn by id.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*turn.Turn, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetByID(ctx, database, id, input.IncludeDeleted)
}
