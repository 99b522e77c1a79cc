package ops

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func newPagination(limit, offset, n, total int) Pagination {
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+n < total,
		Total:   total,
	}
}

// clampLimit applies the default and maximum page size.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// buildFilters validates the optional session and mode filters.
func buildFilters(sessionID, mode *string) (db.Filters, error) {
	var f db.Filters
	f.SessionID = cleanOptionalString(sessionID)
	f.Mode = cleanOptionalString(mode)
	if f.Mode != nil && !turn.ValidMode(*f.Mode) {
		return f, errors.NewInvalidRequest("mode must be one of: clipboard, screenshot")
	}
	return f, nil
}

// cleanOptionalString trims s and drops it when blank.
func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// generateULID returns a new time-ordered ULID.
func generateULID(at time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
