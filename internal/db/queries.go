package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// MaxSearchQueryChars bounds a search query.
const MaxSearchQueryChars = 500

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.TarsError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Filters narrows list, latest, search and export queries.
type Filters struct {
	SessionID *string
	Mode      *string
}

const turnColumns = `id, session_id, question, response, context, mode, model,
	one_shot, response_chars, created_at, deleted_at`

// Insert stores a new turn.
func Insert(ctx context.Context, ex Execer, t *turn.Turn) error {
	query := `
		INSERT INTO turns (` + turnColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query, turnArgs(t)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// Replace inserts t or overwrites the existing row with the same id.
func Replace(ctx context.Context, ex Execer, t *turn.Turn) error {
	query := `
		INSERT INTO turns (` + turnColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			question = excluded.question,
			response = excluded.response,
			context = excluded.context,
			mode = excluded.mode,
			model = excluded.model,
			one_shot = excluded.one_shot,
			response_chars = excluded.response_chars,
			created_at = excluded.created_at,
			deleted_at = excluded.deleted_at
	`
	if _, err := ex.ExecContext(ctx, query, turnArgs(t)...); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func turnArgs(t *turn.Turn) []any {
	var deletedAt sql.NullInt64
	if t.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *t.DeletedAt, Valid: true}
	}
	return []any{
		t.ID, t.SessionID, t.Question, t.Response, toNullString(t.Context),
		t.Mode, toNullString(t.Model), t.OneShot, t.ResponseChars,
		t.CreatedAt, deletedAt,
	}
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both "UNIQUE constraint failed" and PRIMARY KEY violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a turn by its ULID.
// If includeDeleted is false, soft-deleted turns are excluded.
func GetByID(ctx context.Context, q Querier, id string, includeDeleted bool) (*turn.Turn, error) {
	query := `SELECT ` + turnColumns + ` FROM turns WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	t, err := scanTurn(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// Exists reports whether a turn with id exists, deleted or not.
func Exists(ctx context.Context, q Querier, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// SoftDelete marks a turn as deleted by setting deleted_at.
func SoftDelete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE turns SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// List returns turn summaries newest first, plus the unpaginated total.
func List(ctx context.Context, db *sql.DB, f Filters, limit, offset int, includeDeleted bool) ([]turn.Summary, int, error) {
	where, args := buildWhere(f, includeDeleted)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + turnColumns + ` FROM turns` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []turn.Summary
	for rows.Next() {
		t, err := ScanRows(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, t.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return summaries, total, nil
}

// GetLatest returns the most recent turn matching f, or nil if there is none.
func GetLatest(ctx context.Context, db *sql.DB, f Filters, includeDeleted bool) (*turn.Turn, error) {
	where, args := buildWhere(f, includeDeleted)
	query := `SELECT ` + turnColumns + ` FROM turns` + where +
		` ORDER BY created_at DESC, id DESC LIMIT 1`

	t, err := scanTurn(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// Search finds turns whose question, response or context contains query
// (case-insensitive for ASCII), newest first.
func Search(ctx context.Context, db *sql.DB, query string, f Filters, limit, offset int, includeDeleted bool) ([]*turn.Turn, int, error) {
	where, args := buildWhere(f, includeDeleted)
	pattern := "%" + escapeLike(query) + "%"
	match := `(question LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\' OR context LIKE ? ESCAPE '\')`
	if where == "" {
		where = " WHERE " + match
	} else {
		where += " AND " + match
	}
	args = append(args, pattern, pattern, pattern)

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	sqlQuery := `SELECT ` + turnColumns + ` FROM turns` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, sqlQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var turns []*turn.Turn
	for rows.Next() {
		t, err := ScanRows(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return turns, total, nil
}

// StreamForExport returns rows for all matching turns, oldest first.
// The caller must close the rows and scan them with ScanRows.
func StreamForExport(ctx context.Context, db *sql.DB, f Filters, includeDeleted bool) (*sql.Rows, error) {
	where, args := buildWhere(f, includeDeleted)
	query := `SELECT ` + turnColumns + ` FROM turns` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// PurgeDeleted permanently removes soft-deleted turns. With olderThanDays set,
// only turns deleted before now minus that many days are removed.
func PurgeDeleted(ctx context.Context, db *sql.DB, olderThanDays *int) (int, error) {
	query := "DELETE FROM turns WHERE deleted_at IS NOT NULL"
	var args []any
	if olderThanDays != nil {
		cutoff := time.Now().Add(-time.Duration(*olderThanDays) * 24 * time.Hour).Unix()
		query += " AND deleted_at < ?"
		args = append(args, cutoff)
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

func buildWhere(f Filters, includeDeleted bool) (string, []any) {
	var conds []string
	var args []any
	if !includeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.SessionID != nil {
		conds = append(conds, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.Mode != nil {
		conds = append(conds, "mode = ?")
		args = append(args, *f.Mode)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

// ScanRows scans the current row of a turn query.
func ScanRows(rows *sql.Rows) (*turn.Turn, error) {
	return scanTurn(rows)
}

// scanTurn scans a single row into a Turn.
func scanTurn(row scanner) (*turn.Turn, error) {
	var (
		t         turn.Turn
		ctxText   sql.NullString
		model     sql.NullString
		deletedAt sql.NullInt64
	)

	err := row.Scan(
		&t.ID, &t.SessionID, &t.Question, &t.Response, &ctxText, &t.Mode, &model,
		&t.OneShot, &t.ResponseChars, &t.CreatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Context = fromNullString(ctxText)
	t.Model = fromNullString(model)
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Int64
	}
	return &t, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
