package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// maxImportLineBytes bounds a single JSONL record.
const maxImportLineBytes = 16 << 20

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision or bad line (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite on id collision
	ImportModeSkip    ImportMode = "skip"    // keep the existing turn on id collision
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError represents a problem with one line of the import file.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type lineRecord struct {
	line   int
	record turn.ExportRecord
}

// Import loads turns from a JSONL export file.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	switch input.Mode {
	case ImportModeError, ImportModeReplace, ImportModeSkip:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.TarsError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)

	if input.Mode == ImportModeError {
		if len(parseErrors) > 0 {
			return &ImportOutput{Errors: parseErrors}, nil
		}
		return importAtomic(ctx, database, records)
	}
	return importEach(ctx, database, input.Mode, records, parseErrors)
}

// parseExportFile reads records, skipping the header line and collecting
// per-line problems.
func parseExportFile(r io.Reader) ([]lineRecord, []ImportError) {
	var records []lineRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLineBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record turn.ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if record.TarsExport {
			continue
		}

		if msg := validateRecord(&record); msg != "" {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: msg,
			})
			continue
		}

		records = append(records, lineRecord{line: lineNum, record: record})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}

func validateRecord(r *turn.ExportRecord) string {
	switch {
	case r.ID == "":
		return "missing id field"
	case r.Question == "":
		return "missing question field"
	case !turn.ValidMode(r.Mode):
		return fmt.Sprintf("invalid mode %q", r.Mode)
	}
	return ""
}

// importAtomic inserts every record in one transaction and rolls back on
// the first id collision.
func importAtomic(ctx context.Context, database *sql.DB, records []lineRecord) (*ImportOutput, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, lr := range records {
		exists, err := db.Exists(ctx, tx, lr.record.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return &ImportOutput{
				Errors: []ImportError{{
					Line:    lr.line,
					ID:      lr.record.ID,
					Code:    "ID_COLLISION",
					Message: fmt.Sprintf("turn with id %q already exists", lr.record.ID),
				}},
			}, nil
		}
		if err := db.Insert(ctx, tx, prepareImported(&lr.record)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ImportOutput{Imported: len(records), Errors: []ImportError{}}, nil
}

// importEach applies records one at a time; bad lines are reported and skipped.
func importEach(ctx context.Context, database *sql.DB, mode ImportMode, records []lineRecord, parseErrors []ImportError) (*ImportOutput, error) {
	out := &ImportOutput{
		Skipped: len(parseErrors),
		Errors:  append([]ImportError{}, parseErrors...),
	}

	for _, lr := range records {
		t := prepareImported(&lr.record)

		if mode == ImportModeReplace {
			if err := db.Replace(ctx, database, t); err != nil {
				return nil, err
			}
			out.Imported++
			continue
		}

		err := db.Insert(ctx, database, t)
		if err == db.ErrUniqueConstraint {
			out.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Imported++
	}

	return out, nil
}

// prepareImported converts a record and fills fields an older or
// hand-written export may lack.
func prepareImported(r *turn.ExportRecord) *turn.Turn {
	t := r.ToTurn()
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	if t.SessionID == "" {
		t.SessionID = "imported"
	}
	return t
}
