package ops

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

func writeExportFile(t *testing.T, path string, lines ...any) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	defer file.Close()

	for _, l := range lines {
		var data []byte
		if s, ok := l.(string); ok {
			data = []byte(s)
		} else if data, err = json.Marshal(l); err != nil {
			t.Fatalf("Failed to marshal: %v", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			t.Fatalf("Failed to write: %v", err)
		}
	}
}

func exportRecord(id, question string) turn.ExportRecord {
	return turn.ExportRecord{
		ID:        id,
		SessionID: "s",
		Question:  question,
		Response:  "answer to " + question,
		Mode:      turn.ModeClipboard,
		CreatedAt: 1700000000,
	}
}

var testHeader = turn.ExportRecord{TarsExport: true, SchemaVersion: turn.ExportSchemaVersion, ExportedAt: 1}

func TestImport_HappyPath_ModeError(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "in.jsonl")
	writeExportFile(t, path, testHeader, exportRecord("01IMP001", "one"), exportRecord("01IMP002", "two"))

	out, err := Import(ctx, database, exportConfig(dir), ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 2 || out.Skipped != 0 || len(out.Errors) != 0 {
		t.Errorf("output = %+v", out)
	}

	got, err := Fetch(ctx, database, FetchInput{ID: "01IMP002"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.ResponseChars != turn.CountChars("answer to two") {
		t.Errorf("ResponseChars = %d, want recomputed", got.ResponseChars)
	}
}

func TestImport_ModeError_RollsBackOnIDCollision(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	existing := recordTurn(t, database, "existing", "r", 0)

	path := filepath.Join(dir, "in.jsonl")
	writeExportFile(t, path, exportRecord("01IMP001", "new"), exportRecord(existing.ID, "clash"))

	out, err := Import(ctx, database, exportConfig(dir), ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 0 || len(out.Errors) != 1 || out.Errors[0].Code != "ID_COLLISION" {
		t.Fatalf("output = %+v", out)
	}
	if out.Errors[0].Line != 2 {
		t.Errorf("Line = %d, want 2", out.Errors[0].Line)
	}

	if _, err := Fetch(ctx, database, FetchInput{ID: "01IMP001"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("first record should be rolled back, got: %v", err)
	}
}

func TestImport_ModeError_StopsOnMalformedLine(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "in.jsonl")
	writeExportFile(t, path, exportRecord("01IMP001", "ok"), "{not json")

	out, err := Import(ctx, database, exportConfig(dir), ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 0 || len(out.Errors) != 1 || out.Errors[0].Code != "PARSE_ERROR" {
		t.Errorf("output = %+v", out)
	}
}

func TestImport_ModeReplace(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	existing := recordTurn(t, database, "existing", "old response", 0)

	replacement := exportRecord(existing.ID, "existing")
	replacement.Response = "new response"
	bad := exportRecord("01IMP009", "bad mode")
	bad.Mode = "voice"

	path := filepath.Join(dir, "in.jsonl")
	writeExportFile(t, path, replacement, bad, exportRecord("01IMP002", "fresh"))

	out, err := Import(ctx, database, exportConfig(dir), ImportInput{Path: path, Mode: ImportModeReplace})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 2 || out.Skipped != 1 {
		t.Errorf("output = %+v", out)
	}
	if len(out.Errors) != 1 || out.Errors[0].Code != "INVALID_RECORD" {
		t.Errorf("Errors = %+v", out.Errors)
	}

	got, err := Fetch(ctx, database, FetchInput{ID: existing.ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Response != "new response" {
		t.Errorf("Response = %q, want replaced", got.Response)
	}
}

func TestImport_ModeSkip(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	existing := recordTurn(t, database, "existing", "keep me", 0)

	clash := exportRecord(existing.ID, "existing")
	clash.Response = "ignored"
	path := filepath.Join(dir, "in.jsonl")
	writeExportFile(t, path, clash, exportRecord("01IMP002", "fresh"))

	out, err := Import(ctx, database, exportConfig(dir), ImportInput{Path: path, Mode: ImportModeSkip})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 1 || out.Skipped != 1 {
		t.Errorf("output = %+v", out)
	}

	got, err := Fetch(ctx, database, FetchInput{ID: existing.ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Response != "keep me" {
		t.Errorf("Response = %q, want original", got.Response)
	}
}

func TestImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	source := openTestDB(t)
	dir := t.TempDir()
	cfg := exportConfig(dir)

	a := recordTurn(t, source, "first", "one", 0)
	recordTurn(t, source, "second", "two", 1)

	path := filepath.Join(dir, "round.jsonl")
	if _, err := Export(ctx, source, cfg, ExportInput{Path: path}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	target := openTestDB(t)
	out, err := Import(ctx, target, cfg, ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 2 {
		t.Fatalf("Imported = %d, want 2", out.Imported)
	}

	orig, _ := Fetch(ctx, source, FetchInput{ID: a.ID})
	got, err := Fetch(ctx, target, FetchInput{ID: a.ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.Question != orig.Question || got.CreatedAt != orig.CreatedAt || got.SessionID != orig.SessionID {
		t.Errorf("imported = %+v, want %+v", got, orig)
	}
}

func TestImport_InputErrors(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	dir := t.TempDir()
	cfg := exportConfig(dir)

	if _, err := Import(ctx, database, cfg, ImportInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("missing path: %v", err)
	}
	if _, err := Import(ctx, database, cfg, ImportInput{Path: filepath.Join(dir, "x.jsonl"), Mode: "rename"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("bad mode: %v", err)
	}
	if _, err := Import(ctx, database, cfg, ImportInput{Path: filepath.Join(dir, "missing.jsonl")}); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("missing file: %v", err)
	}
}
