package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/turn"
)

// exportsHome points TARS_HOME at a temp dir and creates its exports dir.
func exportsHome(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("TARS_HOME", base)
	dir := filepath.Join(base, "exports")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create exports dir: %v", err)
	}
	return dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestValidatePath_TurnLogInExportsDir(t *testing.T) {
	exports := exportsHome(t)
	cfg := config.DefaultConfig()
	turns := filepath.Join(exports, "turns.jsonl")

	if err := ValidatePath(turns, PathCheckWrite, cfg); err != nil {
		t.Errorf("export to %s: %v", turns, err)
	}
	if err := ValidatePath(turns, PathCheckRead, cfg); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("import of missing turns.jsonl: got %v, want FILE_NOT_FOUND", err)
	}

	touch(t, turns)
	if err := ValidatePath(turns, PathCheckRead, cfg); err != nil {
		t.Errorf("import of existing turns.jsonl: %v", err)
	}
}

func TestValidatePath_RejectsOutsideExports(t *testing.T) {
	exports := exportsHome(t)
	cfg := config.DefaultConfig()
	elsewhere := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"other dir", filepath.Join(elsewhere, "turns.jsonl")},
		{"subdirectory", filepath.Join(exports, "old", "turns.jsonl")},
		{"base dir", filepath.Join(filepath.Dir(exports), "turns.jsonl")},
		{"traversal", exports + "/../exports/turns.jsonl"},
		{"wrong extension", filepath.Join(exports, "turns.json")},
		{"no extension", filepath.Join(exports, "turns")},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
				if err := ValidatePath(tt.path, mode, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
					t.Errorf("mode %d: got %v, want INVALID_REQUEST", mode, err)
				}
			}
		})
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	exportsHome(t)
	shared := t.TempDir()
	path := filepath.Join(shared, "turns.jsonl")

	cfg := config.DefaultConfig()
	if err := ValidatePath(path, PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("before allowed_paths: got %v, want INVALID_REQUEST", err)
	}

	cfg.AllowedPaths = []string{shared}
	if err := ValidatePath(path, PathCheckWrite, cfg); err != nil {
		t.Errorf("absolute allowed_paths entry: %v", err)
	}

	// Relative entries never widen the allowlist.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	rel, err := filepath.Rel(wd, shared)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	cfg.AllowedPaths = []string{rel}
	if err := ValidatePath(path, PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("relative allowed_paths entry: got %v, want INVALID_REQUEST", err)
	}
}

func TestValidatePath_UnsafePathsSkipsAllowlistOnly(t *testing.T) {
	exportsHome(t)
	elsewhere := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	path := filepath.Join(elsewhere, "nested", "turns.jsonl")
	if err := ValidatePath(path, PathCheckWrite, cfg); err != nil {
		t.Errorf("unsafe write outside exports: %v", err)
	}
	if err := ValidatePath(filepath.Join(elsewhere, "turns.txt"), PathCheckWrite, cfg); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("unsafe mode still requires .jsonl: got %v", err)
	}
	if err := ValidatePath(path, PathCheckRead, cfg); !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("unsafe read of missing file: got %v, want FILE_NOT_FOUND", err)
	}
}

func TestValidatePath_SymlinkedTurnLog(t *testing.T) {
	exports := exportsHome(t)
	target := filepath.Join(t.TempDir(), "real.jsonl")
	touch(t, target)
	link := filepath.Join(exports, "turns.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, unsafe := range []bool{false, true} {
		cfg := config.DefaultConfig()
		cfg.AllowUnsafePaths = unsafe
		for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
			err := ValidatePath(link, mode, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) || !strings.Contains(err.Error(), "symlink") {
				t.Errorf("unsafe=%v mode=%d: got %v, want symlink rejection", unsafe, mode, err)
			}
		}
	}
}

func TestValidatePath_SymlinkedExportsDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("TARS_HOME", base)
	if err := os.Symlink(t.TempDir(), filepath.Join(base, "exports")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// A symlinked exports dir is matched by its target, so the unresolved
	// path is outside every allowed directory.
	path := filepath.Join(base, "exports", "turns.jsonl")
	if err := ValidatePath(path, PathCheckWrite, config.DefaultConfig()); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("got %v, want INVALID_REQUEST", err)
	}
}

func TestImport_ReadsOnlyValidatedPaths(t *testing.T) {
	exports := exportsHome(t)
	ctx := context.Background()
	database := openTestDB(t)
	cfg := config.DefaultConfig()

	outside := filepath.Join(t.TempDir(), "turns.jsonl")
	writeExportFile(t, outside, testHeader, exportRecord("01IMP001", "q"))
	if _, err := Import(ctx, database, cfg, ImportInput{Path: outside}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("import outside exports: got %v, want INVALID_REQUEST", err)
	}

	link := filepath.Join(exports, "turns.jsonl")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := Import(ctx, database, cfg, ImportInput{Path: link}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("import through symlink: got %v, want INVALID_REQUEST", err)
	}

	got, err := List(ctx, database, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got.Items) != 0 {
		t.Errorf("rejected imports wrote %d turns", len(got.Items))
	}
}

func TestExportImport_DefaultTurnLogPath(t *testing.T) {
	exports := exportsHome(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()
	source := openTestDB(t)
	if _, err := Record(ctx, source, RecordInput{
		SessionID: "team/alice",
		Question:  "what is this",
		Response:  "a turn",
		Mode:      turn.ModeClipboard,
		At:        time.Unix(1700000000, 0),
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	out, err := Export(ctx, source, cfg, ExportInput{SessionID: stringPtr("team/alice")})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if filepath.Dir(out.Path) != exports {
		t.Fatalf("Path = %s, want inside %s", out.Path, exports)
	}
	if !strings.HasPrefix(filepath.Base(out.Path), "session-team-alice-") {
		t.Errorf("Path = %s, want session-team-alice- prefix", out.Path)
	}

	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}

	target := openTestDB(t)
	in, err := Import(ctx, target, cfg, ImportInput{Path: out.Path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if in.Imported != 1 {
		t.Errorf("Imported = %d, want 1", in.Imported)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0b7c9a52-3e1f-4d6b-9a0e-5c2f8e1d4b3a", "0b7c9a52-3e1f-4d6b-9a0e-5c2f8e1d4b3a"},
		{"cli", "cli"},
		{"clipboard", "clipboard"},
		{"team/alice", "team-alice"},
		{"../etc", "etc"},
		{"my session", "my-session"},
		{"///", "unnamed"},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.input); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
