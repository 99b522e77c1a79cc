package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hpungsan/tars/internal/hotkey"
)

// FileName is the config file inside the base directory.
const FileName = "config.toml"

// Config holds application configuration.
type Config struct {
	// APIKey authenticates model requests. Usually supplied through
	// GOOGLE_API_KEY or TARS_API_KEY instead of the file.
	APIKey string `toml:"api_key"`

	// Model is the model id selected at startup.
	Model string `toml:"model"`

	// Models is the list offered for selection. An overlay list replaces the
	// base list.
	Models []string `toml:"models"`

	// Persona overrides the style directive of the system instruction.
	Persona string `toml:"persona"`

	// HistoryMaxTurns bounds the conversation replayed to the model.
	HistoryMaxTurns int `toml:"history_max_turns"`

	Hotkeys Hotkeys `toml:"hotkeys"`

	// CaptureCommand writes a PNG of the screen to stdout, e.g.
	// ["grim", "-"] or ["screencapture", "-x", "-t", "png", "/dev/stdout"].
	CaptureCommand []string `toml:"capture_command"`

	// RecordTurns appends every completed exchange to the turn log.
	RecordTurns bool `toml:"record_turns"`

	// CopiedFlashMillis is how long the copied indicator stays on.
	CopiedFlashMillis int `toml:"copied_flash_ms"`

	LogLevel string `toml:"log_level"`

	// LogFile defaults to <base dir>/tars.log when empty.
	LogFile string `toml:"log_file"`

	// TriggerSocket defaults to <base dir>/trigger.sock when empty.
	TriggerSocket string `toml:"trigger_socket"`

	// WebAddr is the listen address of the transcript viewer.
	WebAddr string `toml:"web_addr"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `toml:"db_max_open_conns"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `toml:"db_max_idle_conns"`

	// AllowedPaths is an allowlist of directories for import/export.
	// Paths outside <base dir>/exports need to be listed here or
	// AllowUnsafePaths must be set. Relative paths are ignored.
	AllowedPaths []string `toml:"allowed_paths"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `toml:"allow_unsafe_paths"`

	// DisabledTools lists MCP tool names to exclude from registration.
	DisabledTools []string `toml:"disabled_tools"`

	// DisabledTypes lists MCP tool groups to exclude. Known types: "turn", "overlay".
	DisabledTypes []string `toml:"disabled_types"`
}

// Hotkeys are the combos for the three overlay actions.
type Hotkeys struct {
	Clipboard  string `toml:"clipboard"`
	Screenshot string `toml:"screenshot"`
	Copy       string `toml:"copy"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: "gemini-2.5-flash",
		Models: []string{
			"gemini-2.5-flash",
			"gemini-2.5-flash-lite",
			"gemini-2.5-pro",
		},
		HistoryMaxTurns: 100,
		Hotkeys: Hotkeys{
			Clipboard:  "ctrl+u",
			Screenshot: "ctrl+y",
			Copy:       "ctrl+v",
		},
		CopiedFlashMillis: 2000,
		LogLevel:          "info",
		WebAddr:           "127.0.0.1:8765",
	}
}

// DefaultBaseDir returns ~/.tars, or $TARS_HOME when set.
func DefaultBaseDir() (string, error) {
	if dir := os.Getenv("TARS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tars"), nil
}

// Path returns the config file path inside baseDir.
func Path(baseDir string) string {
	return filepath.Join(baseDir, FileName)
}

// Load loads configuration from baseDir/config.toml.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tars.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(Path(baseDir))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables. TARS_API_KEY
// wins over GOOGLE_API_KEY.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("GOOGLE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := getenv("TARS_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := getenv("TARS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := getenv("TARS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; allowlists are merged and
// deduplicated; ordered lists are replaced.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.APIKey = pick(overlay.APIKey, base.APIKey)
	result.Model = pick(overlay.Model, base.Model)
	result.Persona = pick(overlay.Persona, base.Persona)
	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)
	result.LogFile = pick(overlay.LogFile, base.LogFile)
	result.TriggerSocket = pick(overlay.TriggerSocket, base.TriggerSocket)
	result.WebAddr = pick(overlay.WebAddr, base.WebAddr)
	result.HistoryMaxTurns = pick(overlay.HistoryMaxTurns, base.HistoryMaxTurns)
	result.CopiedFlashMillis = pick(overlay.CopiedFlashMillis, base.CopiedFlashMillis)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.Hotkeys = Hotkeys{
		Clipboard:  pick(overlay.Hotkeys.Clipboard, base.Hotkeys.Clipboard),
		Screenshot: pick(overlay.Hotkeys.Screenshot, base.Hotkeys.Screenshot),
		Copy:       pick(overlay.Hotkeys.Copy, base.Hotkeys.Copy),
	}

	// Booleans: overlay wins if true, else base
	result.RecordTurns = base.RecordTurns || overlay.RecordTurns
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Ordered lists: overlay replaces
	result.Models = slices.Clone(base.Models)
	if len(overlay.Models) > 0 {
		result.Models = slices.Clone(overlay.Models)
	}
	result.CaptureCommand = slices.Clone(base.CaptureCommand)
	if len(overlay.CaptureCommand) > 0 {
		result.CaptureCommand = slices.Clone(overlay.CaptureCommand)
	}

	// Sets: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(slices.Clone(a), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate reports settings that will be ignored or fall back to defaults.
func (c *Config) Validate() []string {
	var warnings []string
	if c.APIKey == "" {
		warnings = append(warnings, "no API key: set GOOGLE_API_KEY or api_key; model requests will fail")
	}
	if len(c.Models) > 0 && !slices.Contains(c.Models, c.Model) {
		warnings = append(warnings, fmt.Sprintf("model %q is not in models list", c.Model))
	}
	if c.HistoryMaxTurns < 0 {
		warnings = append(warnings, "history_max_turns is negative; using default")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		warnings = append(warnings, fmt.Sprintf("unknown log_level %q; using info", c.LogLevel))
	}
	if len(c.CaptureCommand) == 0 {
		warnings = append(warnings, "capture_command is empty; screenshot toggle is disabled")
	}
	for _, hk := range []struct{ name, combo string }{
		{"clipboard", c.Hotkeys.Clipboard},
		{"screenshot", c.Hotkeys.Screenshot},
		{"copy", c.Hotkeys.Copy},
	} {
		if use, ok := hotkey.Reserved(hk.combo); ok {
			warnings = append(warnings, fmt.Sprintf("hotkeys.%s %q is the overlay's %s key; it will not be bound", hk.name, hk.combo, use))
		}
	}
	return warnings
}

// CopiedFlash returns the copied indicator duration.
func (c *Config) CopiedFlash() time.Duration {
	if c.CopiedFlashMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.CopiedFlashMillis) * time.Millisecond
}

// ResolvedLogFile returns the log file path.
func (c *Config) ResolvedLogFile(baseDir string) string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(baseDir, "tars.log")
}

// ResolvedTriggerSocket returns the trigger socket path.
func (c *Config) ResolvedTriggerSocket(baseDir string) string {
	if c.TriggerSocket != "" {
		return c.TriggerSocket
	}
	return filepath.Join(baseDir, "trigger.sock")
}
