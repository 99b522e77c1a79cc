package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	baseDir  string
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	getenv   func(string) string
	logger   *zap.Logger
	debounce time.Duration
}

// NewWatcher watches baseDir for writes to the config file. onChange receives
// the reloaded config with environment overrides applied.
func NewWatcher(baseDir string, onChange func(*Config), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The directory is watched rather than the file so that editors which
	// replace the file by rename keep being noticed.
	if err := fw.Add(baseDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", baseDir, err)
	}
	return &Watcher{
		baseDir:  baseDir,
		watcher:  fw,
		onChange: onChange,
		getenv:   os.Getenv,
		logger:   logger,
		debounce: defaultDebounce,
	}, nil
}

// Run delivers reloads until ctx is cancelled, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			cfg, err := Load(w.baseDir)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
				continue
			}
			ApplyEnv(cfg, w.getenv)
			for _, warning := range cfg.Validate() {
				w.logger.Warn("config", zap.String("warning", warning))
			}
			w.logger.Info("config reloaded", zap.String("path", Path(w.baseDir)))
			w.onChange(cfg)
		}
	}
}
