package main

import (
	"context"
	"database/sql"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/db"
	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/gemini"
	"github.com/hpungsan/tars/internal/logging"
)

// modelFactory builds the text and vision capabilities. capturer may be nil.
type modelFactory func(ctx context.Context, cfg *config.Config, capturer gemini.Capturer) (dispatch.TextModel, dispatch.VisionModel, error)

// appEnv is what commands share: the base directory, the loaded config, the
// logger and a lazily opened database.
type appEnv struct {
	baseDir string
	cfg     *config.Config
	logger  *zap.Logger
	db      *sql.DB

	stdin  io.Reader
	getenv func(string) string
	models modelFactory
}

func newEnv() *appEnv {
	return &appEnv{
		stdin:  os.Stdin,
		getenv: os.Getenv,
		models: geminiModels,
	}
}

func geminiModels(ctx context.Context, cfg *config.Config, capturer gemini.Capturer) (dispatch.TextModel, dispatch.VisionModel, error) {
	client, err := gemini.New(ctx, cfg.APIKey, capturer)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// load resolves the base directory, config and logger unless already set.
func (e *appEnv) load() error {
	if e.baseDir == "" {
		dir, err := config.DefaultBaseDir()
		if err != nil {
			return err
		}
		e.baseDir = dir
	}
	if e.cfg == nil {
		cfg, err := config.Load(e.baseDir)
		if err != nil {
			return err
		}
		config.ApplyEnv(cfg, e.getenv)
		e.cfg = cfg
	}
	if e.logger == nil {
		logger, err := logging.New(e.cfg.LogLevel, e.cfg.ResolvedLogFile(e.baseDir))
		if err != nil {
			return err
		}
		e.logger = logger
	}
	return nil
}

// database opens the turn log on first use.
func (e *appEnv) database(ctx context.Context) (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}
	database, err := db.Init(ctx, e.baseDir)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(database, e.cfg)
	e.db = database
	return database, nil
}

func (e *appEnv) close() {
	if e.db != nil {
		e.db.Close()
		e.db = nil
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func (e *appEnv) socketPath() string {
	return e.cfg.ResolvedTriggerSocket(e.baseDir)
}
