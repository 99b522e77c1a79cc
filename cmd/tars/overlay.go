package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/tars/internal/capture"
	"github.com/hpungsan/tars/internal/clipboard"
	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/gemini"
	"github.com/hpungsan/tars/internal/hotkey"
	"github.com/hpungsan/tars/internal/orchestrator"
	"github.com/hpungsan/tars/internal/prompt"
	"github.com/hpungsan/tars/internal/trigger"
	"github.com/hpungsan/tars/internal/tui"
)

// settingsFrom maps the reloadable part of the config onto the orchestrator.
func settingsFrom(cfg *config.Config) orchestrator.Settings {
	return orchestrator.Settings{
		Model:     cfg.Model,
		Models:    cfg.Models,
		Persona:   cfg.Persona,
		MaxTurns:  cfg.HistoryMaxTurns,
		CopiedFor: cfg.CopiedFlash(),
	}
}

func hotkeyCombos(cfg *config.Config) map[hotkey.Action]string {
	return map[hotkey.Action]string{
		hotkey.ActionToggleClipboard:  cfg.Hotkeys.Clipboard,
		hotkey.ActionToggleScreenshot: cfg.Hotkeys.Screenshot,
		hotkey.ActionCopyResponse:     cfg.Hotkeys.Copy,
	}
}

// runOverlay wires the capabilities into an orchestrator and runs it next to
// the terminal overlay, the trigger socket and the config watcher. It returns
// when the overlay exits or ctx is cancelled.
func runOverlay(ctx context.Context, env *appEnv) error {
	cfg, logger := env.cfg, env.logger
	for _, w := range cfg.Validate() {
		logger.Warn("config", zap.String("warning", w))
	}

	var (
		hostCapturer   tui.Capturer
		visionCapturer gemini.Capturer
	)
	if cmd, err := capture.New(cfg.CaptureCommand); err == nil {
		hostCapturer, visionCapturer = cmd, cmd
	} else {
		logger.Info("screen capture disabled", zap.Error(err))
	}

	text, vision, err := env.models(ctx, cfg, visionCapturer)
	if err != nil {
		// The overlay still runs; every dispatch reports NOT_CONFIGURED.
		logger.Warn("model client unavailable", zap.Error(err))
	}

	board, err := clipboard.New()
	if err != nil {
		return err
	}

	var recorder orchestrator.Recorder
	if cfg.RecordTurns {
		database, err := env.database(ctx)
		if err != nil {
			return err
		}
		recorder = newTurnRecorder(database)
	}

	host := tui.NewHost(hostCapturer)
	orch, err := orchestrator.New(orchestrator.Config{
		Window:    host,
		Clipboard: board,
		Dispatcher: dispatch.New(text, vision,
			dispatch.WithTemplate(prompt.Template{Persona: cfg.Persona}),
			dispatch.WithLogger(logger.Named("dispatch"))),
		Recorder: recorder,
		Settings: settingsFrom(cfg),
		Logger:   logger.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	keys := hotkey.NewRegistry()
	n := hotkey.RegisterAll(keys, hotkeyCombos(cfg), orch.Handlers(), logger)
	logger.Info("hotkeys registered", zap.Int("count", n))

	trig, err := trigger.Listen(env.socketPath(), orch, logger.Named("trigger"))
	if err != nil {
		return err
	}
	defer trig.Close()

	watcher, err := config.NewWatcher(env.baseDir, func(c *config.Config) {
		config.ApplyEnv(c, env.getenv)
		orch.ApplySettings(settingsFrom(c))
	}, logger.Named("config"))
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
	}

	model := tui.NewModel(tui.Options{
		Controller: orch,
		Hotkeys:    keys,
		Updates:    orch.Subscribe(),
		Logger:     logger.Named("tui"),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return trig.Serve(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		if err := tui.Run(gctx, model, host); err != nil {
			return fmt.Errorf("overlay: %w", err)
		}
		return nil
	})

	return g.Wait()
}
