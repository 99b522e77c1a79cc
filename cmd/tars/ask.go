package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/ambient"
	"github.com/hpungsan/tars/internal/capture"
	"github.com/hpungsan/tars/internal/clipboard"
	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/gemini"
	"github.com/hpungsan/tars/internal/history"
	"github.com/hpungsan/tars/internal/ops"
	"github.com/hpungsan/tars/internal/prompt"
)

const (
	askTimeout = 2 * time.Minute

	// maxStdinContext caps context read from a pipe.
	maxStdinContext = 1 << 20

	cliSessionID = "cli"
)

// askOutput is the --json shape of an answered question.
type askOutput struct {
	Question     string `json:"question"`
	Response     string `json:"response"`
	Model        string `json:"model"`
	Mode         string `json:"mode"`
	OneShot      bool   `json:"one_shot"`
	ContextChars int    `json:"context_chars"`
	RecordedID   string `json:"recorded_id,omitempty"`
}

// askCmd creates the ask command.
func askCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask one question about the clipboard, piped input or the screen",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clipboard", Aliases: []string{"c"}, Usage: "Use the clipboard text as context"},
			&cli.StringFlag{Name: "context", Usage: "Use this text as context"},
			&cli.BoolFlag{Name: "screenshot", Usage: "Capture the screen and ask about it"},
			&cli.StringFlag{Name: "model", Usage: "Model id (default: model from config)"},
			&cli.BoolFlag{Name: "json", Usage: "Print the exchange as JSON"},
			&cli.BoolFlag{Name: "no-record", Usage: "Do not append the exchange to the turn log"},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := contextWithTimeout(c, askTimeout)
			defer cancel()

			out, err := ask(ctx, c, env)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, out)
			}
			_, err = fmt.Fprintln(c.App.Writer, out.Response)
			return err
		},
	}
}

func ask(ctx context.Context, c *cli.Context, env *appEnv) (*askOutput, error) {
	cfg := env.cfg
	question := strings.Join(c.Args().Slice(), " ")
	route, question := prompt.ParseInput(question)
	vision := route == prompt.RouteVision || c.Bool("screenshot")

	model := c.String("model")
	if model == "" {
		model = cfg.Model
	}

	var capturer gemini.Capturer
	if vision {
		cmd, err := capture.New(cfg.CaptureCommand)
		if err != nil && c.Bool("screenshot") {
			return nil, err
		}
		if err == nil {
			capturer = cmd
		}
	}

	text, visionModel, err := env.models(ctx, cfg, capturer)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(text, visionModel,
		dispatch.WithTemplate(prompt.Template{Persona: cfg.Persona}),
		dispatch.WithLogger(env.logger.Named("dispatch")))

	h := history.New(cfg.HistoryMaxTurns)
	var envl dispatch.Envelope
	if vision {
		envl, err = d.PrepareVision(question, model)
	} else {
		var raw string
		raw, err = askContext(ctx, c, env)
		if err != nil {
			return nil, err
		}
		active := ambient.ActiveContext{Text: ambient.Normalize(raw)}
		envl, err = d.Prepare(h, active, question, model, dispatch.ModeClipboard)
	}
	if err != nil {
		return nil, err
	}

	reply, err := d.Invoke(ctx, envl)
	if reply, err = dispatch.Complete(h, envl, reply, err); err != nil {
		return nil, err
	}

	out := &askOutput{
		Question:     envl.Question,
		Response:     reply,
		Model:        envl.Model,
		Mode:         string(envl.Mode),
		OneShot:      envl.OneShot,
		ContextChars: len([]rune(string(envl.Context))),
	}

	if cfg.RecordTurns && !c.Bool("no-record") {
		id, err := recordAsk(ctx, env, envl, reply)
		if err != nil {
			env.logger.Warn("failed to record turn", zap.Error(err))
		} else {
			out.RecordedID = id
		}
	}
	return out, nil
}

// askContext picks the context text: --context, then --clipboard, then a
// piped stdin.
func askContext(ctx context.Context, c *cli.Context, env *appEnv) (string, error) {
	if c.IsSet("context") {
		return c.String("context"), nil
	}
	if c.Bool("clipboard") {
		board, err := clipboard.New()
		if err != nil {
			return "", err
		}
		return board.ReadText(ctx)
	}
	if env.stdin != nil && !isTerminal(env.stdin) {
		data, err := io.ReadAll(io.LimitReader(env.stdin, maxStdinContext))
		if err != nil {
			return "", errors.NewInvalidRequest(fmt.Sprintf("failed to read stdin: %v", err))
		}
		return string(data), nil
	}
	return "", nil
}

func recordAsk(ctx context.Context, env *appEnv, envl dispatch.Envelope, reply string) (string, error) {
	database, err := env.database(ctx)
	if err != nil {
		return "", err
	}
	out, err := ops.Record(ctx, database, ops.RecordInput{
		SessionID: cliSessionID,
		Question:  envl.Question,
		Response:  reply,
		Context:   string(envl.Context),
		Mode:      string(envl.Mode),
		Model:     envl.Model,
		OneShot:   envl.OneShot,
	})
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// contextWithTimeout bounds a command's context.
func contextWithTimeout(c *cli.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, d)
}
