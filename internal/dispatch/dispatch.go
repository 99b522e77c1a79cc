// Package dispatch turns a submitted question into a model request and folds
// the reply back into the conversation history.
//
// A dispatch runs in three phases. Prepare and Complete touch history and
// must run on the goroutine that owns it; Invoke performs the network call and
// may run anywhere.
package dispatch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/ambient"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/history"
	"github.com/hpungsan/tars/internal/prompt"
)

// TextModel generates a reply from a system instruction and rendered turns.
type TextModel interface {
	GenerateText(ctx context.Context, model, system string, turns []history.WireTurn) (string, error)
}

// VisionModel generates a reply from a single prompt plus a fresh screen
// capture taken by the implementation.
type VisionModel interface {
	GenerateVision(ctx context.Context, model, prompt string) (string, error)
}

// Mode tags how the active context was acquired.
type Mode string

const (
	ModeClipboard  Mode = "clipboard"
	ModeScreenshot Mode = "screenshot"
)

// Kind selects the model endpoint for an envelope.
type Kind int

const (
	KindText Kind = iota
	KindVision
)

func (k Kind) String() string {
	if k == KindVision {
		return "vision"
	}
	return "text"
}

// Envelope is one fully built request. It is not retained after the call.
type Envelope struct {
	Kind     Kind
	Model    string
	Mode     Mode
	Question string
	Context  ambient.ContextString
	System   string
	Turns    []history.WireTurn
	Prompt   string

	// OneShot envelopes come from prefixed input and never touch history.
	OneShot bool
}

// Dispatcher builds envelopes and invokes the model capabilities.
type Dispatcher struct {
	text     TextModel
	vision   VisionModel
	template prompt.Template
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTemplate sets the system instruction template.
func WithTemplate(t prompt.Template) Option {
	return func(d *Dispatcher) { d.template = t }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher. Either capability may be nil, in which case
// requests needing it fail with NOT_CONFIGURED.
func New(text TextModel, vision VisionModel, opts ...Option) *Dispatcher {
	d := &Dispatcher{text: text, vision: vision, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetTemplate replaces the system instruction template.
func (d *Dispatcher) SetTemplate(t prompt.Template) {
	d.template = t
}

// Prepare validates input, appends the user turn and builds the envelope.
// With screenshot bytes attached the envelope carries the combined prompt
// and no history; otherwise it carries the system instruction and the whole
// rendered history.
func (d *Dispatcher) Prepare(h *history.History, active ambient.ActiveContext, input, model string, mode Mode) (Envelope, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return Envelope{}, errors.NewInvalidRequest("input is empty")
	}

	h.AppendUser(question)

	env := Envelope{
		Model:    model,
		Mode:     mode,
		Question: question,
		Context:  active.Text,
	}
	if active.HasScreenshot() {
		env.Kind = KindVision
		env.Prompt = prompt.CombinedPrompt(string(active.Text), question)
		return env, nil
	}

	env.Kind = KindText
	env.System = d.template.Build(string(active.Text))
	env.Turns = h.Render()
	return env, nil
}

// PrepareVision builds a one-shot vision envelope for input that was routed
// by its analyze:/screenshot: prefix. History is left alone.
func (d *Dispatcher) PrepareVision(input, model string) (Envelope, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return Envelope{}, errors.NewInvalidRequest("input is empty")
	}
	return Envelope{
		Kind:     KindVision,
		Model:    model,
		Mode:     ModeScreenshot,
		Question: question,
		Prompt:   question,
		OneShot:  true,
	}, nil
}

// Invoke sends env to the matching capability. Failures come back as
// MODEL_ERROR (or NOT_CONFIGURED when the capability is missing).
func (d *Dispatcher) Invoke(ctx context.Context, env Envelope) (string, error) {
	start := time.Now()
	var (
		text string
		err  error
	)
	switch env.Kind {
	case KindVision:
		if d.vision == nil {
			return "", errors.NewNotConfigured("vision model")
		}
		text, err = d.vision.GenerateVision(ctx, env.Model, env.Prompt)
	default:
		if d.text == nil {
			return "", errors.NewNotConfigured("text model")
		}
		text, err = d.text.GenerateText(ctx, env.Model, env.System, env.Turns)
	}

	if err != nil {
		d.logger.Warn("model invocation failed",
			zap.String("kind", env.Kind.String()),
			zap.String("model", env.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if _, ok := err.(*errors.TarsError); ok {
			return "", err
		}
		return "", errors.NewModel(env.Model, err)
	}

	d.logger.Debug("model invocation complete",
		zap.String("kind", env.Kind.String()),
		zap.String("model", env.Model),
		zap.Int("turns", len(env.Turns)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// Complete applies an invocation outcome to history: a reply becomes an
// assistant turn, a failure leaves the user turn unanswered.
func Complete(h *history.History, env Envelope, text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if !env.OneShot {
		h.AppendAssistant(text)
	}
	return text, nil
}

// Dispatch runs all three phases in the caller's goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, h *history.History, active ambient.ActiveContext, input, model string, mode Mode) (string, error) {
	env, err := d.Prepare(h, active, input, model, mode)
	if err != nil {
		return "", err
	}
	text, err := d.Invoke(ctx, env)
	return Complete(h, env, text, err)
}
