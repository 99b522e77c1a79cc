// Package orchestrator owns the overlay's mutable state: the active and
// dismissed contexts, the conversation history, the controller state and the
// last response. All of it is mutated on the goroutine running Run; every
// other goroutine talks to the loop through events.
package orchestrator

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/ambient"
	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/history"
	"github.com/hpungsan/tars/internal/hotkey"
	"github.com/hpungsan/tars/internal/prompt"
)

const (
	eventBuffer = 64

	// DefaultCopiedFor is how long the copied indicator stays on.
	DefaultCopiedFor = 2 * time.Second

	copiedKey = "copied"
)

// WindowHost shows the overlay. ShowWindowAndCapture captures the screen
// before showing and returns PNG bytes.
type WindowHost interface {
	ShowWindow(ctx context.Context) error
	ShowWindowAndCapture(ctx context.Context) ([]byte, error)
}

// Clipboard reads and writes system clipboard text.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// Exchange is a completed question and reply.
type Exchange struct {
	Question string
	Response string
	Context  string
	Mode     Mode
	Model    string
	OneShot  bool
	At       time.Time
}

// Recorder persists completed exchanges. Failures are logged and dropped.
type Recorder interface {
	Record(ctx context.Context, ex Exchange) error
}

// Settings are the reloadable knobs.
type Settings struct {
	Model     string
	Models    []string
	Persona   string
	MaxTurns  int
	CopiedFor time.Duration
}

// Config wires an Orchestrator. Window, Clipboard and Dispatcher are required.
type Config struct {
	Window     WindowHost
	Clipboard  Clipboard
	Dispatcher *dispatch.Dispatcher
	Recorder   Recorder
	Settings   Settings
	Logger     *zap.Logger
}

// Orchestrator is the single owner of context and conversation state.
type Orchestrator struct {
	window     WindowHost
	clipboard  Clipboard
	dispatcher *dispatch.Dispatcher
	recorder   Recorder
	logger     *zap.Logger

	events  chan event
	quit    chan struct{}
	started atomic.Bool
	wg      sync.WaitGroup

	flash           *ttlcache.Cache[string, struct{}]
	stopFlashEvents func()

	subMu  sync.Mutex
	subs   []chan Snapshot
	closed bool

	// Owned by the Run goroutine.
	tracker   ambient.Tracker
	history   *history.History
	state     State
	mode      Mode
	acquiring map[Mode]bool
	loading   bool
	inflight  int
	visible   bool
	question  string
	input     string
	response  string
	lastErr   string
	model     string
	models    []string
	copiedFor time.Duration
	version   uint64
}

// New creates an Orchestrator. Call Run to start processing events.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Window == nil {
		return nil, errors.NewNotConfigured("window host")
	}
	if cfg.Clipboard == nil {
		return nil, errors.NewNotConfigured("clipboard")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.NewNotConfigured("dispatcher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		window:     cfg.Window,
		clipboard:  cfg.Clipboard,
		dispatcher: cfg.Dispatcher,
		recorder:   cfg.Recorder,
		logger:     logger,
		events:     make(chan event, eventBuffer),
		quit:       make(chan struct{}),
		history:    history.New(cfg.Settings.MaxTurns),
		mode:       ModeClipboard,
		acquiring:  make(map[Mode]bool),
		copiedFor:  DefaultCopiedFor,
	}
	o.flash = ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](DefaultCopiedFor),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	o.stopFlashEvents = o.flash.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, struct{}]) {
		if reason == ttlcache.EvictionReasonExpired {
			o.post(copiedExpiredEvent{})
		}
	})
	o.applySettings(cfg.Settings)
	return o, nil
}

// Run processes events until ctx is cancelled. Capability calls still in
// flight are cancelled and awaited before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.NewInvalidRequest("orchestrator is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.flash.Start()
	}()
	defer func() {
		close(o.quit)
		cancel()
		o.flash.Stop()
		o.stopFlashEvents()
		o.wg.Wait()
		o.closeSubscribers()
	}()

	o.logger.Info("orchestrator started", zap.String("model", o.model))
	o.publish()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return nil
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

// post delivers ev to the loop unless the loop has exited.
func (o *Orchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.quit:
		return false
	}
}

// spawn runs fn off the loop. Must only be called from the loop.
func (o *Orchestrator) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// ToggleClipboard shows the window and re-reads clipboard context. Any
// retained screenshot is dropped.
func (o *Orchestrator) ToggleClipboard() { o.post(toggleEvent{mode: ModeClipboard}) }

// ToggleScreenshot captures the screen, shows the window and re-reads
// clipboard context.
func (o *Orchestrator) ToggleScreenshot() { o.post(toggleEvent{mode: ModeScreenshot}) }

// Submit dispatches input. Blank input is ignored.
func (o *Orchestrator) Submit(input string) { o.post(submitEvent{input: input}) }

// SetVisible reports a window visibility change.
func (o *Orchestrator) SetVisible(visible bool) { o.post(visibilityEvent{visible: visible}) }

// Dismiss clears the active context and suppresses its immediate return.
func (o *Orchestrator) Dismiss() { o.post(dismissEvent{}) }

// CopyResponse writes the last response to the clipboard.
func (o *Orchestrator) CopyResponse() { o.post(copyEvent{}) }

// SelectModel changes the model used for the following requests.
func (o *Orchestrator) SelectModel(model string) { o.post(selectModelEvent{model: model}) }

// Reset clears the conversation history.
func (o *Orchestrator) Reset() { o.post(resetEvent{}) }

// ApplySettings swaps in reloaded settings.
func (o *Orchestrator) ApplySettings(s Settings) { o.post(settingsEvent{settings: s}) }

// Trigger runs a hotkey action.
func (o *Orchestrator) Trigger(action hotkey.Action) error {
	h, ok := o.Handlers()[action]
	if !ok {
		return errors.NewInvalidRequest("unknown action: " + string(action))
	}
	h()
	return nil
}

// Handlers returns the hotkey handler for each action.
func (o *Orchestrator) Handlers() map[hotkey.Action]hotkey.Handler {
	return map[hotkey.Action]hotkey.Handler{
		hotkey.ActionToggleClipboard:  o.ToggleClipboard,
		hotkey.ActionToggleScreenshot: o.ToggleScreenshot,
		hotkey.ActionCopyResponse:     o.CopyResponse,
	}
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case o.events <- snapshotRequest{reply: reply}:
	case <-o.quit:
		return Snapshot{}, errors.NewCancelled("snapshot")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-o.quit:
		return Snapshot{}, errors.NewCancelled("snapshot")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Turns returns a copy of the conversation history.
func (o *Orchestrator) Turns(ctx context.Context) ([]history.Turn, error) {
	reply := make(chan []history.Turn, 1)
	select {
	case o.events <- turnsRequest{reply: reply}:
	case <-o.quit:
		return nil, errors.NewCancelled("turns")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case t := <-reply:
		return t, nil
	case <-o.quit:
		return nil, errors.NewCancelled("turns")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only miss intermediate snapshots. The channel is
// closed when Run returns.
func (o *Orchestrator) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	o.subMu.Lock()
	if o.closed {
		close(ch)
	} else {
		o.subs = append(o.subs, ch)
	}
	o.subMu.Unlock()
	o.post(refreshEvent{})
	return ch
}

func (o *Orchestrator) closeSubscribers() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.closed = true
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case toggleEvent:
		o.onToggle(ctx, ev.mode)
	case acquiredEvent:
		o.onAcquired(ev)
	case submitEvent:
		o.onSubmit(ctx, ev.input)
	case dispatchResultEvent:
		o.onDispatchResult(ctx, ev)
	case visibilityEvent:
		o.visible = ev.visible
		if !ev.visible {
			o.loading = false
		}
		o.settle()
		o.publish()
	case dismissEvent:
		if o.tracker.Dismiss() {
			o.logger.Debug("context dismissed", zap.Int("chars", len(o.tracker.Dismissed())))
		}
		o.publish()
	case copyEvent:
		o.onCopy(ctx)
	case copyResultEvent:
		if ev.err != nil {
			o.logger.Warn("copy response failed", zap.Error(ev.err))
			return
		}
		o.flash.Set(copiedKey, struct{}{}, o.copiedFor)
		o.publish()
	case copiedExpiredEvent, refreshEvent:
		o.publish()
	case selectModelEvent:
		o.onSelectModel(ev.model)
	case resetEvent:
		o.history.Reset()
		o.question = ""
		o.response = ""
		o.lastErr = ""
		o.publish()
	case settingsEvent:
		o.applySettings(ev.settings)
		o.publish()
	case snapshotRequest:
		ev.reply <- o.snapshot()
	case turnsRequest:
		ev.reply <- o.history.Turns()
	default:
		o.logger.Error("unknown event", zap.Any("event", ev))
	}
}

func (o *Orchestrator) onToggle(ctx context.Context, mode Mode) {
	if o.acquiring[mode] {
		o.logger.Debug("toggle dropped, acquisition in flight", zap.String("mode", string(mode)))
		return
	}
	o.acquiring[mode] = true
	o.settle()
	o.publish()
	o.spawn(func() {
		o.post(o.acquire(ctx, mode))
	})
}

// acquire runs the capability sequence for one toggle. It reads no loop
// state.
func (o *Orchestrator) acquire(ctx context.Context, mode Mode) acquiredEvent {
	ev := acquiredEvent{mode: mode}
	if mode == ModeScreenshot {
		png, err := o.window.ShowWindowAndCapture(ctx)
		if err != nil {
			ev.err = errors.NewCapture(err)
			return ev
		}
		ev.png = png
	} else if err := o.window.ShowWindow(ctx); err != nil {
		ev.err = errors.NewClipboard("show window", err)
		return ev
	}

	text, err := o.clipboard.ReadText(ctx)
	if err != nil {
		ev.readErr = errors.NewClipboard("read", err)
		return ev
	}
	ev.text = text
	return ev
}

func (o *Orchestrator) onAcquired(ev acquiredEvent) {
	o.acquiring[ev.mode] = false
	defer func() {
		o.settle()
		o.publish()
	}()

	if ev.err != nil {
		o.logger.Warn("acquisition failed", zap.String("mode", string(ev.mode)), zap.Error(ev.err))
		return
	}

	o.visible = true
	o.mode = ev.mode
	if ev.mode == ModeScreenshot {
		o.tracker.AttachScreenshot(ev.png)
	} else {
		o.tracker.DiscardScreenshot()
	}

	if ev.readErr != nil {
		o.logger.Info("clipboard unreadable, no ambient text", zap.Error(ev.readErr))
	}
	d := o.tracker.Acquire(ev.text)
	if d.Accepted {
		o.logger.Debug("context accepted", zap.String("mode", string(ev.mode)), zap.Int("chars", len(d.Context)))
	} else {
		o.logger.Debug("context rejected", zap.String("mode", string(ev.mode)), zap.Stringer("reason", d.Reason))
	}
}

func (o *Orchestrator) onSubmit(ctx context.Context, input string) {
	var (
		env dispatch.Envelope
		err error
	)
	route, text := prompt.ParseInput(input)
	if route == prompt.RouteVision {
		env, err = o.dispatcher.PrepareVision(text, o.model)
	} else {
		env, err = o.dispatcher.Prepare(o.history, o.tracker.Active(), input, o.model, o.mode)
	}
	if err != nil {
		o.logger.Debug("submit ignored", zap.Error(err))
		return
	}

	o.question = strings.TrimSpace(input)
	o.input = input
	o.inflight++
	o.loading = true
	o.settle()
	o.publish()

	o.spawn(func() {
		text, err := o.dispatcher.Invoke(ctx, env)
		o.post(dispatchResultEvent{env: env, text: text, err: err})
	})
}

func (o *Orchestrator) onDispatchResult(ctx context.Context, ev dispatchResultEvent) {
	o.inflight--
	text, err := dispatch.Complete(o.history, ev.env, ev.text, ev.err)
	if o.inflight == 0 {
		o.loading = false
	}

	if err != nil {
		o.logger.Warn("dispatch failed",
			zap.String("kind", ev.env.Kind.String()),
			zap.String("model", ev.env.Model),
			zap.Error(err))
		o.response = ""
		o.lastErr = err.Error()
		o.state = StateError
		o.publish()
	} else {
		o.response = text
		o.lastErr = ""
		o.input = ""
		o.record(ctx, ev.env, text)
	}

	o.settle()
	o.publish()
}

func (o *Orchestrator) record(ctx context.Context, env dispatch.Envelope, response string) {
	if o.recorder == nil {
		return
	}
	ex := Exchange{
		Question: env.Question,
		Response: response,
		Context:  string(env.Context),
		Mode:     env.Mode,
		Model:    env.Model,
		OneShot:  env.OneShot,
		At:       time.Now(),
	}
	o.spawn(func() {
		if err := o.recorder.Record(ctx, ex); err != nil {
			o.logger.Warn("turn log write failed", zap.Error(err))
		}
	})
}

func (o *Orchestrator) onCopy(ctx context.Context) {
	if o.response == "" {
		o.logger.Info("copy skipped, no response")
		return
	}
	text := o.response
	o.spawn(func() {
		var ev copyResultEvent
		if err := o.clipboard.WriteText(ctx, text); err != nil {
			ev.err = errors.NewClipboard("write", err)
		}
		o.post(ev)
	})
}

func (o *Orchestrator) onSelectModel(model string) {
	model = strings.TrimSpace(model)
	if model == "" {
		return
	}
	if len(o.models) > 0 && !slices.Contains(o.models, model) {
		o.logger.Warn("unknown model ignored", zap.String("model", model))
		return
	}
	o.model = model
	o.logger.Info("model selected", zap.String("model", model))
	o.publish()
}

func (o *Orchestrator) applySettings(s Settings) {
	o.models = slices.Clone(s.Models)
	if s.Model != "" && (o.model == "" || !slices.Contains(o.models, o.model)) {
		o.model = s.Model
	}
	o.dispatcher.SetTemplate(prompt.Template{Persona: s.Persona})
	o.history.SetMaxTurns(s.MaxTurns)
	if s.CopiedFor > 0 {
		o.copiedFor = s.CopiedFor
	}
}

// settle derives the resting state from the loading cell and the
// acquisitions in flight.
func (o *Orchestrator) settle() {
	switch {
	case o.loading:
		o.state = StateAwaitingResponse
	case o.acquiring[ModeScreenshot]:
		o.state = StateAcquiringScreenshot
	case o.acquiring[ModeClipboard]:
		o.state = StateAcquiringClipboard
	default:
		o.state = StateIdle
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	active := o.tracker.Active()
	return Snapshot{
		Version:       o.version,
		State:         o.state,
		Mode:          o.mode,
		Loading:       o.loading,
		InFlight:      o.inflight,
		Visible:       o.visible,
		Question:      o.question,
		Input:         o.input,
		Response:      o.response,
		Context:       string(active.Text),
		HasScreenshot: active.HasScreenshot(),
		Dismissed:     string(o.tracker.Dismissed()),
		Copied:        o.flash.Has(copiedKey),
		LastError:     o.lastErr,
		Model:         o.model,
		Models:        slices.Clone(o.models),
		HistoryLen:    o.history.Len(),
	}
}

func (o *Orchestrator) publish() {
	o.version++
	s := o.snapshot()

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
