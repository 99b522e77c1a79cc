package orchestrator

import (
	"context"
	"sync"

	"github.com/hpungsan/tars/internal/history"
)

type fakeWindow struct {
	mu           sync.Mutex
	png          []byte
	showErr      error
	captureErr   error
	gate         chan struct{}
	showCalls    int
	captureCalls int
}

func (w *fakeWindow) wait(ctx context.Context) error {
	w.mu.Lock()
	gate := w.gate
	w.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *fakeWindow) ShowWindow(ctx context.Context) error {
	w.mu.Lock()
	w.showCalls++
	err := w.showErr
	w.mu.Unlock()
	if werr := w.wait(ctx); werr != nil {
		return werr
	}
	return err
}

func (w *fakeWindow) ShowWindowAndCapture(ctx context.Context) ([]byte, error) {
	w.mu.Lock()
	w.captureCalls++
	png, err := w.png, w.captureErr
	w.mu.Unlock()
	if werr := w.wait(ctx); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return png, nil
}

func (w *fakeWindow) counts() (show, capture int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.showCalls, w.captureCalls
}

type fakeClipboard struct {
	mu       sync.Mutex
	text     string
	readErr  error
	writeErr error
	reads    int
	written  []string
}

func (c *fakeClipboard) ReadText(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return "", c.readErr
	}
	return c.text, nil
}

func (c *fakeClipboard) WriteText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, text)
	return nil
}

func (c *fakeClipboard) set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

func (c *fakeClipboard) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *fakeClipboard) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

type textCall struct {
	model  string
	system string
	turns  []history.WireTurn
}

type fakeText struct {
	mu    sync.Mutex
	reply string
	err   error
	gate  chan struct{}
	calls []textCall
}

func (f *fakeText) GenerateText(ctx context.Context, model, system string, turns []history.WireTurn) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, textCall{model: model, system: system, turns: turns})
	reply, err, gate := f.reply, f.err, f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeText) callList() []textCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]textCall(nil), f.calls...)
}

type fakeVision struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	models  []string
}

func (f *fakeVision) GenerateVision(_ context.Context, model, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	return f.reply, f.err
}

func (f *fakeVision) promptList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeRecorder struct {
	mu        sync.Mutex
	exchanges []Exchange
	err       error
}

func (r *fakeRecorder) Record(_ context.Context, ex Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exchanges = append(r.exchanges, ex)
	return r.err
}

func (r *fakeRecorder) list() []Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exchange(nil), r.exchanges...)
}
