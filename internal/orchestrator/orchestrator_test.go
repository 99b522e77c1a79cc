package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/history"
	"github.com/hpungsan/tars/internal/prompt"
)

type harness struct {
	o         *Orchestrator
	window    *fakeWindow
	clipboard *fakeClipboard
	text      *fakeText
	vision    *fakeVision
	recorder  *fakeRecorder
	logs      *observer.ObservedLogs
	stop      func()
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		window:    &fakeWindow{png: []byte{0x89, 'P', 'N', 'G'}},
		clipboard: &fakeClipboard{},
		text:      &fakeText{reply: "ok"},
		vision:    &fakeVision{reply: "seen"},
		recorder:  &fakeRecorder{},
		logs:      logs,
	}
	o, err := New(Config{
		Window:     h.window,
		Clipboard:  h.clipboard,
		Dispatcher: dispatch.New(h.text, h.vision),
		Recorder:   h.recorder,
		Settings:   settings,
		Logger:     zap.New(core),
	})
	require.NoError(t, err)
	h.o = o

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	stopped := false
	h.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.o.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func (h *harness) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var last Snapshot
	require.Eventually(t, func() bool {
		s, err := h.o.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = s
		return cond(s)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func idle(s Snapshot) bool {
	return s.State == StateIdle && s.InFlight == 0
}

func TestScenario_ClipboardQuestion(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, Settings{Model: "gemini-2.5-flash"})
	h.clipboard.set("  Hello   World  ")
	h.text.reply = "A greeting."

	h.o.ToggleClipboard()
	s := h.waitFor(t, func(s Snapshot) bool { return s.Context == "Hello World" && idle(s) })
	assert.True(t, s.Visible)
	assert.Equal(t, ModeClipboard, s.Mode)

	h.o.Submit("summarize this")
	s = h.waitFor(t, func(s Snapshot) bool { return s.Response == "A greeting." && idle(s) })
	assert.False(t, s.Loading)
	assert.Equal(t, "Hello World", s.Context)
	assert.Equal(t, "summarize this", s.Question)
	assert.Empty(t, s.Input)

	calls := h.text.callList()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].system, "Hello World")
	assert.Equal(t, "gemini-2.5-flash", calls[0].model)
	assert.Equal(t, []history.WireTurn{{Role: "user", Content: "summarize this"}}, calls[0].turns)

	turns, err := h.o.Turns(context.Background())
	require.NoError(t, err)
	want := []history.Turn{
		{Role: history.RoleUser, Content: "summarize this"},
		{Role: history.RoleAssistant, Content: "A greeting."},
	}
	if diff := cmp.Diff(want, turns); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	h.stop()
}

func TestScenario_PrefixedVisionQuestion(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("Hello World")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "Hello World" && idle(s) })

	h.o.Submit("screenshot: what is this")
	s := h.waitFor(t, func(s Snapshot) bool { return s.Response == "seen" && idle(s) })

	assert.Equal(t, []string{"what is this"}, h.vision.promptList())
	assert.Empty(t, h.text.callList())
	assert.Equal(t, 0, s.HistoryLen)
	assert.Equal(t, "screenshot: what is this", s.Question)
}

func TestScenario_DismissThenRetoggle(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("Hello World")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "Hello World" && idle(s) })

	h.o.Dismiss()
	s := h.waitFor(t, func(s Snapshot) bool { return s.Context == "" })
	assert.Equal(t, "Hello World", s.Dismissed)

	h.o.ToggleClipboard()
	require.Eventually(t, func() bool { return h.clipboard.readCount() == 2 }, time.Second, 5*time.Millisecond)
	s = h.waitFor(t, idle)
	assert.Empty(t, s.Context)
	assert.Equal(t, "Hello World", s.Dismissed)

	// Genuinely new text overrides the suppression.
	h.clipboard.set("Something else")
	h.o.ToggleClipboard()
	s = h.waitFor(t, func(s Snapshot) bool { return s.Context == "Something else" })
	assert.Empty(t, s.Dismissed)
}

func TestScenario_ScreenshotOnlyDismissKeepsSuppression(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("Hello World")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "Hello World" && idle(s) })

	h.o.Dismiss()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "" && s.Dismissed == "Hello World" })

	// Clipboard unchanged: the text is rejected and only the screenshot attaches.
	h.o.ToggleScreenshot()
	s := h.waitFor(t, func(s Snapshot) bool { return s.HasScreenshot && idle(s) })
	assert.Empty(t, s.Context)

	h.o.Dismiss()
	s = h.waitFor(t, func(s Snapshot) bool { return !s.HasScreenshot })
	assert.Equal(t, "Hello World", s.Dismissed)

	h.o.ToggleClipboard()
	require.Eventually(t, func() bool { return h.clipboard.readCount() == 3 }, time.Second, 5*time.Millisecond)
	s = h.waitFor(t, idle)
	assert.Empty(t, s.Context)
	assert.Equal(t, "Hello World", s.Dismissed)
}

func TestScreenshotToggle(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("Hello World")

	h.o.ToggleScreenshot()
	s := h.waitFor(t, func(s Snapshot) bool { return s.HasScreenshot && idle(s) })
	assert.Equal(t, ModeScreenshot, s.Mode)
	assert.Equal(t, "Hello World", s.Context)

	h.o.Submit("what is this?")
	s = h.waitFor(t, func(s Snapshot) bool { return s.Response == "seen" && idle(s) })
	assert.Equal(t, []string{"Context from clipboard: Hello World\n\nUser question: what is this?"}, h.vision.promptList())
	assert.Empty(t, h.text.callList())
	assert.Equal(t, 2, s.HistoryLen)

	// A clipboard-only toggle drops the screenshot but keeps the text.
	h.o.ToggleClipboard()
	s = h.waitFor(t, func(s Snapshot) bool { return !s.HasScreenshot && idle(s) })
	assert.Equal(t, ModeClipboard, s.Mode)
	assert.Equal(t, "Hello World", s.Context)
}

func TestCaptureFailureLeavesContext(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("A")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "A" && idle(s) })

	h.window.mu.Lock()
	h.window.captureErr = fmt.Errorf("permission denied")
	h.window.mu.Unlock()
	h.clipboard.set("B")

	h.o.ToggleScreenshot()
	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("acquisition failed").Len() == 1
	}, time.Second, 5*time.Millisecond)

	s := h.waitFor(t, idle)
	assert.Equal(t, "A", s.Context)
	assert.False(t, s.HasScreenshot)
	assert.Equal(t, ModeClipboard, s.Mode)
	assert.Equal(t, 1, h.clipboard.readCount(), "clipboard must not be read after a failed capture")

	entry := h.logs.FilterMessage("acquisition failed").All()[0]
	err, ok := entry.ContextMap()["error"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(err, string(errors.ErrCapture)))
}

func TestClipboardReadFailureIsEmpty(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("A")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "A" && idle(s) })

	h.clipboard.mu.Lock()
	h.clipboard.readErr = fmt.Errorf("clipboard empty")
	h.clipboard.mu.Unlock()

	h.o.ToggleClipboard()
	require.Eventually(t, func() bool { return h.clipboard.readCount() == 2 }, time.Second, 5*time.Millisecond)
	s := h.waitFor(t, idle)
	assert.Equal(t, "A", s.Context)
}

func TestDispatchFailure(t *testing.T) {
	h := newHarness(t, Settings{})
	h.text.reply = "first"
	h.o.Submit("q1")
	h.waitFor(t, func(s Snapshot) bool { return s.Response == "first" && idle(s) })
	require.Eventually(t, func() bool { return len(h.recorder.list()) == 1 }, time.Second, 5*time.Millisecond)

	h.text.mu.Lock()
	h.text.err = fmt.Errorf("quota exceeded")
	h.text.mu.Unlock()

	h.o.Submit("q2")
	s := h.waitFor(t, func(s Snapshot) bool { return s.LastError != "" && idle(s) })
	assert.Empty(t, s.Response)
	assert.False(t, s.Loading)
	assert.Equal(t, "q2", s.Input, "input is kept for resubmission")
	assert.Contains(t, s.LastError, string(errors.ErrModel))
	assert.Equal(t, 3, s.HistoryLen)
	assert.Len(t, h.recorder.list(), 1, "failed exchanges are not recorded")
}

func TestBlankSubmitIgnored(t *testing.T) {
	h := newHarness(t, Settings{})
	h.o.Submit("   ")
	s := h.snapshot(t)
	assert.Equal(t, StateIdle, s.State)
	assert.False(t, s.Loading)
	assert.Equal(t, 0, s.HistoryLen)
	assert.Empty(t, h.text.callList())

	h.o.Submit("analyze:")
	s = h.snapshot(t)
	assert.False(t, s.Loading)
	assert.Empty(t, h.vision.promptList())
}

func TestHideClearsLoadingAndAppliesLateResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, Settings{})
	gate := make(chan struct{})
	h.text.gate = gate
	h.text.reply = "late"

	h.o.Submit("slow question")
	s := h.waitFor(t, func(s Snapshot) bool { return s.State == StateAwaitingResponse })
	assert.True(t, s.Loading)
	assert.Equal(t, 1, s.InFlight)

	h.o.SetVisible(false)
	s = h.waitFor(t, func(s Snapshot) bool { return !s.Loading })
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, 1, s.InFlight, "request keeps running")
	assert.False(t, s.Visible)

	close(gate)
	s = h.waitFor(t, func(s Snapshot) bool { return s.Response == "late" })
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, 0, s.InFlight)

	h.stop()
}

func TestStopCancelsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t, Settings{})
	h.text.gate = make(chan struct{})

	h.o.Submit("never answered")
	h.waitFor(t, func(s Snapshot) bool { return s.InFlight == 1 })
	h.stop()

	_, err := h.o.Snapshot(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestToggleSingleFlight(t *testing.T) {
	h := newHarness(t, Settings{})
	gate := make(chan struct{})
	h.window.gate = gate
	h.clipboard.set("x")

	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.State == StateAcquiringClipboard })
	h.o.ToggleClipboard()
	h.o.ToggleClipboard()
	h.snapshot(t) // drains the queued toggles

	close(gate)
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "x" && idle(s) })
	show, _ := h.window.counts()
	assert.Equal(t, 1, show)
	assert.Equal(t, 2, h.logs.FilterMessage("toggle dropped, acquisition in flight").Len())
}

func TestCopyResponse(t *testing.T) {
	h := newHarness(t, Settings{CopiedFor: 100 * time.Millisecond})

	h.o.CopyResponse()
	h.snapshot(t)
	assert.Empty(t, h.clipboard.writes())
	assert.Equal(t, 1, h.logs.FilterMessage("copy skipped, no response").Len())

	h.text.reply = "copy me"
	h.o.Submit("q")
	h.waitFor(t, func(s Snapshot) bool { return s.Response == "copy me" })

	h.o.CopyResponse()
	h.waitFor(t, func(s Snapshot) bool { return s.Copied })
	assert.Equal(t, []string{"copy me"}, h.clipboard.writes())

	h.waitFor(t, func(s Snapshot) bool { return !s.Copied })
}

func TestCopyResponseFailure(t *testing.T) {
	h := newHarness(t, Settings{})
	h.text.reply = "copy me"
	h.o.Submit("q")
	h.waitFor(t, func(s Snapshot) bool { return s.Response == "copy me" })

	h.clipboard.mu.Lock()
	h.clipboard.writeErr = fmt.Errorf("no display")
	h.clipboard.mu.Unlock()

	h.o.CopyResponse()
	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("copy response failed").Len() == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, h.snapshot(t).Copied)
}

func TestRecorderReceivesExchange(t *testing.T) {
	h := newHarness(t, Settings{Model: "m1"})
	h.clipboard.set("ctx")
	h.o.ToggleClipboard()
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "ctx" && idle(s) })

	h.text.reply = "answer"
	h.o.Submit("question")
	require.Eventually(t, func() bool { return len(h.recorder.list()) == 1 }, time.Second, 5*time.Millisecond)

	ex := h.recorder.list()[0]
	assert.Equal(t, "question", ex.Question)
	assert.Equal(t, "answer", ex.Response)
	assert.Equal(t, "ctx", ex.Context)
	assert.Equal(t, ModeClipboard, ex.Mode)
	assert.Equal(t, "m1", ex.Model)
	assert.False(t, ex.OneShot)
	assert.False(t, ex.At.IsZero())
}

func TestRecorderFailureIsLogged(t *testing.T) {
	h := newHarness(t, Settings{})
	h.recorder.err = fmt.Errorf("disk full")

	h.o.Submit("q")
	require.Eventually(t, func() bool {
		return h.logs.FilterMessage("turn log write failed").Len() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "ok", h.snapshot(t).Response)
}

func TestSelectModel(t *testing.T) {
	h := newHarness(t, Settings{Model: "a", Models: []string{"a", "b"}})
	assert.Equal(t, "a", h.snapshot(t).Model)

	h.o.SelectModel("b")
	h.o.SelectModel("not-listed")
	s := h.snapshot(t)
	assert.Equal(t, "b", s.Model)
	assert.Equal(t, []string{"a", "b"}, s.Models)

	h.o.Submit("q")
	h.waitFor(t, func(s Snapshot) bool { return s.Response == "ok" })
	assert.Equal(t, "b", h.text.callList()[0].model)
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t, Settings{Model: "a", Models: []string{"a", "b"}})
	for i := 0; i < 3; i++ {
		h.o.Submit(fmt.Sprintf("q%d", i))
		want := i + 1
		h.waitFor(t, func(s Snapshot) bool { return s.HistoryLen == 2*want && idle(s) })
	}

	h.o.SelectModel("b")
	h.o.ApplySettings(Settings{Model: "c", Models: []string{"b", "c"}, MaxTurns: 2, Persona: "be brief."})
	s := h.snapshot(t)
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, "b", s.Model, "a still-listed selection survives reload")

	h.o.ApplySettings(Settings{Model: "c", Models: []string{"c"}, MaxTurns: 2})
	assert.Equal(t, "c", h.snapshot(t).Model)

	h.o.ApplySettings(Settings{Model: "c", Models: []string{"c"}, Persona: "be brief."})
	h.o.Submit("q")
	require.Eventually(t, func() bool { return len(h.text.callList()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, prompt.Template{Persona: "be brief."}.Build(""), h.text.callList()[3].system)
}

func TestReset(t *testing.T) {
	h := newHarness(t, Settings{})
	h.o.Submit("q")
	h.waitFor(t, func(s Snapshot) bool { return s.HistoryLen == 2 })

	h.o.Reset()
	s := h.snapshot(t)
	assert.Equal(t, 0, s.HistoryLen)
	assert.Empty(t, s.Response)
	assert.Empty(t, s.Question)
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t, Settings{})
	ch := h.o.Subscribe()

	h.clipboard.set("subscribed")
	h.o.ToggleClipboard()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Context == "subscribed" {
				h.stop()
				for range ch {
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestTrigger(t *testing.T) {
	h := newHarness(t, Settings{})
	h.clipboard.set("via hotkey")

	require.NoError(t, h.o.Trigger("clipboard"))
	h.waitFor(t, func(s Snapshot) bool { return s.Context == "via hotkey" })

	err := h.o.Trigger("paste")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestNew_RequiresCapabilities(t *testing.T) {
	d := dispatch.New(nil, nil)

	_, err := New(Config{Clipboard: &fakeClipboard{}, Dispatcher: d})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
	_, err = New(Config{Window: &fakeWindow{}, Dispatcher: d})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
	_, err = New(Config{Window: &fakeWindow{}, Clipboard: &fakeClipboard{}})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestRun_Twice(t *testing.T) {
	h := newHarness(t, Settings{})
	h.snapshot(t)
	err := h.o.Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "acquiring-clipboard", StateAcquiringClipboard.String())
	assert.Equal(t, "acquiring-screenshot", StateAcquiringScreenshot.String())
	assert.Equal(t, "awaiting-response", StateAwaitingResponse.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", State(99).String())
}
