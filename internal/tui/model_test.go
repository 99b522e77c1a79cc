package tui

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/hotkey"
	"github.com/hpungsan/tars/internal/orchestrator"
)

type fakeController struct {
	mu        sync.Mutex
	submits   []string
	toggles   int
	dismisses int
	resets    int
	models    []string
	visible   []bool
}

func (f *fakeController) Submit(input string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, input)
}

func (f *fakeController) ToggleClipboard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
}

func (f *fakeController) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismisses++
}

func (f *fakeController) SelectModel(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, model)
}

func (f *fakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeController) SetVisible(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = append(f.visible, v)
}

func newTestModel(t *testing.T, opts Options) (Model, *fakeController) {
	t.Helper()
	ctrl := &fakeController{}
	opts.Controller = ctrl
	opts.Style = "notty"
	m := NewModel(opts)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestSubmitSendsInput(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})

	m = typeText(t, m, "what is this")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"what is this"}, ctrl.submits)
	// The orchestrator decides when the line clears.
	assert.Equal(t, "what is this", m.input.Value())
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})

	m = typeText(t, m, "   ")
	update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Empty(t, ctrl.submits)
}

func TestKeyBindings(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})

	assert.Equal(t, 1, ctrl.toggles)
	assert.Equal(t, 1, ctrl.dismisses)
	assert.Equal(t, 1, ctrl.resets)
}

func TestTabCyclesModels(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})
	models := []string{"flash", "lite", "pro"}

	m = update(t, m, snapshotMsg{Version: 1, Visible: true, Model: "lite", Models: models})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, snapshotMsg{Version: 2, Visible: true, Model: "pro", Models: models})
	update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	assert.Equal(t, []string{"pro", "flash"}, ctrl.models)
}

func TestTabWithoutModelListDoesNothing(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})

	m = update(t, m, snapshotMsg{Version: 1, Visible: true, Model: "flash"})
	update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	assert.Empty(t, ctrl.models)
}

func TestFocusReportsVisibility(t *testing.T) {
	m, ctrl := newTestModel(t, Options{})

	m = update(t, m, tea.BlurMsg{})
	update(t, m, tea.FocusMsg{})

	assert.Equal(t, []bool{false, true}, ctrl.visible)
}

func TestHotkeyFiresBeforeOverlayKeys(t *testing.T) {
	reg := hotkey.NewRegistry()
	fired := 0
	require.NoError(t, reg.Register("ctrl+y", hotkey.ActionToggleScreenshot, func() { fired++ }))
	require.Error(t, reg.Register("esc", hotkey.ActionToggleClipboard, func() { fired++ }))

	m, ctrl := newTestModel(t, Options{Hotkeys: reg})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, ctrl.toggles, "esc stays with the overlay")
}

func TestOverlayKeysAreReserved(t *testing.T) {
	keys := defaultKeyMap()
	bindings := []key.Binding{
		keys.Submit, keys.Clipboard, keys.NextModel, keys.Dismiss,
		keys.Reset, keys.ScrollUp, keys.ScrollDown, keys.Quit,
	}
	for _, b := range bindings {
		for _, k := range b.Keys() {
			_, reserved := hotkey.Reserved(k)
			assert.True(t, reserved, "overlay key %q can be taken by a hotkey", k)
		}
	}
}

func TestSnapshotClearsSubmittedInput(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m = typeText(t, m, "hello")
	m = update(t, m, snapshotMsg{Version: 1, Visible: true, Input: "hello", Question: "hello", Loading: true})
	m = update(t, m, snapshotMsg{Version: 2, Visible: true, Question: "hello", Response: "world"})

	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "world")
}

func TestSnapshotKeepsInputOnFailure(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m = typeText(t, m, "hello")
	m = update(t, m, snapshotMsg{Version: 1, Visible: true, Input: "hello", Loading: true})
	m = update(t, m, snapshotMsg{Version: 2, Visible: true, Input: "hello", Question: "hello", LastError: "model unavailable", State: orchestrator.StateError})

	assert.Equal(t, "hello", m.input.Value())
	view := m.View()
	assert.Contains(t, view, "model unavailable")
	assert.Contains(t, view, "request failed")
}

func TestSnapshotKeepsTextTypedDuringRequest(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m = typeText(t, m, "first")
	m = update(t, m, snapshotMsg{Version: 1, Visible: true, Input: "first", Loading: true})
	m = typeText(t, m, " and more")
	m = update(t, m, snapshotMsg{Version: 2, Visible: true, Response: "ok"})

	assert.Equal(t, "first and more", m.input.Value())
}

func TestViewIndicators(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m = update(t, m, snapshotMsg{
		Version:       1,
		Visible:       true,
		Mode:          orchestrator.ModeScreenshot,
		Model:         "flash",
		Context:       "func main() {}",
		HasScreenshot: true,
		Copied:        true,
		HistoryLen:    2,
	})
	view := m.View()

	assert.Contains(t, view, "screenshot")
	assert.Contains(t, view, "func main() {}")
	assert.Contains(t, view, "copied ✓")
	assert.Contains(t, view, "2 turns")
	assert.Contains(t, view, "flash")
}

func TestViewHidden(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m = update(t, m, snapshotMsg{Version: 3, Visible: false, Response: "secret"})

	view := m.View()
	assert.Contains(t, view, "hidden")
	assert.NotContains(t, view, "secret")
}

func TestUpdatesClosedQuits(t *testing.T) {
	ch := make(chan orchestrator.Snapshot)
	close(ch)
	m, _ := newTestModel(t, Options{Updates: ch})

	msg := waitSnapshot(ch)()
	require.IsType(t, updatesClosedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWaitSnapshotDeliversLatest(t *testing.T) {
	ch := make(chan orchestrator.Snapshot, 1)
	ch <- orchestrator.Snapshot{Version: 7}

	msg := waitSnapshot(ch)()
	assert.Equal(t, snapshotMsg{Version: 7}, msg)
}

func TestNextModel(t *testing.T) {
	models := []string{"a", "b", "c"}
	tests := []struct {
		current string
		want    string
	}{
		{"a", "b"},
		{"c", "a"},
		{"unknown", "a"},
		{"", "a"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("from %q", tt.current), func(t *testing.T) {
			assert.Equal(t, tt.want, nextModel(models, tt.current))
		})
	}
	assert.Empty(t, nextModel(nil, "a"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

type fakeCapturer struct {
	png []byte
	err error
}

func (f fakeCapturer) Capture(context.Context) ([]byte, error) { return f.png, f.err }

func TestHostShowWindowAndCapture(t *testing.T) {
	var sent []tea.Msg
	h := NewHost(fakeCapturer{png: []byte("png")})
	h.attach(func(msg tea.Msg) { sent = append(sent, msg) })

	png, err := h.ShowWindowAndCapture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)
	assert.Equal(t, []tea.Msg{shownMsg{mode: "screenshot"}}, sent)
}

func TestHostCaptureFailureDoesNotShow(t *testing.T) {
	var sent []tea.Msg
	h := NewHost(fakeCapturer{err: fmt.Errorf("no display")})
	h.attach(func(msg tea.Msg) { sent = append(sent, msg) })

	_, err := h.ShowWindowAndCapture(context.Background())
	require.Error(t, err)
	assert.Empty(t, sent)
}

func TestHostWithoutCapturer(t *testing.T) {
	_, err := NewHost(nil).ShowWindowAndCapture(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestHostShowBeforeAttach(t *testing.T) {
	assert.NoError(t, NewHost(nil).ShowWindow(context.Background()))
}
