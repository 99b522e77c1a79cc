package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hpungsan/tars/internal/errors"
)

// Capturer takes a PNG screenshot.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Host is the orchestrator's window: the terminal program running the
// overlay. It is usable before the program starts; show requests made
// earlier are dropped.
type Host struct {
	capturer Capturer

	mu   sync.Mutex
	send func(tea.Msg)
}

// NewHost creates a Host. A nil capturer makes screenshot toggles fail.
func NewHost(c Capturer) *Host {
	return &Host{capturer: c}
}

func (h *Host) attach(send func(tea.Msg)) {
	h.mu.Lock()
	h.send = send
	h.mu.Unlock()
}

func (h *Host) show(mode string) {
	h.mu.Lock()
	send := h.send
	h.mu.Unlock()
	if send != nil {
		send(shownMsg{mode: mode})
	}
}

// ShowWindow brings the overlay forward.
func (h *Host) ShowWindow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.show("clipboard")
	return nil
}

// ShowWindowAndCapture grabs the screen first so the overlay is not in the
// shot, then shows it.
func (h *Host) ShowWindowAndCapture(ctx context.Context) ([]byte, error) {
	if h.capturer == nil {
		return nil, errors.NewNotConfigured("capture_command")
	}
	png, err := h.capturer.Capture(ctx)
	if err != nil {
		return nil, err
	}
	h.show("screenshot")
	return png, nil
}
