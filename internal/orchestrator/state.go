package orchestrator

import (
	"fmt"

	"github.com/hpungsan/tars/internal/dispatch"
)

// Mode is the acquisition mode tag.
type Mode = dispatch.Mode

const (
	ModeClipboard  = dispatch.ModeClipboard
	ModeScreenshot = dispatch.ModeScreenshot
)

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateAcquiringClipboard
	StateAcquiringScreenshot
	StateAwaitingResponse
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringClipboard:
		return "acquiring-clipboard"
	case StateAcquiringScreenshot:
		return "acquiring-screenshot"
	case StateAwaitingResponse:
		return "awaiting-response"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Snapshot is an immutable copy of everything a view needs to render.
type Snapshot struct {
	Version uint64 `json:"version"`

	State State `json:"state"`
	Mode  Mode  `json:"mode"`

	// Loading is the visible loading indicator. It is independent of
	// whether a request is still in flight.
	Loading  bool `json:"loading"`
	InFlight int  `json:"in_flight"`
	Visible  bool `json:"visible"`

	Question string `json:"question,omitempty"`
	Input    string `json:"input,omitempty"`
	Response string `json:"response,omitempty"`

	Context       string `json:"context,omitempty"`
	HasScreenshot bool   `json:"has_screenshot"`
	Dismissed     string `json:"dismissed,omitempty"`

	Copied    bool   `json:"copied"`
	LastError string `json:"last_error,omitempty"`

	Model      string   `json:"model"`
	Models     []string `json:"models,omitempty"`
	HistoryLen int      `json:"history_len"`
}
