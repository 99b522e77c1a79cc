package orchestrator

import (
	"github.com/hpungsan/tars/internal/dispatch"
	"github.com/hpungsan/tars/internal/history"
)

type event interface{}

type toggleEvent struct {
	mode Mode
}

type acquiredEvent struct {
	mode Mode
	png  []byte

	// err aborts the acquisition; readErr only means no ambient text.
	err     error
	text    string
	readErr error
}

type submitEvent struct {
	input string
}

type dispatchResultEvent struct {
	env  dispatch.Envelope
	text string
	err  error
}

type visibilityEvent struct {
	visible bool
}

type dismissEvent struct{}

type copyEvent struct{}

type copyResultEvent struct {
	err error
}

type copiedExpiredEvent struct{}

type selectModelEvent struct {
	model string
}

type resetEvent struct{}

type settingsEvent struct {
	settings Settings
}

type snapshotRequest struct {
	reply chan Snapshot
}

type refreshEvent struct{}

type turnsRequest struct {
	reply chan []history.Turn
}
