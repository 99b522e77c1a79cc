// Package clipboard reads and writes the system clipboard.
package clipboard

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// System is the system clipboard.
type System struct {
	readAll  func() (string, error)
	writeAll func(string) error
}

// New returns the system clipboard. It fails when no clipboard utility is
// available on this platform.
func New() (*System, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("clipboard is not supported on this system")
	}
	return &System{readAll: clipboard.ReadAll, writeAll: clipboard.WriteAll}, nil
}

// ReadText returns the clipboard text. An empty clipboard is an error.
func (s *System) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := s.readAll()
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("clipboard is empty")
	}
	return text, nil
}

// WriteText replaces the clipboard text.
func (s *System) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeAll(text)
}
