// Package capture takes screenshots by running an external command that
// writes a PNG to stdout.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hpungsan/tars/internal/errors"
)

// DefaultTimeout bounds a single capture.
const DefaultTimeout = 10 * time.Second

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// Command captures the screen with a configured command line.
type Command struct {
	argv    []string
	timeout time.Duration
}

// New creates a Command from argv, e.g. ["grim", "-"].
func New(argv []string) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.NewNotConfigured("capture_command")
	}
	return &Command{argv: append([]string(nil), argv...), timeout: DefaultTimeout}, nil
}

// Capture runs the command and returns its PNG output.
func (c *Command) Capture(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.argv[0], err)
	}

	out := stdout.Bytes()
	if !bytes.HasPrefix(out, pngMagic) {
		return nil, fmt.Errorf("%s: output is not a PNG (%d bytes)", c.argv[0], len(out))
	}
	return out, nil
}
