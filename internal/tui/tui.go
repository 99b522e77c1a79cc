package tui

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the overlay until the user quits, the snapshot stream closes,
// or ctx is cancelled.
func Run(ctx context.Context, m Model, host *Host) error {
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	if host != nil {
		host.attach(p.Send)
		defer host.attach(nil)
	}

	_, err := p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
