package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	brand     lipgloss.Style
	badge     lipgloss.Style
	muted     lipgloss.Style
	state     lipgloss.Style
	question  lipgloss.Style
	context   lipgloss.Style
	err       lipgloss.Style
	copied    lipgloss.Style
	inputBox  lipgloss.Style
	hiddenBar lipgloss.Style
}

func newStyles() styles {
	var (
		accent = lipgloss.Color("#05d9e8")
		pink   = lipgloss.Color("#ff2a6d")
		mint   = lipgloss.Color("#05ffa1")
		muted  = lipgloss.Color("#7a7f8c")
		text   = lipgloss.Color("#d1f7ff")
	)
	return styles{
		brand: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#01012b")).
			Background(accent).
			Bold(true).
			Padding(0, 1),
		badge: lipgloss.NewStyle().
			Foreground(accent).
			Border(lipgloss.NormalBorder(), false, true).
			BorderForeground(muted).
			Padding(0, 1),
		muted:    lipgloss.NewStyle().Foreground(muted),
		state:    lipgloss.NewStyle().Foreground(mint),
		question: lipgloss.NewStyle().Foreground(text).Bold(true),
		context:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		err:      lipgloss.NewStyle().Foreground(pink).Bold(true),
		copied:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		inputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		hiddenBar: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
	}
}
