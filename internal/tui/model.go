// Package tui is the terminal overlay: an input line, the last exchange
// rendered as markdown, and the ambient context indicator.
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/hotkey"
	"github.com/hpungsan/tars/internal/orchestrator"
)

const (
	contextPreviewChars = 72
	minViewportHeight   = 3
	// header, context line, status line, input box (3), help
	chromeLines = 7
)

// Controller is the part of the orchestrator the overlay drives.
type Controller interface {
	Submit(input string)
	ToggleClipboard()
	Dismiss()
	SelectModel(model string)
	Reset()
	SetVisible(visible bool)
}

// Options configure a Model.
type Options struct {
	Controller Controller
	// Hotkeys fire before the overlay's own key handling.
	Hotkeys *hotkey.Registry
	Updates <-chan orchestrator.Snapshot
	// Style is a glamour style name; "" or "auto" picks from the terminal.
	Style  string
	Logger *zap.Logger
}

type snapshotMsg orchestrator.Snapshot

type updatesClosedMsg struct{}

type shownMsg struct{ mode string }

// Model is the bubbletea model of the overlay.
type Model struct {
	ctrl    Controller
	hotkeys *hotkey.Registry
	updates <-chan orchestrator.Snapshot
	logger  *zap.Logger

	snap orchestrator.Snapshot

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap
	styles   styles

	style         string
	renderer      *glamour.TermRenderer
	rendered      string
	renderedFor   string
	renderedWidth int

	width  int
	height int
}

// NewModel creates the overlay model.
func NewModel(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	input := textinput.New()
	input.Prompt = "› "
	input.Placeholder = "Ask about what you copied…"
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	m := Model{
		ctrl:     opts.Controller,
		hotkeys:  opts.Hotkeys,
		updates:  opts.Updates,
		logger:   logger,
		input:    input,
		viewport: vp,
		spinner:  sp,
		help:     help.New(),
		keys:     defaultKeyMap(),
		styles:   newStyles(),
		style:    opts.Style,
	}
	m.renderer = m.newRenderer(80)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	ctrl := m.ctrl
	shown := func() tea.Msg {
		ctrl.SetVisible(true)
		return nil
	}
	return tea.Batch(textinput.Blink, m.spinner.Tick, shown, waitSnapshot(m.updates))
}

func waitSnapshot(ch <-chan orchestrator.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(s)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case snapshotMsg:
		m.applySnapshot(orchestrator.Snapshot(msg))
		cmds = append(cmds, waitSnapshot(m.updates))

	case updatesClosedMsg:
		return m, tea.Quit

	case shownMsg:
		cmds = append(cmds, tea.SetWindowTitle("tars · "+msg.mode))

	case tea.FocusMsg:
		m.ctrl.SetVisible(true)

	case tea.BlurMsg:
		m.ctrl.SetVisible(false)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.hotkeys != nil && m.hotkeys.Fire(msg.String()) {
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			if value := m.input.Value(); strings.TrimSpace(value) != "" {
				m.ctrl.Submit(value)
			}
			return m, nil
		case key.Matches(msg, m.keys.Clipboard):
			m.ctrl.ToggleClipboard()
			return m, nil
		case key.Matches(msg, m.keys.NextModel):
			if next := nextModel(m.snap.Models, m.snap.Model); next != "" && next != m.snap.Model {
				m.ctrl.SelectModel(next)
			}
			return m, nil
		case key.Matches(msg, m.keys.Dismiss):
			m.ctrl.Dismiss()
			return m, nil
		case key.Matches(msg, m.keys.Reset):
			m.ctrl.Reset()
			return m, nil
		case key.Matches(msg, m.keys.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.ScrollDown):
			m.viewport.HalfViewDown()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// applySnapshot mirrors orchestrator state into the view. The input line is
// cleared only when the orchestrator cleared the text the user submitted.
func (m *Model) applySnapshot(s orchestrator.Snapshot) {
	prev := m.snap
	m.snap = s

	if s.Input == "" && prev.Input != "" && m.input.Value() == prev.Input {
		m.input.Reset()
	}

	if s.Response != prev.Response || s.Question != prev.Question || s.LastError != prev.LastError {
		m.refreshViewport()
		m.viewport.GotoTop()
	}
}

func (m *Model) resize() {
	m.input.Width = max(m.width-8, 10)
	m.help.Width = m.width
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chromeLines, minViewportHeight)
	m.renderer = m.newRenderer(m.width - 4)
	m.refreshViewport()
}

func (m *Model) newRenderer(wrap int) *glamour.TermRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(wrap, 20))}
	if m.style == "" || m.style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(m.style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		m.logger.Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	return r
}

func (m *Model) refreshViewport() {
	var b strings.Builder
	if q := m.snap.Question; q != "" {
		b.WriteString(m.styles.question.Render("› " + q))
		b.WriteString("\n")
	}
	switch {
	case m.snap.LastError != "":
		b.WriteString("\n")
		b.WriteString(m.styles.err.Render(m.snap.LastError))
	case m.snap.Response != "":
		b.WriteString(m.renderMarkdown(m.snap.Response))
	}
	m.viewport.SetContent(b.String())
}

func (m *Model) renderMarkdown(md string) string {
	if m.renderer == nil {
		return md
	}
	if md == m.renderedFor && m.width == m.renderedWidth {
		return m.rendered
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		m.logger.Debug("markdown render failed", zap.Error(err))
		return md
	}
	m.rendered, m.renderedFor, m.renderedWidth = out, md, m.width
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.snap.Visible && m.snap.Version > 0 {
		return m.styles.hiddenBar.Render(m.styles.brand.Render("tars") + " hidden · waiting for a hotkey")
	}

	sections := []string{
		m.headerView(),
		m.contextView(),
		m.viewport.View(),
		m.statusView(),
		m.styles.inputBox.Render(m.input.View()),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	parts := []string{m.styles.brand.Render("tars")}
	if m.snap.Model != "" {
		parts = append(parts, m.styles.badge.Render(m.snap.Model))
	}
	parts = append(parts, m.styles.badge.Render(string(m.snap.Mode)))
	if m.snap.HistoryLen > 0 {
		parts = append(parts, m.styles.muted.Render(fmt.Sprintf("%d turns", m.snap.HistoryLen)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m Model) contextView() string {
	var parts []string
	if m.snap.HasScreenshot {
		parts = append(parts, "◉ screenshot")
	}
	if ctx := m.snap.Context; ctx != "" {
		parts = append(parts, fmt.Sprintf("“%s” (%d chars)", preview(ctx, contextPreviewChars), len([]rune(ctx))))
	}
	if len(parts) == 0 {
		return m.styles.context.Render("no context")
	}
	return m.styles.context.Render(strings.Join(parts, " + "))
}

func (m Model) statusView() string {
	switch {
	case m.snap.Loading:
		return m.spinner.View() + " " + m.styles.state.Render("thinking")
	case m.snap.State == orchestrator.StateAcquiringScreenshot:
		return m.spinner.View() + " " + m.styles.state.Render("capturing screen")
	case m.snap.State == orchestrator.StateAcquiringClipboard:
		return m.spinner.View() + " " + m.styles.state.Render("reading clipboard")
	case m.snap.Copied:
		return m.styles.copied.Render("copied ✓")
	case m.snap.State == orchestrator.StateError:
		return m.styles.err.Render("request failed")
	default:
		return ""
	}
}

// nextModel returns the model after current, wrapping around. An unknown
// current model selects the first one.
func nextModel(models []string, current string) string {
	if len(models) == 0 {
		return ""
	}
	i := slices.Index(models, current)
	return models[(i+1)%len(models)]
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
