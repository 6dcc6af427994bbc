// Package ui renders the interactive chat screen. The model is a thin
// view over session state: every controller change arrives as a
// ViewMsg and the screen is redrawn from that snapshot alone.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/traceline/traceline/internal/protocol"
	"github.com/traceline/traceline/internal/session"
	"github.com/traceline/traceline/internal/timefmt"
)

// ViewMsg delivers a fresh session snapshot to the UI.
type ViewMsg session.View

var (
	colorAccent = lipgloss.Color("#7aa2f7")
	colorUser   = lipgloss.Color("#9ece6a")
	colorSystem = lipgloss.Color("#e0af68")
	colorMuted  = lipgloss.Color("#565f89")
	colorAlert  = lipgloss.Color("#f7768e")

	headerStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	agentStyle  = lipgloss.NewStyle()
	systemStyle = lipgloss.NewStyle().Foreground(colorSystem).Italic(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	promptStyle = lipgloss.NewStyle().
			Foreground(colorAlert).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAlert).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctrl *session.Controller

	input textinput.Model
	spin  spinner.Model

	view   session.View
	width  int
	height int
	errMsg string
}

// New builds the chat model around a session controller.
func New(ctrl *session.Controller) Model {
	input := textinput.New()
	input.Placeholder = "Type a command, or /quit to exit"
	input.Prompt = "> "
	input.Focus()
	input.CharLimit = 4096

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return Model{
		ctrl:  ctrl,
		input: input,
		spin:  spin,
		view:  ctrl.View(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ViewMsg:
		m.view = session.View(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(20, msg.Width-4)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	}

	// While a permission prompt is up, single keys decide it.
	if m.view.Pending != nil {
		switch strings.ToLower(msg.String()) {
		case "y":
			m.ctrl.DecidePermission(protocol.ChoiceAllow)
			return m, nil
		case "n":
			m.ctrl.DecidePermission(protocol.ChoiceDeny)
			return m, nil
		case "a":
			m.ctrl.DecidePermission(protocol.ChoiceAllowAlways)
			return m, nil
		}
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.errMsg = ""

		switch text {
		case "":
			return m, nil
		case "/quit", "/exit":
			return m, tea.Quit
		case "/clear":
			m.ctrl.ClearTranscript()
			return m, nil
		}

		if err := m.ctrl.SubmitCommand(text); err != nil {
			m.errMsg = err.Error()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Traceline"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.statusText()))
	b.WriteString("\n\n")

	for _, entry := range m.view.Transcript {
		b.WriteString(renderEntry(entry))
		b.WriteString("\n")
	}

	if m.view.Streaming {
		b.WriteString(agentStyle.Render(m.view.StreamText))
		b.WriteString(" " + m.spin.View())
		b.WriteString("\n")
	} else if m.view.AgentBusy {
		b.WriteString(m.spin.View() + mutedStyle.Render(" working..."))
		b.WriteString("\n")
	}

	if m.view.Pending != nil {
		b.WriteString("\n")
		b.WriteString(promptStyle.Render(fmt.Sprintf(
			"Permission: %s\n[y] allow once  [a] allow always  [n] deny",
			m.view.Pending.Prompt)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(colorAlert).Render(m.errMsg))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("enter send · /clear reset · ctrl+c quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) statusText() string {
	if !m.view.Connected {
		if m.view.Phase == session.PhaseDisconnected {
			return "disconnected"
		}
		return "demo mode"
	}
	return "connected"
}

func renderEntry(entry session.Entry) string {
	stamp := mutedStyle.Render(timefmt.Clock(entry.CreatedAt)) + " "
	switch entry.Kind {
	case session.KindUser:
		return stamp + userStyle.Render("you ") + entry.Content
	case session.KindSystem:
		return stamp + systemStyle.Render(entry.Content)
	default:
		return stamp + agentStyle.Render(entry.Content)
	}
}
