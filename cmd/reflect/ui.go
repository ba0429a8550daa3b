package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	session "github.com/quietroom/reflect-core/core"
	"github.com/quietroom/reflect-core/core/dialogue"
	"github.com/quietroom/reflect-core/core/events"
	"github.com/quietroom/reflect-core/core/summary"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type model struct {
	session *session.Session

	input   textinput.Model
	spinner spinner.Model

	width  int
	height int

	statusNote string
}

type errMsg struct{ err error }
type summaryDoneMsg struct{}
type exportedMsg struct{ path string }

func newModel(sess *session.Session) model {
	input := textinput.New()
	input.Placeholder = "type a reply, or enter to start"
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return model{
		session: sess,
		input:   input,
		spinner: spin,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case events.Event:
		// State is re-read from the session on every render; the event is
		// only a repaint trigger, plus a note for a few kinds.
		switch msg.(type) {
		case events.CaptureStarted:
			m.statusNote = "recording... ctrl+r to finish"
		case events.CaptureStopped:
			m.statusNote = ""
		case events.SummaryReady:
			m.statusNote = "summary ready"
		}
		return m, nil

	case errMsg:
		if msg.err != nil {
			m.statusNote = msg.err.Error()
		}
		return m, nil

	case summaryDoneMsg:
		return m, nil

	case exportedMsg:
		m.statusNote = "exported to " + msg.path
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.session.Close()
		return m, tea.Quit

	case "ctrl+d":
		m.session.HardEnd()
		m.statusNote = "session ended"
		return m, nil

	case "ctrl+r":
		if m.session.IsRecording() {
			if err := m.session.CompleteTurn(context.Background()); err != nil {
				return m, func() tea.Msg { return errMsg{err} }
			}
			return m, nil
		}
		if err := m.session.BeginTurn(context.Background()); err != nil {
			return m, func() tea.Msg { return errMsg{err} }
		}
		return m, nil

	case "ctrl+p":
		var err error
		switch m.session.Phase() {
		case session.PhaseActive:
			err = m.session.Pause()
		case session.PhasePaused:
			err = m.session.Resume()
		}
		if err != nil {
			return m, func() tea.Msg { return errMsg{err} }
		}
		return m, nil

	case "ctrl+e":
		return m, func() tea.Msg {
			if err := m.session.EndAndSummarise(context.Background()); err != nil {
				return errMsg{err}
			}
			return summaryDoneMsg{}
		}

	case "ctrl+s":
		if m.session.Phase() != session.PhaseFinished {
			return m, nil
		}
		return m, func() tea.Msg {
			if err := m.session.Summarise(context.Background()); err != nil {
				return errMsg{err}
			}
			return summaryDoneMsg{}
		}

	case "ctrl+x":
		return m, m.exportCmd()

	case "enter":
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()

		if m.session.Phase() == session.PhaseIdle {
			if err := m.session.Start(context.Background()); err != nil {
				return m, func() tea.Msg { return errMsg{err} }
			}
			return m, nil
		}
		if text == "" {
			return m, nil
		}
		if err := m.session.SendText(context.Background(), text); err != nil {
			return m, func() tea.Msg { return errMsg{err} }
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) exportCmd() tea.Cmd {
	return func() tea.Msg {
		path := fmt.Sprintf("reflection-%s.json", time.Now().Format("20060102-150405"))
		file, err := os.Create(path)
		if err != nil {
			return errMsg{err}
		}
		defer file.Close()

		if err := m.session.Export(file); err != nil {
			return errMsg{err}
		}
		return exportedMsg{path: path}
	}
}

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("reflect"))
	b.WriteString("\n\n")

	for _, turn := range m.session.Turns() {
		wrapped := wordwrap.String(turn.Content, min(width-4, 100))
		switch turn.Role {
		case dialogue.RoleAssistant:
			b.WriteString(assistantStyle.Render("coach: ") + wrapped)
		default:
			b.WriteString(userStyle.Render("you:   ") + wrapped)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if artifact := m.session.Summary(); artifact != nil {
		b.WriteString(summaryStyle.Render("action sheet"))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(renderSummary(artifact), min(width-4, 100)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if err := m.session.Err(); err != nil {
		b.WriteString(errorStyle.Render(err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send · ctrl+r record · ctrl+p pause · ctrl+e end+summary · ctrl+x export · ctrl+d reset · ctrl+c quit"))
	return b.String()
}

func renderSummary(artifact *summary.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Year: %s\n", artifact.YearSentence)
	fmt.Fprintf(&b, "Theme: %s\n", artifact.Theme)
	writeList(&b, "Wins", artifact.Wins)
	writeList(&b, "Drains", artifact.Drains)
	writeList(&b, "Lessons", artifact.TopLessons)
	if len(artifact.Commitments) > 0 {
		b.WriteString("Commitments:\n")
		for _, c := range artifact.Commitments {
			fmt.Fprintf(&b, "  - %s (%s): %s; first step: %s\n", c.Title, c.Cadence, c.Why, c.FirstStep)
		}
	}
	writeList(&b, "Stop doing", artifact.StopDoing)
	writeList(&b, "If/then", artifact.IfThenRules)
	writeList(&b, "People", artifact.PeopleToInvestIn)
	fmt.Fprintf(&b, "%s\n", artifact.ClosingNote)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(label + ":\n")
	for _, item := range items {
		b.WriteString("  - " + item + "\n")
	}
}

func (m model) statusLine() string {
	status := fmt.Sprintf("phase: %s · step: %d", m.session.Phase(), m.session.StepIndex())
	if m.session.IsProcessing() {
		status = m.spinner.View() + " " + status
	}
	if m.statusNote != "" {
		status += " · " + m.statusNote
	}
	return statusStyle.Render(status)
}
