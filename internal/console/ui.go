package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"diplomat/internal/chat"
)

const refreshInterval = 500 * time.Millisecond

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	speakerTag  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
)

type refreshMsg struct{}

// Model is the bubbletea model for the local chat harness. Typed lines
// go into the session as the active speaker; `/as <id> <name>` switches
// or creates speakers.
type Model struct {
	session *Session
	input   textinput.Model
	view    viewport.Model
	speaker chat.AuthorID
	seen    int
	ready   bool
}

// NewModel builds the TUI over a session with one initial speaker.
func NewModel(session *Session, speaker chat.AuthorID, name string) Model {
	session.Join(speaker, name)
	input := textinput.New()
	input.Placeholder = "say something, or /as <id> <name> to switch speaker"
	input.Prompt = promptStyle.Render("> ")
	input.Focus()
	return Model{
		session: session,
		input:   input,
		speaker: speaker,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.view = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = msg.Height - 4
		}
		m.refresh()
		return m, nil

	case refreshMsg:
		if n := m.session.Len(); n != m.seen {
			m.refresh()
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit(strings.TrimSpace(m.input.Value()))
			m.input.Reset()
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(line string) {
	if line == "" {
		return
	}
	if rest, ok := strings.CutPrefix(line, "/as "); ok {
		fields := strings.Fields(rest)
		if len(fields) >= 1 {
			id := chat.AuthorID(fields[0])
			name := fields[0]
			if len(fields) > 1 {
				name = strings.Join(fields[1:], " ")
			}
			m.session.Join(id, name)
			m.speaker = id
		}
		return
	}
	m.session.Say(m.speaker, line)
}

func (m *Model) refresh() {
	lines := m.session.Render()
	m.seen = len(lines)
	m.view.SetContent(strings.Join(lines, "\n"))
	m.view.GotoBottom()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "starting session..."
	}
	header := titleStyle.Render("diplomat console") + "  " + speakerTag.Render("speaking as "+string(m.speaker))
	help := helpStyle.Render("enter sends, /as switches speaker, esc quits")
	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.view.View(), m.input.View(), help)
}

// Run blocks inside the TUI loop until the user quits.
func Run(session *Session, speaker chat.AuthorID, name string) error {
	program := tea.NewProgram(NewModel(session, speaker, name), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
