package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"playbench/pkg/runner"
)

// =============================================================================
// consoleModel - live build console
// =============================================================================

// tickMsg drives the periodic re-render while output is streaming.
type tickMsg time.Time

// doneMsg reports that the session reached a terminal state.
type doneMsg struct{}

// consoleModel is the bubbletea model for the live build console. It polls
// the session's buffer snapshot on a timer; the session's own goroutines
// keep writing regardless of the UI.
type consoleModel struct {
	session *runner.Session
	height  int
	width   int
}

// newConsoleModel creates a console model bound to one session.
func newConsoleModel(session *runner.Session) consoleModel {
	return consoleModel{session: session, height: 24, width: 80}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(tick(), waitDone(m.session))
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDone(session *runner.Session) tea.Cmd {
	return func() tea.Msg {
		<-session.Done()
		return doneMsg{}
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.session.Cancel()
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tick()
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m consoleModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("playbench"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("q cancel and quit"))
	b.WriteString("\n\n")

	lines := m.session.Buffer().Snapshot()
	visible := m.height - 4
	if visible < 1 {
		visible = 1
	}
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, line := range lines {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m consoleModel) statusLine() string {
	elapsed := time.Since(m.session.StartTime).Round(time.Second)
	switch m.session.State() {
	case runner.StateRunning:
		return StyleHighlight.Render(fmt.Sprintf("running %s", elapsed))
	case runner.StateSuccess:
		return StyleSuccess.Render("success")
	case runner.StateCancelled:
		return StyleWarning.Render("cancelled")
	default:
		return styleIconError.Render(fmt.Sprintf("failed (%d)", m.session.ExitCode()))
	}
}
