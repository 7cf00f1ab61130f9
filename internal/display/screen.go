package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#1E3A5F")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Faint(true).
			Padding(0, 1)
)

// reportMsg carries a freshly rendered report into the running program.
type reportMsg string

// screenModel is the full-screen view: a static header, a scrollable
// viewport holding the latest report, and a key hint footer.
type screenModel struct {
	title    string
	viewport viewport.Model
	report   string
	ready    bool
}

func newScreenModel(title string) screenModel {
	return screenModel{title: title}
}

func (m screenModel) Init() tea.Cmd { return nil }

func (m screenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		chrome := lipgloss.Height(m.headerView()) + lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.viewport.SetContent(m.report)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
	case reportMsg:
		m.report = string(msg)
		if m.ready {
			m.viewport.SetContent(m.report)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m screenModel) View() string {
	if !m.ready {
		return "collecting...\n"
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m screenModel) headerView() string {
	return headerStyle.Render(m.title)
}

func (m screenModel) footerView() string {
	hints := []string{"q quit", "↑/↓ scroll"}
	return footerStyle.Render(strings.Join(hints, "  "))
}

// ScreenSink drives a terminal program that repaints the report in place
// on every Render call.
type ScreenSink struct {
	prog *tea.Program
	done chan struct{}
}

// NewScreenSink starts the terminal program in the background. The Done
// channel closes when the user quits the view.
func NewScreenSink(title string) *ScreenSink {
	s := &ScreenSink{
		prog: tea.NewProgram(newScreenModel(title), tea.WithAltScreen()),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		_, _ = s.prog.Run()
	}()
	return s
}

// Render pushes a new report into the running view.
func (s *ScreenSink) Render(report string) error {
	s.prog.Send(reportMsg(report))
	return nil
}

// Done closes when the user exits the view.
func (s *ScreenSink) Done() <-chan struct{} { return s.done }

// Close stops the program and waits for the terminal to be restored.
func (s *ScreenSink) Close() error {
	s.prog.Quit()
	<-s.done
	return nil
}
