package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quasar/pmc/internal/events"
)

// eventMsg wraps one events.Event as a tea.Msg, the same way the teacher
// wraps its launch.Status as LaunchStatusUpdate (internal/ui/launch.go).
type eventMsg events.Event

// doneMsg signals that the event channel closed, i.e. the install call
// returned.
type doneMsg struct{ err error }

// progressModel drives the human-color live view: a single progress bar
// plus a short phase log, built on the teacher's bubbles/progress usage.
type progressModel struct {
	bar   progress.Model
	phase string
	fixes []string
	log   []string
	done  bool
	err   error
	width int
}

func newProgressModel() *progressModel {
	return &progressModel{
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(50),
		),
		phase: "starting",
	}
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 10
		return m, nil

	case eventMsg:
		return m.applyEvent(events.Event(msg))

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		barModel, cmd := m.bar.Update(msg)
		m.bar = barModel.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) applyEvent(e events.Event) (tea.Model, tea.Cmd) {
	switch e.Kind {
	case events.KindDownloadProgress:
		data, _ := e.Data.(events.DownloadProgressData)
		var pct float64
		if data.TotalBytes > 0 {
			pct = float64(data.DoneBytes) / float64(data.TotalBytes)
		}
		cmd := m.bar.SetPercent(pct)
		return m, cmd

	case events.KindFixApplied:
		if data, ok := e.Data.(events.FixAppliedData); ok {
			m.fixes = append(m.fixes, data.Name)
		}
		return m, nil

	default:
		if label, ok := phaseLabels[e.Kind]; ok {
			m.phase = label
		}
		m.appendLog(Line(e, false))
		return m, nil
	}
}

func (m *progressModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > 10 {
		m.log = m.log[len(m.log)-10:]
	}
}

func (m *progressModel) View() string {
	header := HeaderStyle.Render("Installing")
	phase := PhaseStyle.Render(m.phase)
	bar := m.bar.View()

	var fixes string
	if len(m.fixes) > 0 {
		fixes = SubtleStyle.Render("fixes: " + strings.Join(m.fixes, ", "))
	}

	var logView strings.Builder
	for _, line := range m.log {
		logView.WriteString(MutedStyle.Render(line) + "\n")
	}

	var footer string
	switch {
	case m.done && m.err != nil:
		footer = ErrorStyle.Render(fmt.Sprintf("failed: %v", m.err))
	case m.done:
		footer = SuccessStyle.Render("done")
	default:
		footer = MutedStyle.Render("[ctrl+c] cancel")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header, "", phase, bar, "", fixes, logView.String(), footer)
}

// RunProgress drives a bubbletea program off ch until it closes, then
// reads result for the install call's own outcome (sent once, before ch
// is closed) and returns it. Every event in between is forwarded into the
// model.
func RunProgress(ch <-chan events.Event, result <-chan error) error {
	model := newProgressModel()
	p := tea.NewProgram(model)

	go func() {
		for e := range ch {
			p.Send(eventMsg(e))
		}
		p.Send(doneMsg{err: <-result})
	}()

	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(*progressModel); ok {
		return fm.err
	}
	return nil
}
