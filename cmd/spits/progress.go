package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/spits/runner"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type eventMsg runner.Event

type finishedMsg struct{}

type progressModel struct {
	path    string
	cancel  context.CancelFunc
	spinner spinner.Model
	bar     progress.Model
	started time.Time

	last       runner.Event
	bytes      int64
	cancelling bool
	finished   bool
}

func newProgressModel(path string, cancel context.CancelFunc) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &progressModel{
		path:    path,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		started: time.Now(),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// wait for the runner to retire its instances
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-4, 60))

	case eventMsg:
		m.last = runner.Event(msg)
		if m.last.Kind == runner.EventResult {
			m.bytes += int64(m.last.Bytes)
		}

	case finishedMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) ratio() float64 {
	if m.last.Tasks == 0 {
		return 0
	}
	return float64(m.last.Results) / float64(m.last.Tasks)
}

func (m *progressModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SPITS"))
	b.WriteString(" ")
	b.WriteString(m.path)
	b.WriteString("\n\n")

	switch {
	case m.last.Err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("failed: %v", m.last.Err)))
	case m.finished || m.last.Kind == runner.EventFinished:
		b.WriteString(doneStyle.Render("done"))
	case m.cancelling:
		b.WriteString(m.spinner.View() + " cancelling, finalizing instances")
	default:
		b.WriteString(m.spinner.View() + " running")
	}
	b.WriteString("\n\n")

	b.WriteString(m.bar.ViewAs(m.ratio()))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "tasks %s  results %s  bytes %s  elapsed %s\n",
		countStyle.Render(fmt.Sprint(m.last.Tasks)),
		countStyle.Render(fmt.Sprint(m.last.Results)),
		countStyle.Render(fmt.Sprint(m.bytes)),
		countStyle.Render(time.Since(m.started).Round(100*time.Millisecond).String()))
	if m.last.Latency > 0 {
		fmt.Fprintf(&b, "last task %s\n", countStyle.Render(m.last.Latency.String()))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q cancel"))
	b.WriteString("\n")
	return b.String()
}

// runWithProgress runs exec while a progress view follows its events.
// Quitting the view cancels the run; it returns once exec has returned.
func runWithProgress(path string, cancel context.CancelFunc, exec func(func(runner.Event))) error {
	p := tea.NewProgram(newProgressModel(path, cancel))

	done := make(chan struct{})
	go func() {
		defer close(done)
		exec(func(ev runner.Event) { p.Send(eventMsg(ev)) })
		p.Send(finishedMsg{})
	}()

	_, err := p.Run()
	if err != nil {
		cancel()
	}
	<-done
	return err
}
