package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mcm/resolve"
	"mcm/ui"
)

type resolveFunc func(ctx context.Context, progress func(resolve.Event)) (*resolve.Result, error)

// resolveEventMsg carries a resolver progress event.
type resolveEventMsg resolve.Event

type resolveDoneMsg struct {
	res *resolve.Result
	err error
}

// ResolveModel shows resolver progress while the resolution runs.
type ResolveModel struct {
	spinner spinner.Model
	msgs    chan tea.Msg
	ctx     context.Context
	cancel  context.CancelFunc
	run     resolveFunc

	// State
	title    string
	status   string
	finding  []string
	resolved []string
	result   *resolve.Result
	err      error
	done     bool

	// Counters
	totalResolved int
	totalDeps     int
}

func newResolveModel(ctx context.Context, cancel context.CancelFunc, title string, run resolveFunc) ResolveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorPink))

	return ResolveModel{
		spinner: s,
		msgs:    make(chan tea.Msg, 100),
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		title:   title,
		status:  "Initializing...",
	}
}

func (m ResolveModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.startResolve(),
		m.waitForActivity(),
	)
}

func (m ResolveModel) startResolve() tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(m.msgs)
			res, err := m.run(m.ctx, func(e resolve.Event) {
				select {
				case m.msgs <- resolveEventMsg(e):
				case <-m.ctx.Done():
				}
			})
			select {
			case m.msgs <- resolveDoneMsg{res: res, err: err}:
			case <-m.ctx.Done():
			}
		}()
		return nil
	}
}

func (m ResolveModel) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.msgs
		if !ok {
			return resolveDoneMsg{err: m.ctx.Err()}
		}
		return msg
	}
}

func (m ResolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			if !m.done {
				m.cancel()
				m.err = context.Canceled
				m.done = true
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resolveEventMsg:
		switch msg.Kind {
		case resolve.EventFinding:
			m.status = fmt.Sprintf("Looking up %s...", msg.Name)
			m.finding = append(m.finding, msg.Name)
		case resolve.EventResolved:
			m.removeFromFinding(msg.Name)
			line := fmt.Sprintf("%s %s", msg.Name, msg.Version)
			if msg.Dependency {
				line += " (dependency)"
				m.totalDeps++
			}
			m.resolved = append(m.resolved, line)
			m.totalResolved++
		}
		return m, m.waitForActivity()

	case resolveDoneMsg:
		m.done = true
		m.result = msg.res
		m.err = msg.err
		m.status = "Finished"
		if msg.err != nil {
			m.status = "Failed"
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *ResolveModel) removeFromFinding(name string) {
	if i := slices.Index(m.finding, name); i >= 0 {
		m.finding = slices.Delete(m.finding, i, i+1)
	}
}

func (m ResolveModel) View() string {
	var symbol string
	switch {
	case m.done && m.err != nil:
		symbol = ui.ErrorStyle.Render("✗")
	case m.done:
		symbol = ui.GoodStyle.Render("✓")
	default:
		symbol = m.spinner.View()
	}

	s := fmt.Sprintf("\n %s %s: %s\n\n", symbol, ui.TitleStyle.Render(m.title), m.status)

	if len(m.finding) > 0 && !m.done {
		s += lipgloss.NewStyle().Bold(true).Render("Looking up:") + "\n"
		for _, f := range m.finding {
			s += fmt.Sprintf("  • %s\n", f)
		}
		s += "\n"
	}

	// Show the last few resolved mods while running.
	if len(m.resolved) > 0 {
		s += ui.GoodStyle.Render("Resolved:") + "\n"
		start := 0
		if len(m.resolved) > 5 && !m.done {
			start = len(m.resolved) - 5
		}
		for _, r := range m.resolved[start:] {
			s += fmt.Sprintf("  • %s\n", r)
		}
		s += "\n"
	}

	if m.done {
		summary := fmt.Sprintf("%d mods resolved, %d as dependencies", m.totalResolved, m.totalDeps)
		if m.err != nil {
			summary = ui.ErrorStyle.Render(m.err.Error())
		}
		s += lipgloss.NewStyle().Bold(true).Render(summary) + "\n"
	}
	return s
}

// runResolveTUI runs run under the progress view and returns its result.
func runResolveTUI(ctx context.Context, title string, run resolveFunc) (*resolve.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	final, err := tea.NewProgram(newResolveModel(ctx, cancel, title, run)).Run()
	if err != nil {
		return nil, err
	}
	fm := final.(ResolveModel)
	return fm.result, fm.err
}
