package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/bactrack/pkg/hierarchy"
	"github.com/matzehuels/bactrack/pkg/milp"
	"github.com/matzehuels/bactrack/pkg/pipeline"
)

// Monitor styles
var (
	monitorLabelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	monitorValueStyle = lipgloss.NewStyle().Foreground(colorWhite)
	monitorHelpStyle  = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// SolveMonitor - Live branch-and-bound progress
// =============================================================================

// progressMsg carries a solver snapshot into the monitor.
type progressMsg milp.Progress

// doneMsg ends the monitor with the pipeline outcome.
type doneMsg struct {
	result *pipeline.Result
	err    error
}

// SolveMonitor is the bubbletea model shown by "track --tui" while the
// pipeline runs.
type SolveMonitor struct {
	Title    string
	Progress milp.Progress
	Updates  int

	Result    *pipeline.Result
	Err       error
	Cancelled bool

	cancel context.CancelFunc
}

// NewSolveMonitor creates a monitor. cancel aborts the run on q or ctrl+c.
func NewSolveMonitor(title string, cancel context.CancelFunc) SolveMonitor {
	return SolveMonitor{Title: title, cancel: cancel}
}

func (m SolveMonitor) Init() tea.Cmd {
	return nil
}

func (m SolveMonitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.Cancelled && m.cancel != nil {
				m.cancel()
			}
			m.Cancelled = true
		}
	case progressMsg:
		m.Progress = milp.Progress(msg)
		m.Updates++
	case doneMsg:
		m.Result, m.Err = msg.result, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m SolveMonitor) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n\n")

	p := m.Progress
	incumbent, gap := "none yet", "n/a"
	if p.HasIncumbent {
		incumbent = fmt.Sprintf("%.4f", p.Incumbent)
		gap = fmt.Sprintf("%.2f%%", 100*progressGap(p))
	}
	rows := [][2]string{
		{"Explored", fmt.Sprintf("%d", p.Explored)},
		{"Pruned", fmt.Sprintf("%d", p.Pruned)},
		{"Incumbent", incumbent},
		{"Bound", fmt.Sprintf("%.4f", p.Bound)},
		{"Gap", gap},
		{"Elapsed", p.Elapsed.Round(100 * time.Millisecond).String()},
	}
	for _, r := range rows {
		b.WriteString(monitorLabelStyle.Render(r[0]))
		b.WriteString(" ")
		b.WriteString(monitorValueStyle.Render(r[1]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.Cancelled {
		b.WriteString(StyleWarning.Render("cancelling, waiting for the solver to stop"))
	} else {
		b.WriteString(monitorHelpStyle.Render("q cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// runWithMonitor executes the pipeline while a SolveMonitor renders solver
// progress on stderr. Pipeline logs are suppressed while the monitor owns
// the terminal.
func runWithMonitor(ctx context.Context, runner *pipeline.Runner, seq *hierarchy.Sequence, opts pipeline.Options) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	title := fmt.Sprintf("Solving with %s", opts.Solver)
	p := tea.NewProgram(NewSolveMonitor(title, cancel), tea.WithOutput(os.Stderr))

	opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	opts.SolverOptions.Progress = func(pr milp.Progress) {
		p.Send(progressMsg(pr))
	}
	go func() {
		res, err := runner.Execute(ctx, seq, opts)
		p.Send(doneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(SolveMonitor)
	if m.Err == nil && m.Cancelled {
		return nil, context.Canceled
	}
	return m.Result, m.Err
}
