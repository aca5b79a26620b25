package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matzehuels/bactrack/pkg/milp"
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

// solveSpinner draws a one-line status on stderr while a solve runs. The
// line shows the latest branch-and-bound snapshot and disappears on stop or
// when ctx is cancelled.
type solveSpinner struct {
	label string
	w     io.Writer
	ctx   context.Context

	mu     sync.Mutex
	line   string
	widest int

	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
	running bool
}

func newSolveSpinner(ctx context.Context, label string) *solveSpinner {
	return &solveSpinner{
		label:  label,
		w:      os.Stderr,
		ctx:    ctx,
		line:   label,
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// progressLine renders a solver snapshot after label.
func progressLine(label string, p milp.Progress) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s · %d nodes", label, p.Explored)
	if p.HasIncumbent {
		fmt.Fprintf(&b, " · best %.4f", p.Incumbent)
		if !math.IsInf(p.Bound, 0) {
			fmt.Fprintf(&b, " · gap %.2f%%", 100*progressGap(p))
		}
	}
	if p.Elapsed > 0 {
		fmt.Fprintf(&b, " · %s", p.Elapsed.Round(100*time.Millisecond))
	}
	return b.String()
}

// progressGap is the relative distance between incumbent and bound.
func progressGap(p milp.Progress) float64 {
	return math.Abs(p.Bound-p.Incumbent) / max(1, math.Abs(p.Incumbent))
}

// update replaces the status with p. It is safe to call from the solver's
// progress callback.
func (s *solveSpinner) update(p milp.Progress) {
	s.mu.Lock()
	s.line = progressLine(s.label, p)
	s.mu.Unlock()
}

func (s *solveSpinner) start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go s.loop()
}

func (s *solveSpinner) loop() {
	defer close(s.exited)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case <-s.ctx.Done():
			s.erase()
			return
		case <-s.quit:
			return
		case <-tick.C:
			s.mu.Lock()
			s.widest = max(s.widest, len(s.line))
			fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(spinnerFrames[i%len(spinnerFrames)]), StyleDim.Render(s.line))
			s.mu.Unlock()
		}
	}
}

// stop ends the animation and erases the line. Repeated calls and calls
// before start return immediately.
func (s *solveSpinner) stop() {
	s.once.Do(func() { close(s.quit) })
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.exited
	}
	s.erase()
}

func (s *solveSpinner) erase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.widest > 0 {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.widest+2))
	}
}

// cancelled reports whether the spinner's context ended.
func (s *solveSpinner) cancelled() bool { return s.ctx.Err() != nil }
