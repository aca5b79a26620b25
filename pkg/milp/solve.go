package milp

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrInfeasible is returned when the search proves no assignment
	// satisfies every constraint.
	ErrInfeasible = errors.New("milp: model is infeasible")

	// ErrNoIncumbent is returned when a limit stops the search before any
	// feasible assignment was found.
	ErrNoIncumbent = errors.New("milp: no feasible solution found within limits")
)

const (
	// DefaultLPMaxVars is the largest number of free variables for which a
	// node is bounded by its LP relaxation.
	DefaultLPMaxVars = 40

	// DefaultLagrangeIters is the number of subgradient steps spent on the
	// root node's Lagrangian bound.
	DefaultLagrangeIters = 400

	lagNodeIters     = 6
	lagStallLimit    = 12
	lagMinStep       = 1e-4
	progressInterval = 1024
	pruneTol         = 1e-9
	optTol           = 1e-7
)

// Status describes the quality of a returned solution.
type Status int

const (
	// Optimal means the search completed and the objective is proven best.
	Optimal Status = iota
	// Feasible means a limit stopped the search; Gap bounds the loss.
	Feasible
	// Infeasible means no assignment satisfies the constraints.
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	}
	return "unknown"
}

// Options bounds and instruments [Solve]. The zero value searches to
// proven optimality with LP bounding on small nodes.
type Options struct {
	// TimeLimit stops the search after this wall-clock duration. Zero disables it.
	TimeLimit time.Duration

	// GapLimit stops the search once the relative gap between incumbent and
	// bound is at most this value. Zero requires a proof of optimality.
	GapLimit float64

	// NodeLimit stops the search after this many explored nodes. Zero disables it.
	NodeLimit int

	// LPMaxVars caps the free-variable count at which LP relaxations are
	// solved. Zero means DefaultLPMaxVars; negative disables LP bounding.
	LPMaxVars int

	// LagrangeIters is the number of subgradient steps at the root node.
	// Zero means DefaultLagrangeIters; negative disables Lagrangian bounding.
	LagrangeIters int

	// Start is an optional warm start, one value per variable. It is used as
	// the first incumbent if it satisfies every constraint.
	Start []float64

	// Progress, if set, is called periodically and whenever the incumbent
	// improves.
	Progress func(Progress)
}

// Progress is a snapshot of a running search, in the model's sense.
type Progress struct {
	Explored     int
	Pruned       int
	HasIncumbent bool
	Incumbent    float64
	Bound        float64
	Elapsed      time.Duration
}

// Solution is the result of [Solve]. Objective, Bound and Values are in the
// model's sense and variable order.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Bound     float64
	Gap       float64 // |Bound - Objective| / max(1, |Objective|)
	Explored  int
	Pruned    int
	LPSolves  int
	StartUsed bool // the warm start was feasible and seeded the incumbent
	Duration  time.Duration
}

// leRow is a constraint normalized to Σ coefs·x <= rhs.
type leRow struct {
	vars  []int
	coefs []float64
	rhs   float64
}

type pathEntry struct {
	bound   float64
	pending bool // a sibling branch is still unexplored
}

type search struct {
	ctx      context.Context
	model    *Model
	opts     Options
	start    time.Time
	deadline time.Time // zero when neither ctx nor TimeLimit sets one

	c         []float64 // objective, maximize form
	rootBound float64
	rows      []leRow
	varRows   [][]int

	val       []int8 // -1 free, else 0 or 1
	trail     []int
	queue     []int
	queued    []bool
	fixedObj  float64
	freeCount int

	hasInc bool
	incVal float64
	inc    []float64

	path      []pathEntry
	explored  int
	pruned    int
	lpSolves  int
	stopped   bool
	stopBound float64
	stopErr   error

	lpCols []int // scratch: variable -> LP column, -1 when fixed
	lpMax  time.Duration

	// Lagrangian multipliers, one per row, shared by the whole tree: any
	// non-negative vector yields a valid bound.
	y      []float64
	d      []float64 // reduced costs c - yA
	bestD  []float64 // reduced costs of the best bound at the current node
	g      []float64
	xs     []float64
	step   float64
	stall  int
	hasLag bool
}

// Solve runs branch-and-bound on m.
//
// Without limits the result is Optimal or the error is ErrInfeasible. When a
// limit in opts stops the search, the best incumbent is returned with Status
// Feasible, or ErrNoIncumbent if there is none. When ctx is done the
// incumbent (possibly nil) is returned together with ctx.Err().
func Solve(ctx context.Context, m *Model, opts Options) (*Solution, error) {
	if err := m.Err(); err != nil {
		return nil, err
	}
	if opts.LPMaxVars == 0 {
		opts.LPMaxVars = DefaultLPMaxVars
	}
	if opts.LagrangeIters == 0 {
		opts.LagrangeIters = DefaultLagrangeIters
	}

	s := newSearch(ctx, m, opts)
	sol := &Solution{}

	for i := range s.rows {
		s.enqueue(i)
	}
	if s.propagate() {
		sol.StartUsed = s.tryStart()
		s.dfs()
	}
	return s.finish(sol)
}

func newSearch(ctx context.Context, m *Model, opts Options) *search {
	n := m.NumVars()
	s := &search{
		ctx:       ctx,
		model:     m,
		opts:      opts,
		start:     time.Now(),
		c:         make([]float64, n),
		varRows:   make([][]int, n),
		val:       make([]int8, n),
		freeCount: n,
		lpCols:    make([]int, n),
		d:         make([]float64, n),
		bestD:     make([]float64, n),
		xs:        make([]float64, n),
		step:      2,
	}
	if opts.TimeLimit > 0 {
		s.deadline = s.start.Add(opts.TimeLimit)
	}
	if dl, ok := ctx.Deadline(); ok && (s.deadline.IsZero() || dl.Before(s.deadline)) {
		s.deadline = dl
	}
	sign := 1.0
	if m.Sense() == Minimize {
		sign = -1
	}
	for j, c := range m.obj {
		s.c[j] = sign * c
		s.val[j] = -1
		s.rootBound += max(s.c[j], 0)
	}

	addRow := func(terms []Term, scale, rhs float64) {
		r := leRow{rhs: scale * rhs}
		for _, t := range terms {
			r.vars = append(r.vars, int(t.Var))
			r.coefs = append(r.coefs, scale*t.Coef)
		}
		idx := len(s.rows)
		s.rows = append(s.rows, r)
		for _, v := range r.vars {
			s.varRows[v] = append(s.varRows[v], idx)
		}
	}
	for _, c := range m.rows {
		switch c.Op {
		case LE:
			addRow(c.Terms, 1, c.RHS)
		case GE:
			addRow(c.Terms, -1, c.RHS)
		case EQ:
			addRow(c.Terms, 1, c.RHS)
			addRow(c.Terms, -1, c.RHS)
		}
	}
	s.queued = make([]bool, len(s.rows))
	s.y = make([]float64, len(s.rows))
	s.g = make([]float64, len(s.rows))
	return s
}

func (s *search) finish(sol *Solution) (*Solution, error) {
	sol.Explored, sol.Pruned, sol.LPSolves = s.explored, s.pruned, s.lpSolves
	sol.Duration = time.Since(s.start)

	if !s.hasInc {
		switch {
		case s.stopErr != nil:
			return nil, s.stopErr
		case s.stopped:
			return nil, ErrNoIncumbent
		}
		sol.Status = Infeasible
		return sol, ErrInfeasible
	}

	bound := s.incVal
	if s.stopped {
		bound = max(s.stopBound, s.incVal)
	}
	sol.Values = s.inc
	sol.Objective = s.external(s.incVal)
	sol.Bound = s.external(bound)
	sol.Gap = gap(s.incVal, bound)
	sol.Status = Optimal
	if s.stopped && sol.Gap > pruneTol {
		sol.Status = Feasible
	}
	return sol, s.stopErr
}

func gap(inc, bound float64) float64 {
	return max(bound-inc, 0) / max(1, math.Abs(inc))
}

// external converts a maximize-form value to the model's sense.
func (s *search) external(v float64) float64 {
	if s.model.Sense() == Minimize {
		return -v
	}
	return v
}

func (s *search) tryStart() bool {
	x := s.opts.Start
	if x == nil || s.model.Check(x) != nil {
		return false
	}
	s.offer(roundAll(x))
	return true
}

func roundAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v > 0.5 {
			out[i] = 1
		}
	}
	return out
}

// dfs explores the subtree defined by the current partial assignment.
// Variables it fixes on its own are undone by the caller.
func (s *search) dfs() {
	if s.shouldStop() {
		return
	}
	s.explored++

	ub, infeasible := s.bound()
	if infeasible || s.stopped || s.prunes(ub) {
		s.pruned++
		return
	}

	var x []float64
	if s.freeCount > 0 && s.lpAllowed() {
		if s.timeUp() {
			return
		}
		lpUB, lpX, status := s.relax()
		switch status {
		case lpInfeasible:
			s.pruned++
			return
		case lpSolved:
			ub, x = min(ub, lpUB), lpX
			if s.prunes(ub) {
				s.pruned++
				return
			}
		}
	}

	s.path = append(s.path, pathEntry{bound: ub})
	top := len(s.path) - 1
	defer func() { s.path = s.path[:top] }()

	if s.freeCount == 0 {
		s.offerCurrent()
		return
	}

	j, first := -1, int8(1)
	if x != nil {
		var integral bool
		j, integral = s.mostFractional(x)
		if integral && s.offerRounded(x) {
			return
		}
		if j >= 0 && x[j] < 0.5 {
			first = 0
		}
	}
	if j < 0 && s.hasLag {
		j = s.preferredByRelaxation()
	}
	if j < 0 {
		j = s.largestObjective()
		if s.c[j] < 0 {
			first = 0
		}
	}

	for k, v := range [2]int8{first, 1 - first} {
		s.path[top].pending = k == 0
		mark := len(s.trail)
		s.assign(j, v)
		if s.propagate() {
			s.dfs()
		} else {
			s.pruned++
		}
		s.undo(mark)
		if s.stopped || s.prunes(ub) {
			return
		}
	}
}

func (s *search) shouldStop() bool {
	if s.stopped {
		return true
	}
	if s.opts.NodeLimit > 0 && s.explored >= s.opts.NodeLimit {
		s.stop(nil)
		return true
	}
	if s.timeUp() {
		return true
	}
	if s.hasInc && s.opts.GapLimit > 0 && gap(s.incVal, s.openBound()) <= s.opts.GapLimit {
		s.stop(nil)
		return true
	}
	if s.explored%progressInterval == 0 {
		s.report()
	}
	return false
}

// timeUp stops the search when ctx is done or the time limit has passed.
func (s *search) timeUp() bool {
	if s.stopped {
		return true
	}
	if err := s.ctx.Err(); err != nil {
		s.stop(err)
		return true
	}
	if s.opts.TimeLimit > 0 && time.Since(s.start) >= s.opts.TimeLimit {
		s.stop(nil)
		return true
	}
	return false
}

func (s *search) stop(err error) {
	s.stopped = true
	s.stopErr = err
	s.stopBound = s.openBound()
}

// openBound is an upper bound on every assignment not yet explored.
func (s *search) openBound() float64 {
	if len(s.path) == 0 {
		return max(s.rootBound, s.incVal)
	}
	b := math.Inf(-1)
	for i, e := range s.path {
		if e.pending || i == len(s.path)-1 {
			b = max(b, e.bound)
		}
	}
	if s.hasInc {
		b = max(b, s.incVal)
	}
	return b
}

func (s *search) report() {
	if s.opts.Progress == nil {
		return
	}
	p := Progress{
		Explored:     s.explored,
		Pruned:       s.pruned,
		HasIncumbent: s.hasInc,
		Bound:        s.external(s.openBound()),
		Elapsed:      time.Since(s.start),
	}
	if s.hasInc {
		p.Incumbent = s.external(s.incVal)
	}
	s.opts.Progress(p)
}

// prunes reports whether a subtree bounded by ub cannot improve on the
// incumbent by more than the optimality tolerance.
func (s *search) prunes(ub float64) bool {
	return s.hasInc && ub <= s.incVal+optTol*max(1, math.Abs(s.incVal))
}

func (s *search) offer(x []float64) {
	v := s.model.Value(x)
	if s.model.Sense() == Minimize {
		v = -v
	}
	if s.hasInc && v <= s.incVal+pruneTol {
		return
	}
	s.hasInc, s.incVal, s.inc = true, v, x
	s.report()
	if s.opts.GapLimit > 0 && gap(s.incVal, s.openBound()) <= s.opts.GapLimit {
		s.stop(nil)
	}
}

func (s *search) offerCurrent() {
	x := make([]float64, len(s.val))
	for j, v := range s.val {
		if v == 1 {
			x[j] = 1
		}
	}
	if s.model.Check(x) == nil {
		s.offer(x)
	}
}

// offerRounded rounds an integral LP point and offers it. It reports whether
// the point was feasible, which closes the subtree.
func (s *search) offerRounded(x []float64) bool {
	r := roundAll(x)
	if s.model.Check(r) != nil {
		return false
	}
	s.offer(r)
	return true
}

func (s *search) mostFractional(x []float64) (int, bool) {
	best, bestDist := -1, 0.5
	for j, v := range s.val {
		if v >= 0 {
			continue
		}
		f := x[j] - math.Floor(x[j])
		if f <= 1e-6 || f >= 1-1e-6 {
			continue
		}
		if d := math.Abs(f - 0.5); best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, best < 0
}

func (s *search) largestObjective() int {
	best := -1
	for j, v := range s.val {
		if v >= 0 {
			continue
		}
		if best < 0 || math.Abs(s.c[j]) > math.Abs(s.c[best]) {
			best = j
		}
	}
	return best
}

func (s *search) assign(j int, v int8) {
	s.val[j] = v
	s.trail = append(s.trail, j)
	s.freeCount--
	if v == 1 {
		s.fixedObj += s.c[j]
	}
	for _, r := range s.varRows[j] {
		s.enqueue(r)
	}
}

func (s *search) undo(mark int) {
	for len(s.trail) > mark {
		j := s.trail[len(s.trail)-1]
		s.trail = s.trail[:len(s.trail)-1]
		if s.val[j] == 1 {
			s.fixedObj -= s.c[j]
		}
		s.val[j] = -1
		s.freeCount++
	}
}

func (s *search) enqueue(r int) {
	if !s.queued[r] {
		s.queued[r] = true
		s.queue = append(s.queue, r)
	}
}

func (s *search) clearQueue() {
	for _, r := range s.queue {
		s.queued[r] = false
	}
	s.queue = s.queue[:0]
}

// propagate fixes variables forced by minimum row activity until a fixpoint.
// It returns false if some row cannot be satisfied.
func (s *search) propagate() bool {
	for len(s.queue) > 0 {
		r := s.queue[len(s.queue)-1]
		s.queue = s.queue[:len(s.queue)-1]
		s.queued[r] = false

		row := &s.rows[r]
		var minAct float64
		for k, j := range row.vars {
			a := row.coefs[k]
			switch {
			case s.val[j] == 1:
				minAct += a
			case s.val[j] < 0 && a < 0:
				minAct += a
			}
		}
		if minAct > row.rhs+feasTol {
			s.clearQueue()
			return false
		}
		// Fixing a variable to its activity-minimizing value leaves minAct
		// unchanged, so one pass per row is exact.
		for k, j := range row.vars {
			if s.val[j] >= 0 {
				continue
			}
			a := row.coefs[k]
			switch {
			case a > 0 && minAct+a > row.rhs+feasTol:
				s.assign(j, 0)
			case a < 0 && minAct-a > row.rhs+feasTol:
				s.assign(j, 1)
			}
		}
	}
	return true
}

// bound returns an upper bound for the current subtree: the smaller of the
// trivial bound (fixed objective plus every positive free coefficient) and
// the Lagrangian bound. With an incumbent it also fixes the free variables
// whose other value cannot improve on it, reporting infeasible when the
// fixings contradict a row.
func (s *search) bound() (ub float64, infeasible bool) {
	ub = s.fixedObj
	for j, v := range s.val {
		if v < 0 && s.c[j] > 0 {
			ub += s.c[j]
		}
	}
	s.hasLag = false
	if s.freeCount == 0 || s.opts.LagrangeIters < 0 {
		return ub, false
	}

	iters := lagNodeIters
	if s.explored == 1 {
		iters = s.opts.LagrangeIters
	}
	lag := s.lagrange(iters)
	s.hasLag = true
	ub = min(ub, lag)
	if s.stopped || !s.hasInc || s.prunes(ub) {
		return ub, false
	}
	if s.fixReduced(lag) && !s.propagate() {
		return ub, true
	}
	return ub, false
}

// lpAllowed reports whether the current node is small enough for an LP
// relaxation that finishes well before the deadline.
func (s *search) lpAllowed() bool {
	if s.opts.LPMaxVars < 0 || s.freeCount > s.opts.LPMaxVars {
		return false
	}
	if s.deadline.IsZero() {
		return true
	}
	return time.Until(s.deadline) > 2*s.lpMax
}
