package milp

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	bterrors "github.com/matzehuels/bactrack/pkg/errors"
)

// Sense is the optimization direction.
type Sense int

const (
	Maximize Sense = iota
	Minimize
)

func (s Sense) String() string {
	if s == Minimize {
		return "minimize"
	}
	return "maximize"
}

// Op is the relation of a constraint's left-hand side to its right-hand side.
type Op int

const (
	LE Op = iota // <=
	EQ           // =
	GE           // >=
)

func (o Op) String() string {
	switch o {
	case LE:
		return "<="
	case EQ:
		return "="
	case GE:
		return ">="
	}
	return "?"
}

// Var identifies a binary variable of a model.
type Var int

// Term is a coefficient applied to a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Sum returns unit-coefficient terms for vars.
func Sum(vars ...Var) []Term {
	ts := make([]Term, len(vars))
	for i, v := range vars {
		ts[i] = Term{Var: v, Coef: 1}
	}
	return ts
}

// Constraint is a linear row: Σ Terms Op RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Op    Op
	RHS   float64
}

// feasTol is the absolute slack allowed when checking rows.
const feasTol = 1e-9

func (c Constraint) activity(x []float64) float64 {
	var s float64
	for _, t := range c.Terms {
		if x[t.Var] > 0.5 {
			s += t.Coef
		}
	}
	return s
}

func (c Constraint) satisfied(act float64) bool {
	switch c.Op {
	case LE:
		return act <= c.RHS+feasTol
	case GE:
		return act >= c.RHS-feasTol
	default:
		return math.Abs(act-c.RHS) <= feasTol
	}
}

// Model is a binary integer program.
//
// Construction errors (unknown variables, non-finite coefficients) are
// sticky: the first one is kept, later calls are ignored, and [Model.Err]
// and [Solve] report it.
type Model struct {
	sense Sense
	names []string
	obj   []float64
	rows  []Constraint
	err   error
}

// NewModel returns an empty model with the given direction.
func NewModel(sense Sense) *Model {
	return &Model{sense: sense}
}

// Sense returns the optimization direction.
func (m *Model) Sense() Sense { return m.sense }

// Err returns the first construction error, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) fail(format string, args ...any) {
	if m.err == nil {
		m.err = bterrors.New(bterrors.ErrCodeInternal, "milp model: "+format, args...)
	}
}

// AddVar adds a binary variable with the given objective coefficient.
func (m *Model) AddVar(name string, obj float64) Var {
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		m.fail("variable %q has non-finite objective %v", name, obj)
		obj = 0
	}
	m.names = append(m.names, name)
	m.obj = append(m.obj, obj)
	return Var(len(m.obj) - 1)
}

// SetObjective replaces the objective coefficient of v.
func (m *Model) SetObjective(v Var, obj float64) {
	if !m.valid(v) {
		m.fail("unknown variable %d", v)
		return
	}
	if math.IsNaN(obj) || math.IsInf(obj, 0) {
		m.fail("variable %q has non-finite objective %v", m.names[v], obj)
		return
	}
	m.obj[v] = obj
}

// Objective returns the objective coefficient of v.
func (m *Model) Objective(v Var) float64 { return m.obj[v] }

// Name returns the name v was created with.
func (m *Model) Name(v Var) string { return m.names[v] }

// NumVars returns the number of variables.
func (m *Model) NumVars() int { return len(m.obj) }

// NumConstraints returns the number of constraints.
func (m *Model) NumConstraints() int { return len(m.rows) }

// Constraints returns the constraints in insertion order. The slice must not
// be modified.
func (m *Model) Constraints() []Constraint { return m.rows }

func (m *Model) valid(v Var) bool { return v >= 0 && int(v) < len(m.obj) }

// AddConstraint adds Σ terms op rhs. Terms on the same variable are merged
// and zero coefficients dropped.
func (m *Model) AddConstraint(name string, op Op, rhs float64, terms ...Term) {
	if op < LE || op > GE {
		m.fail("constraint %q has invalid relation %d", name, op)
		return
	}
	if math.IsNaN(rhs) || math.IsInf(rhs, 0) {
		m.fail("constraint %q has non-finite right-hand side", name)
		return
	}
	ts := slices.Clone(terms)
	for _, t := range ts {
		if !m.valid(t.Var) {
			m.fail("constraint %q references unknown variable %d", name, t.Var)
			return
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			m.fail("constraint %q has non-finite coefficient on %q", name, m.names[t.Var])
			return
		}
	}
	slices.SortFunc(ts, func(a, b Term) int { return cmp.Compare(a.Var, b.Var) })
	merged := ts[:0]
	for _, t := range ts {
		if n := len(merged); n > 0 && merged[n-1].Var == t.Var {
			merged[n-1].Coef += t.Coef
			continue
		}
		merged = append(merged, t)
	}
	merged = slices.DeleteFunc(merged, func(t Term) bool { return t.Coef == 0 })
	m.rows = append(m.rows, Constraint{Name: name, Terms: merged, Op: op, RHS: rhs})
}

// Value returns the objective value of x. Entries are read as 1 when above 0.5.
func (m *Model) Value(x []float64) float64 {
	var s float64
	for j, c := range m.obj {
		if x[j] > 0.5 {
			s += c
		}
	}
	return s
}

// Check returns an error naming the first constraint x violates, or nil.
// Entries are read as 1 when above 0.5.
func (m *Model) Check(x []float64) error {
	if len(x) != len(m.obj) {
		return fmt.Errorf("milp: assignment has %d values, model has %d variables", len(x), len(m.obj))
	}
	for i, c := range m.rows {
		if act := c.activity(x); !c.satisfied(act) {
			name := c.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return fmt.Errorf("milp: constraint %s violated: %v %s %v", name, act, c.Op, c.RHS)
		}
	}
	return nil
}
