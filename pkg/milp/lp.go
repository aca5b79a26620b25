package milp

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

type lpStatus int

const (
	lpSkipped lpStatus = iota
	lpSolved
	lpInfeasible
)

const (
	lpTol = 1e-10

	// maxLPCells caps the dense tableau. Simplex refactors the basis on every
	// pivot, so the cost grows with the cube of the row count.
	maxLPCells = 1 << 14
)

// relax solves the LP relaxation of the current subtree:
//
//	max  Σ c_j y_j
//	s.t. Σ a_rj y_j <= b_r - Σ a_rk x_k   for every row with free variables
//	     0 <= y_j <= 1                     for every free j
//
// in the standard form Simplex expects (min c·z, Az = b, z >= 0). Every row
// gets a private slack column, so A has full row rank and no zero rows or
// columns. Rows already satisfied at maximum activity are dropped.
func (s *search) relax() (float64, []float64, lpStatus) {
	free := make([]int, 0, s.freeCount)
	for j, v := range s.val {
		s.lpCols[j] = -1
		if v < 0 {
			s.lpCols[j] = len(free)
			free = append(free, j)
		}
	}
	nf := len(free)

	type lpRow struct {
		row int
		rhs float64
	}
	var active []lpRow
	for r := range s.rows {
		row := &s.rows[r]
		rhs, maxAct, touches := row.rhs, 0.0, false
		for k, j := range row.vars {
			a := row.coefs[k]
			switch {
			case s.val[j] == 1:
				rhs -= a
			case s.val[j] < 0:
				touches = true
				if a > 0 {
					maxAct += a
				}
			}
		}
		if touches && maxAct > rhs+feasTol {
			active = append(active, lpRow{row: r, rhs: rhs})
		}
	}

	m := len(active) + nf
	n := nf + len(active) + nf
	if m*n > maxLPCells {
		return 0, nil, lpSkipped
	}

	A := mat.NewDense(m, n, nil)
	b := make([]float64, m)
	c := make([]float64, n)
	for k, j := range free {
		c[k] = -s.c[j]
	}
	for i, ar := range active {
		sign := 1.0
		if ar.rhs < 0 {
			sign = -1
		}
		row := &s.rows[ar.row]
		for k, j := range row.vars {
			if col := s.lpCols[j]; col >= 0 {
				A.Set(i, col, sign*row.coefs[k])
			}
		}
		A.Set(i, nf+i, sign)
		b[i] = sign * ar.rhs
	}
	for k := range free {
		i := len(active) + k
		A.Set(i, k, 1)
		A.Set(i, nf+len(active)+k, 1)
		b[i] = 1
	}

	s.lpSolves++
	t0 := time.Now()
	optF, z, err := lp.Simplex(c, A, b, lpTol, nil)
	s.lpMax = max(s.lpMax, time.Since(t0))
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return 0, nil, lpInfeasible
	case err != nil:
		return 0, nil, lpSkipped
	}

	x := make([]float64, len(s.val))
	for j, v := range s.val {
		switch {
		case v == 1:
			x[j] = 1
		case v < 0:
			x[j] = min(max(z[s.lpCols[j]], 0), 1)
		}
	}
	return s.fixedObj - optF, x, lpSolved
}
