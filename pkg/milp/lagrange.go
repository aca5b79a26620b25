package milp

import (
	"math"
	"slices"
)

// Lagrangian bounding moves every row into the objective with a multiplier
// y_r >= 0:
//
//	L(y) = Σ_r y_r b_r + Σ_j max_{x_j} (c_j - Σ_r y_r a_rj) x_j
//
// where the max is over {0, 1} for free variables and the fixed value
// otherwise. Any y >= 0 gives an upper bound on the current subtree, so the
// multipliers are shared by every node and improved by projected subgradient
// steps. Each step costs one pass over the nonzeros.

// lagrange runs up to iters subgradient steps and returns the smallest bound
// seen. The reduced costs of that bound are left in s.bestD.
func (s *search) lagrange(iters int) float64 {
	best := math.Inf(1)
	for it := 0; ; it++ {
		s.reducedCosts()
		ub := s.lagValue()
		if ub < best-pruneTol {
			best = ub
			copy(s.bestD, s.d)
			s.stall = 0
		} else if s.stall++; s.stall >= lagStallLimit {
			s.step = max(s.step/2, lagMinStep)
			s.stall = 0
		}
		if it >= iters || s.prunes(best) || s.timeUp() {
			break
		}
		if !s.subgradientStep(ub) {
			break
		}
	}
	// Rounding slack.
	return best + pruneTol*max(1, math.Abs(best))
}

func (s *search) reducedCosts() {
	copy(s.d, s.c)
	for r, y := range s.y {
		if y == 0 {
			continue
		}
		row := &s.rows[r]
		for k, j := range row.vars {
			s.d[j] -= y * row.coefs[k]
		}
	}
}

func (s *search) lagValue() float64 {
	var v float64
	for r, y := range s.y {
		v += y * s.rows[r].rhs
	}
	for j, x := range s.val {
		if x == 1 || (x < 0 && s.d[j] > 0) {
			v += s.d[j]
		}
	}
	return v
}

// subgradientStep moves y against the subgradient at the maximizer of L. A
// maximizer that satisfies every row is offered as an incumbent. It returns
// false when no step is possible.
func (s *search) subgradientStep(ub float64) bool {
	var obj float64
	for j, v := range s.val {
		s.xs[j] = 0
		if v == 1 || (v < 0 && s.d[j] > 0) {
			s.xs[j] = 1
			obj += s.c[j]
		}
	}

	var norm float64
	feasible := true
	for r := range s.rows {
		row := &s.rows[r]
		g := row.rhs
		for k, j := range row.vars {
			if s.xs[j] == 1 {
				g -= row.coefs[k]
			}
		}
		if g < -feasTol {
			feasible = false
		}
		if s.y[r] == 0 && g > 0 {
			g = 0
		}
		s.g[r] = g
		norm += g * g
	}
	if feasible && (!s.hasInc || obj > s.incVal+pruneTol) {
		s.offer(slices.Clone(s.xs))
		if s.stopped {
			return false
		}
	}

	target := ub - 0.05*max(1, math.Abs(ub))
	if s.hasInc {
		target = max(target, s.incVal)
	}
	if norm < 1e-12 || ub <= target {
		return false
	}
	t := s.step * (ub - target) / norm
	for r, g := range s.g {
		if g != 0 {
			s.y[r] = max(0, s.y[r]-t*g)
		}
	}
	return true
}

// fixReduced fixes every free variable whose other value would pull the
// Lagrangian bound lag down to the incumbent. It reports whether any
// variable was fixed.
func (s *search) fixReduced(lag float64) bool {
	fixed := false
	for j, v := range s.val {
		if v >= 0 {
			continue
		}
		switch d := s.bestD[j]; {
		case d < 0 && s.prunes(lag+d):
			s.assign(j, 0)
			fixed = true
		case d > 0 && s.prunes(lag-d):
			s.assign(j, 1)
			fixed = true
		}
	}
	return fixed
}

// preferredByRelaxation returns the free variable with the largest objective
// magnitude among those the Lagrangian maximizer sets to one, or -1.
func (s *search) preferredByRelaxation() int {
	best := -1
	for j, v := range s.val {
		if v >= 0 || s.bestD[j] <= 0 {
			continue
		}
		if best < 0 || math.Abs(s.c[j]) > math.Abs(s.c[best]) {
			best = j
		}
	}
	return best
}
