// Package milp is a small exact solver for binary integer programs.
//
// A [Model] holds binary variables, a linear objective and linear
// constraints (<=, =, >=). [Solve] runs a depth-first branch-and-bound:
//
//   - Bound propagation fixes variables whose other value would violate a
//     row's minimum activity, and detects infeasible subtrees early.
//   - Every node is bounded by a Lagrangian relaxation of all rows. The
//     multipliers are tuned by subgradient steps, mostly at the root, and
//     each step is one sparse pass over the constraints. Its reduced costs
//     fix variables that cannot take their other value in an improving
//     solution, and its maximizer is offered as an incumbent when feasible.
//   - Small subproblems are also bounded by their LP relaxation, solved with
//     the simplex method from gonum.org/v1/gonum/optimize/convex/lp. The LP
//     is skipped when its expected duration does not fit before the
//     deadline.
//   - The LP solution guides branching (most fractional variable, rounded
//     side first) and closes a subtree outright when it is integral.
//     Otherwise the search branches on a variable the Lagrangian maximizer
//     selects.
//
// The context and the time limit are checked on every node and between
// subgradient steps, so a solve returns shortly after its deadline.
//
// The search is exact: with no limits it returns a provably optimal
// solution. [Options] can bound it by wall-clock time, explored nodes or
// relative optimality gap, in which case the best incumbent is returned with
// [Status] Feasible and the remaining gap. Optimality is proven up to a
// relative tolerance of 1e-7. A feasible warm start seeds the
// incumbent and lets the bound prune from the first node.
//
// Models are not safe for concurrent modification; Solve only reads them.
package milp
