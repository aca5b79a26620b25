// Package affinity computes cross-frame similarity weights between
// segmentation candidates and optional per-candidate penalties.
//
// # Variants
//
// The weight variant is a closed enumeration:
//
//   - [Overlap]: shared pixels divided by the smaller area; pairs with no
//     shared pixel are excluded.
//   - [IoU]: intersection over union; pairs with no shared pixel are excluded.
//   - [Distance]: 1 - d/threshold for centroid distance d below the
//     threshold; farther pairs are excluded.
//
// Use [ParseVariant] to resolve a configured name. Unknown names fail with an
// INVALID_CONFIG error listing the accepted values.
//
// # Matrix
//
// [Build] only compares candidates of adjacent frames t and t+1, so every
// [Edge] points forward in time by exactly one frame. The result is a sparse
// [Matrix] of explicit directed edges sorted by (Source, Target); edge
// positions in [Matrix.Edges] are stable and are what solvers index their
// variables by.
//
// Building is a pure function of the labeled sequence and [Params]: the same
// inputs always yield the same matrix, bit for bit. Frame pairs are evaluated
// concurrently and merged in frame order.
package affinity
