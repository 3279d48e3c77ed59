// Package crdt implements a collaborative text CRDT engine: a replica stores
// the whole edit history of a shared document as a partially-ordered graph of
// operations, and can merge remote batches, materialize text at any version,
// and replay its history as a flat stream of positional operations for a
// plain text buffer.
//
// The design follows the causal-graph / YATA approach described by
// Grishchenko's causal trees and refined by the Yjs/diamond-types line of
// CRDTs, rather than the simpler causal-tree-of-atoms approach: instead of a
// single weave array searched linearly, operations are addressed by a dense
// integer (LV, for "local version") and organized into a run-length-encoded
// DAG (CausalGraph) that supports fast reachability and diff queries.
package crdt

import (
	"fmt"
	"math"
	"sort"
)

// LV is a local version: a dense, monotonically increasing integer assigned
// to an operation in the order this replica first learned of it.
type LV int

// ROOT is the sentinel LV meaning "before everything". It is deliberately the
// largest representable LV so that ordinary comparisons (`p < entry.Start`)
// keep working without a special case, the same trick diamond-types plays
// with `usize::MAX`.
const ROOT LV = math.MaxInt

// DTRange is a half-open range of LVs, [Start, End). Every LV in a DTRange
// was assigned contiguously by this replica and (except possibly at Start)
// shares the same parent set.
type DTRange struct {
	Start, End LV
}

// Len returns the number of LVs in the range.
func (r DTRange) Len() int { return int(r.End - r.Start) }

// IsEmpty reports whether the range contains no LVs.
func (r DTRange) IsEmpty() bool { return r.Start >= r.End }

// Last returns the last LV in the range. Panics if the range is empty.
func (r DTRange) Last() LV {
	if r.IsEmpty() {
		panic("crdt: Last() of empty DTRange")
	}
	return r.End - 1
}

// Contains reports whether target lies within the range.
func (r DTRange) Contains(target LV) bool {
	return target >= r.Start && target < r.End
}

// Truncate splits the range at offset k (0 < k < r.Len()), returning the
// tail. The receiver is mutated to hold the head.
func (r *DTRange) Truncate(k int) DTRange {
	mid := r.Start + LV(k)
	tail := DTRange{mid, r.End}
	r.End = mid
	return tail
}

func (r DTRange) String() string { return fmt.Sprintf("[%d, %d)", r.Start, r.End) }

// Frontier is a sorted antichain of LVs: no element is reachable from
// another, and the slice is kept sorted ascending for deterministic
// comparison and hashing. A nil/empty Frontier represents ROOT.
type Frontier []LV

// Clone returns an independent copy of the frontier.
func (f Frontier) Clone() Frontier {
	if len(f) == 0 {
		return nil
	}
	out := make(Frontier, len(f))
	copy(out, f)
	return out
}

// Equal reports whether two frontiers contain the same LVs (both are assumed
// sorted, which every Frontier constructed by this package is).
func (f Frontier) Equal(other Frontier) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// IsSorted reports whether the frontier is in ascending order, as required
// by every method in this package.
func (f Frontier) IsSorted() bool {
	return sort.SliceIsSorted(f, func(i, j int) bool { return f[i] < f[j] })
}

// Last returns the highest LV in the frontier, or ROOT if the frontier is
// empty. This mirrors diamond-types' trick of treating a TimePoint's "last"
// entry as the primary sort key, with ROOT behaving as -1 once LVs are
// compared via wrapping arithmetic; here we just compare LV directly since
// Go lets us special-case ROOT explicitly instead of relying on overflow.
func (f Frontier) Last() LV {
	if len(f) == 0 {
		return ROOT
	}
	return f[len(f)-1]
}

func sortFrontier(f Frontier) {
	sort.Slice(f, func(i, j int) bool { return f[i] < f[j] })
}

// frontierOf builds a sorted Frontier from a set of LVs, without
// deduplication or dominator reduction (callers that need an antichain must
// run FindDominators).
func frontierOf(lvs ...LV) Frontier {
	f := make(Frontier, len(lvs))
	copy(f, lvs)
	sortFrontier(f)
	return f
}

// AgentID identifies an agent (a peer or editing session) within this
// replica's local tables. It is only meaningful locally -- two replicas may
// assign different AgentIDs to the same agent name.
type AgentID int
