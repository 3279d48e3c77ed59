package crdt

import (
	"container/heap"
)

// +------------------------+
// | D. Causal graph (DAG)  |
// +------------------------+
//
// The causal graph is a run-length-encoded DAG of time ranges: entries tile
// [0, total) with no gaps, each recording the parent frontier at its first
// LV and a "shadow" fast-path summary. This is grounded on
// causalgraph/parents/tools.rs in the original source; the heap-based diff
// and find_conflicting algorithms below are direct ports of diff_slow_internal
// and find_conflicting_slow, adapted to Go's container/heap.

// GraphEntry is one run-length-encoded entry of the causal graph: see
// spec.md §3 "Causal graph entry".
type GraphEntry struct {
	Span         DTRange
	Parents      Frontier
	Shadow       LV
	ChildIndexes []int
}

// Length implements Run.
func (e GraphEntry) Length() int { return e.Span.Len() }

// Start implements Run.
func (e GraphEntry) Start() int { return int(e.Span.Start) }

// CanAppend implements Run: next continues this entry iff it's contiguous
// and its sole (implicit) parent is the last LV of this entry.
func (e GraphEntry) CanAppend(next GraphEntry) bool {
	return e.Span.End == next.Span.Start &&
		len(next.Parents) == 1 && next.Parents[0] == e.Span.End-1
}

// Append implements Run.
func (e GraphEntry) Append(next GraphEntry) GraphEntry {
	e.Span.End = next.Span.End
	return e
}

// Truncate implements Run, splitting at an LV offset within the entry. The
// shadow is unchanged on both sides: truncating mid-run doesn't break the
// contiguous ancestry chain the shadow is summarizing.
func (e GraphEntry) Truncate(offset int) (head, tail GraphEntry) {
	mid := e.Span.Start + LV(offset)
	head = GraphEntry{Span: DTRange{e.Span.Start, mid}, Parents: e.Parents, Shadow: e.Shadow}
	tail = GraphEntry{Span: DTRange{mid, e.Span.End}, Parents: Frontier{mid - 1}, Shadow: e.Shadow, ChildIndexes: e.ChildIndexes}
	return head, tail
}

// shadowContains reports whether the entry's shadow-covered range includes target:
// i.e. whether target is an ancestor of e.Span.Start by walking only
// unbroken contiguous parent edges.
func (e GraphEntry) shadowContains(target LV) bool {
	return e.Shadow <= target && target < e.Span.Start
}

// parentAt returns the parent of the LV at offset within this entry: for
// offset 0 that's e.Parents (possibly several), for offset > 0 it's the
// implicit single predecessor.
func (e GraphEntry) parentAt(offset int) Frontier {
	if offset == 0 {
		return e.Parents
	}
	return Frontier{e.Span.Start + LV(offset) - 1}
}

// ParentsAt returns the causal parents of the single LV lv: either the
// (possibly multiple) parents recorded for the GraphEntry lv starts, or its
// implicit single predecessor when lv falls mid-entry. Used when splitting
// a VersionsSince range back into per-transaction RemoteTxn batches.
func (g *CausalGraph) ParentsAt(lv LV) Frontier {
	e, offset, ok := g.entries.Find(int(lv))
	if !ok {
		panic("crdt: ParentsAt: LV not present in causal graph")
	}
	return e.parentAt(offset)
}

// CausalGraph is the append-only DAG of every operation this replica knows
// about.
type CausalGraph struct {
	entries          RLEList[GraphEntry]
	rootChildIndexes []int
}

// NewCausalGraph returns an empty causal graph.
func NewCausalGraph() *CausalGraph {
	return &CausalGraph{}
}

// NextLV returns the next LV that would be assigned.
func (g *CausalGraph) NextLV() LV {
	if g.entries.Len() == 0 {
		return 0
	}
	last := g.entries.Item(g.entries.Len() - 1)
	return last.Span.End
}

// Entries exposes the backing run list for iteration (used by the
// subgraph/export machinery and by tests).
func (g *CausalGraph) Entries() []GraphEntry { return g.entries.Items() }

// shadowOf returns the shadow of the entry containing time, or ROOT itself
// for the ROOT sentinel.
func (g *CausalGraph) shadowOf(t LV) LV {
	if t == ROOT {
		return ROOT
	}
	e, _ := g.entries.FindPacked(int(t))
	return e.Shadow
}

// txnShadowContains reports whether a's entry shadow-covers b.
func (g *CausalGraph) txnShadowContains(a, b LV) bool {
	if a == b {
		return true
	}
	if b == ROOT {
		return true
	}
	if a == ROOT {
		return false
	}
	if a <= b {
		return false
	}
	return g.shadowOf(a) <= b
}

// isDirectDescendantCoarse reports whether a is reachable from b by a chain
// that the shadow summary alone can confirm -- it's conservative (false
// negatives are fine, they just fall through to the slower general path) but
// never gives a false positive.
func (g *CausalGraph) isDirectDescendantCoarse(a, b LV) bool {
	if a == b {
		return true
	}
	if b == ROOT {
		return g.txnShadowContains(a, ROOT)
	}
	if a == ROOT {
		return false
	}
	if a <= b {
		return false
	}
	e, _ := g.entries.FindPacked(int(a))
	return e.Span.Start <= b
}

// VersionContainsTime reports whether frontier dominates (causally
// contains) target.
func (g *CausalGraph) VersionContainsTime(frontier Frontier, target LV) bool {
	if target == ROOT || contains(frontier, target) {
		return true
	}
	if len(frontier) == 0 {
		return false
	}

	// Fast path: a branch's shadow usually covers most of its history.
	for _, o := range frontier {
		if o > target {
			e, _ := g.entries.FindPacked(int(o))
			if e.shadowContains(target) {
				return true
			}
		}
	}

	// Slow path: max-heap DFS over parent edges.
	h := &lvHeap{}
	for _, o := range frontier {
		if o > target {
			heap.Push(h, o)
		}
	}
	for h.Len() > 0 {
		order := heap.Pop(h).(LV)
		e, _ := g.entries.FindPacked(int(order))
		if e.shadowContains(target) {
			return true
		}
		for h.Len() > 0 && (*h)[0] >= e.Span.Start {
			heap.Pop(h)
		}
		for _, p := range e.parentAt(int(order - e.Span.Start)) {
			if p == target {
				return true
			}
			if p > target {
				heap.Push(h, p)
			}
		}
	}
	return false
}

// Compare returns -1, 0, +1 if v1 is strictly before, equal to, or strictly
// after v2 in the causal order, or reports that they're concurrent.
func (g *CausalGraph) Compare(v1, v2 LV) (cmp int, concurrent bool) {
	switch {
	case v1 == v2:
		return 0, false
	case v1 < v2:
		if g.VersionContainsTime(Frontier{v2}, v1) {
			return -1, false
		}
		return 0, true
	default:
		if g.VersionContainsTime(Frontier{v1}, v2) {
			return 1, false
		}
		return 0, true
	}
}

func contains(f Frontier, v LV) bool {
	for _, x := range f {
		if x == v {
			return true
		}
	}
	return false
}

// +------+
// | Heap |
// +------+

// lvHeap is a max-heap of LVs.
type lvHeap []LV

func (h lvHeap) Len() int            { return len(h) }
func (h lvHeap) Less(i, j int) bool  { return h[i] > h[j] }
func (h lvHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *lvHeap) Push(x interface{}) { *h = append(*h, x.(LV)) }
func (h *lvHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// +-------------------------+
// | Diff between frontiers  |
// +-------------------------+

// DiffFlag tags a heap entry (or emitted span) during diff/conflict-finding
// as belonging to only one side's history, or to both.
type DiffFlag int

const (
	OnlyA DiffFlag = iota
	OnlyB
	Shared
)

type diffHeapEntry struct {
	lv   LV
	flag DiffFlag
}

type diffHeap []diffHeapEntry

func (h diffHeap) Len() int           { return len(h) }
func (h diffHeap) Less(i, j int) bool { return h[i].lv > h[j].lv }
func (h diffHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *diffHeap) Push(x interface{}) {
	*h = append(*h, x.(diffHeapEntry))
}
func (h *diffHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Diff returns the spans of LVs reachable from a but not b, and from b but
// not a, each returned in descending order. It is a direct port of
// Parents::diff / diff_slow in the original source.
func (g *CausalGraph) Diff(a, b Frontier) (onlyA, onlyB DTRangeList) {
	if a.Equal(b) {
		return nil, nil
	}
	if len(a) == 1 && len(b) == 1 {
		av, bv := a[0], b[0]
		if g.isDirectDescendantCoarse(av, bv) {
			return DTRangeList{{bv + 1, av + 1}}, nil
		}
		if g.isDirectDescendantCoarse(bv, av) {
			return nil, DTRangeList{{av + 1, bv + 1}}
		}
	}
	return g.diffSlow(a, b)
}

func (g *CausalGraph) diffSlow(a, b Frontier) (onlyA, onlyB DTRangeList) {
	markRun := func(start, endInclusive LV, flag DiffFlag) {
		var target *DTRangeList
		switch flag {
		case OnlyA:
			target = &onlyA
		case OnlyB:
			target = &onlyB
		default:
			return
		}
		target.PushReversedRLE(DTRange{start, endInclusive + 1})
	}

	h := &diffHeap{}
	for _, x := range a {
		heap.Push(h, diffHeapEntry{x, OnlyA})
	}
	for _, x := range b {
		heap.Push(h, diffHeapEntry{x, OnlyB})
	}

	numShared := 0
	for h.Len() > 0 {
		top := heap.Pop(h).(diffHeapEntry)
		ord, flag := top.lv, top.flag
		if flag == Shared {
			numShared--
		}

		for h.Len() > 0 && (*h)[0].lv == ord {
			peek := heap.Pop(h).(diffHeapEntry)
			if peek.flag != flag {
				flag = Shared
			}
			if peek.flag == Shared {
				numShared--
			}
		}

		containing, _ := g.entries.FindPacked(int(ord))

		for h.Len() > 0 && (*h)[0].lv >= containing.Span.Start {
			peek := heap.Pop(h).(diffHeapEntry)
			if peek.flag != flag {
				markRun(peek.lv+1, ord, flag)
				ord = peek.lv
				flag = Shared
			}
			if peek.flag == Shared {
				numShared--
			}
		}

		markRun(containing.Span.Start, ord, flag)

		for _, p := range containing.Parents {
			heap.Push(h, diffHeapEntry{p, flag})
			if flag == Shared {
				numShared++
			}
		}

		if h.Len() == numShared {
			break
		}
	}
	return onlyA, onlyB
}

// VersionUnion returns a frontier dominating both a and b.
func (g *CausalGraph) VersionUnion(a, b Frontier) Frontier {
	onlyA, onlyB := g.Diff(a, b)
	if len(onlyA) == 0 {
		return b.Clone()
	}
	if len(onlyB) == 0 {
		return a.Clone()
	}
	result := a.Clone()
	for i := len(onlyB) - 1; i >= 0; i-- {
		result = g.advanceFrontier(result, onlyB[i])
	}
	return result
}

// advanceFrontier folds a contiguous span of newly-applied LVs into a
// frontier: the span's parents drop out (they're now dominated) and the
// span's last LV is added, then the result is reduced to an antichain.
func (g *CausalGraph) advanceFrontier(f Frontier, span DTRange) Frontier {
	e, _ := g.entries.FindPacked(int(span.Start))
	var next Frontier
	parents := e.parentAt(int(span.Start - e.Span.Start))
	for _, x := range f {
		dominated := false
		for _, p := range parents {
			if x == p {
				dominated = true
				break
			}
		}
		if !dominated {
			next = append(next, x)
		}
	}
	next = append(next, span.Last())
	sortFrontier(next)
	return g.FindDominators(next)
}

// +-------------------+
// | Conflict zone     |
// +-------------------+

// ConflictZone groups a common ancestor frontier with every span visited to
// connect a and b back to it. FindConflicting does not build one: it returns
// the ancestor frontier and passes each span to its visitor.
type ConflictZone struct {
	CommonAncestor Frontier
	Spans          []ConflictSpan
}

// ConflictSpan is one visited range tagged with which side(s) it belongs to,
// in the order FindConflicting's visitor was called (descending LV order).
type ConflictSpan struct {
	Span DTRange
	Flag DiffFlag
}

type timePoint struct {
	last       LV
	mergedWith []LV // sorted ascending, excludes last
}

func timePointOf(f Frontier) timePoint {
	if len(f) == 0 {
		return timePoint{last: ROOT}
	}
	return timePoint{last: f[len(f)-1], mergedWith: append([]LV(nil), f[:len(f)-1]...)}
}

// less implements the TimePoint ordering from find_conflicting_slow: sort by
// last LV (ROOT behaves as -infinity), ties broken so that a merge point
// (non-empty mergedWith) is less than a plain point with the same last LV.
func timePointLess(a, b timePoint) bool {
	al, bl := lvRank(a.last), lvRank(b.last)
	if al != bl {
		return al < bl
	}
	aEmpty, bEmpty := len(a.mergedWith) == 0, len(b.mergedWith) == 0
	if aEmpty != bEmpty {
		// a plain point (aEmpty) is "greater" than a merge point with the
		// same `last`, i.e. less() is false for the plain point.
		return !aEmpty
	}
	return false
}

func lvRank(v LV) int {
	if v == ROOT {
		return -1
	}
	return int(v)
}

type tpHeapEntry struct {
	tp   timePoint
	flag DiffFlag
}

type tpHeap []tpHeapEntry

func (h tpHeap) Len() int { return len(h) }
func (h tpHeap) Less(i, j int) bool {
	// max-heap on timePoint ordering
	return timePointLess(h[j].tp, h[i].tp)
}
func (h tpHeap) Swap(i, j int)         { h[i], h[j] = h[j], h[i] }
func (h *tpHeap) Push(x interface{})   { *h = append(*h, x.(tpHeapEntry)) }
func (h *tpHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
func tpEqual(a, b timePoint) bool {
	if a.last != b.last || len(a.mergedWith) != len(b.mergedWith) {
		return false
	}
	for i := range a.mergedWith {
		if a.mergedWith[i] != b.mergedWith[i] {
			return false
		}
	}
	return true
}

// FindConflicting walks a and b back to their common ancestor, calling visit
// for every range needed to connect both histories to it, and returns that
// ancestor frontier. Ported from find_conflicting_slow.
func (g *CausalGraph) FindConflicting(a, b Frontier, visit func(DTRange, DiffFlag)) Frontier {
	if a.Equal(b) {
		return a.Clone()
	}
	if len(a) <= 1 && len(b) <= 1 {
		av, bv := frontierLast1(a), frontierLast1(b)
		if g.isDirectDescendantCoarse(av, bv) {
			visit(DTRange{bv + 1, av + 1}, OnlyA)
			return Frontier{bv}
		}
		if g.isDirectDescendantCoarse(bv, av) {
			visit(DTRange{av + 1, bv + 1}, OnlyB)
			return Frontier{av}
		}
	}
	return g.findConflictingSlow(a, b, visit)
}

func frontierLast1(f Frontier) LV {
	if len(f) == 0 {
		return ROOT
	}
	return f[0]
}

func (g *CausalGraph) findConflictingSlow(a, b Frontier, visit func(DTRange, DiffFlag)) Frontier {
	h := &tpHeap{}
	heap.Push(h, tpHeapEntry{timePointOf(a), OnlyA})
	heap.Push(h, tpHeapEntry{timePointOf(b), OnlyB})

	for {
		top := heap.Pop(h).(tpHeapEntry)
		tp, flag := top.tp, top.flag
		t := tp.last

		if t == ROOT {
			return nil
		}

		for h.Len() > 0 && tpEqual((*h)[0].tp, tp) {
			peek := heap.Pop(h).(tpHeapEntry)
			if peek.flag != flag {
				flag = Shared
			}
		}

		if h.Len() == 0 {
			result := append(Frontier{}, tp.mergedWith...)
			result = append(result, t)
			sortFrontier(result)
			return result
		}

		if len(tp.mergedWith) > 0 {
			for _, m := range tp.mergedWith {
				heap.Push(h, tpHeapEntry{timePoint{last: m}, flag})
			}
		}

		containing, _ := g.entries.FindPacked(int(t))
		rng := DTRange{containing.Span.Start, t + 1}

		for {
			if h.Len() == 0 {
				return Frontier{rng.Last()}
			}
			peek := (*h)[0]
			if peek.tp.last != ROOT && peek.tp.last >= containing.Span.Start {
				popped := heap.Pop(h).(tpHeapEntry)
				if popped.tp.last+1 < rng.End {
					offset := int(popped.tp.last + 1 - containing.Span.Start)
					tail := rng.Truncate(offset)
					visit(tail, flag)
				}
				nextFlag := popped.flag
				if nextFlag != flag {
					flag = Shared
				}
				if len(popped.tp.mergedWith) > 0 {
					for _, m := range popped.tp.mergedWith {
						heap.Push(h, tpHeapEntry{timePoint{last: m}, nextFlag})
					}
				}
			} else {
				visit(rng, flag)
				heap.Push(h, tpHeapEntry{timePoint{last: frontierLast1(containing.Parents), mergedWith: multiParentTail(containing.Parents)}, flag})
				break
			}
		}
	}
}

func multiParentTail(p Frontier) []LV {
	if len(p) <= 1 {
		return nil
	}
	return append([]LV(nil), p[:len(p)-1]...)
}

// +--------------------+
// | Dominators         |
// +--------------------+

// FindDominators reduces a set of LVs to the minimal antichain that
// reaches the same version: any LV reachable from another is dropped.
func (g *CausalGraph) FindDominators(lvs []LV) Frontier {
	if len(lvs) <= 1 {
		return frontierOf(lvs...)
	}
	uniq := dedup(lvs)
	var out Frontier
	for i, v := range uniq {
		dominated := false
		for j, other := range uniq {
			if i == j {
				continue
			}
			if g.VersionContainsTime(Frontier{other}, v) && other != v {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, v)
		}
	}
	sortFrontier(out)
	return dedup(out)
}

func dedup(lvs []LV) []LV {
	sorted := append([]LV(nil), lvs...)
	sortFrontier(sorted)
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// +--------------------------+
// | Append (mutation)        |
// +--------------------------+

// Append records a new contiguous run of `length` LVs with the given
// parents, returning the assigned span. It is the only way new entries
// enter the graph; AgentAssignment and the engine call it for both local
// and (already-ordered) remote operations.
func (g *CausalGraph) Append(parents Frontier, length int) DTRange {
	start := g.NextLV()
	span := DTRange{start, start + LV(length)}
	shadow := span.Start // conservative default: no shortcut past this entry.
	if len(parents) == 1 && parents[0] == start-1 {
		if prev, _ := g.entries.FindPacked(int(start - 1)); true {
			shadow = prev.Shadow
		}
	}
	entry := GraphEntry{Span: span, Parents: parents.Clone(), Shadow: shadow}
	idx := g.entries.Len()
	g.entries.Push(entry)
	if g.entries.Len() > idx {
		g.linkChildren(parents, idx)
	}
	return span
}

// linkChildren records idx as a child of every entry owning a parent LV (or
// of the graph root, for ROOT-only parent sets), maintaining ChildIndexes /
// rootChildIndexes for the subgraph projection algorithm.
func (g *CausalGraph) linkChildren(parents Frontier, idx int) {
	if len(parents) == 0 {
		g.rootChildIndexes = appendUnique(g.rootChildIndexes, idx)
		return
	}
	for _, p := range parents {
		pi, _, ok := g.entries.FindIndex(int(p))
		if !ok {
			continue
		}
		e := g.entries.Item(pi)
		e.ChildIndexes = appendUniqueInt(e.ChildIndexes, idx)
		g.entries.Replace(pi, e)
	}
}

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func appendUniqueInt(s []int, v int) []int { return appendUnique(s, v) }

// +---------------------+
// | Subgraph projection |
// +---------------------+

// Subgraph builds a fresh causal graph containing exactly the LVs named by
// keep, appended one LV at a time in ascending order. It's a simplified
// version of causalgraph/parents/subgraph.rs: a parent that is not in keep
// is dropped from the new entry's parents, not replaced by its nearest kept
// ancestor. Child indexes are linked by Append as each LV is added.
func (g *CausalGraph) Subgraph(keep DTRangeList) *CausalGraph {
	out := NewCausalGraph()
	// keep is in descending order (as produced by Diff/FindConflicting); we
	// need ascending order to replay forward.
	ranges := make([]DTRange, len(keep))
	for i, r := range keep {
		ranges[len(keep)-1-i] = r
	}

	remap := make(map[LV]LV, 0)
	mapParents := func(parents Frontier) Frontier {
		var out Frontier
		for _, p := range parents {
			if p == ROOT {
				continue
			}
			if np, ok := remap[p]; ok {
				out = append(out, np)
			}
		}
		sortFrontier(out)
		return out
	}

	for _, r := range ranges {
		for lv := r.Start; lv < r.End; lv++ {
			e, offset := g.entries.FindPacked(int(lv))
			parents := mapParents(e.parentAt(offset))
			span := out.Append(parents, 1)
			remap[lv] = span.Start
		}
	}
	return out
}
