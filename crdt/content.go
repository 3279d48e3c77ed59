package crdt

// +---------------------------------+
// | B. ContentTree (item run index) |
// +---------------------------------+
//
// Per spec.md's Open Questions, either an explicit order-statistic B-tree or
// a flat run container satisfies the notify contract; this engine follows
// the teacher's own textual style (CausalTree.Weave: a flat []Atom searched
// and spliced directly, every method carrying a `// Time complexity: O(atoms)`
// comment) and keeps ContentTree as a single ordered slice of YjsSpan runs
// in *document* order (not LV order -- YATA decides document position,
// which is generally unrelated to insertion time). A MarkerTree (markertree.go)
// provides the O(log n) LV -> slice-index lookup the spec calls for.

// YjsSpan is a contiguous run of inserted characters: see spec.md §3 "Item
// run (YJS span)". Len is negative when the run is deactivated (deleted);
// its absolute value is always the character count.
type YjsSpan struct {
	LVStart     LV
	Len         int
	OriginLeft  LV
	OriginRight LV
}

// CharLen returns the number of characters (active or not) in the run.
func (s YjsSpan) CharLen() int {
	if s.Len < 0 {
		return -s.Len
	}
	return s.Len
}

// IsActive reports whether the run is currently visible.
func (s YjsSpan) IsActive() bool { return s.Len > 0 }

// VisibleLen returns the run's contribution to the document's visible
// length.
func (s YjsSpan) VisibleLen() int {
	if s.Len > 0 {
		return s.Len
	}
	return 0
}

// truncate splits the run at offset (0 < offset < CharLen()), preserving
// activation state on both halves. See spec.md §3 "Splittable".
func (s YjsSpan) truncate(offset int) (head, tail YjsSpan) {
	sign := 1
	if s.Len < 0 {
		sign = -1
	}
	head = YjsSpan{LVStart: s.LVStart, Len: sign * offset, OriginLeft: s.OriginLeft, OriginRight: s.OriginRight}
	tail = YjsSpan{
		LVStart:     s.LVStart + LV(offset),
		Len:         sign * (s.CharLen() - offset),
		OriginLeft:  s.LVStart + LV(offset) - 1,
		OriginRight: s.OriginRight,
	}
	return head, tail
}

// canMergeRun reports whether next is a verbatim continuation of s: same
// activation sign, contiguous LVs, and next's origin_left is exactly s's
// last character (the shape produced by typing characters in sequence).
func (s YjsSpan) canMergeRun(next YjsSpan) bool {
	sameSign := (s.Len < 0) == (next.Len < 0)
	return sameSign &&
		s.LVStart+LV(s.CharLen()) == next.LVStart &&
		next.OriginLeft == s.LVStart+LV(s.CharLen())-1
}

func (s YjsSpan) mergeRun(next YjsSpan) YjsSpan {
	sign := 1
	if s.Len < 0 {
		sign = -1
	}
	s.Len = sign * (s.CharLen() + next.CharLen())
	return s
}

// Cursor addresses a specific character slot inside a ContentTree: the
// index-th run, offset characters into it. A cursor with Index == len(items)
// is the document end.
type Cursor struct {
	Index  int
	Offset int
}

// ContentTree holds the document's full run sequence (including tombstones)
// in left-to-right document order.
type ContentTree struct {
	items      []YjsSpan
	contentLen int // sum of max(0, len): visible character count.
	totalLen   int // sum of abs(len): visible + tombstoned character count.
}

// NewContentTree returns an empty content tree.
func NewContentTree() *ContentTree { return &ContentTree{} }

// ContentLen returns the document's current visible length.
func (t *ContentTree) ContentLen() int { return t.contentLen }

// TotalLen returns the document's length including tombstones.
func (t *ContentTree) TotalLen() int { return t.totalLen }

// AtStart returns a cursor at the beginning of the document.
func (t *ContentTree) AtStart() Cursor { return Cursor{0, 0} }

// AtEnd returns a cursor at the end of the document.
func (t *ContentTree) AtEnd() Cursor { return Cursor{len(t.items), 0} }

// AtContentPos descends by visible-character position, skipping tombstones,
// to the cursor addressing the pos-th visible character (or the end, if pos
// equals the document's visible length).
//
// Time complexity: O(runs).
func (t *ContentTree) AtContentPos(pos int) Cursor {
	remaining := pos
	for i, item := range t.items {
		vis := item.VisibleLen()
		if vis == 0 {
			continue
		}
		if remaining < vis {
			return Cursor{i, remaining}
		}
		remaining -= vis
	}
	if remaining != 0 {
		panic("crdt: AtContentPos: position beyond document length")
	}
	return t.AtEnd()
}

// AtLV returns the cursor addressing the character with local version lv,
// given the slice index idx that a MarkerTree lookup already resolved.
func (t *ContentTree) AtLV(lv LV, idx int) Cursor {
	item := t.items[idx]
	return Cursor{idx, int(lv - item.LVStart)}
}

// normalize returns an equivalent cursor with Offset == 0 when possible
// (i.e. when the input cursor sits exactly between two runs already).
func (t *ContentTree) normalize(c Cursor) Cursor {
	if c.Index < len(t.items) && c.Offset == t.items[c.Index].CharLen() {
		return Cursor{c.Index + 1, 0}
	}
	return c
}

// GetItem returns the LV at the cursor, or ok=false at document end.
func (t *ContentTree) GetItem(c Cursor) (LV, bool) {
	c = t.normalize(c)
	if c.Index >= len(t.items) {
		return 0, false
	}
	item := t.items[c.Index]
	return item.LVStart + LV(c.Offset), true
}

// CountPos returns the visible document position of the cursor.
func (t *ContentTree) CountPos(c Cursor) int {
	c = t.normalize(c)
	pos := 0
	for i := 0; i < c.Index; i++ {
		pos += t.items[i].VisibleLen()
	}
	if c.Index < len(t.items) && t.items[c.Index].Len > 0 {
		pos += c.Offset
	}
	return pos
}

// splitAt ensures there's a run boundary exactly at c, splitting the
// straddled run if necessary, and returns the equivalent boundary cursor.
// Notifies owner for the freshly split-off tail.
func (t *ContentTree) splitAt(c Cursor, notifier TreeNotifier) Cursor {
	c = t.normalize(c)
	if c.Offset == 0 {
		return c
	}
	item := t.items[c.Index]
	head, tail := item.truncate(c.Offset)
	t.items[c.Index] = head
	t.spliceInsertPlain(c.Index+1, tail, notifier)
	return Cursor{c.Index + 1, 0}
}

// spliceInsertPlain inserts item at slice index idx, shifting every later
// run's owning index up by one and registering the new run's own LV
// ownership. Never merges -- used for structural splits (splitAt and the
// deactivate paths), where the inserted "item" is a fragment of a run that
// must stay distinct from its neighbor.
func (t *ContentTree) spliceInsertPlain(idx int, item YjsSpan, notifier TreeNotifier) {
	t.items = append(t.items, YjsSpan{})
	copy(t.items[idx+1:], t.items[idx:])
	t.items[idx] = item
	if notifier != nil {
		notifier.ShiftIndexesFrom(idx, +1)
		notifier.SetOwner(DTRange{item.LVStart, item.LVStart + LV(item.CharLen())}, idx)
	}
}

// spliceInsert is spliceInsertPlain, except that if item is a verbatim
// continuation of the preceding run (the shape produced by typing
// characters one at a time, each as its own LocalInsert call), it is merged
// into that run instead of creating a new one, keeping the tree from
// fragmenting into single-character runs under realistic editing patterns.
// Only used for brand-new item insertion (Insert), never for structural
// splits. Returns the index immediately after the inserted content.
func (t *ContentTree) spliceInsert(idx int, item YjsSpan, notifier TreeNotifier) int {
	if idx > 0 && t.items[idx-1].canMergeRun(item) {
		t.items[idx-1] = t.items[idx-1].mergeRun(item)
		if notifier != nil {
			notifier.SetOwner(DTRange{item.LVStart, item.LVStart + LV(item.CharLen())}, idx-1)
		}
		return idx
	}
	t.spliceInsertPlain(idx, item, notifier)
	return idx + 1
}

// Insert splits the tree at cursor if necessary and inserts a brand-new
// item there, returning the cursor just past the inserted item. This is the
// destination B picks; the *decision* of where cursor should be comes from
// the YATA integrator (yata.go).
func (t *ContentTree) Insert(cursor Cursor, item YjsSpan, notifier TreeNotifier) Cursor {
	boundary := t.splitAt(cursor, notifier)
	after := t.spliceInsert(boundary.Index, item, notifier)
	if item.Len > 0 {
		t.contentLen += item.CharLen()
	}
	t.totalLen += item.CharLen()
	return Cursor{after, 0}
}

// LocalDeactivate flips the sign of n *visible* characters starting at
// cursor, splitting runs as needed, and returns the LV ranges it turned
// into tombstones, in document order.
func (t *ContentTree) LocalDeactivate(cursor Cursor, n int, notifier TreeNotifier) []DTRange {
	cur := t.splitAt(cursor, notifier)
	var affected []DTRange
	for n > 0 {
		if cur.Index >= len(t.items) {
			panic("crdt: LocalDeactivate: ran out of document while deleting")
		}
		item := t.items[cur.Index]
		if item.Len <= 0 {
			// Already a tombstone (deleted concurrently); visible budget
			// isn't spent on it, just step over.
			cur.Index++
			continue
		}
		take := item.Len
		if take > n {
			take = n
		}
		if take < item.CharLen() {
			head, tail := item.truncate(take)
			t.items[cur.Index] = head
			t.spliceInsertPlain(cur.Index+1, tail, notifier)
			item = head
		}
		t.items[cur.Index] = YjsSpan{item.LVStart, -item.CharLen(), item.OriginLeft, item.OriginRight}
		affected = append(affected, DTRange{item.LVStart, item.LVStart + LV(item.CharLen())})
		t.contentLen -= item.CharLen()
		n -= item.CharLen()
		cur.Index++
	}
	return affected
}

// DeactivatedRange is one contiguous span a RemoteDeactivate call turned
// into (or found already as) a tombstone, in the document order the call
// walked over it. AlreadyDeleted marks a "double delete": the range was a
// tombstone before this call touched it, reported so the caller can bump
// the double-delete counter instead of mutating content state again.
type DeactivatedRange struct {
	Range          DTRange
	AlreadyDeleted bool
}

// RemoteDeactivate flips the sign of n *total* characters starting at
// cursor (active or already-tombstoned), returning the LV ranges it walked
// over in document order, each tagged with whether it was newly
// deactivated or already a tombstone. Newly- and already-deleted ranges
// can interleave within a single call when a delete range straddles a
// character some other concurrent delete already claimed.
func (t *ContentTree) RemoteDeactivate(cursor Cursor, n int, notifier TreeNotifier) []DeactivatedRange {
	cur := t.splitAt(cursor, notifier)
	var out []DeactivatedRange
	for n > 0 {
		if cur.Index >= len(t.items) {
			panic("crdt: RemoteDeactivate: ran out of document while deleting")
		}
		item := t.items[cur.Index]
		take := item.CharLen()
		if take > n {
			take = n
			head, tail := item.truncate(take)
			t.items[cur.Index] = head
			t.spliceInsertPlain(cur.Index+1, tail, notifier)
			item = head
		}
		rng := DTRange{item.LVStart, item.LVStart + LV(item.CharLen())}
		if item.Len > 0 {
			t.items[cur.Index] = YjsSpan{item.LVStart, -item.CharLen(), item.OriginLeft, item.OriginRight}
			t.contentLen -= item.CharLen()
			out = append(out, DeactivatedRange{rng, false})
		} else {
			out = append(out, DeactivatedRange{rng, true})
		}
		n -= take
		cur.Index++
	}
	return out
}

// BoundaryOrigins returns the origin_left/origin_right a brand-new item
// inserted at cursor should be created with: the LV of the last character
// (active or not) to its left, and the LV of the first character to its
// right, or ROOT at either end of the document.
func (t *ContentTree) BoundaryOrigins(cursor Cursor, notifier TreeNotifier) (left, right LV, boundary Cursor) {
	boundary = t.splitAt(cursor, notifier)
	left = ROOT
	if boundary.Index > 0 {
		prev := t.items[boundary.Index-1]
		left = prev.LVStart + LV(prev.CharLen()) - 1
	}
	right = ROOT
	if boundary.Index < len(t.items) {
		right = t.items[boundary.Index].LVStart
	}
	return left, right, boundary
}

// TreeNotifier is called by ContentTree whenever a mutation changes which
// slice index owns an LV, so a MarkerTree (or any other LV->index index) can
// stay current. See spec.md §4.B's notify contract.
type TreeNotifier interface {
	ShiftIndexesFrom(index int, delta int)
	SetOwner(lvRange DTRange, index int)
}
