package crdt

// +-------------------------------+
// | F. YATA insertion integration |
// +-------------------------------+
//
// Decides the document Cursor a newly created (not yet placed) item run
// should occupy, given the origin_left/origin_right LVs it was created
// against. Concurrent inserts that share both origins are ordered by a
// creator-id tie-break: of two items with identical origins, the one with
// the smaller (agent, seq) id sorts first. Any total order here would keep
// replicas convergent; this is the one spec.md §4.F names, so it's the one
// every replica applies.

// ItemID identifies an item's creator, used only to break ties between
// concurrent insertions sharing the same origin_left and origin_right.
type ItemID struct {
	Agent string
	Seq   int
}

// Less reports whether a sorts before b under the tie-break order.
func (a ItemID) Less(b ItemID) bool {
	if a.Agent != b.Agent {
		return a.Agent < b.Agent
	}
	return a.Seq < b.Seq
}

// IDResolver maps the LV an item run starts at to the ItemID of its
// creator.
type IDResolver func(lv LV) ItemID

// idxOf resolves an origin LV to its owning ContentTree slice index, or
// sentinel if the origin is ROOT (document start or, for origin_right,
// "unbounded").
func idxOf(marker *MarkerTree, lv LV, sentinel int) int {
	if lv == ROOT {
		return sentinel
	}
	idx, ok := marker.IndexOf(lv)
	if !ok {
		panic("crdt: YATA integration: origin LV not present in marker tree")
	}
	return idx
}

// IntegratePosition runs the YATA integration algorithm to find the
// document position a new item should occupy.
//
// Time complexity: O(items strictly between origin_left and origin_right).
func IntegratePosition(tree *ContentTree, marker *MarkerTree, originLeft, originRight LV, newID ItemID, resolveID IDResolver) Cursor {
	// An origin can sit in the middle of a merged run; split there first so
	// the run-by-run scan below starts right after origin_left and stops
	// right before origin_right.
	if originLeft != ROOT {
		idx := idxOf(marker, originLeft, -1)
		tree.splitAt(Cursor{idx, int(originLeft-tree.items[idx].LVStart) + 1}, marker)
	}
	if originRight != ROOT {
		idx := idxOf(marker, originRight, len(tree.items))
		tree.splitAt(Cursor{idx, int(originRight - tree.items[idx].LVStart)}, marker)
	}
	leftIdx := idxOf(marker, originLeft, -1)
	rightIdx := idxOf(marker, originRight, len(tree.items))

	dest := leftIdx + 1
	scanning := false

scan:
	for i := leftIdx + 1; i < len(tree.items) && i != rightIdx; i++ {
		o := tree.items[i]
		oLeftIdx := idxOf(marker, o.OriginLeft, -1)
		oRightIdx := idxOf(marker, o.OriginRight, len(tree.items))

		switch {
		case oLeftIdx < leftIdx:
			// o was created against an earlier left origin than the new
			// item: it's already fully ordered before us. Nothing left of
			// here can be in conflict either, so stop scanning.
			break scan
		case oLeftIdx == leftIdx:
			switch {
			case oRightIdx < rightIdx:
				// o is nested inside a narrower concurrent range; it must
				// sort within that range regardless of our item, so treat
				// it as transparent and keep moving through it.
				scanning = true
			case oRightIdx == rightIdx:
				// True conflict: same origin_left and origin_right. Break
				// the tie by creator id; the smaller id sorts first.
				if newID.Less(resolveID(o.LVStart)) {
					break scan
				}
				scanning = false
			default:
				scanning = false
			}
		default:
			// oLeftIdx > leftIdx: o belongs to a different, already-settled
			// concurrent insertion; leave scanning state untouched.
		}
		if !scanning {
			dest = i + 1
		}
	}
	return Cursor{dest, 0}
}
