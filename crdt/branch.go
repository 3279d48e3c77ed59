package crdt

// +------------------------------+
// | H. Branch materializer       |
// +------------------------------+
//
// Applies a stream of XfOp edits to an external text buffer. Grounded on
// list/merge.rs's ListBranch.merge, which folds BaseMoved/
// DeleteAlreadyHappened results into a rope by calling into the host
// text structure rather than owning one itself -- this engine is no
// different, taking a TextHandle instead of assuming any particular string
// representation.

// TextHandle is anything that can receive positional edits: a rope, a
// gap buffer, a plain Go string wrapper, a text-editor's own document
// model. Positions are counts of runes already applied to the handle, not
// bytes.
type TextHandle interface {
	InsertAt(pos int, content string)
	RemoveAt(pos int, count int)
}

// StringHandle is the simplest TextHandle: an in-memory string, useful for
// tests and for the REPL demo. Not suited to large documents --
// every edit is O(len(Text)).
type StringHandle struct {
	Text []rune
}

// NewStringHandle returns an empty StringHandle.
func NewStringHandle() *StringHandle { return &StringHandle{} }

func (h *StringHandle) InsertAt(pos int, content string) {
	r := []rune(content)
	out := make([]rune, 0, len(h.Text)+len(r))
	out = append(out, h.Text[:pos]...)
	out = append(out, r...)
	out = append(out, h.Text[pos:]...)
	h.Text = out
}

func (h *StringHandle) RemoveAt(pos int, count int) {
	h.Text = append(h.Text[:pos], h.Text[pos+count:]...)
}

func (h *StringHandle) String() string { return string(h.Text) }

// MergeIntoBranch replays every op between from and the engine's current
// frontier onto handle, which must currently reflect the document exactly
// as of `from`. Double-deleted ranges are reported to handle as ordinary
// removals only once -- once flagged as DoubleDelete, the character was
// already removed by whichever op got there first in this handle's
// history, so applying it again would remove live content by mistake.
func MergeIntoBranch(cg *CausalGraph, log *OpLog, tree *ContentTree, marker *MarkerTree, deletes *DeleteLog, from Frontier, handle TextHandle) {
	IterXfOperations(cg, log, tree, marker, deletes, from, frontierOf(latestLVs(cg)...), func(op XfOp) {
		switch op.Kind {
		case OpInsert:
			handle.InsertAt(op.Pos, op.Content)
		case OpDelete:
			if op.DoubleDelete {
				return
			}
			handle.RemoveAt(op.Pos, op.Len)
		}
	})
}

// latestLVs returns every LV known to the graph that has no children,
// i.e. the graph's current frontier.
func latestLVs(cg *CausalGraph) []LV {
	entries := cg.Entries()
	isParent := make(map[LV]bool)
	for _, e := range entries {
		for _, p := range e.Parents {
			isParent[p] = true
		}
	}
	var tips []LV
	for _, e := range entries {
		if last := e.Span.Last(); !isParent[last] {
			tips = append(tips, last)
		}
	}
	return tips
}
