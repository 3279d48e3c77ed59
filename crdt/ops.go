package crdt

// +------------------------+
// | Original operation log |
// +------------------------+
//
// Every local or remote edit, insert or delete, consumes a fresh LV range in
// the causal graph (component D) and is recorded verbatim here, in LV order,
// before YATA ever decides where it lands in the document. The transformed-
// ops iterator (xform.go) replays this log against the causal graph to
// produce the position-based edit stream component H applies to a branch.
// Grounded on external_txn.rs's RemoteOp::{Ins,Del} split, generalized into
// one splittable Run so it can live in an RLEList like everything else here.

// OpKind distinguishes an insertion run from a deletion run.
type OpKind int

const (
	OpInsert OpKind = iota
	OpDelete
)

func (k OpKind) String() string {
	if k == OpInsert {
		return "insert"
	}
	return "delete"
}

// Op is one contiguous run of same-kind edits, keyed by the LV range it
// occupies in the causal graph (its *own* identity, not the identity of
// whatever it deletes).
type Op struct {
	LVStart LV
	Len_    int
	Kind    OpKind

	// Insert-only fields.
	Content     string
	OriginLeft  LV
	OriginRight LV

	// Delete-only field: the LV range of previously-inserted characters this
	// run removes. Always has the same length as the run itself.
	Target DTRange
}

func (o Op) Length() int { return o.Len_ }
func (o Op) Start() int  { return int(o.LVStart) }

func (o Op) CanAppend(next Op) bool {
	if o.Kind != next.Kind || o.LVStart+LV(o.Len_) != next.LVStart {
		return false
	}
	switch o.Kind {
	case OpInsert:
		return next.OriginLeft == o.LVStart+LV(o.Len_)-1
	default:
		return false
	}
}

func (o Op) Append(next Op) Op {
	o.Len_ += next.Len_
	switch o.Kind {
	case OpInsert:
		o.Content += next.Content
		o.OriginRight = next.OriginRight
	default:
		o.Target.End = next.Target.End
	}
	return o
}

func (o Op) Truncate(offset int) (head, tail Op) {
	head = o
	head.Len_ = offset
	tail = o
	tail.LVStart = o.LVStart + LV(offset)
	tail.Len_ = o.Len_ - offset
	switch o.Kind {
	case OpInsert:
		runes := []rune(o.Content)
		head.Content = string(runes[:offset])
		head.OriginRight = o.LVStart + LV(offset)
		tail.Content = string(runes[offset:])
		tail.OriginLeft = o.LVStart + LV(offset) - 1
	default:
		head.Target = DTRange{o.Target.Start, o.Target.Start + LV(offset)}
		tail.Target = DTRange{o.Target.Start + LV(offset), o.Target.End}
	}
	return head, tail
}

// OpLog is the full history of edits, in LV order.
type OpLog struct {
	ops RLEList[Op]
}

// NewOpLog returns an empty op log.
func NewOpLog() *OpLog { return &OpLog{} }

// Push appends an op run, merging with the previous run when possible.
func (l *OpLog) Push(op Op) { l.ops.Push(op) }

// At returns the op run covering lv and lv's offset within it.
func (l *OpLog) At(lv LV) (Op, int, bool) { return l.ops.Find(int(lv)) }

// Len returns the number of (possibly merged) op runs recorded.
func (l *OpLog) Len() int { return l.ops.Len() }

// Item returns the i-th op run.
func (l *OpLog) Item(i int) Op { return l.ops.Item(i) }
