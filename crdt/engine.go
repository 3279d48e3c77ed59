package crdt

// +------------------------+
// | Engine (public API)    |
// +------------------------+
//
// Engine owns one replica's full edit history and the document state
// derived from it, wiring together every component: the causal graph (D),
// agent assignment (E), the content tree and marker tree (B, C), the
// original op log, the delete log, YATA integration (F), and the
// transformed-ops replay used to bring external branches up to date (G, H).
//
// Wire-level concerns -- how a RemoteOp batch reaches this replica, how
// agent names map to network identities -- are out of scope (spec.md's
// Non-goals exclude a transport layer); ApplyRemoteBatch takes already-
// deserialized operations addressed by LV-space origins, the same shape
// external_txn.rs's RemoteTxn is translated into before being fed to
// diamond-types' internal merge routine.
type Engine struct {
	cg       *CausalGraph
	agents   *AgentAssignment
	log      *OpLog
	tree     *ContentTree
	marker   *MarkerTree
	deletes  *DeleteLog
	frontier Frontier

	localAgent     AgentID
	localAgentName string
}

// NewEngine returns a fresh, empty replica editing as localAgentName.
func NewEngine(localAgentName string) *Engine {
	agents := NewAgentAssignment()
	local := agents.GetOrCreateAgent(localAgentName)
	return &Engine{
		cg:             NewCausalGraph(),
		agents:         agents,
		log:            NewOpLog(),
		tree:           NewContentTree(),
		marker:         NewMarkerTree(),
		deletes:        NewDeleteLog(),
		localAgent:     local,
		localAgentName: localAgentName,
	}
}

// GetOrCreateAgent returns the AgentID for name, registering it if new.
// Needed before attributing a remote batch to an agent this replica hasn't
// seen yet.
func (e *Engine) GetOrCreateAgent(name string) AgentID { return e.agents.GetOrCreateAgent(name) }

// Frontier returns the replica's current frontier (a copy).
func (e *Engine) Frontier() Frontier { return e.frontier.Clone() }

// ContentLen returns the document's current visible length, in runes.
func (e *Engine) ContentLen() int { return e.tree.ContentLen() }

// Text materializes the full current document by replaying every op from
// ROOT. Convenience wrapper over MergeIntoBranch for small documents and
// tests; production callers should keep a persistent TextHandle and use
// MergeIntoBranch incrementally instead.
func (e *Engine) Text() string {
	h := NewStringHandle()
	MergeIntoBranch(e.cg, e.log, e.tree, e.marker, e.deletes, nil, h)
	return h.String()
}

func (e *Engine) resolveID(lv LV) ItemID {
	agent, seq, _, ok := e.agents.LVToAgentSeq(lv, 1)
	if !ok {
		panic("crdt: resolveID: LV has no recorded agent assignment")
	}
	return ItemID{Agent: e.agents.AgentName(agent), Seq: seq}
}

// LocalInsert inserts content at visible position pos, authored by this
// replica's local agent, and returns the LV range the new characters were
// assigned.
func (e *Engine) LocalInsert(pos int, content string) (DTRange, error) {
	if pos < 0 || pos > e.tree.ContentLen() {
		return DTRange{}, wrapf("crdt: LocalInsert: %w", ErrOutOfBounds)
	}
	if content == "" {
		return DTRange{}, nil
	}
	runes := []rune(content)
	n := len(runes)

	cursor := e.tree.AtContentPos(pos)
	left, right, boundary := e.tree.BoundaryOrigins(cursor, e.marker)

	seq := e.agents.NextSeq(e.localAgent)
	span := e.cg.Append(e.frontier, n)
	e.agents.Assign(e.localAgent, seq, span.Start, n)

	e.log.Push(Op{LVStart: span.Start, Len_: n, Kind: OpInsert, Content: content, OriginLeft: left, OriginRight: right})
	e.tree.Insert(boundary, YjsSpan{LVStart: span.Start, Len: n, OriginLeft: left, OriginRight: right}, e.marker)

	_ = runes
	e.frontier = e.cg.VersionUnion(e.frontier, Frontier{span.Last()})
	return span, nil
}

// LocalDelete removes the n visible characters starting at pos, authored by
// this replica's local agent, and returns the LV range assigned to the
// delete op itself (not the LVs it deleted).
func (e *Engine) LocalDelete(pos int, n int) (DTRange, error) {
	if n == 0 {
		return DTRange{}, nil
	}
	if pos < 0 || pos+n > e.tree.ContentLen() {
		return DTRange{}, wrapf("crdt: LocalDelete: %w", ErrOutOfBounds)
	}

	cursor := e.tree.AtContentPos(pos)
	_, ok := e.tree.GetItem(cursor)
	if !ok {
		return DTRange{}, wrapf("crdt: LocalDelete: %w", ErrOutOfBounds)
	}

	seq := e.agents.NextSeq(e.localAgent)
	span := e.cg.Append(e.frontier, n)
	e.agents.Assign(e.localAgent, seq, span.Start, n)

	newlyDeleted := e.tree.LocalDeactivate(cursor, n, e.marker)
	ranges := make([]DeactivatedRange, len(newlyDeleted))
	for i, r := range newlyDeleted {
		ranges[i] = DeactivatedRange{Range: r}
	}
	e.deletes.Record(span.Start, ranges)
	lv := span.Start
	for _, r := range newlyDeleted {
		e.log.Push(Op{LVStart: lv, Len_: r.Len(), Kind: OpDelete, Target: r})
		lv += LV(r.Len())
	}

	e.frontier = e.cg.VersionUnion(e.frontier, Frontier{span.Last()})
	return span, nil
}

// RemoteOp is one already-causally-ordered op within a remote batch: an
// insert with LV-space origins, or a delete naming the LV range it targets.
type RemoteOp struct {
	Kind        OpKind
	Content     string
	OriginLeft  LV
	OriginRight LV
	Target      DTRange
}

// length returns how many LVs this op consumes.
func (r RemoteOp) length() int {
	if r.Kind == OpInsert {
		return len([]rune(r.Content))
	}
	return r.Target.Len()
}

// ApplyRemoteBatch merges a contiguous run of ops from agentName, starting
// at seqStart, that this replica created against parents. parents and every
// origin/target LV must already be expressed in this replica's own LV
// space (translating remote ids into local LVs is the caller's job;
// VersionsSince and NextRemoteTxnFrom do not do it, they export the sending
// replica's own LVs unchanged).
func (e *Engine) ApplyRemoteBatch(agentName string, seqStart int, parents Frontier, ops []RemoteOp) (DTRange, error) {
	for _, p := range parents {
		if p != ROOT && p >= e.cg.NextLV() {
			return DTRange{}, wrapf("crdt: ApplyRemoteBatch: %w", ErrMissingParent)
		}
	}
	agent := e.agents.GetOrCreateAgent(agentName)
	if expected := e.agents.NextSeq(agent); seqStart != expected {
		return DTRange{}, wrapf("crdt: ApplyRemoteBatch: %w", ErrMissingSeq)
	}

	total := 0
	for _, op := range ops {
		total += op.length()
	}
	if total == 0 {
		return DTRange{}, nil
	}

	span := e.cg.Append(parents, total)
	e.agents.Assign(agent, seqStart, span.Start, total)

	lv := span.Start
	for i, op := range ops {
		n := op.length()
		seq := seqStart
		for j := 0; j < i; j++ {
			seq += ops[j].length()
		}
		switch op.Kind {
		case OpInsert:
			cursor := IntegratePosition(e.tree, e.marker, op.OriginLeft, op.OriginRight, ItemID{Agent: agentName, Seq: seq}, e.resolveID)
			e.tree.Insert(cursor, YjsSpan{LVStart: lv, Len: n, OriginLeft: op.OriginLeft, OriginRight: op.OriginRight}, e.marker)
			e.log.Push(Op{LVStart: lv, Len_: n, Kind: OpInsert, Content: op.Content, OriginLeft: op.OriginLeft, OriginRight: op.OriginRight})
		case OpDelete:
			idx, ok := e.marker.IndexOf(op.Target.Start)
			if !ok {
				return DTRange{}, wrapf("crdt: ApplyRemoteBatch: %w", ErrMissingParent)
			}
			cursor := e.tree.AtLV(op.Target.Start, idx)
			ranges := e.tree.RemoteDeactivate(cursor, n, e.marker)
			e.deletes.Record(lv, ranges)
			e.log.Push(Op{LVStart: lv, Len_: n, Kind: OpDelete, Target: op.Target})
		}
		lv += LV(n)
	}

	e.frontier = e.cg.VersionUnion(e.frontier, Frontier{span.Last()})
	return span, nil
}

// VectorClock reports, for every agent this replica has recorded ops from,
// the next seq it expects.
func (e *Engine) VectorClock() []VectorClockEntry { return e.agents.VectorClock() }

// VersionsSince returns the LV ranges this replica has recorded that aren't
// reachable from knownVersion, in ascending LV order -- the data a peer
// needs to catch up from knownVersion to this replica's current frontier.
// Grounded on external_txn.rs's get_versions_since.
func (e *Engine) VersionsSince(knownVersion Frontier) DTRangeList {
	_, onlyB := e.cg.Diff(knownVersion, e.frontier)
	return reverseRanges(onlyB)
}

// RemoteTxn is one exportable transaction: a contiguous run of ops
// authored by a single agent, in the shape ApplyRemoteBatch takes. Its
// parents, origins and targets are the exporting replica's own LVs, so they
// are valid for a peer only where the peer's LV numbering matches the
// exporter's. Grounded on external_txn.rs's RemoteTxn.
type RemoteTxn struct {
	Agent    string
	SeqStart int
	Parents  Frontier
	Ops      []RemoteOp
}

// NextRemoteTxnFrom consumes the first transaction's worth of LVs from the
// front of ranges (as returned by VersionsSince, ascending) and returns it
// as a RemoteTxn ready to ship to a peer, along with the remaining ranges.
// Splits at per-agent run boundaries the same way AgentAssignment's own
// table is run-length encoded, so a single multi-agent range is streamed
// out one agent's contiguous seq-run at a time. Returns ok=false once
// ranges is empty.
func (e *Engine) NextRemoteTxnFrom(ranges DTRangeList) (RemoteTxn, DTRangeList, bool) {
	if len(ranges) == 0 {
		return RemoteTxn{}, ranges, false
	}
	r := ranges[0]
	lv := r.Start

	agent, seq, agentLen, ok := e.agents.LVToAgentSeq(lv, int(r.End-lv))
	if !ok {
		panic("crdt: NextRemoteTxnFrom: LV has no recorded agent assignment")
	}
	end := lv + LV(agentLen)

	txn := RemoteTxn{
		Agent:    e.agents.AgentName(agent),
		SeqStart: seq,
		Parents:  e.cg.ParentsAt(lv),
	}
	for cur := lv; cur < end; {
		op, offset, ok := e.log.At(cur)
		if !ok {
			panic("crdt: NextRemoteTxnFrom: LV has no recorded op")
		}
		opLen := op.Length() - offset
		if remain := int(end - cur); opLen > remain {
			opLen = remain
		}
		switch op.Kind {
		case OpInsert:
			runes := []rune(op.Content)
			originLeft := op.OriginLeft
			if offset > 0 {
				originLeft = op.LVStart + LV(offset) - 1
			}
			txn.Ops = append(txn.Ops, RemoteOp{
				Kind:        OpInsert,
				Content:     string(runes[offset : offset+opLen]),
				OriginLeft:  originLeft,
				OriginRight: op.OriginRight,
			})
		case OpDelete:
			txn.Ops = append(txn.Ops, RemoteOp{
				Kind:   OpDelete,
				Target: DTRange{op.Target.Start + LV(offset), op.Target.Start + LV(offset+opLen)},
			})
		}
		cur += LV(opLen)
	}

	remaining := append(DTRangeList{}, ranges[1:]...)
	if end < r.End {
		remaining = append(DTRangeList{{end, r.End}}, remaining...)
	}
	return txn, remaining, true
}

// MergeIntoBranch brings handle, which must currently reflect the document
// exactly as of `from`, up to this replica's current frontier.
func (e *Engine) MergeIntoBranch(from Frontier, handle TextHandle) {
	MergeIntoBranch(e.cg, e.log, e.tree, e.marker, e.deletes, from, handle)
}

// DoubleDeleteCount reports how many characters have been targeted by more
// than one concurrent delete over this replica's whole history.
func (e *Engine) DoubleDeleteCount() int { return e.deletes.DoubleDeleteCount() }
