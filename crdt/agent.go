package crdt

// +----------------------------+
// | E. Agent assignment table  |
// +----------------------------+
//
// Maps between (agent name, per-agent seq) and this replica's LVs. Grounded
// on crdt.CausalTree's Sitemap/Yarns split (teacher's AtomID{Site, Index}),
// generalized from a fixed uint16 site index to an open-ended agent table
// with per-agent RLE runs, matching list/external_txn.rs's RemoteId/
// get_vector_clock/get_versions_since.

// agentSeqRun is one run of a per-agent seq range mapped to a contiguous LV
// range: Run[agentSeqRun] keyed by seq.
type agentSeqRun struct {
	SeqStart int
	LVStart  LV
	Len_     int
}

func (r agentSeqRun) Length() int { return r.Len_ }
func (r agentSeqRun) Start() int  { return r.SeqStart }
func (r agentSeqRun) CanAppend(next agentSeqRun) bool {
	return r.SeqStart+r.Len_ == next.SeqStart && r.LVStart+LV(r.Len_) == next.LVStart
}
func (r agentSeqRun) Append(next agentSeqRun) agentSeqRun {
	r.Len_ += next.Len_
	return r
}
func (r agentSeqRun) Truncate(offset int) (head, tail agentSeqRun) {
	head = agentSeqRun{r.SeqStart, r.LVStart, offset}
	tail = agentSeqRun{r.SeqStart + offset, r.LVStart + LV(offset), r.Len_ - offset}
	return head, tail
}

// lvAgentRun is the inverse table: a run of LVs mapped to a contiguous
// (agent, seq) range. Run[lvAgentRun] keyed by LV.
type lvAgentRun struct {
	LVStart  LV
	Agent    AgentID
	SeqStart int
	Len_     int
}

func (r lvAgentRun) Length() int { return r.Len_ }
func (r lvAgentRun) Start() int  { return int(r.LVStart) }
func (r lvAgentRun) CanAppend(next lvAgentRun) bool {
	return r.LVStart+LV(r.Len_) == next.LVStart && r.Agent == next.Agent && r.SeqStart+r.Len_ == next.SeqStart
}
func (r lvAgentRun) Append(next lvAgentRun) lvAgentRun {
	r.Len_ += next.Len_
	return r
}
func (r lvAgentRun) Truncate(offset int) (head, tail lvAgentRun) {
	head = lvAgentRun{r.LVStart, r.Agent, r.SeqStart, offset}
	tail = lvAgentRun{r.LVStart + LV(offset), r.Agent, r.SeqStart + offset, r.Len_ - offset}
	return head, tail
}

// AgentAssignment owns the per-agent and global (inverse) RLE tables.
type AgentAssignment struct {
	names    []string
	byName   map[string]AgentID
	perAgent []RLEList[agentSeqRun]
	global   RLEList[lvAgentRun]
}

// NewAgentAssignment returns an empty agent table.
func NewAgentAssignment() *AgentAssignment {
	return &AgentAssignment{byName: make(map[string]AgentID)}
}

// GetOrCreateAgent returns the AgentID for name (looked up in a map keyed
// by name), creating a new one if it hasn't been seen before.
func (a *AgentAssignment) GetOrCreateAgent(name string) AgentID {
	if id, ok := a.byName[name]; ok {
		return id
	}
	id := AgentID(len(a.names))
	a.names = append(a.names, name)
	a.byName[name] = id
	a.perAgent = append(a.perAgent, RLEList[agentSeqRun]{})
	return id
}

// AgentName returns the name assigned to id.
func (a *AgentAssignment) AgentName(id AgentID) string { return a.names[id] }

// NextSeq returns the next seq this replica expects from agent.
func (a *AgentAssignment) NextSeq(agent AgentID) int {
	table := &a.perAgent[agent]
	if table.Len() == 0 {
		return 0
	}
	last := table.Item(table.Len() - 1)
	return last.SeqStart + last.Len_
}

// Assign records that agent's [seqStart, seqStart+length) maps to
// [lvStart, lvStart+length), in both the per-agent and global tables.
func (a *AgentAssignment) Assign(agent AgentID, seqStart int, lvStart LV, length int) {
	a.perAgent[agent].Push(agentSeqRun{seqStart, lvStart, length})
	a.global.Push(lvAgentRun{lvStart, agent, seqStart, length})
}

// SeqToLV resolves a single (agent, seq) pair to an LV.
func (a *AgentAssignment) SeqToLV(agent AgentID, seq int) (LV, bool) {
	run, offset, ok := a.perAgent[agent].Find(seq)
	if !ok {
		return 0, false
	}
	return run.LVStart + LV(offset), true
}

// SeqToLVSpan resolves (agent, seq) to an LV and the length of the
// contiguous run available, capped at maxLen.
func (a *AgentAssignment) SeqToLVSpan(agent AgentID, seq int, maxLen int) (LV, int, bool) {
	run, offset, ok := a.perAgent[agent].Find(seq)
	if !ok {
		return 0, 0, false
	}
	avail := run.Len_ - offset
	if avail > maxLen {
		avail = maxLen
	}
	return run.LVStart + LV(offset), avail, true
}

// LVToAgentSeq resolves lv to the (agent, seq) that created it, and the
// length of the contiguous run available from there, capped at maxLen.
func (a *AgentAssignment) LVToAgentSeq(lv LV, maxLen int) (agent AgentID, seq int, length int, ok bool) {
	run, offset, found := a.global.Find(int(lv))
	if !found {
		return 0, 0, 0, false
	}
	avail := run.Len_ - offset
	if avail > maxLen {
		avail = maxLen
	}
	return run.Agent, run.SeqStart + offset, avail, true
}

// VectorClockEntry names the next expected seq for one agent.
type VectorClockEntry struct {
	Agent string
	Seq   int
}

// VectorClock returns the next expected seq for every agent this replica
// has recorded any operations from.
func (a *AgentAssignment) VectorClock() []VectorClockEntry {
	var out []VectorClockEntry
	for id := range a.names {
		n := a.NextSeq(AgentID(id))
		if n == 0 {
			continue
		}
		out = append(out, VectorClockEntry{a.names[id], n})
	}
	return out
}
