package crdt_test

import (
	"testing"

	"github.com/eleriac/textcrdt/crdt"
	"pgregory.net/rapid"
)

// Models a single Engine replica as a slice of chars, subject to random
// LocalInsert/LocalDelete calls, exactly the way the teacher's
// ctree_property_test.go models a CausalTree.
type stateMachine struct {
	e     *crdt.Engine
	chars []rune
}

func (m *stateMachine) Init(t *rapid.T) {
	m.e = crdt.NewEngine("fuzzer")
}

func (m *stateMachine) InsertCharAt(t *rapid.T) {
	ch := rapid.Rune().Draw(t, "ch").(rune)
	i := rapid.IntRange(0, len(m.chars)).Draw(t, "i").(int)

	if _, err := m.e.LocalInsert(i, string(ch)); err != nil {
		t.Fatal("(*stateMachine).InsertCharAt:", err)
	}

	m.chars = append(m.chars[:i], append([]rune{ch}, m.chars[i:]...)...)
}

func (m *stateMachine) DeleteCharAt(t *rapid.T) {
	if len(m.chars) == 0 {
		t.Skip("empty string")
	}
	i := rapid.IntRange(0, len(m.chars)-1).Draw(t, "i").(int)

	if _, err := m.e.LocalDelete(i, 1); err != nil {
		t.Fatal("(*stateMachine).DeleteCharAt:", err)
	}

	copy(m.chars[i:], m.chars[i+1:])
	m.chars = m.chars[:len(m.chars)-1]
}

func (m *stateMachine) Check(t *rapid.T) {
	got := m.e.Text()
	want := string(m.chars)
	if got != want {
		t.Fatalf("content mismatch: want %q but got %q", want, got)
	}
	t.Log("content:", got)
}

func TestEngineSingleReplicaProperty(t *testing.T) {
	rapid.Check(t, rapid.Run(&stateMachine{}))
}

// TestTwoReplicasConvergeUnderRandomEditsAndMerges applies a sequence of
// random single-character edits to one of two replicas, each then streamed
// to the other, exercising
// the fuzz-equivalence property: however the edits and merges are
// interleaved, both replicas must converge to the same text.
func TestTwoReplicasConvergeUnderRandomEditsAndMerges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := crdt.NewEngine("alice")
		b := crdt.NewEngine("bob")
		aKnows, bKnows := crdt.Frontier(nil), crdt.Frontier(nil)

		steps := rapid.IntRange(1, 30).Draw(t, "steps").(int)
		for i := 0; i < steps; i++ {
			which := rapid.IntRange(0, 1).Draw(t, "replica").(int)
			e, other, otherKnown := a, b, &bKnows
			if which == 1 {
				e, other, otherKnown = b, a, &aKnows
			}

			action := rapid.IntRange(0, 2).Draw(t, "action").(int)
			switch action {
			case 0, 1: // insert (weighted over delete)
				ch := rapid.Rune().Draw(t, "ch").(rune)
				pos := rapid.IntRange(0, e.ContentLen()).Draw(t, "pos").(int)
				if _, err := e.LocalInsert(pos, string(ch)); err != nil {
					t.Fatal(err)
				}
			case 2: // delete, if there's anything to delete
				if e.ContentLen() == 0 {
					continue
				}
				pos := rapid.IntRange(0, e.ContentLen()-1).Draw(t, "pos").(int)
				if _, err := e.LocalDelete(pos, 1); err != nil {
					t.Fatal(err)
				}
			}

			// Ship everything e has produced since other last synced.
			ranges := e.VersionsSince(*otherKnown)
			for {
				var txn crdt.RemoteTxn
				var ok bool
				txn, ranges, ok = e.NextRemoteTxnFrom(ranges)
				if !ok {
					break
				}
				if _, err := other.ApplyRemoteBatch(txn.Agent, txn.SeqStart, txn.Parents, txn.Ops); err != nil {
					t.Fatal(err)
				}
			}
			*otherKnown = e.Frontier()
		}

		// Final catch-up pass both ways so both replicas end on the same frontier.
		for _, pair := range []struct {
			src, dst      *crdt.Engine
			dstKnown      *crdt.Frontier
		}{{a, b, &bKnows}, {b, a, &aKnows}} {
			ranges := pair.src.VersionsSince(*pair.dstKnown)
			for {
				var txn crdt.RemoteTxn
				var ok bool
				txn, ranges, ok = pair.src.NextRemoteTxnFrom(ranges)
				if !ok {
					break
				}
				if _, err := pair.dst.ApplyRemoteBatch(txn.Agent, txn.SeqStart, txn.Parents, txn.Ops); err != nil {
					t.Fatal(err)
				}
			}
		}

		if a.Text() != b.Text() {
			t.Fatalf("replicas diverged: alice=%q bob=%q", a.Text(), b.Text())
		}
	})
}
