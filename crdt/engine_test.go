package crdt_test

import (
	"testing"

	"github.com/eleriac/textcrdt/crdt"
)

func TestEngineLocalInsertDelete(t *testing.T) {
	e := crdt.NewEngine("alice")

	if _, err := e.LocalInsert(0, "Hello"); err != nil {
		t.Fatalf("LocalInsert: %v", err)
	}
	if got, want := e.Text(), "Hello"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}

	if _, err := e.LocalInsert(5, ", world"); err != nil {
		t.Fatalf("LocalInsert: %v", err)
	}
	if got, want := e.Text(), "Hello, world"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}

	if _, err := e.LocalDelete(5, 7); err != nil {
		t.Fatalf("LocalDelete: %v", err)
	}
	if got, want := e.Text(), "Hello"; got != want {
		t.Fatalf("Text() after delete = %q, want %q", got, want)
	}
}

func TestEngineLocalInsertOutOfBounds(t *testing.T) {
	e := crdt.NewEngine("alice")
	if _, err := e.LocalInsert(1, "x"); err == nil {
		t.Fatalf("want ErrOutOfBounds, got nil")
	}
}

// remoteBatch captures everything a host needs to replay src's ops
// (already applied to src) against another replica: the agent name, the
// seq src assigned its own ops starting from, the causal parents, and the
// ops themselves, addressed by src's own LV space (which happens to equal
// the recipient's LV space only because these tests build batches by hand;
// a real transport would translate via (agent, seq) ids instead).
type remoteBatch struct {
	agent    string
	seqStart int
	parents  crdt.Frontier
	ops      []crdt.RemoteOp
}

func insertBatch(agent string, seqStart int, parents crdt.Frontier, originLeft, originRight crdt.LV, content string) remoteBatch {
	return remoteBatch{agent, seqStart, parents, []crdt.RemoteOp{
		{Kind: crdt.OpInsert, Content: content, OriginLeft: originLeft, OriginRight: originRight},
	}}
}

func apply(t *testing.T, e *crdt.Engine, b remoteBatch) {
	t.Helper()
	if _, err := e.ApplyRemoteBatch(b.agent, b.seqStart, b.parents, b.ops); err != nil {
		t.Fatalf("ApplyRemoteBatch(%s): %v", b.agent, err)
	}
}

// TestConcurrentInsertConvergesRegardlessOfMergeOrder is spec.md's
// concurrent-insert-with-tie-break scenario: two replicas both append a
// character right after a shared "H", then merge each other's op. Every
// replica must land on the same final text no matter which side merges
// into which.
func TestConcurrentInsertConvergesRegardlessOfMergeOrder(t *testing.T) {
	a := crdt.NewEngine("alice")
	if _, err := a.LocalInsert(0, "H"); err != nil {
		t.Fatal(err)
	}

	b := crdt.NewEngine("bob")
	apply(t, b, insertBatch("alice", 0, nil, crdt.ROOT, crdt.ROOT, "H"))

	if _, err := a.LocalInsert(1, "i"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LocalInsert(1, "o"); err != nil {
		t.Fatal(err)
	}

	// Merge bob's 'o' into alice.
	apply(t, a, insertBatch("bob", 0, crdt.Frontier{0}, 0, crdt.ROOT, "o"))
	// Merge alice's 'i' into bob.
	apply(t, b, insertBatch("alice", 1, crdt.Frontier{0}, 0, crdt.ROOT, "i"))

	if a.Text() != b.Text() {
		t.Fatalf("replicas diverged: alice=%q bob=%q", a.Text(), b.Text())
	}
	if got, want := a.Text(), "Hio"; got != want {
		t.Fatalf("Text() = %q, want %q (alice's smaller agent name sorts first)", got, want)
	}
}

// TestDeleteDuringConcurrentInsertKeepsTheInsertedChar covers the case
// where one replica deletes a character while another concurrently inserts
// right next to it: the insertion must survive the merge.
func TestDeleteDuringConcurrentInsertKeepsTheInsertedChar(t *testing.T) {
	a := crdt.NewEngine("alice")
	if _, err := a.LocalInsert(0, "ac"); err != nil {
		t.Fatal(err)
	}
	b := crdt.NewEngine("bob")
	apply(t, b, insertBatch("alice", 0, nil, crdt.ROOT, crdt.ROOT, "ac"))

	// Bob inserts 'b' between 'a' (LV0) and 'c' (LV1).
	if _, err := b.LocalInsert(1, "b"); err != nil {
		t.Fatal(err)
	}
	// Alice concurrently deletes 'c' (LV1).
	if _, err := a.LocalDelete(1, 1); err != nil {
		t.Fatal(err)
	}

	apply(t, a, insertBatch("bob", 0, crdt.Frontier{0}, 0, 1, "b"))
	if got, want := a.Text(), "ab"; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestDoubleDeleteCounter(t *testing.T) {
	a := crdt.NewEngine("alice")
	if _, err := a.LocalInsert(0, "x"); err != nil {
		t.Fatal(err)
	}
	b := crdt.NewEngine("bob")
	apply(t, b, insertBatch("alice", 0, nil, crdt.ROOT, crdt.ROOT, "x"))

	if _, err := a.LocalDelete(0, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LocalDelete(0, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := a.ApplyRemoteBatch("bob", 0, crdt.Frontier{0}, []crdt.RemoteOp{
		{Kind: crdt.OpDelete, Target: crdt.DTRange{0, 1}},
	}); err != nil {
		t.Fatal(err)
	}
	if got := a.DoubleDeleteCount(); got != 1 {
		t.Fatalf("DoubleDeleteCount() = %d, want 1", got)
	}
	if got, want := a.Text(), ""; got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestMergeIntoBranch(t *testing.T) {
	a := crdt.NewEngine("alice")
	if _, err := a.LocalInsert(0, "ab"); err != nil {
		t.Fatal(err)
	}
	branch := crdt.NewStringHandle()
	branch.InsertAt(0, "ab")
	from := a.Frontier()

	if _, err := a.LocalInsert(2, "c"); err != nil {
		t.Fatal(err)
	}
	a.MergeIntoBranch(from, branch)
	if got, want := branch.String(), "abc"; got != want {
		t.Fatalf("branch = %q, want %q", got, want)
	}
}
