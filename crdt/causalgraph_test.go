package crdt

import (
	"reflect"
	"testing"
)

// fancyGraph builds the same causal DAG as diamond-types' fancy_parents()
// fixture:
//
//	0,1,2   3,4,5
//	   \   /  |
//	   6,7,8  |
//	      \   |
//	      9,10
//
// with 6,7,8's parents {1,4} and 9,10's parents {2,8}.
func fancyGraph(t *testing.T) *CausalGraph {
	t.Helper()
	g := NewCausalGraph()
	if got := g.Append(nil, 3); got != (DTRange{0, 3}) {
		t.Fatalf("entry0 = %v", got)
	}
	if got := g.Append(nil, 3); got != (DTRange{3, 6}) {
		t.Fatalf("entry1 = %v", got)
	}
	if got := g.Append(Frontier{1, 4}, 3); got != (DTRange{6, 9}) {
		t.Fatalf("entry2 = %v", got)
	}
	if got := g.Append(Frontier{2, 8}, 2); got != (DTRange{9, 11}) {
		t.Fatalf("entry3 = %v", got)
	}
	return g
}

func TestVersionContainsTimeFancy(t *testing.T) {
	g := fancyGraph(t)
	cases := []struct {
		frontier Frontier
		target   LV
		want     bool
	}{
		{nil, ROOT, true},
		{Frontier{0}, 0, true},
		{Frontier{0}, ROOT, true},
		{Frontier{2}, 0, true},
		{Frontier{2}, 1, true},
		{Frontier{2}, 2, true},
		{Frontier{0}, 1, false},
		{Frontier{1}, 2, false},
		{Frontier{8}, 0, true},
		{Frontier{8}, 1, true},
		{Frontier{8}, 2, false},
		{Frontier{8}, 5, false},
		{Frontier{1, 4}, 0, true},
		{Frontier{1, 4}, 1, true},
		{Frontier{1, 4}, 2, false},
		{Frontier{1, 4}, 5, false},
		{Frontier{9}, 2, true},
		{Frontier{9}, 1, true},
		{Frontier{9}, 0, true},
	}
	for _, c := range cases {
		if got := g.VersionContainsTime(c.frontier, c.target); got != c.want {
			t.Errorf("VersionContainsTime(%v, %d) = %v, want %v", c.frontier, c.target, got, c.want)
		}
	}
}

func dtr(pairs ...LV) DTRangeList {
	out := make(DTRangeList, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, DTRange{pairs[i], pairs[i+1]})
	}
	return out
}

func TestDiffFlatTxns(t *testing.T) {
	// 0 |
	// | 1
	// 2
	g := NewCausalGraph()
	g.Append(nil, 1)          // 0
	g.Append(nil, 1)          // 1
	g.Append(Frontier{0}, 1) // 2, parent 0

	onlyA, onlyB := g.Diff(Frontier{2}, nil)
	if !reflect.DeepEqual(onlyA, dtr(2, 3, 0, 1)) {
		t.Errorf("onlyA = %v", onlyA)
	}
	if len(onlyB) != 0 {
		t.Errorf("onlyB = %v, want empty", onlyB)
	}

	onlyA, onlyB = g.Diff(Frontier{2}, Frontier{1})
	if !reflect.DeepEqual(onlyA, dtr(2, 3, 0, 1)) {
		t.Errorf("onlyA = %v", onlyA)
	}
	if !reflect.DeepEqual(onlyB, dtr(1, 2)) {
		t.Errorf("onlyB = %v", onlyB)
	}
}

func TestDiffThreeRootTxns(t *testing.T) {
	g := NewCausalGraph()
	g.Append(nil, 1) // 0
	g.Append(nil, 1) // 1
	g.Append(nil, 1) // 2

	onlyA, onlyB := g.Diff(Frontier{0}, Frontier{0, 1})
	if len(onlyA) != 0 {
		t.Errorf("onlyA = %v, want empty", onlyA)
	}
	if !reflect.DeepEqual(onlyB, dtr(1, 2)) {
		t.Errorf("onlyB = %v", onlyB)
	}

	for _, tm := range []LV{0, 1, 2} {
		onlyA, onlyB = g.Diff(Frontier{tm}, nil)
		if !reflect.DeepEqual(onlyA, dtr(tm, tm+1)) {
			t.Errorf("Diff({%d}, {}) onlyA = %v", tm, onlyA)
		}
		onlyA, onlyB = g.Diff(nil, Frontier{tm})
		if !reflect.DeepEqual(onlyB, dtr(tm, tm+1)) {
			t.Errorf("Diff({}, {%d}) onlyB = %v", tm, onlyB)
		}
	}

	onlyA, onlyB = g.Diff(nil, Frontier{0, 1})
	if !reflect.DeepEqual(onlyB, dtr(0, 2)) {
		t.Errorf("onlyB = %v", onlyB)
	}

	onlyA, onlyB = g.Diff(Frontier{0}, Frontier{1})
	if !reflect.DeepEqual(onlyA, dtr(0, 1)) {
		t.Errorf("onlyA = %v", onlyA)
	}
	if !reflect.DeepEqual(onlyB, dtr(1, 2)) {
		t.Errorf("onlyB = %v", onlyB)
	}
}

func TestDiffShadowBubble(t *testing.T) {
	// 0,1,2   |
	//      \ 3,4
	//       \ /
	//        5
	g := NewCausalGraph()
	g.Append(nil, 3)                   // 0,1,2
	g.Append(nil, 2)                   // 3,4
	g.Append(Frontier{2, 4}, 1)        // 5, parents {2,4}

	onlyA, onlyB := g.Diff(Frontier{4}, Frontier{5})
	if len(onlyA) != 0 {
		t.Errorf("onlyA = %v, want empty", onlyA)
	}
	if !reflect.DeepEqual(onlyB, dtr(5, 6, 0, 3)) {
		t.Errorf("onlyB = %v", onlyB)
	}

	onlyA, onlyB = g.Diff(Frontier{4}, nil)
	if !reflect.DeepEqual(onlyA, dtr(3, 5)) {
		t.Errorf("onlyA = %v", onlyA)
	}
	if len(onlyB) != 0 {
		t.Errorf("onlyB = %v, want empty", onlyB)
	}
}

func TestDiffCommonBranchIsOrdered(t *testing.T) {
	// 0 1
	// |x|
	// 2 3
	g := NewCausalGraph()
	g.Append(nil, 1)                   // 0
	g.Append(nil, 1)                   // 1
	g.Append(Frontier{0, 1}, 1)        // 2
	g.Append(Frontier{0, 1}, 1)        // 3

	if g.VersionContainsTime(Frontier{2}, 3) {
		t.Errorf("2 should not contain 3")
	}
	if g.VersionContainsTime(Frontier{3}, 2) {
		t.Errorf("3 should not contain 2")
	}

	onlyA, onlyB := g.Diff(Frontier{2}, Frontier{3})
	if !reflect.DeepEqual(onlyA, dtr(2, 3)) {
		t.Errorf("onlyA = %v", onlyA)
	}
	if !reflect.DeepEqual(onlyB, dtr(3, 4)) {
		t.Errorf("onlyB = %v", onlyB)
	}
}

func TestFindDominators(t *testing.T) {
	g := fancyGraph(t)
	got := g.FindDominators([]LV{1, 4})
	want := Frontier{1, 4}
	if !got.Equal(want) {
		t.Errorf("FindDominators({1,4}) = %v, want %v (concurrent, both should survive)", got, want)
	}
	got = g.FindDominators([]LV{2, 8})
	// 2 and 8 are concurrent (8's ancestry is {0,1,3,4,6,7,8}, excluding 2),
	// exactly as fancy_parents' own entry3 uses {2,8} as its parent frontier.
	if !got.Equal(Frontier{2, 8}) {
		t.Errorf("FindDominators({2,8}) = %v, want {2,8}", got)
	}
	got = g.FindDominators([]LV{1, 8})
	// 1 IS an ancestor of 8 (via 8's parent 1), so only 8 survives.
	if !got.Equal(Frontier{8}) {
		t.Errorf("FindDominators({1,8}) = %v, want {8}", got)
	}
}
