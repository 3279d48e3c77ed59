package crdt

import "testing"

func TestContentTreeInsertAndRead(t *testing.T) {
	tree := NewContentTree()
	marker := NewMarkerTree()

	cursor := tree.Insert(tree.AtStart(), YjsSpan{LVStart: 0, Len: 5, OriginLeft: ROOT, OriginRight: ROOT}, marker)
	if tree.ContentLen() != 5 {
		t.Fatalf("ContentLen() = %d, want 5", tree.ContentLen())
	}
	if cursor != (Cursor{1, 0}) {
		t.Fatalf("cursor after insert = %+v", cursor)
	}

	idx, ok := marker.IndexOf(2)
	if !ok || idx != 0 {
		t.Fatalf("marker.IndexOf(2) = %d, %v", idx, ok)
	}

	pos := tree.AtContentPos(3)
	lv, ok := tree.GetItem(pos)
	if !ok || lv != 3 {
		t.Fatalf("GetItem(AtContentPos(3)) = %d, %v, want 3", lv, ok)
	}
}

func TestContentTreeMergesContiguousInserts(t *testing.T) {
	tree := NewContentTree()
	marker := NewMarkerTree()

	// Three separate LocalInsert-shaped calls, each appending one character
	// at the document's end, origin_left chained to the previous char.
	cur := tree.AtStart()
	cur = tree.Insert(cur, YjsSpan{LVStart: 0, Len: 1, OriginLeft: ROOT, OriginRight: ROOT}, marker)
	cur = tree.Insert(cur, YjsSpan{LVStart: 1, Len: 1, OriginLeft: 0, OriginRight: ROOT}, marker)
	tree.Insert(cur, YjsSpan{LVStart: 2, Len: 1, OriginLeft: 1, OriginRight: ROOT}, marker)

	if len(tree.items) != 1 {
		t.Fatalf("want a single merged run, got %d runs: %+v", len(tree.items), tree.items)
	}
	if tree.items[0].CharLen() != 3 {
		t.Fatalf("merged run length = %d, want 3", tree.items[0].CharLen())
	}
	for lv := LV(0); lv < 3; lv++ {
		if idx, ok := marker.IndexOf(lv); !ok || idx != 0 {
			t.Errorf("marker.IndexOf(%d) = %d, %v, want 0, true", lv, idx, ok)
		}
	}
}

func TestContentTreeLocalDeactivateSplitsRun(t *testing.T) {
	tree := NewContentTree()
	marker := NewMarkerTree()
	tree.Insert(tree.AtStart(), YjsSpan{LVStart: 0, Len: 5, OriginLeft: ROOT, OriginRight: ROOT}, marker)

	affected := tree.LocalDeactivate(tree.AtContentPos(1), 2, marker)
	if tree.ContentLen() != 3 {
		t.Fatalf("ContentLen() = %d, want 3", tree.ContentLen())
	}
	if len(affected) != 1 || affected[0] != (DTRange{1, 3}) {
		t.Fatalf("affected = %v, want [[1,3)]", affected)
	}
	if len(tree.items) != 3 {
		t.Fatalf("want 3 runs after splitting a middle deletion, got %d: %+v", len(tree.items), tree.items)
	}
	if tree.items[1].Len >= 0 {
		t.Errorf("middle run should be a tombstone, got %+v", tree.items[1])
	}

	pos := tree.AtContentPos(0)
	lv, _ := tree.GetItem(pos)
	if lv != 0 {
		t.Errorf("position 0 should still map to LV 0, got %d", lv)
	}
	pos = tree.AtContentPos(1)
	lv, _ = tree.GetItem(pos)
	if lv != 3 {
		t.Errorf("position 1 should now map to LV 3 (chars 1,2 deleted), got %d", lv)
	}
}

func TestContentTreeRemoteDeactivateReportsDoubleDelete(t *testing.T) {
	tree := NewContentTree()
	marker := NewMarkerTree()
	tree.Insert(tree.AtStart(), YjsSpan{LVStart: 0, Len: 3, OriginLeft: ROOT, OriginRight: ROOT}, marker)

	idx, _ := marker.IndexOf(0)
	ranges := tree.RemoteDeactivate(tree.AtLV(0, idx), 3, marker)
	if len(ranges) != 1 || ranges[0].AlreadyDeleted {
		t.Fatalf("first delete: ranges=%v", ranges)
	}

	idx, _ = marker.IndexOf(1)
	ranges = tree.RemoteDeactivate(tree.AtLV(1, idx), 1, marker)
	if len(ranges) != 1 || !ranges[0].AlreadyDeleted || ranges[0].Range != (DTRange{1, 2}) {
		t.Fatalf("double delete: ranges=%v", ranges)
	}
}
