package crdt

import "sort"

// +----------------------+
// | RLE run container    |
// +----------------------+
//
// Every RLE container in this package (the causal graph's entries, agent
// assignment tables, the delete log, the marker tree, the original op log)
// is an ordered, gapless-or-sparse sequence of mergeable, splittable runs
// keyed by an integer Start(). Rather than a tagged union of element kinds
// (which the teacher's causal tree avoids too -- see AtomValue's closed
// interface), each container is a concrete instantiation of RLEList for its
// element type: a compile-time interface, not dynamic dispatch.

// Run is the behavior a value must implement to live inside an RLEList.
type Run[T any] interface {
	// Length returns how many keys this run occupies.
	Length() int
	// Start returns the first key this run occupies.
	Start() int
	// CanAppend reports whether next can be merged onto the tail of this run.
	CanAppend(next T) bool
	// Append merges next onto this run, returning the merged run. Only
	// called when CanAppend(next) is true.
	Append(next T) T
	// Truncate splits the run at offset (0 < offset < Length()), returning
	// the head and the tail.
	Truncate(offset int) (head, tail T)
}

// RLEList is an ordered list of mergeable, splittable, binary-searchable
// runs of T.
type RLEList[T Run[T]] struct {
	items []T
}

// Len returns the number of runs (not keys) stored.
func (l *RLEList[T]) Len() int { return len(l.items) }

// Item returns the i-th run.
func (l *RLEList[T]) Item(i int) T { return l.items[i] }

// Items returns the backing slice of runs, in Start() order. Callers must
// not retain it across further mutation of the list.
func (l *RLEList[T]) Items() []T { return l.items }

// Push appends item to the list, merging into the tail run when possible.
func (l *RLEList[T]) Push(item T) {
	if item.Length() == 0 {
		return
	}
	if n := len(l.items); n > 0 {
		last := l.items[n-1]
		if last.CanAppend(item) {
			l.items[n-1] = last.Append(item)
			return
		}
	}
	l.items = append(l.items, item)
}

// search returns the index of the run that would contain key, or the index at
// which such a run would be inserted if none does.
func (l *RLEList[T]) search(key int) int {
	return sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Start()+l.items[i].Length() > key
	})
}

// Find returns the run containing key and key's offset within it.
func (l *RLEList[T]) Find(key int) (item T, offset int, ok bool) {
	i := l.search(key)
	if i >= len(l.items) || key < l.items[i].Start() {
		var zero T
		return zero, 0, false
	}
	return l.items[i], key - l.items[i].Start(), true
}

// FindIndex is like Find but also reports the run's index in the backing
// slice, which callers use to look up or rewrite adjacent runs.
func (l *RLEList[T]) FindIndex(key int) (idx, offset int, ok bool) {
	i := l.search(key)
	if i >= len(l.items) || key < l.items[i].Start() {
		return 0, 0, false
	}
	return i, key - l.items[i].Start(), true
}

// FindPacked is like Find but panics if key isn't covered by any run. Used
// where the caller has already established the key must be present --
// mirrors the teacher's find_packed terminology from the original source.
func (l *RLEList[T]) FindPacked(key int) (T, int) {
	item, offset, ok := l.Find(key)
	if !ok {
		panic("crdt: FindPacked: key not present in RLEList")
	}
	return item, offset
}

// InsertAtSortedPosition inserts item keeping the list sorted by Start(). It
// does not attempt to merge with neighbors. Used where items may arrive
// out of key order: the marker tree's SetOwner and the delete log's Record.
func (l *RLEList[T]) InsertAtSortedPosition(item T) {
	i := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Start() > item.Start()
	})
	l.items = append(l.items, item)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = item
}

// Replace overwrites the run at index i. Used by callers (the causal graph,
// the marker tree) that need to mutate a run's value in place, e.g. to shift
// stored indexes after a content-tree insert.
func (l *RLEList[T]) Replace(i int, item T) { l.items[i] = item }

// DTRangeList is a list of DTRange accumulated in descending order by the
// diff and conflict-finder algorithms (component D), which walk the causal
// graph from the highest LV down. It is not an RLEList because ranges are
// produced back-to-front and merged against the *most recently pushed*
// (i.e. higher) range rather than a sorted tail.
type DTRangeList []DTRange

// PushReversedRLE appends a new (lower) range, merging it into the last
// pushed range when the two are contiguous.
func (l *DTRangeList) PushReversedRLE(r DTRange) {
	if r.IsEmpty() {
		return
	}
	if n := len(*l); n > 0 {
		last := &(*l)[n-1]
		if r.End == last.Start {
			last.Start = r.Start
			return
		}
	}
	*l = append(*l, r)
}
