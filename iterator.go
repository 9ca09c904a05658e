package btree

//============================================= Iterator


// Iterator is a bidirectional cursor over the ordered entries. It
// holds one pinned leaf at a time, crossing into the sibling leaf as
// Next/Prev walk off either end of the current one. A zero-value-like
// "end" iterator pins nothing and represents one-past-the-last entry,
// matching End()'s usual half-open-range role.
type Iterator struct {
	t     *tree
	leaf  *Handle
	idx   int
	atEnd bool
}

// Valid reports whether the iterator currently refers to a real entry.
func (it *Iterator) Valid() bool {
	return !it.atEnd && it.leaf != nil
}

// Key returns the current entry's key. Calling it on an invalid
// iterator is a programmer error signaled as InvalidIterator.
func (it *Iterator) Key() ([]byte, error) {
	if !it.Valid() {
		return nil, newErr(InvalidIterator, "key on invalid iterator")
	}
	return it.leaf.Node().keys[it.idx], nil
}

// Value returns the current entry's mapped value, or nil for a
// key-only flavor.
func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, newErr(InvalidIterator, "value on invalid iterator")
	}
	if it.leaf.Node().values == nil {
		return nil, nil
	}
	return it.leaf.Node().values[it.idx], nil
}

// Next advances the iterator by one entry, crossing into the next
// leaf via the sibling chain when the current one is exhausted.
func (it *Iterator) Next() error {
	if it.atEnd {
		return newErr(InvalidIterator, "advance past end")
	}

	n := it.leaf.Node()
	if it.idx+1 < len(n.keys) {
		it.idx++
		return nil
	}

	next := n.next
	it.leaf.Unpin()
	it.leaf = nil

	if next == noNodeID {
		it.atEnd = true
		return nil
	}

	h, err := it.t.bm.Pin(next)
	if err != nil {
		return err
	}
	it.leaf = h
	it.idx = 0
	return nil
}

// Prev moves the iterator back one entry, including off the end
// sentinel onto the tree's last entry.
func (it *Iterator) Prev() error {
	if it.atEnd {
		h, err := it.t.lastLeaf()
		if err != nil {
			return err
		}
		if len(h.Node().keys) == 0 {
			h.Unpin()
			return newErr(InvalidIterator, "decrement begin of empty tree")
		}
		it.leaf = h
		it.idx = len(h.Node().keys) - 1
		it.atEnd = false
		return nil
	}

	if it.idx > 0 {
		it.idx--
		return nil
	}

	prev := it.leaf.Node().prev
	if prev == noNodeID {
		return newErr(InvalidIterator, "decrement begin")
	}

	it.leaf.Unpin()
	h, err := it.t.bm.Pin(prev)
	if err != nil {
		it.leaf = nil
		return err
	}
	it.leaf = h
	it.idx = len(h.Node().keys) - 1
	return nil
}

// Equal compares two iterators by position: both at end, or pinning
// the same leaf at the same index.
func (it *Iterator) Equal(other *Iterator) bool {
	if it.atEnd || other.atEnd {
		return it.atEnd == other.atEnd
	}
	if it.leaf == nil || other.leaf == nil {
		return it.leaf == other.leaf
	}
	return it.leaf.Node().id == other.leaf.Node().id && it.idx == other.idx
}

// Close releases the iterator's pin, if any. Callers must call this
// once they are done with an iterator that did not run to End().
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.leaf.Unpin()
		it.leaf = nil
	}
}

func endIterator(t *tree) *Iterator {
	return &Iterator{t: t, atEnd: true}
}
