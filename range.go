package btree

//============================================= Range Queries


// find returns an iterator at the first entry equal to key, or End()
// if no such entry exists.
func (t *tree) find(key []byte) (*Iterator, error) {
	it, err := t.lowerBound(key)
	if err != nil {
		return nil, err
	}
	if !it.Valid() {
		return it, nil
	}
	k, err := it.Key()
	if err != nil {
		return nil, err
	}
	if t.cfg.Compare(k, key) != 0 {
		it.Close()
		return endIterator(t), nil
	}
	return it, nil
}

// lowerBound returns an iterator at the first entry with key >= target.
// It descends to the leftmost child that can hold key (the first
// separator >= key), since a non-unique tree may keep entries equal to
// a separator on its left side.
func (t *tree) lowerBound(key []byte) (*Iterator, error) {
	id := t.hdr.RootNodeID
	for level := t.hdr.RootLevel; level > 0; level-- {
		h, err := t.bm.Pin(id)
		if err != nil {
			return nil, err
		}
		id = h.Node().children[t.leafLowerBound(h.Node(), key)]
		h.Unpin()
	}

	leaf, err := t.bm.Pin(id)
	if err != nil {
		return nil, err
	}

	idx := t.leafLowerBound(leaf.Node(), key)
	return t.iteratorAt(leaf, idx)
}

// upperBound returns an iterator at the first entry with key > target.
func (t *tree) upperBound(key []byte) (*Iterator, error) {
	_, leaf, err := t.descend(key)
	if err != nil {
		return nil, err
	}

	idx := t.leafUpperBound(leaf.Node(), key)
	return t.iteratorAt(leaf, idx)
}

// iteratorAt wraps (leaf, idx) into an Iterator, crossing into the
// next leaf (or End()) if idx fell off the end of leaf during search.
func (t *tree) iteratorAt(leaf *Handle, idx int) (*Iterator, error) {
	if idx < len(leaf.Node().keys) {
		return &Iterator{t: t, leaf: leaf, idx: idx}, nil
	}

	next := leaf.Node().next
	leaf.Unpin()

	if next == noNodeID {
		return endIterator(t), nil
	}

	h, err := t.bm.Pin(next)
	if err != nil {
		return nil, err
	}
	if len(h.Node().keys) == 0 {
		h.Unpin()
		return endIterator(t), nil
	}
	return &Iterator{t: t, leaf: h, idx: 0}, nil
}

// equalRange returns [lowerBound(key), upperBound(key)), the FIFO-ordered
// run of every entry equal to key (spec.md's equal_range contract).
func (t *tree) equalRange(key []byte) (*Iterator, *Iterator, error) {
	lo, err := t.lowerBound(key)
	if err != nil {
		return nil, nil, err
	}
	hi, err := t.upperBound(key)
	if err != nil {
		lo.Close()
		return nil, nil, err
	}
	return lo, hi, nil
}

// count returns how many entries equal key without materializing the range.
func (t *tree) count(key []byte) (uint64, error) {
	lo, hi, err := t.equalRange(key)
	if err != nil {
		return 0, err
	}
	defer lo.Close()
	defer hi.Close()

	var n uint64
	for !lo.Equal(hi) {
		n++
		if err := lo.Next(); err != nil {
			return n, err
		}
	}
	return n, nil
}
