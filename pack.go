package btree

//============================================= Bulk Load


// pack replaces the tree's entire contents with sorted, a bottom-up
// bulk build equivalent to repeated Insert but touching each node
// once instead of splitting it as it fills (spec.md P10). sorted must
// already be in key order (and strictly increasing if the flavor is
// unique); callers needing that guarantee should sort first.
func (t *tree) pack(sorted []KeyValue) error {
	if err := t.freeWholeTree(); err != nil {
		return err
	}

	t.hdr.ElementCount = 0
	t.hdr.NodeCount = 0
	t.hdr.LeafNodeCount = 0
	t.hdr.BranchNodeCount = 0

	if len(sorted) == 0 {
		return t.packEmptyRoot()
	}

	leafIDs, leafMins, err := t.packLeaves(sorted)
	if err != nil {
		return err
	}

	level := uint32(0)
	ids, mins := leafIDs, leafMins
	for len(ids) > 1 {
		level++
		ids, mins, err = t.packBranchLevel(ids, mins, level)
		if err != nil {
			return err
		}
	}

	t.hdr.RootNodeID = ids[0]
	t.hdr.RootLevel = level
	t.hdr.ElementCount = uint64(len(sorted))
	return nil
}

// packEmptyRoot gives an emptied tree a single empty leaf root, the
// same shape Open leaves a brand-new file in.
func (t *tree) packEmptyRoot() error {
	root, err := t.bm.PinNew(true, 0)
	if err != nil {
		return err
	}
	t.hdr.RootNodeID = root.Node().id
	t.hdr.RootLevel = 0
	t.hdr.NodeCount = 1
	t.hdr.LeafNodeCount = 1
	root.MarkDirty()
	root.Unpin()
	return nil
}

// packLeaves greedily fills leaves to capacity from sorted, chaining
// them into the sibling list, and returns each leaf's id and its
// minimum key (used as the next level's separators).
func (t *tree) packLeaves(sorted []KeyValue) ([]NodeID, [][]byte, error) {
	var ids []NodeID
	var mins [][]byte
	var prev *Handle
	i := 0

	for i < len(sorted) {
		h, err := t.bm.PinNew(true, 0)
		if err != nil {
			return nil, nil, err
		}
		n := h.Node()

		for i < len(sorted) {
			var value []byte
			if !t.cfg.Flavor.KeyOnly {
				value = sorted[i].Value
			}
			if len(n.keys) > 0 && !leafWouldFit(t.cfg, n, sorted[i].Key, value) {
				break
			}
			n.keys = append(n.keys, sorted[i].Key)
			if !t.cfg.Flavor.KeyOnly {
				n.values = append(n.values, value)
			}
			i++
		}

		if prev != nil {
			prev.Node().next = n.id
			n.prev = prev.Node().id
			prev.MarkDirty()
			prev.Unpin()
		}

		ids = append(ids, n.id)
		mins = append(mins, n.keys[0])
		h.MarkDirty()

		t.hdr.NodeCount++
		t.hdr.LeafNodeCount++

		prev = h
	}

	if prev != nil {
		prev.Unpin()
	}

	return ids, mins, nil
}

// packBranchLevel groups the previous level's nodes under fresh branch
// nodes, packing each to capacity, and returns the new level's ids and
// minimum separator keys for the level above.
func (t *tree) packBranchLevel(childIDs []NodeID, childMins [][]byte, level uint32) ([]NodeID, [][]byte, error) {
	var ids []NodeID
	var mins [][]byte
	i := 0

	for i < len(childIDs) {
		h, err := t.bm.PinNew(false, level)
		if err != nil {
			return nil, nil, err
		}
		n := h.Node()
		n.children = append(n.children, childIDs[i])
		firstMin := childMins[i]
		i++

		for i < len(childIDs) {
			if !branchWouldFit(t.cfg, n, childMins[i]) {
				break
			}
			n.keys = append(n.keys, childMins[i])
			n.children = append(n.children, childIDs[i])
			i++
		}

		ids = append(ids, n.id)
		mins = append(mins, firstMin)
		h.MarkDirty()
		h.Unpin()

		t.hdr.NodeCount++
		t.hdr.BranchNodeCount++
	}

	return ids, mins, nil
}

// freeWholeTree walks the current tree and frees every node, leaving
// the header's root pointer dangling until the caller installs a new one.
func (t *tree) freeWholeTree() error {
	return t.freeSubtree(t.hdr.RootNodeID, t.hdr.RootLevel)
}

func (t *tree) freeSubtree(id NodeID, level uint32) error {
	h, err := t.bm.Pin(id)
	if err != nil {
		return err
	}
	n := h.Node()

	if level > 0 {
		children := append([]NodeID(nil), n.children...)
		h.Unpin()
		for _, c := range children {
			if err := t.freeSubtree(c, level-1); err != nil {
				return err
			}
		}
	} else {
		h.Unpin()
	}

	h2, err := t.bm.Pin(id)
	if err != nil {
		return err
	}
	t.bm.Free(h2)
	return nil
}
