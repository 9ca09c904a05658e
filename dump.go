package btree

import (
	"fmt"
	"strings"
)

//============================================= Structural Diagnostics


// DumpDot renders the tree as Graphviz dot source, one box per node
// showing its keys and, for branches, its child edges. Meant for
// visually inspecting small trees while debugging split/merge logic.
func (e *Engine) DumpDot() (string, error) {
	var b strings.Builder
	b.WriteString("digraph btree {\n  node [shape=record];\n")

	if err := dumpNode(e.tree, e.hdr.RootNodeID, e.hdr.RootLevel, &b); err != nil {
		return "", err
	}

	b.WriteString("}\n")
	return b.String(), nil
}

func dumpNode(t *tree, id NodeID, level uint32, b *strings.Builder) error {
	h, err := t.bm.Pin(id)
	if err != nil {
		return err
	}
	n := h.Node()

	var labels []string
	for _, k := range n.keys {
		labels = append(labels, fmt.Sprintf("%q", k))
	}
	fmt.Fprintf(b, "  n%d [label=\"%s\"];\n", id, strings.Join(labels, "|"))

	children := append([]NodeID(nil), n.children...)
	h.Unpin()

	for _, c := range children {
		fmt.Fprintf(b, "  n%d -> n%d;\n", id, c)
		if err := dumpNode(t, c, level-1, b); err != nil {
			return err
		}
	}

	return nil
}

// InspectLeafToRoot is the leaf-to-root separator-containment check
// (spec.md P8), not a forward leaf-chain scan: it checks it's index
// against the leaf's entry count, then re-descends from the root by
// it's key, at each branch level confirming that the key falls within
// the chosen child slot's bracketing separators, and finally that the
// descent ends at the leaf it pins. It reports (false, nil) on a
// structural mismatch, and (false, err) when it is not a valid
// iterator (InvalidIterator) or reading a node along the way fails.
func (e *Engine) InspectLeafToRoot(it *Iterator) (bool, error) {
	if !it.Valid() {
		return false, newErr(InvalidIterator, "inspect on invalid iterator")
	}

	leaf := it.leaf.Node()
	if it.idx < 0 || it.idx >= len(leaf.keys) {
		return false, nil
	}
	key := leaf.keys[it.idx]
	wantLeaf := leaf.id

	id := e.hdr.RootNodeID
	for level := e.hdr.RootLevel; level > 0; level-- {
		h, err := e.bm.Pin(id)
		if err != nil {
			return false, err
		}
		n := h.Node()

		idx := e.tree.branchIndex(n, key)
		if idx < 0 || idx >= len(n.children) {
			h.Unpin()
			return false, nil
		}
		if idx > 0 && e.cfg.Compare(key, n.keys[idx-1]) < 0 {
			h.Unpin()
			return false, nil
		}
		if idx < len(n.keys) && e.cfg.Compare(key, n.keys[idx]) >= 0 {
			h.Unpin()
			return false, nil
		}

		child := n.children[idx]
		h.Unpin()
		id = child
	}

	return id == wantLeaf, nil
}
