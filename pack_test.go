package btree

import "testing"

func TestTreePackEmptyInput(t *testing.T) {
	tr, hdr := newTestTree(t, FlavorSet, 128)

	if _, _, err := tr.Insert([]byte("leftover"), nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := tr.pack(nil); err != nil {
		t.Fatalf("pack(nil): %v", err)
	}

	if hdr.ElementCount != 0 {
		t.Fatalf("ElementCount = %d, want 0", hdr.ElementCount)
	}
	if hdr.RootLevel != 0 || hdr.NodeCount != 1 {
		t.Fatalf("expected a single empty leaf root, got level=%d nodeCount=%d", hdr.RootLevel, hdr.NodeCount)
	}

	leaf, err := tr.firstLeaf()
	if err != nil {
		t.Fatalf("firstLeaf: %v", err)
	}
	defer leaf.Unpin()
	if len(leaf.Node().keys) != 0 {
		t.Fatalf("expected empty root leaf, got %d keys", len(leaf.Node().keys))
	}
}

// TestTreePackBuildsMultipleLevels packs enough entries on a small node
// size that packBranchLevel must run more than once, producing a root
// above level 1 (P10).
func TestTreePackBuildsMultipleLevels(t *testing.T) {
	tr, hdr := newTestTree(t, FlavorMap, 96)

	const n = 400
	entries := make([]KeyValue, n)
	for i := 0; i < n; i++ {
		entries[i] = KeyValue{
			Key:   []byte{byte(i >> 8), byte(i)},
			Value: []byte{byte(i), byte(i >> 8)},
		}
	}

	if err := tr.pack(entries); err != nil {
		t.Fatalf("pack: %v", err)
	}

	if hdr.ElementCount != n {
		t.Fatalf("ElementCount = %d, want %d", hdr.ElementCount, n)
	}
	if hdr.RootLevel < 2 {
		t.Fatalf("expected at least two branch levels for %d tiny entries, got RootLevel=%d", n, hdr.RootLevel)
	}

	// walk the leaf chain and confirm strict ascending order and full coverage.
	leaf, err := tr.firstLeaf()
	if err != nil {
		t.Fatalf("firstLeaf: %v", err)
	}
	count := 0
	var prev []byte
	for {
		ln := leaf.Node()
		for i, k := range ln.keys {
			if prev != nil && tr.cfg.Compare(prev, k) >= 0 {
				leaf.Unpin()
				t.Fatalf("keys out of order at entry %d: prev=%v cur=%v", count, prev, k)
			}
			prev = k
			count++
			_ = i
		}
		next := ln.next
		leaf.Unpin()
		if next == noNodeID {
			break
		}
		leaf, err = tr.bm.Pin(next)
		if err != nil {
			t.Fatalf("Pin next leaf: %v", err)
		}
	}

	if count != n {
		t.Fatalf("leaf chain walk found %d entries, want %d", count, n)
	}
}
