package btree

import "testing"

func TestHeaderSerializeRoundTrip(t *testing.T) {
	cfg := Config{Flavor: FlavorMultimap, NodeSize: 1024, FixedKeySize: 8}.withDefaults()
	h := newHeader(cfg)
	h.ElementCount = 42
	h.NodeCount = 7
	h.LeafNodeCount = 5
	h.BranchNodeCount = 2
	h.RootLevel = 1
	h.RootNodeID = 3
	h.FreeListHead = 9

	buf := serializeHeader(h)
	got, err := deserializeHeader(buf)
	if err != nil {
		t.Fatalf("deserializeHeader: %v", err)
	}

	if got.ElementCount != h.ElementCount || got.NodeCount != h.NodeCount ||
		got.RootNodeID != h.RootNodeID || got.RootLevel != h.RootLevel ||
		got.FreeListHead != h.FreeListHead || got.FixedKeySize != h.FixedKeySize {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
	if got.Levels() != 2 {
		t.Fatalf("Levels() = %d, want 2", got.Levels())
	}
}

func TestHeaderBadMagicRejected(t *testing.T) {
	buf := make([]byte, 256)
	copy(buf, "NOTABTRE")

	_, err := deserializeHeader(buf)
	if kind, ok := KindOf(err); !ok || kind != BadFormat {
		t.Fatalf("expected BadFormat, got %v", err)
	}
}

func TestCheckSchemaMismatch(t *testing.T) {
	cfg := Config{Flavor: FlavorSet, FixedKeySize: 16}.withDefaults()
	h := newHeader(cfg)

	other := Config{Flavor: FlavorMap, FixedKeySize: 16}.withDefaults()
	if err := checkSchema(h, other); err == nil {
		t.Fatal("expected schema mismatch for differing flavor")
	}

	sameFlavorDiffSize := Config{Flavor: FlavorSet, FixedKeySize: 32}.withDefaults()
	if err := checkSchema(h, sameFlavorDiffSize); err == nil {
		t.Fatal("expected schema mismatch for differing fixed key size")
	}

	if err := checkSchema(h, cfg); err != nil {
		t.Fatalf("expected matching schema to pass, got %v", err)
	}
}
