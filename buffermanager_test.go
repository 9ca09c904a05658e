package btree

import "testing"

func newTestBufferManager(t *testing.T, maxCache uint64) (*bufferManager, *Header) {
	t.Helper()
	path := tempPath(t, "bufmgr")

	cfg := Config{Flavor: FlavorSet, NodeSize: 256, MaxCacheSize: maxCache}.withDefaults()
	s, err := openStorage(path, ModeTruncate, cfg.NodeSize)
	if err != nil {
		t.Fatalf("openStorage: %v", err)
	}
	t.Cleanup(func() { s.close() })

	hdr := newHeader(cfg)
	if err := s.growTo(1); err != nil {
		t.Fatalf("growTo: %v", err)
	}

	bm := newBufferManager(s, cfg, &hdr)
	return bm, &hdr
}

func TestBufferManagerPinNewAndPin(t *testing.T) {
	bm, _ := newTestBufferManager(t, UnboundedCache)

	h, err := bm.PinNew(true, 0)
	if err != nil {
		t.Fatalf("PinNew: %v", err)
	}
	id := h.Node().id
	h.Node().keys = [][]byte{[]byte("x")}
	h.MarkDirty()
	h.Unpin()

	if err := bm.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := bm.Pin(id)
	if err != nil {
		t.Fatalf("Pin after flush: %v", err)
	}
	defer got.Unpin()

	if len(got.Node().keys) != 1 || string(got.Node().keys[0]) != "x" {
		t.Fatalf("node did not survive flush and re-pin: %+v", got.Node())
	}
}

// TestBufferManagerRespectsCacheCap mirrors the Boost.Btree cache_size_test
// contract: buffers_in_memory() never exceeds cache_max+1.
func TestBufferManagerRespectsCacheCap(t *testing.T) {
	const cap = 4
	bm, _ := newTestBufferManager(t, cap)

	var ids []NodeID
	for i := 0; i < 20; i++ {
		h, err := bm.PinNew(true, 0)
		if err != nil {
			t.Fatalf("PinNew %d: %v", i, err)
		}
		ids = append(ids, h.Node().id)
		h.MarkDirty()
		h.Unpin()

		if bm.BuffersInMemory() > cap+1 {
			t.Fatalf("buffers in memory %d exceeds cap+1 (%d) after %d pins", bm.BuffersInMemory(), cap+1, i)
		}
	}

	for _, id := range ids {
		if _, err := bm.Pin(id); err != nil {
			t.Fatalf("re-pinning evicted node %d: %v", id, err)
		}
	}
}

func TestBufferManagerFreeListReuse(t *testing.T) {
	bm, hdr := newTestBufferManager(t, UnboundedCache)

	h, err := bm.PinNew(true, 0)
	if err != nil {
		t.Fatalf("PinNew: %v", err)
	}
	freedID := h.Node().id
	h.Unpin()

	h2, err := bm.Pin(freedID)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	bm.Free(h2)

	next, err := bm.PinNew(true, 0)
	if err != nil {
		t.Fatalf("PinNew after Free: %v", err)
	}
	defer next.Unpin()

	if next.Node().id != freedID {
		t.Fatalf("expected freed id %d to be reused, got %d", freedID, next.Node().id)
	}
	_ = hdr
}
