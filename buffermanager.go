package btree

import (
	"encoding/binary"
	"fmt"
)

//============================================= Buffer Manager


// frame is one cached, decoded node plus its pin count. Unpinned
// frames live on the LRU list between lruHead and lruTail sentinels;
// a pinned frame is unlinked from the list until its last Unpin.
type frame struct {
	n        *node
	pinCount int
	dirty    bool
	prev     *frame
	next     *frame
}

// Handle is a scoped pin on a node, the unit callers hold instead of a
// raw pointer so the buffer manager always knows what is in use
// (spec.md §4.2). Call Unpin when done; MarkDirty before that if the
// node was mutated.
type Handle struct {
	bm *bufferManager
	fr *frame
}

func (h *Handle) Node() *node  { return h.fr.n }
func (h *Handle) MarkDirty()   { h.fr.dirty = true }

// Unpin releases one pin. The frame becomes evictable once its pin
// count reaches zero.
func (h *Handle) Unpin() {
	h.bm.unpin(h.fr)
}

// bufferManager is the LRU page cache sitting between the tree
// algorithms and storage, grounded on the pack's buffer-pool reference
// implementations: a bounded map of live frames, a doubly linked LRU
// list of evictable (unpinned) frames, and pin-count bookkeeping so a
// node under active use is never evicted out from under a caller
// (spec.md P9). Node allocation/free-listing also lives here since it
// is the component that already knows the live node set.
type bufferManager struct {
	storage  *storage
	cfg      Config
	hdr      *Header
	maxCache uint64

	frames  map[NodeID]*frame
	head    *frame // LRU sentinel, head.next is most recently used
	tail    *frame // LRU sentinel, tail.prev is least recently used

	freeList []NodeID

	hits   uint64
	misses uint64
	evicts uint64
}

func newBufferManager(s *storage, cfg Config, hdr *Header) *bufferManager {
	head := &frame{}
	tail := &frame{}
	head.next = tail
	tail.prev = head

	bm := &bufferManager{
		storage:  s,
		cfg:      cfg,
		hdr:      hdr,
		maxCache: cfg.MaxCacheSize,
		frames:   make(map[NodeID]*frame),
		head:     head,
		tail:     tail,
	}

	bm.loadFreeList()
	return bm
}

// loadFreeList walks the on-disk free chain once at open. Each freed
// block stores the next free NodeID in the same 8 bytes a live leaf
// uses for its prev-sibling link (link_a), since a freed block carries
// no live node content to protect.
func (bm *bufferManager) loadFreeList() {
	id := bm.hdr.FreeListHead
	for id != noNodeID {
		buf, err := bm.storage.readBlock(id)
		if err != nil {
			return
		}
		bm.freeList = append(bm.freeList, id)
		id = NodeID(binary.LittleEndian.Uint64(buf[8:]))
	}
}

// SetMaxCache sets the soft cache cap and immediately evicts down to
// it (short one pinned-allowance, P9).
func (bm *bufferManager) SetMaxCache(n uint64) {
	bm.maxCache = n
	bm.evictToFit()
}

// SetMaxCacheMegabytes converts a megabyte budget to a node count using
// the tree's configured node size.
func (bm *bufferManager) SetMaxCacheMegabytes(mb uint64) {
	perNode := uint64(bm.cfg.NodeSize)
	if perNode == 0 {
		perNode = uint64(DefaultNodeSize)
	}
	bm.SetMaxCache((mb * 1024 * 1024) / perNode)
}

func (bm *bufferManager) BuffersInMemory() uint64 { return uint64(len(bm.frames)) }

func (bm *bufferManager) BuffersInUse() uint64 {
	var n uint64
	for _, fr := range bm.frames {
		if fr.pinCount > 0 {
			n++
		}
	}
	return n
}

func (bm *bufferManager) BuffersAvailable() uint64 {
	inMemory := bm.BuffersInMemory()
	if bm.maxCache == UnboundedCache || inMemory >= bm.maxCache {
		return 0
	}
	return bm.maxCache - inMemory
}

// Pin loads id (from cache or disk) and returns a pinned Handle to it.
func (bm *bufferManager) Pin(id NodeID) (*Handle, error) {
	if fr, ok := bm.frames[id]; ok {
		bm.hits++
		if fr.pinCount == 0 {
			bm.unlink(fr)
		}
		fr.pinCount++
		return &Handle{bm: bm, fr: fr}, nil
	}

	bm.misses++
	bm.evictToFit()

	buf, err := bm.storage.readBlock(id)
	if err != nil {
		return nil, err
	}

	n, err := deserializeNode(bm.cfg, id, buf)
	if err != nil {
		return nil, err
	}

	fr := &frame{n: n, pinCount: 1}
	bm.frames[id] = fr
	return &Handle{bm: bm, fr: fr}, nil
}

// PinNew allocates a fresh node (reusing a freed block when possible)
// and returns it pinned and dirty.
func (bm *bufferManager) PinNew(leaf bool, level uint32) (*Handle, error) {
	id, err := bm.allocateID()
	if err != nil {
		return nil, err
	}

	bm.evictToFit()

	var n *node
	if leaf {
		n = newLeafNode(id)
	} else {
		n = &node{id: id, leaf: false, level: level}
	}

	fr := &frame{n: n, pinCount: 1, dirty: true}
	bm.frames[id] = fr
	return &Handle{bm: bm, fr: fr}, nil
}

func (bm *bufferManager) allocateID() (NodeID, error) {
	if n := len(bm.freeList); n > 0 {
		id := bm.freeList[n-1]
		bm.freeList = bm.freeList[:n-1]
		return id, nil
	}

	count, err := bm.storage.sizeInBlocks()
	if err != nil {
		return noNodeID, err
	}
	if count == 0 {
		count = 1 // block 0 is the header
	}

	if err := bm.storage.growTo(count + 1); err != nil {
		return noNodeID, err
	}

	return NodeID(count), nil
}

// Free retires a node the tree no longer references. The caller must
// hold the only pin on it; Free consumes that pin.
func (bm *bufferManager) Free(h *Handle) {
	id := h.fr.n.id
	delete(bm.frames, id)
	bm.freeList = append(bm.freeList, id)
}

func (bm *bufferManager) unpin(fr *frame) {
	if fr.pinCount > 0 {
		fr.pinCount--
	}
	if fr.pinCount == 0 {
		bm.pushFront(fr)
		bm.evictToFit()
	}
}

// evictToFit drops least-recently-used unpinned frames until the cache
// is at or below maxCache, tolerating one frame over the cap so the
// caller's own in-flight pin is never the thing evicted (P9).
func (bm *bufferManager) evictToFit() {
	if bm.maxCache == UnboundedCache {
		return
	}

	for uint64(len(bm.frames)) > bm.maxCache+1 {
		victim := bm.tail.prev
		if victim == bm.head {
			return
		}

		bm.unlink(victim)
		if victim.dirty {
			if err := bm.storage.writeBlock(victim.n.id, serializeNode(bm.cfg, victim.n)); err != nil {
				fmt.Println("buffer manager: evicting dirty node", victim.n.id, ":", err)
			}
		}
		delete(bm.frames, victim.n.id)
		bm.evicts++
	}
}

func (bm *bufferManager) pushFront(fr *frame) {
	fr.next = bm.head.next
	fr.prev = bm.head
	bm.head.next.prev = fr
	bm.head.next = fr
}

func (bm *bufferManager) unlink(fr *frame) {
	if fr.prev != nil {
		fr.prev.next = fr.next
	}
	if fr.next != nil {
		fr.next.prev = fr.prev
	}
	fr.prev = nil
	fr.next = nil
}

// flushFreeList rewrites the in-memory free list back onto disk as a
// linked chain through each freed block's link_a field, so it survives
// a close/reopen (P7).
func (bm *bufferManager) flushFreeList() error {
	next := noNodeID
	for _, id := range bm.freeList {
		buf := make([]byte, bm.cfg.NodeSize)
		binary.LittleEndian.PutUint64(buf[8:], uint64(next))
		if err := bm.storage.writeBlock(id, buf); err != nil {
			return err
		}
		next = id
	}
	bm.hdr.FreeListHead = next
	return nil
}

// Flush writes every dirty frame back to storage without evicting it.
func (bm *bufferManager) Flush() error {
	for _, fr := range bm.frames {
		if !fr.dirty {
			continue
		}
		if err := bm.storage.writeBlock(fr.n.id, serializeNode(bm.cfg, fr.n)); err != nil {
			return err
		}
		fr.dirty = false
	}

	if err := bm.flushFreeList(); err != nil {
		return err
	}

	return bm.storage.flush()
}
