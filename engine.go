package btree

import "fmt"

//============================================= Engine


// Engine is the public handle on one open, single-file B+-tree. It is
// not safe for concurrent use from multiple goroutines: spec.md scopes
// this to a single-threaded, cooperatively scheduled caller, so there
// are no internal locks.
type Engine struct {
	path     string
	cfg      Config
	hdr      Header
	storage  *storage
	bm       *bufferManager
	tree     *tree
	readOnly bool
	open     bool
}

// Open opens the tree file at path under mode; ModeTruncate creates it
// (overwriting any existing contents), the other modes need an existing
// file. On an existing file cfg's flavor and fixed sizes must match what
// the file was created with, or Open fails with SchemaMismatch, and the
// node size recorded in its header replaces cfg.NodeSize.
func Open(path string, mode OpenMode, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	if mode == ModeTruncate {
		return create(path, cfg)
	}

	s, err := openStorage(path, mode, headerByteSize)
	if err != nil {
		return nil, err
	}

	buf, err := s.readBlock(0)
	if err != nil {
		s.close()
		return nil, err
	}

	hdr, err := deserializeHeader(buf)
	if err != nil {
		s.close()
		return nil, err
	}
	if err := checkSchema(hdr, cfg); err != nil {
		s.close()
		return nil, err
	}

	cfg.NodeSize = hdr.NodeSize
	s.nodeSize = hdr.NodeSize
	cfg.Flavor = hdr.flavor()
	cfg.FixedKeySize = hdr.FixedKeySize
	cfg.FixedMappedSize = hdr.FixedMappedSize

	e := &Engine{path: path, cfg: cfg, hdr: hdr, storage: s, readOnly: mode == ModeReadOnly, open: true}
	e.bm = newBufferManager(s, cfg, &e.hdr)
	e.tree = newTree(e.bm, cfg, &e.hdr)
	return e, nil
}

// create makes a brand-new tree file: a header block followed by a
// single empty leaf root.
func create(path string, cfg Config) (*Engine, error) {
	s, err := openStorage(path, ModeTruncate, cfg.NodeSize)
	if err != nil {
		return nil, err
	}

	hdr := newHeader(cfg)
	if err := s.growTo(1); err != nil {
		s.close()
		return nil, err
	}
	if err := s.writeBlock(0, serializeHeader(hdr)); err != nil {
		s.close()
		return nil, err
	}

	e := &Engine{path: path, cfg: cfg, hdr: hdr, storage: s, open: true}
	e.bm = newBufferManager(s, cfg, &e.hdr)
	e.tree = newTree(e.bm, cfg, &e.hdr)

	root, err := e.bm.PinNew(true, 0)
	if err != nil {
		s.close()
		return nil, err
	}
	e.hdr.RootNodeID = root.Node().id
	e.hdr.NodeCount = 1
	e.hdr.LeafNodeCount = 1
	root.MarkDirty()
	root.Unpin()

	if err := e.Flush(); err != nil {
		s.close()
		return nil, err
	}

	return e, nil
}

func (e *Engine) requireOpen() error {
	if !e.open {
		return newErr(NotOpen, "tree is not open")
	}
	return nil
}

// Close flushes pending writes and releases the backing file.
func (e *Engine) Close() error {
	if !e.open {
		return nil
	}
	if !e.readOnly {
		if err := e.Flush(); err != nil {
			return err
		}
	}
	e.open = false
	return e.storage.close()
}

// Flush writes the header and every dirty cached node back to disk and
// fsyncs. There is no write-ahead log: a crash between flushes can
// lose writes made since the last one (spec.md §9 Open Question).
func (e *Engine) Flush() error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	if e.readOnly {
		return newErr(ReadOnlyViolation, "flush on read-only engine")
	}
	if err := e.bm.Flush(); err != nil {
		return err
	}
	if err := e.storage.writeBlock(0, serializeHeader(e.hdr)); err != nil {
		return err
	}
	return e.storage.flush()
}

func (e *Engine) IsOpen() bool       { return e.open }
func (e *Engine) ReadOnly() bool     { return e.readOnly }
func (e *Engine) Empty() bool        { return e.hdr.ElementCount == 0 }
func (e *Engine) Size() uint64       { return e.hdr.ElementCount }
func (e *Engine) NodeSize() uint32   { return e.cfg.NodeSize }
func (e *Engine) FilePath() string   { return e.path }
func (e *Engine) Header() Header     { return e.hdr }
func (e *Engine) Flavor() Flavor     { return e.cfg.Flavor }

func (e *Engine) MaxCacheSize() uint64       { return e.bm.maxCache }
func (e *Engine) SetMaxCacheSize(n uint64)   { e.bm.SetMaxCache(n) }
func (e *Engine) SetMaxCacheMegabytes(n uint64) { e.bm.SetMaxCacheMegabytes(n) }

func (e *Engine) BuffersInMemory() uint64 { return e.bm.BuffersInMemory() }
func (e *Engine) BuffersInUse() uint64    { return e.bm.BuffersInUse() }
func (e *Engine) BuffersAvailable() uint64 { return e.bm.BuffersAvailable() }

// Begin returns an iterator at the first entry, or End() if the tree is empty.
func (e *Engine) Begin() (*Iterator, error) {
	h, err := e.tree.firstLeaf()
	if err != nil {
		return nil, err
	}
	if len(h.Node().keys) == 0 {
		h.Unpin()
		return endIterator(e.tree), nil
	}
	return &Iterator{t: e.tree, leaf: h, idx: 0}, nil
}

// End returns the one-past-the-last iterator.
func (e *Engine) End() *Iterator { return endIterator(e.tree) }

// Last returns an iterator at the final entry, or End() if empty.
func (e *Engine) Last() (*Iterator, error) {
	it := endIterator(e.tree)
	if err := it.Prev(); err != nil {
		if kind, ok := KindOf(err); ok && kind == InvalidIterator {
			return endIterator(e.tree), nil
		}
		return nil, err
	}
	return it, nil
}

func (e *Engine) Find(key []byte) (*Iterator, error)       { return e.tree.find(key) }
func (e *Engine) LowerBound(key []byte) (*Iterator, error) { return e.tree.lowerBound(key) }
func (e *Engine) UpperBound(key []byte) (*Iterator, error) { return e.tree.upperBound(key) }
func (e *Engine) Count(key []byte) (uint64, error)         { return e.tree.count(key) }

func (e *Engine) EqualRange(key []byte) (*Iterator, *Iterator, error) {
	return e.tree.equalRange(key)
}

// Insert adds key (and value, unless the flavor is key-only). For a
// unique flavor, a key already present is left untouched and the
// returned iterator points at the existing entry with ok false (P5);
// otherwise the returned iterator points at the newly inserted entry.
func (e *Engine) Insert(key, value []byte) (it *Iterator, ok bool, err error) {
	if err := e.writeGuard(); err != nil {
		return nil, false, err
	}
	return e.tree.Insert(key, value)
}

// Emplace is Insert under another name: spec.md's container-facade
// vocabulary names both, but there is nothing an emplace-style
// construct-in-place could do here that Insert doesn't already do, so
// it is kept only as a direct alias.
func (e *Engine) Emplace(key, value []byte) (*Iterator, bool, error) {
	return e.Insert(key, value)
}

// Update replaces the value at it's position. When the new value fits
// in the leaf the returned iterator still compares Equal to it;
// otherwise the entry is erased and reinserted and the returned
// iterator points at its new position (see tree.Update).
func (e *Engine) Update(it *Iterator, value []byte) (*Iterator, error) {
	if err := e.writeGuard(); err != nil {
		return nil, err
	}
	return e.tree.Update(it, value)
}

// EraseKey removes every entry equal to key and returns how many were removed.
func (e *Engine) EraseKey(key []byte) (uint64, error) {
	if err := e.writeGuard(); err != nil {
		return 0, err
	}
	return e.tree.EraseKey(key)
}

// EraseIterator removes the single entry it refers to and returns an
// iterator to whatever entry now follows it (or End() if it was last).
// it is left invalid after this call; callers should discard it.
func (e *Engine) EraseIterator(it *Iterator) (*Iterator, error) {
	if err := e.writeGuard(); err != nil {
		return nil, err
	}
	if !it.Valid() {
		return nil, newErr(InvalidIterator, "erase on invalid iterator")
	}

	key, err := it.Key()
	if err != nil {
		return nil, err
	}
	leafID := it.leaf.Node().id
	idx := it.idx

	rank, isLast, err := e.runPosition(key, leafID, idx)
	if err != nil {
		return nil, err
	}

	path, err := e.tree.descendToLeafID(key, leafID)
	if err != nil {
		return nil, err
	}

	leaf := it.leaf
	it.leaf = nil
	if err := e.tree.eraseAt(path, leaf, idx); err != nil {
		return nil, err
	}

	// Erasing the last entry of key's equal-key run leaves whatever
	// comes after the run untouched, so upper_bound(key) alone is
	// enough. Otherwise re-locating by key alone would overshoot the
	// rest of the run (it's still == key): walk back to the run's start
	// and step forward by the erased entry's old rank within it, which
	// lands on exactly the entry that shifted into its place.
	if isLast {
		return e.tree.upperBound(key)
	}
	next, err := e.tree.lowerBound(key)
	if err != nil {
		return nil, err
	}
	for i := 0; i < rank; i++ {
		if err := next.Next(); err != nil {
			next.Close()
			return nil, err
		}
	}
	return next, nil
}

// runPosition reports the 0-based rank of (leafID, idx) within the
// equal-key run for key, and whether it is the run's last entry,
// against the pre-erase tree. EraseIterator uses this to relocate the
// entry that takes its place once it's gone.
func (e *Engine) runPosition(key []byte, leafID NodeID, idx int) (rank int, isLast bool, err error) {
	it, err := e.tree.lowerBound(key)
	if err != nil {
		return 0, false, err
	}
	defer it.Close()

	for {
		if !it.Valid() {
			return 0, false, newErr(InvalidIterator, "iterator not found within its own key's range")
		}
		k, err := it.Key()
		if err != nil {
			return 0, false, err
		}
		if e.cfg.Compare(k, key) != 0 {
			return 0, false, newErr(InvalidIterator, "iterator not found within its own key's range")
		}
		if it.leaf.Node().id == leafID && it.idx == idx {
			break
		}
		rank++
		if err := it.Next(); err != nil {
			return 0, false, err
		}
	}

	if err := it.Next(); err != nil {
		return 0, false, err
	}
	if !it.Valid() {
		return rank, true, nil
	}
	k, err := it.Key()
	if err != nil {
		return 0, false, err
	}
	return rank, e.cfg.Compare(k, key) != 0, nil
}

// Pack replaces the tree's contents with sorted in one bottom-up bulk
// build (spec.md P10). sorted must be in key order.
func (e *Engine) Pack(sorted []KeyValue) error {
	if err := e.writeGuard(); err != nil {
		return err
	}
	return e.tree.pack(sorted)
}

func (e *Engine) writeGuard() error {
	if err := e.requireOpen(); err != nil {
		return err
	}
	if e.readOnly {
		return newErr(ReadOnlyViolation, "mutation on read-only engine")
	}
	return nil
}

// BufferManager exposes the underlying buffer manager for tests and
// diagnostics that need cache-level visibility (cache_size_test parity).
func (e *Engine) BufferManager() *bufferManager { return e.bm }

func (e *Engine) String() string {
	return fmt.Sprintf("Engine{path=%s, size=%d, levels=%d}", e.path, e.hdr.ElementCount, e.hdr.Levels())
}
