package btree

import "encoding/binary"

//============================================= File Header


// Header is the persistent file header stored in block 0. It governs
// schema-compatibility checks on open and tracks the structural
// counters invariant I5 (spec.md §3) ties to the leaf chain and free
// list.
type Header struct {
	Flags           uint32
	NodeSize        uint32
	ElementCount    uint64
	NodeCount       uint64
	LeafNodeCount   uint64
	BranchNodeCount uint64
	RootLevel       uint32
	RootNodeID      NodeID
	FreeListHead    NodeID
	FixedKeySize    uint16
	FixedMappedSize uint16
	Endianness      uint8
}

// Levels is root_level + 1, the path length from root to any leaf (I2).
func (h Header) Levels() uint32 { return h.RootLevel + 1 }

func (h Header) unique() bool  { return h.Flags&flagUnique != 0 }
func (h Header) keyOnly() bool { return h.Flags&flagKeyOnly != 0 }

func (h Header) flavor() Flavor {
	return Flavor{Unique: h.unique(), KeyOnly: h.keyOnly()}
}

func newHeader(cfg Config) Header {
	flags := uint32(0)
	if cfg.Flavor.Unique {
		flags |= flagUnique
	}
	if cfg.Flavor.KeyOnly {
		flags |= flagKeyOnly
	}

	return Header{
		Flags:           flags,
		NodeSize:        cfg.NodeSize,
		RootLevel:       0,
		RootNodeID:      1,
		FreeListHead:    noNodeID,
		FixedKeySize:    cfg.FixedKeySize,
		FixedMappedSize: cfg.FixedMappedSize,
		Endianness:      endianLittle,
	}
}

// serializeHeader writes h into a freshly allocated nodeSize-sized
// block, magic and version first, the rest packed after it and padded
// with zero bytes out to the block boundary.
func serializeHeader(h Header) []byte {
	buf := make([]byte, h.NodeSize)
	copy(buf[0:8], magic)

	off := 8
	binary.LittleEndian.PutUint32(buf[off:], formatVersion)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Flags)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.NodeSize)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.ElementCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.NodeCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.LeafNodeCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.BranchNodeCount)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.RootLevel)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.RootNodeID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(h.FreeListHead))
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], h.FixedKeySize)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.FixedMappedSize)
	off += 2
	buf[off] = h.Endianness

	return buf
}

// deserializeHeader parses a header block, validating the magic and
// format version. It does not validate schema compatibility against a
// caller's requested flavor; callers do that (engine.go Open) once
// they know which flavor they expect.
func deserializeHeader(buf []byte) (Header, error) {
	if len(buf) < headerByteSize || string(buf[0:8]) != magic {
		return Header{}, newErr(BadFormat, "bad header magic")
	}

	off := 8
	version := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if version != formatVersion {
		return Header{}, newErr(BadFormat, "unsupported format version")
	}

	var h Header
	h.Flags = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.NodeSize = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.ElementCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.NodeCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.LeafNodeCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.BranchNodeCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.RootLevel = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.RootNodeID = NodeID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	h.FreeListHead = NodeID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	h.FixedKeySize = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.FixedMappedSize = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.Endianness = buf[off]

	return h, nil
}

// checkSchema validates that an opened file's header matches the
// flavor and fixed sizes the caller expects (spec.md §4.6).
func checkSchema(h Header, cfg Config) error {
	if h.unique() != cfg.Flavor.Unique || h.keyOnly() != cfg.Flavor.KeyOnly {
		return newErr(SchemaMismatch, "unique/key-only flags disagree with opener")
	}
	if cfg.FixedKeySize != 0 && h.FixedKeySize != cfg.FixedKeySize {
		return newErr(SchemaMismatch, "fixed key size disagrees with opener")
	}
	if !cfg.Flavor.KeyOnly && cfg.FixedMappedSize != 0 && h.FixedMappedSize != cfg.FixedMappedSize {
		return newErr(SchemaMismatch, "fixed mapped size disagrees with opener")
	}
	return nil
}
