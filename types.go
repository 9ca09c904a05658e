package btree

import "bytes"


//============================================= btree Types


// NodeID names a fixed-size block in the backing file. Block 0 is the
// header; node blocks start at 1. A zero NodeID is never a live node,
// so it doubles as the "none" sentinel for free-list and sibling links.
type NodeID uint64

const noNodeID NodeID = 0

// Comparator orders two keys the way bytes.Compare does: negative if
// a < b, zero if equal, positive if a > b.
type Comparator func(a, b []byte) int

// Flavor selects one of the four container shapes the engine serves:
// unique/non-unique ordering crossed with key-only/keyed entries. The
// typed map/multimap/set/multiset facades are out of scope (spec.md
// §1); a caller configures the flavor directly.
type Flavor struct {
	Unique  bool
	KeyOnly bool
}

var (
	FlavorSet      = Flavor{Unique: true, KeyOnly: true}
	FlavorMultiset = Flavor{Unique: false, KeyOnly: true}
	FlavorMap      = Flavor{Unique: true, KeyOnly: false}
	FlavorMultimap = Flavor{Unique: false, KeyOnly: false}
)

// Config supplies the parameters needed to create a new tree file.
// FixedKeySize/FixedMappedSize of 0 mean variable-length; Compare
// defaults to bytes.Compare.
type Config struct {
	Flavor          Flavor
	NodeSize        uint32
	FixedKeySize    uint16
	FixedMappedSize uint16
	MaxCacheSize    uint64
	Compare         Comparator
}

func (cfg Config) withDefaults() Config {
	if cfg.NodeSize == 0 {
		cfg.NodeSize = DefaultNodeSize
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = DefaultMaxCache
	}
	if cfg.Compare == nil {
		cfg.Compare = bytes.Compare
	}
	return cfg
}

// OpenMode selects how Open treats the backing file.
type OpenMode int

const (
	// ModeReadWrite requires the file to already exist.
	ModeReadWrite OpenMode = iota
	// ModeReadOnly requires the file to already exist; mutations fail.
	ModeReadOnly
	// ModeTruncate creates the file, overwriting any existing contents.
	ModeTruncate
)

// KeyValue is a single (key, value) leaf entry, the input unit of Pack.
type KeyValue struct {
	Key   []byte
	Value []byte
}

const (
	// DefaultNodeSize matches the OS page size assumption spec.md §3 makes.
	DefaultNodeSize uint32 = 4096
	// MinNodeSize is 128 bytes. Open does not check NodeSize against
	// it; the header block alone needs headerByteSize bytes.
	MinNodeSize uint32 = 128
	// DefaultMaxCache is an implementation-defined small cache bound.
	DefaultMaxCache uint64 = 64
	// UnboundedCache disables the soft cache cap (saturated value, spec.md §4.2).
	UnboundedCache uint64 = ^uint64(0)
)

// header flag bits (persisted).
const (
	flagUnique  uint32 = 1 << 0
	flagKeyOnly uint32 = 1 << 1
)

// node flag bits (persisted, per node).
const (
	nodeFlagLeaf uint16 = 1 << 0
)

const (
	magic          = "BTREEFL1"
	formatVersion  = uint32(1)
	endianLittle   = uint8(0)
	headerByteSize = 8 + 4*3 + 8*4 + 4 + 8 + 8 + 2 + 2 + 1 // magic..endianness, unpadded
)
