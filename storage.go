package btree

import (
	"os"

	"golang.org/x/sys/unix"
)

//============================================= Storage Backend


// storage is the block-addressable file abstraction spec.md §4.1
// describes: fixed-size blocks identified by NodeID, read and written
// with explicit pread/pwrite rather than a whole-file mmap, so the
// Buffer Manager above it can evict individual blocks.
type storage struct {
	path     string
	file     *os.File
	nodeSize uint32
	readOnly bool
}

// openStorage opens or creates path per mode and returns a storage
// sized to nodeSize. On an existing file the caller (engine.go Open)
// passes headerByteSize, reads block 0, and then sets nodeSize from the
// header (the header governs it); openStorage itself only deals in
// raw blocks.
func openStorage(path string, mode OpenMode, nodeSize uint32) (*storage, error) {
	var flag int
	readOnly := false

	switch mode {
	case ModeReadOnly:
		flag = os.O_RDONLY
		readOnly = true
	case ModeTruncate:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	default:
		flag = os.O_RDWR
	}

	file, openErr := os.OpenFile(path, flag, 0600)
	if openErr != nil {
		return nil, wrapErr(IoError, "open backing file", openErr)
	}

	return &storage{path: path, file: file, nodeSize: nodeSize, readOnly: readOnly}, nil
}

// readBlock reads the fixed-size block identified by id. A short read
// on a block that should already exist is a format error, not an I/O
// error, since it means the file is truncated relative to its header.
func (s *storage) readBlock(id NodeID) ([]byte, error) {
	buf := make([]byte, s.nodeSize)

	n, err := unix.Pread(int(s.file.Fd()), buf, int64(id)*int64(s.nodeSize))
	if err != nil {
		return nil, wrapErr(IoError, "read block", err)
	}
	if n != len(buf) {
		return nil, newErr(BadFormat, "short read of block, file truncated")
	}

	return buf, nil
}

// writeBlock writes buf (exactly nodeSize bytes) at the block for id.
func (s *storage) writeBlock(id NodeID, buf []byte) error {
	if s.readOnly {
		return newErr(ReadOnlyViolation, "write on read-only storage")
	}
	if uint32(len(buf)) != s.nodeSize {
		return newErr(BadFormat, "block buffer does not match node size")
	}

	n, err := unix.Pwrite(int(s.file.Fd()), buf, int64(id)*int64(s.nodeSize))
	if err != nil {
		return wrapErr(IoError, "write block", err)
	}
	if n != len(buf) {
		return newErr(IoError, "short write of block")
	}

	return nil
}

// sizeInBlocks reports the current file size in nodeSize-sized blocks.
func (s *storage) sizeInBlocks() (uint64, error) {
	stat, statErr := s.file.Stat()
	if statErr != nil {
		return 0, wrapErr(IoError, "stat backing file", statErr)
	}

	return uint64(stat.Size()) / uint64(s.nodeSize), nil
}

// growTo sets the file length to exactly count blocks, truncating a
// longer file.
func (s *storage) growTo(count uint64) error {
	return unix.Ftruncate(int(s.file.Fd()), int64(count)*int64(s.nodeSize))
}

// flush durably writes any kernel-buffered writes to the underlying
// device. There is no WAL; "last flush wins" is the durability
// contract (spec.md §9 Open Question).
func (s *storage) flush() error {
	if err := unix.Fsync(int(s.file.Fd())); err != nil {
		return wrapErr(IoError, "fsync backing file", err)
	}
	return nil
}

func (s *storage) close() error {
	if err := s.file.Close(); err != nil {
		return wrapErr(IoError, "close backing file", err)
	}
	return nil
}
