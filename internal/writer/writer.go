package writer

import (
	"fmt"
	"io"
	"os"
)

// NodeFile wraps an os.File used as the out-of-core node store during
// a build. It provides:
// - Node-slot reservation (via Allocator)
// - Write-at-address emplacement (parents are written at offsets
//   reserved before their children exist)
// - Read-back for the final in-memory slurp
//
// Thread-safety: not thread-safe. Each build owns its NodeFile.
type NodeFile struct {
	file      *os.File
	allocator *Allocator
}

// NewTempNodeFile creates the temporary node store for one build.
// The file is created with a unique name so two concurrent builds do
// not collide, and removed by Discard once the flat representation
// has been read back.
//
// The root node occupies the first slot, so reservations start at
// nodeSize.
func NewTempNodeFile(pattern string, nodeSize uint64) (*NodeFile, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary node file: %w", err)
	}

	return &NodeFile{
		file:      f,
		allocator: NewAllocator(nodeSize, nodeSize),
	}, nil
}

// ReservePair claims two consecutive node slots at the end of the
// file and returns the byte offset of the first.
func (w *NodeFile) ReservePair() (uint64, error) {
	if w.file == nil {
		return 0, fmt.Errorf("node file is closed")
	}
	return w.allocator.AllocatePair()
}

// WriteAt writes a node record at a previously reserved address.
func (w *NodeFile) WriteAt(data []byte, offset int64) (int, error) {
	if w.file == nil {
		return 0, fmt.Errorf("node file is closed")
	}
	if len(data) == 0 {
		return 0, nil
	}

	n, err := w.file.WriteAt(data, offset)
	if err != nil {
		return n, fmt.Errorf("write at address %d failed: %w", offset, err)
	}
	if n != len(data) {
		return n, fmt.Errorf("incomplete write at address %d: wrote %d of %d bytes", offset, n, len(data))
	}
	return n, nil
}

// WriteAtAddress writes data at a specific address (convenience
// method with uint64 address).
func (w *NodeFile) WriteAtAddress(data []byte, addr uint64) error {
	_, err := w.WriteAt(data, int64(addr))
	return err
}

// ReadAt reads back node records, used when slurping the finished
// file into the flat in-memory array. Implements io.ReaderAt.
func (w *NodeFile) ReadAt(buf []byte, addr int64) (int, error) {
	if w.file == nil {
		return 0, fmt.Errorf("node file is closed")
	}
	return w.file.ReadAt(buf, addr)
}

// EndOfFile returns the current end-of-file address.
func (w *NodeFile) EndOfFile() uint64 {
	return w.allocator.EndOfFile()
}

// Allocator returns the space allocator, for integrity checks in
// tests.
func (w *NodeFile) Allocator() *Allocator {
	return w.allocator
}

// Discard closes and removes the temporary file. Safe to call after
// a failed build; the temp file never outlives the builder.
func (w *NodeFile) Discard() error {
	if w.file == nil {
		return nil
	}
	name := w.file.Name()
	err := w.file.Close()
	w.file = nil
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

// Ensure NodeFile implements io.ReaderAt and io.WriterAt.
var (
	_ io.ReaderAt = (*NodeFile)(nil)
	_ io.WriterAt = (*NodeFile)(nil)
)
