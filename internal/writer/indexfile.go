package writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// IndexFile is the append-only temporary store for leaf index arrays.
// Leaves are emitted in recursion order, so the finished file is
// already the flat index array of the tree.
type IndexFile struct {
	file  *os.File
	buf   *bufio.Writer
	count int64
}

// NewTempIndexFile creates the temporary index store for one build.
func NewTempIndexFile(pattern string) (*IndexFile, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary index file: %w", err)
	}
	return &IndexFile{
		file: f,
		buf:  bufio.NewWriter(f),
	}, nil
}

// Append writes a leaf's primitive indices and returns the offset (in
// entries, not bytes) the leaf starts at.
func (w *IndexFile) Append(indices []int32) (int64, error) {
	if w.file == nil {
		return 0, fmt.Errorf("index file is closed")
	}
	start := w.count
	var scratch [4]byte
	for _, idx := range indices {
		binary.LittleEndian.PutUint32(scratch[:], uint32(idx))
		if _, err := w.buf.Write(scratch[:]); err != nil {
			return 0, fmt.Errorf("index append failed: %w", err)
		}
	}
	w.count += int64(len(indices))
	return start, nil
}

// Count returns the number of indices written so far.
func (w *IndexFile) Count() int64 {
	return w.count
}

// Slurp flushes pending writes and reads the whole file back as the
// flat index array.
func (w *IndexFile) Slurp() ([]int32, error) {
	if w.file == nil {
		return nil, fmt.Errorf("index file is closed")
	}
	if err := w.buf.Flush(); err != nil {
		return nil, fmt.Errorf("index flush failed: %w", err)
	}

	out := make([]int32, w.count)
	raw := make([]byte, 4*w.count)
	if _, err := w.file.ReadAt(raw, 0); err != nil && w.count > 0 {
		return nil, fmt.Errorf("index read back failed: %w", err)
	}
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

// Discard closes and removes the temporary file.
func (w *IndexFile) Discard() error {
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
