package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/scigolib/bsptree/internal/utils"
)

// Tree file signature and supported format version.
const (
	FileMagic   = "BSPT"
	FileVersion = 2

	// HeaderSize is magic + version byte + packed TreeInfo.
	HeaderSize = len(FileMagic) + 1 + TreeInfoSize
)

// Sentinel errors surfaced when validating serialized trees.
var (
	ErrBadMagic           = errors.New("invalid tree file signature")
	ErrUnsupportedVersion = errors.New("unsupported tree file version")
	ErrShortRead          = errors.New("short read in tree file")
)

// TreeInfo carries the statistics block written to every tree header.
// Counts are populated during the build; splicing aggregates them
// across subtrees.
type TreeInfo struct {
	NumTris        int32
	NumNodes       int32
	NumLeafs       int32
	MaxLeafDepth   int32
	SumDepth       int32
	SumTris        int32
	MaxTrisPerLeaf int32
	MaxDepth       int32
	MaxListLength  int32

	EmptySubdivideRatio float32
	BuildSeconds        float32
}

// TreeInfoSize is the packed byte size of TreeInfo.
const TreeInfoSize = 9*4 + 2*4

// Encode writes the packed little-endian representation into buf,
// which must be at least TreeInfoSize bytes.
func (ti *TreeInfo) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ti.NumTris))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ti.NumNodes))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(ti.NumLeafs))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(ti.MaxLeafDepth))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(ti.SumDepth))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(ti.SumTris))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(ti.MaxTrisPerLeaf))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(ti.MaxDepth))
	binary.LittleEndian.PutUint32(buf[32:36], uint32(ti.MaxListLength))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(ti.EmptySubdivideRatio))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(ti.BuildSeconds))
}

// DecodeTreeInfo parses a packed TreeInfo from buf.
func DecodeTreeInfo(buf []byte) TreeInfo {
	return TreeInfo{
		NumTris:             int32(binary.LittleEndian.Uint32(buf[0:4])),
		NumNodes:            int32(binary.LittleEndian.Uint32(buf[4:8])),
		NumLeafs:            int32(binary.LittleEndian.Uint32(buf[8:12])),
		MaxLeafDepth:        int32(binary.LittleEndian.Uint32(buf[12:16])),
		SumDepth:            int32(binary.LittleEndian.Uint32(buf[16:20])),
		SumTris:             int32(binary.LittleEndian.Uint32(buf[20:24])),
		MaxTrisPerLeaf:      int32(binary.LittleEndian.Uint32(buf[24:28])),
		MaxDepth:            int32(binary.LittleEndian.Uint32(buf[28:32])),
		MaxListLength:       int32(binary.LittleEndian.Uint32(buf[32:36])),
		EmptySubdivideRatio: math.Float32frombits(binary.LittleEndian.Uint32(buf[36:40])),
		BuildSeconds:        math.Float32frombits(binary.LittleEndian.Uint32(buf[40:44])),
	}
}

// WriteHeader writes magic, version and the statistics block. The
// header goes to its own file and is written after the node and index
// payloads, so a crash mid-build leaves a header that fails the magic
// check instead of a silently truncated tree.
func WriteHeader(w io.Writer, info *TreeInfo) error {
	var buf [HeaderSize]byte
	copy(buf[0:4], FileMagic)
	buf[4] = FileVersion
	info.Encode(buf[5:])

	n, err := w.Write(buf[:])
	if err != nil {
		return utils.WrapError("header write failed", err)
	}
	if n != HeaderSize {
		return fmt.Errorf("incomplete header write: wrote %d of %d bytes", n, HeaderSize)
	}
	return nil
}

// ReadHeader validates magic and version and returns the statistics
// block.
func ReadHeader(r io.Reader) (TreeInfo, error) {
	var buf [HeaderSize]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return TreeInfo{}, fmt.Errorf("%w: got %d of %d header bytes", ErrShortRead, n, HeaderSize)
		}
		return TreeInfo{}, utils.WrapError("header read failed", err)
	}

	if string(buf[0:4]) != FileMagic {
		return TreeInfo{}, fmt.Errorf("%w: %q", ErrBadMagic, string(buf[0:4]))
	}
	if buf[4] != FileVersion {
		return TreeInfo{}, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, buf[4], FileVersion)
	}

	return DecodeTreeInfo(buf[5:]), nil
}
