package bsptree

import (
	"math"

	"github.com/bits-and-blooms/bitset"
)

// voxelGridDim is the edge length of the occupancy grid sampled per
// voxel; 4x4x4 cells fit one 64-bit word.
const voxelGridDim = 4

// VoxelMat is the quantized material sample carried by a voxel:
// 8-bit diffuse and specular channels, 16-bit opacity and shininess.
type VoxelMat struct {
	Kd        uint32
	Ks        uint32
	Opacity   uint16
	Shininess uint16
}

// packColor quantizes an RGB colour in [0,1] into 8-bit channels.
func packColor(c Vector3) uint32 {
	r := uint32(max(0, min(255, int(c[0]*255))))
	g := uint32(max(0, min(255, int(c[1]*255))))
	b := uint32(max(0, min(255, int(c[2]*255))))
	return r | g<<8 | b<<16
}

func unpackColor(p uint32) Vector3 {
	return Vector3{
		float32(p&0xff) / 255,
		float32(p>>8&0xff) / 255,
		float32(p>>16&0xff) / 255,
	}
}

// SetDiffuse quantizes and stores the diffuse colour.
func (m *VoxelMat) SetDiffuse(kd Vector3) { m.Kd = packColor(kd) }

// Diffuse returns the dequantized diffuse colour.
func (m *VoxelMat) Diffuse() Vector3 { return unpackColor(m.Kd) }

// SetSpecular quantizes and stores the specular colour.
func (m *VoxelMat) SetSpecular(ks Vector3) { m.Ks = packColor(ks) }

// Specular returns the dequantized specular colour.
func (m *VoxelMat) Specular() Vector3 { return unpackColor(m.Ks) }

// SetOpacity quantizes opacity in [0,1] to 16 bits.
func (m *VoxelMat) SetOpacity(d float32) {
	m.Opacity = uint16(min(65535, int(d*65535)))
}

// Voxel is a quantized point sample of scene geometry: material,
// byte-quantized surface normal, plane offset, and a coarse geometry
// occupancy bitmap. When the voxel acts as a BVH primitive it
// carries its own bounds.
type Voxel struct {
	Mat VoxelMat

	// childIndex packs the octree child index in bits 2.. and the
	// leaf flag in bit 0.
	childIndex int32

	Theta, Phi uint8  // quantized normal angles
	Material   uint16 // material table id
	PlaneD     float32

	// Occupancy is the 4x4x4 geometry bitmap, one bit per cell.
	Occupancy uint64

	Min, Max Vector3
	Index    int32
}

// Bounds returns the voxel's bounding box.
func (v *Voxel) Bounds() AABB { return AABB{Min: v.Min, Max: v.Max} }

// HasChild reports whether a child block index has been assigned.
func (v *Voxel) HasChild() bool { return v.childIndex>>2 != 0 }

// IsLeaf reports whether the voxel is a leaf sample.
func (v *Voxel) IsLeaf() bool { return v.childIndex&0x1 == 0x1 }

// IsEmpty reports whether the voxel carries neither children nor a
// surface sample.
func (v *Voxel) IsEmpty() bool { return !v.HasChild() && !v.IsLeaf() }

// ChildIndex returns the assigned child block index.
func (v *Voxel) ChildIndex() int { return int(v.childIndex >> 2) }

// SetChildIndex assigns the child block index, clearing the leaf
// flag.
func (v *Voxel) SetChildIndex(index int) { v.childIndex = int32(index) << 2 }

// SetLeaf marks the voxel as a leaf sample.
func (v *Voxel) SetLeaf() { v.childIndex = 0x1 }

// SetNormal quantizes a unit normal into the theta/phi bytes.
// The atan2 range (-pi, pi] is folded into [0, 2pi) before
// quantization.
func (v *Voxel) SetNormal(n Vector3) {
	v.Theta = uint8(min(255, int(math.Acos(float64(n[2]))*256/math.Pi)))
	phi := math.Atan2(float64(n[1]), float64(n[0]))
	if phi < 0 {
		phi += 2 * math.Pi
	}
	v.Phi = uint8(min(255, int(phi*256/(2*math.Pi))))
}

// Normal dequantizes the stored normal.
func (v *Voxel) Normal() Vector3 {
	theta := float64(v.Theta) / 256 * math.Pi
	phi := float64(v.Phi) / 256 * math.Pi
	return Vector3{
		float32(math.Sin(theta) * math.Cos(2*phi)),
		float32(math.Sin(theta) * math.Sin(2*phi)),
		float32(math.Cos(theta)),
	}
}

// SetOccupied marks the occupancy cell at grid coordinates (x,y,z).
func (v *Voxel) SetOccupied(x, y, z int) {
	var w [1]uint64
	w[0] = v.Occupancy
	bitset.From(w[:]).Set(occupancyBit(x, y, z))
	v.Occupancy = w[0]
}

// Occupied reports whether the occupancy cell at (x,y,z) is set.
func (v *Voxel) Occupied(x, y, z int) bool {
	w := [1]uint64{v.Occupancy}
	return bitset.From(w[:]).Test(occupancyBit(x, y, z))
}

// OccupiedCells returns the number of occupied cells in the bitmap.
func (v *Voxel) OccupiedCells() uint {
	w := [1]uint64{v.Occupancy}
	return bitset.From(w[:]).Count()
}

func occupancyBit(x, y, z int) uint {
	return uint(x + y*voxelGridDim + z*voxelGridDim*voxelGridDim)
}
