package storage

import (
	"fmt"
	"math"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vectrix-db/vectrix/core"
)

// growthFactor controls how aggressively VectorFile grows to amortize the
// cost of remapping: each grow multiplies capacity rather than extending by
// exactly one record.
const growthFactor = 2

// initialCapacity is the number of records a freshly created VectorFile
// reserves space for before its first grow.
const initialCapacity = 1024

// VectorFile is a fixed-stride, memory-mapped vector store: record i lives
// at byte offset i*stride, where stride = dimension*4 (one float32 per
// dimension, no per-record header). This matches the manifest's dimension
// exactly, so a reader never needs anything beyond the index header to
// compute an offset.
type VectorFile struct {
	mu       sync.RWMutex
	f        *os.File
	data     []byte
	dim      int
	stride   int
	capacity int // in records
}

// OpenVectorFile opens (creating if necessary) the fixed-stride vector file
// at path for vectors of the given dimension.
func OpenVectorFile(path string, dim int) (*VectorFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	stride := dim * 4

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	capacity := int(fi.Size()) / stride
	if capacity < initialCapacity {
		capacity = initialCapacity
	}

	vf := &VectorFile{f: f, dim: dim, stride: stride}
	if err := vf.remap(capacity); err != nil {
		f.Close()
		return nil, err
	}

	return vf, nil
}

func (vf *VectorFile) remap(capacity int) error {
	size := int64(capacity) * int64(vf.stride)

	if vf.data != nil {
		if err := unix.Munmap(vf.data); err != nil {
			return err
		}
		vf.data = nil
	}

	if err := vf.f.Truncate(size); err != nil {
		return err
	}

	data, err := unix.Mmap(int(vf.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	vf.data = data
	vf.capacity = capacity
	return nil
}

// PutVector writes vector at id's offset, growing the backing file first if
// id falls past the current capacity.
func (vf *VectorFile) PutVector(id core.LocalID, vector []float32) error {
	if len(vector) != vf.dim {
		return fmt.Errorf("storage: vector has %d dimensions, file expects %d", len(vector), vf.dim)
	}

	vf.mu.Lock()
	defer vf.mu.Unlock()

	if int(id) >= vf.capacity {
		newCapacity := vf.capacity
		for int(id) >= newCapacity {
			newCapacity *= growthFactor
		}
		if err := vf.remap(newCapacity); err != nil {
			return err
		}
	}

	offset := int(id) * vf.stride
	dst := vf.data[offset : offset+vf.stride]
	for i, f := range vector {
		putFloat32(dst[i*4:], f)
	}
	return nil
}

// GetVector reads the vector stored at id's offset. The returned slice is a
// copy; callers may freely mutate or retain it.
func (vf *VectorFile) GetVector(id core.LocalID) ([]float32, error) {
	vf.mu.RLock()
	defer vf.mu.RUnlock()

	if int(id) >= vf.capacity {
		return nil, ErrNotFound
	}

	offset := int(id) * vf.stride
	src := vf.data[offset : offset+vf.stride]

	out := make([]float32, vf.dim)
	for i := range out {
		out[i] = getFloat32(src[i*4:])
	}
	return out, nil
}

// Sync flushes dirty mapped pages to stable storage via msync.
func (vf *VectorFile) Sync() error {
	vf.mu.RLock()
	defer vf.mu.RUnlock()

	if vf.data == nil {
		return nil
	}
	return unix.Msync(vf.data, unix.MS_SYNC)
}

// Close unmaps the vector file and closes the underlying file descriptor.
func (vf *VectorFile) Close() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	var err error
	if vf.data != nil {
		err = unix.Munmap(vf.data)
		vf.data = nil
	}
	if closeErr := vf.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}
