package params

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Buffer is a linear, CPU-staged GPU buffer. Blocks are appended at Head and
// uploaded in one write on Unmap.
type Buffer struct {
	Handle gpu.Handle
	Size   uint32
	Usage  gpu.BufferUsage
	Head   uint32

	dev    gpu.Device
	data   []byte
	mapped bool
}

func New(dev gpu.Device, label string, size uint32, usage gpu.BufferUsage) *Buffer {
	return &Buffer{
		Handle: dev.CreateBuffer(label, size, usage),
		Size:   size,
		Usage:  usage,
		dev:    dev,
		data:   make([]byte, size),
	}
}

func IsPowerOfTwo(value uint32) bool {
	return value != 0 && value&(value-1) == 0
}

// Align rounds value up to the next multiple of alignment, which must be a power of two.
func Align(value, alignment uint32) uint32 {
	if !IsPowerOfTwo(alignment) {
		panic(fmt.Sprintf("params: alignment %d is not a power of two", alignment))
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// MapForWrite grants write access. Head is left where it is.
func (b *Buffer) MapForWrite() {
	b.mapped = true
}

func (b *Buffer) Mapped() bool { return b.mapped }

func (b *Buffer) Reset() { b.Head = 0 }

func (b *Buffer) AlignHead(alignment uint32) {
	head := Align(b.Head, alignment)
	if head > b.Size {
		panic(fmt.Sprintf("params: aligning head to %d overflows buffer of %d bytes", head, b.Size))
	}
	b.Head = head
}

// PushAligned aligns Head, copies data there and returns the offset it was written at.
func (b *Buffer) PushAligned(data []byte, alignment uint32) uint32 {
	if !b.mapped {
		panic("params: push into a buffer that is not mapped")
	}
	b.AlignHead(alignment)
	offset := b.Head
	if uint64(offset)+uint64(len(data)) > uint64(b.Size) {
		panic(fmt.Sprintf("params: push of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.Size))
	}
	copy(b.data[offset:], data)
	b.Head += uint32(len(data))
	return offset
}

func (b *Buffer) PushUint32(v uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return b.PushAligned(buf[:], 4)
}

func (b *Buffer) PushFloat32(v float32) uint32 {
	return b.PushUint32(math.Float32bits(v))
}

// vec3, vec4 and mat4 share the 16-byte alignment of a vec4.
func (b *Buffer) PushVec3(v mgl32.Vec3) uint32 {
	return b.PushAligned(floatBytes(v[:]), 16)
}

func (b *Buffer) PushVec4(v mgl32.Vec4) uint32 {
	return b.PushAligned(floatBytes(v[:]), 16)
}

func (b *Buffer) PushMat4(m mgl32.Mat4) uint32 {
	return b.PushAligned(floatBytes(m[:]), 16)
}

// Unmap ends the write window and uploads [0, Head).
func (b *Buffer) Unmap() {
	if !b.mapped {
		return
	}
	b.mapped = false
	if b.Head > 0 {
		b.dev.WriteBuffer(b.Handle, 0, b.data[:b.Head])
	}
}

// Bytes returns the staged contents up to Head.
func (b *Buffer) Bytes() []byte { return b.data[:b.Head] }

func (b *Buffer) Release() {
	b.dev.DeleteBuffer(b.Handle)
	b.Handle = gpu.InvalidHandle
}

func floatBytes(vals []float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
