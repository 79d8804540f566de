package params

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/gpu/gputest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffer(size uint32) (*Buffer, *gputest.Recorder) {
	rec := gputest.NewRecorder()
	return New(rec, "Params", size, gpu.BufferUniform), rec
}

func TestAlignHeadProperties(t *testing.T) {
	buf, _ := newBuffer(4096)
	for _, a := range []uint32{1, 2, 4, 8, 16, 64, 256} {
		for h := uint32(0); h < 600; h += 7 {
			buf.Head = h
			buf.AlignHead(a)
			got := buf.Head
			if got < h || got%a != 0 || got-h >= a {
				t.Errorf("AlignHead(%d) from %d gave %d", a, h, got)
			}
		}
	}
}

func TestAlignHeadPanicsOnNonPowerOfTwo(t *testing.T) {
	buf, _ := newBuffer(64)
	for _, a := range []uint32{0, 3, 12, 100} {
		assert.Panics(t, func() { buf.AlignHead(a) }, "alignment %d", a)
	}
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uint32(0), Align(0, 16))
	assert.Equal(t, uint32(16), Align(1, 16))
	assert.Equal(t, uint32(256), Align(32, 256))
	assert.True(t, IsPowerOfTwo(1))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(24))
}

func TestPushAlignedCopiesExactBytes(t *testing.T) {
	buf, _ := newBuffer(1024)
	buf.MapForWrite()
	buf.Head = 5

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	offset := buf.PushAligned(data, 16)

	assert.Equal(t, uint32(16), offset)
	assert.Equal(t, uint32(16+len(data)), buf.Head)
	assert.True(t, bytes.Equal(data, buf.Bytes()[16:16+len(data)]))
}

func TestPushWithoutMapPanics(t *testing.T) {
	buf, _ := newBuffer(64)
	require.PanicsWithValue(t, "params: push into a buffer that is not mapped", func() {
		buf.PushUint32(1)
	})
}

func TestPushPastSizePanics(t *testing.T) {
	buf, _ := newBuffer(32)
	buf.MapForWrite()
	buf.PushUint32(7)
	assert.Panics(t, func() { buf.PushMat4(mgl32.Ident4()) })
}

func TestGlobalThenEntityBlockAlignment(t *testing.T) {
	buf, _ := newBuffer(1024)
	buf.MapForWrite()
	buf.Reset()

	global := buf.PushAligned(make([]byte, 32), 256)
	entity := buf.PushAligned(make([]byte, 128), 256)

	assert.Equal(t, uint32(0), global)
	assert.Equal(t, uint32(256), entity, "entity block must start on the next aligned offset")
	assert.Equal(t, uint32(384), buf.Head)
}

func TestTypedPushes(t *testing.T) {
	buf, _ := newBuffer(256)
	buf.MapForWrite()

	buf.PushUint32(3)
	buf.PushFloat32(0.5)
	off := buf.PushVec3(mgl32.Vec3{1, 2, 3})
	assert.Equal(t, uint32(16), off)
	assert.Equal(t, uint32(28), buf.Head)

	raw := buf.Bytes()
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[0:]))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(raw[24:])))

	off = buf.PushMat4(mgl32.Translate3D(4, 5, 6))
	assert.Equal(t, uint32(32), off)
	raw = buf.Bytes()
	assert.Equal(t, float32(4), math.Float32frombits(binary.LittleEndian.Uint32(raw[32+48:])))
}

func TestMapDoesNotResetHead(t *testing.T) {
	buf, _ := newBuffer(64)
	buf.MapForWrite()
	buf.PushUint32(1)
	buf.Unmap()

	buf.MapForWrite()
	assert.Equal(t, uint32(4), buf.Head)
	buf.Reset()
	assert.Equal(t, uint32(0), buf.Head)
}

func TestUnmapUploadsWrittenRange(t *testing.T) {
	buf, rec := newBuffer(64)
	buf.MapForWrite()
	buf.PushUint32(0xAABBCCDD)
	buf.PushVec4(mgl32.Vec4{1, 1, 1, 1})
	buf.Unmap()

	assert.False(t, buf.Mapped())
	uploaded := rec.Buffers[buf.Handle]
	require.Len(t, uploaded, 64)
	assert.True(t, bytes.Equal(buf.Bytes(), uploaded[:buf.Head]))
	assert.Empty(t, rec.DrainErrors())
}
