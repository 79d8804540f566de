package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/gekko3d/deferred/renderer/rt/assets"
	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/gpu/gputest"
	"github.com/gekko3d/deferred/renderer/rt/program"
	"github.com/gekko3d/deferred/renderer/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	debugs []string
	warns  []string
	errors []string
}

func (l *testLogger) Debugf(format string, args ...any) {
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
}
func (l *testLogger) Infof(string, ...any) {}
func (l *testLogger) Warnf(format string, args ...any) {
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}
func (l *testLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type fixture struct {
	rec *gputest.Recorder
	log *testLogger
	r   *Renderer
	cam *core.Camera
}

// newFixture builds two single-submesh entities, one two-submesh entity,
// a directional light and a point light.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	rec := gputest.NewRecorder()
	log := &testLogger{}
	scene := core.NewScene()
	reg := program.NewRegistry(rec, program.FSFiles{FS: shaders.FS}, log)

	opts := DefaultOptions()
	opts.Width, opts.Height = 64, 32
	r := New(rec, scene, reg, log, opts)
	require.Empty(t, log.errors)

	mat := scene.AddMaterial(core.NewMaterial("white"))
	cube := assets.AddModel(scene, assets.UploadMesh(rec, scene, assets.Cube()), mat)
	figure := assets.AddModel(scene, assets.UploadMesh(rec, scene, assets.Figure()), mat)
	scene.AddEntity(core.Entity{Name: "a", WorldMatrix: core.PositionScale(mgl32.Vec3{1, 0, 0}, 1), ModelIdx: cube})
	scene.AddEntity(core.Entity{Name: "b", WorldMatrix: core.PositionScale(mgl32.Vec3{-1, 0, 0}, 1), ModelIdx: cube, Unlit: true})
	scene.AddEntity(core.Entity{Name: "c", WorldMatrix: mgl32.Ident4(), ModelIdx: figure})

	scene.AddLight(core.Light{
		Type:        core.LightDirectional,
		Color:       mgl32.Vec3{1, 1, 1},
		Direction:   mgl32.Vec3{1, 1, 1},
		Position:    mgl32.Vec3{1, 1, 1},
		WorldMatrix: core.PositionScale(mgl32.Vec3{1, 1, 1}, 1),
	})
	scene.AddLight(core.Light{
		Type:        core.LightPoint,
		Color:       mgl32.Vec3{0.5, 0, 0},
		Position:    mgl32.Vec3{0, 3, -2},
		WorldMatrix: core.PositionScale(mgl32.Vec3{0, 3, -2}, 1),
	})
	return &fixture{rec: rec, log: log, r: r, cam: core.NewCamera()}
}

func u32At(data []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(data[off:])
}

func f32At(data []byte, off uint32) float32 {
	return math.Float32frombits(u32At(data, off))
}

func TestPackParametersLayout(t *testing.T) {
	f := newFixture(t)
	f.r.PackParameters(f.cam)

	assert.Equal(t, uint32(0), f.r.GlobalOffset)
	// 32 byte header, light 0 at 32, light 1 at 96, last light is 60 bytes
	assert.Equal(t, uint32(96+60), f.r.GlobalSize)

	align := f.rec.Limits().MinUniformBufferOffsetAlignment
	end := f.r.GlobalOffset + f.r.GlobalSize
	for _, e := range f.r.Scene().Entities() {
		assert.Zero(t, e.LocalParamsOffset%align, e.Name)
		assert.GreaterOrEqual(t, e.LocalParamsOffset, end, e.Name)
		assert.Equal(t, uint32(132), e.LocalParamsSize, e.Name)
		end = e.LocalParamsOffset + e.LocalParamsSize
	}
	for _, l := range f.r.Scene().Lights() {
		assert.Zero(t, l.LocalParamsOffset%align)
		assert.GreaterOrEqual(t, l.LocalParamsOffset, end)
		assert.Equal(t, uint32(188), l.LocalParamsSize)
		end = l.LocalParamsOffset + l.LocalParamsSize
	}
	assert.Equal(t, end, f.r.Params().Head)
}

func TestPackParametersGlobalBlock(t *testing.T) {
	f := newFixture(t)
	f.r.Layer = LayerNormal
	f.r.UseBumpMap = true
	f.r.Bumpiness = 0.25
	f.r.PackParameters(f.cam)

	data := f.rec.Buffers[f.r.Params().Handle]
	assert.Equal(t, f.cam.Position[2], f32At(data, 8))
	assert.Equal(t, uint32(LayerNormal), u32At(data, 12))
	assert.Equal(t, uint32(2), u32At(data, 16))
	assert.Equal(t, uint32(0), u32At(data, 20))
	assert.Equal(t, uint32(1), u32At(data, 24))
	assert.Equal(t, float32(0.25), f32At(data, 28))

	assert.Equal(t, uint32(core.LightDirectional), u32At(data, 32))
	assert.Equal(t, float32(1), f32At(data, 48))
	assert.Equal(t, uint32(core.LightPoint), u32At(data, 96))
	assert.Equal(t, float32(0.5), f32At(data, 112))
	assert.Equal(t, float32(3), f32At(data, 96+48+4))

	unlit := f.r.Scene().Entity(1)
	assert.Equal(t, uint32(1), u32At(data, unlit.LocalParamsOffset+128))
	assert.Equal(t, uint32(0), u32At(data, f.r.Scene().Entity(0).LocalParamsOffset+128))
}

func TestPackParametersForwardMode(t *testing.T) {
	f := newFixture(t)
	f.r.Mode = ModeForward
	f.r.PackParameters(f.cam)
	for _, e := range f.r.Scene().Entities() {
		assert.Equal(t, uint32(128), e.LocalParamsSize)
	}
	for _, l := range f.r.Scene().Lights() {
		assert.Zero(t, l.LocalParamsSize, "light volumes are only packed in deferred mode")
	}
}

func TestPackParametersEntityMatrices(t *testing.T) {
	f := newFixture(t)
	f.r.PackParameters(f.cam)
	data := f.rec.Buffers[f.r.Params().Handle]
	e := f.r.Scene().Entity(0)
	wvp := f.cam.ViewProjection().Mul4(e.WorldMatrix)
	for i := uint32(0); i < 16; i++ {
		assert.Equal(t, e.WorldMatrix[i], f32At(data, e.LocalParamsOffset+4*i))
		assert.InDelta(t, wvp[i], f32At(data, e.LocalParamsOffset+64+4*i), 1e-5)
	}
}

func labels(calls []gputest.Call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Label)
	}
	return out
}

func TestDeferredFrame(t *testing.T) {
	f := newFixture(t)
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	assert.Equal(t, []string{"Shaded Model", "Geometry Pass", "Lighting Pass", "Framebuffer Pass"},
		labels(f.rec.CallsOf(gputest.OpPushDebug)))
	assert.Len(t, f.rec.CallsOf(gputest.OpPopDebug), 4)

	passes := f.rec.CallsOf(gputest.OpBeginPass)
	require.Len(t, passes, 3)
	gb := f.r.GBuffer()
	assert.Equal(t, gb.Handle, passes[0].Handle)
	assert.Nil(t, passes[0].Pass.Attachments)
	assert.True(t, passes[0].Pass.Depth)
	assert.Equal(t, map[int][4]float32{int(LayerPosition): {0, 0, 0, 0}}, passes[0].Pass.AttachmentClear)
	assert.Equal(t, gb.Handle, passes[1].Handle)
	assert.Equal(t, []int{0}, passes[1].Pass.Attachments)
	assert.False(t, passes[1].Pass.Depth)
	assert.Equal(t, gpu.InvalidHandle, passes[2].Handle)

	// 1 + 1 + 2 submeshes, then one quad and one sphere, then the composition quad
	assert.Len(t, f.rec.CallsOf(gputest.OpDraw), 4+2+1)

	programs := f.rec.CallsOf(gputest.OpUseProgram)
	require.Len(t, programs, 3)
	reg := f.r.Programs()
	assert.Equal(t, reg.Get(f.r.GeometryProgram).Handle, programs[0].Handle)
	assert.Equal(t, reg.Get(f.r.LightingProgram).Handle, programs[1].Handle)
	assert.Equal(t, reg.Get(f.r.FramebufferProgram).Handle, programs[2].Handle)

	var lightSlots int
	for _, c := range f.rec.CallsOf(gputest.OpBindUniform) {
		if c.Slot == gpu.SlotLight {
			lightSlots++
		}
	}
	assert.Equal(t, 2, lightSlots)
	assert.Equal(t, uint64(1), f.r.Frames())
	assert.Empty(t, f.log.warns)
}

func TestUniformBlocksBindOnReflectedSlots(t *testing.T) {
	f := newFixture(t)
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	slots := map[uint32]int{}
	for _, c := range f.rec.CallsOf(gputest.OpBindUniform) {
		slots[c.Slot]++
		assert.Equal(t, f.r.Params().Handle, c.Handle)
	}
	// geometry: global + 3 entities, lighting: global + 2 lights
	assert.Equal(t, map[uint32]int{gpu.SlotGlobal: 2, gpu.SlotEntity: 3, gpu.SlotLight: 2}, slots)

	// the composition program declares no entity block
	f.r.bindUniform(f.r.FramebufferProgram, "uEntity", 0, 128)
	f.r.bindUniform(f.r.FramebufferProgram, "uEntity", 0, 128)
	require.Len(t, f.log.warns, 1)
	assert.Contains(t, f.log.warns[0], "uniform block uEntity not found")
}

func TestQuadView(t *testing.T) {
	f := newFixture(t)
	f.r.ShaderMode = ShaderQuad
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	passes := f.rec.CallsOf(gputest.OpBeginPass)
	require.Len(t, passes, 1)
	assert.Equal(t, "Quad Pass", passes[0].Label)
	assert.Equal(t, gpu.InvalidHandle, passes[0].Handle)
	assert.Equal(t, [4]float32{0.1, 0.1, 0.1, 1}, passes[0].Pass.ClearColor)

	programs := f.rec.CallsOf(gputest.OpUseProgram)
	require.Len(t, programs, 1)
	assert.Equal(t, f.r.Programs().Get(f.r.TexturedGeometryProgram).Handle, programs[0].Handle)

	binds := f.rec.CallsOf(gputest.OpBindTexture)
	require.Len(t, binds, 1)
	magenta := f.r.Scene().Texture(f.r.Defaults().Magenta).Handle
	assert.Equal(t, magenta, binds[0].Handle)
	assert.Len(t, f.rec.CallsOf(gputest.OpDraw), 1)
	assert.Empty(t, f.rec.CallsOf(gputest.OpBindUniform))

	f.r.QuadTexture = f.r.Defaults().White
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))
	white := f.r.Scene().Texture(f.r.Defaults().White).Handle
	assert.Equal(t, white, f.rec.CallsOf(gputest.OpBindTexture)[0].Handle)
}

func TestQuadViewNeedsNoGBuffer(t *testing.T) {
	rec := gputest.NewRecorder()
	reg := program.NewRegistry(rec, program.FSFiles{FS: shaders.FS}, nil)
	opts := DefaultOptions()
	opts.Width = 0
	r := New(rec, core.NewScene(), reg, nil, opts)
	r.ShaderMode = ShaderQuad
	assert.NoError(t, r.Render(core.NewCamera()))
}

func TestMeshView(t *testing.T) {
	f := newFixture(t)
	f.r.ShaderMode = ShaderMesh
	f.r.MeshModel = f.r.Scene().Entity(2).ModelIdx
	f.r.MeshWorld = core.PositionScale(mgl32.Vec3{0, 1, 0}, 2)
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	passes := f.rec.CallsOf(gputest.OpBeginPass)
	require.Len(t, passes, 1)
	assert.Equal(t, "Mesh Pass", passes[0].Label)
	assert.Equal(t, gpu.InvalidHandle, passes[0].Handle)

	// the figure has two submeshes
	assert.Len(t, f.rec.CallsOf(gputest.OpDraw), 2)
	assert.Len(t, f.rec.CallsOf(gputest.OpBindTexture), 2)

	uniforms := f.rec.CallsOf(gputest.OpBindUniform)
	require.Len(t, uniforms, 1)
	assert.Equal(t, gpu.SlotEntity, uniforms[0].Slot)
	assert.Zero(t, uniforms[0].Offset%f.rec.Limits().MinUniformBufferOffsetAlignment)
	assert.Equal(t, uint32(128), uniforms[0].Size)

	data := f.rec.Buffers[f.r.Params().Handle]
	wvp := f.cam.ViewProjection().Mul4(f.r.MeshWorld)
	for i := uint32(0); i < 16; i++ {
		assert.Equal(t, f.r.MeshWorld[i], f32At(data, uniforms[0].Offset+4*i))
		assert.InDelta(t, wvp[i], f32At(data, uniforms[0].Offset+64+4*i), 1e-5)
	}
	for _, e := range f.r.Scene().Entities() {
		assert.Zero(t, e.LocalParamsSize, "entities are not packed in the mesh view")
	}
}

func TestMeshViewWithoutModel(t *testing.T) {
	f := newFixture(t)
	f.r.ShaderMode = ShaderMesh
	f.r.MeshModel = 42
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))
	assert.Len(t, f.rec.CallsOf(gputest.OpBeginPass), 1)
	assert.Len(t, f.rec.CallsOf(gputest.OpEndPass), 1)
	assert.Empty(t, f.rec.CallsOf(gputest.OpDraw))
}

func TestForwardFrameSkipsLighting(t *testing.T) {
	f := newFixture(t)
	f.r.Mode = ModeForward
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	assert.Equal(t, []string{"Geometry Pass", "Framebuffer Pass"}, labels(f.rec.CallsOf(gputest.OpBeginPass)))
	programs := f.rec.CallsOf(gputest.OpUseProgram)
	require.NotEmpty(t, programs)
	assert.Equal(t, f.r.Programs().Get(f.r.ForwardProgram).Handle, programs[0].Handle)
	assert.Len(t, f.rec.CallsOf(gputest.OpDraw), 4+1)
}

func TestUnknownLightTypeDrawsNothing(t *testing.T) {
	f := newFixture(t)
	f.r.Scene().AddLight(core.Light{Type: core.LightType(7), WorldMatrix: mgl32.Ident4()})
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))

	assert.Len(t, f.rec.CallsOf(gputest.OpDraw), 4+2+1)
	found := false
	for _, d := range f.log.debugs {
		if strings.Contains(d, "unknown type 7") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLayerSelectsAttachment(t *testing.T) {
	f := newFixture(t)
	for _, layer := range Layers() {
		f.r.Layer = layer
		f.rec.Reset()
		require.NoError(t, f.r.Render(f.cam))

		binds := f.rec.CallsOf(gputest.OpBindTexture)
		require.NotEmpty(t, binds)
		last := binds[len(binds)-1]
		assert.Equal(t, uint32(0), last.Slot, layer.String())
		assert.Equal(t, f.r.GBuffer().Colors[layer], last.Handle, layer.String())
	}
}

func TestNormalAndBumpMapsOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t)
	count := func() int {
		f.rec.Reset()
		f.r.PackParameters(f.cam)
		f.r.GeometryPass()
		return len(f.rec.CallsOf(gputest.OpBindTexture))
	}
	plain := count()
	assert.Equal(t, 4, plain)

	f.r.UseNormalMap = true
	f.r.UseBumpMap = true
	assert.Equal(t, 3*plain, count())
}

func TestDebugGroupsDisabled(t *testing.T) {
	f := newFixture(t)
	f.r.DebugGroups = false
	f.rec.Reset()
	require.NoError(t, f.r.Render(f.cam))
	assert.Empty(t, f.rec.CallsOf(gputest.OpPushDebug))
	assert.Empty(t, f.rec.CallsOf(gputest.OpPopDebug))
}

func TestFirstFrameErrorsAreLogged(t *testing.T) {
	f := newFixture(t)
	f.rec.Errors = append(f.rec.Errors, fmt.Errorf("validation failed"))
	require.NoError(t, f.r.Render(f.cam))
	require.Len(t, f.log.errors, 1)
	assert.Contains(t, f.log.errors[0], "validation failed")

	f.rec.Errors = append(f.rec.Errors, fmt.Errorf("later"))
	require.NoError(t, f.r.Render(f.cam))
	assert.Len(t, f.log.errors, 1)
	assert.Empty(t, f.rec.Errors)
}

func TestResizeRecreatesGBuffer(t *testing.T) {
	f := newFixture(t)
	old := f.r.GBuffer()

	f.r.Resize(64, 32)
	assert.Equal(t, old.Handle, f.r.GBuffer().Handle)
	f.r.Resize(0, 10)
	assert.Equal(t, old.Handle, f.r.GBuffer().Handle)

	f.r.Resize(128, 64)
	assert.NotEqual(t, old.Handle, f.r.GBuffer().Handle)
	assert.True(t, f.rec.Framebuffers[old.Handle].Deleted)
	w, h := f.r.Size()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(64), h)
	desc := f.rec.Framebuffers[f.r.GBuffer().Handle].Desc
	assert.Equal(t, gbufferFormats, desc.Colors)
	assert.True(t, desc.Depth)
}

func TestIncompleteFramebufferIsLogged(t *testing.T) {
	rec := gputest.NewRecorder()
	status := gpu.FramebufferIncompleteAttachment
	rec.Status = &status
	log := &testLogger{}
	reg := program.NewRegistry(rec, program.FSFiles{FS: shaders.FS}, log)
	New(rec, core.NewScene(), reg, log, DefaultOptions())

	require.Len(t, log.errors, 1)
	assert.Contains(t, log.errors[0], "FRAMEBUFFER_INCOMPLETE_ATTACHMENT")
}

func TestRenderWithoutGBufferFails(t *testing.T) {
	rec := gputest.NewRecorder()
	reg := program.NewRegistry(rec, program.FSFiles{FS: shaders.FS}, nil)
	opts := DefaultOptions()
	opts.Width = 0
	r := New(rec, core.NewScene(), reg, nil, opts)
	assert.Error(t, r.Render(core.NewCamera()))
	assert.Empty(t, rec.CallsOf(gputest.OpBeginFrame))
}

func TestModeAndLayerCycling(t *testing.T) {
	assert.Equal(t, ModeDeferred, ModeForward.Toggle())
	assert.Equal(t, ModeForward, ModeDeferred.Toggle())
	assert.Equal(t, LayerAlbedo, LayerShaded.Next())
	assert.Equal(t, LayerShaded, LayerPosition.Next())
	assert.Equal(t, "Position", LayerPosition.String())
	assert.Equal(t, "Deferred", ModeDeferred.String())
	assert.Equal(t, "Mesh", ShaderMesh.String())
	assert.Equal(t, "ShaderMode(9)", ShaderMode(9).String())
}
