package pipeline

import (
	"fmt"

	"github.com/gekko3d/deferred/renderer/rt/assets"
	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/params"
	"github.com/gekko3d/deferred/renderer/rt/program"
	"github.com/gekko3d/deferred/renderer/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

type Logger = program.Logger

// MaxShaderLights is the size of the light array in the global block.
const MaxShaderLights = (2048 - 32) / 64

// G-buffer attachment formats, indexed by Layer.
var gbufferFormats = []gpu.TextureFormat{
	gpu.FormatRGBA8,       // shaded
	gpu.FormatRGBA8,       // albedo
	gpu.FormatRGBA16Float, // normal
	gpu.FormatRGBA16Float, // depth
	gpu.FormatRGBA16Float, // position
}

type Options struct {
	Width, Height uint32
	// ShaderFile is the path of the shader family inside the registry's file source.
	ShaderFile string
	// BufferSize of the parameter buffer in bytes; zero uses the device's max binding size.
	BufferSize  uint32
	MaxLights   int
	Bumpiness   float32
	DebugGroups bool
	ClearColor  [4]float32
}

func DefaultOptions() Options {
	return Options{
		Width:       1280,
		Height:      720,
		ShaderFile:  shaders.DeferredPath,
		MaxLights:   16,
		Bumpiness:   0.05,
		DebugGroups: true,
		ClearColor:  [4]float32{0, 0, 0, 1},
	}
}

// Surface clear of the quad and mesh views.
var viewClearColor = [4]float32{0.1, 0.1, 0.1, 1}

// Renderer owns everything a frame needs. There is no global render state.
type Renderer struct {
	dev      gpu.Device
	scene    *core.Scene
	programs *program.Registry
	params   *params.Buffer
	log      Logger

	gbuffer       gpu.Framebuffer
	width, height uint32

	ForwardProgram     uint32
	GeometryProgram    uint32
	LightingProgram    uint32
	FramebufferProgram uint32

	TexturedGeometryProgram uint32
	TexturedMeshProgram     uint32

	quadMesh   uint32
	sphereMesh uint32
	defaults   assets.Defaults

	ShaderMode   ShaderMode
	Mode         Mode
	Layer        Layer
	UseNormalMap bool
	UseBumpMap   bool
	Bumpiness    float32
	DebugGroups  bool
	MaxLights    int
	ClearColor   [4]float32

	// QuadTexture is the scene texture ShaderQuad shows; NoTexture shows magenta.
	QuadTexture uint32

	// MeshModel is the model ShaderMesh draws, placed with MeshWorld.
	MeshModel uint32
	MeshWorld mgl32.Mat4

	GlobalOffset uint32
	GlobalSize   uint32

	meshParamsOffset uint32
	meshParamsSize   uint32

	frames uint64
}

func New(dev gpu.Device, scene *core.Scene, programs *program.Registry, log Logger, opts Options) *Renderer {
	if log == nil {
		log = nopLogger{}
	}
	if opts.MaxLights <= 0 || opts.MaxLights > MaxShaderLights {
		log.Warnf("max lights %d out of range, using %d", opts.MaxLights, MaxShaderLights)
		opts.MaxLights = MaxShaderLights
	}
	size := opts.BufferSize
	if size == 0 {
		size = dev.Limits().MaxUniformBufferBindingSize
	}

	r := &Renderer{
		dev:         dev,
		scene:       scene,
		programs:    programs,
		log:         log,
		params:      params.New(dev, "Parameters", size, gpu.BufferUniform),
		ShaderMode:  ShaderEntities,
		Mode:        ModeDeferred,
		QuadTexture: core.NoTexture,
		MeshWorld:   mgl32.Ident4(),
		Layer:       LayerShaded,
		Bumpiness:   opts.Bumpiness,
		DebugGroups: opts.DebugGroups,
		MaxLights:   opts.MaxLights,
		ClearColor:  opts.ClearColor,
	}

	gbufferState := gpu.RenderState{Targets: gbufferFormats, DepthTest: true, CullBack: true}
	r.ForwardProgram = programs.Load(opts.ShaderFile, "FORWARD_RENDERING", program.WithRenderState(gbufferState))
	r.GeometryProgram = programs.Load(opts.ShaderFile, "GEOMETRY_PASS", program.WithRenderState(gbufferState))
	r.LightingProgram = programs.Load(opts.ShaderFile, "LIGHTING_PASS", program.WithRenderState(gpu.RenderState{
		Targets: gbufferFormats[:1],
		Blend:   gpu.BlendAdditive,
	}))
	r.FramebufferProgram = programs.Load(opts.ShaderFile, "FRAMEBUFFER", program.WithRenderState(gpu.RenderState{
		Targets: []gpu.TextureFormat{gpu.FormatSurface},
	}))
	r.TexturedGeometryProgram = programs.Load(opts.ShaderFile, "TEXTURED_GEOMETRY", program.WithRenderState(gpu.RenderState{
		Targets: []gpu.TextureFormat{gpu.FormatSurface},
		Blend:   gpu.BlendAlpha,
	}))
	r.TexturedMeshProgram = programs.Load(opts.ShaderFile, "TEXTURED_MESH", program.WithRenderState(gpu.RenderState{
		Targets:  []gpu.TextureFormat{gpu.FormatSurface},
		CullBack: true,
	}))

	r.defaults = assets.CreateDefaults(dev, scene)
	r.quadMesh = assets.UploadMesh(dev, scene, assets.Quad())
	r.sphereMesh = assets.UploadMesh(dev, scene, assets.Sphere(16, 24))

	r.Resize(opts.Width, opts.Height)
	return r
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func (r *Renderer) Scene() *core.Scene          { return r.scene }
func (r *Renderer) Programs() *program.Registry { return r.programs }
func (r *Renderer) Params() *params.Buffer      { return r.params }
func (r *Renderer) GBuffer() gpu.Framebuffer    { return r.gbuffer }
func (r *Renderer) Defaults() assets.Defaults   { return r.defaults }
func (r *Renderer) Size() (uint32, uint32)      { return r.width, r.height }
func (r *Renderer) Frames() uint64              { return r.frames }

// Resize recreates the G-buffer for a new surface size. Zero sizes (a
// minimized window) keep the current one.
func (r *Renderer) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	if width == r.width && height == r.height && r.gbuffer.Handle != gpu.InvalidHandle {
		return
	}
	if r.gbuffer.Handle != gpu.InvalidHandle {
		r.dev.DeleteFramebuffer(r.gbuffer.Handle)
	}
	r.dev.Resize(width, height)
	r.width, r.height = width, height

	fb, status := r.dev.CreateFramebuffer(gpu.FramebufferDescriptor{
		Label:  "G-Buffer",
		Width:  width,
		Height: height,
		Colors: gbufferFormats,
		Depth:  true,
	})
	if status != gpu.FramebufferComplete {
		r.log.Errorf("framebuffer status error: %s", status)
	}
	r.gbuffer = fb
	r.log.Debugf("G-buffer %dx%d", width, height)
}

func (r *Renderer) lightCount() int {
	n := r.scene.ActiveLights()
	if n > r.MaxLights {
		n = r.MaxLights
	}
	return n
}

func (r *Renderer) pushGroup(label string) {
	if r.DebugGroups {
		r.dev.PushDebugGroup(label)
	}
}

func (r *Renderer) popGroup() {
	if r.DebugGroups {
		r.dev.PopDebugGroup()
	}
}

// Render draws one frame with the camera's current matrices.
func (r *Renderer) Render(cam *core.Camera) error {
	if r.ShaderMode == ShaderEntities && len(r.gbuffer.Colors) != len(gbufferFormats) {
		return fmt.Errorf("render: no G-buffer (size %dx%d)", r.width, r.height)
	}
	if err := r.dev.BeginFrame(); err != nil {
		return err
	}

	r.pushGroup("Shaded Model")
	switch r.ShaderMode {
	case ShaderQuad:
		r.QuadPass()
	case ShaderMesh:
		r.PackParameters(cam)
		r.MeshPass()
	default:
		r.PackParameters(cam)
		r.pushGroup("Geometry Pass")
		r.GeometryPass()
		r.popGroup()
		if r.Mode == ModeDeferred {
			r.pushGroup("Lighting Pass")
			r.LightingPass()
			r.popGroup()
		}
		r.pushGroup("Framebuffer Pass")
		r.CompositionPass()
		r.popGroup()
	}
	r.popGroup()

	r.dev.EndFrame()

	errs := r.dev.DrainErrors()
	if r.frames == 0 {
		for _, err := range errs {
			r.log.Errorf("gpu: %v", err)
		}
	} else if len(errs) > 0 {
		r.log.Debugf("gpu: %d errors this frame, first: %v", len(errs), errs[0])
	}
	r.frames++
	return nil
}

// Release frees the G-buffer and the parameter buffer.
func (r *Renderer) Release() {
	if r.gbuffer.Handle != gpu.InvalidHandle {
		r.dev.DeleteFramebuffer(r.gbuffer.Handle)
		r.gbuffer = gpu.Framebuffer{}
	}
	r.params.Release()
}
