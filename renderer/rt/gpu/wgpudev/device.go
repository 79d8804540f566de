package wgpudev

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type wgpuBuffer struct {
	buf   *wgpu.Buffer
	size  uint32
	usage gpu.BufferUsage
}

type wgpuProgram struct {
	label string
	vs    *wgpu.ShaderModule
	fs    *wgpu.ShaderModule
	state gpu.RenderState
}

type wgpuBinding struct {
	program  gpu.Handle
	pipeline *wgpu.RenderPipeline
	vertex   gpu.Handle
	index    gpu.Handle
	offset   uint64
}

type wgpuTexture struct {
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	format gpu.TextureFormat
}

type wgpuFramebuffer struct {
	colors []gpu.Handle
	depth  gpu.Handle
}

type uniformRange struct {
	buf    gpu.Handle
	offset uint32
	size   uint32
}

// Device implements gpu.Device on top of WebGPU. Uniform slots map to dynamic
// offsets on bind group 0, texture units to bind group 1.
type Device struct {
	surface *wgpu.Surface
	adapter *wgpu.Adapter
	device  *wgpu.Device
	queue   *wgpu.Queue
	config  *wgpu.SurfaceConfiguration

	limits gpu.Limits
	info   gpu.Info

	uniformLayout  *wgpu.BindGroupLayout
	textureLayout  *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout
	sampler        *wgpu.Sampler

	zeroBuffer   gpu.Handle
	whiteTexture gpu.Handle

	next         gpu.Handle
	buffers      map[gpu.Handle]*wgpuBuffer
	programs     map[gpu.Handle]*wgpuProgram
	bindings     map[gpu.Handle]*wgpuBinding
	textures     map[gpu.Handle]*wgpuTexture
	framebuffers map[gpu.Handle]*wgpuFramebuffer

	uniformGroups map[[gpu.UniformSlots]gpu.Handle]*wgpu.BindGroup
	textureGroups map[[gpu.TextureUnits]gpu.Handle]*wgpu.BindGroup

	frameTex  *wgpu.Texture
	frameView *wgpu.TextureView
	encoder   *wgpu.CommandEncoder
	pass      *wgpu.RenderPassEncoder

	program  gpu.Handle
	binding  gpu.Handle
	uniforms [gpu.UniformSlots]uniformRange
	units    [gpu.TextureUnits]gpu.Handle

	errs []error
}

var _ gpu.Device = (*Device)(nil)

func New(window *glfw.Window) (*Device, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}

	limits := wgpu.DefaultLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}

	width, height := window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	d := &Device{
		surface: surface,
		adapter: adapter,
		device:  device,
		queue:   device.GetQueue(),
		config:  config,
		limits: gpu.Limits{
			MinUniformBufferOffsetAlignment: uint32(limits.MinUniformBufferOffsetAlignment),
			MaxUniformBufferBindingSize:     uint32(limits.MaxUniformBufferBindingSize),
		},
		info:          adapterInfo(adapter),
		buffers:       map[gpu.Handle]*wgpuBuffer{},
		programs:      map[gpu.Handle]*wgpuProgram{},
		bindings:      map[gpu.Handle]*wgpuBinding{},
		textures:      map[gpu.Handle]*wgpuTexture{},
		framebuffers:  map[gpu.Handle]*wgpuFramebuffer{},
		uniformGroups: map[[gpu.UniformSlots]gpu.Handle]*wgpu.BindGroup{},
		textureGroups: map[[gpu.TextureUnits]gpu.Handle]*wgpu.BindGroup{},
	}
	if err := d.createLayouts(); err != nil {
		return nil, err
	}
	d.zeroBuffer = d.CreateBuffer("Zero Uniforms", 0, gpu.BufferUniform)
	d.whiteTexture = d.CreateTexture2D(gpu.TextureDescriptor{
		Label:  "Unbound Texture",
		Width:  1,
		Height: 1,
		Format: gpu.FormatRGBA8,
		Pixels: []byte{255, 255, 255, 255},
	})
	return d, nil
}

func (d *Device) createLayouts() error {
	var uniformEntries []wgpu.BindGroupLayoutEntry
	for slot := uint32(0); slot < gpu.UniformSlots; slot++ {
		uniformEntries = append(uniformEntries, wgpu.BindGroupLayoutEntry{
			Binding:    slot,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
			},
		})
	}
	var err error
	d.uniformLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Uniforms BGL",
		Entries: uniformEntries,
	})
	if err != nil {
		return fmt.Errorf("uniform layout: %w", err)
	}

	textureEntries := []wgpu.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: wgpu.ShaderStageFragment,
		Sampler: wgpu.SamplerBindingLayout{
			Type: wgpu.SamplerBindingTypeNonFiltering,
		},
	}}
	for unit := uint32(0); unit < gpu.TextureUnits; unit++ {
		textureEntries = append(textureEntries, wgpu.BindGroupLayoutEntry{
			Binding:    unit + 1,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
				Multisampled:  false,
			},
		})
	}
	d.textureLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Textures BGL",
		Entries: textureEntries,
	})
	if err != nil {
		return fmt.Errorf("texture layout: %w", err)
	}

	d.pipelineLayout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.uniformLayout, d.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}

	d.sampler, err = d.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0.,
		LodMaxClamp:   1.,
		Compare:       wgpu.CompareFunctionUndefined,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	return nil
}

func (d *Device) fail(format string, args ...any) {
	d.errs = append(d.errs, fmt.Errorf(format, args...))
}

func (d *Device) alloc() gpu.Handle {
	d.next++
	return d.next
}

func (d *Device) Limits() gpu.Limits { return d.limits }
func (d *Device) Info() gpu.Info         { return d.info }

func bufferUsage(usage gpu.BufferUsage) wgpu.BufferUsage {
	switch usage {
	case gpu.BufferVertex:
		return wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	case gpu.BufferIndex:
		return wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	}
	return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
}

// uniformPadding keeps every in-range dynamic offset valid for the full slot window.
func uniformPadding(size uint32, usage gpu.BufferUsage) uint64 {
	padded := uint64(size)
	if usage == gpu.BufferUniform {
		padded += uint64(gpu.UniformWindows[gpu.SlotGlobal])
	}
	return (padded + 3) &^ 3
}

func (d *Device) CreateBuffer(label string, size uint32, usage gpu.BufferUsage) gpu.Handle {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uniformPadding(size, usage),
		Usage: bufferUsage(usage),
	})
	if err != nil {
		d.fail("create buffer %q: %v", label, err)
		return gpu.InvalidHandle
	}
	h := d.alloc()
	d.buffers[h] = &wgpuBuffer{buf: buf, size: size, usage: usage}
	return h
}

func (d *Device) CreateBufferInit(label string, data []byte, usage gpu.BufferUsage) gpu.Handle {
	h := d.CreateBuffer(label, uint32(len(data)), usage)
	if h != gpu.InvalidHandle && len(data) > 0 {
		d.WriteBuffer(h, 0, data)
	}
	return h
}

func (d *Device) WriteBuffer(buf gpu.Handle, offset uint32, data []byte) {
	b, ok := d.buffers[buf]
	if !ok {
		d.fail("write to unknown buffer %d", buf)
		return
	}
	if len(data) == 0 {
		return
	}
	// Queue writes must be 4-byte multiples.
	if rem := len(data) % 4; rem != 0 {
		data = append(data[:len(data):len(data)], make([]byte, 4-rem)...)
	}
	if err := d.queue.WriteBuffer(b.buf, uint64(offset), data); err != nil {
		d.fail("write buffer %d: %v", buf, err)
	}
}

func (d *Device) DeleteBuffer(buf gpu.Handle) {
	b, ok := d.buffers[buf]
	if !ok {
		return
	}
	for key, group := range d.uniformGroups {
		for _, h := range key {
			if h == buf {
				group.Release()
				delete(d.uniformGroups, key)
				break
			}
		}
	}
	b.buf.Release()
	delete(d.buffers, buf)
}

func (d *Device) CreateProgram(desc gpu.ProgramDescriptor) (gpu.Handle, error) {
	h := d.alloc()
	p := &wgpuProgram{label: desc.Label, state: desc.State}
	d.programs[h] = p

	var errs []error
	vs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " VS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.VertexSource},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("vertex stage: %w", err))
	}
	fs, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.FragmentSource},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("fragment stage: %w", err))
	}
	if len(errs) > 0 {
		if vs != nil {
			vs.Release()
		}
		if fs != nil {
			fs.Release()
		}
		return h, errors.Join(errs...)
	}
	p.vs, p.fs = vs, fs
	return h, nil
}

func (d *Device) DeleteProgram(prog gpu.Handle) {
	p, ok := d.programs[prog]
	if !ok {
		return
	}
	if p.vs != nil {
		p.vs.Release()
	}
	if p.fs != nil {
		p.fs.Release()
	}
	delete(d.programs, prog)
	if d.program == prog {
		d.program = gpu.InvalidHandle
	}
}

func vertexFormat(components uint32) (wgpu.VertexFormat, error) {
	switch components {
	case 1:
		return wgpu.VertexFormatFloat32, nil
	case 2:
		return wgpu.VertexFormatFloat32x2, nil
	case 3:
		return wgpu.VertexFormatFloat32x3, nil
	case 4:
		return wgpu.VertexFormatFloat32x4, nil
	}
	return 0, fmt.Errorf("unsupported component count %d", components)
}

func (d *Device) textureFormat(f gpu.TextureFormat) wgpu.TextureFormat {
	switch f {
	case gpu.FormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float
	case gpu.FormatDepth24:
		return wgpu.TextureFormatDepth24Plus
	case gpu.FormatSurface:
		return d.config.Format
	}
	return wgpu.TextureFormatRGBA8Unorm
}

func (d *Device) colorTargets(state gpu.RenderState) []wgpu.ColorTargetState {
	var blend *wgpu.BlendState
	switch state.Blend {
	case gpu.BlendAdditive:
		add := wgpu.BlendComponent{
			Operation: wgpu.BlendOperationAdd,
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
		}
		blend = &wgpu.BlendState{Color: add, Alpha: add}
	case gpu.BlendAlpha:
		blend = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				Operation: wgpu.BlendOperationAdd,
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			},
			Alpha: wgpu.BlendComponent{
				Operation: wgpu.BlendOperationAdd,
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			},
		}
	}
	targets := make([]wgpu.ColorTargetState, 0, len(state.Targets))
	for _, f := range state.Targets {
		targets = append(targets, wgpu.ColorTargetState{
			Format:    d.textureFormat(f),
			Blend:     blend,
			WriteMask: wgpu.ColorWriteMaskAll,
		})
	}
	return targets
}

// CreateVertexBinding builds the render pipeline for one program/layout pair.
func (d *Device) CreateVertexBinding(desc gpu.VertexBindingDescriptor) (gpu.Handle, error) {
	p, ok := d.programs[desc.Program]
	if !ok {
		return gpu.InvalidHandle, fmt.Errorf("vertex binding %q: unknown program %d", desc.Label, desc.Program)
	}
	h := d.alloc()
	b := &wgpuBinding{
		program: desc.Program,
		vertex:  desc.VertexBuffer,
		index:   desc.IndexBuffer,
		offset:  uint64(desc.VertexOffset),
	}
	d.bindings[h] = b
	if p.vs == nil || p.fs == nil {
		return h, fmt.Errorf("vertex binding %q: program %q failed to compile", desc.Label, p.label)
	}

	attributes := make([]wgpu.VertexAttribute, 0, len(desc.Attributes))
	for _, a := range desc.Attributes {
		format, err := vertexFormat(a.Components)
		if err != nil {
			return h, fmt.Errorf("vertex binding %q location %d: %w", desc.Label, a.Location, err)
		}
		attributes = append(attributes, wgpu.VertexAttribute{
			Format:         format,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}

	cull := wgpu.CullModeNone
	if p.state.CullBack {
		cull = wgpu.CullModeBack
	}
	var depth *wgpu.DepthStencilState
	if p.state.DepthTest {
		depth = &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	pipeline, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: d.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     p.vs,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: uint64(desc.Stride),
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes:  attributes,
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.fs,
			EntryPoint: "fs_main",
			Targets:    d.colorTargets(p.state),
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cull,
		},
		DepthStencil: depth,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return h, fmt.Errorf("link %q: %w", p.label, err)
	}
	b.pipeline = pipeline
	return h, nil
}

func (d *Device) CreateTexture2D(desc gpu.TextureDescriptor) gpu.Handle {
	extent := wgpu.Extent3D{
		Width:              desc.Width,
		Height:             desc.Height,
		DepthOrArrayLayers: 1,
	}
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageRenderAttachment
	if desc.Format == gpu.FormatDepth24 {
		usage = wgpu.TextureUsageRenderAttachment
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        d.textureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		d.fail("create texture %q: %v", desc.Label, err)
		return gpu.InvalidHandle
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		d.fail("create view %q: %v", desc.Label, err)
		return gpu.InvalidHandle
	}
	if len(desc.Pixels) > 0 {
		err = d.queue.WriteTexture(
			tex.AsImageCopy(),
			desc.Pixels,
			&wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  desc.Width * 4,
				RowsPerImage: desc.Height,
			},
			&extent,
		)
		if err != nil {
			d.fail("upload texture %q: %v", desc.Label, err)
		}
	}
	h := d.alloc()
	d.textures[h] = &wgpuTexture{tex: tex, view: view, format: desc.Format}
	return h
}

func (d *Device) DeleteTexture(tex gpu.Handle) {
	t, ok := d.textures[tex]
	if !ok {
		return
	}
	for key, group := range d.textureGroups {
		for _, h := range key {
			if h == tex {
				group.Release()
				delete(d.textureGroups, key)
				break
			}
		}
	}
	t.view.Release()
	t.tex.Release()
	delete(d.textures, tex)
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDescriptor) (gpu.Framebuffer, gpu.FramebufferStatus) {
	if len(desc.Colors) == 0 && !desc.Depth {
		return gpu.Framebuffer{}, gpu.FramebufferIncompleteMissingAttachment
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpu.Framebuffer{}, gpu.FramebufferIncompleteAttachment
	}
	fb := gpu.Framebuffer{Handle: d.alloc()}
	status := gpu.FramebufferComplete
	for i, f := range desc.Colors {
		if f == gpu.FormatDepth24 {
			status = gpu.FramebufferUnsupported
		}
		h := d.CreateTexture2D(gpu.TextureDescriptor{
			Label:  fmt.Sprintf("%s Color %d", desc.Label, i),
			Width:  desc.Width,
			Height: desc.Height,
			Format: f,
		})
		if h == gpu.InvalidHandle {
			status = gpu.FramebufferIncompleteAttachment
		}
		fb.Colors = append(fb.Colors, h)
	}
	if desc.Depth {
		fb.Depth = d.CreateTexture2D(gpu.TextureDescriptor{
			Label:  desc.Label + " Depth",
			Width:  desc.Width,
			Height: desc.Height,
			Format: gpu.FormatDepth24,
		})
		if fb.Depth == gpu.InvalidHandle {
			status = gpu.FramebufferIncompleteAttachment
		}
	}
	d.framebuffers[fb.Handle] = &wgpuFramebuffer{colors: fb.Colors, depth: fb.Depth}
	return fb, status
}

func (d *Device) DeleteFramebuffer(fb gpu.Handle) {
	f, ok := d.framebuffers[fb]
	if !ok {
		return
	}
	for _, h := range f.colors {
		d.DeleteTexture(h)
	}
	d.DeleteTexture(f.depth)
	delete(d.framebuffers, fb)
}

func (d *Device) BeginFrame() error {
	tex, err := d.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("create view: %w", err)
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		tex.Release()
		return fmt.Errorf("create command encoder: %w", err)
	}
	d.frameTex, d.frameView, d.encoder = tex, view, encoder
	return nil
}

func (d *Device) EndFrame() {
	if d.encoder == nil {
		return
	}
	if d.pass != nil {
		d.EndPass()
	}
	cmd, err := d.encoder.Finish(nil)
	if err != nil {
		d.fail("encoder finish: %v", err)
	} else {
		d.queue.Submit(cmd)
		d.surface.Present()
	}
	d.encoder.Release()
	d.frameView.Release()
	d.frameTex.Release()
	d.encoder, d.frameView, d.frameTex = nil, nil, nil
}

func (d *Device) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	d.config.Width = width
	d.config.Height = height
	d.surface.Configure(d.adapter, d.device, d.config)
}

func (d *Device) PushDebugGroup(label string) {
	if d.encoder == nil {
		d.fail("debug group %q pushed outside of a frame", label)
		return
	}
	d.encoder.PushDebugGroup(label)
}

func (d *Device) PopDebugGroup() {
	if d.encoder == nil {
		return
	}
	d.encoder.PopDebugGroup()
}

func (d *Device) BeginPass(desc gpu.PassDescriptor) {
	if d.encoder == nil {
		d.fail("pass %q begun outside of a frame", desc.Label)
		return
	}
	if d.pass != nil {
		d.EndPass()
	}
	load := wgpu.LoadOpLoad
	if desc.Clear {
		load = wgpu.LoadOpClear
	}
	clearValue := func(index int) wgpu.Color {
		c := desc.ClearColor
		if o, ok := desc.AttachmentClear[index]; ok {
			c = o
		}
		return wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
	}

	var views []*wgpu.TextureView
	var indices []int
	var depthView *wgpu.TextureView
	if desc.Target == gpu.InvalidHandle {
		views = append(views, d.frameView)
		indices = append(indices, 0)
	} else {
		fb, ok := d.framebuffers[desc.Target]
		if !ok {
			d.fail("pass %q: unknown framebuffer %d", desc.Label, desc.Target)
			return
		}
		indices = desc.Attachments
		if indices == nil {
			for i := range fb.colors {
				indices = append(indices, i)
			}
		}
		for _, i := range indices {
			if i < 0 || i >= len(fb.colors) {
				d.fail("pass %q: attachment %d out of range", desc.Label, i)
				return
			}
			views = append(views, d.textures[fb.colors[i]].view)
		}
		if desc.Depth && fb.depth != gpu.InvalidHandle {
			depthView = d.textures[fb.depth].view
		}
	}

	attachments := make([]wgpu.RenderPassColorAttachment, 0, len(views))
	for n, v := range views {
		attachments = append(attachments, wgpu.RenderPassColorAttachment{
			View:       v,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearValue(indices[n]),
		})
	}
	rp := &wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: attachments,
	}
	if depthView != nil {
		rp.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     load,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	d.pass = d.encoder.BeginRenderPass(rp)
}

func (d *Device) EndPass() {
	if d.pass == nil {
		return
	}
	if err := d.pass.End(); err != nil {
		d.fail("pass end: %v", err)
	}
	d.pass.Release()
	d.pass = nil
}

func (d *Device) UseProgram(prog gpu.Handle) { d.program = prog }

func (d *Device) BindVertexBinding(binding gpu.Handle) { d.binding = binding }

func (d *Device) BindUniformRange(slot uint32, buf gpu.Handle, offset, size uint32) {
	if slot >= gpu.UniformSlots {
		d.fail("uniform slot %d out of range", slot)
		return
	}
	if align := d.limits.MinUniformBufferOffsetAlignment; align != 0 && offset%align != 0 {
		d.fail("uniform slot %d: offset %d not aligned to %d", slot, offset, align)
		return
	}
	if size > gpu.UniformWindows[slot] {
		d.fail("uniform slot %d: range of %d bytes exceeds window %d", slot, size, gpu.UniformWindows[slot])
	}
	d.uniforms[slot] = uniformRange{buf: buf, offset: offset, size: size}
}

func (d *Device) BindTexture(unit uint32, tex gpu.Handle) {
	if unit >= gpu.TextureUnits {
		d.fail("texture unit %d out of range", unit)
		return
	}
	d.units[unit] = tex
}

func (d *Device) uniformGroup() (*wgpu.BindGroup, []uint32, error) {
	var key [gpu.UniformSlots]gpu.Handle
	offsets := make([]uint32, gpu.UniformSlots)
	for slot, r := range d.uniforms {
		key[slot] = d.zeroBuffer
		if _, ok := d.buffers[r.buf]; ok {
			key[slot] = r.buf
			offsets[slot] = r.offset
		}
	}
	if group, ok := d.uniformGroups[key]; ok {
		return group, offsets, nil
	}
	entries := make([]wgpu.BindGroupEntry, 0, gpu.UniformSlots)
	for slot, h := range key {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(slot),
			Buffer:  d.buffers[h].buf,
			Offset:  0,
			Size:    uint64(gpu.UniformWindows[slot]),
		})
	}
	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Uniforms",
		Layout:  d.uniformLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, nil, err
	}
	d.uniformGroups[key] = group
	return group, offsets, nil
}

func (d *Device) textureGroup() (*wgpu.BindGroup, error) {
	var key [gpu.TextureUnits]gpu.Handle
	for unit, h := range d.units {
		key[unit] = d.whiteTexture
		if _, ok := d.textures[h]; ok {
			key[unit] = h
		}
	}
	if group, ok := d.textureGroups[key]; ok {
		return group, nil
	}
	entries := []wgpu.BindGroupEntry{{Binding: 0, Sampler: d.sampler}}
	for unit, h := range key {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding:     uint32(unit) + 1,
			TextureView: d.textures[h].view,
		})
	}
	group, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "Textures",
		Layout:  d.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	d.textureGroups[key] = group
	return group, nil
}

func (d *Device) DrawIndexed(indexCount, firstIndex uint32, baseVertex int32) {
	if d.pass == nil {
		d.fail("draw outside of a pass")
		return
	}
	b, ok := d.bindings[d.binding]
	if !ok {
		d.fail("draw with unknown vertex binding %d", d.binding)
		return
	}
	if b.program != d.program {
		d.fail("vertex binding %d belongs to program %d, not %d", d.binding, b.program, d.program)
		return
	}
	if b.pipeline == nil {
		return
	}
	vb, vok := d.buffers[b.vertex]
	ib, iok := d.buffers[b.index]
	if !vok || !iok {
		d.fail("vertex binding %d references a deleted buffer", d.binding)
		return
	}
	uniforms, offsets, err := d.uniformGroup()
	if err != nil {
		d.fail("uniform bind group: %v", err)
		return
	}
	textures, err := d.textureGroup()
	if err != nil {
		d.fail("texture bind group: %v", err)
		return
	}
	d.pass.SetPipeline(b.pipeline)
	d.pass.SetBindGroup(0, uniforms, offsets)
	d.pass.SetBindGroup(1, textures, nil)
	d.pass.SetVertexBuffer(0, vb.buf, b.offset, wgpu.WholeSize)
	d.pass.SetIndexBuffer(ib.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	d.pass.DrawIndexed(indexCount, 1, firstIndex, baseVertex, 0)
}

func (d *Device) DrainErrors() []error {
	errs := d.errs
	d.errs = nil
	return errs
}

// Release frees every object the device still owns, then the device itself.
func (d *Device) Release() {
	for _, g := range d.uniformGroups {
		g.Release()
	}
	for _, g := range d.textureGroups {
		g.Release()
	}
	d.uniformGroups = nil
	d.textureGroups = nil
	for _, b := range d.bindings {
		if b.pipeline != nil {
			b.pipeline.Release()
		}
	}
	for h := range d.programs {
		d.DeleteProgram(h)
	}
	for h := range d.textures {
		d.DeleteTexture(h)
	}
	for h := range d.buffers {
		d.DeleteBuffer(h)
	}
	d.sampler.Release()
	d.pipelineLayout.Release()
	d.textureLayout.Release()
	d.uniformLayout.Release()
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.surface.Release()
}
