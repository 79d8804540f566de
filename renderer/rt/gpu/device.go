package gpu

import "fmt"

// Handle identifies a GPU object owned by a Device. Zero is never a live object.
type Handle uint32

const InvalidHandle Handle = 0

type BufferUsage int

const (
	BufferUniform BufferUsage = iota
	BufferVertex
	BufferIndex
)

func (u BufferUsage) String() string {
	switch u {
	case BufferUniform:
		return "uniform"
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	}
	return fmt.Sprintf("BufferUsage(%d)", int(u))
}

type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGBA16Float
	FormatDepth24
	// FormatSurface resolves to whatever the presentation surface was configured with.
	FormatSurface
)

// Uniform binding slots shared by every program.
const (
	SlotGlobal uint32 = iota
	SlotEntity
	SlotLight
	UniformSlots
)

// TextureUnits is the number of sampled textures a program can bind.
const TextureUnits = 4

// UniformWindows is the byte size visible to the shader through each uniform slot.
// A bound range may be smaller than its window but never larger.
var UniformWindows = [UniformSlots]uint32{2048, 256, 256}

type Limits struct {
	MinUniformBufferOffsetAlignment uint32
	MaxUniformBufferBindingSize     uint32
}

// Info describes the adapter backing a Device. Features holds the optional
// capabilities the driver reports.
type Info struct {
	Vendor   string
	Renderer string
	Driver   string
	Backend  string
	Features []string
}

type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAdditive
	// BlendAlpha is src*alpha + dst*(1-alpha).
	BlendAlpha
)

// RenderState is the fixed-function state a program is drawn with.
type RenderState struct {
	Targets   []TextureFormat
	DepthTest bool
	Blend     BlendMode
	CullBack  bool
}

type VertexInput struct {
	Location   uint32
	Components uint32
}

type ProgramDescriptor struct {
	Label          string
	VertexSource   string
	FragmentSource string
	State          RenderState
}

type VertexAttribute struct {
	Location   uint32
	Components uint32
	Offset     uint32
}

// VertexBindingDescriptor ties a program to the layout of one vertex buffer
// region. VertexOffset is a byte offset applied to every attribute.
type VertexBindingDescriptor struct {
	Label        string
	Program      Handle
	VertexBuffer Handle
	IndexBuffer  Handle
	VertexOffset uint32
	Stride       uint32
	Attributes   []VertexAttribute
}

type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	// Pixels is tightly packed RGBA8 data or nil for an uninitialized texture.
	Pixels []byte
}

type FramebufferDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Colors []TextureFormat
	Depth  bool
}

type Framebuffer struct {
	Handle Handle
	Colors []Handle
	Depth  Handle
}

type FramebufferStatus int

const (
	FramebufferComplete FramebufferStatus = iota
	FramebufferUndefined
	FramebufferIncompleteAttachment
	FramebufferIncompleteMissingAttachment
	FramebufferUnsupported
)

func (s FramebufferStatus) String() string {
	switch s {
	case FramebufferComplete:
		return "FRAMEBUFFER_COMPLETE"
	case FramebufferUndefined:
		return "FRAMEBUFFER_UNDEFINED"
	case FramebufferIncompleteAttachment:
		return "FRAMEBUFFER_INCOMPLETE_ATTACHMENT"
	case FramebufferIncompleteMissingAttachment:
		return "FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT"
	case FramebufferUnsupported:
		return "FRAMEBUFFER_UNSUPPORTED"
	}
	return fmt.Sprintf("FramebufferStatus(%d)", int(s))
}

// PassDescriptor selects the render target of a pass. Target InvalidHandle is
// the window surface. Attachments lists the framebuffer color attachments the
// pass writes, nil meaning all of them. AttachmentClear overrides ClearColor
// for the attachment indices it names.
type PassDescriptor struct {
	Label           string
	Target          Handle
	Attachments     []int
	Depth           bool
	Clear           bool
	ClearColor      [4]float32
	AttachmentClear map[int][4]float32
}

// Device is the graphics API surface the renderer is written against. Binding
// calls are stateful the way a GL context is: uniform ranges, textures and the
// vertex binding stay bound until replaced, and DrawIndexed consumes them.
type Device interface {
	Limits() Limits
	Info() Info

	CreateBuffer(label string, size uint32, usage BufferUsage) Handle
	CreateBufferInit(label string, data []byte, usage BufferUsage) Handle
	WriteBuffer(buf Handle, offset uint32, data []byte)
	DeleteBuffer(buf Handle)

	// CreateProgram always returns a handle. A non-nil error carries the
	// compiler diagnostics and the handle refers to a program that draws nothing.
	CreateProgram(desc ProgramDescriptor) (Handle, error)
	DeleteProgram(prog Handle)
	CreateVertexBinding(desc VertexBindingDescriptor) (Handle, error)

	CreateTexture2D(desc TextureDescriptor) Handle
	DeleteTexture(tex Handle)
	CreateFramebuffer(desc FramebufferDescriptor) (Framebuffer, FramebufferStatus)
	DeleteFramebuffer(fb Handle)

	BeginFrame() error
	EndFrame()
	Resize(width, height uint32)
	PushDebugGroup(label string)
	PopDebugGroup()

	BeginPass(desc PassDescriptor)
	EndPass()
	UseProgram(prog Handle)
	BindVertexBinding(binding Handle)
	BindUniformRange(slot uint32, buf Handle, offset, size uint32)
	BindTexture(unit uint32, tex Handle)
	DrawIndexed(indexCount, firstIndex uint32, baseVertex int32)

	// DrainErrors returns every error recorded since the last drain.
	DrainErrors() []error
}
