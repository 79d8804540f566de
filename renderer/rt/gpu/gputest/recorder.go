// Package gputest provides a Device that records calls instead of talking to a GPU.
package gputest

import (
	"fmt"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
)

type Op string

const (
	OpBeginFrame  Op = "BeginFrame"
	OpEndFrame    Op = "EndFrame"
	OpPushDebug   Op = "PushDebugGroup"
	OpPopDebug    Op = "PopDebugGroup"
	OpBeginPass   Op = "BeginPass"
	OpEndPass     Op = "EndPass"
	OpUseProgram  Op = "UseProgram"
	OpBindBinding Op = "BindVertexBinding"
	OpBindUniform Op = "BindUniformRange"
	OpBindTexture Op = "BindTexture"
	OpDraw        Op = "DrawIndexed"
)

// Call is one recorded state or draw command. Only the fields relevant to Op are set.
type Call struct {
	Op     Op
	Handle gpu.Handle
	Slot   uint32
	Offset uint32
	Size   uint32
	Count  uint32
	First  uint32
	Label  string
	Pass   gpu.PassDescriptor
}

type Program struct {
	Desc    gpu.ProgramDescriptor
	Deleted bool
}

type Framebuffer struct {
	Desc    gpu.FramebufferDescriptor
	FB      gpu.Framebuffer
	Deleted bool
}

type Recorder struct {
	LimitsValue gpu.Limits
	InfoValue   gpu.Info

	// CompileError, when set, is consulted for every CreateProgram call.
	CompileError func(desc gpu.ProgramDescriptor) error
	// Status, when set, overrides the status CreateFramebuffer reports.
	Status *gpu.FramebufferStatus

	Buffers      map[gpu.Handle][]byte
	Programs     map[gpu.Handle]*Program
	Bindings     map[gpu.Handle]gpu.VertexBindingDescriptor
	Textures     map[gpu.Handle]gpu.TextureDescriptor
	Framebuffers map[gpu.Handle]*Framebuffer
	Calls        []Call
	Errors       []error

	next gpu.Handle
}

func NewRecorder() *Recorder {
	return &Recorder{
		LimitsValue: gpu.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MaxUniformBufferBindingSize:     65536,
		},
		InfoValue: gpu.Info{
			Vendor:   "Recorder",
			Renderer: "Recorder",
			Driver:   "gputest",
			Backend:  "Null",
		},
		Buffers:      map[gpu.Handle][]byte{},
		Programs:     map[gpu.Handle]*Program{},
		Bindings:     map[gpu.Handle]gpu.VertexBindingDescriptor{},
		Textures:     map[gpu.Handle]gpu.TextureDescriptor{},
		Framebuffers: map[gpu.Handle]*Framebuffer{},
	}
}

func (r *Recorder) alloc() gpu.Handle {
	r.next++
	return r.next
}

func (r *Recorder) record(c Call) { r.Calls = append(r.Calls, c) }

func (r *Recorder) Limits() gpu.Limits { return r.LimitsValue }
func (r *Recorder) Info() gpu.Info     { return r.InfoValue }

func (r *Recorder) CreateBuffer(label string, size uint32, usage gpu.BufferUsage) gpu.Handle {
	h := r.alloc()
	r.Buffers[h] = make([]byte, size)
	return h
}

func (r *Recorder) CreateBufferInit(label string, data []byte, usage gpu.BufferUsage) gpu.Handle {
	h := r.alloc()
	r.Buffers[h] = append([]byte(nil), data...)
	return h
}

func (r *Recorder) WriteBuffer(buf gpu.Handle, offset uint32, data []byte) {
	b, ok := r.Buffers[buf]
	if !ok || int(offset)+len(data) > len(b) {
		r.Errors = append(r.Errors, fmt.Errorf("write of %d bytes at %d into buffer %d", len(data), offset, buf))
		return
	}
	copy(b[offset:], data)
}

func (r *Recorder) DeleteBuffer(buf gpu.Handle) { delete(r.Buffers, buf) }

func (r *Recorder) CreateProgram(desc gpu.ProgramDescriptor) (gpu.Handle, error) {
	h := r.alloc()
	r.Programs[h] = &Program{Desc: desc}
	if r.CompileError != nil {
		return h, r.CompileError(desc)
	}
	return h, nil
}

func (r *Recorder) DeleteProgram(prog gpu.Handle) {
	if p, ok := r.Programs[prog]; ok {
		p.Deleted = true
	}
}

func (r *Recorder) CreateVertexBinding(desc gpu.VertexBindingDescriptor) (gpu.Handle, error) {
	if _, ok := r.Programs[desc.Program]; !ok {
		return gpu.InvalidHandle, fmt.Errorf("unknown program %d", desc.Program)
	}
	h := r.alloc()
	r.Bindings[h] = desc
	return h, nil
}

func (r *Recorder) CreateTexture2D(desc gpu.TextureDescriptor) gpu.Handle {
	h := r.alloc()
	r.Textures[h] = desc
	return h
}

func (r *Recorder) DeleteTexture(tex gpu.Handle) { delete(r.Textures, tex) }

func (r *Recorder) CreateFramebuffer(desc gpu.FramebufferDescriptor) (gpu.Framebuffer, gpu.FramebufferStatus) {
	fb := gpu.Framebuffer{Handle: r.alloc()}
	for _, f := range desc.Colors {
		fb.Colors = append(fb.Colors, r.CreateTexture2D(gpu.TextureDescriptor{Width: desc.Width, Height: desc.Height, Format: f}))
	}
	if desc.Depth {
		fb.Depth = r.CreateTexture2D(gpu.TextureDescriptor{Width: desc.Width, Height: desc.Height, Format: gpu.FormatDepth24})
	}
	r.Framebuffers[fb.Handle] = &Framebuffer{Desc: desc, FB: fb}
	status := gpu.FramebufferComplete
	if r.Status != nil {
		status = *r.Status
	}
	return fb, status
}

func (r *Recorder) DeleteFramebuffer(fb gpu.Handle) {
	if f, ok := r.Framebuffers[fb]; ok {
		f.Deleted = true
	}
}

func (r *Recorder) BeginFrame() error {
	r.record(Call{Op: OpBeginFrame})
	return nil
}

func (r *Recorder) EndFrame()                   { r.record(Call{Op: OpEndFrame}) }
func (r *Recorder) Resize(width, height uint32) {}
func (r *Recorder) PushDebugGroup(label string) { r.record(Call{Op: OpPushDebug, Label: label}) }
func (r *Recorder) PopDebugGroup()              { r.record(Call{Op: OpPopDebug}) }

func (r *Recorder) BeginPass(desc gpu.PassDescriptor) {
	r.record(Call{Op: OpBeginPass, Label: desc.Label, Handle: desc.Target, Pass: desc})
}

func (r *Recorder) EndPass() { r.record(Call{Op: OpEndPass}) }

func (r *Recorder) UseProgram(prog gpu.Handle) { r.record(Call{Op: OpUseProgram, Handle: prog}) }

func (r *Recorder) BindVertexBinding(binding gpu.Handle) {
	r.record(Call{Op: OpBindBinding, Handle: binding})
}

func (r *Recorder) BindUniformRange(slot uint32, buf gpu.Handle, offset, size uint32) {
	r.record(Call{Op: OpBindUniform, Slot: slot, Handle: buf, Offset: offset, Size: size})
}

func (r *Recorder) BindTexture(unit uint32, tex gpu.Handle) {
	r.record(Call{Op: OpBindTexture, Slot: unit, Handle: tex})
}

func (r *Recorder) DrawIndexed(indexCount, firstIndex uint32, baseVertex int32) {
	r.record(Call{Op: OpDraw, Count: indexCount, First: firstIndex})
}

func (r *Recorder) DrainErrors() []error {
	errs := r.Errors
	r.Errors = nil
	return errs
}

// CallsOf returns the recorded calls with the given op, in order.
func (r *Recorder) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range r.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Reset() { r.Calls = nil }
