package pipeline

import (
	"github.com/gekko3d/deferred/renderer/rt/assets"
	"github.com/gekko3d/deferred/renderer/rt/binding"
	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/params"
)

const vec4Size = 16

func boolUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// PackParameters rewrites the whole parameter buffer for this frame: the
// global block first, then one block per entity and, in deferred mode, one
// per light, each starting on the device's uniform offset alignment.
// ShaderMesh packs a single entity block for MeshModel instead.
func (r *Renderer) PackParameters(cam *core.Camera) {
	align := r.dev.Limits().MinUniformBufferOffsetAlignment
	viewProj := cam.ViewProjection()
	lights := r.scene.Lights()[:r.lightCount()]
	b := r.params

	b.MapForWrite()
	b.Reset()

	r.GlobalOffset = b.Head
	b.PushVec3(cam.Position)
	b.PushUint32(uint32(r.Layer))
	b.PushUint32(uint32(len(lights)))
	b.PushUint32(boolUint(r.UseNormalMap))
	b.PushUint32(boolUint(r.UseBumpMap))
	b.PushFloat32(r.Bumpiness)
	for i := range lights {
		b.AlignHead(vec4Size)
		pushLight(b, &lights[i])
	}
	r.GlobalSize = b.Head - r.GlobalOffset

	if r.ShaderMode == ShaderMesh {
		b.AlignHead(align)
		r.meshParamsOffset = b.Head
		b.PushMat4(r.MeshWorld)
		b.PushMat4(viewProj.Mul4(r.MeshWorld))
		r.meshParamsSize = b.Head - r.meshParamsOffset
		b.Unmap()
		return
	}

	for i := 0; i < r.scene.EntityCount(); i++ {
		b.AlignHead(align)
		e := r.scene.Entity(uint32(i))
		e.LocalParamsOffset = b.Head
		b.PushMat4(e.WorldMatrix)
		b.PushMat4(viewProj.Mul4(e.WorldMatrix))
		if r.Mode == ModeDeferred {
			b.PushUint32(boolUint(e.Unlit))
		}
		e.LocalParamsSize = b.Head - e.LocalParamsOffset
	}

	if r.Mode == ModeDeferred {
		for i := range lights {
			b.AlignHead(align)
			l := &lights[i]
			l.LocalParamsOffset = b.Head
			b.PushMat4(l.WorldMatrix)
			b.PushMat4(viewProj.Mul4(l.WorldMatrix))
			pushLight(b, l)
			l.LocalParamsSize = b.Head - l.LocalParamsOffset
		}
	}

	b.Unmap()
}

func pushLight(b *params.Buffer, l *core.Light) {
	b.PushUint32(uint32(l.Type))
	b.PushVec3(l.Color)
	b.PushVec3(l.Direction)
	b.PushVec3(l.Position)
}

func (r *Renderer) bindTexture(prog uint32, name string, tex gpu.Handle) {
	if unit, ok := r.programs.TextureUnit(prog, name); ok {
		r.dev.BindTexture(unit, tex)
	}
}

// bindUniform binds a block of the parameter buffer on the slot the program
// declares name on. Programs without the block get nothing bound.
func (r *Renderer) bindUniform(prog uint32, name string, offset, size uint32) {
	if slot, ok := r.programs.UniformBlock(prog, name); ok {
		r.dev.BindUniformRange(slot, r.params.Handle, offset, size)
	}
}

func (r *Renderer) drawMesh(mesh *core.Mesh, prog uint32) {
	p := r.programs.Get(prog)
	for i := range mesh.Submeshes {
		r.dev.BindVertexBinding(binding.FindOrCreate(r.dev, r.log, mesh, uint32(i), p))
		sm := &mesh.Submeshes[i]
		r.dev.DrawIndexed(sm.IndexCount, sm.IndexOffset/4, 0)
	}
}

// GeometryPass draws every entity into the G-buffer, with the forward
// program or the deferred geometry program depending on Mode.
func (r *Renderer) GeometryPass() {
	progIdx := r.GeometryProgram
	if r.Mode == ModeForward {
		progIdx = r.ForwardProgram
	}
	prog := r.programs.Get(progIdx)

	r.dev.BeginPass(gpu.PassDescriptor{
		Label:      "Geometry Pass",
		Target:     r.gbuffer.Handle,
		Depth:      true,
		Clear:      true,
		ClearColor: r.ClearColor,

		// w == 0 marks background texels for the lighting pass
		AttachmentClear: map[int][4]float32{int(LayerPosition): {0, 0, 0, 0}},
	})
	r.dev.UseProgram(prog.Handle)
	r.bindUniform(progIdx, "uGlobal", r.GlobalOffset, r.GlobalSize)

	for i := 0; i < r.scene.EntityCount(); i++ {
		e := r.scene.Entity(uint32(i))
		r.bindUniform(progIdx, "uEntity", e.LocalParamsOffset, e.LocalParamsSize)

		model := r.scene.Model(e.ModelIdx)
		mesh := r.scene.Mesh(model.MeshIdx)
		for s := range mesh.Submeshes {
			r.dev.BindVertexBinding(binding.FindOrCreate(r.dev, r.log, mesh, uint32(s), prog))

			mat := r.scene.Material(model.MaterialIdx[s])
			r.bindTexture(progIdx, "uAlbedo", assets.Resolve(r.scene, mat.AlbedoTexIdx, r.defaults.White))
			if r.UseNormalMap {
				r.bindTexture(progIdx, "uNormalMap", assets.Resolve(r.scene, mat.NormalTexIdx, r.defaults.Normal))
			}
			if r.UseBumpMap {
				r.bindTexture(progIdx, "uBumpMap", assets.Resolve(r.scene, mat.BumpTexIdx, r.defaults.Black))
			}

			sm := &mesh.Submeshes[s]
			r.dev.DrawIndexed(sm.IndexCount, sm.IndexOffset/4, 0)
		}
	}
	r.dev.EndPass()
}

// LightingPass accumulates every light into the shaded attachment.
// Directional lights cover the screen with a quad; point lights draw their volume.
func (r *Renderer) LightingPass() {
	prog := r.programs.Get(r.LightingProgram)
	r.dev.BeginPass(gpu.PassDescriptor{
		Label:       "Lighting Pass",
		Target:      r.gbuffer.Handle,
		Attachments: []int{int(LayerShaded)},
		Clear:       true,
		ClearColor:  r.ClearColor,
	})
	r.dev.UseProgram(prog.Handle)
	r.bindUniform(r.LightingProgram, "uGlobal", r.GlobalOffset, r.GlobalSize)

	quad := r.scene.Mesh(r.quadMesh)
	sphere := r.scene.Mesh(r.sphereMesh)
	lights := r.scene.Lights()[:r.lightCount()]
	for i := range lights {
		l := &lights[i]
		r.bindUniform(r.LightingProgram, "uLight", l.LocalParamsOffset, l.LocalParamsSize)

		r.bindTexture(r.LightingProgram, "uGAlbedo", r.gbuffer.Colors[LayerAlbedo])
		r.bindTexture(r.LightingProgram, "uGNormal", r.gbuffer.Colors[LayerNormal])
		r.bindTexture(r.LightingProgram, "uGDepth", r.gbuffer.Colors[LayerDepth])
		r.bindTexture(r.LightingProgram, "uGPosition", r.gbuffer.Colors[LayerPosition])

		switch l.Type {
		case core.LightDirectional:
			r.drawMesh(quad, r.LightingProgram)
		case core.LightPoint:
			r.drawMesh(sphere, r.LightingProgram)
		default:
			r.log.Debugf("light %d has unknown type %d, skipped", i, uint32(l.Type))
		}
	}
	r.dev.EndPass()
}

// CompositionPass copies the attachment selected by Layer to the window.
func (r *Renderer) CompositionPass() {
	prog := r.programs.Get(r.FramebufferProgram)
	r.dev.BeginPass(gpu.PassDescriptor{
		Label:      "Framebuffer Pass",
		Target:     gpu.InvalidHandle,
		Clear:      true,
		ClearColor: r.ClearColor,
	})
	r.dev.UseProgram(prog.Handle)

	layer := r.Layer
	if layer >= layerCount {
		layer = LayerShaded
	}
	r.bindTexture(r.FramebufferProgram, "uTexture", r.gbuffer.Colors[layer])
	r.drawMesh(r.scene.Mesh(r.quadMesh), r.FramebufferProgram)
	r.dev.EndPass()
}

// QuadPass draws QuadTexture on a quad in the middle of the window.
func (r *Renderer) QuadPass() {
	prog := r.programs.Get(r.TexturedGeometryProgram)
	r.dev.BeginPass(gpu.PassDescriptor{
		Label:      "Quad Pass",
		Target:     gpu.InvalidHandle,
		Clear:      true,
		ClearColor: viewClearColor,
	})
	r.dev.UseProgram(prog.Handle)
	r.bindTexture(r.TexturedGeometryProgram, "uTexture", assets.Resolve(r.scene, r.QuadTexture, r.defaults.Magenta))
	r.drawMesh(r.scene.Mesh(r.quadMesh), r.TexturedGeometryProgram)
	r.dev.EndPass()
}

// MeshPass draws MeshModel alone, unlit, with each submesh's albedo.
func (r *Renderer) MeshPass() {
	prog := r.programs.Get(r.TexturedMeshProgram)
	r.dev.BeginPass(gpu.PassDescriptor{
		Label:      "Mesh Pass",
		Target:     gpu.InvalidHandle,
		Clear:      true,
		ClearColor: viewClearColor,
	})
	defer r.dev.EndPass()
	if int(r.MeshModel) >= r.scene.ModelCount() {
		r.log.Debugf("mesh view: no model %d", r.MeshModel)
		return
	}
	r.dev.UseProgram(prog.Handle)
	r.bindUniform(r.TexturedMeshProgram, "uEntity", r.meshParamsOffset, r.meshParamsSize)

	model := r.scene.Model(r.MeshModel)
	mesh := r.scene.Mesh(model.MeshIdx)
	for s := range mesh.Submeshes {
		r.dev.BindVertexBinding(binding.FindOrCreate(r.dev, r.log, mesh, uint32(s), prog))
		if s < len(model.MaterialIdx) {
			mat := r.scene.Material(model.MaterialIdx[s])
			r.bindTexture(r.TexturedMeshProgram, "uTexture", assets.Resolve(r.scene, mat.AlbedoTexIdx, r.defaults.White))
		}
		sm := &mesh.Submeshes[s]
		r.dev.DrawIndexed(sm.IndexCount, sm.IndexOffset/4, 0)
	}
}
