package binding

import (
	"fmt"

	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/program"
)

// FindOrCreate returns the vertex binding of submesh submeshIdx for prog,
// building and caching one on first use. Entries are keyed by the program's
// GPU handle, so a reloaded program gets a fresh binding and the old entry
// stays in the cache unused.
//
// It panics when prog expects an input location the submesh layout does not
// provide. Device failures go to log, which may be nil.
func FindOrCreate(dev gpu.Device, log program.Logger, mesh *core.Mesh, submeshIdx uint32, prog *program.Program) gpu.Handle {
	submesh := &mesh.Submeshes[submeshIdx]
	for _, vao := range submesh.VAOs {
		if vao.ProgramHandle == prog.Handle {
			return vao.Handle
		}
	}

	attributes := make([]gpu.VertexAttribute, 0, len(prog.Inputs))
	for _, in := range prog.Inputs {
		attr, ok := submesh.Layout.Find(in.Location)
		if !ok {
			panic(fmt.Sprintf("binding: program %s expects location %d which submesh %d of mesh %q does not provide",
				prog.Name, in.Location, submeshIdx, mesh.Name))
		}
		attributes = append(attributes, gpu.VertexAttribute{
			Location:   attr.Location,
			Components: attr.ComponentCount,
			Offset:     attr.Offset,
		})
	}

	handle, err := dev.CreateVertexBinding(gpu.VertexBindingDescriptor{
		Label:        fmt.Sprintf("%s/%d/%s", mesh.Name, submeshIdx, prog.Name),
		Program:      prog.Handle,
		VertexBuffer: mesh.VertexBuffer,
		IndexBuffer:  mesh.IndexBuffer,
		VertexOffset: submesh.VertexOffset,
		Stride:       submesh.Layout.Stride,
		Attributes:   attributes,
	})
	if err != nil && log != nil {
		// A broken program still gets a cache entry so the failure is reported once.
		log.Errorf("vertex binding for %s: %v", prog.Name, err)
	}
	submesh.VAOs = append(submesh.VAOs, core.VAO{
		ProgramHandle: prog.Handle,
		Handle:        handle,
	})
	return handle
}
