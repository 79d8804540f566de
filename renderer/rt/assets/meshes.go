package assets

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
)

// Interleaved vertex: position, normal, uv, tangent, bitangent.
const (
	LocPosition uint32 = iota
	LocNormal
	LocTexCoord
	LocTangent
	LocBitangent
)

const FloatsPerVertex = 14

func StandardLayout() core.VertexBufferLayout {
	return core.VertexBufferLayout{
		Attributes: []core.VertexAttribute{
			{Location: LocPosition, ComponentCount: 3, Offset: 0},
			{Location: LocNormal, ComponentCount: 3, Offset: 12},
			{Location: LocTexCoord, ComponentCount: 2, Offset: 24},
			{Location: LocTangent, ComponentCount: 3, Offset: 32},
			{Location: LocBitangent, ComponentCount: 3, Offset: 44},
		},
		Stride: FloatsPerVertex * 4,
	}
}

// SubmeshData holds one submesh's vertices and submesh-local indices.
type SubmeshData struct {
	Vertices []float32
	Indices  []uint32
}

// MeshData is what a model importer hands over: raw arrays per submesh, all sharing a layout.
type MeshData struct {
	Name      string
	Layout    core.VertexBufferLayout
	Submeshes []SubmeshData
}

// UploadMesh packs every submesh into one vertex and one index buffer and registers the mesh.
func UploadMesh(dev gpu.Device, scene *core.Scene, data MeshData) uint32 {
	var vertices []byte
	var indices []byte
	mesh := core.Mesh{Name: data.Name}
	for _, sm := range data.Submeshes {
		mesh.Submeshes = append(mesh.Submeshes, core.Submesh{
			Layout:       data.Layout,
			VertexOffset: uint32(len(vertices)),
			IndexOffset:  uint32(len(indices)),
			IndexCount:   uint32(len(sm.Indices)),
		})
		for _, v := range sm.Vertices {
			vertices = binary.LittleEndian.AppendUint32(vertices, math.Float32bits(v))
		}
		for _, i := range sm.Indices {
			indices = binary.LittleEndian.AppendUint32(indices, i)
		}
	}
	mesh.VertexBuffer = dev.CreateBufferInit(data.Name+" Vertices", vertices, gpu.BufferVertex)
	mesh.IndexBuffer = dev.CreateBufferInit(data.Name+" Indices", indices, gpu.BufferIndex)
	return scene.AddMesh(mesh)
}

// AddModel pairs a mesh with materials. Submeshes past the end of materials use the last one.
func AddModel(scene *core.Scene, meshIdx uint32, materials ...uint32) uint32 {
	mesh := scene.Mesh(meshIdx)
	model := core.Model{MeshIdx: meshIdx}
	for i := range mesh.Submeshes {
		mat := uint32(0)
		switch {
		case i < len(materials):
			mat = materials[i]
		case len(materials) > 0:
			mat = materials[len(materials)-1]
		}
		model.MaterialIdx = append(model.MaterialIdx, mat)
	}
	return scene.AddModel(model)
}
