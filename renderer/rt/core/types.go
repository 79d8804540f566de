package core

import (
	"math"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// NoTexture marks an unset material texture slot; the default texture is used instead.
const NoTexture = math.MaxUint32

type Texture struct {
	Handle   gpu.Handle
	Filepath string
	Width    uint32
	Height   uint32
	Channels uint32
}

type Material struct {
	Name       string
	Albedo     mgl32.Vec3
	Emissive   mgl32.Vec3
	Smoothness float32

	AlbedoTexIdx   uint32
	NormalTexIdx   uint32
	BumpTexIdx     uint32
	SpecularTexIdx uint32
	EmissiveTexIdx uint32
}

func NewMaterial(name string) Material {
	return Material{
		Name:           name,
		Albedo:         mgl32.Vec3{1, 1, 1},
		Emissive:       mgl32.Vec3{1, 1, 1},
		Smoothness:     1.0,
		AlbedoTexIdx:   NoTexture,
		NormalTexIdx:   NoTexture,
		BumpTexIdx:     NoTexture,
		SpecularTexIdx: NoTexture,
		EmissiveTexIdx: NoTexture,
	}
}

type VertexAttribute struct {
	Location       uint32
	ComponentCount uint32
	Offset         uint32
}

type VertexBufferLayout struct {
	Attributes []VertexAttribute
	Stride     uint32
}

// Find returns the attribute bound to location.
func (l VertexBufferLayout) Find(location uint32) (VertexAttribute, bool) {
	for _, a := range l.Attributes {
		if a.Location == location {
			return a, true
		}
	}
	return VertexAttribute{}, false
}

// VAO is one cached vertex binding, keyed by the GPU handle of the program it was built for.
type VAO struct {
	ProgramHandle gpu.Handle
	Handle        gpu.Handle
}

type Submesh struct {
	Layout       VertexBufferLayout
	VertexOffset uint32
	IndexOffset  uint32
	IndexCount   uint32
	VAOs         []VAO
}

type Mesh struct {
	Name         string
	VertexBuffer gpu.Handle
	IndexBuffer  gpu.Handle
	Submeshes    []Submesh
}

type Model struct {
	MeshIdx     uint32
	MaterialIdx []uint32
}

type Entity struct {
	Name              string
	WorldMatrix       mgl32.Mat4
	ModelIdx          uint32
	// Unlit entities show their albedo as is in deferred mode.
	Unlit             bool
	LocalParamsOffset uint32
	LocalParamsSize   uint32
}

type LightType uint32

const (
	LightDirectional LightType = iota
	LightPoint
)

func (t LightType) String() string {
	switch t {
	case LightDirectional:
		return "DIRECTIONAL"
	case LightPoint:
		return "POINT"
	}
	return "UNKNOWN"
}

type Light struct {
	Type              LightType
	Color             mgl32.Vec3
	Direction         mgl32.Vec3
	Position          mgl32.Vec3
	WorldMatrix       mgl32.Mat4
	LocalParamsOffset uint32
	LocalParamsSize   uint32
}
