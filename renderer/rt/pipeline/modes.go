package pipeline

import "fmt"

type Mode uint32

const (
	ModeForward Mode = iota
	ModeDeferred
)

func (m Mode) String() string {
	switch m {
	case ModeForward:
		return "Forward"
	case ModeDeferred:
		return "Deferred"
	}
	return fmt.Sprintf("Mode(%d)", uint32(m))
}

func (m Mode) Toggle() Mode {
	if m == ModeForward {
		return ModeDeferred
	}
	return ModeForward
}

// Layer selects which G-buffer attachment the composition pass shows.
// The value doubles as the attachment index.
type Layer uint32

const (
	LayerShaded Layer = iota
	LayerAlbedo
	LayerNormal
	LayerDepth
	LayerPosition
	layerCount
)

var layerNames = [layerCount]string{"Shaded", "Albedo", "Normal", "Depth", "Position"}

func (l Layer) String() string {
	if l < layerCount {
		return layerNames[l]
	}
	return fmt.Sprintf("Layer(%d)", uint32(l))
}

func (l Layer) Next() Layer {
	return (l + 1) % layerCount
}

// Layers lists every layer in attachment order.
func Layers() []Layer {
	return []Layer{LayerShaded, LayerAlbedo, LayerNormal, LayerDepth, LayerPosition}
}

// ShaderMode picks what Render draws. ShaderEntities is the full scene through
// the forward or deferred path; the other two are bring-up views that draw
// straight to the surface.
type ShaderMode uint32

const (
	ShaderQuad ShaderMode = iota
	ShaderMesh
	ShaderEntities
)

func (m ShaderMode) String() string {
	switch m {
	case ShaderQuad:
		return "Quad"
	case ShaderMesh:
		return "Mesh"
	case ShaderEntities:
		return "Entities"
	}
	return fmt.Sprintf("ShaderMode(%d)", uint32(m))
}
