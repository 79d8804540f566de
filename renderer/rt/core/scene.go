package core

// Scene owns every renderable resource in flat, append-only slices. Indices
// handed out by Add stay valid for the lifetime of the scene.
type Scene struct {
	textures  []Texture
	materials []Material
	meshes    []Mesh
	models    []Model
	entities  []Entity
	lights    []Light
}

func NewScene() *Scene {
	return &Scene{}
}

func (s *Scene) AddTexture(t Texture) uint32 {
	s.textures = append(s.textures, t)
	return uint32(len(s.textures) - 1)
}

func (s *Scene) Texture(idx uint32) *Texture { return &s.textures[idx] }
func (s *Scene) TextureCount() int           { return len(s.textures) }

// FindTexture returns the index of the texture loaded from path.
func (s *Scene) FindTexture(path string) (uint32, bool) {
	for i := range s.textures {
		if s.textures[i].Filepath == path {
			return uint32(i), true
		}
	}
	return 0, false
}

func (s *Scene) AddMaterial(m Material) uint32 {
	s.materials = append(s.materials, m)
	return uint32(len(s.materials) - 1)
}

func (s *Scene) Material(idx uint32) *Material { return &s.materials[idx] }
func (s *Scene) MaterialCount() int            { return len(s.materials) }

func (s *Scene) AddMesh(m Mesh) uint32 {
	s.meshes = append(s.meshes, m)
	return uint32(len(s.meshes) - 1)
}

func (s *Scene) Mesh(idx uint32) *Mesh { return &s.meshes[idx] }
func (s *Scene) MeshCount() int        { return len(s.meshes) }

func (s *Scene) AddModel(m Model) uint32 {
	s.models = append(s.models, m)
	return uint32(len(s.models) - 1)
}

func (s *Scene) Model(idx uint32) *Model { return &s.models[idx] }
func (s *Scene) ModelCount() int         { return len(s.models) }

func (s *Scene) AddEntity(e Entity) uint32 {
	s.entities = append(s.entities, e)
	return uint32(len(s.entities) - 1)
}

func (s *Scene) Entity(idx uint32) *Entity { return &s.entities[idx] }
func (s *Scene) EntityCount() int          { return len(s.entities) }

// Entities exposes the backing slice for in-place per-frame updates.
func (s *Scene) Entities() []Entity { return s.entities }

func (s *Scene) AddLight(l Light) uint32 {
	s.lights = append(s.lights, l)
	return uint32(len(s.lights) - 1)
}

func (s *Scene) Light(idx uint32) *Light { return &s.lights[idx] }
func (s *Scene) LightCount() int         { return len(s.lights) }
func (s *Scene) Lights() []Light         { return s.lights }

// ActiveLights is the number of lights the frame packs and shades.
func (s *Scene) ActiveLights() int { return len(s.lights) }
