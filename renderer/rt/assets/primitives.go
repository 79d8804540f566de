package assets

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type builder struct {
	vertices []float32
	indices  []uint32
}

func (b *builder) vertex(p, n mgl32.Vec3, uv mgl32.Vec2, t mgl32.Vec3) uint32 {
	idx := uint32(len(b.vertices) / FloatsPerVertex)
	bt := n.Cross(t)
	b.vertices = append(b.vertices,
		p[0], p[1], p[2],
		n[0], n[1], n[2],
		uv[0], uv[1],
		t[0], t[1], t[2],
		bt[0], bt[1], bt[2],
	)
	return idx
}

// face appends a quad spanned by t and n×t around center, wound counter-clockwise seen along -n.
func (b *builder) face(center, n, t mgl32.Vec3, half float32) {
	bt := n.Cross(t)
	corner := func(su, sv float32) mgl32.Vec3 {
		return center.Add(t.Mul(su * half)).Add(bt.Mul(sv * half))
	}
	i0 := b.vertex(corner(-1, -1), n, mgl32.Vec2{0, 1}, t)
	b.vertex(corner(1, -1), n, mgl32.Vec2{1, 1}, t)
	b.vertex(corner(1, 1), n, mgl32.Vec2{1, 0}, t)
	b.vertex(corner(-1, 1), n, mgl32.Vec2{0, 0}, t)
	b.indices = append(b.indices, i0, i0+1, i0+2, i0, i0+2, i0+3)
}

func (b *builder) submesh() SubmeshData {
	return SubmeshData{Vertices: b.vertices, Indices: b.indices}
}

// Quad is the full-screen quad in normalized device coordinates.
func Quad() MeshData {
	b := &builder{}
	b.face(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, 1)
	return MeshData{Name: "Quad", Layout: StandardLayout(), Submeshes: []SubmeshData{b.submesh()}}
}

// Plane is a unit square on XZ facing +Y.
func Plane() MeshData {
	b := &builder{}
	b.face(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, 0.5)
	return MeshData{Name: "Plane", Layout: StandardLayout(), Submeshes: []SubmeshData{b.submesh()}}
}

func cube(b *builder, center mgl32.Vec3, half float32) {
	faces := []struct{ n, t mgl32.Vec3 }{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}},
	}
	for _, f := range faces {
		b.face(center.Add(f.n.Mul(half)), f.n, f.t, half)
	}
}

// Cube has edge length 2 and is centered on the origin.
func Cube() MeshData {
	b := &builder{}
	cube(b, mgl32.Vec3{}, 1)
	return MeshData{Name: "Cube", Layout: StandardLayout(), Submeshes: []SubmeshData{b.submesh()}}
}

func sphere(b *builder, center mgl32.Vec3, radius float32, rings, sectors int) {
	base := uint32(len(b.vertices) / FloatsPerVertex)
	for i := 0; i <= rings; i++ {
		theta := math.Pi * float64(i) / float64(rings)
		for j := 0; j <= sectors; j++ {
			phi := 2 * math.Pi * float64(j) / float64(sectors)
			n := mgl32.Vec3{
				float32(math.Sin(theta) * math.Cos(phi)),
				float32(math.Cos(theta)),
				float32(-math.Sin(theta) * math.Sin(phi)),
			}
			t := mgl32.Vec3{float32(-math.Sin(phi)), 0, float32(-math.Cos(phi))}
			uv := mgl32.Vec2{float32(j) / float32(sectors), float32(i) / float32(rings)}
			b.vertex(center.Add(n.Mul(radius)), n, uv, t)
		}
	}
	stride := uint32(sectors + 1)
	for i := uint32(0); i < uint32(rings); i++ {
		for j := uint32(0); j < uint32(sectors); j++ {
			k1 := base + i*stride + j
			k2 := k1 + stride
			b.indices = append(b.indices, k1, k2, k1+1, k1+1, k2, k2+1)
		}
	}
}

// Sphere is a UV sphere of radius 1.
func Sphere(rings, sectors int) MeshData {
	b := &builder{}
	sphere(b, mgl32.Vec3{}, 1, rings, sectors)
	return MeshData{Name: "Sphere", Layout: StandardLayout(), Submeshes: []SubmeshData{b.submesh()}}
}

// Figure is a two-part stand-in character: a body box and a head sphere, one submesh each.
func Figure() MeshData {
	body := &builder{}
	cube(body, mgl32.Vec3{0, 0, 0}, 1)
	head := &builder{}
	sphere(head, mgl32.Vec3{0, 1.8, 0}, 0.8, 16, 24)
	return MeshData{
		Name:      "Figure",
		Layout:    StandardLayout(),
		Submeshes: []SubmeshData{body.submesh(), head.submesh()},
	}
}
