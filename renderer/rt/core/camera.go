package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// clipZ maps OpenGL clip depth [-w, w] to the [0, w] range WebGPU expects.
var clipZ = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

type Camera struct {
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	MoveSpeed   float32
	Near        float32
	Far         float32
	FovY        float32
	AspectRatio float32

	View       mgl32.Mat4
	Projection mgl32.Mat4
}

func NewCamera() *Camera {
	c := &Camera{
		Position:    mgl32.Vec3{0, 0, 20},
		Target:      mgl32.Vec3{0, 0, 0},
		MoveSpeed:   100.0,
		Near:        0.1,
		Far:         1000.0,
		FovY:        mgl32.DegToRad(60),
		AspectRatio: 16.0 / 9.0,
	}
	c.UpdateMatrices()
	return c
}

func (c *Camera) SetViewport(width, height int) {
	if width > 0 && height > 0 {
		c.AspectRatio = float32(width) / float32(height)
	}
}

// Translate moves position and target together so the view direction is kept.
func (c *Camera) Translate(delta mgl32.Vec3) {
	c.Position = c.Position.Add(delta)
	c.Target = c.Target.Add(delta)
}

func (c *Camera) UpdateMatrices() {
	c.View = mgl32.LookAtV(c.Position, c.Target, mgl32.Vec3{0, 1, 0})
	c.Projection = clipZ.Mul4(mgl32.Perspective(c.FovY, c.AspectRatio, c.Near, c.Far))
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.View)
}
