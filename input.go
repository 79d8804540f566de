package deferred

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	KeyA int = iota
	KeyB
	KeyD
	KeyE
	KeyL
	KeyM
	KeyN
	KeyQ
	KeyS
	KeyW
	KeySpace
	KeyEscape
	keyCount
)

// Input is a per-frame keyboard snapshot. JustPressed and JustReleased are
// true only on the frame the key changed.
type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	WindowWidth, WindowHeight int
}

// Set records the state of key for this frame.
func (in *Input) Set(key int, down bool) {
	in.JustPressed[key] = false
	in.JustReleased[key] = false
	if down {
		if !in.Pressed[key] {
			in.JustPressed[key] = true
		}
		in.Pressed[key] = true
	} else {
		if in.Pressed[key] {
			in.JustReleased[key] = true
		}
		in.Pressed[key] = false
	}
}

// PollInput pumps the GLFW event queue and samples every mapped key.
func PollInput(window *glfw.Window, in *Input) {
	glfw.PollEvents()
	for key, glfwKey := range keyToGlfw {
		in.Set(key, window.GetKey(glfwKey) == glfw.Press)
	}
	in.WindowWidth, in.WindowHeight = window.GetFramebufferSize()
}

var keyToGlfw = map[int]glfw.Key{
	KeyA:      glfw.KeyA,
	KeyB:      glfw.KeyB,
	KeyD:      glfw.KeyD,
	KeyE:      glfw.KeyE,
	KeyL:      glfw.KeyL,
	KeyM:      glfw.KeyM,
	KeyN:      glfw.KeyN,
	KeyQ:      glfw.KeyQ,
	KeyS:      glfw.KeyS,
	KeyW:      glfw.KeyW,
	KeySpace:  glfw.KeySpace,
	KeyEscape: glfw.KeyEscape,
}
