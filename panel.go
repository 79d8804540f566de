package deferred

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type ProgramStatus struct {
	Name   string
	File   string
	Handle uint32
	Error  string
}

// Panel is what a debug UI shows: device info, the camera and the renderer
// toggles. Fields a user may edit are written back with ApplyPanel.
type Panel struct {
	FPS        float64
	Vendor     string
	Renderer   string
	Driver     string
	Backend    string
	Extensions []string

	CameraPosition mgl32.Vec3
	ShaderMode     string
	Mode           string
	Layer          string
	UseNormalMap   bool
	UseBumpMap     bool
	Bumpiness      float32
	DebugGroups    bool

	Entities []string
	Lights   int
	Programs []ProgramStatus
}

func (e *Engine) DrawGui() Panel {
	info := e.Device.Info()
	r := e.Renderer
	p := Panel{
		FPS:            e.fps,
		Vendor:         info.Vendor,
		Renderer:       info.Renderer,
		Driver:         info.Driver,
		Backend:        info.Backend,
		Extensions:     append([]string(nil), info.Features...),
		CameraPosition: e.Camera.Position,
		ShaderMode:     r.ShaderMode.String(),
		Mode:           r.Mode.String(),
		Layer:          r.Layer.String(),
		UseNormalMap:   r.UseNormalMap,
		UseBumpMap:     r.UseBumpMap,
		Bumpiness:      r.Bumpiness,
		DebugGroups:    r.DebugGroups,
		Lights:         e.Scene.ActiveLights(),
	}
	for _, ent := range e.Scene.Entities() {
		p.Entities = append(p.Entities, ent.Name)
	}
	for i := 0; i < e.Programs.Count(); i++ {
		prog := e.Programs.Get(uint32(i))
		status := ProgramStatus{Name: prog.Name, File: prog.Filepath, Handle: uint32(prog.Handle)}
		if prog.Err != nil {
			status.Error = prog.Err.Error()
		}
		p.Programs = append(p.Programs, status)
	}
	return p
}

// ApplyPanel writes the editable panel fields back. Nothing changes when a
// mode or layer name is unknown.
func (e *Engine) ApplyPanel(p Panel) error {
	shaderMode, err := ParseShaderMode(p.ShaderMode)
	if err != nil {
		return err
	}
	mode, err := ParseMode(p.Mode)
	if err != nil {
		return err
	}
	layer, err := ParseLayer(p.Layer)
	if err != nil {
		return err
	}
	r := e.Renderer
	r.ShaderMode = shaderMode
	r.Mode = mode
	r.Layer = layer
	r.UseNormalMap = p.UseNormalMap
	r.UseBumpMap = p.UseBumpMap
	r.Bumpiness = p.Bumpiness
	r.DebugGroups = p.DebugGroups
	e.Camera.Position = p.CameraPosition
	return nil
}

// Title is a one-line summary for the window title bar.
func (p Panel) Title(base string) string {
	return fmt.Sprintf("%s | %.0f FPS | %s %s | %s", base, p.FPS, p.Mode, p.Layer, p.Renderer)
}
