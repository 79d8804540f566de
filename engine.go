package deferred

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gekko3d/deferred/renderer/rt/assets"
	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/gekko3d/deferred/renderer/rt/pipeline"
	"github.com/gekko3d/deferred/renderer/rt/program"
	"github.com/gekko3d/deferred/renderer/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

// Engine wires the scene, the camera and the renderer to a device and runs
// the per-frame update.
type Engine struct {
	Config   Config
	Log      Logger
	Device   gpu.Device
	Scene    *core.Scene
	Camera   *core.Camera
	Programs *program.Registry
	Renderer *pipeline.Renderer

	watcher *program.Watcher
	fps     float64
}

func NewEngine(dev gpu.Device, cfg Config, log Logger) (*Engine, error) {
	if log == nil {
		log = NewNopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shaderMode, _ := ParseShaderMode(cfg.Renderer.ShaderMode)
	mode, _ := ParseMode(cfg.Renderer.Mode)
	layer, _ := ParseLayer(cfg.Renderer.Layer)

	var files program.FileSource = program.FSFiles{FS: shaders.FS}
	if cfg.Shaders.Dir != "" {
		files = program.OSFiles{Root: cfg.Shaders.Dir}
	}

	e := &Engine{
		Config: cfg,
		Log:    log,
		Device: dev,
		Scene:  core.NewScene(),
		Camera: core.NewCamera(),
	}
	e.Programs = program.NewRegistry(dev, files, named(log, "program"))
	if cfg.Shaders.Watch {
		w, err := program.NewWatcher(named(log, "watch"))
		if err != nil {
			return nil, fmt.Errorf("shader watcher: %w", err)
		}
		e.watcher = w
		e.Programs.Watch(w)
	}

	e.Renderer = pipeline.New(dev, e.Scene, e.Programs, named(log, "pipeline"), cfg.Options())
	e.Renderer.ShaderMode = shaderMode
	e.Renderer.Mode = mode
	e.Renderer.Layer = layer
	e.Renderer.UseNormalMap = cfg.Renderer.NormalMap
	e.Renderer.UseBumpMap = cfg.Renderer.BumpMap

	c := cfg.Camera
	e.Camera.Position = mgl32.Vec3(c.Position)
	e.Camera.Target = mgl32.Vec3(c.Target)
	e.Camera.MoveSpeed = c.MoveSpeed
	e.Camera.FovY = mgl32.DegToRad(c.FovY)
	e.Camera.Near, e.Camera.Far = c.Near, c.Far
	e.Camera.SetViewport(cfg.Window.Width, cfg.Window.Height)
	e.Camera.UpdateMatrices()

	if err := e.buildScene(); err != nil {
		e.Close()
		return nil, err
	}

	info := dev.Info()
	log.Infof("device: %s %s (%s, %s)", info.Vendor, info.Renderer, info.Driver, info.Backend)
	log.Infof("scene: %d entities, %d lights, %d programs", e.Scene.EntityCount(), e.Scene.LightCount(), e.Programs.Count())
	return e, nil
}

// texture loads path, or builds the fallback when path is empty.
func (e *Engine) texture(path, label string, fallback func() *image.RGBA) (uint32, error) {
	if path == "" {
		return assets.CreateTexture(e.Device, e.Scene, label, fallback()), nil
	}
	return assets.LoadTexture2D(e.Device, e.Scene, path)
}

func (e *Engine) buildScene() error {
	s := e.Scene
	cfg := e.Config.Scene

	height, normal := assets.Bumps(256, 8)
	reliefAlbedo, err := e.texture(cfg.AlbedoTexture, "relief albedo", func() *image.RGBA {
		return assets.Checker(256, 8, color.RGBA{200, 120, 60, 255}, color.RGBA{240, 220, 180, 255})
	})
	if err != nil {
		return err
	}
	reliefNormal, err := e.texture(cfg.NormalTexture, "relief normal", func() *image.RGBA { return normal })
	if err != nil {
		return err
	}
	reliefBump, err := e.texture(cfg.BumpTexture, "relief bump", func() *image.RGBA { return height })
	if err != nil {
		return err
	}

	solidMaterial := func(name string, c color.RGBA) uint32 {
		m := core.NewMaterial(name)
		m.AlbedoTexIdx = assets.CreateTexture(e.Device, s, name, assets.Checker(1, 1, c, c))
		return s.AddMaterial(m)
	}
	defaultMat := s.AddMaterial(core.NewMaterial("default"))
	bodyMat := solidMaterial("body", color.RGBA{230, 200, 40, 255})
	headMat := solidMaterial("head", color.RGBA{240, 150, 170, 255})
	floorMat := core.NewMaterial("floor")
	floorMat.AlbedoTexIdx = assets.CreateTexture(e.Device, s, "floor", assets.Checker(256, 16,
		color.RGBA{90, 90, 90, 255}, color.RGBA{160, 160, 160, 255}))
	floor := s.AddMaterial(floorMat)
	reliefMat := core.NewMaterial("relief")
	reliefMat.AlbedoTexIdx = reliefAlbedo
	reliefMat.NormalTexIdx = reliefNormal
	reliefMat.BumpTexIdx = reliefBump
	relief := s.AddMaterial(reliefMat)

	figure := assets.AddModel(s, assets.UploadMesh(e.Device, s, assets.Figure()), bodyMat, headMat)
	cube := assets.AddModel(s, assets.UploadMesh(e.Device, s, assets.Cube()), relief)
	plane := assets.AddModel(s, assets.UploadMesh(e.Device, s, assets.Plane()), floor)
	sphere := assets.AddModel(s, assets.UploadMesh(e.Device, s, assets.Sphere(32, 48)), defaultMat)
	e.Renderer.MeshModel = figure
	e.Renderer.QuadTexture = reliefAlbedo

	entity := func(name string, pos mgl32.Vec3, scale float32, model uint32) uint32 {
		return s.AddEntity(core.Entity{
			Name:        name,
			WorldMatrix: core.PositionScale(pos, scale),
			ModelIdx:    model,
		})
	}
	entity("Patrick_1", mgl32.Vec3{5, 3.5, -5}, 1, figure)
	entity("Patrick_2", mgl32.Vec3{0, 3.5, 0}, 1, figure)
	entity("Patrick_3", mgl32.Vec3{-5, 3.5, -5}, 1, figure)
	s.Entity(entity("ReliefCube", mgl32.Vec3{0, 5, 0}, 1, cube)).Unlit = true
	entity("Plane_1", mgl32.Vec3{0, 0, 0}, 25, plane)
	entity("Sphere_1", mgl32.Vec3{2, 2, 0}, 1, sphere)

	s.AddLight(core.Light{
		Type:        core.LightDirectional,
		Color:       mgl32.Vec3{1, 1, 1},
		Direction:   mgl32.Vec3{1, 1, 1},
		Position:    mgl32.Vec3{1, 1, 1},
		WorldMatrix: core.PositionScale(mgl32.Vec3{1, 1, 1}, 1),
	})
	s.AddLight(core.Light{
		Type:        core.LightPoint,
		Color:       mgl32.Vec3{0.5, 0, 0},
		Position:    mgl32.Vec3{0, 3, -2},
		WorldMatrix: core.PositionScale(mgl32.Vec3{0, 3, -2}, cfg.PointLightRadius),
	})
	return nil
}

// Update applies input, refreshes the camera and reloads changed shaders.
// It reports whether the user asked to quit.
func (e *Engine) Update(in *Input, dt float32) bool {
	quit := e.ApplyInput(in, dt)
	if in.WindowWidth > 0 && in.WindowHeight > 0 {
		e.Resize(in.WindowWidth, in.WindowHeight)
	}
	e.Camera.UpdateMatrices()
	e.Programs.PollHotReload()

	if dt > 0 {
		fps := 1 / float64(dt)
		if e.fps == 0 {
			e.fps = fps
		} else {
			e.fps = e.fps*0.9 + fps*0.1
		}
	}
	return quit
}

// ApplyInput handles the keyboard toggles and camera movement.
func (e *Engine) ApplyInput(in *Input, dt float32) bool {
	r := e.Renderer
	if in.JustPressed[KeySpace] {
		r.DebugGroups = !r.DebugGroups
	}
	if in.JustPressed[KeyM] {
		r.Mode = r.Mode.Toggle()
		e.Log.Debugf("render mode %s", r.Mode)
	}
	if in.JustPressed[KeyL] {
		r.Layer = r.Layer.Next()
		e.Log.Debugf("render layer %s", r.Layer)
	}
	if in.JustPressed[KeyN] {
		r.UseNormalMap = !r.UseNormalMap
	}
	if in.JustPressed[KeyB] {
		r.UseBumpMap = !r.UseBumpMap
	}

	step := e.Camera.MoveSpeed * dt
	var delta mgl32.Vec3
	if in.Pressed[KeyW] {
		delta[2] -= step
	}
	if in.Pressed[KeyS] {
		delta[2] += step
	}
	if in.Pressed[KeyA] {
		delta[0] -= step
	}
	if in.Pressed[KeyD] {
		delta[0] += step
	}
	if in.Pressed[KeyE] {
		delta[1] -= step
	}
	if in.Pressed[KeyQ] {
		delta[1] += step
	}
	if e.Config.Camera.MoveTarget {
		e.Camera.Translate(delta)
	} else {
		e.Camera.Position = e.Camera.Position.Add(delta)
	}
	return in.JustPressed[KeyEscape]
}

func (e *Engine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.Camera.SetViewport(width, height)
	e.Renderer.Resize(uint32(width), uint32(height))
}

func (e *Engine) Render() error {
	return e.Renderer.Render(e.Camera)
}

func (e *Engine) FPS() float64 { return e.fps }

func (e *Engine) Close() {
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			e.Log.Warnf("close watcher: %v", err)
		}
		e.watcher = nil
	}
	if e.Renderer != nil {
		e.Renderer.Release()
	}
}
