package deferred

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu/gputest"
	"github.com/gekko3d/deferred/renderer/rt/pipeline"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *gputest.Recorder) {
	t.Helper()
	rec := gputest.NewRecorder()
	e, err := NewEngine(rec, DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, rec
}

func press(in *Input, key int) {
	in.Set(key, true)
}

func TestEngineBuildsScene(t *testing.T) {
	e, _ := newTestEngine(t)

	var names []string
	for _, ent := range e.Scene.Entities() {
		names = append(names, ent.Name)
	}
	assert.Equal(t, []string{"Patrick_1", "Patrick_2", "Patrick_3", "ReliefCube", "Plane_1", "Sphere_1"}, names)
	assert.True(t, e.Scene.Entity(3).Unlit)
	assert.False(t, e.Scene.Entity(0).Unlit)
	assert.Equal(t, float32(25), e.Scene.Entity(4).WorldMatrix.At(0, 0))

	require.Equal(t, 2, e.Scene.ActiveLights())
	assert.Equal(t, core.LightDirectional, e.Scene.Light(0).Type)
	point := e.Scene.Light(1)
	assert.Equal(t, core.LightPoint, point.Type)
	assert.Equal(t, DefaultConfig().Scene.PointLightRadius, point.WorldMatrix.At(0, 0))
	assert.Equal(t, mgl32.Vec3{0, 3, -2}, point.WorldMatrix.Col(3).Vec3())

	figure := e.Scene.Model(e.Scene.Entity(0).ModelIdx)
	assert.Len(t, figure.MaterialIdx, 2)
	assert.Equal(t, 6, e.Programs.Count())
	assert.Equal(t, pipeline.ShaderEntities, e.Renderer.ShaderMode)
	assert.Equal(t, e.Scene.Entity(0).ModelIdx, e.Renderer.MeshModel)
	assert.Equal(t, material(e, 3).AlbedoTexIdx, e.Renderer.QuadTexture)
}

func material(e *Engine, entity uint32) *core.Material {
	model := e.Scene.Model(e.Scene.Entity(entity).ModelIdx)
	return e.Scene.Material(model.MaterialIdx[0])
}

func TestEngineShaderModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Renderer.ShaderMode = "mesh"
	rec := gputest.NewRecorder()
	e, err := NewEngine(rec, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	rec.Reset()
	require.NoError(t, e.Render())
	assert.Equal(t, []string{"Mesh Pass"}, passLabels(rec))
	assert.Len(t, rec.CallsOf(gputest.OpDraw), 2)

	e.Renderer.ShaderMode = pipeline.ShaderQuad
	rec.Reset()
	require.NoError(t, e.Render())
	assert.Equal(t, []string{"Quad Pass"}, passLabels(rec))
	relief := e.Scene.Texture(material(e, 3).AlbedoTexIdx).Handle
	assert.Equal(t, relief, rec.CallsOf(gputest.OpBindTexture)[0].Handle)
}

func passLabels(rec *gputest.Recorder) []string {
	var out []string
	for _, c := range rec.CallsOf(gputest.OpBeginPass) {
		out = append(out, c.Label)
	}
	return out
}

func TestEngineFrame(t *testing.T) {
	e, rec := newTestEngine(t)
	in := &Input{}
	assert.False(t, e.Update(in, 1.0/60))
	require.NoError(t, e.Render())

	// nine geometry draws (figures have two submeshes), two lights, one composite
	assert.Len(t, rec.CallsOf(gputest.OpDraw), 9+2+1)
	assert.InDelta(t, 60, e.FPS(), 0.01)
}

func TestApplyInputToggles(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Renderer
	in := &Input{}

	press(in, KeyM)
	press(in, KeyL)
	press(in, KeyN)
	press(in, KeyB)
	press(in, KeySpace)
	e.ApplyInput(in, 0)
	assert.Equal(t, pipeline.ModeForward, r.Mode)
	assert.Equal(t, pipeline.LayerAlbedo, r.Layer)
	assert.True(t, r.UseNormalMap)
	assert.True(t, r.UseBumpMap)
	assert.False(t, r.DebugGroups)

	// held keys do not toggle again
	for _, k := range []int{KeyM, KeyL, KeyN, KeyB, KeySpace} {
		press(in, k)
	}
	e.ApplyInput(in, 0)
	assert.Equal(t, pipeline.ModeForward, r.Mode)
	assert.Equal(t, pipeline.LayerAlbedo, r.Layer)
}

func TestApplyInputMovesCamera(t *testing.T) {
	e, _ := newTestEngine(t)
	start := e.Camera.Position
	target := e.Camera.Target
	in := &Input{}
	press(in, KeyW)
	press(in, KeyQ)
	e.ApplyInput(in, 0.5)

	step := e.Camera.MoveSpeed * 0.5
	assert.Equal(t, start.Add(mgl32.Vec3{0, step, -step}), e.Camera.Position)
	assert.Equal(t, target, e.Camera.Target)
}

func TestApplyInputMovesTargetWhenConfigured(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Config.Camera.MoveTarget = true
	target := e.Camera.Target
	in := &Input{}
	press(in, KeyD)
	e.ApplyInput(in, 1)
	assert.Equal(t, target.Add(mgl32.Vec3{e.Camera.MoveSpeed, 0, 0}), e.Camera.Target)
}

func TestEscapeQuits(t *testing.T) {
	e, _ := newTestEngine(t)
	in := &Input{}
	press(in, KeyEscape)
	assert.True(t, e.Update(in, 0))
}

func TestUpdateResizesGBuffer(t *testing.T) {
	e, _ := newTestEngine(t)
	in := &Input{WindowWidth: 640, WindowHeight: 480}
	e.Update(in, 0)
	w, h := e.Renderer.Size()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(480), h)
	assert.InDelta(t, 640.0/480.0, e.Camera.AspectRatio, 1e-6)
}

func TestInputEdges(t *testing.T) {
	in := &Input{}
	in.Set(KeyA, true)
	assert.True(t, in.JustPressed[KeyA])
	in.Set(KeyA, true)
	assert.False(t, in.JustPressed[KeyA])
	assert.True(t, in.Pressed[KeyA])
	in.Set(KeyA, false)
	assert.True(t, in.JustReleased[KeyA])
	assert.False(t, in.Pressed[KeyA])
}

func TestPanelRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	p := e.DrawGui()
	assert.Equal(t, "Entities", p.ShaderMode)
	assert.Equal(t, "Deferred", p.Mode)
	assert.Equal(t, "Shaded", p.Layer)
	assert.Equal(t, "Recorder", p.Vendor)
	assert.Len(t, p.Programs, 6)
	assert.Len(t, p.Entities, 6)
	assert.Equal(t, 2, p.Lights)

	p.ShaderMode = "quad"
	p.Mode = "forward"
	p.Layer = "depth"
	p.Bumpiness = 0.5
	p.CameraPosition = mgl32.Vec3{1, 2, 3}
	require.NoError(t, e.ApplyPanel(p))
	assert.Equal(t, pipeline.ShaderQuad, e.Renderer.ShaderMode)
	assert.Equal(t, pipeline.ModeForward, e.Renderer.Mode)
	assert.Equal(t, pipeline.LayerDepth, e.Renderer.Layer)
	assert.Equal(t, float32(0.5), e.Renderer.Bumpiness)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, e.Camera.Position)

	p.Mode = "sideways"
	p.Layer = "albedo"
	assert.Error(t, e.ApplyPanel(p))
	assert.Equal(t, pipeline.LayerDepth, e.Renderer.Layer)

	assert.True(t, strings.HasPrefix(e.DrawGui().Title("Deferred Renderer"), "Deferred Renderer | "))
}

func TestMissingTextureFailsEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scene.AlbedoTexture = filepath.Join(t.TempDir(), "missing.png")
	_, err := NewEngine(gputest.NewRecorder(), cfg, nil)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deferred.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[window]
width = 800
height = 600

[renderer]
mode = "forward"
layer = "Normal"
max_lights = 4

[camera]
position = [1.0, 2.0, 3.0]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Window.Width)
	assert.Equal(t, "forward", cfg.Renderer.Mode)
	assert.Equal(t, 4, cfg.Renderer.MaxLights)
	assert.Equal(t, [3]float32{1, 2, 3}, cfg.Camera.Position)
	assert.Equal(t, DefaultConfig().Camera.Far, cfg.Camera.Far, "unset keys keep defaults")

	layer, err := ParseLayer(cfg.Renderer.Layer)
	require.NoError(t, err)
	assert.Equal(t, pipeline.LayerNormal, layer)
	assert.Equal(t, uint32(4), uint32(cfg.Options().MaxLights))
}

func TestLoadConfigRejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key":  "[renderer]\nshadows = true\n",
		"bad mode":     "[renderer]\nmode = \"raytraced\"\n",
		"bad shader":   "[renderer]\nshader_mode = \"voxels\"\n",
		"too many":     "[renderer]\nmax_lights = 64\n",
		"watch no dir": "[shaders]\nwatch = true\n",
		"not toml":     "window = [",
	}
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
	_, err := LoadConfig(filepath.Join(dir, "absent.toml"))
	assert.Error(t, err)
}

func TestConfigMarshalLoadsBack(t *testing.T) {
	data, err := DefaultConfig().Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoggerPrefixAndDebugSwitch(t *testing.T) {
	var buf bytes.Buffer
	root := NewDefaultLogger("deferred", false)
	root.out = log.New(&buf, "", 0)
	child := root.With("program")

	child.Debugf("hidden")
	assert.Empty(t, buf.String())

	root.SetDebug(true)
	assert.True(t, child.DebugEnabled())
	child.Debugf("built %d", 3)
	assert.Equal(t, "[deferred/program] DEBUG: built 3\n", buf.String())

	buf.Reset()
	named(NewNopLogger(), "x").Infof("nothing")
	assert.Empty(t, buf.String())
}
