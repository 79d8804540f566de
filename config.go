package deferred

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/gekko3d/deferred/renderer/rt/pipeline"
	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type ShaderConfig struct {
	// Dir holds deferred.wgsl on disk. Empty uses the embedded copy, which never reloads.
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type RendererConfig struct {
	// ShaderMode is "entities" for the scene, or "quad" / "mesh" for the bring-up views.
	ShaderMode  string  `toml:"shader_mode"`
	Mode        string  `toml:"mode"`
	Layer       string  `toml:"layer"`
	NormalMap   bool    `toml:"normal_map"`
	BumpMap     bool    `toml:"bump_map"`
	Bumpiness   float32 `toml:"bumpiness"`
	MaxLights   int     `toml:"max_lights"`
	DebugGroups bool    `toml:"debug_groups"`
	BufferSize  uint32  `toml:"buffer_size"`
}

type CameraConfig struct {
	Position  [3]float32 `toml:"position"`
	Target    [3]float32 `toml:"target"`
	MoveSpeed float32    `toml:"move_speed"`
	FovY      float32    `toml:"fov_y"`
	Near      float32    `toml:"near"`
	Far       float32    `toml:"far"`
	// MoveTarget moves the look-at target along with the camera.
	MoveTarget bool `toml:"move_target"`
}

type SceneConfig struct {
	AlbedoTexture string `toml:"albedo_texture"`
	NormalTexture string `toml:"normal_texture"`
	BumpTexture   string `toml:"bump_texture"`
	// PointLightRadius scales the point light volumes.
	PointLightRadius float32 `toml:"point_light_radius"`
}

type LogConfig struct {
	Prefix string `toml:"prefix"`
	Debug  bool   `toml:"debug"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Renderer RendererConfig `toml:"renderer"`
	Camera   CameraConfig   `toml:"camera"`
	Scene    SceneConfig    `toml:"scene"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() Config {
	opts := pipeline.DefaultOptions()
	return Config{
		Window: WindowConfig{
			Title:  "Deferred Renderer",
			Width:  int(opts.Width),
			Height: int(opts.Height),
		},
		Renderer: RendererConfig{
			ShaderMode:  "entities",
			Mode:        "deferred",
			Layer:       "shaded",
			Bumpiness:   opts.Bumpiness,
			MaxLights:   opts.MaxLights,
			DebugGroups: opts.DebugGroups,
		},
		Camera: CameraConfig{
			Position:  [3]float32{0, 10, 20},
			Target:    [3]float32{0, 0, 0},
			MoveSpeed: 10,
			FovY:      60,
			Near:      0.1,
			Far:       1000,
		},
		Scene: SceneConfig{
			PointLightRadius: 6,
		},
		Log: LogConfig{
			Prefix: "deferred",
		},
	}
}

// LoadConfig reads a TOML file over the defaults. Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the config as TOML, e.g. to write a starting config file.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := ParseShaderMode(c.Renderer.ShaderMode); err != nil {
		return err
	}
	if _, err := ParseMode(c.Renderer.Mode); err != nil {
		return err
	}
	if _, err := ParseLayer(c.Renderer.Layer); err != nil {
		return err
	}
	if c.Renderer.MaxLights < 1 || c.Renderer.MaxLights > pipeline.MaxShaderLights {
		return fmt.Errorf("max_lights %d not in [1, %d]", c.Renderer.MaxLights, pipeline.MaxShaderLights)
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return fmt.Errorf("camera clip range [%g, %g]", c.Camera.Near, c.Camera.Far)
	}
	if c.Shaders.Watch && c.Shaders.Dir == "" {
		return fmt.Errorf("shaders.watch needs shaders.dir")
	}
	return nil
}

func ParseMode(s string) (pipeline.Mode, error) {
	switch strings.ToLower(s) {
	case "forward":
		return pipeline.ModeForward, nil
	case "deferred":
		return pipeline.ModeDeferred, nil
	}
	return 0, fmt.Errorf("unknown render mode %q", s)
}

func ParseShaderMode(s string) (pipeline.ShaderMode, error) {
	for _, m := range []pipeline.ShaderMode{pipeline.ShaderQuad, pipeline.ShaderMesh, pipeline.ShaderEntities} {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown shader mode %q", s)
}

func ParseLayer(s string) (pipeline.Layer, error) {
	for _, l := range pipeline.Layers() {
		if strings.EqualFold(l.String(), s) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown render layer %q", s)
}

// Options converts the renderer settings for pipeline.New.
func (c Config) Options() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Width = uint32(c.Window.Width)
	opts.Height = uint32(c.Window.Height)
	opts.BufferSize = c.Renderer.BufferSize
	opts.MaxLights = c.Renderer.MaxLights
	opts.Bumpiness = c.Renderer.Bumpiness
	opts.DebugGroups = c.Renderer.DebugGroups
	return opts
}
