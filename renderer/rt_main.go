package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/gekko3d/deferred"
	"github.com/gekko3d/deferred/renderer/rt/gpu/wgpudev"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	shaderDir := flag.String("shaders", "", "Load shaders from this directory and hot reload them")
	mode := flag.String("mode", "", "Render mode: forward or deferred")
	writeConfig := flag.Bool("write-config", false, "Print the effective config as TOML and exit")
	flag.Parse()

	cfg := deferred.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = deferred.LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *shaderDir != "" {
		cfg.Shaders.Dir = *shaderDir
		cfg.Shaders.Watch = true
	}
	if *mode != "" {
		cfg.Renderer.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *writeConfig {
		data, err := cfg.Marshal()
		if err != nil {
			panic(err)
		}
		os.Stdout.Write(data)
		return
	}

	log := deferred.NewDefaultLogger(cfg.Log.Prefix, cfg.Log.Debug)

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	device, err := wgpudev.New(window)
	if err != nil {
		panic(err)
	}
	defer device.Release()

	engine, err := deferred.NewEngine(device, cfg, log)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	input := &deferred.Input{}
	last := glfw.GetTime()
	lastTitle := last
	for !window.ShouldClose() {
		deferred.PollInput(window, input)
		now := glfw.GetTime()
		dt := float32(now - last)
		last = now

		if engine.Update(input, dt) {
			window.SetShouldClose(true)
		}
		if err := engine.Render(); err != nil {
			log.Debugf("frame skipped: %v", err)
		}

		if now-lastTitle > 0.5 {
			window.SetTitle(engine.DrawGui().Title(cfg.Window.Title))
			lastTitle = now
		}
	}
}
