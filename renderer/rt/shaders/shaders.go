package shaders

import (
	"embed"
)

// DeferredPath is the name of the shader file inside FS and inside a shader directory on disk.
const DeferredPath = "deferred.wgsl"

//go:embed deferred.wgsl
var DeferredWGSL string

// FS serves the built-in shaders when no shader directory is configured.
//
//go:embed *.wgsl
var FS embed.FS
