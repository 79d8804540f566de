package program

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gekko3d/deferred/renderer/rt/gpu"
)

var (
	inputStructRe = regexp.MustCompile(`(?s)struct\s+VertexInput\s*\{(.*?)\}`)
	locationRe    = regexp.MustCompile(`@location\((\d+)\)\s*(\w+)\s*:\s*([\w<>]+)`)
	textureRe     = regexp.MustCompile(`@group\(1\)\s*@binding\((\d+)\)\s*var\s+(\w+)\s*:\s*texture_2d`)
	uniformRe     = regexp.MustCompile(`@group\(0\)\s*@binding\((\d+)\)\s*var<uniform>\s+(\w+)\s*:`)
)

func componentCount(typeName string) uint32 {
	switch {
	case strings.HasPrefix(typeName, "vec2"):
		return 2
	case strings.HasPrefix(typeName, "vec3"):
		return 3
	case strings.HasPrefix(typeName, "vec4"):
		return 4
	}
	return 1
}

// ReflectInputs returns the @location fields of the VertexInput struct ordered by location.
func ReflectInputs(src string) []gpu.VertexInput {
	m := inputStructRe.FindStringSubmatch(src)
	if m == nil {
		return nil
	}
	var inputs []gpu.VertexInput
	for _, f := range locationRe.FindAllStringSubmatch(m[1], -1) {
		loc, err := strconv.ParseUint(f[1], 10, 32)
		if err != nil {
			continue
		}
		inputs = append(inputs, gpu.VertexInput{
			Location:   uint32(loc),
			Components: componentCount(f[3]),
		})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Location < inputs[j].Location })
	return inputs
}

// ReflectTextures maps texture variable names to the texture unit they sample.
// Binding 0 of group 1 is the sampler, so unit = binding - 1.
func ReflectTextures(src string) map[string]uint32 {
	out := map[string]uint32{}
	for _, m := range textureRe.FindAllStringSubmatch(src, -1) {
		binding, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil || binding == 0 {
			continue
		}
		out[m[2]] = uint32(binding) - 1
	}
	return out
}

// ReflectUniforms maps uniform block names of group 0 to their binding, which
// is the uniform slot the block reads.
func ReflectUniforms(src string) map[string]uint32 {
	out := map[string]uint32{}
	for _, m := range uniformRe.FindAllStringSubmatch(src, -1) {
		slot, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		out[m[2]] = uint32(slot)
	}
	return out
}
