package assets

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/gekko3d/deferred/renderer/rt/core"
	"github.com/gekko3d/deferred/renderer/rt/gpu"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeRGBA decodes any registered image format into tightly packed RGBA.
func DecodeRGBA(r io.Reader) (*image.RGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*rgba.Rect.Dx() && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

// LoadTexture2D uploads the image at path once; later calls with the same path
// return the index of the first upload.
func LoadTexture2D(dev gpu.Device, scene *core.Scene, path string) (uint32, error) {
	if idx, ok := scene.FindTexture(path); ok {
		return idx, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("load texture: %w", err)
	}
	defer f.Close()

	img, err := DecodeRGBA(f)
	if err != nil {
		return 0, fmt.Errorf("decode texture %s: %w", path, err)
	}
	w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())
	handle := dev.CreateTexture2D(gpu.TextureDescriptor{
		Label:  path,
		Width:  w,
		Height: h,
		Format: gpu.FormatRGBA8,
		Pixels: img.Pix,
	})
	return scene.AddTexture(core.Texture{
		Handle:   handle,
		Filepath: path,
		Width:    w,
		Height:   h,
		Channels: 4,
	}), nil
}

// CreateTexture registers an in-memory RGBA texture under a generated key.
func CreateTexture(dev gpu.Device, scene *core.Scene, label string, img *image.RGBA) uint32 {
	w, h := uint32(img.Rect.Dx()), uint32(img.Rect.Dy())
	handle := dev.CreateTexture2D(gpu.TextureDescriptor{
		Label:  label,
		Width:  w,
		Height: h,
		Format: gpu.FormatRGBA8,
		Pixels: img.Pix,
	})
	return scene.AddTexture(core.Texture{
		Handle:   handle,
		Filepath: "mem:" + label + ":" + uuid.NewString(),
		Width:    w,
		Height:   h,
		Channels: 4,
	})
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, c)
	return img
}

// Defaults are the textures bound when a material slot is unset.
type Defaults struct {
	White   uint32
	Black   uint32
	Normal  uint32
	Magenta uint32
}

func CreateDefaults(dev gpu.Device, scene *core.Scene) Defaults {
	return Defaults{
		White:   CreateTexture(dev, scene, "white", solid(color.RGBA{255, 255, 255, 255})),
		Black:   CreateTexture(dev, scene, "black", solid(color.RGBA{0, 0, 0, 255})),
		Normal:  CreateTexture(dev, scene, "normal", solid(color.RGBA{128, 128, 255, 255})),
		Magenta: CreateTexture(dev, scene, "magenta", solid(color.RGBA{255, 0, 255, 255})),
	}
}

// Resolve returns the texture handle for a material slot, falling back to def.
func Resolve(scene *core.Scene, idx, def uint32) gpu.Handle {
	if idx == core.NoTexture || int(idx) >= scene.TextureCount() {
		idx = def
	}
	return scene.Texture(idx).Handle
}

// Checker builds a two-tone checkerboard, used when no albedo image is configured.
func Checker(size, cells int, a, b color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / cells
	if cell == 0 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, b)
			}
		}
	}
	return img
}

// Bumps returns a height map of rounded studs and its tangent-space normal map.
func Bumps(size, cells int) (height, normal *image.RGBA) {
	heightAt := func(x, y int) float64 {
		cell := float64(size) / float64(cells)
		u := math.Mod(float64(x), cell)/cell*2 - 1
		v := math.Mod(float64(y), cell)/cell*2 - 1
		d := 1 - (u*u + v*v)
		if d < 0 {
			return 0
		}
		return math.Sqrt(d)
	}
	height = image.NewRGBA(image.Rect(0, 0, size, size))
	normal = image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			h := heightAt(x, y)
			g := uint8(h * 255)
			height.SetRGBA(x, y, color.RGBA{g, g, g, 255})

			dx := heightAt((x+1)%size, y) - heightAt((x+size-1)%size, y)
			dy := heightAt(x, (y+1)%size) - heightAt(x, (y+size-1)%size)
			n := [3]float64{-dx * 2, -dy * 2, 1}
			l := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
			normal.SetRGBA(x, y, color.RGBA{
				uint8((n[0]/l*0.5 + 0.5) * 255),
				uint8((n[1]/l*0.5 + 0.5) * 255),
				uint8((n[2]/l*0.5 + 0.5) * 255),
				255,
			})
		}
	}
	return height, normal
}
