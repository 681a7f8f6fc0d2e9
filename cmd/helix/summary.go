package main

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/sophfee/helix-engine/engine/gpu"
	"github.com/sophfee/helix-engine/engine/loader"
)

// printSummary writes the asset's collection sizes, meshes and decoded images to w.
func printSummary(w io.Writer, asset *loader.Asset, images []loader.MaterializedImage) {
	c := asset.Counts()
	fmt.Fprintf(w, "Document: %s\n", asset.Path())
	if g := asset.Generator(); g != "" {
		fmt.Fprintf(w, "Generator: %s\n", g)
	}
	fmt.Fprintf(w, "Buffers: %d, Views: %d, Accessors: %d\n", c.Buffers, c.BufferViews, c.Accessors)
	fmt.Fprintf(w, "Meshes: %d, Materials: %d, Textures: %d, Samplers: %d\n", c.Meshes, c.Materials, c.Textures, c.Samplers)
	fmt.Fprintf(w, "Nodes: %d, Scenes: %d, Roots: %d\n", c.Nodes, c.Scenes, len(asset.RootNodes()))
	fmt.Fprintln(w, "------------------------------------------------------------")

	for i := 0; i < c.Meshes; i++ {
		mesh, err := asset.Mesh(i)
		if err != nil {
			continue
		}
		verts := 0
		for _, prim := range mesh.Primitives {
			if acc, err := asset.Accessor(prim.Attributes[loader.SlotPosition]); err == nil {
				verts += acc.Count
			}
		}
		fmt.Fprintf(w, "  mesh %d %q: %d primitives, %d vertices\n", i, mesh.Name, len(mesh.Primitives), verts)
	}

	fmt.Fprintf(w, "Images: %d of %d decoded\n", len(images), c.Images)
	for _, img := range images {
		fmt.Fprintf(w, "  image %d %q: %dx%d, %d channels\n",
			img.Index, img.Name, img.Pixels.Width, img.Pixels.Height, img.Pixels.Channels)
	}
}

// dumpImages writes each decoded image to dir as image_<index>.webp.
//
// Returns:
//   - int: the number of files written
//   - error: error if dir cannot be created or a file cannot be encoded
func dumpImages(dir string, images []loader.MaterializedImage) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for n, img := range images {
		out := filepath.Join(dir, fmt.Sprintf("image_%d.webp", img.Index))
		if err := writeWebP(out, toNRGBA(img.Pixels)); err != nil {
			return n, fmt.Errorf("image %d: %w", img.Index, err)
		}
	}
	return len(images), nil
}

func writeWebP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// toNRGBA expands a decoded raster of any channel count to straight-alpha RGBA.
func toNRGBA(px *loader.Pixels) *image.NRGBA {
	rgba := gpu.ExpandRGBA(px)
	return &image.NRGBA{
		Pix:    rgba.Pixels,
		Stride: int(rgba.Width) * 4,
		Rect:   image.Rect(0, 0, int(rgba.Width), int(rgba.Height)),
	}
}
