package main

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/HugoSmits86/nativewebp"
	"github.com/sophfee/helix-engine/engine/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpImagesWritesWebP(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	images := []loader.MaterializedImage{
		{Index: 0, Pixels: &loader.Pixels{Width: 2, Height: 1, Channels: 3, Data: []byte{255, 0, 0, 0, 255, 0}}},
		{Index: 3, Pixels: &loader.Pixels{Width: 1, Height: 1, Channels: 2, Data: []byte{40, 128}}},
	}

	n, err := dumpImages(dir, images)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := os.Open(filepath.Join(dir, "image_0.webp"))
	require.NoError(t, err)
	defer f.Close()
	img, err := nativewebp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, color.NRGBAModel.Convert(img.At(1, 0)))

	_, err = os.Stat(filepath.Join(dir, "image_3.webp"))
	assert.NoError(t, err)
}

func TestToNRGBAExpandsGrayAlpha(t *testing.T) {
	img := toNRGBA(&loader.Pixels{Width: 1, Height: 1, Channels: 2, Data: []byte{40, 128}})
	assert.Equal(t, color.NRGBA{40, 40, 40, 128}, img.NRGBAAt(0, 0))
}

func TestPrintSummary(t *testing.T) {
	l := loader.NewLoader(loader.WithLogger(log.New(io.Discard, "", 0)))
	defer l.Close()

	doc := `{"asset":{"version":"2.0","generator":"hand"},
		"meshes":[{"name":"empty","primitives":[{"attributes":{}}]}],
		"nodes":[{"mesh":0}],"scenes":[{"nodes":[0]}],"scene":0}`
	asset, err := l.LoadSource(context.Background(), loader.Source{Path: "doc.gltf", Text: []byte(doc)})
	require.NoError(t, err)

	var buf bytes.Buffer
	printSummary(&buf, asset, []loader.MaterializedImage{
		{Index: 1, Name: "albedo", Pixels: &loader.Pixels{Width: 4, Height: 2, Channels: 4}},
	})
	out := buf.String()
	assert.Contains(t, out, "Generator: hand")
	assert.Contains(t, out, "Nodes: 1, Scenes: 1, Roots: 1")
	assert.Contains(t, out, `mesh 0 "empty": 1 primitives, 0 vertices`)
	assert.Contains(t, out, "Images: 1 of 0 decoded")
	assert.Contains(t, out, `image 1 "albedo": 4x2, 4 channels`)
}
