package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// imageDoc is a document with one tiny buffer and the given images.
func imageDoc(images ...map[string]any) doc {
	list := make([]any, len(images))
	for i, img := range images {
		list[i] = img
	}
	return doc{
		"asset":   map[string]any{"version": "2.0"},
		"buffers": []any{map[string]any{"byteLength": 4, "uri": dataURI(sequence(4))}},
		"images":  list,
	}
}

func TestMaterializeExternalImage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "textures/albedo.png", pngBytes(t, 5, 3, 9))

	asset, err := parseText(t, dir, imageDoc(map[string]any{"uri": "textures/albedo.png", "name": "albedo"}).bytes(t))
	require.NoError(t, err)

	images, err := asset.MaterializedImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	px := images[0].Pixels
	assert.Equal(t, "albedo", images[0].Name)
	assert.Equal(t, 5, px.Width)
	assert.Equal(t, 3, px.Height)
	assert.Equal(t, 4, px.Channels)
	assert.Len(t, px.Data, px.Width*px.Height*px.Channels)

	// pixel (2, 1) was encoded as (2, 1, 9, 246)
	o := (1*5 + 2) * 4
	assert.Equal(t, []byte{2, 1, 9, 246}, px.Data[o:o+4])
}

func TestMaterializeMissingImageIsOmitted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.png", pngBytes(t, 2, 2, 0))

	asset, err := parseText(t, dir, imageDoc(
		map[string]any{"uri": "missing.png"},
		map[string]any{"uri": "ok.png"},
	).bytes(t))
	require.NoError(t, err)
	assert.Equal(t, 2, asset.Counts().Images)

	images, err := asset.MaterializedImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 1, images[0].Index)

	missing, err := asset.Image(0)
	require.NoError(t, err)
	assert.True(t, missing.Ready())
	_, err = missing.Wait(context.Background())
	assert.ErrorIs(t, err, ErrImageAbsent)
	assert.ErrorIs(t, err, ErrCantOpen)
}

func TestMaterializeUndecodableImageIsOmitted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "junk.png", []byte("definitely not a png"))

	asset, err := parseText(t, dir, imageDoc(map[string]any{"uri": "junk.png"}).bytes(t))
	require.NoError(t, err)
	images, err := asset.MaterializedImages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestMaterializeEmbeddedImage(t *testing.T) {
	png := pngBytes(t, 3, 4, 1)
	d := doc{
		"buffers":     []any{map[string]any{"byteLength": len(png) + 4, "uri": dataURI(append(sequence(4), png...))}},
		"bufferViews": []any{map[string]any{"buffer": 0, "byteOffset": 4, "byteLength": len(png)}},
		"images":      []any{map[string]any{"bufferView": 0, "mimeType": "image/png"}},
	}
	asset, err := parseText(t, t.TempDir(), d.bytes(t))
	require.NoError(t, err)

	img, err := asset.Image(0)
	require.NoError(t, err)
	assert.True(t, img.Embedded())
	px, err := img.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, px.Width)
	assert.Equal(t, 4, px.Height)
}

func TestMaterializeDataURIImage(t *testing.T) {
	uri := "data:image/png;base64," + dataURI(pngBytes(t, 2, 2, 3))[len("data:application/octet-stream;base64,"):]
	asset, err := parseText(t, t.TempDir(), imageDoc(map[string]any{"uri": uri}).bytes(t))
	require.NoError(t, err)

	images, err := asset.MaterializedImages(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 2, images[0].Pixels.Width)
}

func TestAbortPolicyFailsLoad(t *testing.T) {
	dir := t.TempDir()
	text := imageDoc(map[string]any{"uri": "missing.png"}).bytes(t)

	asset, err := parseDocument(context.Background(), Source{Path: filepath.Join(dir, "scene.gltf"), Text: text},
		parseOptions{materializer: syncMaterializer(ImagePolicyAbort)})
	assert.Nil(t, asset)
	de := requireDecodeError(t, err)
	assert.Equal(t, KindResource, de.Kind)
	assert.Equal(t, sectionImages, de.Section)
	assert.Equal(t, 0, de.Index)
	assert.Equal(t, "uri", de.Field)
	assert.ErrorIs(t, err, ErrCantOpen)
}

func TestConcurrentDecodeMatchesSequential(t *testing.T) {
	const k = 12
	dir := t.TempDir()
	images := make([]map[string]any, k)
	for i := 0; i < k; i++ {
		name := fmt.Sprintf("img%02d.png", i)
		writeFile(t, dir, name, pngBytes(t, 8+i, 4+i%3, byte(i*20)))
		images[i] = map[string]any{"uri": name}
	}
	images[5] = map[string]any{"uri": "gone.png"}
	src := Source{Path: filepath.Join(dir, "scene.gltf"), Text: imageDoc(images...).bytes(t)}

	load := func(opts ...LoaderBuilderOption) []MaterializedImage {
		l := NewLoader(append(opts, WithLogger(discardLogger()))...)
		defer l.Close()
		asset, err := l.LoadSource(context.Background(), src)
		require.NoError(t, err)
		out, err := asset.MaterializedImages(context.Background())
		require.NoError(t, err)
		return out
	}

	sequential := load(WithDeferredImages(false))
	concurrent := load(WithWorkers(4))

	require.Len(t, sequential, k-1)
	require.Equal(t, len(sequential), len(concurrent))
	for i := range sequential {
		assert.Equal(t, sequential[i].Index, concurrent[i].Index)
		assert.Equal(t, sequential[i].Pixels, concurrent[i].Pixels)
	}
}

func TestMaterializeCancelledBeforeDecode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", pngBytes(t, 2, 2, 0))

	m := syncMaterializer(ImagePolicySkip)
	m.pool = newImagePool(1)
	defer m.pool.close()

	// occupy the only worker so the image decode stays queued until after cancellation
	started := make(chan struct{})
	release := make(chan struct{})
	m.pool.submit(func() {
		close(started)
		<-release
	}, func(error) {})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	asset, err := parseDocument(ctx, Source{Path: filepath.Join(dir, "scene.gltf"), Text: imageDoc(map[string]any{"uri": "a.png"}).bytes(t)},
		parseOptions{materializer: m})
	require.NoError(t, err)
	cancel()
	close(release)

	img, err := asset.Image(0)
	require.NoError(t, err)
	waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_, err = img.Wait(waitCtx)
	assert.ErrorIs(t, err, ErrImageAbsent)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImageWaitAbandonedByCaller(t *testing.T) {
	img := &Image{URI: "x.png", BufferView: Absent}
	_, err := img.Wait(context.Background())
	assert.ErrorIs(t, err, ErrImageAbsent)

	m := syncMaterializer(ImagePolicySkip)
	m.pool = newImagePool(1)
	defer m.pool.close()

	release := make(chan struct{})
	defer close(release)
	m.pool.submit(func() { <-release }, func(error) {})

	asset := newAsset("", ".")
	asset.images = []*Image{img}
	m.dispatch(context.Background(), &bufferStore{baseDir: ".", maxFileSize: DefaultMaxFileSize}, asset, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = img.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrImageAbsent)
	assert.False(t, img.Ready())
}

func TestRasterDecoderChannelsAndDownscale(t *testing.T) {
	data := pngBytes(t, 40, 10, 0)

	px, err := NewRasterDecoder(0, 0, 0).Decode(data)
	require.NoError(t, err)
	// alpha 255 everywhere, so the PNG is written and read back as opaque RGB
	assert.Equal(t, 3, px.Channels)

	for _, channels := range []int{1, 2, 3, 4} {
		px, err := NewRasterDecoder(channels, 0, 0).Decode(data)
		require.NoError(t, err)
		assert.Equal(t, channels, px.Channels)
		assert.Len(t, px.Data, 40*10*channels)
	}

	px, err = NewRasterDecoder(3, 16, 0).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 16, px.Width)
	assert.Equal(t, 4, px.Height)
	assert.Len(t, px.Data, 16*4*3)

	_, err = NewRasterDecoder(0, 0, 0).Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
