package gpu

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"math"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sophfee/helix-engine/engine/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	label    string
	released *int
}

func (h *fakeHandle) Release() { *h.released++ }

type fakeBuffer struct {
	usage BufferUsage
	data  []byte
}

type fakeTexture struct {
	tex TextureData
	smp SamplerData
}

// fakeUploader records every upload and can fail after a number of them.
type fakeUploader struct {
	buffers   map[string]fakeBuffer
	textures  map[string]fakeTexture
	released  int
	uploads   int
	failAfter int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{buffers: map[string]fakeBuffer{}, textures: map[string]fakeTexture{}, failAfter: -1}
}

func (u *fakeUploader) next(label string) (Handle, error) {
	if u.failAfter >= 0 && u.uploads >= u.failAfter {
		return nil, errors.New("device lost")
	}
	u.uploads++
	return &fakeHandle{label: label, released: &u.released}, nil
}

func (u *fakeUploader) UploadBuffer(label string, usage BufferUsage, data []byte) (Handle, error) {
	h, err := u.next(label)
	if err == nil {
		u.buffers[label] = fakeBuffer{usage: usage, data: append([]byte(nil), data...)}
	}
	return h, err
}

func (u *fakeUploader) UploadTexture(label string, tex TextureData, smp SamplerData) (Handle, error) {
	h, err := u.next(label)
	if err == nil {
		u.textures[label] = fakeTexture{tex: tex, smp: smp}
	}
	return h, err
}

func le(vals ...any) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func dataURI(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 10)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// quadAsset decodes a two-triangle quad with u8 indices, normals, texcoords, one gray texture
// and a texture whose image is missing.
func quadAsset(t *testing.T) *loader.Asset {
	t.Helper()
	bin := le(
		[]float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},    // positions, 48 bytes
		[]float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1},    // normals, 48 bytes
		[]uint16{0, 0, 65535, 0, 65535, 65535, 0, 65535}, // normalized u16 texcoords, 16 bytes
		[]uint8{0, 1, 2, 2, 3, 0, 0, 0},                  // indices + pad, 8 bytes
	)
	doc := map[string]any{
		"asset":   map[string]any{"version": "2.0"},
		"buffers": []any{map[string]any{"byteLength": len(bin), "uri": dataURI("application/octet-stream", bin)}},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 48},
			map[string]any{"buffer": 0, "byteOffset": 48, "byteLength": 48},
			map[string]any{"buffer": 0, "byteOffset": 96, "byteLength": 16},
			map[string]any{"buffer": 0, "byteOffset": 112, "byteLength": 6},
		},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "type": "VEC3", "count": 4},
			map[string]any{"bufferView": 1, "componentType": 5126, "type": "VEC3", "count": 4},
			map[string]any{"bufferView": 2, "componentType": 5123, "type": "VEC2", "count": 4, "normalized": true},
			map[string]any{"bufferView": 3, "componentType": 5121, "type": "SCALAR", "count": 6},
		},
		"meshes": []any{map[string]any{"name": "quad", "primitives": []any{map[string]any{
			"attributes": map[string]int{"POSITION": 0, "NORMAL": 1, "TEXCOORD_0": 2},
			"indices":    3,
			"material":   0,
		}}}},
		"materials": []any{map[string]any{"pbrMetallicRoughness": map[string]any{"baseColorTexture": map[string]any{"index": 0}}}},
		"textures": []any{
			map[string]any{"source": 0, "sampler": 0},
			map[string]any{"source": 1},
		},
		"samplers": []any{map[string]any{"magFilter": 9728, "minFilter": 9985, "wrapS": 33648, "wrapT": 33071}},
		"images": []any{
			map[string]any{"uri": dataURI("image/png", grayPNG(t, 2, 2))},
			map[string]any{"uri": "missing.png"},
		},
	}
	text, err := json.Marshal(doc)
	require.NoError(t, err)

	l := loader.NewLoader(loader.WithLogger(log.New(io.Discard, "", 0)))
	t.Cleanup(l.Close)
	asset, err := l.LoadSource(context.Background(), loader.Source{Path: t.TempDir() + "/quad.gltf", Text: text})
	require.NoError(t, err)
	return asset
}

func TestStageAssetUploadsSlotsAndIndices(t *testing.T) {
	up := newFakeUploader()
	staged, err := StageAsset(context.Background(), quadAsset(t), up)
	require.NoError(t, err)

	require.Len(t, staged.Meshes, 1)
	require.Len(t, staged.Meshes[0].Primitives, 1)
	prim := staged.Meshes[0].Primitives[0]
	assert.Equal(t, 4, prim.VertexCount)
	assert.Equal(t, 6, prim.IndexCount)
	assert.Equal(t, 0, prim.Texture)
	assert.Equal(t, loader.ModeTriangles, prim.Mode)
	for slot := range prim.Vertex {
		assert.NotNil(t, prim.Vertex[slot])
	}

	pos := up.buffers["mesh 0 prim 0 POSITION"]
	assert.Equal(t, BufferUsageVertex, pos.usage)
	assert.Len(t, pos.data, 4*3*4)

	uv := up.buffers["mesh 0 prim 0 TEXCOORD_0"]
	require.Len(t, uv.data, 4*2*4)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(uv.data[8:])))

	idx := up.buffers["mesh 0 prim 0 indices"]
	assert.Equal(t, BufferUsageIndex, idx.usage)
	assert.Equal(t, le([]uint32{0, 1, 2, 2, 3, 0}), idx.data)
}

func TestStageAssetTextures(t *testing.T) {
	up := newFakeUploader()
	staged, err := StageAsset(context.Background(), quadAsset(t), up)
	require.NoError(t, err)

	require.Len(t, staged.Textures, 2)
	assert.NotNil(t, staged.Textures[0])
	assert.Nil(t, staged.Textures[1], "texture with a missing image is skipped")

	require.Len(t, up.textures, 1)
	for _, tex := range up.textures {
		assert.Equal(t, uint32(2), tex.tex.Width)
		assert.Len(t, tex.tex.Pixels, 2*2*4)
		assert.Equal(t, []byte{10, 10, 10, 255}, tex.tex.Pixels[4:8])

		assert.Equal(t, wgpu.FilterModeNearest, tex.smp.MagFilter)
		assert.Equal(t, wgpu.FilterModeLinear, tex.smp.MinFilter)
		assert.Equal(t, wgpu.MipmapFilterModeNearest, tex.smp.MipmapFilter)
		assert.Equal(t, wgpu.AddressModeMirrorRepeat, tex.smp.AddressModeU)
		assert.Equal(t, wgpu.AddressModeClampToEdge, tex.smp.AddressModeV)
	}

	staged.Release()
	assert.Equal(t, up.uploads, up.released)
}

func TestStageAssetReleasesOnFailure(t *testing.T) {
	up := newFakeUploader()
	up.failAfter = 2

	staged, err := StageAsset(context.Background(), quadAsset(t), up)
	assert.Nil(t, staged)
	assert.ErrorContains(t, err, "device lost")
	assert.Equal(t, 2, up.uploads)
	assert.Equal(t, 2, up.released)
}

func TestStageAssetHonorsCancellation(t *testing.T) {
	asset := quadAsset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// images may already be done, so either the wait or the texture stage reports the cancellation
	_, err := StageAsset(ctx, asset, newFakeUploader())
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestExpandRGBA(t *testing.T) {
	cases := map[int]struct {
		data []byte
		want []byte
	}{
		1: {[]byte{7}, []byte{7, 7, 7, 255}},
		2: {[]byte{7, 9}, []byte{7, 7, 7, 9}},
		3: {[]byte{1, 2, 3}, []byte{1, 2, 3, 255}},
		4: {[]byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
	}
	for channels, tc := range cases {
		out := ExpandRGBA(&loader.Pixels{Width: 1, Height: 1, Channels: channels, Data: tc.data})
		assert.Equal(t, tc.want, out.Pixels, "channels=%d", channels)
		assert.Equal(t, uint32(1), out.Width)
	}
}

func TestSamplerFromAsset(t *testing.T) {
	def := SamplerFromAsset(loader.Sampler{WrapS: loader.WrapRepeat, WrapT: loader.WrapRepeat})
	assert.Equal(t, DefaultSamplerData(), def)

	s := SamplerFromAsset(loader.Sampler{
		MagFilter: loader.FilterLinear,
		MinFilter: loader.FilterNearestMipmapLinear,
		WrapS:     loader.WrapClampToEdge,
		WrapT:     loader.WrapMirroredRepeat,
	})
	assert.Equal(t, wgpu.FilterModeLinear, s.MagFilter)
	assert.Equal(t, wgpu.FilterModeNearest, s.MinFilter)
	assert.Equal(t, wgpu.MipmapFilterModeLinear, s.MipmapFilter)
	assert.Equal(t, wgpu.AddressModeClampToEdge, s.AddressModeU)
	assert.Equal(t, wgpu.AddressModeMirrorRepeat, s.AddressModeV)
}

func TestStageAssetGeneratesMissingNormals(t *testing.T) {
	bin := le([]float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	doc := map[string]any{
		"asset":       map[string]any{"version": "2.0"},
		"buffers":     []any{map[string]any{"byteLength": len(bin), "uri": dataURI("application/octet-stream", bin)}},
		"bufferViews": []any{map[string]any{"buffer": 0, "byteLength": 36}},
		"accessors":   []any{map[string]any{"bufferView": 0, "componentType": 5126, "type": "VEC3", "count": 3}},
		"meshes": []any{map[string]any{"primitives": []any{
			map[string]any{"attributes": map[string]int{"POSITION": 0}},
			map[string]any{"attributes": map[string]int{"POSITION": 0}, "mode": 0},
		}}},
	}
	text, err := json.Marshal(doc)
	require.NoError(t, err)
	l := loader.NewLoader(loader.WithLogger(log.New(io.Discard, "", 0)))
	defer l.Close()
	asset, err := l.LoadSource(context.Background(), loader.Source{Text: text})
	require.NoError(t, err)

	up := newFakeUploader()
	staged, err := StageAsset(context.Background(), asset, up)
	require.NoError(t, err)

	tri := staged.Meshes[0].Primitives[0]
	assert.True(t, tri.GeneratedNormals)
	assert.NotNil(t, tri.Vertex[loader.SlotNormal])
	assert.Nil(t, tri.Vertex[loader.SlotTexCoord0])
	assert.Equal(t, le([]float32{0, 0, 1, 0, 0, 1, 0, 0, 1}), up.buffers["mesh 0 prim 0 NORMAL"].data)

	points := staged.Meshes[0].Primitives[1]
	assert.False(t, points.GeneratedNormals, "only triangle lists get normals")
	assert.Nil(t, points.Vertex[loader.SlotNormal])
}
