package loader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// doc is a document under construction; sections are marshalled as given.
type doc map[string]any

func (d doc) bytes(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	return data
}

func dataURI(b []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b)
}

// sequence returns n bytes 0, 1, 2, ...
func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func float32Bytes(vals ...float32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, vals)
	return buf.Bytes()
}

// pngBytes encodes a w x h NRGBA image whose pixel (x, y) is (x, y, seed, 255-seed).
func pngBytes(t *testing.T, w, h int, seed byte) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: byte(x), G: byte(y), B: seed, A: 255 - seed})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// triangleDoc is a complete single-triangle document with positions, normals, texcoords,
// u16 indices, one material, one texture and a two-node scene. Its buffer is a data URI.
func triangleDoc(t *testing.T) doc {
	t.Helper()
	var bin []byte
	bin = append(bin, float32Bytes(0, 0, 0, 1, 0, 0, 0, 1, 0)...) // positions, 36 bytes
	bin = append(bin, float32Bytes(0, 0, 1, 0, 0, 1, 0, 0, 1)...) // normals, 36 bytes
	bin = append(bin, float32Bytes(0, 0, 1, 0, 0, 1)...)          // texcoords, 24 bytes
	bin = append(bin, 0, 0, 1, 0, 2, 0, 0, 0)                     // u16 indices + pad, 8 bytes

	return doc{
		"asset": map[string]any{"version": "2.0", "generator": "fixture"},
		"scene": 0,
		"scenes": []any{
			map[string]any{"name": "main", "nodes": []int{0}},
		},
		"nodes": []any{
			map[string]any{"name": "root", "children": []int{1}, "translation": []float32{1, 2, 3}},
			map[string]any{"name": "tri", "mesh": 0},
		},
		"meshes": []any{
			map[string]any{
				"name": "triangle",
				"primitives": []any{
					map[string]any{
						"attributes": map[string]int{"POSITION": 0, "NORMAL": 1, "TEXCOORD_0": 2, "COLOR_0": 1},
						"indices":    3,
						"material":   0,
					},
				},
			},
		},
		"materials": []any{
			map[string]any{
				"name": "mat",
				"pbrMetallicRoughness": map[string]any{
					"baseColorFactor":  []float32{1, 0.5, 0.25, 1},
					"baseColorTexture": map[string]any{"index": 0},
					"metallicFactor":   0,
				},
			},
		},
		"textures": []any{map[string]any{"sampler": 0, "source": 0}},
		"samplers": []any{map[string]any{"magFilter": 9728, "minFilter": 9987, "wrapS": 33071}},
		"images":   []any{map[string]any{"uri": "tex.png"}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3",
				"min": []float64{0, 0, 0}, "max": []float64{1, 1, 0}},
			map[string]any{"bufferView": 1, "componentType": 5126, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 2, "componentType": 5126, "count": 3, "type": "VEC2"},
			map[string]any{"bufferView": 3, "componentType": 5123, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36, "target": 34962},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 36, "target": 34962},
			map[string]any{"buffer": 0, "byteOffset": 72, "byteLength": 24, "target": 34962},
			map[string]any{"buffer": 0, "byteOffset": 96, "byteLength": 6, "target": 34963},
		},
		"buffers": []any{
			map[string]any{"byteLength": len(bin), "uri": dataURI(bin)},
		},
	}
}

// discardLogger keeps skipped-image logs out of test output.
func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// syncMaterializer decodes inline with the default decoder.
func syncMaterializer(policy ImagePolicy) *imageMaterializer {
	m := newImageMaterializer()
	m.policy = policy
	m.logger = discardLogger()
	return m
}

func parseText(t *testing.T, dir string, text []byte) (*Asset, error) {
	t.Helper()
	return parseDocument(context.Background(), Source{Path: filepath.Join(dir, "scene.gltf"), Text: text},
		parseOptions{materializer: syncMaterializer(ImagePolicySkip)})
}

func requireDecodeError(t *testing.T, err error) *DecodeError {
	t.Helper()
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	return de
}
