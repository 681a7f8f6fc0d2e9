package loader

import (
	"bytes"
	"context"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(dir string) *bufferStore {
	return &bufferStore{baseDir: dir, maxFileSize: DefaultMaxFileSize}
}

func intPtr(v int) *int { return &v }

func TestResolveRangeValidViews(t *testing.T) {
	content := sequence(64)
	buffers := []Buffer{{ByteLength: 64, data: content}}
	rng := rand.New(rand.NewSource(1))

	for n := 0; n < 200; n++ {
		offset := rng.Intn(65)
		length := rng.Intn(65 - offset)
		got, err := resolveRange(buffers, 0, offset, length)
		require.NoError(t, err)
		assert.Len(t, got, length)
		assert.Equal(t, content[offset:offset+length], got)
	}
}

func TestResolveRangeRejectsOutOfBounds(t *testing.T) {
	buffers := []Buffer{{ByteLength: 16, data: sequence(16)}}
	cases := []struct{ index, offset, length int }{
		{0, 8, 9},
		{0, 17, 0},
		{0, -1, 4},
		{0, 0, -1},
		{1, 0, 1},
		{-1, 0, 1},
		{0, 1, int(^uint(0) >> 1)},
	}
	for _, c := range cases {
		got, err := resolveRange(buffers, c.index, c.offset, c.length)
		assert.ErrorIs(t, err, ErrInvalidData, "%+v", c)
		assert.Nil(t, got)
	}
}

func TestBufferStoreLoadsExternalFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bin/data.bin", sequence(32))

	buf, err := newTestStore(dir).load(context.Background(), 0, &gltfBuffer{URI: "bin/data.bin", ByteLength: intPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, sequence(20), buf.Data())
	assert.Equal(t, 20, buf.ByteLength)
}

func TestBufferStoreUnescapesURI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "my data.bin", sequence(4))

	buf, err := newTestStore(dir).load(context.Background(), 0, &gltfBuffer{URI: "my%20data.bin", ByteLength: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, sequence(4), buf.Data())
}

func TestBufferStoreFallbackRoot(t *testing.T) {
	docDir, fallback := t.TempDir(), t.TempDir()
	writeFile(t, fallback, "shared.bin", sequence(8))

	store := newTestStore(docDir)
	_, err := store.load(context.Background(), 0, &gltfBuffer{URI: "shared.bin", ByteLength: intPtr(8)})
	de := requireDecodeError(t, err)
	assert.Equal(t, KindResource, de.Kind)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	store.fallbackRoot = fallback
	buf, err := store.load(context.Background(), 0, &gltfBuffer{URI: "shared.bin", ByteLength: intPtr(8)})
	require.NoError(t, err)
	assert.Equal(t, sequence(8), buf.Data())
}

func TestBufferStorePrefersDocumentDirectory(t *testing.T) {
	docDir, fallback := t.TempDir(), t.TempDir()
	writeFile(t, docDir, "a.bin", []byte{1, 1, 1, 1})
	writeFile(t, fallback, "a.bin", []byte{2, 2, 2, 2})

	store := newTestStore(docDir)
	store.fallbackRoot = fallback
	buf, err := store.load(context.Background(), 0, &gltfBuffer{URI: "a.bin", ByteLength: intPtr(4)})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 1}, buf.Data())
}

func TestBufferStoreRejectsShortFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "short.bin", sequence(10))

	_, err := newTestStore(dir).load(context.Background(), 3, &gltfBuffer{URI: "short.bin", ByteLength: intPtr(16)})
	de := requireDecodeError(t, err)
	assert.Equal(t, sectionBuffers, de.Section)
	assert.Equal(t, 3, de.Index)
	assert.ErrorIs(t, err, errShortBuffer)
}

func TestBufferStoreRejectsOversizedLength(t *testing.T) {
	store := newTestStore(t.TempDir())
	store.maxFileSize = 1024

	_, err := store.load(context.Background(), 0, &gltfBuffer{URI: "huge.bin", ByteLength: intPtr(1 << 20)})
	assert.ErrorIs(t, err, errSizeCapExceeded)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBufferStoreRejectsEscapingURI(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "doc")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeFile(t, parent, "secret.bin", sequence(4))

	_, err := newTestStore(dir).load(context.Background(), 0, &gltfBuffer{URI: "../secret.bin", ByteLength: intPtr(4)})
	assert.ErrorIs(t, err, errOutsideRoot)
	assert.ErrorIs(t, err, ErrCantOpen)
}

func TestBufferStoreDataURI(t *testing.T) {
	buf, err := newTestStore(".").load(context.Background(), 0, &gltfBuffer{URI: dataURI(sequence(12)), ByteLength: intPtr(12)})
	require.NoError(t, err)
	assert.Equal(t, sequence(12), buf.Data())

	_, err = newTestStore(".").load(context.Background(), 0, &gltfBuffer{URI: "data:text/plain,hello", ByteLength: intPtr(5)})
	assert.ErrorIs(t, err, errInvalidDataURI)
	assert.ErrorIs(t, err, ErrParse)
}

func TestBufferStoreEmbedded(t *testing.T) {
	store := newTestStore(".")
	store.embedded = [][]byte{sequence(8)}

	buf, err := store.load(context.Background(), 0, &gltfBuffer{ByteLength: intPtr(6)})
	require.NoError(t, err)
	assert.Equal(t, sequence(6), buf.Data())

	_, err = store.load(context.Background(), 1, &gltfBuffer{ByteLength: intPtr(6)})
	assert.ErrorIs(t, err, errNoBufferSource)
}

func TestBufferStoreMissingByteLength(t *testing.T) {
	_, err := newTestStore(".").load(context.Background(), 0, &gltfBuffer{URI: "x.bin"})
	de := requireDecodeError(t, err)
	assert.Equal(t, "byteLength", de.Field)
	assert.Equal(t, KindStructural, de.Kind)
}

func TestReadFullContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := readFullContext(ctx, bytes.NewReader(sequence(16)), 16)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFullContextShortRead(t *testing.T) {
	_, err := readFullContext(context.Background(), bytes.NewReader(sequence(8)), 16)
	assert.Error(t, err)
}
