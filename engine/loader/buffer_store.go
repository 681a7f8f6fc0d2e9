package loader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	errInvalidDataURI  = errors.New("invalid data URI")
	errOutsideRoot     = errors.New("uri escapes the document directory")
	errSizeCapExceeded = errors.New("size exceeds configured maximum")
	errShortBuffer     = errors.New("buffer holds fewer bytes than declared")
	errNoBufferSource  = errors.New("buffer has no uri and no embedded bytes")
)

const (
	// DefaultMaxFileSize caps any single buffer or image allocation driven by the document.
	DefaultMaxFileSize int64 = 1 << 30

	// readChunkSize is the granularity at which file reads observe cancellation.
	readChunkSize = 4 << 20
)

// bufferStore loads raw buffer and image bytes for one document. It resolves external URIs
// against the document directory first and the fallback root second.
type bufferStore struct {
	baseDir      string
	fallbackRoot string
	maxFileSize  int64
	embedded     [][]byte
}

// load builds buffer index from its wire description.
//
// Parameters:
//   - ctx: context checked between read chunks
//   - index: the buffer's index in the document
//   - raw: the decoded wire element
//
// Returns:
//   - Buffer: the loaded buffer, truncated to its declared byteLength
//   - error: a *DecodeError locating the failure
func (s *bufferStore) load(ctx context.Context, index int, raw *gltfBuffer) (Buffer, error) {
	if raw.ByteLength == nil {
		return Buffer{}, structuralError(sectionBuffers, index, "byteLength", "required field missing")
	}
	byteLength := *raw.ByteLength
	if byteLength < 1 {
		return Buffer{}, structuralError(sectionBuffers, index, "byteLength", "must be >= 1, got %d", byteLength)
	}
	if int64(byteLength) > s.maxFileSize {
		return Buffer{}, boundsError(sectionBuffers, index, "byteLength", "%d bytes: %w", byteLength, errSizeCapExceeded)
	}

	var data []byte
	switch {
	case raw.URI == "":
		if index >= len(s.embedded) || s.embedded[index] == nil {
			return Buffer{}, structuralError(sectionBuffers, index, "uri", "%w", errNoBufferSource)
		}
		data = s.embedded[index]
	case strings.HasPrefix(raw.URI, "data:"):
		_, decoded, err := s.decodeDataURI(raw.URI)
		if err != nil {
			return Buffer{}, structuralError(sectionBuffers, index, "uri", "%w", err)
		}
		data = decoded
	default:
		read, err := s.readExternal(ctx, raw.URI, int64(byteLength))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Buffer{}, ctxErr
			}
			return Buffer{}, resourceError(sectionBuffers, index, "uri", err)
		}
		data = read
	}

	if len(data) < byteLength {
		return Buffer{}, boundsError(sectionBuffers, index, "byteLength",
			"%w: declared %d, have %d", errShortBuffer, byteLength, len(data))
	}

	return Buffer{
		Name:       raw.Name,
		URI:        raw.URI,
		ByteLength: byteLength,
		data:       data[:byteLength:byteLength],
	}, nil
}

// openExternal opens uri relative to the document directory, falling back to the fallback root
// only when the first candidate does not exist.
//
// Parameters:
//   - uri: the (possibly percent-encoded) relative URI
//
// Returns:
//   - *os.File: the opened file
//   - error: errOutsideRoot, fs.ErrNotExist, or the open failure
func (s *bufferStore) openExternal(uri string) (*os.File, error) {
	rel, err := url.PathUnescape(uri)
	if err != nil {
		rel = uri
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("%q: %w", uri, errOutsideRoot)
	}

	roots := []string{s.baseDir}
	if s.fallbackRoot != "" && s.fallbackRoot != s.baseDir {
		roots = append(roots, s.fallbackRoot)
	}

	for _, root := range roots {
		f, err := os.Open(filepath.Join(root, rel))
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%q not found under %s: %w", uri, strings.Join(roots, ", "), fs.ErrNotExist)
}

// readExternal reads want bytes from the start of uri, or the whole file when want is negative.
// The result is exactly the requested size or an error; a short file is never returned.
func (s *bufferStore) readExternal(ctx context.Context, uri string, want int64) ([]byte, error) {
	f, err := s.openExternal(uri)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", uri, err)
	}
	size := info.Size()
	if want < 0 {
		want = size
	}
	if want > s.maxFileSize {
		return nil, fmt.Errorf("%q: %d bytes: %w", uri, want, errSizeCapExceeded)
	}
	if size < want {
		return nil, fmt.Errorf("%q: %w: declared %d, file has %d", uri, errShortBuffer, want, size)
	}

	return readFullContext(ctx, f, want)
}

// readFullContext reads exactly n bytes from r, checking ctx between chunks.
func readFullContext(ctx context.Context, r io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	for off := int64(0); off < n; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(off+readChunkSize, n)
		if _, err := io.ReadFull(r, buf[off:end]); err != nil {
			return nil, fmt.Errorf("read %d of %d bytes: %w", off, n, err)
		}
		off = end
	}
	return buf, nil
}

// decodeDataURI decodes a base64 data URI.
// Format: data:[<mediatype>][;base64],<data>
//
// Returns:
//   - string: the media type (may be empty)
//   - []byte: the decoded payload
//   - error: errInvalidDataURI or errSizeCapExceeded
func (s *bufferStore) decodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, errInvalidDataURI
	}

	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return "", nil, fmt.Errorf("%w: unsupported encoding %q", errInvalidDataURI, header)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxFileSize {
		return "", nil, errSizeCapExceeded
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", errInvalidDataURI, err)
	}
	return mime, data, nil
}

// resolveRange returns buffers[index][offset:offset+length] after validating every bound.
//
// Parameters:
//   - buffers: the loaded buffers
//   - index: the buffer index
//   - offset: byte offset into the buffer
//   - length: number of bytes
//
// Returns:
//   - []byte: exactly length bytes starting at offset
//   - error: ErrInvalidData if the index or the range is out of bounds
func resolveRange(buffers []Buffer, index, offset, length int) ([]byte, error) {
	if index < 0 || index >= len(buffers) {
		return nil, fmt.Errorf("%w: buffer index %d out of range [0,%d)", ErrInvalidData, index, len(buffers))
	}
	data := buffers[index].data
	if offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		return nil, fmt.Errorf("%w: range [%d,+%d) exceeds buffer %d of %d bytes",
			ErrInvalidData, offset, length, index, len(data))
	}
	return data[offset : offset+length : offset+length], nil
}
