package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errInvalidGLBMagic   = errors.New("invalid GLB magic number")
	errInvalidGLBVersion = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk  = errors.New("GLB file missing JSON chunk")
	errGLBTruncated      = errors.New("GLB chunk exceeds file length")
)

// isGLB reports whether data starts with the GLB magic.
func isGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic
}

// splitGLB splits a GLB container into its JSON chunk and optional BIN chunk.
// Chunk lengths are checked against the container before slicing; nothing is copied.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
//
// Parameters:
//   - data: the full GLB file
//
// Returns:
//   - []byte: the JSON chunk
//   - []byte: the BIN chunk, or nil if absent
//   - error: a structural *DecodeError if the container is malformed
func splitGLB(data []byte) ([]byte, []byte, error) {
	if len(data) < 12 {
		return nil, nil, structuralError(sectionDocument, Absent, "", "GLB file too small: %d bytes", len(data))
	}

	var header gltfGLBHeader
	if err := binary.Read(bytes.NewReader(data[:12]), binary.LittleEndian, &header); err != nil {
		return nil, nil, structuralError(sectionDocument, Absent, "", "failed to read GLB header: %w", err)
	}
	if header.Magic != gltfGLBMagic {
		return nil, nil, structuralError(sectionDocument, Absent, "", "%w", errInvalidGLBMagic)
	}
	if header.Version != gltfGLBVersion {
		return nil, nil, unsupportedError(sectionDocument, Absent, "", "%w: got %d", errInvalidGLBVersion, header.Version)
	}
	if int(header.Length) < len(data) {
		data = data[:header.Length]
	}

	var jsonData, binData []byte
	for off := 12; off+8 <= len(data); {
		var chunk gltfGLBChunkHeader
		if err := binary.Read(bytes.NewReader(data[off:off+8]), binary.LittleEndian, &chunk); err != nil {
			return nil, nil, structuralError(sectionDocument, Absent, "", "failed to read chunk header: %w", err)
		}
		off += 8
		if uint64(chunk.ChunkLength) > uint64(len(data)-off) {
			return nil, nil, boundsError(sectionDocument, Absent, "", "%w: chunk of %d bytes at offset %d",
				errGLBTruncated, chunk.ChunkLength, off)
		}
		body := data[off : off+int(chunk.ChunkLength)]
		off += int(chunk.ChunkLength)

		switch chunk.ChunkType {
		case gltfGLBChunkJSON:
			if jsonData == nil {
				jsonData = body
			}
		case gltfGLBChunkBIN:
			if binData == nil {
				binData = body
			}
		}
	}

	if jsonData == nil {
		return nil, nil, structuralError(sectionDocument, Absent, "", "%w", errMissingJSONChunk)
	}
	return jsonData, binData, nil
}

// glbSource converts a GLB container into a Source whose BIN chunk is embedded buffer 0.
func glbSource(path string, data []byte) (Source, error) {
	jsonData, binData, err := splitGLB(data)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	src := Source{Path: path, Text: jsonData}
	if binData != nil {
		src.Embedded = [][]byte{binData}
	}
	return src, nil
}
