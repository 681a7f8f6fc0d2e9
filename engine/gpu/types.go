// package gpu stages decoded assets for the GPU. It reads accessor, buffer view and buffer triples
// into vertex and index data, expands materialized images to RGBA8, and hands both to an Uploader.
package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferUsage says what an uploaded buffer is bound as.
type BufferUsage int

const (
	BufferUsageVertex BufferUsage = iota
	BufferUsageIndex
)

func (u BufferUsage) String() string {
	if u == BufferUsageIndex {
		return "index"
	}
	return "vertex"
}

// TextureData holds RGBA8 pixel data pending GPU upload.
type TextureData struct {
	// Pixels is Width*Height*4 bytes, rows top to bottom.
	Pixels []byte
	Width  uint32
	Height uint32
}

// SamplerData holds the sampler state for an uploaded texture.
// Zero LodMaxClamp and MaxAnisotropy are replaced by the WebGPU defaults at creation time.
type SamplerData struct {
	AddressModeU, AddressModeV wgpu.AddressMode
	MagFilter, MinFilter       wgpu.FilterMode
	MipmapFilter               wgpu.MipmapFilterMode
	LodMinClamp, LodMaxClamp   float32
	MaxAnisotropy              uint16
}

// Handle is an uploaded GPU resource. Its concrete type belongs to the Uploader that made it.
type Handle interface {
	Release()
}

// Uploader is the upload contract: it turns byte ranges and pixel buffers into GPU resources.
// Implementations need not be safe for concurrent use; StageAsset calls them from one goroutine.
type Uploader interface {
	// UploadBuffer creates a GPU buffer holding data.
	//
	// Parameters:
	//   - label: debug label for the resource
	//   - usage: what the buffer is bound as
	//   - data: the bytes to copy (4-byte aligned length)
	//
	// Returns:
	//   - Handle: the buffer
	//   - error: error if the buffer could not be created
	UploadBuffer(label string, usage BufferUsage, data []byte) (Handle, error)

	// UploadTexture creates a 2D RGBA8 texture and its sampler.
	//
	// Parameters:
	//   - label: debug label for the resource
	//   - tex: the pixels
	//   - smp: the sampler state
	//
	// Returns:
	//   - Handle: the texture, its view and its sampler
	//   - error: error if any of them could not be created
	UploadTexture(label string, tex TextureData, smp SamplerData) (Handle, error)
}
