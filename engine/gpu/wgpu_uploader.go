package gpu

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sophfee/helix-engine/common"
)

// wgpuUploader implements Uploader on a WebGPU device.
type wgpuUploader struct {
	mu     sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue
}

var _ Uploader = &wgpuUploader{}

// wgpuTexture is the Handle returned by wgpuUploader.UploadTexture.
type wgpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	sampler *wgpu.Sampler
}

func (t *wgpuTexture) Release() {
	if t.sampler != nil {
		t.sampler.Release()
	}
	if t.view != nil {
		t.view.Release()
	}
	if t.texture != nil {
		t.texture.Release()
	}
}

// View returns the texture view for bind group creation.
func (t *wgpuTexture) View() *wgpu.TextureView { return t.view }

// Sampler returns the sampler for bind group creation.
func (t *wgpuTexture) Sampler() *wgpu.Sampler { return t.sampler }

func (u *wgpuUploader) UploadBuffer(label string, usage BufferUsage, data []byte) (Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(data) == 0 {
		return nil, fmt.Errorf("buffer %q is empty", label)
	}

	wgpuUsage := wgpu.BufferUsageVertex
	if usage == BufferUsageIndex {
		wgpuUsage = wgpu.BufferUsageIndex
	}

	// WriteBuffer sizes must be a multiple of 4
	size := (len(data) + 3) &^ 3
	if size != len(data) {
		padded := make([]byte, size)
		copy(padded, data)
		data = padded
	}

	buf, err := u.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             uint64(size),
		Usage:            wgpuUsage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	u.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

func (u *wgpuUploader) UploadTexture(label string, tex TextureData, smp SamplerData) (Handle, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if want := int(tex.Width) * int(tex.Height) * 4; len(tex.Pixels) != want {
		return nil, fmt.Errorf("texture %q has %d bytes, want %d", label, len(tex.Pixels), want)
	}

	texture, err := u.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              tex.Width,
			Height:             tex.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	out := &wgpuTexture{texture: texture}

	u.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		tex.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  tex.Width * 4,
			RowsPerImage: tex.Height,
		},
		&wgpu.Extent3D{
			Width:              tex.Width,
			Height:             tex.Height,
			DepthOrArrayLayers: 1,
		},
	)

	if out.view, err = texture.CreateView(nil); err != nil {
		out.Release()
		return nil, err
	}

	out.sampler, err = u.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         label + " Sampler",
		AddressModeU:  smp.AddressModeU,
		AddressModeV:  smp.AddressModeV,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     smp.MagFilter,
		MinFilter:     smp.MinFilter,
		MipmapFilter:  smp.MipmapFilter,
		LodMinClamp:   smp.LodMinClamp,
		LodMaxClamp:   common.Coalesce(smp.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(smp.MaxAnisotropy, 1),
	})
	if err != nil {
		out.Release()
		return nil, err
	}
	return out, nil
}
