package gpu

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// DeviceOptions configures NewDevice.
type DeviceOptions struct {
	// Surface is the window surface to present to. Nil creates a headless device.
	Surface *wgpu.SurfaceDescriptor

	// ForceFallbackAdapter requests the software adapter.
	ForceFallbackAdapter bool

	// ClearColor is the RGBA color frames are cleared to.
	ClearColor [4]float64
}

// Device owns a WebGPU instance, adapter, device and queue, and optionally a window surface.
type Device struct {
	mu sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	configured    bool
	clearColor    wgpu.Color

	uploader *wgpuUploader
}

// NewDevice bootstraps instance, adapter, device and queue.
//
// Parameters:
//   - opts: the device options
//
// Returns:
//   - *Device: the device
//   - error: error if no adapter or device is available
func NewDevice(opts DeviceOptions) (*Device, error) {
	runtime.LockOSThread()

	d := &Device{
		instance: wgpu.CreateInstance(nil),
		clearColor: wgpu.Color{
			R: opts.ClearColor[0], G: opts.ClearColor[1], B: opts.ClearColor[2], A: opts.ClearColor[3],
		},
	}
	if opts.Surface != nil {
		d.surface = d.instance.CreateSurface(opts.Surface)
	}

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: opts.ForceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Helix Device",
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()
	d.uploader = &wgpuUploader{device: d.device, queue: d.queue}

	return d, nil
}

// Uploader returns the upload target for this device.
func (d *Device) Uploader() Uploader {
	return d.uploader
}

// Headless reports whether the device has no surface.
func (d *Device) Headless() bool {
	return d.surface == nil
}

// ConfigureSurface (re)configures the surface for the given framebuffer size. No-op when headless.
//
// Parameters:
//   - width: framebuffer width in pixels
//   - height: framebuffer height in pixels
func (d *Device) ConfigureSurface(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.surface == nil || width <= 0 || height <= 0 {
		return
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]

	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	d.configured = true
}

// ClearFrame acquires the next surface texture, clears it to the clear color and presents it.
//
// Returns:
//   - error: error if the surface is unconfigured or the frame could not be recorded
func (d *Device) ClearFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.configured {
		return fmt.Errorf("surface is not configured")
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: d.clearColor,
			},
		},
	})
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()

	d.queue.Submit(commandBuffer)
	d.surface.Present()
	return nil
}

// Release frees every WebGPU object owned by the device.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
