package loader

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sophfee/helix-engine/common"
)

// ImagePolicy decides what a failed image does to the load.
type ImagePolicy int

const (
	// ImagePolicySkip logs a failed image and leaves it absent; the rest of the asset loads.
	ImagePolicySkip ImagePolicy = iota
	// ImagePolicyAbort fails the whole load when any image fails.
	ImagePolicyAbort
)

// ParseImagePolicy parses "skip" or "abort".
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch strings.ToLower(s) {
	case "", "skip":
		return ImagePolicySkip, nil
	case "abort":
		return ImagePolicyAbort, nil
	default:
		return 0, fmt.Errorf("unknown image policy %q (want skip or abort)", s)
	}
}

func (p ImagePolicy) String() string {
	if p == ImagePolicyAbort {
		return "abort"
	}
	return "skip"
}

// imageMaterializer decodes image sources into pixels, inline or on a worker pool, and hands
// each result over through the image's completion future.
type imageMaterializer struct {
	decoder RasterDecoder

	// pool is nil for synchronous decoding on the parser goroutine.
	pool   *imagePool
	policy ImagePolicy
	logger *log.Logger
}

func newImageMaterializer() *imageMaterializer {
	return &imageMaterializer{
		decoder: NewRasterDecoder(0, 0, 0),
		policy:  ImagePolicySkip,
		logger:  log.Default(),
	}
}

// dispatch starts materializing image index of asset. External images read their file on the
// decoding goroutine; embedded images resolve their buffer view here, so buffers must be loaded.
// The image's future is always fulfilled, with pixels or with the failure.
//
// Parameters:
//   - ctx: cancels the decode if it has not finished
//   - store: resolves external URIs
//   - asset: the asset owning the image
//   - index: the image index
func (m *imageMaterializer) dispatch(ctx context.Context, store *bufferStore, asset *Asset, index int) {
	img := asset.images[index]
	fut := common.NewFuture[*Pixels]()
	img.payload = fut

	var embedded []byte
	if img.Embedded() {
		data, err := asset.ResolveBufferView(img.BufferView)
		if err != nil {
			m.fail(fut, index, img, err)
			return
		}
		embedded = data
	}

	run := func() {
		px, err := m.materialize(ctx, store, img, embedded)
		if err != nil {
			m.fail(fut, index, img, err)
			return
		}
		_ = fut.Fulfill(px, nil)
	}

	if m.pool == nil {
		run()
		return
	}
	m.pool.submit(run, func(err error) { m.fail(fut, index, img, err) })
}

// materialize produces the pixels of one image.
//
// Parameters:
//   - ctx: checked before reading and before decoding
//   - store: resolves external and data URIs
//   - img: the image descriptor
//   - embedded: the resolved buffer view bytes for embedded images
//
// Returns:
//   - *Pixels: the decoded pixels
//   - error: error if the source cannot be read or decoded
func (m *imageMaterializer) materialize(ctx context.Context, store *bufferStore, img *Image, embedded []byte) (*Pixels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := embedded
	var err error
	switch {
	case img.Embedded():
	case strings.HasPrefix(img.URI, "data:"):
		_, data, err = store.decodeDataURI(img.URI)
	default:
		data, err = store.readExternal(ctx, img.URI, -1)
	}
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	px, err := m.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	if px == nil || px.Width <= 0 || px.Height <= 0 || px.Channels < 1 || px.Channels > 4 ||
		len(px.Data) != px.Width*px.Height*px.Channels {
		return nil, fmt.Errorf("decoder returned an inconsistent pixel buffer")
	}
	return px, nil
}

func (m *imageMaterializer) fail(fut *common.Future[*Pixels], index int, img *Image, err error) {
	if m.policy == ImagePolicySkip {
		m.logger.Printf("[Loader] image %d %q skipped: %v", index, common.Coalesce(img.Name, img.URI, img.MimeType), err)
	}
	_ = fut.Fulfill(nil, err)
}

// enforcePolicy waits for every image under ImagePolicyAbort and fails on the first failed one.
func (m *imageMaterializer) enforcePolicy(ctx context.Context, asset *Asset) error {
	if m.policy != ImagePolicyAbort {
		return nil
	}
	for i, img := range asset.images {
		if img.payload == nil {
			continue
		}
		if _, err := img.payload.Wait(ctx); err != nil {
			if !img.payload.Ready() {
				return err
			}
			field := "uri"
			if img.Embedded() {
				field = "bufferView"
			}
			return resourceError(sectionImages, i, field, err)
		}
	}
	return nil
}
