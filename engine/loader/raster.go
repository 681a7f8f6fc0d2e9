package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// DefaultMaxImagePixels caps the decoded size of one image (8192x8192).
const DefaultMaxImagePixels int64 = 1 << 26

var (
	errEmptyImage = errors.New("image has no pixels")

	// ErrImageTooLarge is returned when an image header declares more pixels than the decoder allows.
	ErrImageTooLarge = errors.New("image too large")
)

// codec is one raster format. An empty magic matches anything and must come last.
// '?' in magic matches any byte.
type codec struct {
	name   string
	magic  string
	decode func(io.Reader) (image.Image, error)
	config func(io.Reader) (image.Config, error)
}

// codecs is sniffed in order. TGA has no signature, so it is the fallback.
var codecs = []codec{
	{"png", "\x89PNG\r\n\x1a\n", png.Decode, png.DecodeConfig},
	{"jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig},
	{"gif", "GIF8", gif.Decode, gif.DecodeConfig},
	{"webp", "RIFF????WEBP", nativewebp.Decode, nativewebp.DecodeConfig},
	{"bmp", "BM", bmp.Decode, bmp.DecodeConfig},
	{"tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig},
	{"tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig},
	{"tga", "", tga.Decode, tga.DecodeConfig},
}

// sniff returns the codec whose signature prefixes data.
func sniff(data []byte) codec {
	for _, c := range codecs {
		if len(data) < len(c.magic) {
			continue
		}
		ok := true
		for i := 0; i < len(c.magic); i++ {
			if c.magic[i] != '?' && c.magic[i] != data[i] {
				ok = false
				break
			}
		}
		if ok {
			return c
		}
	}
	return codecs[len(codecs)-1]
}

// RasterDecoder turns encoded image bytes (PNG, JPEG, ...) into raw interleaved pixels.
// Implementations must be safe for concurrent use.
type RasterDecoder interface {
	// Decode decodes one encoded image.
	//
	// Parameters:
	//   - data: the encoded bytes
	//
	// Returns:
	//   - *Pixels: Width*Height*Channels bytes, rows top to bottom
	//   - error: error if the bytes are not a decodable image
	Decode(data []byte) (*Pixels, error)
}

// imageRasterDecoder decodes PNG, JPEG, GIF, WebP, BMP, TIFF and TGA.
type imageRasterDecoder struct {
	// desiredChannels forces the output channel count (1-4). Zero keeps the native count.
	desiredChannels int

	// maxDimension downscales images whose width or height exceeds it. Zero disables.
	maxDimension int

	// maxPixels rejects images whose header declares more than Width*Height pixels.
	maxPixels int64
}

var _ RasterDecoder = &imageRasterDecoder{}

// NewRasterDecoder returns the default RasterDecoder.
//
// Parameters:
//   - desiredChannels: output channel count 1-4, or 0 for the image's native count
//   - maxDimension: largest allowed width/height before downscaling, or 0 for no limit
//   - maxPixels: largest allowed declared Width*Height, or 0 for DefaultMaxImagePixels
//
// Returns:
//   - RasterDecoder: the decoder
func NewRasterDecoder(desiredChannels, maxDimension int, maxPixels int64) RasterDecoder {
	if desiredChannels < 0 || desiredChannels > 4 {
		desiredChannels = 0
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}
	return &imageRasterDecoder{
		desiredChannels: desiredChannels,
		maxDimension:    max(maxDimension, 0),
		maxPixels:       maxPixels,
	}
}

func (d *imageRasterDecoder) Decode(data []byte) (*Pixels, error) {
	c := sniff(data)

	// The header is checked before decoding so a forged size never reaches the allocator.
	cfg, err := c.config(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode %s: %w", c.name, errEmptyImage)
	}
	if int64(cfg.Width) > d.maxPixels/int64(cfg.Height) {
		return nil, fmt.Errorf("decode %s: %dx%d exceeds %d pixels: %w", c.name, cfg.Width, cfg.Height, d.maxPixels, ErrImageTooLarge)
	}

	src, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.name, err)
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s: %w", c.name, errEmptyImage)
	}

	channels := d.desiredChannels
	if channels == 0 {
		channels = nativeChannels(src)
	}

	if d.maxDimension > 0 {
		src = downscale(src, d.maxDimension)
	}
	return toPixels(src, channels), nil
}

// nativeChannels reports 1 for gray images, 3 for opaque images and 4 otherwise.
func nativeChannels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// downscale shrinks img so that neither side exceeds limit, keeping the aspect ratio.
// Scaling happens in premultiplied RGBA to avoid dark fringes at transparent edges.
func downscale(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	if w >= h {
		h = max(h*limit/w, 1)
		w = limit
	} else {
		w = max(w*limit/h, 1)
		h = limit
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// toPixels flattens img into channels interleaved bytes per pixel.
func toPixels(img image.Image, channels int) *Pixels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	px := &Pixels{Width: w, Height: h, Channels: channels, Data: make([]byte, w*h*channels)}
	rect := image.Rect(0, 0, w, h)

	var gray *image.Gray
	if channels <= 2 {
		gray = image.NewGray(rect)
		draw.Draw(gray, rect, img, b.Min, draw.Src)
	}
	var nrgba *image.NRGBA
	if channels != 1 {
		nrgba = image.NewNRGBA(rect)
		draw.Draw(nrgba, rect, img, b.Min, draw.Src)
	}

	switch channels {
	case 1:
		for y := 0; y < h; y++ {
			copy(px.Data[y*w:(y+1)*w], gray.Pix[y*gray.Stride:])
		}
	case 4:
		for y := 0; y < h; y++ {
			copy(px.Data[y*w*4:(y+1)*w*4], nrgba.Pix[y*nrgba.Stride:])
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s := nrgba.PixOffset(x, y)
				o := (y*w + x) * channels
				if channels == 2 {
					px.Data[o] = gray.Pix[gray.PixOffset(x, y)]
					px.Data[o+1] = nrgba.Pix[s+3]
				} else {
					copy(px.Data[o:o+3], nrgba.Pix[s:s+3])
				}
			}
		}
	}
	return px
}
