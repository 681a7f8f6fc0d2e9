package loader

import (
	"log"
	"path/filepath"
	"time"

	"github.com/sophfee/helix-engine/engine/config"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithFallbackRoot is an option builder that sets the directory searched when a URI is not
// found next to the document.
//
// Parameters:
//   - dir: the fallback root directory
//
// Returns:
//   - LoaderBuilderOption: a function that applies the fallback root to a loader
func WithFallbackRoot(dir string) LoaderBuilderOption {
	return func(l *loader) {
		if dir != "" {
			dir = filepath.Clean(dir)
		}
		l.fallbackRoot = dir
	}
}

// WithWorkers is an option builder that sets the number of concurrent image decodes.
//
// Parameters:
//   - n: worker count (values below 1 are treated as 1)
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker count to a loader
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.workers = max(n, 1)
	}
}

// WithImagePolicy is an option builder that sets what a failed image does to the load.
func WithImagePolicy(p ImagePolicy) LoaderBuilderOption {
	return func(l *loader) {
		l.imagePolicy = p
	}
}

// WithDeferredImages is an option builder that chooses between decoding images on the worker
// pool (true, the default) and decoding them inline during the parse (false).
func WithDeferredImages(deferred bool) LoaderBuilderOption {
	return func(l *loader) {
		l.deferredImages = deferred
	}
}

// WithMaxFileSize is an option builder that caps every buffer, image and document read.
func WithMaxFileSize(n int64) LoaderBuilderOption {
	return func(l *loader) {
		if n > 0 {
			l.maxFileSize = n
		}
	}
}

// WithMaxImageDimension is an option builder that downscales images wider or taller than n.
// Ignored when a custom RasterDecoder is set.
func WithMaxImageDimension(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.maxImageDimension = n
	}
}

// WithMaxImagePixels is an option builder that rejects images whose header declares more than n
// pixels. Zero keeps DefaultMaxImagePixels. Ignored when a custom RasterDecoder is set.
func WithMaxImagePixels(n int64) LoaderBuilderOption {
	return func(l *loader) {
		l.maxImagePixels = n
	}
}

// WithDesiredChannels is an option builder that forces the decoded channel count (1-4).
// Ignored when a custom RasterDecoder is set.
func WithDesiredChannels(n int) LoaderBuilderOption {
	return func(l *loader) {
		l.desiredChannels = n
	}
}

// WithRasterDecoder is an option builder that replaces the image decoder.
//
// Parameters:
//   - d: the decoder, which must be safe for concurrent use
//
// Returns:
//   - LoaderBuilderOption: a function that applies the decoder to a loader
func WithRasterDecoder(d RasterDecoder) LoaderBuilderOption {
	return func(l *loader) {
		l.decoder = d
	}
}

// WithReadTimeout is an option builder that bounds each load, including its deferred image decodes.
func WithReadTimeout(d time.Duration) LoaderBuilderOption {
	return func(l *loader) {
		l.readTimeout = d
	}
}

// WithLogger is an option builder that sets the logger used for skipped images and load summaries.
func WithLogger(logger *log.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithAsset is an option builder that pre-populates the asset cache.
//
// Parameters:
//   - path: the cache key for the asset
//   - asset: the asset to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the asset to a loader
func WithAsset(path string, asset *Asset) LoaderBuilderOption {
	return func(l *loader) {
		l.assetCache[filepath.Clean(path)] = asset
	}
}

// WithConfig is an option builder that applies a resolved loader config section.
// Options given after it override individual settings.
//
// Parameters:
//   - cfg: the loader config, already passed through config.Config.Resolve
//
// Returns:
//   - LoaderBuilderOption: a function that applies every config setting to a loader
func WithConfig(cfg config.LoaderConfig) LoaderBuilderOption {
	return func(l *loader) {
		WithFallbackRoot(cfg.FallbackRoot)(l)
		if cfg.Workers > 0 {
			WithWorkers(cfg.Workers)(l)
		}
		if cfg.DeferredImages != nil {
			l.deferredImages = *cfg.DeferredImages
		}
		if p, err := ParseImagePolicy(cfg.ImagePolicy); err == nil {
			l.imagePolicy = p
		} else {
			l.logger.Printf("[Loader] %v, keeping %s", err, l.imagePolicy)
		}
		WithMaxFileSize(cfg.MaxFileSize)(l)
		l.maxImageDimension = cfg.MaxImageDimension
		l.maxImagePixels = cfg.MaxImagePixels
		l.desiredChannels = cfg.DesiredChannels
		if d, err := cfg.Timeout(); err == nil {
			l.readTimeout = d
		}
	}
}
