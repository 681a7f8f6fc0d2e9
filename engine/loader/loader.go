package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sophfee/helix-engine/engine/profiler"
)

var errLoaderClosed = errors.New("loader closed")

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	assetCache map[string]*Asset
	closed     bool

	fallbackRoot      string
	workers           int
	deferredImages    bool
	imagePolicy       ImagePolicy
	maxFileSize       int64
	maxImageDimension int
	maxImagePixels    int64
	desiredChannels   int
	readTimeout       time.Duration
	decoder           RasterDecoder
	logger            *log.Logger

	pool         *imagePool
	materializer *imageMaterializer
}

// Loader defines the public-facing interface for loading and caching decoded assets.
// It owns the image worker pool; Close shuts it down.
type Loader interface {
	// Load reads and decodes a .gltf or .glb document and caches the result by path.
	// If the asset is already cached, the cached version is returned.
	//
	// Parameters:
	//   - ctx: cancels the load and any image decodes it started
	//   - path: the document path
	//
	// Returns:
	//   - *Asset: the decoded asset
	//   - error: a *DecodeError locating the failure, or ctx.Err()
	Load(ctx context.Context, path string) (*Asset, error)

	// LoadSource decodes an in-memory document. The result is not cached.
	//
	// Parameters:
	//   - ctx: cancels the load and any image decodes it started
	//   - src: the document text, origin path and embedded buffers
	//
	// Returns:
	//   - *Asset: the decoded asset
	//   - error: a *DecodeError locating the failure, or ctx.Err()
	LoadSource(ctx context.Context, src Source) (*Asset, error)

	// Get retrieves a cached asset by path. Returns nil if not found.
	//
	// Parameters:
	//   - path: the cache key to look up
	//
	// Returns:
	//   - *Asset: the cached asset or nil
	Get(path string) *Asset

	// Assets returns a copy of the asset cache.
	//
	// Returns:
	//   - map[string]*Asset: all cached assets keyed by path
	Assets() map[string]*Asset

	// Close stops the image worker pool. Queued decodes fail with ErrPoolClosed and later loads
	// are rejected. Safe to call more than once.
	Close()
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the specified options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new Loader instance
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		assetCache:     make(map[string]*Asset),
		workers:        max(runtime.NumCPU()-1, 1),
		deferredImages: true,
		imagePolicy:    ImagePolicySkip,
		maxFileSize:    DefaultMaxFileSize,
		logger:         log.Default(),
	}

	for _, option := range options {
		option(l)
	}

	// The decoder and pool are built after options so that WithWorkers and the image settings apply.
	if l.decoder == nil {
		l.decoder = NewRasterDecoder(l.desiredChannels, l.maxImageDimension, l.maxImagePixels)
	}
	if l.deferredImages {
		l.pool = newImagePool(l.workers)
	}
	l.materializer = &imageMaterializer{
		decoder: l.decoder,
		pool:    l.pool,
		policy:  l.imagePolicy,
		logger:  l.logger,
	}
	return l
}

func (l *loader) Load(ctx context.Context, path string) (*Asset, error) {
	key := filepath.Clean(path)

	l.mu.RLock()
	if cached, ok := l.assetCache[key]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	src, err := l.readSource(ctx, key)
	if err != nil {
		return nil, err
	}

	asset, err := l.LoadSource(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	l.mu.Lock()
	l.assetCache[key] = asset
	l.mu.Unlock()

	return asset, nil
}

func (l *loader) LoadSource(ctx context.Context, src Source) (*Asset, error) {
	if l.isClosed() {
		return nil, fmt.Errorf("%w: %w", errLoaderClosed, ErrPoolClosed)
	}

	cancel := context.CancelFunc(func() {})
	if l.readTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.readTimeout)
	}

	watch := profiler.StartStopwatch()
	asset, err := parseDocument(ctx, src, parseOptions{
		fallbackRoot: l.fallbackRoot,
		maxFileSize:  l.maxFileSize,
		materializer: l.materializer,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	watch.Mark("parse")

	// the timeout covers deferred decodes too, so it is released once they finish
	go func() {
		_ = asset.WaitImages(context.Background())
		cancel()
	}()

	c := asset.Counts()
	l.logger.Printf("[Loader] loaded %s: %d meshes, %d accessors, %d buffers, %d images (%s)",
		displayName(src.Path), c.Meshes, c.Accessors, c.Buffers, c.Images, watch.Total().Round(time.Microsecond))
	return asset, nil
}

func (l *loader) Get(path string) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assetCache[filepath.Clean(path)]
}

func (l *loader) Assets() map[string]*Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*Asset, len(l.assetCache))
	for k, v := range l.assetCache {
		result[k] = v
	}
	return result
}

func (l *loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if l.pool != nil {
		l.pool.close()
	}
}

func (l *loader) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// readSource reads a document file and splits GLB containers.
// The format is selected by extension (.gltf/.glb) or by the GLB magic.
func (l *loader) readSource(ctx context.Context, path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb", "":
	default:
		return Source{}, fmt.Errorf("unsupported model format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return Source{}, resourceError(sectionDocument, Absent, "", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Source{}, resourceError(sectionDocument, Absent, "", err)
	}
	if info.Size() > l.maxFileSize {
		return Source{}, boundsError(sectionDocument, Absent, "", "%s: %d bytes: %w", path, info.Size(), errSizeCapExceeded)
	}

	data, err := readFullContext(ctx, f, info.Size())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Source{}, ctxErr
		}
		return Source{}, resourceError(sectionDocument, Absent, "", err)
	}

	if ext == ".glb" || isGLB(data) {
		return glbSource(path, data)
	}
	return Source{Path: path, Text: data}, nil
}

func displayName(path string) string {
	if path == "" {
		return "<memory>"
	}
	return filepath.Base(path)
}
