package loader

import (
	"context"
	"fmt"

	"github.com/sophfee/helix-engine/common"
)

// Buffer owns an immutable byte payload loaded from a file, a data URI, or caller-supplied bytes.
type Buffer struct {
	Name       string
	URI        string
	ByteLength int

	data []byte
}

// Data returns the buffer contents. The slice must not be modified.
func (b *Buffer) Data() []byte {
	return b.data
}

// BufferView is a validated sub-range of a Buffer.
type BufferView struct {
	Name       string
	Buffer     int
	ByteOffset int
	ByteLength int

	// ByteStride is 0 when the elements are tightly packed.
	ByteStride int
	Target     Target
}

// Accessor describes how to read typed elements from a BufferView. It does not own bytes.
type Accessor struct {
	Name          string
	BufferView    int
	ByteOffset    int
	ComponentType ComponentType
	Type          AccessorType
	Count         int
	Normalized    bool

	// Min and Max hold MinCount and MaxCount bounds respectively (at most one per component).
	Min      [16]float64
	MinCount int
	Max      [16]float64
	MaxCount int
}

// ElementSize returns the packed byte size of one element.
func (a *Accessor) ElementSize() int {
	return a.ComponentType.Size() * a.Type.Components()
}

// Pixels is a decoded raster: Width*Height*Channels interleaved bytes, rows top to bottom.
type Pixels struct {
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// Image is an image source descriptor plus its decoded payload. The payload is handed over
// through a completion future and is never observable before materialization finishes.
type Image struct {
	Name string

	// URI is set for external (or data URI) images; otherwise MimeType and BufferView are.
	URI        string
	MimeType   string
	BufferView int

	payload *common.Future[*Pixels]
}

// Embedded reports whether the image bytes live in a buffer view.
func (img *Image) Embedded() bool {
	return img.URI == ""
}

// Ready reports whether materialization has finished (successfully or not).
func (img *Image) Ready() bool {
	return img.payload != nil && img.payload.Ready()
}

// Wait blocks until the image is materialized.
//
// Parameters:
//   - ctx: context used to abandon the wait
//
// Returns:
//   - *Pixels: the decoded pixels
//   - error: ErrImageAbsent (wrapping the decode failure) if the image could not be materialized,
//     or ctx.Err() if the wait was abandoned
func (img *Image) Wait(ctx context.Context) (*Pixels, error) {
	if img.payload == nil {
		return nil, fmt.Errorf("%w: %s", ErrImageAbsent, "never dispatched")
	}
	px, err := img.payload.Wait(ctx)
	if err != nil {
		if !img.payload.Ready() {
			// abandoned by the caller, the decode itself may still succeed
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrImageAbsent, err)
	}
	return px, nil
}

// Sampler holds texture filtering and wrapping codes. Unset filters are zero; unset wraps are WrapRepeat.
type Sampler struct {
	Name      string
	MagFilter Filter
	MinFilter Filter
	WrapS     Wrap
	WrapT     Wrap
}

// Texture pairs an image with an optional sampler.
type Texture struct {
	Name    string
	Sampler int
	Source  int
}

// TextureRef references a texture from a material. Index is Absent when unset.
type TextureRef struct {
	Index    int
	TexCoord int
}

// Material is a flat metallic-roughness material record.
type Material struct {
	Name string

	BaseColorFactor          [4]float32
	BaseColorTexture         TextureRef
	MetallicFactor           float32
	RoughnessFactor          float32
	MetallicRoughnessTexture TextureRef
	NormalTexture            TextureRef
	OcclusionTexture         TextureRef
	EmissiveTexture          TextureRef
	EmissiveFactor           [3]float32
	AlphaMode                string
	AlphaCutoff              float32
	DoubleSided              bool
}

// Primitive is one draw of a mesh. Attributes is indexed by AttributeSlot; unrouted semantics
// are dropped during parsing.
type Primitive struct {
	Attributes [NumAttributeSlots]int
	Indices    int
	Material   int
	Mode       PrimitiveMode
}

// Mesh is a named list of primitives.
type Mesh struct {
	Name       string
	Primitives []Primitive
}

// Node is a transform in the node hierarchy. Parent is Absent for roots.
type Node struct {
	Name        string
	Mesh        int
	Children    []int
	Parent      int
	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32
}

// Scene lists its root nodes.
type Scene struct {
	Name  string
	Nodes []int
}

// Counts reports the size of every collection in an Asset.
type Counts struct {
	Buffers     int
	BufferViews int
	Accessors   int
	Images      int
	Textures    int
	Samplers    int
	Materials   int
	Meshes      int
	Nodes       int
	Scenes      int
}

// MaterializedImage is an entry of the materialized image collection.
type MaterializedImage struct {
	Index  int
	Name   string
	Pixels *Pixels
}

// Asset is the decoded, cross-referenced in-memory representation of one document.
// It is immutable after parsing except for each Image's payload.
type Asset struct {
	path         string
	baseDir      string
	generator    string
	defaultScene int

	buffers     []Buffer
	bufferViews []BufferView
	accessors   []Accessor
	images      []*Image
	textures    []Texture
	samplers    []Sampler
	materials   []Material
	meshes      []Mesh
	nodes       []Node
	scenes      []Scene
}

func newAsset(path, baseDir string) *Asset {
	return &Asset{path: path, baseDir: baseDir, defaultScene: Absent}
}

// Path returns the document's origin path (may be empty for in-memory sources).
func (a *Asset) Path() string { return a.path }

// BaseDir returns the directory external URIs were resolved against.
func (a *Asset) BaseDir() string { return a.baseDir }

// Generator returns the asset generator string, if any.
func (a *Asset) Generator() string { return a.generator }

// DefaultScene returns the default scene index, or Absent.
func (a *Asset) DefaultScene() int { return a.defaultScene }

// Counts returns the size of every collection.
func (a *Asset) Counts() Counts {
	return Counts{
		Buffers:     len(a.buffers),
		BufferViews: len(a.bufferViews),
		Accessors:   len(a.accessors),
		Images:      len(a.images),
		Textures:    len(a.textures),
		Samplers:    len(a.samplers),
		Materials:   len(a.materials),
		Meshes:      len(a.meshes),
		Nodes:       len(a.nodes),
		Scenes:      len(a.scenes),
	}
}

func lookup[T any](items []T, kind string, i int) (*T, error) {
	if i < 0 || i >= len(items) {
		return nil, fmt.Errorf("%w: %s index %d out of range [0,%d)", ErrInvalidData, kind, i, len(items))
	}
	return &items[i], nil
}

// Buffer returns buffer i.
func (a *Asset) Buffer(i int) (*Buffer, error) { return lookup(a.buffers, "buffer", i) }

// BufferView returns buffer view i.
func (a *Asset) BufferView(i int) (BufferView, error) {
	v, err := lookup(a.bufferViews, "bufferView", i)
	if err != nil {
		return BufferView{}, err
	}
	return *v, nil
}

// Accessor returns accessor i.
func (a *Asset) Accessor(i int) (Accessor, error) {
	v, err := lookup(a.accessors, "accessor", i)
	if err != nil {
		return Accessor{}, err
	}
	return *v, nil
}

// Image returns image i. The image stays at its index even if it failed to materialize.
func (a *Asset) Image(i int) (*Image, error) {
	v, err := lookup(a.images, "image", i)
	if err != nil {
		return nil, err
	}
	return *v, nil
}

// Texture returns texture i.
func (a *Asset) Texture(i int) (Texture, error) {
	v, err := lookup(a.textures, "texture", i)
	if err != nil {
		return Texture{}, err
	}
	return *v, nil
}

// Sampler returns sampler i.
func (a *Asset) Sampler(i int) (Sampler, error) {
	v, err := lookup(a.samplers, "sampler", i)
	if err != nil {
		return Sampler{}, err
	}
	return *v, nil
}

// Material returns material i.
func (a *Asset) Material(i int) (Material, error) {
	v, err := lookup(a.materials, "material", i)
	if err != nil {
		return Material{}, err
	}
	return *v, nil
}

// Mesh returns mesh i.
func (a *Asset) Mesh(i int) (Mesh, error) {
	v, err := lookup(a.meshes, "mesh", i)
	if err != nil {
		return Mesh{}, err
	}
	return *v, nil
}

// Node returns node i.
func (a *Asset) Node(i int) (Node, error) {
	v, err := lookup(a.nodes, "node", i)
	if err != nil {
		return Node{}, err
	}
	return *v, nil
}

// Scene returns scene i.
func (a *Asset) Scene(i int) (Scene, error) {
	v, err := lookup(a.scenes, "scene", i)
	if err != nil {
		return Scene{}, err
	}
	return *v, nil
}

// ResolveBufferView returns exactly the bytes of buffer view i.
//
// Parameters:
//   - i: the buffer view index
//
// Returns:
//   - []byte: the view's bytes (shares memory with the buffer, do not modify)
//   - error: ErrInvalidData if the index or range is out of bounds
func (a *Asset) ResolveBufferView(i int) ([]byte, error) {
	v, err := lookup(a.bufferViews, "bufferView", i)
	if err != nil {
		return nil, err
	}
	return resolveRange(a.buffers, v.Buffer, v.ByteOffset, v.ByteLength)
}

// WaitImages blocks until every image has finished materializing, successfully or not.
//
// Parameters:
//   - ctx: context used to abandon the wait
//
// Returns:
//   - error: ctx.Err() if the wait was abandoned
func (a *Asset) WaitImages(ctx context.Context) error {
	for _, img := range a.images {
		if img.payload == nil {
			continue
		}
		select {
		case <-img.payload.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// MaterializedImages waits for all images and returns the successfully decoded ones in index
// order. Images that failed to materialize are omitted.
//
// Parameters:
//   - ctx: context used to abandon the wait
//
// Returns:
//   - []MaterializedImage: the decoded images
//   - error: ctx.Err() if the wait was abandoned
func (a *Asset) MaterializedImages(ctx context.Context) ([]MaterializedImage, error) {
	if err := a.WaitImages(ctx); err != nil {
		return nil, err
	}
	out := make([]MaterializedImage, 0, len(a.images))
	for i, img := range a.images {
		px, err := img.Wait(ctx)
		if err != nil {
			continue
		}
		out = append(out, MaterializedImage{Index: i, Name: img.Name, Pixels: px})
	}
	return out, nil
}

// RootNodes returns the roots of the default scene, or every parentless node when the document
// declares no default scene.
func (a *Asset) RootNodes() []int {
	if a.defaultScene != Absent {
		return append([]int(nil), a.scenes[a.defaultScene].Nodes...)
	}
	var roots []int
	for i := range a.nodes {
		if a.nodes[i].Parent == Absent {
			roots = append(roots, i)
		}
	}
	return roots
}
