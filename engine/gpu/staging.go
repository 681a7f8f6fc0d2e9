package gpu

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/sophfee/helix-engine/common"
	"github.com/sophfee/helix-engine/engine/loader"
)

var (
	// ErrAttributeLayout is returned when a vertex attribute does not have the component count its
	// slot is uploaded with, or attributes of one primitive disagree on vertex count.
	ErrAttributeLayout = errors.New("unexpected vertex attribute layout")

	// ErrIndexRange is returned when an index refers past the primitive's vertices.
	ErrIndexRange = errors.New("index out of vertex range")

	errMissingPosition = errors.New("primitive has no POSITION attribute")
)

// slotComponents is the float component count each vertex slot is uploaded with:
// POSITION vec3, NORMAL vec3, TEXCOORD_0 vec2.
var slotComponents = [loader.NumAttributeSlots]int{3, 3, 2}

// StagedPrimitive is one uploaded draw.
type StagedPrimitive struct {
	// Vertex holds one float32 buffer per attribute slot, nil when the slot is absent.
	Vertex      [loader.NumAttributeSlots]Handle
	VertexCount int

	// Index is nil for non-indexed draws.
	Index      Handle
	IndexCount int

	Material int

	// Texture is the base color texture index, or loader.Absent.
	Texture int
	Mode    loader.PrimitiveMode

	// GeneratedNormals is set when the NORMAL buffer was computed from triangle topology.
	GeneratedNormals bool
}

// StagedMesh is the uploaded form of one mesh.
type StagedMesh struct {
	Name       string
	Primitives []StagedPrimitive
}

// StagedAsset holds every GPU resource created for one asset.
type StagedAsset struct {
	Meshes []StagedMesh

	// Textures is indexed by texture index. Entries whose image is absent are nil.
	Textures []Handle
}

// Release frees every resource in s.
func (s *StagedAsset) Release() {
	for _, m := range s.Meshes {
		for _, p := range m.Primitives {
			for _, h := range p.Vertex {
				if h != nil {
					h.Release()
				}
			}
			if p.Index != nil {
				p.Index.Release()
			}
		}
	}
	for _, t := range s.Textures {
		if t != nil {
			t.Release()
		}
	}
	s.Meshes, s.Textures = nil, nil
}

// StageAsset waits for the asset's images and uploads its textures and mesh data.
// Textures whose image failed to materialize are logged and left nil. On error every resource
// created so far is released.
//
// Parameters:
//   - ctx: context used while waiting for image decodes
//   - asset: the decoded asset
//   - up: the upload target
//
// Returns:
//   - *StagedAsset: the uploaded resources
//   - error: ctx.Err(), an upload failure, or an attribute layout error
func StageAsset(ctx context.Context, asset *loader.Asset, up Uploader) (*StagedAsset, error) {
	if err := asset.WaitImages(ctx); err != nil {
		return nil, err
	}

	staged := &StagedAsset{}
	if err := stageTextures(ctx, asset, up, staged); err != nil {
		staged.Release()
		return nil, err
	}
	if err := stageMeshes(asset, up, staged); err != nil {
		staged.Release()
		return nil, err
	}
	return staged, nil
}

func stageTextures(ctx context.Context, asset *loader.Asset, up Uploader, staged *StagedAsset) error {
	n := asset.Counts().Textures
	staged.Textures = make([]Handle, n)

	for i := 0; i < n; i++ {
		tex, err := asset.Texture(i)
		if err != nil {
			return err
		}
		if tex.Source == loader.Absent {
			continue
		}
		img, err := asset.Image(tex.Source)
		if err != nil {
			return err
		}
		px, err := img.Wait(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Printf("[GPU] texture %d has no image: %v", i, err)
			continue
		}

		smp := DefaultSamplerData()
		if tex.Sampler != loader.Absent {
			s, err := asset.Sampler(tex.Sampler)
			if err != nil {
				return err
			}
			smp = SamplerFromAsset(s)
		}

		h, err := up.UploadTexture(fmt.Sprintf("texture %d (%s)", i, common.Coalesce(tex.Name, img.Name, img.URI)), ExpandRGBA(px), smp)
		if err != nil {
			return fmt.Errorf("failed to upload texture %d: %w", i, err)
		}
		staged.Textures[i] = h
	}
	return nil
}

func stageMeshes(asset *loader.Asset, up Uploader, staged *StagedAsset) error {
	n := asset.Counts().Meshes
	staged.Meshes = make([]StagedMesh, 0, n)

	for mi := 0; mi < n; mi++ {
		mesh, err := asset.Mesh(mi)
		if err != nil {
			return err
		}
		sm := StagedMesh{Name: mesh.Name, Primitives: make([]StagedPrimitive, 0, len(mesh.Primitives))}
		staged.Meshes = append(staged.Meshes, sm)

		for pi, prim := range mesh.Primitives {
			sp, err := stagePrimitive(asset, up, mi, pi, prim)
			// appended before the error check so Release sees partial uploads
			staged.Meshes[mi].Primitives = append(staged.Meshes[mi].Primitives, sp)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func stagePrimitive(asset *loader.Asset, up Uploader, mi, pi int, prim loader.Primitive) (StagedPrimitive, error) {
	sp := StagedPrimitive{Material: prim.Material, Texture: loader.Absent, Mode: prim.Mode}
	if prim.Attributes[loader.SlotPosition] == loader.Absent {
		return sp, fmt.Errorf("mesh %d primitive %d: %w", mi, pi, errMissingPosition)
	}

	var positions []float32
	for slot, accIndex := range prim.Attributes {
		if accIndex == loader.Absent {
			continue
		}
		name := loader.AttributeSlot(slot).String()
		acc, err := asset.Accessor(accIndex)
		if err != nil {
			return sp, err
		}
		if got, want := acc.Type.Components(), slotComponents[slot]; got != want {
			return sp, fmt.Errorf("mesh %d primitive %d %s is %s, want %d components: %w", mi, pi, name, acc.Type, want, ErrAttributeLayout)
		}
		if slot == int(loader.SlotPosition) {
			sp.VertexCount = acc.Count
		} else if acc.Count != sp.VertexCount {
			return sp, fmt.Errorf("mesh %d primitive %d %s has %d vertices, POSITION has %d: %w",
				mi, pi, name, acc.Count, sp.VertexCount, ErrAttributeLayout)
		}

		floats, err := asset.ReadFloats(accIndex)
		if err != nil {
			return sp, err
		}
		if slot == int(loader.SlotPosition) {
			positions = floats
		}
		h, err := up.UploadBuffer(fmt.Sprintf("mesh %d prim %d %s", mi, pi, name), BufferUsageVertex, common.SliceToBytes(floats))
		if err != nil {
			return sp, fmt.Errorf("failed to upload mesh %d primitive %d %s: %w", mi, pi, name, err)
		}
		sp.Vertex[slot] = h
	}

	var indices []uint32
	if prim.Indices != loader.Absent {
		var err error
		if indices, err = asset.ReadIndices(prim.Indices); err != nil {
			return sp, fmt.Errorf("mesh %d primitive %d indices: %w", mi, pi, err)
		}
		for _, idx := range indices {
			if int(idx) >= sp.VertexCount {
				return sp, fmt.Errorf("mesh %d primitive %d index %d, %d vertices: %w", mi, pi, idx, sp.VertexCount, ErrIndexRange)
			}
		}
	}

	if sp.Vertex[loader.SlotNormal] == nil && prim.Mode == loader.ModeTriangles {
		normals := generateNormals(positions, indices)
		h, err := up.UploadBuffer(fmt.Sprintf("mesh %d prim %d NORMAL", mi, pi), BufferUsageVertex, common.SliceToBytes(normals))
		if err != nil {
			return sp, fmt.Errorf("failed to upload mesh %d primitive %d generated normals: %w", mi, pi, err)
		}
		sp.Vertex[loader.SlotNormal] = h
		sp.GeneratedNormals = true
	}

	if indices != nil {
		h, err := up.UploadBuffer(fmt.Sprintf("mesh %d prim %d indices", mi, pi), BufferUsageIndex, common.SliceToBytes(indices))
		if err != nil {
			return sp, fmt.Errorf("failed to upload mesh %d primitive %d indices: %w", mi, pi, err)
		}
		sp.Index = h
		sp.IndexCount = len(indices)
	}

	if prim.Material != loader.Absent {
		mat, err := asset.Material(prim.Material)
		if err != nil {
			return sp, err
		}
		sp.Texture = mat.BaseColorTexture.Index
	}
	return sp, nil
}

// ExpandRGBA converts pixels of any channel count to RGBA8. Gray is replicated into RGB and
// missing alpha is opaque.
//
// Parameters:
//   - px: the decoded pixels
//
// Returns:
//   - TextureData: Width*Height*4 bytes
func ExpandRGBA(px *loader.Pixels) TextureData {
	n := px.Width * px.Height
	out := TextureData{Pixels: make([]byte, n*4), Width: uint32(px.Width), Height: uint32(px.Height)}
	if px.Channels == 4 {
		copy(out.Pixels, px.Data)
		return out
	}

	for i := 0; i < n; i++ {
		src := px.Data[i*px.Channels:]
		dst := out.Pixels[i*4 : i*4+4]
		switch px.Channels {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 255
		case 2:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], src[1]
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 255
		}
	}
	return out
}

// DefaultSamplerData is the sampler used for textures without one: linear filtering, repeat wrapping.
func DefaultSamplerData() SamplerData {
	return SamplerData{
		AddressModeU: wgpu.AddressModeRepeat,
		AddressModeV: wgpu.AddressModeRepeat,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
	}
}

// SamplerFromAsset maps a sampler's filter and wrap codes to WebGPU sampler state.
// Unset filters keep the linear defaults.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#reference-sampler
//
// Parameters:
//   - s: the decoded sampler
//
// Returns:
//   - SamplerData: the equivalent WebGPU state
func SamplerFromAsset(s loader.Sampler) SamplerData {
	data := DefaultSamplerData()

	if s.MagFilter == loader.FilterNearest {
		data.MagFilter = wgpu.FilterModeNearest
	}

	switch s.MinFilter {
	case loader.FilterNearest:
		data.MinFilter = wgpu.FilterModeNearest
		data.MipmapFilter = wgpu.MipmapFilterModeNearest
	case loader.FilterLinear:
		data.MipmapFilter = wgpu.MipmapFilterModeNearest
	case loader.FilterNearestMipmapNearest:
		data.MinFilter = wgpu.FilterModeNearest
		data.MipmapFilter = wgpu.MipmapFilterModeNearest
	case loader.FilterLinearMipmapNearest:
		data.MipmapFilter = wgpu.MipmapFilterModeNearest
	case loader.FilterNearestMipmapLinear:
		data.MinFilter = wgpu.FilterModeNearest
	}

	data.AddressModeU = addressMode(s.WrapS)
	data.AddressModeV = addressMode(s.WrapT)
	return data
}

func addressMode(w loader.Wrap) wgpu.AddressMode {
	switch w {
	case loader.WrapClampToEdge:
		return wgpu.AddressModeClampToEdge
	case loader.WrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}
