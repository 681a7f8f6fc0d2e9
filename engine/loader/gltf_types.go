// gltf_types.go contains the per-element wire structures decoded from each document section.
// Required fields are pointers so that a missing field can be told apart from a zero value.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html
package loader

// Section names, in the order the parser visits them.
const (
	sectionMeshes      = "meshes"
	sectionImages      = "images"
	sectionTextures    = "textures"
	sectionSamplers    = "samplers"
	sectionMaterials   = "materials"
	sectionNodes       = "nodes"
	sectionScenes      = "scenes"
	sectionScene       = "scene"
	sectionAccessors   = "accessors"
	sectionBufferViews = "bufferViews"
	sectionBuffers     = "buffers"

	sectionAsset              = "asset"
	sectionExtensionsRequired = "extensionsRequired"
	sectionDocument           = "document"
)

// sectionOrder is the fixed pass order. Buffers come last so that every accessor and image has
// declared the views it needs before raw bytes are pulled in.
var sectionOrder = []string{
	sectionMeshes,
	sectionImages,
	sectionTextures,
	sectionSamplers,
	sectionMaterials,
	sectionNodes,
	sectionScenes,
	sectionScene,
	sectionAccessors,
	sectionBufferViews,
	sectionBuffers,
}

// --- Asset Metadata ---

// gltfAsset contains metadata about the asset.
type gltfAsset struct {
	// Version is the format version (must start with "2.").
	Version *string `json:"version"`

	// Generator is the tool that generated this asset.
	Generator string `json:"generator,omitempty"`
}

// --- Scene Graph ---

type gltfScene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
}

type gltfNode struct {
	Name     string `json:"name,omitempty"`
	Children []int  `json:"children,omitempty"`
	Mesh     *int   `json:"mesh,omitempty"`

	// Matrix is a column-major 4x4 transform. Not supported; only TRS nodes load.
	Matrix *[16]float32 `json:"matrix,omitempty"`

	Translation *[3]float32 `json:"translation,omitempty"`
	Rotation    *[4]float32 `json:"rotation,omitempty"`
	Scale       *[3]float32 `json:"scale,omitempty"`
}

// --- Mesh Data ---

type gltfMesh struct {
	Name       string           `json:"name,omitempty"`
	Primitives *[]gltfPrimitive `json:"primitives"`
}

type gltfPrimitive struct {
	// Attributes maps an attribute semantic to an accessor index.
	Attributes *map[string]int `json:"attributes"`
	Indices    *int            `json:"indices,omitempty"`
	Material   *int            `json:"material,omitempty"`

	// Mode is the topology, 4 (TRIANGLES) when absent.
	Mode *int `json:"mode,omitempty"`

	Targets []map[string]int `json:"targets,omitempty"`
}

// --- Buffer Data ---

type gltfAccessor struct {
	Name          string    `json:"name,omitempty"`
	BufferView    *int      `json:"bufferView,omitempty"`
	ByteOffset    int       `json:"byteOffset,omitempty"`
	ComponentType *int      `json:"componentType"`
	Normalized    bool      `json:"normalized,omitempty"`
	Count         *int      `json:"count"`
	Type          *string   `json:"type"`
	Max           []float64 `json:"max,omitempty"`
	Min           []float64 `json:"min,omitempty"`

	// Sparse is only checked for presence; sparse storage is rejected.
	Sparse *struct{} `json:"sparse,omitempty"`
}

type gltfBufferView struct {
	Name       string `json:"name,omitempty"`
	Buffer     *int   `json:"buffer"`
	ByteOffset int    `json:"byteOffset,omitempty"`
	ByteLength *int   `json:"byteLength"`
	ByteStride *int   `json:"byteStride,omitempty"`
	Target     *int   `json:"target,omitempty"`
}

type gltfBuffer struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	ByteLength *int   `json:"byteLength"`
}

// --- Materials & Textures ---

type gltfMaterial struct {
	Name                 string                    `json:"name,omitempty"`
	PbrMetallicRoughness *gltfPbrMetallicRoughness `json:"pbrMetallicRoughness,omitempty"`
	NormalTexture        *gltfTextureInfo          `json:"normalTexture,omitempty"`
	OcclusionTexture     *gltfTextureInfo          `json:"occlusionTexture,omitempty"`
	EmissiveTexture      *gltfTextureInfo          `json:"emissiveTexture,omitempty"`
	EmissiveFactor       *[3]float32               `json:"emissiveFactor,omitempty"`
	AlphaMode            string                    `json:"alphaMode,omitempty"`
	AlphaCutoff          *float32                  `json:"alphaCutoff,omitempty"`
	DoubleSided          bool                      `json:"doubleSided,omitempty"`
}

type gltfPbrMetallicRoughness struct {
	BaseColorFactor          *[4]float32      `json:"baseColorFactor,omitempty"`
	BaseColorTexture         *gltfTextureInfo `json:"baseColorTexture,omitempty"`
	MetallicFactor           *float32         `json:"metallicFactor,omitempty"`
	RoughnessFactor          *float32         `json:"roughnessFactor,omitempty"`
	MetallicRoughnessTexture *gltfTextureInfo `json:"metallicRoughnessTexture,omitempty"`
}

type gltfTextureInfo struct {
	Index    *int `json:"index"`
	TexCoord int  `json:"texCoord,omitempty"`
}

type gltfTexture struct {
	Name    string `json:"name,omitempty"`
	Sampler *int   `json:"sampler,omitempty"`
	Source  *int   `json:"source,omitempty"`
}

type gltfImage struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
}

type gltfSampler struct {
	Name      string `json:"name,omitempty"`
	MagFilter *int   `json:"magFilter,omitempty"`
	MinFilter *int   `json:"minFilter,omitempty"`
	WrapS     *int   `json:"wrapS,omitempty"`
	WrapT     *int   `json:"wrapT,omitempty"`
}

// --- GLB Binary Format ---

// gltfGLBHeader is the 12-byte GLB file header.
type gltfGLBHeader struct {
	Magic   uint32 // Must be 0x46546C67 ("glTF" in ASCII)
	Version uint32 // Must be 2
	Length  uint32 // Total file length
}

// gltfGLBChunkHeader precedes each GLB chunk.
type gltfGLBChunkHeader struct {
	ChunkLength uint32
	ChunkType   uint32 // 0x4E4F534A for JSON, 0x004E4942 for BIN
}

// GLB constants
const (
	gltfGLBMagic     = 0x46546C67 // "glTF" in little-endian ASCII
	gltfGLBVersion   = 2
	gltfGLBChunkJSON = 0x4E4F534A // "JSON" in little-endian ASCII
	gltfGLBChunkBIN  = 0x004E4942 // "BIN\0" in little-endian ASCII
)
