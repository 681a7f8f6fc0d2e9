package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Source is one document to parse: its text, its origin path, and any buffer payloads supplied
// by the caller. A buffer with no URI takes Embedded[i] for its own index i.
type Source struct {
	// Path is the document's origin path. External URIs resolve relative to its directory.
	Path string

	// Text is the document JSON.
	Text []byte

	// Embedded holds caller-owned bytes for URI-less buffers, indexed by buffer index.
	Embedded [][]byte
}

// parseOptions carries the loader settings the parser needs.
type parseOptions struct {
	fallbackRoot string
	maxFileSize  int64
	materializer *imageMaterializer
}

// documentParser decodes one document into an Asset. It runs on the calling goroutine only.
type documentParser struct {
	ctx      context.Context
	opts     parseOptions
	store    *bufferStore
	asset    *Asset
	sections map[string]json.RawMessage

	// embeddedImages are image indices waiting for their buffer views to resolve.
	embeddedImages []int
}

// parseDocument produces a fully resolved Asset from src or fails with a *DecodeError.
// The result is all-or-nothing: on failure no Asset is returned and in-flight image decodes
// started by this parse are cancelled.
//
// Parameters:
//   - ctx: context checked between sections and passed to image decodes
//   - src: the document source
//   - opts: parser settings
//
// Returns:
//   - *Asset: the decoded asset graph
//   - error: a *DecodeError, or ctx.Err() if the parse was cancelled
func parseDocument(ctx context.Context, src Source, opts parseOptions) (*Asset, error) {
	if opts.maxFileSize <= 0 {
		opts.maxFileSize = DefaultMaxFileSize
	}
	if opts.materializer == nil {
		opts.materializer = newImageMaterializer()
	}

	baseDir := "."
	if src.Path != "" {
		baseDir = filepath.Dir(src.Path)
	}

	imgCtx, cancel := context.WithCancel(ctx)
	p := &documentParser{
		ctx:  imgCtx,
		opts: opts,
		store: &bufferStore{
			baseDir:      baseDir,
			fallbackRoot: opts.fallbackRoot,
			maxFileSize:  opts.maxFileSize,
			embedded:     src.Embedded,
		},
		asset: newAsset(src.Path, baseDir),
	}

	if err := p.parse(src.Text); err != nil {
		cancel()
		return nil, err
	}

	go func() {
		_ = p.asset.WaitImages(context.Background())
		cancel()
	}()
	return p.asset, nil
}

func (p *documentParser) parse(text []byte) error {
	if err := json.Unmarshal(text, &p.sections); err != nil {
		return structuralError(sectionDocument, Absent, "", "%w", err)
	}
	if p.sections == nil {
		return structuralError(sectionDocument, Absent, "", "top level must be an object")
	}

	if err := p.checkHeader(); err != nil {
		return err
	}

	for _, section := range sectionOrder {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if err := p.decodeSection(section); err != nil {
			return err
		}
	}

	if err := p.resolveBufferViews(); err != nil {
		return err
	}
	for i := range p.asset.accessors {
		if err := checkAccessorBounds(i, &p.asset.accessors[i], p.asset.bufferViews); err != nil {
			return err
		}
	}
	if err := p.validateReferences(); err != nil {
		return err
	}
	if err := p.buildHierarchy(); err != nil {
		return err
	}

	for _, i := range p.embeddedImages {
		p.opts.materializer.dispatch(p.ctx, p.store, p.asset, i)
	}

	return p.opts.materializer.enforcePolicy(p.ctx, p.asset)
}

// checkHeader validates the asset version and rejects documents that require extensions.
func (p *documentParser) checkHeader() error {
	if raw, ok := p.sections[sectionAsset]; ok {
		var w gltfAsset
		if err := decodeElement(sectionAsset, Absent, raw, &w); err != nil {
			return err
		}
		if w.Version == nil {
			return structuralError(sectionAsset, Absent, "version", "required field missing")
		}
		if !strings.HasPrefix(*w.Version, "2.") {
			return unsupportedError(sectionAsset, Absent, "version", "version %q, want 2.x", *w.Version)
		}
		p.asset.generator = w.Generator
	}

	if raw, ok := p.sections[sectionExtensionsRequired]; ok {
		var required []string
		if err := decodeElement(sectionExtensionsRequired, Absent, raw, &required); err != nil {
			return err
		}
		if len(required) > 0 {
			return unsupportedError(sectionExtensionsRequired, 0, "", "extension %q is required", required[0])
		}
	}
	return nil
}

func (p *documentParser) decodeSection(section string) error {
	if section == sectionScene {
		return p.decodeDefaultScene()
	}

	elements, err := p.elements(section)
	if err != nil {
		return err
	}

	var decode func(int, json.RawMessage) error
	switch section {
	case sectionMeshes:
		p.asset.meshes = make([]Mesh, 0, len(elements))
		decode = p.decodeMesh
	case sectionImages:
		p.asset.images = make([]*Image, 0, len(elements))
		decode = p.decodeImage
	case sectionTextures:
		p.asset.textures = make([]Texture, 0, len(elements))
		decode = p.decodeTexture
	case sectionSamplers:
		p.asset.samplers = make([]Sampler, 0, len(elements))
		decode = p.decodeSampler
	case sectionMaterials:
		p.asset.materials = make([]Material, 0, len(elements))
		decode = p.decodeMaterial
	case sectionNodes:
		p.asset.nodes = make([]Node, 0, len(elements))
		decode = p.decodeNode
	case sectionScenes:
		p.asset.scenes = make([]Scene, 0, len(elements))
		decode = p.decodeScene
	case sectionAccessors:
		p.asset.accessors = make([]Accessor, 0, len(elements))
		decode = func(i int, raw json.RawMessage) error {
			acc, err := decodeAccessor(i, raw)
			if err != nil {
				return err
			}
			p.asset.accessors = append(p.asset.accessors, acc)
			return nil
		}
	case sectionBufferViews:
		p.asset.bufferViews = make([]BufferView, 0, len(elements))
		decode = p.decodeBufferView
	case sectionBuffers:
		p.asset.buffers = make([]Buffer, 0, len(elements))
		decode = p.decodeBuffer
	default:
		return fmt.Errorf("loader: no decoder for section %q", section)
	}

	for i, raw := range elements {
		if err := decode(i, raw); err != nil {
			return err
		}
	}

	if section == sectionImages {
		p.dispatchExternalImages()
	}
	return nil
}

// elements splits a top-level array section into its raw elements. A missing section is empty.
func (p *documentParser) elements(section string) ([]json.RawMessage, error) {
	raw, ok := p.sections[section]
	if !ok {
		return nil, nil
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, structuralError(section, Absent, "", "must be an array: %w", err)
	}
	return elements, nil
}

// decodeElement unmarshals one element, turning JSON type mismatches into field-level errors.
func decodeElement(section string, index int, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return structuralError(section, index, te.Field, "expected %s, got JSON %s", te.Type, te.Value)
		}
		return structuralError(section, index, "", "%w", err)
	}
	return nil
}

// optIndex converts an optional index field, rejecting explicit negative values.
func optIndex(section string, index int, field string, v *int) (int, error) {
	if v == nil {
		return Absent, nil
	}
	if *v < 0 {
		return Absent, structuralError(section, index, field, "index must be >= 0, got %d", *v)
	}
	return *v, nil
}

// --- Per-Element Decoders ---

func (p *documentParser) decodeMesh(i int, raw json.RawMessage) error {
	var w gltfMesh
	if err := decodeElement(sectionMeshes, i, raw, &w); err != nil {
		return err
	}
	if w.Primitives == nil {
		return structuralError(sectionMeshes, i, "primitives", "required field missing")
	}
	if len(*w.Primitives) == 0 {
		return structuralError(sectionMeshes, i, "primitives", "must not be empty")
	}

	mesh := Mesh{Name: w.Name, Primitives: make([]Primitive, 0, len(*w.Primitives))}
	for j, wp := range *w.Primitives {
		field := fmt.Sprintf("primitives[%d]", j)
		if wp.Attributes == nil {
			return structuralError(sectionMeshes, i, field+".attributes", "required field missing")
		}

		prim := Primitive{Mode: ModeTriangles}
		for s := range prim.Attributes {
			prim.Attributes[s] = Absent
		}
		for name, acc := range *wp.Attributes {
			slot, ok := AttributeSlotFor(name)
			if !ok {
				continue
			}
			if acc < 0 {
				return structuralError(sectionMeshes, i, field+".attributes."+name, "index must be >= 0, got %d", acc)
			}
			prim.Attributes[slot] = acc
		}

		var err error
		if prim.Indices, err = optIndex(sectionMeshes, i, field+".indices", wp.Indices); err != nil {
			return err
		}
		if prim.Material, err = optIndex(sectionMeshes, i, field+".material", wp.Material); err != nil {
			return err
		}
		if wp.Mode != nil {
			if prim.Mode, err = parsePrimitiveMode(*wp.Mode); err != nil {
				return newDecodeError(KindStructural, sectionMeshes, i, field+".mode", err)
			}
		}
		mesh.Primitives = append(mesh.Primitives, prim)
	}

	p.asset.meshes = append(p.asset.meshes, mesh)
	return nil
}

func (p *documentParser) decodeImage(i int, raw json.RawMessage) error {
	var w gltfImage
	if err := decodeElement(sectionImages, i, raw, &w); err != nil {
		return err
	}

	img := &Image{Name: w.Name, URI: w.URI, MimeType: w.MimeType, BufferView: Absent}
	switch {
	case w.URI != "" && w.BufferView != nil:
		return structuralError(sectionImages, i, "bufferView", "uri and bufferView are mutually exclusive")
	case w.URI == "" && w.BufferView == nil:
		return structuralError(sectionImages, i, "uri", "one of uri or bufferView is required")
	case w.BufferView != nil:
		bv, err := optIndex(sectionImages, i, "bufferView", w.BufferView)
		if err != nil {
			return err
		}
		img.BufferView = bv
	}

	p.asset.images = append(p.asset.images, img)
	return nil
}

// dispatchExternalImages starts decoding every URI image as soon as the images section is
// known. Embedded images wait for buffers.
func (p *documentParser) dispatchExternalImages() {
	for i, img := range p.asset.images {
		if img.Embedded() {
			p.embeddedImages = append(p.embeddedImages, i)
			continue
		}
		p.opts.materializer.dispatch(p.ctx, p.store, p.asset, i)
	}
}

func (p *documentParser) decodeTexture(i int, raw json.RawMessage) error {
	var w gltfTexture
	if err := decodeElement(sectionTextures, i, raw, &w); err != nil {
		return err
	}
	tex := Texture{Name: w.Name}
	var err error
	if tex.Sampler, err = optIndex(sectionTextures, i, "sampler", w.Sampler); err != nil {
		return err
	}
	if tex.Source, err = optIndex(sectionTextures, i, "source", w.Source); err != nil {
		return err
	}
	p.asset.textures = append(p.asset.textures, tex)
	return nil
}

func (p *documentParser) decodeSampler(i int, raw json.RawMessage) error {
	var w gltfSampler
	if err := decodeElement(sectionSamplers, i, raw, &w); err != nil {
		return err
	}

	s := Sampler{Name: w.Name, WrapS: WrapRepeat, WrapT: WrapRepeat}
	if w.MagFilter != nil {
		switch f := Filter(*w.MagFilter); f {
		case FilterNearest, FilterLinear:
			s.MagFilter = f
		default:
			return structuralError(sectionSamplers, i, "magFilter", "unknown filter %d", *w.MagFilter)
		}
	}
	if w.MinFilter != nil {
		switch f := Filter(*w.MinFilter); f {
		case FilterNearest, FilterLinear, FilterNearestMipmapNearest, FilterLinearMipmapNearest,
			FilterNearestMipmapLinear, FilterLinearMipmapLinear:
			s.MinFilter = f
		default:
			return structuralError(sectionSamplers, i, "minFilter", "unknown filter %d", *w.MinFilter)
		}
	}
	var err error
	if s.WrapS, err = parseWrap(sectionSamplers, i, "wrapS", w.WrapS); err != nil {
		return err
	}
	if s.WrapT, err = parseWrap(sectionSamplers, i, "wrapT", w.WrapT); err != nil {
		return err
	}

	p.asset.samplers = append(p.asset.samplers, s)
	return nil
}

func parseWrap(section string, index int, field string, v *int) (Wrap, error) {
	if v == nil {
		return WrapRepeat, nil
	}
	switch w := Wrap(*v); w {
	case WrapClampToEdge, WrapMirroredRepeat, WrapRepeat:
		return w, nil
	default:
		return 0, structuralError(section, index, field, "unknown wrap mode %d", *v)
	}
}

func (p *documentParser) decodeMaterial(i int, raw json.RawMessage) error {
	var w gltfMaterial
	if err := decodeElement(sectionMaterials, i, raw, &w); err != nil {
		return err
	}

	m := Material{
		Name:            w.Name,
		BaseColorFactor: [4]float32{1, 1, 1, 1},
		MetallicFactor:  1,
		RoughnessFactor: 1,
		AlphaMode:       "OPAQUE",
		AlphaCutoff:     0.5,
		DoubleSided:     w.DoubleSided,
	}

	var err error
	if pbr := w.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			m.BaseColorFactor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			m.MetallicFactor = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			m.RoughnessFactor = *pbr.RoughnessFactor
		}
		if m.BaseColorTexture, err = textureRef(i, "pbrMetallicRoughness.baseColorTexture", pbr.BaseColorTexture); err != nil {
			return err
		}
		if m.MetallicRoughnessTexture, err = textureRef(i, "pbrMetallicRoughness.metallicRoughnessTexture", pbr.MetallicRoughnessTexture); err != nil {
			return err
		}
	} else {
		m.BaseColorTexture = TextureRef{Index: Absent}
		m.MetallicRoughnessTexture = TextureRef{Index: Absent}
	}
	if m.NormalTexture, err = textureRef(i, "normalTexture", w.NormalTexture); err != nil {
		return err
	}
	if m.OcclusionTexture, err = textureRef(i, "occlusionTexture", w.OcclusionTexture); err != nil {
		return err
	}
	if m.EmissiveTexture, err = textureRef(i, "emissiveTexture", w.EmissiveTexture); err != nil {
		return err
	}
	if w.EmissiveFactor != nil {
		m.EmissiveFactor = *w.EmissiveFactor
	}
	if w.AlphaCutoff != nil {
		m.AlphaCutoff = *w.AlphaCutoff
	}
	switch w.AlphaMode {
	case "":
	case "OPAQUE", "MASK", "BLEND":
		m.AlphaMode = w.AlphaMode
	default:
		return structuralError(sectionMaterials, i, "alphaMode", "unknown alpha mode %q", w.AlphaMode)
	}

	p.asset.materials = append(p.asset.materials, m)
	return nil
}

func textureRef(index int, field string, info *gltfTextureInfo) (TextureRef, error) {
	if info == nil {
		return TextureRef{Index: Absent}, nil
	}
	if info.Index == nil {
		return TextureRef{}, structuralError(sectionMaterials, index, field+".index", "required field missing")
	}
	if *info.Index < 0 {
		return TextureRef{}, structuralError(sectionMaterials, index, field+".index", "index must be >= 0, got %d", *info.Index)
	}
	return TextureRef{Index: *info.Index, TexCoord: info.TexCoord}, nil
}

func (p *documentParser) decodeNode(i int, raw json.RawMessage) error {
	var w gltfNode
	if err := decodeElement(sectionNodes, i, raw, &w); err != nil {
		return err
	}
	if w.Matrix != nil {
		return unsupportedError(sectionNodes, i, "matrix", "matrix transforms are not supported, use translation/rotation/scale")
	}

	n := Node{
		Name:     w.Name,
		Children: w.Children,
		Parent:   Absent,
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
	var err error
	if n.Mesh, err = optIndex(sectionNodes, i, "mesh", w.Mesh); err != nil {
		return err
	}
	if w.Translation != nil {
		n.Translation = *w.Translation
	}
	if w.Rotation != nil {
		n.Rotation = *w.Rotation
	}
	if w.Scale != nil {
		n.Scale = *w.Scale
	}

	p.asset.nodes = append(p.asset.nodes, n)
	return nil
}

func (p *documentParser) decodeScene(i int, raw json.RawMessage) error {
	var w gltfScene
	if err := decodeElement(sectionScenes, i, raw, &w); err != nil {
		return err
	}
	p.asset.scenes = append(p.asset.scenes, Scene{Name: w.Name, Nodes: w.Nodes})
	return nil
}

func (p *documentParser) decodeDefaultScene() error {
	raw, ok := p.sections[sectionScene]
	if !ok {
		return nil
	}
	var scene int
	if err := decodeElement(sectionScene, Absent, raw, &scene); err != nil {
		return err
	}
	if scene < 0 {
		return structuralError(sectionScene, Absent, "", "index must be >= 0, got %d", scene)
	}
	p.asset.defaultScene = scene
	return nil
}

func (p *documentParser) decodeBufferView(i int, raw json.RawMessage) error {
	var w gltfBufferView
	if err := decodeElement(sectionBufferViews, i, raw, &w); err != nil {
		return err
	}
	if w.Buffer == nil {
		return structuralError(sectionBufferViews, i, "buffer", "required field missing")
	}
	if *w.Buffer < 0 {
		return structuralError(sectionBufferViews, i, "buffer", "index must be >= 0, got %d", *w.Buffer)
	}
	if w.ByteLength == nil {
		return structuralError(sectionBufferViews, i, "byteLength", "required field missing")
	}
	if *w.ByteLength < 1 {
		return structuralError(sectionBufferViews, i, "byteLength", "must be >= 1, got %d", *w.ByteLength)
	}
	if w.ByteOffset < 0 {
		return structuralError(sectionBufferViews, i, "byteOffset", "must be >= 0, got %d", w.ByteOffset)
	}

	view := BufferView{
		Name:       w.Name,
		Buffer:     *w.Buffer,
		ByteOffset: w.ByteOffset,
		ByteLength: *w.ByteLength,
	}
	if w.ByteStride != nil {
		if *w.ByteStride < 4 || *w.ByteStride > 252 {
			return structuralError(sectionBufferViews, i, "byteStride", "must be in [4,252], got %d", *w.ByteStride)
		}
		view.ByteStride = *w.ByteStride
	}
	if w.Target != nil {
		t, err := parseTarget(*w.Target)
		if err != nil {
			return newDecodeError(KindStructural, sectionBufferViews, i, "target", err)
		}
		view.Target = t
	}

	p.asset.bufferViews = append(p.asset.bufferViews, view)
	return nil
}

func (p *documentParser) decodeBuffer(i int, raw json.RawMessage) error {
	var w gltfBuffer
	if err := decodeElement(sectionBuffers, i, raw, &w); err != nil {
		return err
	}
	buf, err := p.store.load(p.ctx, i, &w)
	if err != nil {
		return err
	}
	p.asset.buffers = append(p.asset.buffers, buf)
	return nil
}

// --- Resolution & Validation ---

// resolveBufferViews checks every view's byte range against its loaded buffer.
func (p *documentParser) resolveBufferViews() error {
	for i, v := range p.asset.bufferViews {
		if v.Buffer >= len(p.asset.buffers) {
			return boundsError(sectionBufferViews, i, "buffer", "index %d out of range [0,%d)", v.Buffer, len(p.asset.buffers))
		}
		if _, err := resolveRange(p.asset.buffers, v.Buffer, v.ByteOffset, v.ByteLength); err != nil {
			return newDecodeError(KindBounds, sectionBufferViews, i, "byteLength", err)
		}
	}
	return nil
}

// validateReferences checks every cross-reference index against its target collection.
func (p *documentParser) validateReferences() error {
	a := p.asset
	check := func(section string, index int, field string, ref, n int) error {
		if ref == Absent || (ref >= 0 && ref < n) {
			return nil
		}
		return boundsError(section, index, field, "index %d out of range [0,%d)", ref, n)
	}
	// list entries are never optional, so Absent is out of range like any other negative
	checkEntry := func(section string, index int, field string, ref, n int) error {
		if ref >= 0 && ref < n {
			return nil
		}
		return boundsError(section, index, field, "index %d out of range [0,%d)", ref, n)
	}

	for i, m := range a.meshes {
		for j, prim := range m.Primitives {
			field := fmt.Sprintf("primitives[%d]", j)
			for slot, acc := range prim.Attributes {
				if err := check(sectionMeshes, i, field+".attributes."+AttributeSlot(slot).String(), acc, len(a.accessors)); err != nil {
					return err
				}
			}
			if err := check(sectionMeshes, i, field+".indices", prim.Indices, len(a.accessors)); err != nil {
				return err
			}
			if err := check(sectionMeshes, i, field+".material", prim.Material, len(a.materials)); err != nil {
				return err
			}
		}
	}
	for i, img := range a.images {
		if err := check(sectionImages, i, "bufferView", img.BufferView, len(a.bufferViews)); err != nil {
			return err
		}
	}
	for i, t := range a.textures {
		if err := check(sectionTextures, i, "sampler", t.Sampler, len(a.samplers)); err != nil {
			return err
		}
		if err := check(sectionTextures, i, "source", t.Source, len(a.images)); err != nil {
			return err
		}
	}
	for i, m := range a.materials {
		refs := []struct {
			field string
			ref   TextureRef
		}{
			{"pbrMetallicRoughness.baseColorTexture.index", m.BaseColorTexture},
			{"pbrMetallicRoughness.metallicRoughnessTexture.index", m.MetallicRoughnessTexture},
			{"normalTexture.index", m.NormalTexture},
			{"occlusionTexture.index", m.OcclusionTexture},
			{"emissiveTexture.index", m.EmissiveTexture},
		}
		for _, r := range refs {
			if err := check(sectionMaterials, i, r.field, r.ref.Index, len(a.textures)); err != nil {
				return err
			}
		}
	}
	for i, n := range a.nodes {
		if err := check(sectionNodes, i, "mesh", n.Mesh, len(a.meshes)); err != nil {
			return err
		}
		for j, c := range n.Children {
			if err := checkEntry(sectionNodes, i, fmt.Sprintf("children[%d]", j), c, len(a.nodes)); err != nil {
				return err
			}
		}
	}
	for i, s := range a.scenes {
		for j, n := range s.Nodes {
			if err := checkEntry(sectionScenes, i, fmt.Sprintf("nodes[%d]", j), n, len(a.nodes)); err != nil {
				return err
			}
		}
	}
	return check(sectionScene, Absent, "", a.defaultScene, len(a.scenes))
}

// buildHierarchy assigns parents and rejects nodes with two parents or cycles.
func (p *documentParser) buildHierarchy() error {
	nodes := p.asset.nodes
	for i := range nodes {
		for j, c := range nodes[i].Children {
			if c == i {
				return structuralError(sectionNodes, i, fmt.Sprintf("children[%d]", j), "node is its own child")
			}
			if nodes[c].Parent != Absent {
				return structuralError(sectionNodes, i, fmt.Sprintf("children[%d]", j),
					"node %d already has parent %d", c, nodes[c].Parent)
			}
			nodes[c].Parent = i
		}
	}

	// walk parent chains; 1 marks the chain being walked, 2 a chain known to reach a root
	state := make([]uint8, len(nodes))
	var chain []int
	for i := range nodes {
		chain = chain[:0]
		n := i
		for n != Absent && state[n] == 0 {
			state[n] = 1
			chain = append(chain, n)
			n = nodes[n].Parent
		}
		if n != Absent && state[n] == 1 {
			return structuralError(sectionNodes, n, "children", "node hierarchy contains a cycle")
		}
		for _, c := range chain {
			state[c] = 2
		}
	}
	return nil
}
