package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sophfee/helix-engine/common"
	"github.com/sophfee/helix-engine/engine/gpu"
	"github.com/sophfee/helix-engine/engine/loader"
)

var (
	// ErrNotRoot is returned when a scene lists a node that has a parent.
	ErrNotRoot = errors.New("scene root has a parent")

	// ErrDuplicateRoot is returned when a scene lists the same node twice.
	ErrDuplicateRoot = errors.New("scene lists node more than once")

	errUnknownEntity = errors.New("unknown entity")
)

// Entity is one instantiated node. IDs start at 1; a Parent of 0 means the entity is a root.
type Entity struct {
	ID       uint64
	Name     string
	Node     int
	Parent   uint64
	Children []uint64

	Translation [3]float32
	Rotation    [4]float32
	Scale       [3]float32

	// Local is T*R*S of the fields above, World is the parent's World times Local.
	Local common.Mat4
	World common.Mat4

	// MeshIndex is the node's mesh, or loader.Absent. Mesh is its staged form when one was supplied.
	MeshIndex int
	Mesh      *gpu.StagedMesh

	Enabled bool
}

// Scene is a runtime hierarchy instantiated from an asset's node and scene records.
type Scene interface {
	// Name returns the scene name.
	Name() string

	// Active reports whether the scene should be drawn.
	Active() bool

	// SetActive sets whether the scene should be drawn.
	SetActive(active bool)

	// Roots returns the root entity IDs in scene order.
	Roots() []uint64

	// Get returns the entity with the given ID, or nil.
	//
	// Parameters:
	//   - id: the entity ID
	//
	// Returns:
	//   - *Entity: the entity or nil
	Get(id uint64) *Entity

	// Count returns the number of entities.
	Count() int

	// Walk visits every entity depth first, parents before children, in scene order.
	// Returning false from fn skips that entity's children.
	//
	// Parameters:
	//   - fn: called with each entity and its depth (0 for roots)
	Walk(fn func(e *Entity, depth int) bool)

	// SetTransform replaces an entity's local transform and recomputes the world transforms of
	// it and its descendants.
	//
	// Parameters:
	//   - id: the entity ID
	//   - t: translation
	//   - r: rotation quaternion (x, y, z, w)
	//   - s: scale
	//
	// Returns:
	//   - error: error if the entity does not exist
	SetTransform(id uint64, t [3]float32, r [4]float32, s [3]float32) error

	// Renderables returns every enabled entity with a staged mesh, ordered by ID.
	Renderables() []*Entity
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu sync.RWMutex

	name   string
	active bool
	nextID uint64

	registry map[uint64]*Entity
	roots    []uint64

	sceneIndex int
	staged     *gpu.StagedAsset
}

var _ Scene = &scene{}

// Instantiate builds a Scene from asset. Without WithSceneIndex the default scene is used, or every
// parentless node when the asset declares none.
//
// Parameters:
//   - asset: the decoded asset
//   - options: functional options
//
// Returns:
//   - Scene: the instantiated hierarchy
//   - error: error if the scene index is invalid, a root is not a root, or a staged mesh is missing
func Instantiate(asset *loader.Asset, options ...SceneBuilderOption) (Scene, error) {
	s := &scene{
		active:     true,
		nextID:     1,
		registry:   make(map[uint64]*Entity),
		sceneIndex: loader.Absent,
	}
	for _, opt := range options {
		opt(s)
	}

	roots := asset.RootNodes()
	index := s.sceneIndex
	if index == loader.Absent {
		index = asset.DefaultScene()
	}
	if index != loader.Absent {
		rec, err := asset.Scene(index)
		if err != nil {
			return nil, err
		}
		if s.name == "" {
			s.name = rec.Name
		}
		roots = rec.Nodes
	}

	seen := make(map[int]bool, len(roots))
	for _, n := range roots {
		node, err := asset.Node(n)
		if err != nil {
			return nil, err
		}
		if node.Parent != loader.Absent {
			return nil, fmt.Errorf("node %d: %w", n, ErrNotRoot)
		}
		if seen[n] {
			return nil, fmt.Errorf("node %d: %w", n, ErrDuplicateRoot)
		}
		seen[n] = true

		id, err := s.instantiate(asset, n, 0)
		if err != nil {
			return nil, err
		}
		s.roots = append(s.roots, id)
	}

	identity := common.IdentityMat4()
	for _, id := range s.roots {
		s.propagate(id, &identity)
	}
	return s, nil
}

// instantiate creates the entity for node n and, recursively, its children.
func (s *scene) instantiate(asset *loader.Asset, n int, parent uint64) (uint64, error) {
	node, err := asset.Node(n)
	if err != nil {
		return 0, err
	}

	e := &Entity{
		ID:          s.nextID,
		Name:        node.Name,
		Node:        n,
		Parent:      parent,
		Translation: node.Translation,
		Rotation:    node.Rotation,
		Scale:       node.Scale,
		Local:       common.ComposeTRS(node.Translation, node.Rotation, node.Scale),
		MeshIndex:   node.Mesh,
		Enabled:     true,
	}
	s.nextID++
	if e.Name == "" {
		e.Name = fmt.Sprintf("node %d", n)
	}

	if node.Mesh != loader.Absent && s.staged != nil {
		if node.Mesh >= len(s.staged.Meshes) {
			return 0, fmt.Errorf("node %d: mesh %d was not staged (%d staged meshes)", n, node.Mesh, len(s.staged.Meshes))
		}
		e.Mesh = &s.staged.Meshes[node.Mesh]
	}
	s.registry[e.ID] = e

	for _, c := range node.Children {
		id, err := s.instantiate(asset, c, e.ID)
		if err != nil {
			return 0, err
		}
		e.Children = append(e.Children, id)
	}
	return e.ID, nil
}

// propagate sets World for id and its descendants from the parent's world matrix.
func (s *scene) propagate(id uint64, parentWorld *common.Mat4) {
	e := s.registry[id]
	common.Mul4(e.World[:], parentWorld[:], e.Local[:])
	for _, c := range e.Children {
		s.propagate(c, &e.World)
	}
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Roots() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.roots...)
}

func (s *scene) Get(id uint64) *Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry[id]
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.registry)
}

func (s *scene) Walk(fn func(e *Entity, depth int) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var visit func(id uint64, depth int)
	visit = func(id uint64, depth int) {
		e := s.registry[id]
		if !fn(e, depth) {
			return
		}
		for _, c := range e.Children {
			visit(c, depth+1)
		}
	}
	for _, id := range s.roots {
		visit(id, 0)
	}
}

func (s *scene) SetTransform(id uint64, t [3]float32, r [4]float32, sc [3]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.registry[id]
	if !ok {
		return fmt.Errorf("%w: %d", errUnknownEntity, id)
	}
	e.Translation, e.Rotation, e.Scale = t, r, sc
	e.Local = common.ComposeTRS(t, r, sc)

	parentWorld := common.IdentityMat4()
	if e.Parent != 0 {
		parentWorld = s.registry[e.Parent].World
	}
	s.propagate(id, &parentWorld)
	return nil
}

func (s *scene) Renderables() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entity
	for _, e := range s.registry {
		if e.Enabled && e.Mesh != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
