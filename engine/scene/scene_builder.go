package scene

import (
	"github.com/sophfee/helix-engine/engine/gpu"
)

// SceneBuilderOption is a functional option for configuring Instantiate.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName overrides the scene name taken from the asset.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithActive sets whether the scene is active for rendering.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithSceneIndex instantiates the given scene instead of the asset's default scene.
//
// Parameters:
//   - index: the scene index
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSceneIndex(index int) SceneBuilderOption {
	return func(s *scene) {
		s.sceneIndex = index
	}
}

// WithStaged attaches staged meshes to the entities whose node has a mesh.
// Without it, entities keep only their MeshIndex.
//
// Parameters:
//   - staged: the asset's uploaded resources
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithStaged(staged *gpu.StagedAsset) SceneBuilderOption {
	return func(s *scene) {
		s.staged = staged
	}
}
