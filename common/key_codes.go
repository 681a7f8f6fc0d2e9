package common

// Virtual key codes delivered by window key callbacks.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyP = 80 // P key (ASCII)

	Key1 = 49 // 1 key (ASCII)
	Key9 = 57 // 9 key (ASCII)
)

// SceneKey maps the number row to a scene index.
//
// Parameters:
//   - keyCode: the virtual key code
//
// Returns:
//   - int: 0 for Key1 through 8 for Key9
//   - bool: false for any other key
func SceneKey(keyCode uint32) (int, bool) {
	if keyCode < Key1 || keyCode > Key9 {
		return 0, false
	}
	return int(keyCode - Key1), true
}
