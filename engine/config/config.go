// Package config loads helix settings from a TOML file and layers CLI flag overrides on top.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "~/.config/helix/helix.toml"

// Config holds every configurable setting.
type Config struct {
	Loader LoaderConfig `toml:"loader"`
	GPU    GPUConfig    `toml:"gpu"`
	Window WindowConfig `toml:"window"`
}

// LoaderConfig controls document and image loading.
type LoaderConfig struct {
	// FallbackRoot is searched when a URI is not found next to the document. "~" is expanded.
	FallbackRoot string `toml:"fallback_root"`

	// Workers is the number of concurrent image decodes.
	Workers int `toml:"workers"`

	// DeferredImages decodes images on the worker pool instead of inline. Defaults to true.
	DeferredImages *bool `toml:"deferred_images"`

	// ImagePolicy is "skip" (default) or "abort".
	ImagePolicy string `toml:"image_policy"`

	// MaxFileSize caps any single buffer, image or document read, in bytes.
	MaxFileSize int64 `toml:"max_file_size"`

	// MaxImageDimension downscales larger images. Zero disables.
	MaxImageDimension int `toml:"max_image_dimension"`

	// MaxImagePixels rejects images whose header declares more pixels. Zero uses the loader default.
	MaxImagePixels int64 `toml:"max_image_pixels"`

	// DesiredChannels forces the decoded channel count (1-4). Zero keeps the native count.
	DesiredChannels int `toml:"desired_channels"`

	// ReadTimeout bounds a whole load, as a Go duration string ("30s"). Empty disables.
	ReadTimeout string `toml:"read_timeout"`
}

// GPUConfig controls device creation.
type GPUConfig struct {
	ForceFallbackAdapter bool       `toml:"force_fallback_adapter"`
	ClearColor           [4]float64 `toml:"clear_color"`
}

// WindowConfig controls the viewer window.
type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	FallbackRoot string
	Workers      int
	ImagePolicy  string
}

// Load reads a TOML config file. "~" in path is expanded. Unknown keys are an error.
// Fields not set in the file keep their zero values.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - Config: the decoded config
//   - error: error if the file cannot be read or parsed
func Load(path string) (Config, error) {
	full, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: expand %s: %w", path, err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", full, err)
	}
	return Parse(data)
}

// Parse decodes TOML config data.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// LoadOptional loads path if it exists and returns Default() otherwise.
func LoadOptional(path string) (Config, error) {
	full, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: expand %s: %w", path, err)
	}
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(full)
}

// Default returns a config with every default filled in.
func Default() Config {
	var c Config
	_ = c.Resolve(Flags{})
	return c
}

// Resolve applies flag overrides and fills empty fields with defaults.
// CLI flags take priority when non-zero/non-empty.
//
// Parameters:
//   - flags: the CLI overrides
//
// Returns:
//   - error: error if a path cannot be expanded or a value is invalid
func (c *Config) Resolve(flags Flags) error {
	if flags.FallbackRoot != "" {
		c.Loader.FallbackRoot = flags.FallbackRoot
	}
	if flags.Workers > 0 {
		c.Loader.Workers = flags.Workers
	}
	if flags.ImagePolicy != "" {
		c.Loader.ImagePolicy = flags.ImagePolicy
	}

	if c.Loader.FallbackRoot != "" {
		root, err := homedir.Expand(c.Loader.FallbackRoot)
		if err != nil {
			return fmt.Errorf("config: expand fallback_root: %w", err)
		}
		c.Loader.FallbackRoot = root
	}

	// Defaults
	if c.Loader.Workers <= 0 {
		c.Loader.Workers = max(runtime.NumCPU()-1, 1)
	}
	if c.Loader.DeferredImages == nil {
		deferred := true
		c.Loader.DeferredImages = &deferred
	}
	if c.Loader.ImagePolicy == "" {
		c.Loader.ImagePolicy = "skip"
	}
	if c.Loader.ImagePolicy != "skip" && c.Loader.ImagePolicy != "abort" {
		return fmt.Errorf("config: image_policy %q: want skip or abort", c.Loader.ImagePolicy)
	}
	if c.Loader.MaxImagePixels < 0 {
		return fmt.Errorf("config: max_image_pixels %d: want >= 0", c.Loader.MaxImagePixels)
	}
	if c.Loader.DesiredChannels < 0 || c.Loader.DesiredChannels > 4 {
		return fmt.Errorf("config: desired_channels %d: want 0-4", c.Loader.DesiredChannels)
	}
	if _, err := c.Loader.Timeout(); err != nil {
		return err
	}
	if c.Window.Width <= 0 {
		c.Window.Width = 1280
	}
	if c.Window.Height <= 0 {
		c.Window.Height = 720
	}
	if c.Window.Title == "" {
		c.Window.Title = "helix"
	}
	if c.GPU.ClearColor == [4]float64{} {
		c.GPU.ClearColor = [4]float64{0.1, 0.1, 0.12, 1}
	}
	return nil
}

// Timeout parses ReadTimeout. An empty value is zero (no timeout).
func (l LoaderConfig) Timeout() (time.Duration, error) {
	if l.ReadTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(l.ReadTimeout)
	if err != nil {
		return 0, fmt.Errorf("config: read_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: read_timeout %s: must not be negative", d)
	}
	return d, nil
}
