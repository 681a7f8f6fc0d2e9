package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sophfee/helix-engine/common"
	"github.com/sophfee/helix-engine/engine/config"
	"github.com/sophfee/helix-engine/engine/gpu"
	"github.com/sophfee/helix-engine/engine/loader"
	"github.com/sophfee/helix-engine/engine/profiler"
	"github.com/sophfee/helix-engine/engine/scene"
	"github.com/sophfee/helix-engine/engine/window"
)

// viewer holds the state of the interactive window: the shown asset, its GPU resources and
// the instantiated scene.
type viewer struct {
	ctx    context.Context
	title  string
	loader loader.Loader
	device *gpu.Device
	window window.Window

	asset  *loader.Asset
	staged *gpu.StagedAsset
	scene  scene.Scene

	profiling bool
	profiler  *profiler.Profiler
}

// runViewer opens a window and shows asset until the window is closed.
// Number keys switch scenes, P toggles frame stats and dropping a document onto the window loads it.
func runViewer(ctx context.Context, cfg config.Config, l loader.Loader, asset *loader.Asset) error {
	win, err := window.NewWindow(
		window.WithTitle(cfg.Window.Title),
		window.WithWidth(cfg.Window.Width),
		window.WithHeight(cfg.Window.Height),
	)
	if err != nil {
		return err
	}
	defer win.Close()

	device, err := gpu.NewDevice(gpu.DeviceOptions{
		Surface:              win.SurfaceDescriptor(),
		ForceFallbackAdapter: cfg.GPU.ForceFallbackAdapter,
		ClearColor:           cfg.GPU.ClearColor,
	})
	if err != nil {
		return err
	}
	defer device.Release()
	device.ConfigureSurface(win.Width(), win.Height())

	v := &viewer{
		ctx:      ctx,
		title:    cfg.Window.Title,
		loader:   l,
		device:   device,
		window:   win,
		profiler: profiler.NewProfiler(log.Default()),
	}
	if err := v.show(asset, loader.Absent); err != nil {
		return err
	}
	defer v.release()

	win.SetResizeCallback(device.ConfigureSurface)
	win.SetKeyDownCallback(v.onKey)
	win.SetDropCallback(v.onDrop)
	win.SetUpdateCallback(v.frame)
	win.ProcessMessages()
	return nil
}

// show stages asset (unless it is already the shown asset) and instantiates the given scene.
func (v *viewer) show(asset *loader.Asset, sceneIndex int) error {
	staged := v.staged
	if asset != v.asset {
		var err error
		if staged, err = gpu.StageAsset(v.ctx, asset, v.device.Uploader()); err != nil {
			return err
		}
	}

	sc, err := scene.Instantiate(asset, scene.WithStaged(staged), scene.WithSceneIndex(sceneIndex))
	if err != nil {
		if staged != v.staged {
			staged.Release()
		}
		return err
	}

	if staged != v.staged {
		v.release()
	}
	v.asset, v.staged, v.scene = asset, staged, sc

	name := sc.Name()
	if name == "" {
		name = "untitled scene"
	}
	v.window.SetTitle(fmt.Sprintf("%s - %s [%s] (%d entities, %d drawn)",
		v.title, filepath.Base(asset.Path()), name, sc.Count(), len(sc.Renderables())))
	return nil
}

func (v *viewer) release() {
	if v.staged != nil {
		v.staged.Release()
		v.staged = nil
	}
}

func (v *viewer) onKey(keyCode uint32) {
	if keyCode == common.KeyP {
		v.profiling = !v.profiling
		return
	}
	index, ok := common.SceneKey(keyCode)
	if !ok || index >= v.asset.Counts().Scenes {
		return
	}
	if err := v.show(v.asset, index); err != nil {
		log.Printf("[Viewer] scene %d: %v", index, err)
	}
}

func (v *viewer) onDrop(paths []string) {
	asset, err := v.loader.Load(v.ctx, paths[0])
	if err != nil {
		log.Printf("[Viewer] %v", err)
		return
	}
	if err := v.show(asset, loader.Absent); err != nil {
		log.Printf("[Viewer] %s: %v", paths[0], err)
	}
}

func (v *viewer) frame() {
	if v.scene.Active() {
		if err := v.device.ClearFrame(); err != nil {
			log.Printf("[Viewer] frame: %v", err)
		}
	}
	if v.profiling {
		v.profiler.Tick()
	}
}
