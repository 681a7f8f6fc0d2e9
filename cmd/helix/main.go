package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sophfee/helix-engine/engine/config"
	"github.com/sophfee/helix-engine/engine/gpu"
	"github.com/sophfee/helix-engine/engine/loader"
	"github.com/sophfee/helix-engine/engine/profiler"
)

func main() {
	configFile := flag.String("config", config.DefaultPath, "Path to a TOML config file")
	fallback := flag.String("fallback", "", "Directory searched when a URI is not found next to the document")
	workers := flag.Int("workers", 0, "Number of image decode workers (default: NumCPU-1)")
	policy := flag.String("policy", "", "Image failure policy: skip or abort (default: skip)")
	dumpDir := flag.String("dump", "", "Write every decoded image to this directory as WebP")
	upload := flag.Bool("upload", false, "Upload meshes and textures to a headless GPU device")
	view := flag.Bool("view", false, "Open a viewer window")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: helix [flags] document.gltf|document.glb\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.LoadOptional(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config file
	if err := cfg.Resolve(config.Flags{
		FallbackRoot: *fallback,
		Workers:      *workers,
		ImagePolicy:  *policy,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	l := loader.NewLoader(loader.WithConfig(cfg.Loader))
	defer l.Close()

	ctx := context.Background()
	watch := profiler.StartStopwatch()

	asset, err := l.Load(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", path, err)
		os.Exit(1)
	}
	watch.Mark("parse")

	images, err := asset.MaterializedImages(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding images: %v\n", err)
		os.Exit(1)
	}
	watch.Mark("images")

	printSummary(os.Stdout, asset, images)

	if *dumpDir != "" {
		written, err := dumpImages(*dumpDir, images)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping images: %v\n", err)
			os.Exit(1)
		}
		watch.Mark("dump")
		fmt.Printf("Dumped %d images to %s\n", written, *dumpDir)
	}

	if *upload && !*view {
		if err := uploadHeadless(ctx, cfg, asset); err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading: %v\n", err)
			os.Exit(1)
		}
		watch.Mark("upload")
	}
	watch.Log(log.Default(), path)

	if *view {
		if err := runViewer(ctx, cfg, l, asset); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// uploadHeadless stages the asset on a device with no surface and releases it again.
func uploadHeadless(ctx context.Context, cfg config.Config, asset *loader.Asset) error {
	device, err := gpu.NewDevice(gpu.DeviceOptions{
		ForceFallbackAdapter: cfg.GPU.ForceFallbackAdapter,
	})
	if err != nil {
		return err
	}
	defer device.Release()

	staged, err := gpu.StageAsset(ctx, asset, device.Uploader())
	if err != nil {
		return err
	}
	defer staged.Release()

	prims := 0
	for _, m := range staged.Meshes {
		prims += len(m.Primitives)
	}
	uploaded := 0
	for _, t := range staged.Textures {
		if t != nil {
			uploaded++
		}
	}
	fmt.Printf("Uploaded %d primitives and %d of %d textures\n", prims, uploaded, len(staged.Textures))
	return nil
}
