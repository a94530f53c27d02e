// prtbake - light probe radiance transfer baker
// Bakes probe networks, surfels and brick factors for a scene described by a
// JSON config, reports bake statistics, queries probe weights and previews
// the relit scene in the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/taigrr/prt/pkg/config"
	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/render"
	"github.com/taigrr/prt/pkg/scene"
)

var version = "dev"

// options are the flags shared by every command.
type options struct {
	configPath string
	verbose    bool
	tileSize   int
	near, far  float64
	workers    int
	bounces    int
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:   "prtbake",
		Short: "Bake light probe radiance transfer data",
		Long: `prtbake captures the environment around each light probe of a scene,
clusters what the probes see into surfels and bricks, projects sky
visibility onto spherical harmonics and links the probes into a
tetrahedral search network.

Without --config a lit grey room with a single crate is baked.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(opts.verbose)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "bake config (JSON)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log bake stage timings")
	flags.IntVar(&opts.tileSize, "tile", 0, "override the cube face tile size")
	flags.Float64Var(&opts.near, "near", 0, "override the capture near plane")
	flags.Float64Var(&opts.far, "far", 0, "override the capture far plane")
	flags.IntVar(&opts.workers, "workers", 0, "override the bake worker count")
	flags.IntVar(&opts.bounces, "bounces", 2, "relight passes after baking")

	root.AddCommand(
		newBakeCmd(&opts),
		newQueryCmd(&opts),
		newViewCmd(&opts),
	)

	if err := fang.Execute(context.Background(), root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	lightsector.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads the config file, or the built-in room, and applies the
// command line overrides.
func (o *options) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if o.tileSize > 0 {
		cfg.Bake.TileSize = o.tileSize
	}
	if o.near > 0 {
		cfg.Bake.Near = o.near
	}
	if o.far > 0 {
		cfg.Bake.Far = o.far
	}
	if o.workers > 0 {
		cfg.Bake.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// baked is a light sector together with the scene and bake it came from.
type baked struct {
	cfg    *config.Config
	scene  *scene.Scene
	sector *lightsector.LightSector
	result *lightsector.BakeResult
}

// bakeSector loads the config, bakes it and runs the requested relight
// passes.
func (o *options) bakeSector(ctx context.Context, keepCapture bool) (*baked, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := cfg.Scene()
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}
	probes, err := cfg.ProbeLayout()
	if err != nil {
		return nil, fmt.Errorf("probe layout: %w", err)
	}

	bakeOpts := cfg.BakeOptions()
	bakeOpts.KeepCapture = keepCapture
	baker, err := lightsector.NewRadianceTransferBaker(render.NewSoftwareBackend(), bakeOpts)
	if err != nil {
		return nil, err
	}
	res, err := baker.Bake(ctx, s, probes)
	if err != nil {
		return nil, err
	}

	sector := lightsector.NewLightSector(probes)
	sector.SetGIBoost(cfg.GIBoost)
	sector.Load(res)
	for range o.bounces {
		if err := sector.Relight(s); err != nil {
			return nil, fmt.Errorf("relight: %w", err)
		}
	}
	return &baked{cfg: cfg, scene: s, sector: sector, result: res}, nil
}
