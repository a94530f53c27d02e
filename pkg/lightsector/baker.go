package lightsector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taigrr/prt/pkg/scene"
)

// BakeOptions tunes a radiance transfer bake.
type BakeOptions struct {
	// TileSize is the edge length in texels of one captured cube face.
	TileSize int
	// Near and Far are the capture cameras' clip planes.
	Near, Far float64
	// SurfelSize is the edge length of a surfel grid cell in world units.
	SurfelSize float64
	// SurfelsPerBrick is the number of surfel cells along a brick edge.
	SurfelsPerBrick int
	// Workers bounds parallel gathering and clustering; 0 uses GOMAXPROCS.
	Workers int
	// KeepCapture retains the probe atlas in BakeResult.Capture.
	KeepCapture bool
}

// DefaultBakeOptions returns the options scenes are tuned for.
func DefaultBakeOptions() BakeOptions {
	return BakeOptions{
		TileSize:        16,
		Near:            0.1,
		Far:             100,
		SurfelSize:      0.5,
		SurfelsPerBrick: 4,
	}
}

// Validate checks that the options describe a usable bake.
func (o BakeOptions) Validate() error {
	switch {
	case o.TileSize <= 0:
		return fmt.Errorf("tile size must be positive, got %d", o.TileSize)
	case o.Near <= 0 || o.Far <= o.Near:
		return fmt.Errorf("clip planes must satisfy 0 < near < far, got %g, %g", o.Near, o.Far)
	case o.SurfelSize <= 0:
		return fmt.Errorf("surfel size must be positive, got %g", o.SurfelSize)
	case o.SurfelsPerBrick <= 0:
		return fmt.Errorf("surfels per brick must be positive, got %d", o.SurfelsPerBrick)
	case o.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	return nil
}

// BakeStats reports the cost and size of each bake stage.
type BakeStats struct {
	Capture time.Duration
	Gather  time.Duration
	Cluster time.Duration
	Sky     time.Duration
	Network time.Duration

	SurfelSamples int
	SkySamples    int

	NetworkStats NetworkStats
	// HullCovered is false when the inner cells do not fill the probes'
	// convex hull.
	HullCovered bool
}

// Total returns the summed stage durations.
func (s BakeStats) Total() time.Duration {
	return s.Capture + s.Gather + s.Cluster + s.Sky + s.Network
}

// BakeResult holds the flat arrays a relighting pass consumes.
type BakeResult struct {
	Probes             []Probe
	ProbeNetwork       []ProbeSearchCell
	Surfels            []Surfel
	SurfelBricks       []SurfelBrick
	SurfelBrickFactors []SurfelBrickFactor

	// Capture is only set when BakeOptions.KeepCapture is.
	Capture *Capture
	Stats   BakeStats
}

// RadianceTransferBaker runs the bake pipeline: capture, gather, cluster,
// sky projection and probe network. A baker runs one bake at a time.
type RadianceTransferBaker struct {
	backend CaptureBackend
	opts    BakeOptions
	mu      sync.Mutex
}

// NewRadianceTransferBaker creates a baker rendering through backend.
func NewRadianceTransferBaker(backend CaptureBackend, opts BakeOptions) (*RadianceTransferBaker, error) {
	if backend == nil {
		return nil, fmt.Errorf("lightsector: nil capture backend")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("lightsector: %w", err)
	}
	return &RadianceTransferBaker{backend: backend, opts: opts}, nil
}

// Options returns the baker's options.
func (b *RadianceTransferBaker) Options() BakeOptions {
	return b.opts
}

// Bake computes radiance transfer data for s at the given probe positions.
// probes is not modified; the returned probes are renumbered by index with
// their bake outputs filled in. ctx is checked between stages.
func (b *RadianceTransferBaker) Bake(ctx context.Context, s *scene.Scene, probes []Probe) (*BakeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s == nil {
		return nil, fmt.Errorf("lightsector: nil scene")
	}
	if len(probes) == 0 {
		return nil, ErrNoProbes
	}
	baked := make([]Probe, len(probes))
	for i, p := range probes {
		baked[i] = Probe{ID: i, Pos: p.Pos}
	}

	log := Logger()
	res := &BakeResult{Probes: baked}
	stage := func(name string, d *time.Duration, run func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := run()
		*d = time.Since(start)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Debug("bake stage done", "stage", name, "duration", *d)
		return nil
	}

	var (
		capture *Capture
		surfels []surfelSample
		sky     []skySample
	)
	st := &res.Stats
	err := stage("capture", &st.Capture, func() (err error) {
		capture, err = captureEnvironment(b.backend, s, baked, b.opts.TileSize, b.opts.Near, b.opts.Far)
		return err
	})
	if err == nil {
		err = stage("gather", &st.Gather, func() (err error) {
			surfels, sky, err = gatherSamples(ctx, capture, baked, b.opts.Workers)
			st.SurfelSamples, st.SkySamples = len(surfels), len(sky)
			return err
		})
	}
	if err == nil {
		err = stage("cluster", &st.Cluster, func() error {
			c := clusterer{
				surfelSize:      b.opts.SurfelSize,
				surfelsPerBrick: b.opts.SurfelsPerBrick,
				tile:            b.opts.TileSize,
				workers:         b.opts.Workers,
			}
			out, err := c.cluster(ctx, surfels, baked)
			if err != nil {
				return err
			}
			res.Surfels, res.SurfelBricks, res.SurfelBrickFactors = out.Surfels, out.Bricks, out.Factors
			return nil
		})
	}
	if err == nil {
		err = stage("sky", &st.Sky, func() error {
			bakeSkyCoefficients(sky, baked)
			return nil
		})
	}
	if err == nil {
		err = stage("network", &st.Network, func() (err error) {
			res.ProbeNetwork, st.NetworkStats, err = buildNetwork(baked)
			return err
		})
	}
	if err != nil {
		return nil, fmt.Errorf("lightsector: bake: %w", err)
	}

	st.HullCovered = hullCovered(st.NetworkStats)
	if !st.HullCovered {
		log.Warn("probe network does not cover the probe hull",
			"cell_volume", st.NetworkStats.CellVolume, "hull_volume", st.NetworkStats.HullVolume)
	}
	if b.opts.KeepCapture {
		res.Capture = capture
	}

	log.Info("radiance transfer baked",
		"probes", len(res.Probes),
		"surfels", len(res.Surfels),
		"bricks", len(res.SurfelBricks),
		"brick_factors", len(res.SurfelBrickFactors),
		"cells", len(res.ProbeNetwork),
		"duration", st.Total())
	return res, nil
}
