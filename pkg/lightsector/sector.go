package lightsector

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/scene"
)

// bakedData is one immutable generation of light sector arrays.
type bakedData struct {
	probes  []Probe
	network []ProbeSearchCell
	surfels []Surfel
	bricks  []SurfelBrick
	factors []SurfelBrickFactor
	stats   BakeStats
}

// LightSector owns the baked arrays of a scene. A bake or relight builds a
// new generation and swaps it in whole, so readers never observe a
// partially updated sector.
type LightSector struct {
	data    atomic.Pointer[bakedData]
	relight sync.Mutex // guards giBoost and serializes writers
	giBoost float64
}

// NewLightSector creates an unbaked sector with the given probe layout.
func NewLightSector(probes []Probe) *LightSector {
	ls := &LightSector{giBoost: 1}
	d := &bakedData{probes: make([]Probe, len(probes))}
	for i, p := range probes {
		d.probes[i] = Probe{ID: i, Pos: p.Pos}
	}
	ls.data.Store(d)
	return ls
}

// GIBoost returns the scale applied to the bounce light surfels pick up
// from their nearest probe during Relight.
func (ls *LightSector) GIBoost() float64 {
	ls.relight.Lock()
	defer ls.relight.Unlock()
	return ls.giBoost
}

// SetGIBoost sets the bounce light scale. It waits for a running Relight
// and applies from the next one.
func (ls *LightSector) SetGIBoost(boost float64) {
	ls.relight.Lock()
	defer ls.relight.Unlock()
	ls.giBoost = boost
}

// BakeRadianceTransfer bakes s at the sector's probe positions and swaps
// the result in. On error the previous data stays in place.
func (ls *LightSector) BakeRadianceTransfer(ctx context.Context, baker *RadianceTransferBaker, s *scene.Scene) error {
	res, err := baker.Bake(ctx, s, ls.Probes())
	if err != nil {
		return err
	}
	ls.Load(res)
	return nil
}

// Load replaces the sector's data with a finished bake. Irradiance from
// earlier relights is dropped with it.
func (ls *LightSector) Load(res *BakeResult) {
	ls.relight.Lock()
	defer ls.relight.Unlock()
	ls.data.Store(&bakedData{
		probes:  res.Probes,
		network: res.ProbeNetwork,
		surfels: res.Surfels,
		bricks:  res.SurfelBricks,
		factors: res.SurfelBrickFactors,
		stats:   res.Stats,
	})
}

// The accessors return the current generation. Callers must not modify the
// returned slices.

func (ls *LightSector) Probes() []Probe                         { return ls.data.Load().probes }
func (ls *LightSector) ProbeNetwork() []ProbeSearchCell         { return ls.data.Load().network }
func (ls *LightSector) Surfels() []Surfel                       { return ls.data.Load().surfels }
func (ls *LightSector) SurfelBricks() []SurfelBrick             { return ls.data.Load().bricks }
func (ls *LightSector) SurfelBrickFactors() []SurfelBrickFactor { return ls.data.Load().factors }

// Stats returns the statistics of the last successful bake.
func (ls *LightSector) Stats() BakeStats { return ls.data.Load().stats }

// FindProbeWeights returns the interpolation weights of point against the
// current probe network.
func (ls *LightSector) FindProbeWeights(point math3d.Vec3) ProbeSearchWeights {
	d := ls.data.Load()
	return FindProbeWeights(d.network, d.probes, point)
}

// SampleIrradiance blends the ambient cubes of the probes around point for
// a surface facing normal. It returns zero where the network has no data.
func (ls *LightSector) SampleIrradiance(point, normal math3d.Vec3) math3d.Vec3 {
	d := ls.data.Load()
	var out math3d.Vec3
	for _, w := range FindProbeWeights(d.network, d.probes, point) {
		if w.ID == InvalidID || w.Weight == 0 {
			continue
		}
		out = out.Add(d.probes[w.ID].Irradiance.Evaluate(normal).Scale(w.Weight))
	}
	return out
}

// Evaluate returns the cube's value for direction n, blending the three
// faces n points towards by the squared components of n.
func (c AmbientCube) Evaluate(n math3d.Vec3) math3d.Vec3 {
	n = n.Normalize()
	sq := n.Mul(n)
	pick := func(v float64, pos, neg math3d.Axis) math3d.Vec3 {
		if v >= 0 {
			return c[pos]
		}
		return c[neg]
	}
	return pick(n.X, math3d.PositiveX, math3d.NegativeX).Scale(sq.X).
		Add(pick(n.Y, math3d.PositiveY, math3d.NegativeY).Scale(sq.Y)).
		Add(pick(n.Z, math3d.PositiveZ, math3d.NegativeZ).Scale(sq.Z))
}

// skyTerm is the sky radiance reaching direction dir past the probe's
// occluders.
func skyTerm(s *scene.Scene, vis math3d.SHCoeffs3, dir math3d.Vec3) math3d.Vec3 {
	v := math.Max(0, math.Min(1, vis.Evaluate(dir)))
	return s.SkyColour.Evaluate(dir).Scale(v * s.SkyLuminance)
}

// Relight is the CPU reference of the per frame relighting pass. It lights
// every surfel by the sun, the visible sky and the bounce light of its
// nearest probe from the previous relight, averages surfels into bricks and
// gathers bricks into each probe's ambient cube through its brick factors.
// Sun light is not shadowed. s must hold exactly one light.
func (ls *LightSector) Relight(s *scene.Scene) error {
	sun, err := s.Sun()
	if err != nil {
		return err
	}

	ls.relight.Lock()
	defer ls.relight.Unlock()

	prev := ls.data.Load()
	next := *prev
	next.probes = append([]Probe(nil), prev.probes...)
	next.surfels = append([]Surfel(nil), prev.surfels...)
	next.bricks = append([]SurfelBrick(nil), prev.bricks...)

	toSun := sun.Direction.Normalize().Negate()
	sunLight := sun.Colour.Scale(sun.Luminance)
	for i := range next.surfels {
		sf := &next.surfels[i]
		probe := prev.probes[sf.NearestProbeID]
		light := sunLight.Scale(math.Max(0, sf.Normal.Dot(toSun))).
			Add(skyTerm(s, probe.SHSkyVisibility, sf.Normal)).
			Add(probe.Irradiance.Evaluate(sf.Normal).Scale(ls.giBoost))
		sf.Radiance = sf.Albedo.Mul(light)
	}

	for i := range next.bricks {
		b := &next.bricks[i]
		var sum math3d.Vec3
		for _, sf := range next.surfels[b.SurfelRangeStart : b.SurfelRangeStart+b.SurfelCount] {
			sum = sum.Add(sf.Radiance)
		}
		if b.SurfelCount > 0 {
			sum = sum.Div(float64(b.SurfelCount))
		}
		b.Radiance = sum
	}

	for i := range next.probes {
		p := &next.probes[i]
		var cube AmbientCube
		for _, f := range next.factors[p.BrickFactorRangeStart : p.BrickFactorRangeStart+p.BrickFactorCount] {
			for a := range cube {
				cube[a] = cube[a].Add(next.bricks[f.BrickID].Radiance.Scale(f.BrickWeights[a] / math.Pi))
			}
		}
		for a := range cube {
			cube[a] = cube[a].Add(skyTerm(s, p.SHSkyVisibility, math3d.Axis(a).Dir()))
		}
		p.Irradiance = cube
	}

	ls.data.Store(&next)
	return nil
}
