package lightsector

import (
	"math/rand/v2"

	"github.com/taigrr/prt/pkg/math3d"
)

func probesAt(points []math3d.Vec3) []Probe {
	probes := make([]Probe, len(points))
	for i, p := range points {
		probes[i] = Probe{ID: i, Pos: p}
	}
	return probes
}

// TestProbe returns a single probe above the origin.
func TestProbe() []Probe {
	return probesAt([]math3d.Vec3{math3d.V3(0, 3, 0)})
}

// CrytekSponzaProbes returns the layout tuned for the Crytek Sponza atrium:
// two rows along each colonnade and a raised row under the upper arches.
func CrytekSponzaProbes() []Probe {
	var points []math3d.Vec3
	for x := range 16 {
		for y := range 2 {
			for z := range 2 {
				points = append(points, math3d.V3(-15+1.9*float64(x), 5*float64(y)+2, 10*float64(z)-5))
			}
		}
	}
	for x := range 16 {
		for y := range 2 {
			for z := range 2 {
				points = append(points, math3d.V3(-15+1.9*float64(x), 5*float64(y)+2, 2.4*float64(z)-1.2))
			}
		}
	}
	for x := range 12 {
		for y := range 3 {
			for z := range 2 {
				points = append(points, math3d.V3(-10+1.727*float64(x), 2*float64(y)+10, 2.4*float64(z)-1.2))
			}
		}
	}
	return probesAt(points)
}

// OldSponzaProbes returns the layout for the older Sponza model.
func OldSponzaProbes() []Probe {
	var points []math3d.Vec3
	for x := range 8 {
		for y := range 2 {
			for z := range 3 {
				points = append(points, math3d.V3(-14+4*float64(x), 5*float64(y)+2, 5*float64(z)-5))
			}
		}
	}
	for x := range 6 {
		for y := range 2 {
			points = append(points, math3d.V3(-10+4*float64(x), 3*float64(y)+11, 0))
		}
	}
	return probesAt(points)
}

// RandomProbes scatters n probes uniformly in [-scale, scale]³. The layout
// depends only on seed.
func RandomProbes(n int, scale float64, seed uint64) []Probe {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]math3d.Vec3, n)
	coord := func() float64 { return (rng.Float64()*2 - 1) * scale }
	for i := range points {
		points[i] = math3d.V3(coord(), coord(), coord())
	}
	return probesAt(points)
}

// GridProbes places counts[0]×counts[1]×counts[2] probes evenly from lo to
// hi inclusive. An axis with a count of 1 sits at lo.
func GridProbes(lo, hi math3d.Vec3, counts [3]int) []Probe {
	step := func(axis int) float64 {
		if counts[axis] <= 1 {
			return 0
		}
		return (hi.Component(axis) - lo.Component(axis)) / float64(counts[axis]-1)
	}
	sx, sy, sz := step(0), step(1), step(2)

	var points []math3d.Vec3
	for x := range counts[0] {
		for y := range counts[1] {
			for z := range counts[2] {
				points = append(points, math3d.V3(
					lo.X+sx*float64(x),
					lo.Y+sy*float64(y),
					lo.Z+sz*float64(z),
				))
			}
		}
	}
	return probesAt(points)
}

// JitterProbes returns a copy of probes moved by up to amount along each
// axis. Regular grids put many probes on one circumsphere, which makes the
// tetrahedralization ambiguous; a small jitter breaks those ties.
func JitterProbes(probes []Probe, amount float64, seed uint64) []Probe {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]math3d.Vec3, len(probes))
	offset := func() float64 { return (rng.Float64()*2 - 1) * amount }
	for i, p := range probes {
		points[i] = p.Pos.Add(math3d.V3(offset(), offset(), offset()))
	}
	return probesAt(points)
}
