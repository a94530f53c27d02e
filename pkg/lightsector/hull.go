package lightsector

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
	"github.com/taigrr/prt/pkg/math3d"
)

const hullEpsilon = 1e-9

// hullVolume returns the volume of the convex hull of points.
func hullVolume(points []math3d.Vec3) float64 {
	if len(points) < 4 {
		return 0
	}
	cloud := make([]r3.Vector, len(points))
	for i, p := range points {
		cloud[i] = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}

	qh := new(quickhull.QuickHull)
	ch := qh.ConvexHull(cloud, true, true, hullEpsilon)

	// Sum signed tetrahedra from the centroid to every hull triangle.
	var centroid r3.Vector
	for _, v := range cloud {
		centroid = centroid.Add(v)
	}
	centroid = centroid.Mul(1 / float64(len(cloud)))

	var volume float64
	for i := 0; i+2 < len(ch.Indices); i += 3 {
		a := cloud[ch.Indices[i]].Sub(centroid)
		b := cloud[ch.Indices[i+1]].Sub(centroid)
		c := cloud[ch.Indices[i+2]].Sub(centroid)
		volume += a.Dot(b.Cross(c)) / 6
	}
	return math.Abs(volume)
}

// hullCovered reports whether the inner cells fill the convex hull.
func hullCovered(s NetworkStats) bool {
	if s.HullVolume == 0 {
		return s.CellVolume == 0
	}
	return math.Abs(s.CellVolume-s.HullVolume) <= 1e-6*s.HullVolume
}
