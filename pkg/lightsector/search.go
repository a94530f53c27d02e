package lightsector

import (
	"math"

	"github.com/taigrr/prt/pkg/math3d"
)

// searchMargin lets a point sit slightly outside a cell and still be
// accepted, so points on a shared face resolve without stepping back and
// forth.
const searchMargin = -0.01

// FindProbeWeights walks network from cell 0 towards the cell containing
// point and returns up to four interpolation weights. At most len(network)
// cells are visited. If the walk fails the result is all zero and a
// warning is logged.
//
// FindProbeWeights only reads its arguments and is safe for concurrent use.
func FindProbeWeights(network []ProbeSearchCell, probes []Probe, point math3d.Vec3) ProbeSearchWeights {
	var none ProbeSearchWeights
	for i := range none {
		none[i] = ProbeWeight{ID: InvalidID}
	}
	if len(network) == 0 {
		Logger().Warn("probe search on empty network", "point", point)
		return none
	}

	cell := 0
	for range len(network) {
		c := network[cell]
		var (
			weights ProbeSearchWeights
			next    int
			found   bool
		)
		if IsOuterCell(c) {
			weights, next, found = searchOuter(c, probes, point)
		} else {
			weights, next, found = searchInner(c, probes, point)
		}
		if found {
			return weights
		}
		if next == InvalidID {
			Logger().Warn("probe search left the network", "point", point, "cell", cell)
			return none
		}
		cell = next
	}

	Logger().Warn("probe search did not converge", "point", point, "steps", len(network))
	return none
}

// minIndex returns the index of the smallest value.
func minIndex(v []float64) int {
	best := 0
	for i := range v {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}

func searchInner(c ProbeSearchCell, probes []Probe, point math3d.Vec3) (ProbeSearchWeights, int, bool) {
	v0 := probes[c.ProbeVertices[0]].Pos
	b := c.BarycentricConverter.MulVec3Dir(point.Sub(v0))
	coords := [4]float64{1 - b.X - b.Y - b.Z, b.X, b.Y, b.Z}

	if k := minIndex(coords[:]); coords[k] < searchMargin {
		return ProbeSearchWeights{}, c.Neighbours[k], false
	}

	var w ProbeSearchWeights
	for i, id := range c.ProbeVertices {
		w[i] = ProbeWeight{ID: id, Weight: math.Max(coords[i], 0)}
	}
	return w, InvalidID, true
}

func searchOuter(c ProbeSearchCell, probes []Probe, point math3d.Vec3) (ProbeSearchWeights, int, bool) {
	var v [3]math3d.Vec3
	for i := range v {
		v[i] = probes[c.ProbeVertices[i]].Pos
	}
	n := v[1].Sub(v[0]).Cross(v[2].Sub(v[0])).Normalize()

	// Points behind the hull face belong to the inner cell, which accepts
	// anything within searchMargin of its own faces, so the walk settles
	// there instead of stepping back out.
	d := point.Sub(v[0]).Dot(n)
	if d < 0 {
		return ProbeSearchWeights{}, c.Neighbours[FaceInner], false
	}

	// Extrude the hull triangle to the plane through point.
	var e [3]math3d.Vec3
	for i := range e {
		e[i] = v[i].Add(c.BarycentricConverter.Column(i).Scale(d))
	}
	coords := triangleBarycentric(e, point)

	if k := minIndex(coords[:]); coords[k] < searchMargin {
		return ProbeSearchWeights{}, c.Neighbours[k], false
	}

	var w ProbeSearchWeights
	for i := range 3 {
		w[i] = ProbeWeight{ID: c.ProbeVertices[i], Weight: math.Max(coords[i], 0)}
	}
	w[3] = ProbeWeight{ID: InvalidID}
	return w, InvalidID, true
}

// triangleBarycentric returns the barycentric coordinates of p projected
// onto the plane of t.
func triangleBarycentric(t [3]math3d.Vec3, p math3d.Vec3) [3]float64 {
	e1, e2, ep := t[1].Sub(t[0]), t[2].Sub(t[0]), p.Sub(t[0])
	d00, d01, d11 := e1.Dot(e1), e1.Dot(e2), e2.Dot(e2)
	d20, d21 := ep.Dot(e1), ep.Dot(e2)
	denom := d00*d11 - d01*d01
	if denom == 0 {
		return [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	}
	b1 := (d11*d20 - d01*d21) / denom
	b2 := (d00*d21 - d01*d20) / denom
	return [3]float64{1 - b1 - b2, b1, b2}
}
