package render

import (
	"github.com/taigrr/prt/pkg/math3d"
)

// Plane is the set of points where Normal·p + D = 0.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// Normalize scales the plane so the normal has unit length.
func (p *Plane) Normalize() {
	l := p.Normal.Len()
	if l == 0 {
		return
	}
	p.Normal = p.Normal.Scale(1.0 / l)
	p.D /= l
}

// DistanceToPoint is positive on the side the normal points to.
func (p Plane) DistanceToPoint(point math3d.Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum holds the six clip planes of a capture face or preview camera,
// normals pointing inward, in the order left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// NewFrustumFromMatrix extracts frustum planes from a clip matrix using the
// Gribb/Hartmann method. For a model-view-projection matrix the planes live
// in the model's local space.
func NewFrustumFromMatrix(m math3d.Mat4) Frustum {
	var f Frustum

	// Row i of the column-major matrix is m[i], m[i+4], m[i+8], m[i+12].
	row := func(i int) (math3d.Vec3, float64) {
		return math3d.V3(m[i], m[i+4], m[i+8]), m[i+12]
	}
	n3, d3 := row(3)
	for axis := range 3 {
		n, d := row(axis)
		f.Planes[axis*2] = Plane{Normal: n3.Add(n), D: d3 + d}
		f.Planes[axis*2+1] = Plane{Normal: n3.Sub(n), D: d3 - d}
	}

	for i := range f.Planes {
		f.Planes[i].Normalize()
	}
	return f
}

// AABB is a model bounding box.
type AABB struct {
	Min math3d.Vec3
	Max math3d.Vec3
}

// NewAABB creates an AABB from its corners.
func NewAABB(min, max math3d.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// IntersectAABB reports whether any part of box may be visible. Boxes that
// straddle a plane corner outside the frustum still count as visible.
func (f Frustum) IntersectAABB(box AABB) bool {
	pick := func(positive bool, hi, lo float64) float64 {
		if positive {
			return hi
		}
		return lo
	}
	for _, plane := range f.Planes {
		// The corner furthest along the normal; if it is behind the plane
		// the whole box is.
		far := math3d.V3(
			pick(plane.Normal.X >= 0, box.Max.X, box.Min.X),
			pick(plane.Normal.Y >= 0, box.Max.Y, box.Min.Y),
			pick(plane.Normal.Z >= 0, box.Max.Z, box.Min.Z),
		)
		if plane.DistanceToPoint(far) < 0 {
			return false
		}
	}
	return true
}
