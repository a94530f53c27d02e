package render

import (
	"image"
	"math"

	"github.com/taigrr/prt/pkg/math3d"
)

// maxVaryings is the number of per-vertex scalars interpolated across a
// triangle: a normal and a UV for captures, a colour for previews.
const maxVaryings = 5

type varyings [maxVaryings]float64

// clipVertex is a vertex in homogeneous clip space.
type clipVertex struct {
	pos math3d.Vec4
	v   varyings
}

func lerpClipVertex(a, b clipVertex, t float64) clipVertex {
	out := clipVertex{pos: a.pos.Lerp(b.pos, t)}
	for i := range out.v {
		out.v[i] = a.v[i] + (b.v[i]-a.v[i])*t
	}
	return out
}

// nearDistance is the signed distance to the OpenGL near plane z = -w.
func nearDistance(p math3d.Vec4) float64 {
	return p.Z + p.W
}

// clipNear clips a triangle against the near plane (Sutherland-Hodgman) and
// returns the resulting convex polygon of 0, 3 or 4 vertices.
func clipNear(tri [3]clipVertex, out *[4]clipVertex) int {
	n := 0
	for i := range 3 {
		a, b := tri[i], tri[(i+1)%3]
		da, db := nearDistance(a.pos), nearDistance(b.pos)
		if da >= 0 {
			out[n] = a
			n++
		}
		if (da >= 0) != (db >= 0) {
			// Interpolate from the vertex in front so both triangles on a
			// shared edge produce the same point.
			if da >= 0 {
				out[n] = lerpClipVertex(a, b, da/(da-db))
			} else {
				out[n] = lerpClipVertex(b, a, db/(db-da))
			}
			n++
		}
	}
	return n
}

// viewport maps NDC onto a pixel rectangle. With flipY unset, NDC y = -1 maps
// to the lowest row index, matching GPU texture readback order.
type viewport struct {
	rect  image.Rectangle
	flipY bool
}

type screenVertex struct {
	x, y  float64 // pixel coordinates
	z     float64 // depth in [0, 1]
	invW  float64
	v     varyings
	ndcXY math3d.Vec2
}

func (vp viewport) project(cv clipVertex) screenVertex {
	invW := 1 / cv.pos.W
	ndc := math3d.V3(cv.pos.X*invW, cv.pos.Y*invW, cv.pos.Z*invW)
	sy := (ndc.Y + 1) * 0.5
	if vp.flipY {
		sy = 1 - sy
	}
	return screenVertex{
		x:     float64(vp.rect.Min.X) + (ndc.X+1)*0.5*float64(vp.rect.Dx()),
		y:     float64(vp.rect.Min.Y) + sy*float64(vp.rect.Dy()),
		z:     (ndc.Z + 1) * 0.5,
		invW:  invW,
		v:     cv.v,
		ndcXY: math3d.V2(ndc.X, ndc.Y),
	}
}

// fragmentFunc receives every covered pixel with its depth and perspective
// correct varyings. Depth testing is the caller's job.
type fragmentFunc func(x, y int, depth float64, v *varyings)

// rasterizeTriangle clips, projects and scan converts one triangle.
// Counter-clockwise triangles in NDC are front facing.
func rasterizeTriangle(vp viewport, tri [3]clipVertex, cullBack bool, frag fragmentFunc) {
	var poly [4]clipVertex
	n := clipNear(tri, &poly)
	if n < 3 {
		return
	}

	var sv [4]screenVertex
	for i := range n {
		sv[i] = vp.project(poly[i])
	}

	if cullBack {
		a := sv[1].ndcXY.Sub(sv[0].ndcXY)
		b := sv[2].ndcXY.Sub(sv[0].ndcXY)
		if a.X*b.Y-a.Y*b.X <= 0 {
			return
		}
	}

	for i := 1; i+1 < n; i++ {
		scanTriangle(vp.rect, sv[0], sv[i], sv[i+1], frag)
	}
}

// edgeCoeffs returns A, B, C for the edge function A*x + B*y + C, which is
// positive to the left of the edge from (x0, y0) to (x1, y1). Reversing the
// edge negates all three exactly.
func edgeCoeffs(x0, y0, x1, y1 float64) (A, B, C float64) {
	A = y0 - y1
	B = x1 - x0
	C = x0*y1 - x1*y0
	return
}

// topLeft reports whether pixel centres lying exactly on the edge belong to
// the triangle. Of two triangles sharing an edge exactly one owns it.
func topLeft(A, B float64) bool {
	return A > 0 || (A == 0 && B > 0)
}

func covers(w float64, owned bool) bool {
	return w > 0 || (w == 0 && owned)
}

// scanTriangle walks the pixels of a screen space triangle inside clip. The
// edge functions are evaluated afresh at every pixel centre so triangles
// sharing an edge cover each pixel along it exactly once.
func scanTriangle(clip image.Rectangle, s0, s1, s2 screenVertex, frag fragmentFunc) {
	area2 := (s1.x-s0.x)*(s2.y-s0.y) - (s1.y-s0.y)*(s2.x-s0.x)
	if area2 == 0 || math.IsNaN(area2) {
		return
	}
	if area2 < 0 {
		s1, s2 = s2, s1
		area2 = -area2
	}
	invArea := 1 / area2

	minX := max(clip.Min.X, int(math.Floor(min(s0.x, s1.x, s2.x))))
	maxX := min(clip.Max.X-1, int(math.Ceil(max(s0.x, s1.x, s2.x))))
	minY := max(clip.Min.Y, int(math.Floor(min(s0.y, s1.y, s2.y))))
	maxY := min(clip.Max.Y-1, int(math.Ceil(max(s0.y, s1.y, s2.y))))
	if minX > maxX || minY > maxY {
		return
	}

	// Edge i is opposite vertex i.
	A0, B0, C0 := edgeCoeffs(s1.x, s1.y, s2.x, s2.y)
	A1, B1, C1 := edgeCoeffs(s2.x, s2.y, s0.x, s0.y)
	A2, B2, C2 := edgeCoeffs(s0.x, s0.y, s1.x, s1.y)
	own0, own1, own2 := topLeft(A0, B0), topLeft(A1, B1), topLeft(A2, B2)

	var v varyings
	for y := minY; y <= maxY; y++ {
		cy := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			cx := float64(x) + 0.5
			w0 := A0*cx + B0*cy + C0
			w1 := A1*cx + B1*cy + C1
			w2 := A2*cx + B2*cy + C2
			if !covers(w0, own0) || !covers(w1, own1) || !covers(w2, own2) {
				continue
			}

			b0, b1, b2 := w0*invArea, w1*invArea, w2*invArea
			z := b0*s0.z + b1*s1.z + b2*s2.z

			// Perspective correct weights for the varyings.
			p0, p1, p2 := b0*s0.invW, b1*s1.invW, b2*s2.invW
			norm := 1 / (p0 + p1 + p2)
			p0, p1, p2 = p0*norm, p1*norm, p2*norm
			for i := range v {
				v[i] = p0*s0.v[i] + p1*s1.v[i] + p2*s2.v[i]
			}
			frag(x, y, z, &v)
		}
	}
}
