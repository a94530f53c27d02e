// Package lightsector bakes precomputed radiance transfer data for a static
// scene and answers probe interpolation queries against the result.
//
// A bake renders a cube map around every probe, reduces the captured texels
// to surfels and bricks weighted per probe face, projects sky visibility into
// second-order spherical harmonics and tetrahedralizes the probe positions
// into a search network. The flat arrays it produces are what a relighting
// pass consumes every frame.
package lightsector

import (
	"errors"

	"github.com/taigrr/prt/pkg/math3d"
)

var (
	// ErrNoProbes is returned when a bake is requested without probes.
	ErrNoProbes = errors.New("lightsector: no probes")
	// ErrCapture wraps any failure reported by the capture backend.
	ErrCapture = errors.New("lightsector: environment capture failed")
	// ErrDegenerateTriangulation is returned when the Delaunay
	// tetrahedralization cannot place a probe or would link one face to more
	// than two tetrahedra, or when the probes span no volume.
	ErrDegenerateTriangulation = errors.New("lightsector: degenerate probe triangulation")
	// ErrUnmatchedVertex is returned when a tetrahedron vertex matches no probe.
	ErrUnmatchedVertex = errors.New("lightsector: tetrahedron vertex matches no probe")
	// ErrDegenerateCell is returned when an inner cell has no volume.
	ErrDegenerateCell = errors.New("lightsector: degenerate probe cell")
	// ErrMalformedHull is returned when a hull normal faces away from one of
	// the outer faces it was built from.
	ErrMalformedHull = errors.New("lightsector: malformed probe hull")
)

// InvalidID marks an unused probe or cell slot.
const InvalidID = -1

// AmbientCube holds one radiance value per cube face direction, indexed by
// math3d.Axis.
type AmbientCube [math3d.AxisCount]math3d.Vec3

// Probe is a point where indirect lighting is sampled.
type Probe struct {
	ID  int
	Pos math3d.Vec3

	// Irradiance is written by Relight.
	Irradiance AmbientCube

	SHSkyVisibility       math3d.SHCoeffs3
	BrickFactorRangeStart int
	BrickFactorCount      int
}

// Surfel is an averaged oriented surface sample.
type Surfel struct {
	Pos            math3d.Vec3
	Normal         math3d.Vec3
	Albedo         math3d.Vec3
	NearestProbeID int

	// Radiance is written by Relight.
	Radiance math3d.Vec3
}

// SurfelBrick is a contiguous run of nearby surfels sharing a dominant axis.
type SurfelBrick struct {
	SurfelRangeStart int
	SurfelCount      int

	Radiance math3d.Vec3
}

// SurfelBrickFactor weights one brick's contribution to each cube face of
// the probe whose range it belongs to.
type SurfelBrickFactor struct {
	BrickID      int
	BrickWeights [math3d.AxisCount]float64
}

// Inner cell face slots. Each face is named by the vertices it keeps; the
// slot index is the vertex it drops.
const (
	Face123 = iota
	Face023
	Face013
	Face012
)

// Outer cell neighbour slots. Edges are named by the vertices they join.
const (
	Edge12 = iota
	Edge02
	Edge01
	FaceInner
)

// ProbeSearchCell is a node of the probe network: either a Delaunay
// tetrahedron (inner cell) or a hull triangle extruded outward (outer cell,
// ProbeVertices[3] == InvalidID).
//
// For inner cells BarycentricConverter maps point - v0 to the barycentric
// coordinates of v1..v3. For outer cells its first three columns hold the
// scaled hull normals of v0..v2.
type ProbeSearchCell struct {
	ProbeVertices        [4]int
	Neighbours           [4]int
	BarycentricConverter math3d.Mat4
}

// IsOuterCell reports whether c is a hull cell.
func IsOuterCell(c ProbeSearchCell) bool {
	return c.ProbeVertices[3] == InvalidID
}

// ProbeWeight is one probe's share of an interpolated value.
type ProbeWeight struct {
	ID     int
	Weight float64
}

// ProbeSearchWeights is the result of FindProbeWeights. Unused slots hold
// {InvalidID, 0}; a result with every weight zero means no probe data.
type ProbeSearchWeights [4]ProbeWeight

// Total returns the sum of the weights.
func (w ProbeSearchWeights) Total() float64 {
	var sum float64
	for _, p := range w {
		sum += p.Weight
	}
	return sum
}

// Tetrahedron is a simplex used while triangulating.
type Tetrahedron struct {
	Vertices [4]math3d.Vec3
}

// Sphere is a circumsphere of a tetrahedron.
type Sphere struct {
	Center math3d.Vec3
	Radius float64
}

// Contains reports whether p lies inside the sphere shrunk by eps.
func (s Sphere) Contains(p math3d.Vec3, eps float64) bool {
	return s.Center.Distance(p) <= s.Radius-eps
}
