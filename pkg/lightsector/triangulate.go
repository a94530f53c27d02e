package lightsector

import (
	"fmt"
	"math"
	"slices"

	"github.com/taigrr/prt/pkg/math3d"
	"gonum.org/v1/gonum/mat"
)

const (
	// boundsMargin is the least padding around the probe AABB that the
	// bounding tetrahedra enclose.
	boundsMargin = 5.0
	// boundsScale pads the AABB by this multiple of its largest extent.
	// Closer bounding corners carve slivers out of the probe hull.
	boundsScale = 1e4
	// circumsphereEpsilon shrinks circumspheres of probe-only tetrahedra
	// before the containment test. Smaller or larger values break
	// near-coplanar layouts.
	circumsphereEpsilon = 1e-3
	// boundsEpsilon shrinks circumspheres of tetrahedra with two or more
	// bounding corners, relative to their radius.
	boundsEpsilon = 1e-9
	// planeEpsilon, relative to the largest probe extent, is the distance
	// within which a point counts as lying on a plane.
	planeEpsilon = 1e-9
)

// circumsphere returns the sphere through the four vertices of t. ok is
// false when the vertices are coplanar.
func circumsphere(t Tetrahedron) (Sphere, bool) {
	v0 := t.Vertices[0]
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for i := 1; i < 4; i++ {
		d := t.Vertices[i].Sub(v0)
		a.SetRow(i-1, []float64{2 * d.X, 2 * d.Y, 2 * d.Z})
		b.SetVec(i-1, d.LenSq())
	}

	// Solve for the centre relative to v0.
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Sphere{}, false
	}
	c := math3d.V3(x.AtVec(0), x.AtVec(1), x.AtVec(2))
	return Sphere{Center: v0.Add(c), Radius: c.Len()}, true
}

// boxCorners returns the corners of [lo, hi]. Bit 0 of the index selects
// hi.X, bit 1 hi.Y and bit 2 hi.Z.
func boxCorners(lo, hi math3d.Vec3) []math3d.Vec3 {
	corners := make([]math3d.Vec3, 8)
	for i := range corners {
		c := lo
		if i&1 != 0 {
			c.X = hi.X
		}
		if i&2 != 0 {
			c.Y = hi.Y
		}
		if i&4 != 0 {
			c.Z = hi.Z
		}
		corners[i] = c
	}
	return corners
}

// boxTetrahedra splits a box into five tetrahedra over boxCorners indices:
// four cut off at corners 0, 3, 5 and 6 and one in the middle.
var boxTetrahedra = [5][4]int{
	{1, 2, 4, 0},
	{2, 1, 3, 7},
	{2, 4, 6, 7},
	{4, 1, 5, 7},
	{2, 1, 4, 7},
}

// faceKey is a sorted vertex id triple.
type faceKey [3]int

func keyOf(f [3]int) faceKey {
	k := faceKey(f)
	slices.Sort(k[:])
	return k
}

// oppositeFace returns the face of v opposite vertex k.
func oppositeFace(v [4]int, k int) [3]int {
	var f [3]int
	n := 0
	for i, id := range v {
		if i != k {
			f[n] = id
			n++
		}
	}
	return f
}

type meshTet struct {
	v      [4]int
	sphere Sphere
	ok     bool
	bound  int // vertices that are bounding corners
	alive  bool
}

// delaunayMesh is a tetrahedralization grown by Bowyer-Watson insertion.
// Vertex ids index points; ids from firstBound on are bounding corners.
// faces maps every face to the one or two live tetrahedra sharing it.
type delaunayMesh struct {
	points     []math3d.Vec3
	firstBound int
	tets       []meshTet
	faces      map[faceKey][2]int
	tol        float64
}

func newDelaunayMesh(points []math3d.Vec3, firstBound int, tol float64) *delaunayMesh {
	return &delaunayMesh{
		points:     points,
		firstBound: firstBound,
		faces:      make(map[faceKey][2]int),
		tol:        tol,
	}
}

// add links a new tetrahedron into the mesh. A face already shared by two
// live tetrahedra cannot take a third.
func (m *delaunayMesh) add(v [4]int) error {
	ti := len(m.tets)
	t := meshTet{v: v, alive: true}
	var tet Tetrahedron
	for i, id := range v {
		tet.Vertices[i] = m.points[id]
		if id >= m.firstBound {
			t.bound++
		}
	}
	t.sphere, t.ok = circumsphere(tet)

	var keys [4]faceKey
	var slots [4][2]int
	for k := range 4 {
		keys[k] = keyOf(oppositeFace(v, k))
		s, ok := m.faces[keys[k]]
		if !ok {
			s = [2]int{InvalidID, InvalidID}
		}
		switch {
		case s[0] == InvalidID:
			s[0] = ti
		case s[1] == InvalidID:
			s[1] = ti
		default:
			return fmt.Errorf("%w: face %v shared by more than two tetrahedra", ErrDegenerateTriangulation, keys[k])
		}
		slots[k] = s
	}
	for k := range 4 {
		m.faces[keys[k]] = slots[k]
	}
	m.tets = append(m.tets, t)
	return nil
}

func (m *delaunayMesh) remove(ti int) {
	m.tets[ti].alive = false
	for k := range 4 {
		key := keyOf(oppositeFace(m.tets[ti].v, k))
		slots := m.faces[key]
		for i := range slots {
			if slots[i] == ti {
				slots[i] = InvalidID
			}
		}
		if slots == [2]int{InvalidID, InvalidID} {
			delete(m.faces, key)
		} else {
			m.faces[key] = slots
		}
	}
}

// neighbour returns the tetrahedron across face k of tetrahedron ti, or
// InvalidID on the bounding box.
func (m *delaunayMesh) neighbour(ti, k int) int {
	slots := m.faces[keyOf(oppositeFace(m.tets[ti].v, k))]
	switch ti {
	case slots[0]:
		return slots[1]
	case slots[1]:
		return slots[0]
	}
	return InvalidID
}

// planeDist is the signed distance from p to the plane through f.
func (m *delaunayMesh) planeDist(p math3d.Vec3, f [3]int) float64 {
	a := m.points[f[0]]
	n := m.points[f[1]].Sub(a).Cross(m.points[f[2]].Sub(a))
	l := n.Len()
	if l == 0 {
		return 0
	}
	return p.Sub(a).Dot(n) / l
}

// sees reports whether p lies strictly on the same side of face f as the
// vertex opp.
func (m *delaunayMesh) sees(p math3d.Vec3, f [3]int, opp int) bool {
	return m.planeDist(p, f)*math.Copysign(1, m.planeDist(m.points[opp], f)) > m.tol
}

// barycentric returns coordinate k of p in t.
func (m *delaunayMesh) barycentric(t meshTet, k int, p math3d.Vec3) float64 {
	f := oppositeFace(t.v, k)
	return m.planeDist(p, f) / m.planeDist(m.points[t.v[k]], f)
}

// conflicts reports whether inserting p invalidates t.
func (m *delaunayMesh) conflicts(t meshTet, p math3d.Vec3) bool {
	switch {
	case t.bound == 0:
		return t.ok && t.sphere.Contains(p, circumsphereEpsilon)
	case t.bound == 1:
		// The circumsphere of a hull face and a far corner tends to the
		// half-space beyond the face.
		for k, id := range t.v {
			if id >= m.firstBound {
				return m.sees(p, oppositeFace(t.v, k), id)
			}
		}
	}
	return t.ok && t.sphere.Contains(p, boundsEpsilon*t.sphere.Radius)
}

// insert adds point pi. The cavity starts at the tetrahedron containing the
// point, spreads to face neighbours whose circumsphere holds it and then
// grows until the point sees every cavity face from inside, so the
// tetrahedra fanned from it never overlap or flatten.
func (m *delaunayMesh) insert(pi int) error {
	p := m.points[pi]

	start, best := InvalidID, math.Inf(-1)
	for ti, t := range m.tets {
		if !t.alive {
			continue
		}
		c := math.Inf(1)
		for k := range 4 {
			c = min(c, m.barycentric(t, k, p))
		}
		if c > best {
			start, best = ti, c
		}
	}
	if start == InvalidID {
		return fmt.Errorf("%w: probe %d at %v lies in no tetrahedron", ErrDegenerateTriangulation, pi, p)
	}

	cavity := []int{start}
	inCavity := map[int]bool{start: true}
	for i := 0; i < len(cavity); i++ {
		for k := range 4 {
			n := m.neighbour(cavity[i], k)
			if n != InvalidID && !inCavity[n] && m.conflicts(m.tets[n], p) {
				inCavity[n] = true
				cavity = append(cavity, n)
			}
		}
	}

	var boundary [][3]int
	for grown := true; grown; {
		grown = false
		boundary = boundary[:0]
		for i := 0; i < len(cavity); i++ {
			ti := cavity[i]
			for k := range 4 {
				n := m.neighbour(ti, k)
				if n != InvalidID && inCavity[n] {
					continue
				}
				f := oppositeFace(m.tets[ti].v, k)
				if m.sees(p, f, m.tets[ti].v[k]) {
					boundary = append(boundary, f)
					continue
				}
				if n == InvalidID {
					return fmt.Errorf("%w: probe %d at %v lies on the bounding box", ErrDegenerateTriangulation, pi, p)
				}
				inCavity[n] = true
				cavity = append(cavity, n)
				grown = true
			}
		}
	}

	kept := make(map[int]bool)
	for _, f := range boundary {
		for _, id := range f {
			kept[id] = true
		}
	}
	for _, ti := range cavity {
		for _, id := range m.tets[ti].v {
			if !kept[id] {
				return fmt.Errorf("%w: probe %d at %v would drop vertex %d", ErrDegenerateTriangulation, pi, p, id)
			}
		}
	}

	for _, ti := range cavity {
		m.remove(ti)
	}
	for _, f := range boundary {
		if err := m.add([4]int{pi, f[0], f[1], f[2]}); err != nil {
			return fmt.Errorf("probe %d at %v: %w", pi, p, err)
		}
	}
	return nil
}

// tetrahedra returns the live tetrahedra that touch no bounding corner.
func (m *delaunayMesh) tetrahedra() []Tetrahedron {
	var out []Tetrahedron
	for _, t := range m.tets {
		if !t.alive || t.bound > 0 {
			continue
		}
		var tet Tetrahedron
		for i, id := range t.v {
			tet.Vertices[i] = m.points[id]
		}
		out = append(out, tet)
	}
	return out
}

// triangulate computes the Delaunay tetrahedralization of points with the
// Bowyer-Watson algorithm.
func triangulate(points []math3d.Vec3) ([]Tetrahedron, error) {
	if len(points) == 0 {
		return nil, nil
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo, hi = lo.Min(p), hi.Max(p)
	}
	extent := hi.Sub(lo)
	size := max(extent.X, extent.Y, extent.Z)
	margin := math3d.Splat3(max(boundsMargin, boundsScale*size))

	all := make([]math3d.Vec3, 0, len(points)+8)
	all = append(all, points...)
	all = append(all, boxCorners(lo.Sub(margin), hi.Add(margin))...)
	m := newDelaunayMesh(all, len(points), planeEpsilon*size)
	for _, corners := range boxTetrahedra {
		var v [4]int
		for i, c := range corners {
			v[i] = len(points) + c
		}
		if err := m.add(v); err != nil {
			return nil, err
		}
	}

	seen := make(map[math3d.Vec3]int, len(points))
	for pi, p := range points {
		if j, ok := seen[p]; ok {
			return nil, fmt.Errorf("%w: probes %d and %d coincide at %v", ErrDegenerateTriangulation, j, pi, p)
		}
		seen[p] = pi
		if err := m.insert(pi); err != nil {
			return nil, err
		}
	}
	return m.tetrahedra(), nil
}
