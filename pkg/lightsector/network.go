package lightsector

import (
	"fmt"
	"math"
	"slices"

	"github.com/taigrr/prt/pkg/math3d"
	"gonum.org/v1/gonum/mat"
)

// NetworkStats describes a baked probe network.
type NetworkStats struct {
	Tetrahedra int
	InnerCells int
	OuterCells int
	HullProbes int
	// CellVolume is the summed volume of the inner cells and HullVolume the
	// volume of the probes' convex hull. They differ when the
	// triangulation leaves part of the hull uncovered.
	CellVolume float64
	HullVolume float64
}

// faceVertices returns the three vertex ids of inner cell face f, the face
// that drops vertex f.
func faceVertices(c ProbeSearchCell, f int) [3]int {
	var out [3]int
	n := 0
	for i, id := range c.ProbeVertices {
		if i != f {
			out[n] = id
			n++
		}
	}
	return out
}

// edgeVertices returns the two vertex ids joined by outer cell edge e, the
// edge that drops vertex e.
func edgeVertices(c ProbeSearchCell, e int) [2]int {
	var out [2]int
	n := 0
	for i := range 3 {
		if i != e {
			out[n] = c.ProbeVertices[i]
			n++
		}
	}
	if out[0] > out[1] {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

func newCell(vertices [4]int) ProbeSearchCell {
	return ProbeSearchCell{
		ProbeVertices: vertices,
		Neighbours:    [4]int{InvalidID, InvalidID, InvalidID, InvalidID},
	}
}

// networkBuilder turns probe positions into search cells.
type networkBuilder struct {
	probes []Probe
	cells  []ProbeSearchCell
	stats  NetworkStats
}

// buildNetwork tetrahedralizes the probes and bakes inner cells, outer hull
// cells, their neighbours and barycentric converters.
func buildNetwork(probes []Probe) ([]ProbeSearchCell, NetworkStats, error) {
	b := &networkBuilder{probes: probes}
	if err := b.checkVolume(); err != nil {
		return nil, b.stats, err
	}

	points := make([]math3d.Vec3, len(probes))
	for i, p := range probes {
		points[i] = p.Pos
	}
	tets, err := triangulate(points)
	if err != nil {
		return nil, b.stats, err
	}
	b.stats.Tetrahedra = len(tets)

	steps := []func() error{
		func() error { return b.innerCells(tets) },
		b.innerNeighbours,
		b.outerCells,
		b.outerNeighbours,
		b.converters,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, b.stats, err
		}
	}
	b.stats.HullVolume = hullVolume(points)
	return b.cells, b.stats, nil
}

// checkVolume rejects probe sets that do not span a volume: fewer than four
// probes, or all of them on one plane.
func (b *networkBuilder) checkVolume() error {
	if len(b.probes) < 4 {
		return fmt.Errorf("%w: %d probes, need at least 4", ErrDegenerateTriangulation, len(b.probes))
	}
	p0 := b.probes[0].Pos

	far := p0
	for _, p := range b.probes {
		if p.Pos.Distance(p0) > far.Distance(p0) {
			far = p.Pos
		}
	}
	axis := far.Sub(p0)
	scale := axis.Len()
	if scale == 0 {
		return fmt.Errorf("%w: all probes coincide", ErrDegenerateTriangulation)
	}

	var normal math3d.Vec3
	for _, p := range b.probes {
		if n := axis.Cross(p.Pos.Sub(p0)); n.LenSq() > normal.LenSq() {
			normal = n
		}
	}
	if normal.Len() <= 1e-9*scale*scale {
		return fmt.Errorf("%w: probes are collinear", ErrDegenerateTriangulation)
	}
	normal = normal.Normalize()

	for _, p := range b.probes {
		if math.Abs(p.Pos.Sub(p0).Dot(normal)) > 1e-9*scale {
			return nil
		}
	}
	return fmt.Errorf("%w: probes are coplanar", ErrDegenerateTriangulation)
}

// innerCells maps tetrahedron vertices back to probe ids.
func (b *networkBuilder) innerCells(tets []Tetrahedron) error {
	ids := make(map[math3d.Vec3]int, len(b.probes))
	for _, p := range b.probes {
		if _, ok := ids[p.Pos]; !ok {
			ids[p.Pos] = p.ID
		}
	}

	for _, t := range tets {
		var v [4]int
		for i, pos := range t.Vertices {
			id, ok := ids[pos]
			if !ok {
				return fmt.Errorf("%w: %v", ErrUnmatchedVertex, pos)
			}
			v[i] = id
		}
		slices.Sort(v[:])
		b.cells = append(b.cells, newCell(v))
	}
	if len(b.cells) == 0 {
		return fmt.Errorf("%w: no tetrahedra between probes", ErrDegenerateTriangulation)
	}
	b.stats.InnerCells = len(b.cells)
	return nil
}

type faceRef struct {
	cell, face int
}

// innerNeighbours links inner cells that share three probe ids.
func (b *networkBuilder) innerNeighbours() error {
	open := make(map[[3]int]faceRef)
	for ci, c := range b.cells {
		for f := range 4 {
			key := faceVertices(c, f)
			other, ok := open[key]
			if !ok {
				open[key] = faceRef{ci, f}
				continue
			}
			if other.cell == InvalidID {
				return fmt.Errorf("%w: face %v shared by more than two cells", ErrDegenerateTriangulation, key)
			}
			b.cells[ci].Neighbours[f] = other.cell
			b.cells[other.cell].Neighbours[other.face] = ci
			open[key] = faceRef{InvalidID, InvalidID}
		}
	}
	return nil
}

// outerCells gives every unmatched inner face an outer cell whose winding
// faces away from the interior.
func (b *networkBuilder) outerCells() error {
	inner := len(b.cells)
	for ci := range inner {
		for f := range 4 {
			if b.cells[ci].Neighbours[f] != InvalidID {
				continue
			}
			v := faceVertices(b.cells[ci], f)
			p0, p1, p2 := b.probes[v[0]].Pos, b.probes[v[1]].Pos, b.probes[v[2]].Pos
			excluded := b.probes[b.cells[ci].ProbeVertices[f]].Pos
			if p1.Sub(p0).Cross(p2.Sub(p0)).Dot(excluded.Sub(p0)) > 0 {
				v[1], v[2] = v[2], v[1]
			}

			outer := newCell([4]int{v[0], v[1], v[2], InvalidID})
			outer.Neighbours[FaceInner] = ci
			b.cells[ci].Neighbours[f] = len(b.cells)
			b.cells = append(b.cells, outer)
		}
	}
	b.stats.OuterCells = len(b.cells) - inner
	return nil
}

// outerNeighbours links outer cells across shared hull edges.
func (b *networkBuilder) outerNeighbours() error {
	open := make(map[[2]int]faceRef)
	for ci := b.stats.InnerCells; ci < len(b.cells); ci++ {
		for e := range 3 {
			key := edgeVertices(b.cells[ci], e)
			other, ok := open[key]
			if !ok {
				open[key] = faceRef{ci, e}
				continue
			}
			if other.cell == InvalidID {
				return fmt.Errorf("%w: hull edge %v shared by more than two faces", ErrMalformedHull, key)
			}
			b.cells[ci].Neighbours[e] = other.cell
			b.cells[other.cell].Neighbours[other.face] = ci
			open[key] = faceRef{InvalidID, InvalidID}
		}
	}
	return nil
}

// outerFaceNormal is the unit normal of an outer cell, pointing out of the hull.
func (b *networkBuilder) outerFaceNormal(c ProbeSearchCell) math3d.Vec3 {
	p0 := b.probes[c.ProbeVertices[0]].Pos
	p1 := b.probes[c.ProbeVertices[1]].Pos
	p2 := b.probes[c.ProbeVertices[2]].Pos
	return p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
}

// hullNormals averages the adjoining outer face normals of every hull
// probe, weighting each by the face's corner angle at that probe. Where the
// average tips past one of those faces, as it can at sharp ridges, the
// direction from the probe centroid is used instead.
func (b *networkBuilder) hullNormals() (map[int]math3d.Vec3, error) {
	normals := make(map[int]math3d.Vec3)
	adjoining := make(map[int][]math3d.Vec3)
	for _, c := range b.cells[b.stats.InnerCells:] {
		n := b.outerFaceNormal(c)
		for k := range 3 {
			id := c.ProbeVertices[k]
			at := b.probes[id].Pos
			e1 := b.probes[c.ProbeVertices[(k+1)%3]].Pos.Sub(at).Normalize()
			e2 := b.probes[c.ProbeVertices[(k+2)%3]].Pos.Sub(at).Normalize()
			angle := math.Acos(math.Max(-1, math.Min(1, e1.Dot(e2))))
			normals[id] = normals[id].Add(n.Scale(angle))
			adjoining[id] = append(adjoining[id], n)
		}
	}

	var centroid math3d.Vec3
	for _, p := range b.probes {
		centroid = centroid.Add(p.Pos)
	}
	centroid = centroid.Div(float64(len(b.probes)))

	facesAll := func(h math3d.Vec3, faces []math3d.Vec3) bool {
		for _, n := range faces {
			if h.Dot(n) <= 0 {
				return false
			}
		}
		return true
	}
	for id, n := range normals {
		n = n.Normalize()
		if !facesAll(n, adjoining[id]) {
			n = b.probes[id].Pos.Sub(centroid).Normalize()
		}
		normals[id] = n
	}

	for ci, c := range b.cells[b.stats.InnerCells:] {
		n := b.outerFaceNormal(c)
		for k := range 3 {
			if normals[c.ProbeVertices[k]].Dot(n) <= 0 {
				return nil, fmt.Errorf("%w: hull normal of probe %d faces away from outer cell %d",
					ErrMalformedHull, c.ProbeVertices[k], b.stats.InnerCells+ci)
			}
		}
	}
	b.stats.HullProbes = len(normals)
	return normals, nil
}

// converters fills BarycentricConverter for every cell.
func (b *networkBuilder) converters() error {
	for ci := range b.stats.InnerCells {
		c := &b.cells[ci]
		v0 := b.probes[c.ProbeVertices[0]].Pos
		t := mat.NewDense(3, 3, nil)
		for i := 1; i < 4; i++ {
			d := b.probes[c.ProbeVertices[i]].Pos.Sub(v0)
			t.SetCol(i-1, []float64{d.X, d.Y, d.Z})
		}
		b.stats.CellVolume += math.Abs(mat.Det(t)) / 6

		var inv mat.Dense
		if err := inv.Inverse(t); err != nil {
			return fmt.Errorf("%w: cell %d %v: %w", ErrDegenerateCell, ci, c.ProbeVertices, err)
		}
		m := math3d.Identity()
		for r := range 3 {
			for col := range 3 {
				m.Set(r, col, inv.At(r, col))
			}
		}
		c.BarycentricConverter = m
	}

	normals, err := b.hullNormals()
	if err != nil {
		return err
	}
	for ci := b.stats.InnerCells; ci < len(b.cells); ci++ {
		c := &b.cells[ci]
		n := b.outerFaceNormal(*c)
		var cols [3]math3d.Vec3
		for k := range 3 {
			h := normals[c.ProbeVertices[k]]
			cols[k] = h.Scale(1 / h.Dot(n))
		}
		c.BarycentricConverter = math3d.FromColumns(cols[0], cols[1], cols[2])
	}
	return nil
}
