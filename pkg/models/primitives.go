package models

import "github.com/taigrr/prt/pkg/math3d"

// boxSides lists each box side as (normal, u, v) with u x v = normal, so the
// corner order (-u,-v) (+u,-v) (+u,+v) (-u,+v) winds counter-clockwise seen
// from outside.
var boxSides = [6][3]math3d.Vec3{
	{{X: 1}, {Y: 1}, {Z: 1}},
	{{X: -1}, {Z: 1}, {Y: 1}},
	{{Y: 1}, {Z: 1}, {X: 1}},
	{{Y: -1}, {X: 1}, {Z: 1}},
	{{Z: 1}, {X: 1}, {Y: 1}},
	{{Z: -1}, {Y: 1}, {X: 1}},
}

// NewBox creates an axis-aligned box spanning min to max with outward faces.
func NewBox(name string, min, max math3d.Vec3, mat Material) *Mesh {
	return newBox(name, min, max, mat, false)
}

// NewRoom creates an axis-aligned box spanning min to max whose faces point
// inward, enclosing anything placed inside it.
func NewRoom(name string, min, max math3d.Vec3, mat Material) *Mesh {
	return newBox(name, min, max, mat, true)
}

func newBox(name string, min, max math3d.Vec3, mat Material, inward bool) *Mesh {
	m := NewMesh(name)
	mi := m.AddMaterial(mat)
	center := min.Add(max).Scale(0.5)
	half := max.Sub(min).Scale(0.5)

	for _, side := range boxSides {
		n, u, v := side[0], side[1].Mul(half), side[2].Mul(half)
		c := center.Add(n.Mul(half))
		corners := [4]math3d.Vec3{
			c.Sub(u).Sub(v),
			c.Add(u).Sub(v),
			c.Add(u).Add(v),
			c.Sub(u).Add(v),
		}
		if inward {
			n = n.Negate()
			corners[1], corners[3] = corners[3], corners[1]
		}
		m.addQuad(corners, n, mi)
	}
	m.CalculateBounds()
	return m
}

// NewPlane creates a horizontal rectangle centred on center, facing +Y.
func NewPlane(name string, center math3d.Vec3, sizeX, sizeZ float64, mat Material) *Mesh {
	m := NewMesh(name)
	mi := m.AddMaterial(mat)
	u := math3d.V3(0, 0, sizeZ/2)
	v := math3d.V3(sizeX/2, 0, 0)
	m.addQuad([4]math3d.Vec3{
		center.Sub(u).Sub(v),
		center.Add(u).Sub(v),
		center.Add(u).Add(v),
		center.Sub(u).Add(v),
	}, math3d.Up(), mi)
	m.CalculateBounds()
	return m
}

// addQuad appends two triangles for a counter-clockwise quad.
func (m *Mesh) addQuad(corners [4]math3d.Vec3, normal math3d.Vec3, material int) {
	uvs := [4]math3d.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	base := len(m.Vertices)
	for i, p := range corners {
		m.Vertices = append(m.Vertices, MeshVertex{Position: p, Normal: normal, UV: uvs[i]})
	}
	m.Faces = append(m.Faces,
		Face{V: [3]int{base, base + 1, base + 2}, Material: material},
		Face{V: [3]int{base, base + 2, base + 3}, Material: material},
	)
}
