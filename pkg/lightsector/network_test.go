package lightsector

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
)

func TestCircumsphere(t *testing.T) {
	tet := Tetrahedron{[4]math3d.Vec3{
		math3d.V3(1, 0, 0), math3d.V3(-1, 0, 0), math3d.V3(0, 1, 0), math3d.V3(0, 0, 1),
	}}
	s, ok := circumsphere(tet)
	if !ok {
		t.Fatal("circumsphere failed")
	}
	if !s.Center.ApproxEqual(math3d.Zero3(), 1e-12) || math.Abs(s.Radius-1) > 1e-12 {
		t.Errorf("sphere = %+v, want unit sphere at origin", s)
	}
	if !s.Contains(math3d.V3(0.5, 0, 0), circumsphereEpsilon) {
		t.Error("interior point not contained")
	}
	if s.Contains(math3d.V3(0, -1, 0), circumsphereEpsilon) {
		t.Error("point on the sphere counted as inside")
	}

	flat := Tetrahedron{[4]math3d.Vec3{
		math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0), math3d.V3(1, 1, 0),
	}}
	if _, ok := circumsphere(flat); ok {
		t.Error("coplanar tetrahedron produced a circumsphere")
	}
}

func TestTriangulateSingleTetrahedron(t *testing.T) {
	var points []math3d.Vec3
	for _, p := range cornerTetrahedron() {
		points = append(points, p.Pos)
	}
	tets, err := triangulate(points)
	if err != nil {
		t.Fatal(err)
	}
	if len(tets) != 1 {
		t.Fatalf("got %d tetrahedra, want 1", len(tets))
	}
}

func TestBuildNetworkScenarios(t *testing.T) {
	tests := []struct {
		name         string
		probes       []Probe
		inner, outer int
	}{
		{"tetrahedron", cornerTetrahedron(), 1, 4},
		{"tetrahedron with centre", tetrahedronWithCentre(), 4, 4},
		{"jittered cube", JitterProbes(GridProbes(math3d.Zero3(), math3d.Splat3(2), [3]int{2, 2, 2}), 0.1, 3), -1, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, stats, err := buildNetwork(tt.probes)
			if err != nil {
				t.Fatalf("buildNetwork: %v", err)
			}
			inner, outer := countCells(network)
			if tt.inner >= 0 && inner != tt.inner {
				t.Errorf("inner cells = %d, want %d", inner, tt.inner)
			}
			if outer != tt.outer {
				t.Errorf("outer cells = %d, want %d", outer, tt.outer)
			}
			if stats.InnerCells != inner || stats.OuterCells != outer {
				t.Errorf("stats = %+v", stats)
			}
			checkNetwork(t, network)

			if !hullCovered(stats) {
				t.Errorf("cells cover %f of hull volume %f", stats.CellVolume, stats.HullVolume)
			}
		})
	}
}

func TestBuildNetworkRandom(t *testing.T) {
	probes := RandomProbes(16, 2, 7)
	network, stats, err := buildNetwork(probes)
	if err != nil {
		t.Fatalf("buildNetwork: %v", err)
	}
	checkNetwork(t, network)
	if stats.HullProbes == 0 || stats.HullProbes > len(probes) {
		t.Errorf("hull probes = %d", stats.HullProbes)
	}

	// Every probe is a vertex of some inner cell.
	used := make(map[int]bool)
	for _, c := range network {
		if !IsOuterCell(c) {
			for _, id := range c.ProbeVertices {
				used[id] = true
			}
		}
	}
	if len(used) != len(probes) {
		t.Errorf("%d of %d probes used by inner cells", len(used), len(probes))
	}
}

func TestBuildNetworkRandomLayouts(t *testing.T) {
	type layout struct {
		n    int
		seed uint64
	}
	var layouts []layout
	for _, n := range []int{16, 32, 64} {
		for seed := uint64(1); seed <= 10; seed++ {
			layouts = append(layouts, layout{n, seed})
		}
	}
	layouts = append(layouts, layout{64, 11}, layout{200, 2})

	for _, l := range layouts {
		t.Run(fmt.Sprintf("%d probes seed %d", l.n, l.seed), func(t *testing.T) {
			network, stats, err := buildNetwork(RandomProbes(l.n, 5, l.seed))
			if err != nil {
				t.Fatalf("buildNetwork: %v", err)
			}
			checkNetwork(t, network)
			if !hullCovered(stats) {
				t.Errorf("cells cover %f of hull volume %f", stats.CellVolume, stats.HullVolume)
			}
		})
	}
}

func TestBuildNetworkPresets(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
	}{
		{"crytek sponza", CrytekSponzaProbes()},
		{"old sponza", OldSponzaProbes()},
		{"jittered crytek sponza", JitterProbes(CrytekSponzaProbes(), 0.05, 1)},
		{"jittered old sponza", JitterProbes(OldSponzaProbes(), 0.05, 1)},
		{"grid", GridProbes(math3d.Splat3(-3), math3d.Splat3(3), [3]int{4, 3, 5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, stats, err := buildNetwork(tt.probes)
			if err != nil {
				t.Fatalf("buildNetwork: %v", err)
			}
			checkNetwork(t, network)
			if !hullCovered(stats) {
				t.Errorf("cells cover %f of hull volume %f", stats.CellVolume, stats.HullVolume)
			}
		})
	}
}

func TestDelaunayMeshRejectsThirdTetrahedronOnFace(t *testing.T) {
	points := []math3d.Vec3{
		math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0),
		math3d.V3(0, 0, 1), math3d.V3(0, 0, -1), math3d.V3(1, 1, 1),
	}
	m := newDelaunayMesh(points, len(points), 1e-9)
	for _, v := range [][4]int{{0, 1, 2, 3}, {0, 1, 2, 4}} {
		if err := m.add(v); err != nil {
			t.Fatalf("add %v: %v", v, err)
		}
	}
	if n := m.neighbour(0, 3); n != 1 {
		t.Errorf("neighbour across the shared face = %d, want 1", n)
	}
	if n := m.neighbour(0, 0); n != InvalidID {
		t.Errorf("neighbour across an open face = %d, want InvalidID", n)
	}

	err := m.add([4]int{2, 0, 1, 5})
	if !errors.Is(err, ErrDegenerateTriangulation) {
		t.Errorf("err = %v, want ErrDegenerateTriangulation", err)
	}

	// Removing a tetrahedron frees its slot on the face.
	m.remove(1)
	if err := m.add([4]int{2, 0, 1, 5}); err != nil {
		t.Errorf("add after remove: %v", err)
	}
}

func TestHullMalformed(t *testing.T) {
	outer := func(a, b, c int) ProbeSearchCell {
		return newCell([4]int{a, b, c, InvalidID})
	}
	tests := []struct {
		name  string
		cells []ProbeSearchCell
		step  func(b *networkBuilder) error
	}{
		{
			name:  "face wound both ways",
			cells: []ProbeSearchCell{outer(0, 1, 2), outer(0, 2, 1)},
			step: func(b *networkBuilder) error {
				_, err := b.hullNormals()
				return err
			},
		},
		{
			name:  "edge on three faces",
			cells: []ProbeSearchCell{outer(0, 1, 2), outer(1, 0, 3), outer(0, 1, 4)},
			step:  (*networkBuilder).outerNeighbours,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &networkBuilder{
				probes: probesAt([]math3d.Vec3{
					math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0),
					math3d.V3(0, 0, 1), math3d.V3(0, 0, -1),
				}),
				cells: tt.cells,
			}
			if err := tt.step(b); !errors.Is(err, ErrMalformedHull) {
				t.Errorf("err = %v, want ErrMalformedHull", err)
			}
		})
	}
}

func TestOuterCellsFaceOutward(t *testing.T) {
	probes := tetrahedronWithCentre()
	network, _, err := buildNetwork(probes)
	if err != nil {
		t.Fatal(err)
	}
	centre := math3d.Splat3(0.25)
	for ci, c := range network {
		if !IsOuterCell(c) {
			continue
		}
		p0 := probes[c.ProbeVertices[0]].Pos
		n := probes[c.ProbeVertices[1]].Pos.Sub(p0).Cross(probes[c.ProbeVertices[2]].Pos.Sub(p0))
		if n.Dot(centre.Sub(p0)) >= 0 {
			t.Errorf("outer cell %d normal %v faces the interior", ci, n)
		}
		// Scaled hull normals sit at unit distance from the face plane.
		for k := range 3 {
			if d := c.BarycentricConverter.Column(k).Dot(n.Normalize()); math.Abs(d-1) > 1e-12 {
				t.Errorf("outer cell %d column %d has height %f", ci, k, d)
			}
		}
	}
}

func TestInnerConverter(t *testing.T) {
	probes := cornerTetrahedron()
	network, _, err := buildNetwork(probes)
	if err != nil {
		t.Fatal(err)
	}
	c := network[0]
	for i := 1; i < 4; i++ {
		b := c.BarycentricConverter.MulVec3Dir(probes[c.ProbeVertices[i]].Pos.Sub(probes[c.ProbeVertices[0]].Pos))
		want := [3]float64{}
		want[i-1] = 1
		if math.Abs(b.X-want[0]) > 1e-12 || math.Abs(b.Y-want[1]) > 1e-12 || math.Abs(b.Z-want[2]) > 1e-12 {
			t.Errorf("vertex %d maps to %v, want %v", i, b, want)
		}
	}
}

func TestBuildNetworkDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
	}{
		{"too few", cornerTetrahedron()[:3]},
		{"coplanar", GridProbes(math3d.Zero3(), math3d.V3(3, 3, 0), [3]int{3, 3, 1})},
		{"collinear", GridProbes(math3d.Zero3(), math3d.V3(4, 0, 0), [3]int{5, 1, 1})},
		{"duplicate", append(cornerTetrahedron(), Probe{ID: 4, Pos: math3d.V3(1, 0, 0)})},
		{"coincident", probesAt([]math3d.Vec3{math3d.Splat3(1), math3d.Splat3(1), math3d.Splat3(1), math3d.Splat3(1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildNetwork(tt.probes)
			if !errors.Is(err, ErrDegenerateTriangulation) {
				t.Errorf("err = %v, want ErrDegenerateTriangulation", err)
			}
		})
	}
}

func TestHullVolume(t *testing.T) {
	var points []math3d.Vec3
	for _, p := range GridProbes(math3d.Zero3(), math3d.V3(1, 2, 3), [3]int{2, 2, 2}) {
		points = append(points, p.Pos)
	}
	// An interior point does not change the hull.
	points = append(points, math3d.V3(0.5, 1, 1.5))
	if v := hullVolume(points); math.Abs(v-6) > 1e-9 {
		t.Errorf("hull volume = %f, want 6", v)
	}
}

func BenchmarkBuildNetwork(b *testing.B) {
	probes := JitterProbes(OldSponzaProbes(), 0.05, 1)
	for b.Loop() {
		if _, _, err := buildNetwork(probes); err != nil {
			b.Fatal(err)
		}
	}
}
