package lightsector

import (
	"slices"
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/models"
	"github.com/taigrr/prt/pkg/render"
	"github.com/taigrr/prt/pkg/scene"
)

// cornerTetrahedron is the unit tetrahedron at the origin.
func cornerTetrahedron() []Probe {
	return probesAt([]math3d.Vec3{
		math3d.V3(0, 0, 0),
		math3d.V3(1, 0, 0),
		math3d.V3(0, 1, 0),
		math3d.V3(0, 0, 1),
	})
}

// tetrahedronWithCentre adds the centroid as a fifth probe.
func tetrahedronWithCentre() []Probe {
	probes := cornerTetrahedron()
	return append(probes, Probe{ID: 4, Pos: math3d.Splat3(0.25)})
}

func emptyScene() *scene.Scene {
	return &scene.Scene{
		SkyColour:    math3d.SHUniformColour3(math3d.V3(0.4, 0.6, 1)),
		SkyLuminance: 1,
	}
}

// roomScene encloses the origin in a white room with half extent size.
func roomScene(size float64) *scene.Scene {
	s := emptyScene()
	white := models.Material{Name: "white", BaseColor: [4]float64{1, 1, 1, 1}}
	room := models.NewRoom("room", math3d.Splat3(-size), math3d.Splat3(size), white)
	s.Models = []*scene.Model{scene.NewModel(room)}
	s.Lights = []scene.Light{{Direction: math3d.V3(0, -1, 0), Colour: math3d.Splat3(1), Luminance: 2}}
	return s
}

func testOptions(tile int) BakeOptions {
	opts := DefaultBakeOptions()
	opts.TileSize = tile
	return opts
}

func bake(t *testing.T, s *scene.Scene, probes []Probe, opts BakeOptions) *BakeResult {
	t.Helper()
	baker, err := NewRadianceTransferBaker(render.NewSoftwareBackend(), opts)
	if err != nil {
		t.Fatalf("NewRadianceTransferBaker: %v", err)
	}
	res, err := baker.Bake(t.Context(), s, probes)
	if err != nil {
		t.Fatalf("Bake: %v", err)
	}
	return res
}

// checkNetwork verifies closure and neighbour reciprocity.
func checkNetwork(t *testing.T, network []ProbeSearchCell) {
	t.Helper()
	for ci, c := range network {
		slots := 4
		if IsOuterCell(c) {
			slots = 3
			if n := c.Neighbours[FaceInner]; n == InvalidID || IsOuterCell(network[n]) {
				t.Errorf("outer cell %d has no inner neighbour", ci)
			}
		}
		for f := range slots {
			n := c.Neighbours[f]
			if n == InvalidID {
				t.Errorf("cell %d slot %d has no neighbour", ci, f)
				continue
			}
			if !slices.Contains(network[n].Neighbours[:], ci) {
				t.Errorf("cell %d -> %d is not reciprocated", ci, n)
			}
		}
		if !IsOuterCell(c) {
			for i := 1; i < 4; i++ {
				if c.ProbeVertices[i-1] >= c.ProbeVertices[i] {
					t.Errorf("inner cell %d vertices %v not strictly ascending", ci, c.ProbeVertices)
				}
			}
		}
	}
}

func countCells(network []ProbeSearchCell) (inner, outer int) {
	for _, c := range network {
		if IsOuterCell(c) {
			outer++
		} else {
			inner++
		}
	}
	return inner, outer
}
