package lightsector

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/render"
	"github.com/taigrr/prt/pkg/scene"
)

func bakedSector(t *testing.T, s *scene.Scene, probes []Probe) *LightSector {
	t.Helper()
	baker, err := NewRadianceTransferBaker(render.NewSoftwareBackend(), testOptions(8))
	if err != nil {
		t.Fatal(err)
	}
	ls := NewLightSector(probes)
	if err := ls.BakeRadianceTransfer(t.Context(), baker, s); err != nil {
		t.Fatalf("BakeRadianceTransfer: %v", err)
	}
	return ls
}

func TestNewLightSector(t *testing.T) {
	probes := cornerTetrahedron()
	probes[1].ID = 9
	ls := NewLightSector(probes)

	if b := ls.GIBoost(); b != 1 {
		t.Errorf("GIBoost = %f, want 1", b)
	}
	for i, p := range ls.Probes() {
		if p.ID != i || p.Pos != probes[i].Pos {
			t.Errorf("probe %d = %+v", i, p)
		}
	}
	if len(ls.ProbeNetwork()) != 0 || len(ls.Surfels()) != 0 {
		t.Error("unbaked sector has data")
	}

	// An unbaked sector has nothing to interpolate.
	for _, w := range ls.FindProbeWeights(math3d.Splat3(0.2)) {
		if w.ID != InvalidID || w.Weight != 0 {
			t.Errorf("unbaked weights = %+v", w)
		}
	}
	if got := ls.SampleIrradiance(math3d.Splat3(0.2), math3d.V3(0, 1, 0)); got != math3d.Zero3() {
		t.Errorf("unbaked irradiance = %v", got)
	}
}

func TestBakeRadianceTransferKeepsDataOnFailure(t *testing.T) {
	ls := bakedSector(t, roomScene(3), tetrahedronWithCentre())
	network := ls.ProbeNetwork()
	surfels := ls.Surfels()
	if len(network) == 0 || len(surfels) == 0 {
		t.Fatal("bake produced no data")
	}
	if ls.Stats().SurfelSamples == 0 {
		t.Error("stats not recorded")
	}

	baker, err := NewRadianceTransferBaker(&failingBackend{}, testOptions(8))
	if err != nil {
		t.Fatal(err)
	}
	if err := ls.BakeRadianceTransfer(t.Context(), baker, roomScene(3)); !errors.Is(err, ErrCapture) {
		t.Fatalf("BakeRadianceTransfer error = %v, want ErrCapture", err)
	}
	if &ls.ProbeNetwork()[0] != &network[0] || &ls.Surfels()[0] != &surfels[0] {
		t.Error("failed bake replaced the sector data")
	}
}

func TestRelightNeedsOneLight(t *testing.T) {
	ls := bakedSector(t, emptyScene(), cornerTetrahedron())
	for _, lights := range [][]scene.Light{nil, make([]scene.Light, 2)} {
		s := emptyScene()
		s.Lights = lights
		if err := ls.Relight(s); !errors.Is(err, scene.ErrLightCount) {
			t.Errorf("Relight with %d lights = %v, want ErrLightCount", len(lights), err)
		}
	}
}

func TestRelightOpenSky(t *testing.T) {
	s := emptyScene()
	s.Lights = []scene.Light{{Direction: math3d.V3(0, -1, 0), Colour: math3d.Splat3(1), Luminance: 5}}
	ls := bakedSector(t, s, tetrahedronWithCentre())
	if err := ls.Relight(s); err != nil {
		t.Fatal(err)
	}

	sky := math3d.V3(0.4, 0.6, 1)
	for _, p := range ls.Probes() {
		for a, c := range p.Irradiance {
			if c.Sub(sky).Len() > 2e-2 {
				t.Errorf("probe %d axis %v irradiance %v, want %v", p.ID, math3d.Axis(a), c, sky)
			}
		}
	}

	got := ls.SampleIrradiance(math3d.Splat3(0.2), math3d.V3(1, 1, 0))
	if got.Sub(sky).Len() > 2e-2 {
		t.Errorf("SampleIrradiance = %v, want %v", got, sky)
	}
}

func TestRelightClosedRoom(t *testing.T) {
	s := roomScene(3)
	ls := bakedSector(t, s, tetrahedronWithCentre())

	if err := ls.Relight(s); err != nil {
		t.Fatal(err)
	}
	// Normals are stored at 8 bits, so walls catch a sliver of sun.
	for _, sf := range ls.Surfels() {
		up := sf.Normal.Y > 0.9
		if up && math.Abs(sf.Radiance.X-2) > 1e-3 {
			t.Errorf("floor surfel radiance %v, want 2", sf.Radiance)
		}
		if !up && sf.Radiance.X > 0.02 {
			t.Errorf("unlit surfel with normal %v has radiance %v", sf.Normal, sf.Radiance)
		}
	}

	var firstUp []float64
	for _, p := range ls.Probes() {
		down := p.Irradiance[math3d.NegativeY].X
		if down <= 0 || down > 2.05 {
			t.Errorf("probe %d -Y irradiance %f outside (0, 2]", p.ID, down)
		}
		firstUp = append(firstUp, p.Irradiance[math3d.PositiveY].X)
		if firstUp[p.ID] > 0.05 {
			t.Errorf("probe %d +Y irradiance %f before any bounce", p.ID, firstUp[p.ID])
		}
	}

	// The second pass bounces floor light onto the ceiling.
	if err := ls.Relight(s); err != nil {
		t.Fatal(err)
	}
	for _, p := range ls.Probes() {
		if up := p.Irradiance[math3d.PositiveY].X; up <= firstUp[p.ID] {
			t.Errorf("probe %d +Y irradiance %f did not grow", p.ID, up)
		}
	}
}

func TestRelightWithoutBounce(t *testing.T) {
	s := roomScene(3)
	ls := bakedSector(t, s, tetrahedronWithCentre())
	ls.SetGIBoost(0)

	if err := ls.Relight(s); err != nil {
		t.Fatal(err)
	}
	first := ls.Probes()
	for range 2 {
		if err := ls.Relight(s); err != nil {
			t.Fatal(err)
		}
	}
	for i, p := range ls.Probes() {
		if p.Irradiance != first[i].Irradiance {
			t.Errorf("probe %d irradiance changed without bounce: %v", p.ID, p.Irradiance)
		}
	}
}

func TestRelightConcurrentReaders(t *testing.T) {
	s := roomScene(3)
	ls := bakedSector(t, s, tetrahedronWithCentre())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				ls.SampleIrradiance(math3d.Splat3(0.25), math3d.V3(0, 1, 0))
			}
		})
	}
	for range 5 {
		if err := ls.Relight(s); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSetGIBoostDuringRelight(t *testing.T) {
	s := roomScene(3)
	ls := bakedSector(t, s, tetrahedronWithCentre())

	var wg sync.WaitGroup
	wg.Go(func() {
		for range 5 {
			if err := ls.Relight(s); err != nil {
				t.Error(err)
			}
		}
	})
	for i := range 20 {
		ls.SetGIBoost(float64(i) / 10)
	}
	wg.Wait()

	if b := ls.GIBoost(); b != 1.9 {
		t.Errorf("GIBoost = %g, want 1.9", b)
	}
}

func TestAmbientCubeEvaluate(t *testing.T) {
	var cube AmbientCube
	for a := range cube {
		cube[a] = math3d.Splat3(float64(a + 1))
	}

	tests := []struct {
		name string
		n    math3d.Vec3
		want float64
	}{
		{"+X", math3d.V3(1, 0, 0), 1},
		{"-X", math3d.V3(-3, 0, 0), 2},
		{"+Y", math3d.V3(0, 1, 0), 3},
		{"-Z", math3d.V3(0, 0, -1), 6},
		{"+X+Y", math3d.V3(1, 1, 0), 2},
		{"-X-Y-Z", math3d.V3(-1, -1, -1), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cube.Evaluate(tt.n)
			if math.Abs(got.X-tt.want) > 1e-12 {
				t.Errorf("Evaluate(%v) = %v, want %f", tt.n, got, tt.want)
			}
		})
	}
}
