package config

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/math3d"
)

const minimal = `{
	"lights": [{"direction": [0, -1, 0], "luminance": 2}],
	"probes": {"layout": "test"}
}`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, want := cfg.BakeOptions(), lightsector.DefaultBakeOptions(); got != want {
		t.Errorf("BakeOptions = %+v, want %+v", got, want)
	}
	if cfg.GIBoost != 1 || cfg.Sky.Luminance != 1 {
		t.Errorf("GIBoost %g, sky luminance %g, want 1 and 1", cfg.GIBoost, cfg.Sky.Luminance)
	}
	if cfg.Lights[0].Colour != (Vec3{1, 1, 1}) {
		t.Errorf("light colour = %v, want white", cfg.Lights[0].Colour)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"syntax", `{`, "unexpected end"},
		{"no lights", `{"probes": {"layout": "test"}}`, "exactly one light"},
		{"two lights", `{"lights": [{"direction": [0,-1,0]}, {"direction": [1,0,0]}], "probes": {"layout": "test"}}`, "exactly one light"},
		{"zero direction", `{"lights": [{"direction": [0,0,0]}], "probes": {"layout": "test"}}`, "direction is zero"},
		{"no layout", `{"lights": [{"direction": [0,-1,0]}]}`, "no layout"},
		{"unknown layout", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "spiral"}}`, "unknown layout"},
		{"empty grid", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "grid", "counts": [2, 0, 2]}}`, "grid count"},
		{"random without count", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "random", "scale": 1}}`, "positive count"},
		{"unknown model", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "test"}, "models": [{"kind": "teapot"}]}`, "unknown model kind"},
		{"inverted box", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "test"}, "models": [{"kind": "box", "min": [1,1,1], "max": [0,2,2]}]}`, "must exceed"},
		{"bad far", `{"lights": [{"direction": [0,-1,0]}], "probes": {"layout": "test"}, "bake": {"near": 5, "far": 1}}`, "clip planes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestProbeLayout(t *testing.T) {
	tests := []struct {
		name  string
		cfg   ProbesCfg
		count int
	}{
		{"test", ProbesCfg{Layout: LayoutTest}, 1},
		{"crytek", ProbesCfg{Layout: LayoutCrytekSponza}, 200},
		{"old sponza", ProbesCfg{Layout: LayoutOldSponza}, 60},
		{"grid", ProbesCfg{Layout: LayoutGrid, Max: Vec3{1, 1, 1}, Counts: [3]int{2, 3, 2}}, 12},
		{"random", ProbesCfg{Layout: LayoutRandom, Count: 9, Scale: 2, Seed: 4}, 9},
		{"points", ProbesCfg{Layout: LayoutPoints, Points: []Vec3{{0, 0, 0}, {1, 2, 3}}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Probes: tt.cfg}
			probes, err := cfg.ProbeLayout()
			if err != nil {
				t.Fatal(err)
			}
			if len(probes) != tt.count {
				t.Errorf("got %d probes, want %d", len(probes), tt.count)
			}
		})
	}

	cfg := &Config{Probes: ProbesCfg{Layout: LayoutPoints, Points: []Vec3{{1, 2, 3}}, Jitter: 0.1, Seed: 2}}
	probes, err := cfg.ProbeLayout()
	if err != nil {
		t.Fatal(err)
	}
	d := probes[0].Pos.Sub(math3d.V3(1, 2, 3))
	if d == math3d.Zero3() || math.Abs(d.X) > 0.1 || math.Abs(d.Y) > 0.1 || math.Abs(d.Z) > 0.1 {
		t.Errorf("jittered probe moved by %v", d)
	}
}

func TestModelWorld(t *testing.T) {
	m := ModelCfg{Translate: Vec3{1, 0, 0}, RotDeg: Vec3{0, 90, 0}, Scale: 2}
	got := m.World().MulVec3(math3d.V3(1, 0, 0))
	// Scaled to (2,0,0), yawed onto -Z, then moved along X.
	if want := math3d.V3(1, 0, -2); got.Sub(want).Len() > 1e-9 {
		t.Errorf("World * (1,0,0) = %v, want %v", got, want)
	}
	if id := (ModelCfg{}).World(); id != math3d.Identity() {
		t.Errorf("zero config World = %v, want identity", id)
	}
}

func TestDefaultScene(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	s, err := cfg.Scene()
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Models) != 2 {
		t.Fatalf("got %d models", len(s.Models))
	}
	sun, err := s.Sun()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sun.Direction.Len()-1) > 1e-12 {
		t.Errorf("sun direction %v not normalised", sun.Direction)
	}
	if got := s.SkyColour.Evaluate(math3d.V3(0, 1, 0)); got.Sub(math3d.V3(0.4, 0.6, 1)).Len() > 1e-3 {
		t.Errorf("sky colour = %v", got)
	}

	lo, hi, _ := s.Bounds()
	probes, err := cfg.ProbeLayout()
	if err != nil {
		t.Fatal(err)
	}
	if len(probes) != 18 {
		t.Errorf("got %d probes, want 18", len(probes))
	}
	for _, p := range probes {
		if p.Pos.X <= lo.X || p.Pos.Y <= lo.Y || p.Pos.Z <= lo.Z || p.Pos.X >= hi.X || p.Pos.Y >= hi.Y || p.Pos.Z >= hi.Z {
			t.Errorf("probe %d at %v outside the room", p.ID, p.Pos)
		}
	}
}

// writeQuadGLB saves a unit quad in the XZ plane facing up.
func writeQuadGLB(t *testing.T, dir string) {
	t.Helper()
	positions := []float32{0, 0, 0, 0, 0, 1, 1, 0, 1, 1, 0, 0}
	indices := []uint16{0, 1, 2, 0, 2, 3}
	var data []byte
	for _, f := range positions {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
	}
	for _, i := range indices {
		data = binary.LittleEndian.AppendUint16(data, i)
	}

	doc := &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0"},
		Buffers: []*gltf.Buffer{{ByteLength: len(data), Data: data}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: 48},
			{Buffer: 0, ByteOffset: 48, ByteLength: 12},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: gltf.Index(0), ComponentType: gltf.ComponentFloat, Count: 4, Type: gltf.AccessorVec3,
				Min: []float64{0, 0, 0}, Max: []float64{1, 0, 1}},
			{BufferView: gltf.Index(1), ComponentType: gltf.ComponentUshort, Count: 6, Type: gltf.AccessorScalar},
		},
		Meshes: []*gltf.Mesh{{
			Name: "quad",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]int{gltf.POSITION: 0},
				Indices:    gltf.Index(1),
			}},
		}},
	}
	if err := gltf.SaveBinary(doc, filepath.Join(dir, "quad.glb")); err != nil {
		t.Fatalf("SaveBinary: %v", err)
	}
}

func TestLoadResolvesModelPaths(t *testing.T) {
	dir := t.TempDir()
	writeQuadGLB(t, dir)
	cfgJSON := `{
		"models": [
			{"kind": "gltf", "path": "quad.glb", "translate": [0, 1, 0], "scale": 3},
			{"kind": "plane", "center": [0, 0, 0], "size": [4, 4], "color": [0.2, 0.9, 0.2]}
		],
		"lights": [{"direction": [0, -1, 0], "colour": [1, 1, 1], "luminance": 2}],
		"probes": {"layout": "grid", "min": [-1, 0.5, -1], "max": [1, 2, 1], "counts": [2, 2, 2], "jitter": 0.01},
		"bake": {"tileSize": 8, "workers": 2}
	}`
	path := filepath.Join(dir, "bake.json")
	if err := os.WriteFile(path, []byte(cfgJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts := cfg.BakeOptions(); opts.TileSize != 8 || opts.Workers != 2 {
		t.Errorf("bake options = %+v", opts)
	}

	s, err := cfg.Scene()
	if err != nil {
		t.Fatalf("Scene: %v", err)
	}
	if len(s.Models) != 2 {
		t.Fatalf("got %d models", len(s.Models))
	}
	lo, hi := s.Models[0].WorldBounds()
	if lo.Sub(math3d.V3(0, 1, 0)).Len() > 1e-6 || hi.Sub(math3d.V3(3, 1, 3)).Len() > 1e-6 {
		t.Errorf("placed quad bounds %v %v", lo, hi)
	}
	if c := s.Models[1].Mesh.FaceMaterial(0).BaseColor; c != [4]float64{0.2, 0.9, 0.2, 1} {
		t.Errorf("plane colour = %v", c)
	}

	// The same config parsed outside its directory cannot find the mesh.
	data, _ := os.ReadFile(path)
	parsed, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parsed.Scene(); err == nil {
		t.Error("relative path resolved without a config directory")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Errorf("Load error = %v, want not exist", err)
	}
}
