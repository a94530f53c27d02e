// Package config loads bake descriptions from JSON: the models, sun and
// sky of a scene, the probe layout and the bake options.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/taigrr/prt/pkg/lightsector"
	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/models"
	"github.com/taigrr/prt/pkg/scene"
)

// Vec3 is a JSON friendly [x, y, z] triple.
type Vec3 [3]float64

// V returns v as a math3d vector.
func (v Vec3) V() math3d.Vec3 { return math3d.V3(v[0], v[1], v[2]) }

// Model kinds.
const (
	ModelGLTF  = "gltf"
	ModelBox   = "box"
	ModelRoom  = "room"
	ModelPlane = "plane"
)

// Probe layouts.
const (
	LayoutTest         = "test"
	LayoutCrytekSponza = "crytek-sponza"
	LayoutOldSponza    = "old-sponza"
	LayoutGrid         = "grid"
	LayoutRandom       = "random"
	LayoutPoints       = "points"
)

// ModelCfg places one mesh. Box and room span Min..Max, a plane is centred
// on Center with Size along X and Z, and gltf loads Path relative to the
// config file.
type ModelCfg struct {
	Kind   string     `json:"kind"`
	Name   string     `json:"name,omitempty"`
	Path   string     `json:"path,omitempty"`
	Min    Vec3       `json:"min,omitempty"`
	Max    Vec3       `json:"max,omitempty"`
	Center Vec3       `json:"center,omitempty"`
	Size   [2]float64 `json:"size,omitempty"`
	// Color overrides the base colour of procedural meshes; defaults to 0.8 grey.
	Color *Vec3 `json:"color,omitempty"`

	Translate Vec3    `json:"translate,omitempty"`
	RotDeg    Vec3    `json:"rotDeg,omitempty"` // pitch (X), yaw (Y), roll (Z)
	Scale     float64 `json:"scale,omitempty"`
}

type LightCfg struct {
	Direction Vec3    `json:"direction"`
	Colour    Vec3    `json:"colour"`
	Luminance float64 `json:"luminance"`
}

type SkyCfg struct {
	Colour    Vec3    `json:"colour"`
	Luminance float64 `json:"luminance"`
}

// ProbesCfg selects a probe layout. Min, Max and Counts describe a grid;
// Count, Scale and Seed a random scatter; Points an explicit list. Jitter
// moves every probe of any layout by up to that distance per axis.
type ProbesCfg struct {
	Layout string  `json:"layout"`
	Min    Vec3    `json:"min,omitempty"`
	Max    Vec3    `json:"max,omitempty"`
	Counts [3]int  `json:"counts,omitempty"`
	Count  int     `json:"count,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
	Seed   uint64  `json:"seed,omitempty"`
	Jitter float64 `json:"jitter,omitempty"`
	Points []Vec3  `json:"points,omitempty"`
}

// BakeCfg mirrors lightsector.BakeOptions. Zero fields take the defaults.
type BakeCfg struct {
	TileSize        int     `json:"tileSize,omitempty"`
	Near            float64 `json:"near,omitempty"`
	Far             float64 `json:"far,omitempty"`
	SurfelSize      float64 `json:"surfelSize,omitempty"`
	SurfelsPerBrick int     `json:"surfelsPerBrick,omitempty"`
	Workers         int     `json:"workers,omitempty"`
}

type Config struct {
	Models  []ModelCfg `json:"models"`
	Lights  []LightCfg `json:"lights"`
	Sky     SkyCfg     `json:"sky"`
	Probes  ProbesCfg  `json:"probes"`
	Bake    BakeCfg    `json:"bake"`
	GIBoost float64    `json:"giBoost,omitempty"`

	dir string // resolves relative model paths
}

// Load reads, defaults and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a config and applies defaults. Relative model paths resolve
// against the working directory.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is a lit grey room holding a box, sampled by a jittered grid.
func Default() *Config {
	grey := Vec3{0.8, 0.8, 0.8}
	cfg := &Config{
		Models: []ModelCfg{
			{Kind: ModelRoom, Name: "room", Min: Vec3{-6, 0, -6}, Max: Vec3{6, 6, 6}, Color: &grey},
			{Kind: ModelBox, Name: "crate", Min: Vec3{-1, 0, -1}, Max: Vec3{1, 2, 1}, Color: &Vec3{0.8, 0.3, 0.2}},
		},
		Lights: []LightCfg{{Direction: Vec3{0.3, -1, 0.2}, Colour: Vec3{1, 0.95, 0.9}, Luminance: 3}},
		Sky:    SkyCfg{Colour: Vec3{0.4, 0.6, 1}, Luminance: 1},
		Probes: ProbesCfg{
			Layout: LayoutGrid,
			Min:    Vec3{-4.5, 0.5, -4.5},
			Max:    Vec3{4.5, 5, 4.5},
			Counts: [3]int{3, 2, 3},
			Jitter: 0.05,
			Seed:   1,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	def := lightsector.DefaultBakeOptions()
	if c.Bake.TileSize <= 0 {
		c.Bake.TileSize = def.TileSize
	}
	if c.Bake.Near <= 0 {
		c.Bake.Near = def.Near
	}
	if c.Bake.Far <= 0 {
		c.Bake.Far = def.Far
	}
	if c.Bake.SurfelSize <= 0 {
		c.Bake.SurfelSize = def.SurfelSize
	}
	if c.Bake.SurfelsPerBrick <= 0 {
		c.Bake.SurfelsPerBrick = def.SurfelsPerBrick
	}
	if c.GIBoost == 0 {
		c.GIBoost = 1
	}
	if c.Sky.Luminance == 0 {
		c.Sky.Luminance = 1
	}
	for i := range c.Lights {
		if c.Lights[i].Colour == (Vec3{}) {
			c.Lights[i].Colour = Vec3{1, 1, 1}
		}
	}
}

// Validate reports the first problem that would stop a bake.
func (c *Config) Validate() error {
	if len(c.Lights) != 1 {
		return fmt.Errorf("config needs exactly one light, has %d", len(c.Lights))
	}
	if c.Lights[0].Direction.V().LenSq() == 0 {
		return fmt.Errorf("light direction is zero")
	}
	for i, m := range c.Models {
		if err := m.validate(); err != nil {
			return fmt.Errorf("model %d: %w", i, err)
		}
	}
	if err := c.Probes.validate(); err != nil {
		return fmt.Errorf("probes: %w", err)
	}
	return c.BakeOptions().Validate()
}

// BakeOptions returns the bake settings.
func (c *Config) BakeOptions() lightsector.BakeOptions {
	return lightsector.BakeOptions{
		TileSize:        c.Bake.TileSize,
		Near:            c.Bake.Near,
		Far:             c.Bake.Far,
		SurfelSize:      c.Bake.SurfelSize,
		SurfelsPerBrick: c.Bake.SurfelsPerBrick,
		Workers:         c.Bake.Workers,
	}
}

// Scene builds the models, sun and sky.
func (c *Config) Scene() (*scene.Scene, error) {
	s := &scene.Scene{
		SkyColour:    math3d.SHUniformColour3(c.Sky.Colour.V()),
		SkyLuminance: c.Sky.Luminance,
	}
	for _, l := range c.Lights {
		s.Lights = append(s.Lights, scene.Light{
			Direction: l.Direction.V().Normalize(),
			Colour:    l.Colour.V(),
			Luminance: l.Luminance,
		})
	}
	for i, mc := range c.Models {
		m, err := mc.Build(c.dir)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		s.Models = append(s.Models, m)
	}
	return s, nil
}

func (m ModelCfg) validate() error {
	switch m.Kind {
	case ModelGLTF:
		if m.Path == "" {
			return fmt.Errorf("gltf model needs a path")
		}
	case ModelBox, ModelRoom:
		lo, hi := m.Min.V(), m.Max.V()
		if hi.X <= lo.X || hi.Y <= lo.Y || hi.Z <= lo.Z {
			return fmt.Errorf("%s max %v must exceed min %v on every axis", m.Kind, m.Max, m.Min)
		}
	case ModelPlane:
		if m.Size[0] <= 0 || m.Size[1] <= 0 {
			return fmt.Errorf("plane size must be positive, got %v", m.Size)
		}
	default:
		return fmt.Errorf("unknown model kind %q", m.Kind)
	}
	if m.Scale < 0 {
		return fmt.Errorf("scale must not be negative, got %g", m.Scale)
	}
	return nil
}

// World returns the model's placement, translate · rotate · scale.
func (m ModelCfg) World() math3d.Mat4 {
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	const k = math.Pi / 180
	rot := math3d.RotateY(m.RotDeg[1] * k).
		Mul(math3d.RotateX(m.RotDeg[0] * k)).
		Mul(math3d.RotateZ(m.RotDeg[2] * k))
	return math3d.Translate(m.Translate.V()).Mul(rot).Mul(math3d.Scale(math3d.Splat3(scale)))
}

// Build loads or generates the mesh and places it. dir resolves relative
// gltf paths.
func (m ModelCfg) Build(dir string) (*scene.Model, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	name := m.Name
	if name == "" {
		name = m.Kind
	}
	mat := models.DefaultMaterial
	if m.Color != nil {
		mat = models.Material{Name: name, BaseColor: [4]float64{m.Color[0], m.Color[1], m.Color[2], 1}}
	}

	var mesh *models.Mesh
	switch m.Kind {
	case ModelGLTF:
		path := m.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		var err error
		if mesh, err = models.LoadGLB(path); err != nil {
			return nil, err
		}
	case ModelBox:
		mesh = models.NewBox(name, m.Min.V(), m.Max.V(), mat)
	case ModelRoom:
		mesh = models.NewRoom(name, m.Min.V(), m.Max.V(), mat)
	case ModelPlane:
		mesh = models.NewPlane(name, m.Center.V(), m.Size[0], m.Size[1], mat)
	}

	model := scene.NewModel(mesh)
	model.World = m.World()
	return model, nil
}

func (p ProbesCfg) validate() error {
	switch p.Layout {
	case LayoutTest, LayoutCrytekSponza, LayoutOldSponza:
	case LayoutGrid:
		for axis, n := range p.Counts {
			if n <= 0 {
				return fmt.Errorf("grid count on axis %d must be positive, got %d", axis, n)
			}
		}
	case LayoutRandom:
		if p.Count <= 0 || p.Scale <= 0 {
			return fmt.Errorf("random layout needs a positive count and scale, got %d and %g", p.Count, p.Scale)
		}
	case LayoutPoints:
		if len(p.Points) == 0 {
			return fmt.Errorf("points layout has no points")
		}
	case "":
		return fmt.Errorf("no layout given")
	default:
		return fmt.Errorf("unknown layout %q", p.Layout)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative, got %g", p.Jitter)
	}
	return nil
}

// ProbeLayout returns the configured probe positions.
func (c *Config) ProbeLayout() ([]lightsector.Probe, error) {
	p := c.Probes
	if err := p.validate(); err != nil {
		return nil, err
	}

	var probes []lightsector.Probe
	switch p.Layout {
	case LayoutTest:
		probes = lightsector.TestProbe()
	case LayoutCrytekSponza:
		probes = lightsector.CrytekSponzaProbes()
	case LayoutOldSponza:
		probes = lightsector.OldSponzaProbes()
	case LayoutGrid:
		probes = lightsector.GridProbes(p.Min.V(), p.Max.V(), p.Counts)
	case LayoutRandom:
		probes = lightsector.RandomProbes(p.Count, p.Scale, p.Seed)
	case LayoutPoints:
		for i, pt := range p.Points {
			probes = append(probes, lightsector.Probe{ID: i, Pos: pt.V()})
		}
	}
	if p.Jitter > 0 {
		probes = lightsector.JitterProbes(probes, p.Jitter, p.Seed)
	}
	return probes, nil
}
