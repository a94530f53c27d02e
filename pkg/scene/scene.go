// Package scene describes the static world a light sector bakes: models,
// the directional sun and the ambient sky.
package scene

import (
	"errors"
	"fmt"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/models"
)

// ErrLightCount is returned when a scene does not hold exactly one light.
var ErrLightCount = errors.New("scene must contain exactly one directional light")

// Model is a mesh placed in the world.
type Model struct {
	Mesh  *models.Mesh
	World math3d.Mat4
}

// NewModel places mesh with the identity transform.
func NewModel(mesh *models.Mesh) *Model {
	return &Model{Mesh: mesh, World: math3d.Identity()}
}

// WorldBounds returns the world space AABB enclosing the transformed mesh bounds.
func (m *Model) WorldBounds() (min, max math3d.Vec3) {
	lo, hi := m.Mesh.GetBounds()
	for i := range 8 {
		corner := math3d.V3(lo.X, lo.Y, lo.Z)
		if i&1 != 0 {
			corner.X = hi.X
		}
		if i&2 != 0 {
			corner.Y = hi.Y
		}
		if i&4 != 0 {
			corner.Z = hi.Z
		}
		p := m.World.MulVec3(corner)
		if i == 0 {
			min, max = p, p
			continue
		}
		min, max = min.Min(p), max.Max(p)
	}
	return min, max
}

// Light is a directional light. Direction points from the light into the scene.
type Light struct {
	Direction math3d.Vec3
	Colour    math3d.Vec3
	Luminance float64
}

// Scene is the read-only input of a bake and of relighting.
type Scene struct {
	Models       []*Model
	Lights       []Light
	SkyColour    math3d.SHColour3
	SkyLuminance float64
}

// Sun returns the scene's single directional light.
func (s *Scene) Sun() (Light, error) {
	if len(s.Lights) != 1 {
		return Light{}, fmt.Errorf("%w: have %d", ErrLightCount, len(s.Lights))
	}
	return s.Lights[0], nil
}

// Bounds returns the world AABB of every model. ok is false for an empty scene.
func (s *Scene) Bounds() (min, max math3d.Vec3, ok bool) {
	for i, m := range s.Models {
		lo, hi := m.WorldBounds()
		if i == 0 {
			min, max = lo, hi
			continue
		}
		min, max = min.Min(lo), max.Max(hi)
	}
	return min, max, len(s.Models) > 0
}
