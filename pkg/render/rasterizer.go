package render

import (
	"image"
	"math"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/scene"
)

// Rasterizer draws Gouraud shaded models into a preview framebuffer.
type Rasterizer struct {
	camera        *Camera
	fb            *Framebuffer
	zbuffer       []float64    // Depth buffer (1D array, row-major)
	CullingStats  CullingStats // Statistics for debugging/benchmarking
	CullBackfaces bool         // If false, render both sides of triangles
}

// CullingStats tracks frustum culling performance.
type CullingStats struct {
	MeshesTested int // Total meshes tested for culling
	MeshesCulled int // Meshes culled (not rendered)
	MeshesDrawn  int // Meshes that passed culling
}

// VertexShader returns the lit colour of a world space vertex.
type VertexShader func(pos, normal, albedo math3d.Vec3) math3d.Vec3

// LambertShader lights vertices with a fixed ambient term plus N·L diffuse
// from a light shining along lightDir.
func LambertShader(lightDir math3d.Vec3, ambient float64) VertexShader {
	toLight := lightDir.Normalize().Negate()
	return func(_, normal, albedo math3d.Vec3) math3d.Vec3 {
		intensity := ambient + (1-ambient)*math.Max(0, normal.Dot(toLight))
		return albedo.Scale(intensity)
	}
}

// NewRasterizer creates a new rasterizer.
func NewRasterizer(camera *Camera, fb *Framebuffer) *Rasterizer {
	r := &Rasterizer{
		camera:        camera,
		fb:            fb,
		CullBackfaces: true,
	}
	r.Resize()
	return r
}

// Resize resizes the depth buffer to match the framebuffer.
func (r *Rasterizer) Resize() {
	r.zbuffer = make([]float64, r.fb.Width*r.fb.Height)
	r.ClearDepth()
}

// ClearDepth clears the Z-buffer (call before each frame).
func (r *Rasterizer) ClearDepth() {
	// Use copy-doubling for faster clearing
	n := len(r.zbuffer)
	if n == 0 {
		return
	}
	r.zbuffer[0] = 1
	for i := 1; i < n; i *= 2 {
		copy(r.zbuffer[i:], r.zbuffer[:i])
	}
}

// ResetCullingStats resets the culling statistics (call once per frame).
func (r *Rasterizer) ResetCullingStats() {
	r.CullingStats = CullingStats{}
}

// DrawModel renders model with colours computed per vertex by shade.
// It returns false when the model was frustum culled.
func (r *Rasterizer) DrawModel(model *scene.Model, shade VertexShader) bool {
	viewProj := r.camera.ViewProjectionMatrix()

	r.CullingStats.MeshesTested++
	lo, hi := model.WorldBounds()
	if !NewFrustumFromMatrix(viewProj).IntersectAABB(NewAABB(lo, hi)) {
		r.CullingStats.MeshesCulled++
		return false
	}
	r.CullingStats.MeshesDrawn++

	normalMat, _ := model.World.Inverse()
	normalMat = normalMat.Transpose()
	mvp := viewProj.Mul(model.World)
	vp := viewport{rect: image.Rect(0, 0, r.fb.Width, r.fb.Height), flipY: true}

	mesh := model.Mesh
	for fi := range mesh.TriangleCount() {
		mat := mesh.FaceMaterial(fi)
		albedo := math3d.V3(mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2])

		var tri [3]clipVertex
		for k, vi := range mesh.GetFace(fi) {
			pos, n, _ := mesh.GetVertex(vi)
			c := shade(model.World.MulVec3(pos), normalMat.MulVec3Dir(n).Normalize(), albedo)
			tri[k] = clipVertex{
				pos: mvp.MulVec4(math3d.V4FromV3(pos, 1)),
				v:   varyings{c.X, c.Y, c.Z},
			}
		}

		rasterizeTriangle(vp, tri, r.CullBackfaces, func(x, y int, depth float64, v *varyings) {
			idx := y*r.fb.Width + x
			if depth >= r.zbuffer[idx] {
				return
			}
			r.zbuffer[idx] = depth
			r.fb.Pixels[idx] = ColorFromVec3(math3d.V3(v[0], v[1], v[2]))
		})
	}
	return true
}
