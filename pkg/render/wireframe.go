package render

import (
	"github.com/taigrr/prt/pkg/math3d"
)

// Wireframe renders 3D lines and markers over a framebuffer.
type Wireframe struct {
	camera *Camera
	fb     *Framebuffer
}

// NewWireframe creates a new wireframe renderer.
func NewWireframe(camera *Camera, fb *Framebuffer) *Wireframe {
	return &Wireframe{
		camera: camera,
		fb:     fb,
	}
}

// DrawLine3D draws a line in 3D space, clipped against the near plane.
func (w *Wireframe) DrawLine3D(p1, p2 math3d.Vec3, color Color) {
	vp := w.camera.ViewProjectionMatrix()
	a := vp.MulVec4(math3d.V4FromV3(p1, 1))
	b := vp.MulVec4(math3d.V4FromV3(p2, 1))

	da, db := nearDistance(a), nearDistance(b)
	switch {
	case da < 0 && db < 0:
		return
	case da < 0:
		a = a.Lerp(b, da/(da-db))
	case db < 0:
		b = b.Lerp(a, db/(db-da))
	}

	x1, y1 := w.toScreen(a)
	x2, y2 := w.toScreen(b)
	w.fb.DrawLine(x1, y1, x2, y2, color)
}

func (w *Wireframe) toScreen(clip math3d.Vec4) (int, int) {
	ndc := clip.PerspectiveDivide()
	x := (ndc.X + 1) * 0.5 * float64(w.fb.Width)
	y := (1 - ndc.Y) * 0.5 * float64(w.fb.Height)
	return int(x), int(y)
}

// DrawPoint draws a point as a small 3D cross.
func (w *Wireframe) DrawPoint(pos math3d.Vec3, size float64, color Color) {
	h := size / 2
	w.DrawLine3D(pos.Sub(math3d.V3(h, 0, 0)), pos.Add(math3d.V3(h, 0, 0)), color)
	w.DrawLine3D(pos.Sub(math3d.V3(0, h, 0)), pos.Add(math3d.V3(0, h, 0)), color)
	w.DrawLine3D(pos.Sub(math3d.V3(0, 0, h)), pos.Add(math3d.V3(0, 0, h)), color)
}

// DrawMarker draws a filled square of the given pixel size centred on pos.
func (w *Wireframe) DrawMarker(pos math3d.Vec3, size int, color Color) {
	x, y, _, ok := w.camera.WorldToScreen(pos, w.fb.Width, w.fb.Height)
	if !ok {
		return
	}
	w.fb.DrawRect(int(x)-size/2, int(y)-size/2, size, size, color)
}
