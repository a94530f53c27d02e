package render

import (
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/models"
	"github.com/taigrr/prt/pkg/scene"
)

func newTestRasterizer() (*Rasterizer, *Framebuffer) {
	fb := NewFramebuffer(32, 32)
	cam := NewCamera()
	cam.SetAspectRatio(1)
	cam.SetPosition(math3d.V3(0, 0, 5))
	cam.LookAt(math3d.Zero3())
	return NewRasterizer(cam, fb), fb
}

func TestDrawModelWritesPixels(t *testing.T) {
	r, fb := newTestRasterizer()
	fb.Clear(ColorBlack)

	box := scene.NewModel(models.NewBox("box", math3d.Splat3(-1), math3d.Splat3(1), models.DefaultMaterial))
	if !r.DrawModel(box, LambertShader(math3d.V3(0, 0, -1), 0.2)) {
		t.Fatal("box in front of the camera was culled")
	}

	if c := fb.GetPixel(16, 16); c == ColorBlack {
		t.Error("centre pixel was not drawn")
	}
	if c := fb.GetPixel(0, 0); c != ColorBlack {
		t.Errorf("corner pixel = %v, want background", c)
	}
	if r.CullingStats.MeshesDrawn != 1 {
		t.Errorf("stats = %+v", r.CullingStats)
	}
}

func TestDrawModelCullsOffscreen(t *testing.T) {
	r, fb := newTestRasterizer()
	fb.Clear(ColorBlack)

	behind := scene.NewModel(models.NewBox("box", math3d.V3(-1, -1, 8), math3d.V3(1, 1, 10), models.DefaultMaterial))
	if r.DrawModel(behind, LambertShader(math3d.V3(0, 0, -1), 0.2)) {
		t.Error("box behind the camera was drawn")
	}
	if r.CullingStats.MeshesCulled != 1 || r.CullingStats.MeshesTested != 1 {
		t.Errorf("stats = %+v", r.CullingStats)
	}

	r.ResetCullingStats()
	if r.CullingStats != (CullingStats{}) {
		t.Error("ResetCullingStats left counters")
	}
}

func TestLambertShader(t *testing.T) {
	shade := LambertShader(math3d.V3(0, -1, 0), 0.25)
	lit := shade(math3d.Zero3(), math3d.V3(0, 1, 0), math3d.Splat3(1))
	if !lit.ApproxEqual(math3d.Splat3(1), 1e-12) {
		t.Errorf("facing the light = %v, want 1", lit)
	}
	unlit := shade(math3d.Zero3(), math3d.V3(0, -1, 0), math3d.Splat3(1))
	if !unlit.ApproxEqual(math3d.Splat3(0.25), 1e-12) {
		t.Errorf("facing away = %v, want ambient", unlit)
	}
}
