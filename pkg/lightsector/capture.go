package lightsector

import (
	"fmt"
	"image"
	"math"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/render"
	"github.com/taigrr/prt/pkg/scene"
)

// CaptureBackend renders probe cube maps into an atlas and reads them back.
// render.SoftwareBackend is the CPU implementation.
type CaptureBackend interface {
	BeginCapture(width, height int) error
	DrawInstanced(model *scene.Model, instances []render.FaceInstance) error
	ReadPixels(a render.Attachment) (render.PixelData, error)
	EndCapture()
}

// FaceOrder is the order of cube faces along an atlas row. Consecutive faces
// are 90 degree turns of the capture camera.
var FaceOrder = [6]math3d.Axis{
	math3d.NegativeZ, math3d.PositiveX, math3d.PositiveZ,
	math3d.NegativeX, math3d.PositiveY, math3d.NegativeY,
}

// faceRotation returns the camera pitch and yaw looking down a.
func faceRotation(a math3d.Axis) (pitch, yaw float64) {
	switch a {
	case math3d.NegativeZ:
		return 0, 0
	case math3d.PositiveX:
		return 0, -math.Pi / 2
	case math3d.PositiveZ:
		return 0, math.Pi
	case math3d.NegativeX:
		return 0, math.Pi / 2
	case math3d.PositiveY:
		return math.Pi / 2, 0
	case math3d.NegativeY:
		return -math.Pi / 2, 0
	}
	panic(fmt.Sprintf("lightsector: impossible cube face %v", a))
}

// faceCamera returns the 90 degree capture camera for one probe face.
func faceCamera(pos math3d.Vec3, face math3d.Axis, near, far float64) *render.Camera {
	cam := render.NewCamera()
	cam.SetFOV(math.Pi / 2)
	cam.SetAspectRatio(1)
	cam.SetClipPlanes(near, far)
	cam.SetPosition(pos)
	pitch, yaw := faceRotation(face)
	cam.SetRotation(pitch, yaw, 0)
	return cam
}

// faceView is everything the gatherer needs to turn a tile back into rays.
type faceView struct {
	viewProj    math3d.Mat4
	invViewProj math3d.Mat4
	orientation math3d.Mat4
}

// Capture is the read back probe atlas. Tile (probe p, face f) covers
// x in [f*Tile, (f+1)*Tile) and y in [p*Tile, (p+1)*Tile).
type Capture struct {
	Tile   int
	Probes int
	Albedo render.PixelData
	Normal render.PixelData
	Depth  render.PixelData

	views []faceView // probe-major, FaceOrder within a probe
}

// TileRect returns the atlas rectangle of one probe face.
func TileRect(tile, probe, face int) image.Rectangle {
	return image.Rect(face*tile, probe*tile, (face+1)*tile, (probe+1)*tile)
}

func (c *Capture) view(probe, face int) faceView {
	return c.views[probe*len(FaceOrder)+face]
}

// captureEnvironment renders every model once per probe face through b.
func captureEnvironment(b CaptureBackend, s *scene.Scene, probes []Probe, tile int, near, far float64) (*Capture, error) {
	c := &Capture{Tile: tile, Probes: len(probes)}
	instances := make([]render.FaceInstance, 0, len(probes)*len(FaceOrder))
	for _, p := range probes {
		for f, face := range FaceOrder {
			cam := faceCamera(p.Pos, face, near, far)
			vp := cam.ViewProjectionMatrix()
			inv, ok := vp.Inverse()
			if !ok {
				return nil, fmt.Errorf("probe %d face %v: singular view projection", p.ID, face)
			}
			c.views = append(c.views, faceView{viewProj: vp, invViewProj: inv, orientation: cam.Orientation()})
			instances = append(instances, render.FaceInstance{
				ViewProj: vp,
				Viewport: TileRect(tile, p.ID, f),
			})
		}
	}

	if err := b.BeginCapture(len(FaceOrder)*tile, len(probes)*tile); err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrCapture, err)
	}
	defer b.EndCapture()

	for _, m := range s.Models {
		if err := b.DrawInstanced(m, instances); err != nil {
			return nil, fmt.Errorf("%w: draw %q: %w", ErrCapture, m.Mesh.Name, err)
		}
	}

	targets := []struct {
		a      render.Attachment
		format render.PixelFormat
		dst    *render.PixelData
	}{
		{render.AttachmentAlbedo, render.FormatRGBA8, &c.Albedo},
		{render.AttachmentNormal, render.FormatRGB8, &c.Normal},
		{render.AttachmentDepth, render.FormatDepth24, &c.Depth},
	}
	for _, t := range targets {
		px, err := b.ReadPixels(t.a)
		if err != nil {
			return nil, fmt.Errorf("%w: read %v: %w", ErrCapture, t.a, err)
		}
		if px.Format != t.format || px.Width != len(FaceOrder)*tile || px.Height != len(probes)*tile {
			return nil, fmt.Errorf("%w: %v readback is %dx%d format %d", ErrCapture, t.a, px.Width, px.Height, px.Format)
		}
		*t.dst = px
	}
	return c, nil
}
