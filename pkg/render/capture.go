package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"github.com/taigrr/prt/pkg/math3d"
	"github.com/taigrr/prt/pkg/models"
	"github.com/taigrr/prt/pkg/scene"
	"golang.org/x/sync/errgroup"
)

// Attachment names one of the capture render targets.
type Attachment int

const (
	AttachmentAlbedo Attachment = iota // RGBA8, alpha holds sky visibility
	AttachmentNormal                   // RGB8, world normal encoded as n*0.5+0.5
	AttachmentDepth                    // 24-bit unsigned normalized depth
)

func (a Attachment) String() string {
	switch a {
	case AttachmentAlbedo:
		return "albedo"
	case AttachmentNormal:
		return "normal"
	case AttachmentDepth:
		return "depth"
	}
	return fmt.Sprintf("Attachment(%d)", int(a))
}

// PixelFormat is the layout of one pixel in PixelData.
type PixelFormat int

const (
	FormatRGBA8 PixelFormat = iota
	FormatRGB8
	FormatDepth24
)

// BytesPerPixel returns the size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8, FormatDepth24:
		return 3
	}
	panic(fmt.Sprintf("render: unknown pixel format %d", int(f)))
}

// PixelData is a CPU copy of a render target. Rows are stored bottom-up:
// row 0 holds NDC y = -1 of every tile in it.
type PixelData struct {
	Width, Height int
	Format        PixelFormat
	Pixels        []byte
}

// Offset returns the byte offset of pixel (x, y).
func (p PixelData) Offset(x, y int) int {
	return (y*p.Width + x) * p.Format.BytesPerPixel()
}

// Depth decodes the 24-bit depth at (x, y) to [0, 1].
func (p PixelData) Depth(x, y int) float64 {
	return DecodeDepth24(p.Pixels[p.Offset(x, y):])
}

// Image converts the data to a top-down image, mapping depth to grey.
func (p PixelData) Image() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		row := p.Height - 1 - y
		for x := range p.Width {
			o := p.Offset(x, y)
			var c color.RGBA
			switch p.Format {
			case FormatRGBA8:
				c = color.RGBA{p.Pixels[o], p.Pixels[o+1], p.Pixels[o+2], 255}
			case FormatRGB8:
				c = RGB(p.Pixels[o], p.Pixels[o+1], p.Pixels[o+2])
			case FormatDepth24:
				g := p.Pixels[o+2]
				c = RGB(g, g, g)
			}
			img.SetRGBA(x, row, c)
		}
	}
	return img
}

const depth24Max = 1<<24 - 1

// EncodeDepth24 stores d in [0, 1] as a little-endian 24-bit unorm.
func EncodeDepth24(dst []byte, d float64) {
	v := uint32(max(0, min(1, d))*depth24Max + 0.5)
	dst[0], dst[1], dst[2] = byte(v), byte(v>>8), byte(v>>16)
}

// DecodeDepth24 is the inverse of EncodeDepth24.
func DecodeDepth24(src []byte) float64 {
	v := uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
	return float64(v) / depth24Max
}

// FaceInstance is one cube face draw: the face's view-projection matrix and
// the atlas tile it renders into.
type FaceInstance struct {
	ViewProj math3d.Mat4
	Viewport image.Rectangle
}

// ErrNoCapture is returned when drawing or reading outside BeginCapture/EndCapture.
var ErrNoCapture = errors.New("render: no capture in progress")

// SkyClearColor is the albedo target clear value: green, with alpha 255
// marking the texel as sky.
var SkyClearColor = color.RGBA{0, 255, 0, 255}

// CaptureStats counts work done by the software capture backend.
type CaptureStats struct {
	Instances       int
	InstancesCulled int
	Triangles       int
}

// SoftwareBackend renders probe captures on the CPU. Instances of one draw
// rasterize in parallel, so their viewports must not overlap.
type SoftwareBackend struct {
	// Workers bounds concurrent instance rasterization; 0 uses GOMAXPROCS.
	Workers int
	// Stats accumulates over every draw since BeginCapture.
	Stats CaptureStats

	width, height int
	albedo        []byte
	normal        []byte
	depth         []float64
	textures      map[image.Image]*Texture
	active        bool
}

// NewSoftwareBackend creates an idle capture backend.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{textures: make(map[image.Image]*Texture)}
}

// BeginCapture allocates and clears width x height targets.
func (b *SoftwareBackend) BeginCapture(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("render: invalid capture size %dx%d", width, height)
	}
	b.width, b.height = width, height
	b.albedo = make([]byte, width*height*4)
	b.normal = make([]byte, width*height*3)
	b.depth = make([]float64, width*height)
	for i := range b.depth {
		b.depth[i] = 1
		b.albedo[i*4+0] = SkyClearColor.R
		b.albedo[i*4+1] = SkyClearColor.G
		b.albedo[i*4+2] = SkyClearColor.B
		b.albedo[i*4+3] = SkyClearColor.A
	}
	b.Stats = CaptureStats{}
	b.active = true
	return nil
}

// EndCapture releases the render targets.
func (b *SoftwareBackend) EndCapture() {
	b.albedo, b.normal, b.depth = nil, nil, nil
	clear(b.textures)
	b.active = false
}

// captureVertex is a model vertex in world space.
type captureVertex struct {
	pos    math3d.Vec3
	normal math3d.Vec3
	uv     math3d.Vec2
}

// DrawInstanced renders model once per instance.
func (b *SoftwareBackend) DrawInstanced(model *scene.Model, instances []FaceInstance) error {
	if !b.active {
		return ErrNoCapture
	}
	mesh := model.Mesh
	bounds := image.Rect(0, 0, b.width, b.height)
	for _, inst := range instances {
		if !inst.Viewport.In(bounds) {
			return fmt.Errorf("render: viewport %v outside %dx%d capture", inst.Viewport, b.width, b.height)
		}
	}

	normalMat, ok := model.World.Inverse()
	if !ok {
		return fmt.Errorf("render: model %q has a singular world matrix", mesh.Name)
	}
	normalMat = normalMat.Transpose()

	verts := make([]captureVertex, mesh.VertexCount())
	for i := range verts {
		pos, n, uv := mesh.GetVertex(i)
		verts[i] = captureVertex{
			pos:    model.World.MulVec3(pos),
			normal: normalMat.MulVec3Dir(n).Normalize(),
			uv:     uv,
		}
	}

	textures := make([]*Texture, mesh.MaterialCount())
	for i := range textures {
		img := mesh.Materials[i].BaseMap
		if img == nil {
			continue
		}
		if b.textures[img] == nil {
			b.textures[img] = TextureFromImage(img)
		}
		textures[i] = b.textures[img]
	}

	lo, hi := model.WorldBounds()
	box := NewAABB(lo, hi)

	var g errgroup.Group
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	culled := make([]bool, len(instances))
	for i, inst := range instances {
		if !NewFrustumFromMatrix(inst.ViewProj).IntersectAABB(box) {
			culled[i] = true
			continue
		}
		g.Go(func() error {
			b.drawInstance(mesh, verts, textures, inst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, c := range culled {
		b.Stats.Instances++
		if c {
			b.Stats.InstancesCulled++
		} else {
			b.Stats.Triangles += mesh.TriangleCount()
		}
	}
	return nil
}

func (b *SoftwareBackend) drawInstance(mesh *models.Mesh, verts []captureVertex, textures []*Texture, inst FaceInstance) {
	vp := viewport{rect: inst.Viewport}

	for fi := range mesh.TriangleCount() {
		face := mesh.GetFace(fi)
		var tri [3]clipVertex
		for k, vi := range face {
			v := verts[vi]
			tri[k] = clipVertex{
				pos: inst.ViewProj.MulVec4(math3d.V4FromV3(v.pos, 1)),
				v:   varyings{v.normal.X, v.normal.Y, v.normal.Z, v.uv.X, v.uv.Y},
			}
		}

		mat := mesh.FaceMaterial(fi)
		base := math3d.V3(mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2])
		var tex *Texture
		if mi := mesh.GetFaceMaterial(fi); mi >= 0 && mi < len(textures) {
			tex = textures[mi]
		}

		rasterizeTriangle(vp, tri, false, func(x, y int, depth float64, v *varyings) {
			idx := y*b.width + x
			if depth >= b.depth[idx] {
				return
			}
			b.depth[idx] = depth

			albedo := base
			if tex != nil {
				albedo = albedo.Mul(tex.SampleVec3(v[3], v[4]))
			}
			a := b.albedo[idx*4 : idx*4+4]
			a[0], a[1], a[2], a[3] = unorm8(albedo.X), unorm8(albedo.Y), unorm8(albedo.Z), 0

			n := math3d.V3(v[0], v[1], v[2]).Normalize().Scale(0.5).Add(math3d.Splat3(0.5))
			nb := b.normal[idx*3 : idx*3+3]
			nb[0], nb[1], nb[2] = unorm8(n.X), unorm8(n.Y), unorm8(n.Z)
		})
	}
}

// ReadPixels copies one render target to the CPU.
func (b *SoftwareBackend) ReadPixels(a Attachment) (PixelData, error) {
	if !b.active {
		return PixelData{}, ErrNoCapture
	}
	p := PixelData{Width: b.width, Height: b.height}
	switch a {
	case AttachmentAlbedo:
		p.Format = FormatRGBA8
		p.Pixels = append([]byte(nil), b.albedo...)
	case AttachmentNormal:
		p.Format = FormatRGB8
		p.Pixels = append([]byte(nil), b.normal...)
	case AttachmentDepth:
		p.Format = FormatDepth24
		p.Pixels = make([]byte, b.width*b.height*3)
		for i, d := range b.depth {
			EncodeDepth24(p.Pixels[i*3:], d)
		}
	default:
		return PixelData{}, fmt.Errorf("render: unknown attachment %v", a)
	}
	return p, nil
}
