package render

import (
	"image"
	"math"
	"testing"

	"github.com/taigrr/prt/pkg/math3d"
)

func clipTri(a, b, c math3d.Vec4) [3]clipVertex {
	return [3]clipVertex{{pos: a}, {pos: b}, {pos: c}}
}

func TestClipNear(t *testing.T) {
	front := func(x, y float64) math3d.Vec4 { return math3d.V4(x, y, 0, 1) }
	behind := func(x, y float64) math3d.Vec4 { return math3d.V4(x, y, -3, 1) }

	tests := []struct {
		name string
		tri  [3]clipVertex
		want int
	}{
		{"all in front", clipTri(front(0, 0), front(1, 0), front(0, 1)), 3},
		{"one behind", clipTri(behind(0, 0), front(1, 0), front(0, 1)), 4},
		{"two behind", clipTri(behind(0, 0), behind(1, 0), front(0, 1)), 3},
		{"all behind", clipTri(behind(0, 0), behind(1, 0), behind(0, 1)), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out [4]clipVertex
			n := clipNear(tt.tri, &out)
			if n != tt.want {
				t.Fatalf("clipNear returned %d vertices, want %d", n, tt.want)
			}
			for i := range n {
				if d := nearDistance(out[i].pos); d < -1e-12 {
					t.Errorf("vertex %d is behind the near plane (%f)", i, d)
				}
			}
		})
	}
}

func TestClipNearSharedEdge(t *testing.T) {
	a := math3d.V4(0.3, -0.7, 0.2, 1)
	b := math3d.V4(-0.4, 0.9, -2.9, 1.3)
	c := math3d.V4(0.8, 0.5, 0.4, 1)
	d := math3d.V4(-0.9, -0.6, 0.1, 1)

	// Edge a-b crosses the near plane; it is walked a to b in the first
	// triangle and b to a in the second.
	var first, second [4]clipVertex
	if n := clipNear(clipTri(a, b, c), &first); n != 4 {
		t.Fatalf("first triangle clipped to %d vertices, want 4", n)
	}
	if n := clipNear(clipTri(b, a, d), &second); n != 4 {
		t.Fatalf("second triangle clipped to %d vertices, want 4", n)
	}
	if p, q := first[1].pos, second[0].pos; p != q {
		t.Errorf("shared edge clipped to %v and %v", p, q)
	}
	if dist := nearDistance(first[1].pos); math.Abs(dist) > 1e-12 {
		t.Errorf("clipped vertex is %g from the near plane", dist)
	}
}

func TestRasterizeCoversViewport(t *testing.T) {
	const size = 8
	vp := viewport{rect: image.Rect(size, 0, 2*size, size)}
	var hits [2 * size][size]int

	frag := func(x, y int, depth float64, _ *varyings) {
		hits[x][y]++
		if math.Abs(depth-0.5) > 1e-12 {
			t.Errorf("depth at (%d, %d) = %f, want 0.5", x, y, depth)
		}
	}
	a, b := math3d.V4(-1, -1, 0, 1), math3d.V4(1, -1, 0, 1)
	c, d := math3d.V4(1, 1, 0, 1), math3d.V4(-1, 1, 0, 1)
	rasterizeTriangle(vp, clipTri(a, b, c), true, frag)
	rasterizeTriangle(vp, clipTri(a, c, d), true, frag)

	for x := range 2 * size {
		for y := range size {
			inside := x >= size
			if inside && hits[x][y] != 1 {
				t.Errorf("pixel (%d, %d) covered %d times, want once", x, y, hits[x][y])
			}
			if !inside && hits[x][y] != 0 {
				t.Errorf("pixel (%d, %d) outside the viewport was written", x, y)
			}
		}
	}
}

func TestRasterizeSharedEdgesWatertight(t *testing.T) {
	// A grid of quads with wobbly interior vertices, split along alternating
	// diagonals, must cover every pixel exactly once.
	const (
		size  = 37
		cells = 5
	)
	vertex := func(i, j int) math3d.Vec4 {
		x := -1 + 2*float64(i)/cells
		y := -1 + 2*float64(j)/cells
		if i > 0 && i < cells {
			x += 0.05 * math.Sin(float64(3*i+7*j))
		}
		if j > 0 && j < cells {
			y += 0.04 * math.Cos(float64(5*i+2*j))
		}
		return math3d.V4(x, y, 0, 1)
	}

	for _, tt := range []struct {
		name string
		rect image.Rectangle
	}{
		{"square", image.Rect(0, 0, size, size)},
		{"offset tile", image.Rect(3*size, size, 4*size, 2*size)},
		{"wide", image.Rect(0, 0, 2*size+1, size)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			vp := viewport{rect: tt.rect}
			hits := make(map[image.Point]int)
			frag := func(x, y int, _ float64, _ *varyings) {
				hits[image.Pt(x, y)]++
			}
			for i := range cells {
				for j := range cells {
					a, b := vertex(i, j), vertex(i+1, j)
					c, d := vertex(i+1, j+1), vertex(i, j+1)
					if (i+j)%2 == 0 {
						rasterizeTriangle(vp, clipTri(a, b, c), false, frag)
						rasterizeTriangle(vp, clipTri(a, c, d), false, frag)
					} else {
						rasterizeTriangle(vp, clipTri(a, b, d), false, frag)
						rasterizeTriangle(vp, clipTri(b, c, d), false, frag)
					}
				}
			}

			for y := tt.rect.Min.Y; y < tt.rect.Max.Y; y++ {
				for x := tt.rect.Min.X; x < tt.rect.Max.X; x++ {
					if n := hits[image.Pt(x, y)]; n != 1 {
						t.Errorf("pixel (%d, %d) covered %d times, want once", x, y, n)
					}
				}
			}
			if len(hits) != tt.rect.Dx()*tt.rect.Dy() {
				t.Errorf("%d pixels written, want %d", len(hits), tt.rect.Dx()*tt.rect.Dy())
			}
		})
	}
}

func TestRasterizeBackfaceCulling(t *testing.T) {
	vp := viewport{rect: image.Rect(0, 0, 16, 16)}
	// Clockwise in NDC.
	tri := clipTri(math3d.V4(-1, -1, 0, 1), math3d.V4(-1, 1, 0, 1), math3d.V4(1, -1, 0, 1))

	count := 0
	rasterizeTriangle(vp, tri, true, func(int, int, float64, *varyings) { count++ })
	if count != 0 {
		t.Errorf("culled triangle produced %d fragments", count)
	}
	rasterizeTriangle(vp, tri, false, func(int, int, float64, *varyings) { count++ })
	if count == 0 {
		t.Error("triangle without culling produced no fragments")
	}
}

func TestRasterizePerspectiveCorrect(t *testing.T) {
	const size = 32
	proj := math3d.Perspective(math.Pi/2, 1, 0.1, 100)
	inv, ok := proj.Inverse()
	if !ok {
		t.Fatal("projection not invertible")
	}

	// A slanted quad whose first varying is its view space X coordinate.
	corners := []math3d.Vec3{
		math3d.V3(-4, -4, -2), math3d.V3(4, -4, -8), math3d.V3(4, 4, -8), math3d.V3(-4, 4, -2),
	}
	var cv [4]clipVertex
	for i, p := range corners {
		cv[i] = clipVertex{pos: proj.MulVec4(math3d.V4FromV3(p, 1)), v: varyings{p.X}}
	}

	vp := viewport{rect: image.Rect(0, 0, size, size)}
	checked := 0
	frag := func(x, y int, depth float64, v *varyings) {
		ndc := math3d.V3((float64(x)+0.5)/size*2-1, (float64(y)+0.5)/size*2-1, depth*2-1)
		view := inv.MulVec3(ndc)
		if math.Abs(view.X-v[0]) > 1e-6 {
			t.Errorf("pixel (%d, %d): varying %f, unprojected X %f", x, y, v[0], view.X)
		}
		checked++
	}
	rasterizeTriangle(vp, [3]clipVertex{cv[0], cv[1], cv[2]}, false, frag)
	rasterizeTriangle(vp, [3]clipVertex{cv[0], cv[2], cv[3]}, false, frag)
	if checked == 0 {
		t.Fatal("no fragments generated")
	}
}
