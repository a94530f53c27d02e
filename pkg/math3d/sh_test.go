package math3d

import (
	"math"
	"testing"
)

func TestSHConstantReconstructs(t *testing.T) {
	c := SHConstant3(1)
	for _, dir := range []Vec3{V3(1, 0, 0), V3(0, -1, 0), V3(1, 1, 1).Normalize()} {
		if got := c.Evaluate(dir); math.Abs(got-1) > 1e-5 {
			t.Errorf("Evaluate(%v) = %f, want 1", dir, got)
		}
	}
}

func TestSHBasisOrthonormal(t *testing.T) {
	// Midpoint quadrature over the sphere in (theta, phi).
	const n = 200
	var gram [9][9]float64
	for i := range n {
		theta := (float64(i) + 0.5) / n * math.Pi
		for j := range 2 * n {
			phi := (float64(j) + 0.5) / (2 * n) * 2 * math.Pi
			dir := V3(math.Sin(theta)*math.Cos(phi), math.Sin(theta)*math.Sin(phi), math.Cos(theta))
			dw := math.Sin(theta) * (math.Pi / n) * (math.Pi / n)
			y := SHProjectDirection3(dir)
			for a := range 9 {
				for b := range 9 {
					gram[a][b] += y[a] * y[b] * dw
				}
			}
		}
	}
	for a := range 9 {
		for b := range 9 {
			want := 0.0
			if a == b {
				want = 1
			}
			if math.Abs(gram[a][b]-want) > 1e-3 {
				t.Errorf("<Y%d, Y%d> = %f, want %f", a, b, gram[a][b], want)
			}
		}
	}
}

func TestSHUniformColour(t *testing.T) {
	c := SHUniformColour3(V3(0.5, 0.25, 1))
	got := c.Evaluate(V3(0, 0, 1))
	if !got.ApproxEqual(V3(0.5, 0.25, 1), 1e-5) {
		t.Errorf("Evaluate = %v", got)
	}
}
