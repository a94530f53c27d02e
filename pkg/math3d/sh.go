package math3d

import "math"

// SHCoeffs3 holds the 9 coefficients of a 2nd order (3 band) real
// spherical harmonic expansion.
type SHCoeffs3 [9]float64

// SHColour3 is an RGB triple of SH expansions.
type SHColour3 struct {
	R, G, B SHCoeffs3
}

// SHProjectDirection3 evaluates the 9 basis functions in direction dir,
// which must be normalized.
func SHProjectDirection3(dir Vec3) SHCoeffs3 {
	x, y, z := dir.X, dir.Y, dir.Z
	return SHCoeffs3{
		0.282095,
		0.488603 * y,
		0.488603 * z,
		0.488603 * x,
		1.092548 * x * y,
		1.092548 * y * z,
		0.315392 * (3*z*z - 1),
		1.092548 * x * z,
		0.546274 * (x*x - y*y),
	}
}

// Dot returns the inner product of two expansions.
func (c SHCoeffs3) Dot(o SHCoeffs3) float64 {
	var sum float64
	for i := range c {
		sum += c[i] * o[i]
	}
	return sum
}

// Evaluate reconstructs the expanded function in direction dir.
func (c SHCoeffs3) Evaluate(dir Vec3) float64 {
	return c.Dot(SHProjectDirection3(dir))
}

// SHConstant3 returns the projection of the constant function v.
func SHConstant3(v float64) SHCoeffs3 {
	return SHCoeffs3{v * 2 * math.Sqrt(math.Pi)}
}

// Evaluate reconstructs the RGB colour in direction dir.
func (c SHColour3) Evaluate(dir Vec3) Vec3 {
	basis := SHProjectDirection3(dir)
	return Vec3{c.R.Dot(basis), c.G.Dot(basis), c.B.Dot(basis)}
}

// SHUniformColour3 returns the projection of a direction independent colour.
func SHUniformColour3(c Vec3) SHColour3 {
	return SHColour3{R: SHConstant3(c.X), G: SHConstant3(c.Y), B: SHConstant3(c.Z)}
}
