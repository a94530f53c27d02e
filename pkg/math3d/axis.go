package math3d

import "math"

// Axis names one of the six signed world axes. The numbering is also the
// index order of every six-entry per-axis array (ambient cubes, brick weights).
type Axis int

// Signed axes.
const (
	PositiveX Axis = iota
	NegativeX
	PositiveY
	NegativeY
	PositiveZ
	NegativeZ
)

// AxisCount is the number of signed axes.
const AxisCount = 6

var axisDirs = [AxisCount]Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

var axisNames = [AxisCount]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

// Dir returns the unit vector of the axis.
func (a Axis) Dir() Vec3 {
	return axisDirs[a]
}

func (a Axis) String() string {
	if a < 0 || a >= AxisCount {
		return "Axis(?)"
	}
	return axisNames[a]
}

// GreatestAxis returns the signed axis of v's largest magnitude component.
// Ties prefer X over Y over Z.
func GreatestAxis(v Vec3) Axis {
	ax, ay, az := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	switch {
	case ax >= ay && ax >= az:
		if v.X < 0 {
			return NegativeX
		}
		return PositiveX
	case ay >= az:
		if v.Y < 0 {
			return NegativeY
		}
		return PositiveY
	default:
		if v.Z < 0 {
			return NegativeZ
		}
		return PositiveZ
	}
}
