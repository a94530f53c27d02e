package lightsector

import (
	"math"

	"github.com/taigrr/prt/pkg/math3d"
	"gonum.org/v1/gonum/floats"
)

// bakeSkyCoefficients projects the sky visibility seen by each probe onto
// second-order spherical harmonics. Samples must be grouped by probe.
func bakeSkyCoefficients(sky []skySample, probes []Probe) {
	acc := make([]math3d.SHCoeffs3, len(probes))
	weightSum := make([]float64, len(probes))

	for _, s := range sky {
		w := texelWeight(s.UV)
		y := math3d.SHProjectDirection3(s.Dir)
		floats.AddScaled(acc[s.ProbeID][:], s.Visibility*w, y[:])
		weightSum[s.ProbeID] += w
	}

	for i := range probes {
		if weightSum[i] > 0 {
			floats.Scale(4*math.Pi/weightSum[i], acc[i][:])
		}
		probes[i].SHSkyVisibility = acc[i]
	}
}
