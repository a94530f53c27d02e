package lightsector

import (
	"context"
	"math"
	"runtime"

	"github.com/taigrr/prt/pkg/math3d"
	"golang.org/x/sync/errgroup"
)

// surfelSample is one captured texel that hit geometry.
type surfelSample struct {
	Pos     math3d.Vec3
	Normal  math3d.Vec3
	Albedo  math3d.Vec3
	ProbeID int
	Weights [math3d.AxisCount]float64
}

// skySample is one captured texel direction and whether the sky was seen.
type skySample struct {
	UV         math3d.Vec2
	Dir        math3d.Vec3
	Visibility float64
	ProbeID    int
}

// texelWeight compensates for the texel density of a cube face at uv in
// [-1, 1]². Summed over all six faces of an n×n cube map it approaches
// 4π·6n², the sample count times the sphere's solid angle.
func texelWeight(uv math3d.Vec2) float64 {
	t := uv.LenSq() + 1
	return 24 / (t * math.Sqrt(t))
}

// texelUV returns the face coordinates of texel (x, y) in a tile.
func texelUV(x, y, tile int) math3d.Vec2 {
	return math3d.V2(
		(float64(x)+0.5)/float64(tile)*2-1,
		(float64(y)+0.5)/float64(tile)*2-1,
	)
}

func decodeUnorm8(b []byte) math3d.Vec3 {
	return math3d.V3(float64(b[0]), float64(b[1]), float64(b[2])).Div(255)
}

// gatherSamples walks every texel of c. Probes are processed in parallel
// and concatenated in probe order, so the result does not depend on
// scheduling.
func gatherSamples(ctx context.Context, c *Capture, probes []Probe, workers int) ([]surfelSample, []skySample, error) {
	type probeSamples struct {
		surfels []surfelSample
		sky     []skySample
	}
	slots := make([]probeSamples, len(probes))

	g, ctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i := range probes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slots[i].surfels, slots[i].sky = gatherProbe(c, probes[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	texels := len(FaceOrder) * c.Tile * c.Tile
	surfels := make([]surfelSample, 0, texels*len(probes)/2)
	sky := make([]skySample, 0, texels*len(probes))
	for _, s := range slots {
		surfels = append(surfels, s.surfels...)
		sky = append(sky, s.sky...)
	}
	return surfels, sky, nil
}

func gatherProbe(c *Capture, p Probe) ([]surfelSample, []skySample) {
	tile := c.Tile
	var surfels []surfelSample
	sky := make([]skySample, 0, len(FaceOrder)*tile*tile)

	for f := range FaceOrder {
		view := c.view(p.ID, f)
		for x := range tile {
			for y := range tile {
				uv := texelUV(x, y, tile)
				px, py := f*tile+x, p.ID*tile+y

				a := c.Albedo.Pixels[c.Albedo.Offset(px, py):]
				visibility := float64(a[3]) / 255
				dir := view.orientation.MulVec3Dir(math3d.V3(uv.X, uv.Y, -1)).Normalize()

				if visibility < 0.5 {
					ndcZ := c.Depth.Depth(px, py)*2 - 1
					pos := view.invViewProj.MulVec3(math3d.V3(uv.X, uv.Y, ndcZ))
					normal := decodeUnorm8(c.Normal.Pixels[c.Normal.Offset(px, py):]).
						Scale(2).Sub(math3d.Splat3(1)).Normalize()

					s := surfelSample{
						Pos:     pos,
						Normal:  normal,
						Albedo:  decodeUnorm8(a),
						ProbeID: p.ID,
					}
					w := texelWeight(uv)
					sampleDir := pos.Sub(p.Pos).Normalize()
					for axis := range math3d.AxisCount {
						s.Weights[axis] = math.Max(math3d.Axis(axis).Dir().Dot(sampleDir), 0) * w
					}
					surfels = append(surfels, s)
				}

				sky = append(sky, skySample{UV: uv, Dir: dir, Visibility: visibility, ProbeID: p.ID})
			}
		}
	}
	return surfels, sky
}
