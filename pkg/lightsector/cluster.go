package lightsector

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"runtime"
	"slices"

	"github.com/taigrr/prt/pkg/math3d"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// clusterKey is a grid cell plus the dominant axis of the normals in it.
type clusterKey struct {
	X, Y, Z int
	Dir     math3d.Axis
}

// Hash returns the FNV-1a hash of the key's coordinates and direction.
func (k clusterKey) Hash() uint64 {
	var buf [13]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(k.X)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(k.Y)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(int32(k.Z)))
	buf[12] = byte(k.Dir)
	h := fnv.New64a()
	h.Write(buf[:])
	return h.Sum64()
}

// surfelKey buckets a sample position. Floor keeps negative coordinates
// from piling up in cell 0.
func surfelKey(pos, normal math3d.Vec3, size float64) clusterKey {
	return clusterKey{
		X:   int(math.Floor(pos.X / size)),
		Y:   int(math.Floor(pos.Y / size)),
		Z:   int(math.Floor(pos.Z / size)),
		Dir: math3d.GreatestAxis(normal),
	}
}

// brickKey is the brick containing surfel cell k.
func brickKey(k clusterKey, surfelsPerBrick int) clusterKey {
	return clusterKey{
		X:   floorDiv(k.X, surfelsPerBrick),
		Y:   floorDiv(k.Y, surfelsPerBrick),
		Z:   floorDiv(k.Z, surfelsPerBrick),
		Dir: k.Dir,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}

type parentWeights struct {
	probeID int
	weights [math3d.AxisCount]float64
}

// bakeSurfel accumulates every sample that fell into one surfel cell.
type bakeSurfel struct {
	key     clusterKey
	first   int // index of the first sample, fixes output order
	count   int
	surfel  Surfel
	parents []parentWeights
}

type bakeBrick struct {
	surfels []*bakeSurfel
}

// clusterResult is the flattened output of surfel clustering.
type clusterResult struct {
	Surfels []Surfel
	Bricks  []SurfelBrick
	Factors []SurfelBrickFactor
}

type clusterer struct {
	surfelSize      float64
	surfelsPerBrick int
	tile            int
	workers         int
}

// cluster reduces surface samples to surfels, groups them into bricks and
// derives per probe brick factors. probes get their brick factor ranges set.
func (c clusterer) cluster(ctx context.Context, samples []surfelSample, probes []Probe) (*clusterResult, error) {
	surfels, err := c.clusterSurfels(ctx, samples)
	if err != nil {
		return nil, err
	}
	bricks := c.clusterBricks(surfels, probes)

	res := &clusterResult{Bricks: make([]SurfelBrick, 0, len(bricks))}
	for _, b := range bricks {
		res.Bricks = append(res.Bricks, SurfelBrick{
			SurfelRangeStart: len(res.Surfels),
			SurfelCount:      len(b.surfels),
		})
		for _, s := range b.surfels {
			res.Surfels = append(res.Surfels, s.surfel)
		}
	}

	res.Factors = brickFactors(bricks, probes)
	normalizeBrickWeights(res.Factors, c.tile)
	return res, nil
}

// clusterSurfels buckets samples by surfelKey. Buckets are sharded by key
// hash across workers; each shard walks samples in order, so sums match a
// sequential pass exactly.
func (c clusterer) clusterSurfels(ctx context.Context, samples []surfelSample) ([]*bakeSurfel, error) {
	keys := make([]clusterKey, len(samples))
	hashes := make([]uint64, len(samples))
	for i, s := range samples {
		keys[i] = surfelKey(s.Pos, s.Normal, c.surfelSize)
		hashes[i] = keys[i].Hash()
	}

	shards := c.workers
	if shards <= 0 {
		shards = runtime.GOMAXPROCS(0)
	}
	out := make([][]*bakeSurfel, shards)

	g, ctx := errgroup.WithContext(ctx)
	for shard := range shards {
		g.Go(func() error {
			index := make(map[clusterKey]*bakeSurfel)
			for i, s := range samples {
				if hashes[i]%uint64(shards) != uint64(shard) {
					continue
				}
				if i%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				parent := parentWeights{probeID: s.ProbeID, weights: s.Weights}
				bs, ok := index[keys[i]]
				if !ok {
					bs = &bakeSurfel{
						key:   keys[i],
						first: i,
						surfel: Surfel{
							Pos:            s.Pos,
							Normal:         s.Normal,
							Albedo:         s.Albedo,
							NearestProbeID: s.ProbeID,
						},
						count:   1,
						parents: []parentWeights{parent},
					}
					index[keys[i]] = bs
					out[shard] = append(out[shard], bs)
					continue
				}
				bs.surfel.Pos = bs.surfel.Pos.Add(s.Pos)
				bs.surfel.Normal = bs.surfel.Normal.Add(s.Normal)
				bs.surfel.Albedo = bs.surfel.Albedo.Add(s.Albedo)
				bs.parents = append(bs.parents, parent)
				bs.count++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var surfels []*bakeSurfel
	for _, s := range out {
		surfels = append(surfels, s...)
	}
	slices.SortFunc(surfels, func(a, b *bakeSurfel) int { return a.first - b.first })
	return surfels, nil
}

// clusterBricks averages each surfel, resolves its nearest probe and groups
// surfels into bricks in first-seen order.
func (c clusterer) clusterBricks(surfels []*bakeSurfel, probes []Probe) []*bakeBrick {
	index := make(map[clusterKey]int)
	var bricks []*bakeBrick

	for _, s := range surfels {
		n := float64(s.count)
		s.surfel.Pos = s.surfel.Pos.Div(n)
		s.surfel.Normal = s.surfel.Normal.Div(n).Normalize()
		s.surfel.Albedo = s.surfel.Albedo.Div(n)
		s.count = 1

		for _, p := range s.parents {
			if p.probeID == s.surfel.NearestProbeID {
				continue
			}
			current := probes[s.surfel.NearestProbeID].Pos.Distance(s.surfel.Pos)
			if probes[p.probeID].Pos.Distance(s.surfel.Pos) < current {
				s.surfel.NearestProbeID = p.probeID
			}
		}

		key := brickKey(s.key, c.surfelsPerBrick)
		i, ok := index[key]
		if !ok {
			i = len(bricks)
			index[key] = i
			bricks = append(bricks, &bakeBrick{})
		}
		bricks[i].surfels = append(bricks[i].surfels, s)
	}
	return bricks
}

// brickFactors sums each brick's sample weights per probe and sorts the
// factors so every probe owns one contiguous range.
func brickFactors(bricks []*bakeBrick, probes []Probe) []SurfelBrickFactor {
	type probeFactor struct {
		probeID int
		factor  SurfelBrickFactor
	}
	var all []probeFactor

	for brickID, b := range bricks {
		seen := make(map[int]int)
		for _, s := range b.surfels {
			for _, p := range s.parents {
				i, ok := seen[p.probeID]
				if !ok {
					i = len(all)
					seen[p.probeID] = i
					all = append(all, probeFactor{probeID: p.probeID, factor: SurfelBrickFactor{BrickID: brickID}})
				}
				floats.Add(all[i].factor.BrickWeights[:], p.weights[:])
			}
		}
	}

	slices.SortStableFunc(all, func(a, b probeFactor) int { return a.probeID - b.probeID })

	for i := range probes {
		probes[i].BrickFactorRangeStart = 0
		probes[i].BrickFactorCount = 0
	}
	factors := make([]SurfelBrickFactor, len(all))
	for i, f := range all {
		p := &probes[f.probeID]
		if p.BrickFactorCount == 0 {
			p.BrickFactorRangeStart = i
		}
		p.BrickFactorCount++
		factors[i] = f.factor
	}
	return factors
}

// normalizeBrickWeights divides every weight by the per probe sample count,
// 6·tile². That makes one face's weights sum to roughly π for a probe
// surrounded by geometry; the approximation is within a fraction of a
// percent at typical tile sizes.
func normalizeBrickWeights(factors []SurfelBrickFactor, tile int) {
	scale := 1 / float64(len(FaceOrder)*tile*tile)
	for i := range factors {
		floats.Scale(scale, factors[i].BrickWeights[:])
	}
}
