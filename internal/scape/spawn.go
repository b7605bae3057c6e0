package scape

import (
	"math"
	"sort"
)

// Obstacle is the horizontal footprint of a pipe as seen by spawn placement.
type Obstacle struct {
	X     float64
	Width float64
}

// SafeSpawnResolver picks the horizontal coordinate used for every bird of a
// generation so that a restored pipe layout does not kill them on the first
// tick. Placement is greedy first-fit in ascending x order.
type SafeSpawnResolver struct {
	DefaultX     float64
	Margin       float64
	MinClearance float64
	ScreenWidth  float64
	EdgeInset    float64
}

func DefaultSafeSpawnResolver(g Geometry) SafeSpawnResolver {
	return SafeSpawnResolver{
		DefaultX:     230,
		Margin:       20,
		MinClearance: 100,
		ScreenWidth:  g.ScreenWidth,
		EdgeInset:    100,
	}
}

func (r SafeSpawnResolver) Resolve(obstacles []Obstacle) float64 {
	if len(obstacles) == 0 {
		return r.DefaultX
	}

	sorted := append([]Obstacle(nil), obstacles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].X < sorted[j].X
	})

	for i := 0; i < len(sorted)-1; i++ {
		gapStart := sorted[i].X + sorted[i].Width + r.Margin
		gapEnd := sorted[i+1].X - r.Margin
		if gapEnd > gapStart {
			return math.Min(math.Floor((gapStart+gapEnd)/2), r.ScreenWidth-r.EdgeInset)
		}
	}

	if first := sorted[0]; first.X > r.MinClearance {
		return math.Floor(first.X / 2)
	}
	return r.DefaultX
}

func ObstaclesFromPipes(g Geometry, pipes []*Pipe) []Obstacle {
	out := make([]Obstacle, 0, len(pipes))
	for _, p := range pipes {
		out = append(out, Obstacle{X: p.X, Width: g.PipeWidth})
	}
	return out
}
