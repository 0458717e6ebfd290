package layout

import (
	"math"
	"sort"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	"gonum.org/v1/gonum/spatial/r3"
)

// Quality summarizes how well a finished layout satisfies its constraints.
type Quality struct {
	// CollisionCompliance is the fraction of node pairs at least
	// 2*radius - tolerance apart. 1 when there are fewer than two nodes.
	CollisionCompliance float64 `json:"collisionCompliance"`
	MeanLinkError       float64 `json:"meanLinkError"`
	MaxLinkError        float64 `json:"maxLinkError"`
	Components          int     `json:"components"`
	// Energy is the kinetic energy of the last tick before velocities were frozen.
	Energy float64 `json:"energy"`
}

// Measure computes the quality of positions against the links of cg.
func Measure(positions map[string]r3.Vec, cg *graph.ConnectionGraph, mainID string, opts *Options) Quality {
	o := opts.withDefaults()
	q := Quality{Components: len(cg.Components())}

	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	minSep := 2*o.CollisionRadius - o.CollisionTolerance
	var total, ok int
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			total++
			if r3.Norm(r3.Sub(positions[ids[i]], positions[ids[j]])) >= minSep {
				ok++
			}
		}
	}
	q.CollisionCompliance = 1
	if total > 0 {
		q.CollisionCompliance = float64(ok) / float64(total)
	}

	var sum float64
	var n int
	for _, p := range cg.Pairs() {
		a, aok := positions[p.Source]
		b, bok := positions[p.Target]
		if !aok || !bok {
			continue
		}
		rest := o.LinkDistance
		if p.Source == mainID || p.Target == mainID {
			rest = o.MainLinkDistance
		}
		e := math.Abs(r3.Norm(r3.Sub(a, b)) - rest)
		sum += e
		q.MaxLinkError = math.Max(q.MaxLinkError, e)
		n++
	}
	if n > 0 {
		q.MeanLinkError = sum / float64(n)
	}
	return q
}
