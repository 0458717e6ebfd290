package layout

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"gonum.org/v1/gonum/spatial/r3"
)

// body is one simulated node
type body struct {
	id    string
	pos   r3.Vec
	vel   r3.Vec
	fixed *r3.Vec
}

// link is a spring between two bodies
type link struct {
	source, target int
	distance       float64
	bias           float64 // share of the correction applied to the target
}

// Simulation is a velocity-Verlet style N-body simulation in three dimensions with
// link, many-body, centering and collision forces.
type Simulation struct {
	opts   Options
	bodies []body
	links  []link
	index  map[string]int
	rng    *rand.Rand

	alpha      float64
	alphaDecay float64
	ticks      int
	stopped    bool
}

// NewSimulation places every node of g at a random position inside the start cube and
// pins the main node at the origin. Links come from the deduplicated connection graph.
func NewSimulation(g *model.Graph, cg *graph.ConnectionGraph, opts *Options) *Simulation {
	o := opts.withDefaults()

	seed := o.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	s := &Simulation{
		opts:       o,
		index:      make(map[string]int, g.Len()),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		alpha:      1,
		alphaDecay: 1 - math.Pow(o.AlphaMin, 1/float64(o.Iterations)),
	}

	mainID := ""
	if main, err := g.MainNode(); err == nil {
		mainID = main.ID
	}

	for _, node := range g.Nodes {
		b := body{
			id: node.ID,
			pos: r3.Vec{
				X: (s.rng.Float64()*2 - 1) * o.InitialSpread,
				Y: (s.rng.Float64()*2 - 1) * o.InitialSpread,
				Z: (s.rng.Float64()*2 - 1) * o.InitialSpread,
			},
		}
		if node.ID == mainID {
			origin := r3.Vec{}
			b.fixed = &origin
			b.pos = origin
		}
		s.index[node.ID] = len(s.bodies)
		s.bodies = append(s.bodies, b)
	}

	counts := make([]int, len(s.bodies))
	pairs := cg.Pairs()
	for _, p := range pairs {
		counts[s.index[p.Source]]++
		counts[s.index[p.Target]]++
	}
	for _, p := range pairs {
		src, srcOK := s.index[p.Source]
		tgt, tgtOK := s.index[p.Target]
		if !srcOK || !tgtOK {
			continue
		}
		distance := o.LinkDistance
		if p.Source == mainID || p.Target == mainID {
			distance = o.MainLinkDistance
		}
		s.links = append(s.links, link{
			source:   src,
			target:   tgt,
			distance: distance,
			bias:     float64(counts[src]) / float64(counts[src]+counts[tgt]),
		})
	}

	return s
}

// Run performs the fixed number of ticks and then stops the simulation.
func (s *Simulation) Run() {
	for s.ticks < s.opts.Iterations && !s.stopped {
		s.Tick()
	}
	s.Stop()
}

// Tick advances the simulation by one step.
func (s *Simulation) Tick() {
	if s.stopped {
		return
	}
	s.alpha += (0 - s.alpha) * s.alphaDecay

	s.applyLinks()
	s.applyCharge()
	s.applyCenter()
	s.applyCollision()

	keep := 1 - s.opts.VelocityDecay
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.fixed != nil {
			b.pos = *b.fixed
			b.vel = r3.Vec{}
			continue
		}
		b.vel = r3.Scale(keep, b.vel)
		b.pos = r3.Add(b.pos, b.vel)
	}
	s.ticks++
}

// Stop freezes all velocities; further ticks are ignored.
func (s *Simulation) Stop() {
	for i := range s.bodies {
		s.bodies[i].vel = r3.Vec{}
	}
	s.stopped = true
}

// Alpha returns the current cooling parameter
func (s *Simulation) Alpha() float64 {
	return s.alpha
}

// Ticks returns the number of ticks performed
func (s *Simulation) Ticks() int {
	return s.ticks
}

// KineticEnergy returns the sum of squared velocities.
func (s *Simulation) KineticEnergy() float64 {
	var e float64
	for _, b := range s.bodies {
		e += r3.Norm2(b.vel)
	}
	return e
}

// Positions returns the current position of every node
func (s *Simulation) Positions() map[string]r3.Vec {
	out := make(map[string]r3.Vec, len(s.bodies))
	for _, b := range s.bodies {
		out[b.id] = b.pos
	}
	return out
}

func (s *Simulation) applyLinks() {
	for _, l := range s.links {
		src, tgt := &s.bodies[l.source], &s.bodies[l.target]

		d := r3.Sub(r3.Add(tgt.pos, tgt.vel), r3.Add(src.pos, src.vel))
		d = s.jiggleZero(d)
		length := r3.Norm(d)
		k := (length - l.distance) / length * s.alpha * s.opts.LinkStrength
		d = r3.Scale(k, d)

		tgt.vel = r3.Sub(tgt.vel, r3.Scale(l.bias, d))
		src.vel = r3.Add(src.vel, r3.Scale(1-l.bias, d))
	}
}

func (s *Simulation) applyCharge() {
	minDist2 := s.opts.ChargeDistanceMin * s.opts.ChargeDistanceMin
	for i := range s.bodies {
		bi := &s.bodies[i]
		for j := range s.bodies {
			if i == j {
				continue
			}
			d := r3.Sub(s.bodies[j].pos, bi.pos)
			l := r3.Norm2(d)
			if l == 0 {
				d = s.jiggleVec()
				l = r3.Norm2(d)
			}
			if l < minDist2 {
				l = math.Sqrt(minDist2 * l)
			}
			bi.vel = r3.Add(bi.vel, r3.Scale(s.opts.ChargeStrength*s.alpha/l, d))
		}
	}
}

func (s *Simulation) applyCenter() {
	if len(s.bodies) == 0 {
		return
	}
	var sum r3.Vec
	for _, b := range s.bodies {
		sum = r3.Add(sum, b.pos)
	}
	shift := r3.Scale(s.opts.CenterStrength*s.alpha/float64(len(s.bodies)), sum)
	for i := range s.bodies {
		s.bodies[i].pos = r3.Sub(s.bodies[i].pos, shift)
	}
}

func (s *Simulation) applyCollision() {
	r := s.opts.CollisionRadius
	reach := 2 * r
	for i := range s.bodies {
		bi := &s.bodies[i]
		next := r3.Add(bi.pos, bi.vel)
		for j := i + 1; j < len(s.bodies); j++ {
			bj := &s.bodies[j]
			d := r3.Sub(next, r3.Add(bj.pos, bj.vel))
			l := r3.Norm2(d)
			if l >= reach*reach {
				continue
			}
			if l == 0 {
				d = s.jiggleVec()
				l = r3.Norm2(d)
			}
			l = math.Sqrt(l)
			d = r3.Scale((reach-l)/l*s.opts.CollisionStrength, d)
			// Equal radii split the correction evenly.
			bi.vel = r3.Add(bi.vel, r3.Scale(0.5, d))
			bj.vel = r3.Sub(bj.vel, r3.Scale(0.5, d))
		}
	}
}

func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}

func (s *Simulation) jiggleVec() r3.Vec {
	return r3.Vec{X: s.jiggle(), Y: s.jiggle(), Z: s.jiggle()}
}

func (s *Simulation) jiggleZero(v r3.Vec) r3.Vec {
	if v.X == 0 {
		v.X = s.jiggle()
	}
	if v.Y == 0 {
		v.Y = s.jiggle()
	}
	if v.Z == 0 {
		v.Z = s.jiggle()
	}
	return v
}
