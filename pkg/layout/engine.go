package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"gonum.org/v1/gonum/spatial/r3"
)

// Result is a finished layout.
type Result struct {
	Positions map[string]r3.Vec
	Quality   Quality
	Hash      string
	Duration  time.Duration
	Reused    bool
}

// Observer is notified after every Layout call.
type Observer interface {
	ObserveLayout(Result)
}

// Engine runs layouts and memoizes the result per graph structure.
type Engine struct {
	opts     Options
	observer Observer

	mu   sync.Mutex
	last *Result
}

// NewEngine creates an engine with the given options. observer may be nil.
func NewEngine(opts *Options, observer Observer) *Engine {
	return &Engine{opts: opts.withDefaults(), observer: observer}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Layout computes positions for g. When the structure of g is unchanged since the
// previous call the previous positions are returned with Reused set.
func (e *Engine) Layout(g *model.Graph) (Result, error) {
	main, err := g.MainNode()
	if err != nil {
		return Result{}, fmt.Errorf("layout: %w", err)
	}

	normalized := model.NormalizeConnections(g)
	hash := StructureHash(normalized)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last != nil && e.last.Hash == hash {
		res := *e.last
		res.Positions = copyPositions(e.last.Positions)
		res.Reused = true
		res.Duration = 0
		logging.Debug("layout reused", "hash", hash[:12])
		e.notify(res)
		return res, nil
	}

	start := time.Now()
	cg := graph.Build(normalized)
	sim := NewSimulation(normalized, cg, &e.opts)
	for sim.Ticks() < e.opts.Iterations {
		sim.Tick()
	}
	energy := sim.KineticEnergy()
	sim.Stop()

	positions := sim.Positions()
	q := Measure(positions, cg, main.ID, &e.opts)
	q.Energy = energy

	res := Result{
		Positions: positions,
		Quality:   q,
		Hash:      hash,
		Duration:  time.Since(start),
	}
	stored := res
	stored.Positions = copyPositions(positions)
	e.last = &stored

	logging.Info("layout computed",
		"nodes", normalized.Len(),
		"links", len(cg.Pairs()),
		"compliance", fmt.Sprintf("%.3f", q.CollisionCompliance),
		"duration", res.Duration)
	e.notify(res)
	return res, nil
}

// Reset drops the memoized result so the next Layout call recomputes.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = nil
}

func (e *Engine) notify(res Result) {
	if e.observer != nil {
		e.observer.ObserveLayout(res)
	}
}

// StructureHash hashes node ids, node types and undirected connection pairs.
// Labels, colors and details do not affect the layout and are ignored.
func StructureHash(g *model.Graph) string {
	var lines []string
	for _, n := range g.Nodes {
		lines = append(lines, "n:"+n.ID+":"+string(n.Type))
		for _, c := range n.Connections {
			if g.Has(c) && c != n.ID {
				lines = append(lines, "e:"+graph.PairKey(n.ID, c))
			}
		}
	}
	sort.Strings(lines)
	lines = dedupSorted(lines)

	h := sha256.New()
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

func dedupSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}

func copyPositions(in map[string]r3.Vec) map[string]r3.Vec {
	out := make(map[string]r3.Vec, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
