package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/ritzau/neural-portfolio/pkg/graph"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/lens"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"gopkg.in/yaml.v3"
)

// Formats accepted by WriteReport
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// NodePosition is one placed node
type NodePosition struct {
	ID    string  `json:"id" yaml:"id"`
	Type  string  `json:"type" yaml:"type"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Hops  int     `json:"hops" yaml:"hops"` // -1 when not connected to the main node
	Links int     `json:"links" yaml:"links"`
}

// QualityReport mirrors layout.Quality with stable field names
type QualityReport struct {
	CollisionCompliance float64 `json:"collisionCompliance" yaml:"collisionCompliance"`
	MeanLinkError       float64 `json:"meanLinkError" yaml:"meanLinkError"`
	MaxLinkError        float64 `json:"maxLinkError" yaml:"maxLinkError"`
	Components          int     `json:"components" yaml:"components"`
	Energy              float64 `json:"energy" yaml:"energy"`
}

// LayoutReport summarizes a computed layout
type LayoutReport struct {
	Data       string         `json:"data" yaml:"data"`
	Hash       string         `json:"hash" yaml:"hash"`
	Nodes      int            `json:"nodes" yaml:"nodes"`
	Links      int            `json:"links" yaml:"links"`
	DurationMs int64          `json:"durationMs" yaml:"durationMs"`
	Quality    QualityReport  `json:"quality" yaml:"quality"`
	Positions  []NodePosition `json:"positions" yaml:"positions"`
}

// BuildReport collects positions ordered by hop distance from the main node, then id.
func BuildReport(dataPath string, g *model.Graph, res layout.Result) LayoutReport {
	cg := graph.Build(g)

	var hops map[string]int
	if main, err := g.MainNode(); err == nil {
		hops = lens.HopDistances(cg, main.ID)
	}

	r := LayoutReport{
		Data:       dataPath,
		Hash:       res.Hash,
		Nodes:      g.Len(),
		Links:      len(cg.Pairs()),
		DurationMs: res.Duration.Milliseconds(),
		Quality:    QualityReport(res.Quality),
	}
	for _, id := range cg.Nodes() {
		n, _ := g.Node(id)
		p, ok := res.Positions[id]
		if !ok {
			continue
		}
		h, reached := hops[id]
		if !reached {
			h = -1
		}
		r.Positions = append(r.Positions, NodePosition{
			ID:    id,
			Type:  string(n.Type),
			X:     p.X,
			Y:     p.Y,
			Z:     p.Z,
			Hops:  h,
			Links: cg.Degree(id),
		})
	}
	sort.SliceStable(r.Positions, func(i, j int) bool {
		a, b := r.Positions[i], r.Positions[j]
		if a.Hops != b.Hops {
			if a.Hops < 0 || b.Hops < 0 {
				return b.Hops < 0 && a.Hops >= 0
			}
			return a.Hops < b.Hops
		}
		return a.ID < b.ID
	})
	return r
}

// WriteReport writes the report in the given format
func WriteReport(w io.Writer, format string, r LayoutReport) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		PrintLayoutReport(w, r)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", format, FormatText, FormatJSON, FormatYAML)
	}
}

// PrintLayoutReport prints a nicely formatted layout report with colors
func PrintLayoutReport(w io.Writer, r LayoutReport) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	// Header
	bold.Fprintln(w, "Neural Portfolio - Layout Report")
	bold.Fprintln(w, "================================")
	fmt.Fprintf(w, "Data: %s\n", r.Data)
	fmt.Fprintf(w, "Graph: %d nodes, %d links, %d component(s)\n", r.Nodes, r.Links, r.Quality.Components)
	fmt.Fprintf(w, "Computed in %dms\n", r.DurationMs)
	fmt.Fprintln(w)

	// Positions
	bold.Fprintln(w, "POSITIONS:")
	for _, p := range r.Positions {
		hops := "-"
		if p.Hops >= 0 {
			hops = fmt.Sprintf("%d", p.Hops)
		}
		cyan.Fprintf(w, "  %-20s", p.ID)
		fmt.Fprintf(w, " %-8s hops=%-2s links=%-2d (%7.2f, %7.2f, %7.2f)\n", p.Type, hops, p.Links, p.X, p.Y, p.Z)
	}
	fmt.Fprintln(w)

	if r.Quality.Components > 1 {
		yellow.Fprintf(w, "Warning: %d nodes are not connected to the rest of the graph\n", countUnreached(r.Positions))
	}
	fmt.Fprintf(w, "Link error: mean %.2f, max %.2f\n", r.Quality.MeanLinkError, r.Quality.MaxLinkError)

	// Summary with color based on collision compliance
	percentage := r.Quality.CollisionCompliance * 100
	summaryColor := green
	if percentage < 100.0 {
		summaryColor = yellow
	}
	if percentage < 95.0 {
		summaryColor = red
	}
	summaryColor.Fprintf(w, "Summary: %.1f%% of node pairs keep their distance\n", percentage)

	if percentage == 100.0 {
		green.Fprintln(w, "✓ No overlapping nodes")
	}
}

func countUnreached(positions []NodePosition) int {
	n := 0
	for _, p := range positions {
		if p.Hops < 0 {
			n++
		}
	}
	return n
}
