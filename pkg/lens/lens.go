// Package lens resolves which connections are rendered for a set of visible node
// types, bridging hidden nodes with indirect edges.
package lens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ritzau/neural-portfolio/pkg/model"
)

// Filter is a set of visible node types. The zero Filter shows every type.
type Filter struct {
	types map[model.NodeType]bool
}

// NewFilter returns a filter showing only the given types. With no types every
// type is visible.
func NewFilter(types ...model.NodeType) Filter {
	if len(types) == 0 {
		return Filter{}
	}
	f := Filter{types: make(map[model.NodeType]bool, len(types))}
	for _, t := range types {
		f.types[t] = true
	}
	return f
}

// ParseFilter parses a comma separated list of node types, e.g. "main,skill".
func ParseFilter(s string) (Filter, error) {
	var types []model.NodeType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := model.ParseNodeType(part)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
		}
		types = append(types, t)
	}
	return NewFilter(types...), nil
}

// Visible reports whether nodes of type t are shown
func (f Filter) Visible(t model.NodeType) bool {
	if f.types == nil {
		return true
	}
	return f.types[t]
}

// Types returns the visible types in declaration order of model.NodeTypes.
func (f Filter) Types() []model.NodeType {
	var out []model.NodeType
	for _, t := range model.NodeTypes {
		if f.Visible(t) {
			out = append(out, t)
		}
	}
	return out
}

// Key returns a canonical string for the filter
func (f Filter) Key() string {
	types := f.Types()
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (f Filter) String() string {
	return f.Key()
}
