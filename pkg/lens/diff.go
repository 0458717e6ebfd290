package lens

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// EdgeDiff is the difference between two resolved edge sets
type EdgeDiff struct {
	Added    []Edge   `json:"added"`
	Removed  []string `json:"removed"`  // edge keys
	Modified []Edge   `json:"modified"` // same key, changed color, highlight or position
	Full     bool     `json:"full"`     // true if Added is the complete edge set
}

// Empty reports whether the diff carries no changes
func (d *EdgeDiff) Empty() bool {
	return !d.Full && len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// EdgeSnapshot is a cached edge set for diffing
type EdgeSnapshot struct {
	Hash  string
	Edges map[string]Edge // key -> edge
}

// ComputeHash identifies a resolution request by filter and hovered node.
func ComputeHash(filter Filter, hovered string) string {
	data := struct {
		Filter  string
		Hovered string
	}{
		Filter:  filter.Key(),
		Hovered: hovered,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}

// CreateSnapshot indexes edges by key and hashes their content
func CreateSnapshot(edges []Edge) *EdgeSnapshot {
	snapshot := &EdgeSnapshot{
		Edges: make(map[string]Edge, len(edges)),
	}
	for _, e := range edges {
		snapshot.Edges[e.Key()] = e
	}

	jsonData, _ := json.Marshal(edges)
	hash := sha256.Sum256(jsonData)
	snapshot.Hash = fmt.Sprintf("%x", hash)

	return snapshot
}

// ComputeDiff computes the changes from old to edges. A nil old snapshot yields a
// full diff. Slices are sorted by key.
func ComputeDiff(old *EdgeSnapshot, edges []Edge) *EdgeDiff {
	if old == nil {
		return &EdgeDiff{Added: edges, Removed: []string{}, Modified: []Edge{}, Full: true}
	}

	diff := &EdgeDiff{
		Added:    make([]Edge, 0),
		Removed:  make([]string, 0),
		Modified: make([]Edge, 0),
	}

	current := make(map[string]Edge, len(edges))
	for _, e := range edges {
		current[e.Key()] = e
	}

	for key, e := range current {
		if prev, exists := old.Edges[key]; exists {
			if prev != e {
				diff.Modified = append(diff.Modified, e)
			}
		} else {
			diff.Added = append(diff.Added, e)
		}
	}
	for key := range old.Edges {
		if _, exists := current[key]; !exists {
			diff.Removed = append(diff.Removed, key)
		}
	}

	byKey := func(s []Edge) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Key() < s[j].Key() }
	}
	sort.Slice(diff.Added, byKey(diff.Added))
	sort.Slice(diff.Modified, byKey(diff.Modified))
	sort.Strings(diff.Removed)

	return diff
}
