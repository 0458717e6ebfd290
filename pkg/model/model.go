package model

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType represents the kind of portfolio entry a node stands for
type NodeType string

const (
	NodeTypeMain    NodeType = "main"    // the profile node, pinned at the origin
	NodeTypeProject NodeType = "project" // a portfolio project
	NodeTypeSkill   NodeType = "skill"   // a skill or technology
	NodeTypeLesson  NodeType = "lesson"  // a lesson learned
)

// NodeTypes lists every node type in display order.
var NodeTypes = []NodeType{NodeTypeMain, NodeTypeProject, NodeTypeSkill, NodeTypeLesson}

var (
	// ErrNoMainNode is returned when a graph has no node of type main.
	ErrNoMainNode = errors.New("graph has no main node")
	// ErrMultipleMainNodes is returned when more than one node has type main.
	ErrMultipleMainNodes = errors.New("graph has more than one main node")
)

// ParseNodeType parses a node type name, case-insensitively.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range NodeTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown node type %q", s)
}

// String returns the type name.
func (t NodeType) String() string {
	return string(t)
}
