package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// graphFile is the on-disk shape of a graph dataset
type graphFile struct {
	Nodes []*Node `json:"nodes" yaml:"nodes"`
}

// LoadFile reads a graph from a JSON or YAML file (chosen by extension) and validates it.
// Connections are returned as declared; callers normalize them.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes a graph from JSON. Both {"nodes": [...]} and a bare node array are accepted.
func ParseJSON(data []byte) (*Graph, error) {
	var file graphFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &file.Nodes); err != nil {
			return nil, fmt.Errorf("decoding graph JSON: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("decoding graph JSON: %w", err)
	}
	return build(file.Nodes)
}

// ParseYAML decodes a graph from YAML with a top-level nodes list.
func ParseYAML(data []byte) (*Graph, error) {
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding graph YAML: %w", err)
	}
	return build(file.Nodes)
}

func build(nodes []*Node) (*Graph, error) {
	g, err := FromNodes(nodes)
	if err != nil {
		return nil, err
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks node fields and the single-main-node invariant.
// Connections naming unknown ids are not errors; consumers skip them.
func Validate(g *Graph) error {
	var errs []error
	for i, node := range g.Nodes {
		if err := validate.Struct(node); err != nil {
			errs = append(errs, fmt.Errorf("node %d (%q): %w", i, node.ID, formatValidationError(err)))
		}
	}
	if _, err := g.MainNode(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
