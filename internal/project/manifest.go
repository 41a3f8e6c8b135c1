package project

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed default_project.yaml
var defaultManifest []byte

// DefaultManifest returns the built-in project source.
func DefaultManifest() []byte {
	out := make([]byte, len(defaultManifest))
	copy(out, defaultManifest)
	return out
}

// Prop types a composition may declare.
const (
	PropString = "string"
	PropURL    = "url"
)

// Manifest is the project source: a named set of compositions.
type Manifest struct {
	Name         string            `yaml:"name" json:"name"`
	Compositions []CompositionSpec `yaml:"compositions" json:"compositions"`
}

// CompositionSpec declares one renderable composition and its input shape.
type CompositionSpec struct {
	ID               string              `yaml:"id" json:"id"`
	Component        string              `yaml:"component" json:"component"`
	Width            int                 `yaml:"width" json:"width"`
	Height           int                 `yaml:"height" json:"height"`
	FPS              int                 `yaml:"fps" json:"fps"`
	DurationInFrames int                 `yaml:"durationInFrames" json:"durationInFrames"`
	DefaultProps     map[string]string   `yaml:"defaultProps" json:"defaultProps,omitempty"`
	Props            map[string]PropSpec `yaml:"props" json:"props,omitempty"`
}

// PropSpec is the declared shape of one input prop.
type PropSpec struct {
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required,omitempty"`
}

// ParseManifest decodes and checks a YAML project source.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return Manifest{}, fmt.Errorf("project source is empty")
		}
		return Manifest{}, fmt.Errorf("parse project source: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks the manifest is renderable.
func (m Manifest) Validate() error {
	if len(m.Compositions) == 0 {
		return fmt.Errorf("project declares no compositions")
	}
	seen := make(map[string]bool, len(m.Compositions))
	for i, c := range m.Compositions {
		if c.ID == "" {
			return fmt.Errorf("composition %d has no id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate composition id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("composition %q: width and height must be positive", c.ID)
		}
		if c.Width%2 != 0 || c.Height%2 != 0 {
			return fmt.Errorf("composition %q: width and height must be even", c.ID)
		}
		if c.FPS <= 0 {
			return fmt.Errorf("composition %q: fps must be positive", c.ID)
		}
		if c.DurationInFrames <= 0 {
			return fmt.Errorf("composition %q: durationInFrames must be positive", c.ID)
		}
		for name, p := range c.Props {
			switch p.Type {
			case PropString, PropURL:
			default:
				return fmt.Errorf("composition %q: prop %q has unknown type %q", c.ID, name, p.Type)
			}
		}
	}
	return nil
}

// Composition returns the composition with id.
func (m Manifest) Composition(id string) (CompositionSpec, bool) {
	for _, c := range m.Compositions {
		if c.ID == id {
			return c, true
		}
	}
	return CompositionSpec{}, false
}

// IDs lists composition ids in declaration order.
func (m Manifest) IDs() []string {
	ids := make([]string, 0, len(m.Compositions))
	for _, c := range m.Compositions {
		ids = append(ids, c.ID)
	}
	return ids
}
