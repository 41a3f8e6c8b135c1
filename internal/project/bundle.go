package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

// Bundle is a built project opened for reading.
type Bundle struct {
	ID       string
	Location string
	Digest   string
	Manifest Manifest
}

// OpenBundle loads the bundle written at location by Builder.Build.
func OpenBundle(location string) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(location, BundleFile))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeBuild, "project.open", "project bundle is not readable").
			WithField("location", location)
	}
	var doc bundleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeBuild, "project.open", "project bundle is corrupt").
			WithField("location", location)
	}
	return &Bundle{
		ID:       doc.ID,
		Location: location,
		Digest:   doc.Digest,
		Manifest: doc.Manifest,
	}, nil
}

// Resolve binds inputs to composition id.
//
// Declared props take the input value when it is a non-empty string and the
// default otherwise. Undeclared inputs are dropped. Required props must end
// up non-empty and url props must be absolute http(s) or file URLs.
func (b *Bundle) Resolve(id string, inputs map[string]any) (models.CompositionDescriptor, error) {
	spec, ok := b.Manifest.Composition(id)
	if !ok {
		return models.CompositionDescriptor{}, errors.CompositionNotFound(id).
			WithField("available", strings.Join(b.Manifest.IDs(), ","))
	}

	bound, err := bindProps(spec, inputs)
	if err != nil {
		return models.CompositionDescriptor{}, err
	}

	return models.CompositionDescriptor{
		ID:               spec.ID,
		Component:        spec.Component,
		Width:            spec.Width,
		Height:           spec.Height,
		FPS:              spec.FPS,
		DurationInFrames: spec.DurationInFrames,
		BoundInputs:      bound,
	}, nil
}

func bindProps(spec CompositionSpec, inputs map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(spec.Props))
	for name := range spec.Props {
		names = append(names, name)
	}
	for name := range spec.DefaultProps {
		if _, declared := spec.Props[name]; !declared {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	bound := make(map[string]any, len(names))
	for _, name := range names {
		value := spec.DefaultProps[name]
		if raw, ok := inputs[name]; ok && raw != nil {
			s, isString := raw.(string)
			if !isString {
				return nil, errors.InvalidParameters(name, fmt.Sprintf("%s must be a string, got %T", name, raw))
			}
			if s != "" {
				value = s
			}
		}

		p, declared := spec.Props[name]
		if declared {
			if p.Required && strings.TrimSpace(value) == "" {
				return nil, errors.InvalidParameters(name, fmt.Sprintf("%s is required", name))
			}
			if p.Type == PropURL && value != "" && !models.IsMediaURL(value) {
				return nil, errors.InvalidParameters(name, fmt.Sprintf("%s must be an absolute http(s) or file URL", name))
			}
		}
		bound[name] = value
	}
	return bound, nil
}

// DecodeRequest turns bound composition inputs back into a RenderRequest.
func DecodeRequest(bound map[string]any) (models.RenderRequest, error) {
	var req models.RenderRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &req,
		TagName: "mapstructure",
	})
	if err != nil {
		return models.RenderRequest{}, err
	}
	if err := dec.Decode(bound); err != nil {
		return models.RenderRequest{}, errors.WrapWithCode(err, errors.CodeInvalidParameters, "project.decode", "bound inputs do not match the render request shape")
	}
	return req, nil
}
