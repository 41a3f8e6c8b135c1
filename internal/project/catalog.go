package project

import (
	"context"
	"sync"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
)

// Catalog keeps opened bundles by location. Bundles are immutable once
// written, so an opened bundle is reused for every later resolution.
type Catalog struct {
	mu      sync.Mutex
	bundles map[string]*Bundle
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{bundles: make(map[string]*Bundle)}
}

// Open returns the bundle at location, reading it on first use.
func (c *Catalog) Open(location string) (*Bundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[location]; ok {
		return b, nil
	}
	b, err := OpenBundle(location)
	if err != nil {
		return nil, err
	}
	c.bundles[location] = b
	return b, nil
}

// Resolve binds inputs to composition id inside the project referenced by
// handle.
func (c *Catalog) Resolve(ctx context.Context, handle models.ProjectHandle, id string, inputs map[string]any) (models.CompositionDescriptor, error) {
	if ctx.Err() != nil {
		return models.CompositionDescriptor{}, errors.FromContext(ctx, "project.resolve")
	}
	b, err := c.Open(handle.Location)
	if err != nil {
		return models.CompositionDescriptor{}, err
	}
	return b.Resolve(id, inputs)
}
