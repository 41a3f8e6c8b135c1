package pipeline

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/metrics"
)

// BuildFunc produces a project handle.
type BuildFunc func(ctx context.Context) (models.ProjectHandle, error)

// buildTimeout bounds a shared build, which runs detached from any single
// caller's context.
const buildTimeout = 5 * time.Minute

// BundleCache builds the project once and hands the same handle to every
// caller afterwards. Concurrent callers during the first build wait for
// that build instead of starting their own. A failed build is not cached;
// the next caller starts a new one.
type BundleCache struct {
	build   BuildFunc
	metrics *metrics.Metrics

	mu       sync.Mutex
	handle   *models.ProjectHandle
	inflight *buildCall
}

type buildCall struct {
	done   chan struct{}
	handle models.ProjectHandle
	err    error
}

// NewBundleCache returns a cache around build. m may be nil.
func NewBundleCache(build BuildFunc, m *metrics.Metrics) *BundleCache {
	return &BundleCache{build: build, metrics: m}
}

// Get returns the cached handle, building it if needed. Giving up on ctx
// does not cancel a build other callers may be waiting on.
func (c *BundleCache) Get(ctx context.Context) (models.ProjectHandle, error) {
	c.mu.Lock()
	if c.handle != nil {
		h := *c.handle
		c.mu.Unlock()
		return h, nil
	}
	call := c.inflight
	if call == nil {
		call = &buildCall{done: make(chan struct{})}
		c.inflight = call
		go c.run(call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.handle, call.err
	case <-ctx.Done():
		return models.ProjectHandle{}, errors.FromContext(ctx, "pipeline.bundle")
	}
}

// Handle returns the cached handle without building.
func (c *BundleCache) Handle() (models.ProjectHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return models.ProjectHandle{}, false
	}
	return *c.handle, true
}

func (c *BundleCache) run(call *buildCall) {
	ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
	defer cancel()

	h, err := c.build(ctx)

	c.mu.Lock()
	if err == nil {
		c.handle = &h
	}
	c.inflight = nil
	c.mu.Unlock()

	if err == nil {
		c.metrics.ProjectBuilt("ok")
	} else {
		c.metrics.ProjectBuilt("error")
	}

	call.handle, call.err = h, err
	close(call.done)
}
