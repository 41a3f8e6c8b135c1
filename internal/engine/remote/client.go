// Package remote drives an out-of-process renderer over HTTP using the v1
// renderer contract.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	v1 "clipforge/internal/contracts/renderer/v1"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

const maxLine = 1 << 20

// Client implements ports.Engine against a renderer sidecar.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

var _ ports.Engine = (*Client)(nil)

// NewClient returns a Client for baseURL. Calls are bounded by the caller's
// context only; a render stream may legitimately run for minutes.
func NewClient(baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		log:     log.WithComponent("engine.remote"),
	}
}

func (c *Client) BuildProject(ctx context.Context, entryPoint string, opts ports.BuildOptions) (models.ProjectHandle, error) {
	req := v1.BundleRequest{EntryPoint: entryPoint}
	if len(opts.Overrides) > 0 {
		req.Overrides = make(map[string]v1.CompositionOverride, len(opts.Overrides))
		for id, o := range opts.Overrides {
			req.Overrides[id] = v1.CompositionOverride(o)
		}
	}

	res, err := c.post(ctx, v1.PathBundle, req)
	if err != nil {
		if ctx.Err() != nil {
			return models.ProjectHandle{}, errors.FromContext(ctx, "engine.remote.bundle")
		}
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, statusError(res))
	}
	var out v1.BundleResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return models.ProjectHandle{}, errors.BuildFailed(entryPoint, fmt.Errorf("decode bundle response: %w", err))
	}
	return out.Handle, nil
}

func (c *Client) ResolveComposition(ctx context.Context, p models.ProjectHandle, id string, inputs map[string]any) (models.CompositionDescriptor, error) {
	res, err := c.post(ctx, v1.PathCompositions, v1.CompositionRequest{
		ServeURL:   p.Location,
		ID:         id,
		InputProps: inputs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.CompositionDescriptor{}, errors.FromContext(ctx, "engine.remote.resolve")
		}
		return models.CompositionDescriptor{}, errors.RenderEngine("engine.remote.resolve", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return models.CompositionDescriptor{}, errors.CompositionNotFound(id)
	case res.StatusCode == http.StatusUnprocessableEntity:
		return models.CompositionDescriptor{}, errors.InvalidParameters("", statusError(res).Error())
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return models.CompositionDescriptor{}, errors.RenderEngine("engine.remote.resolve", statusError(res))
	}

	var desc models.CompositionDescriptor
	if err := json.NewDecoder(res.Body).Decode(&desc); err != nil {
		return models.CompositionDescriptor{}, errors.RenderEngine("engine.remote.resolve", fmt.Errorf("decode composition: %w", err))
	}
	return desc, nil
}

// Render posts the render request and follows the NDJSON progress stream
// until the renderer reports done or an error.
func (c *Client) Render(ctx context.Context, in ports.RenderInput, onProgress ports.ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	inputs := in.Inputs
	if inputs == nil {
		inputs = in.Composition.BoundInputs
	}

	res, err := c.post(ctx, v1.PathRender, v1.RenderRequest{
		ServeURL:       in.Project.Location,
		Composition:    in.Composition,
		Codec:          in.Codec,
		OutputLocation: in.OutputPath,
		InputProps:     inputs,
		Options:        in.Options,
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.FromContext(ctx, "engine.remote.render")
		}
		return errors.RenderEngine("engine.remote.render", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.RenderEngine("engine.remote.render", statusError(res))
	}

	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var pl v1.ProgressLine
		if err := json.Unmarshal(line, &pl); err != nil {
			return errors.RenderEngine("engine.remote.render", fmt.Errorf("bad progress line %q: %w", line, err))
		}
		switch {
		case pl.Error != "":
			return errors.RenderEngine("engine.remote.render", fmt.Errorf("renderer: %s", pl.Error))
		case pl.Done:
			onProgress(1)
			return nil
		case pl.Progress != nil:
			onProgress(*pl.Progress)
		}
	}
	if ctx.Err() != nil {
		return errors.FromContext(ctx, "engine.remote.render")
	}
	if err := sc.Err(); err != nil {
		return errors.RenderEngine("engine.remote.render", err)
	}
	return errors.RenderEngine("engine.remote.render", fmt.Errorf("progress stream ended before completion"))
}

// Check calls the renderer health endpoint.
func (c *Client) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+v1.PathHealth, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "engine.remote.health", "renderer unreachable")
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return errors.Unavailable("renderer").WithField("status", res.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, "+v1.ContentTypeNDJSON)
	if id := logger.JobIDFromContext(ctx); id != "" {
		req.Header.Set("X-Job-ID", id)
	}
	c.log.FromContext(ctx).Debug("renderer request", "path", path)
	return c.client.Do(req)
}

func statusError(res *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var body v1.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("renderer http %d: %s", res.StatusCode, body.Error)
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return fmt.Errorf("renderer http %d: %s", res.StatusCode, msg)
	}
	return fmt.Errorf("renderer http %d", res.StatusCode)
}
