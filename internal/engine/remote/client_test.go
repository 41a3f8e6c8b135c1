package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "clipforge/internal/contracts/renderer/v1"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

func newRenderer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", nil)
}

func TestBuildProject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(v1.PathBundle, func(w http.ResponseWriter, r *http.Request) {
		var req v1.BundleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.EntryPoint == "missing.yaml" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(v1.ErrorResponse{Error: "entry point not found"})
			return
		}
		assert.Equal(t, 90, req.Overrides["SocialMediaVideo"].DurationInFrames)
		json.NewEncoder(w).Encode(v1.BundleResponse{Handle: models.ProjectHandle{ID: "b1", Location: "http://renderer/bundles/b1"}})
	})
	c := newRenderer(t, mux)

	h, err := c.BuildProject(context.Background(), "src/index.yaml", ports.BuildOptions{
		Overrides: map[string]ports.CompositionOverride{"SocialMediaVideo": {DurationInFrames: 90}},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://renderer/bundles/b1", h.Location)

	_, err = c.BuildProject(context.Background(), "missing.yaml", ports.BuildOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeBuild, errors.GetCode(err))
	assert.Contains(t, err.Error(), "entry point not found")
}

func TestResolveComposition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(v1.PathCompositions, func(w http.ResponseWriter, r *http.Request) {
		var req v1.CompositionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.ID {
		case "Nope":
			w.WriteHeader(http.StatusNotFound)
		case "Bad":
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"error":"caption is required"}`)
		case "Broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			assert.Equal(t, "bundle-location", req.ServeURL)
			json.NewEncoder(w).Encode(models.CompositionDescriptor{
				ID: req.ID, Width: 1080, Height: 1920, FPS: 30, DurationInFrames: 450, BoundInputs: req.InputProps,
			})
		}
	})
	c := newRenderer(t, mux)
	h := models.ProjectHandle{Location: "bundle-location"}

	desc, err := c.ResolveComposition(context.Background(), h, "SocialMediaVideo", map[string]any{"caption": "Hi"})
	require.NoError(t, err)
	assert.Equal(t, 450, desc.DurationInFrames)
	assert.Equal(t, "Hi", desc.BoundInputs["caption"])

	tests := map[string]errors.Code{
		"Nope":   errors.CodeCompositionNotFound,
		"Bad":    errors.CodeInvalidParameters,
		"Broken": errors.CodeRenderEngine,
	}
	for id, code := range tests {
		_, err := c.ResolveComposition(context.Background(), h, id, nil)
		assert.Equal(t, code, errors.GetCode(err), id)
	}
}

func ndjson(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", v1.ContentTypeNDJSON)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}
}

func TestRenderStream(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		code     errors.Code
		progress []float64
	}{
		{
			name:     "completes",
			lines:    []string{`{"progress":0.25}`, ``, `{"progress":0.5}`, `{"done":true}`},
			progress: []float64{0.25, 0.5, 1},
		},
		{
			name:     "renderer error",
			lines:    []string{`{"progress":0.1}`, `{"error":"chromium crashed"}`},
			code:     errors.CodeRenderEngine,
			progress: []float64{0.1},
		},
		{
			name:     "stream cut short",
			lines:    []string{`{"progress":0.1}`},
			code:     errors.CodeRenderEngine,
			progress: []float64{0.1},
		},
		{
			name:  "garbage line",
			lines: []string{`not json`},
			code:  errors.CodeRenderEngine,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(v1.PathRender, ndjson(tt.lines...))
			c := newRenderer(t, mux)

			var got []float64
			err := c.Render(context.Background(), ports.RenderInput{OutputPath: "/tmp/videos/video_1.mp4"}, func(p float64) {
				got = append(got, p)
			})
			if tt.code == "" {
				require.NoError(t, err)
			} else {
				assert.Equal(t, tt.code, errors.GetCode(err))
			}
			assert.Equal(t, tt.progress, got)
		})
	}
}

func TestRenderSendsInputs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(v1.PathRender, func(w http.ResponseWriter, r *http.Request) {
		var req v1.RenderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "h264", req.Codec)
		assert.Equal(t, "/tmp/videos/video_9.mp4", req.OutputLocation)
		assert.Equal(t, "https://example.com/a.mp4", req.InputProps["videoUrl"])
		assert.Equal(t, "SocialMediaVideo", req.Composition.ID)
		fmt.Fprintln(w, `{"done":true}`)
	})
	c := newRenderer(t, mux)

	err := c.Render(context.Background(), ports.RenderInput{
		Composition: models.CompositionDescriptor{
			ID:          "SocialMediaVideo",
			BoundInputs: map[string]any{"videoUrl": "https://example.com/a.mp4"},
		},
		Codec:      "h264",
		OutputPath: "/tmp/videos/video_9.mp4",
	}, nil)
	require.NoError(t, err)
}

func TestRenderCanceledMidStream(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(v1.PathRender, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":0.1}`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	c := newRenderer(t, mux)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	err := c.Render(ctx, ports.RenderInput{}, func(p float64) {
		if p > 0 {
			cancel()
		}
	})
	assert.Equal(t, errors.CodeCanceled, errors.GetCode(err))
}

func TestCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(v1.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newRenderer(t, mux)
	assert.NoError(t, c.Check(context.Background()))

	down := NewClient("http://127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(down.Check(ctx)))
}
