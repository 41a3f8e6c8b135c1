// Package v1 is the wire contract between clipforge and an out-of-process
// renderer.
//
//   - POST /v1/bundle        BundleRequest       -> BundleResponse
//   - POST /v1/compositions  CompositionRequest  -> models.CompositionDescriptor
//     404 when the id is unknown, 422 when the inputs do not fit.
//   - POST /v1/render        RenderRequest       -> NDJSON stream of ProgressLine
//   - GET  /v1/health                            -> 200 when ready
package v1

import "clipforge/internal/models"

const (
	PathBundle       = "/v1/bundle"
	PathCompositions = "/v1/compositions"
	PathRender       = "/v1/render"
	PathHealth       = "/v1/health"

	// ContentTypeNDJSON is the media type of the render progress stream.
	ContentTypeNDJSON = "application/x-ndjson"
)

// CompositionOverride mirrors ports.CompositionOverride on the wire.
type CompositionOverride struct {
	Width            int `json:"width,omitempty"`
	Height           int `json:"height,omitempty"`
	FPS              int `json:"fps,omitempty"`
	DurationInFrames int `json:"durationInFrames,omitempty"`
}

type BundleRequest struct {
	EntryPoint string                         `json:"entryPoint"`
	Overrides  map[string]CompositionOverride `json:"overrides,omitempty"`
}

type BundleResponse struct {
	Handle models.ProjectHandle `json:"handle"`
}

type CompositionRequest struct {
	ServeURL   string         `json:"serveUrl"`
	ID         string         `json:"id"`
	InputProps map[string]any `json:"inputProps"`
}

type RenderRequest struct {
	ServeURL       string                       `json:"serveUrl"`
	Composition    models.CompositionDescriptor `json:"composition"`
	Codec          string                       `json:"codec"`
	OutputLocation string                       `json:"outputLocation"`
	InputProps     map[string]any               `json:"inputProps"`
	Options        map[string]string            `json:"options,omitempty"`
}

// ProgressLine is one line of the render stream. Exactly one of the fields
// is meaningful per line; the stream ends with Done or Error.
type ProgressLine struct {
	Progress *float64 `json:"progress,omitempty"`
	Done     bool     `json:"done,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ErrorResponse is the body of any non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
