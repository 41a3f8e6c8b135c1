// Package httpapi exposes the render service over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/httpapi/handlers"
	"clipforge/internal/httpkit"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/metrics"
	"clipforge/internal/pkg/middleware"
)

const (
	// MaxBodyBytes matches the 50 MB JSON limit of the render endpoint.
	MaxBodyBytes = 50 << 20
	apiDeadline  = 30 * time.Second
)

type Deps struct {
	Handlers       handlers.Deps
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "X-Job-ID", "Location"},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.MaxBody(MaxBodyBytes))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH / METRICS ----
	r.With(middleware.Deadline(apiDeadline)).Get("/health", h.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	// ---- RENDER ----
	// Bounded by RENDER_TIMEOUT in the job manager, not by a request deadline.
	r.Post("/render", h.Render)

	// ---- JOBS ----
	r.Group(func(r chi.Router) {
		r.Use(middleware.Deadline(apiDeadline))
		r.Post("/jobs", wrap(h.PostJob))
		r.Get("/jobs", wrap(h.ListJobs))
		r.Get("/jobs/{jobId}", wrap(h.GetJob))
		r.Delete("/jobs/{jobId}", wrap(h.CancelJob))
	})
	r.Get("/jobs/{jobId}/events", wrap(h.JobEvents))
	r.Get("/jobs/{jobId}/video", wrap(h.JobVideo))
	r.Get("/videos/{filename}", wrap(h.Video))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, errors.CodeNotFound, "route not found", map[string]any{"path": r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, middleware.ErrorBody{
			Error: "method not allowed",
			Code:  "METHOD_NOT_ALLOWED",
		})
	})

	return r
}
