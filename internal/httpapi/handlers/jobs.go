package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/httpkit"
	"clipforge/internal/models"
	"clipforge/internal/output"
	"clipforge/internal/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	sseKeepAlive     = 15 * time.Second
)

// PostJob records a job and returns at once with 202.
func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	var req models.RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.Validation(MsgBodyTooLarge)
		}
		return errors.Validation(MsgInvalidJSON)
	}

	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		if job.ID != "" {
			w.Header().Set("X-Job-ID", job.ID)
		}
		return err
	}
	w.Header().Set("Location", "/jobs/"+job.ID)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	limit := httpkit.QueryInt(r, "limit", defaultListLimit, maxListLimit)
	list, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": list})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
	return nil
}

// CancelJob cancels a pending or running job. The response carries the
// snapshot taken right after the request; a running job reaches failed once
// the engine stops.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "jobId")
	if err := h.jobs.Cancel(ctx, id); err != nil {
		return err
	}
	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
	return nil
}

// JobEvents streams job snapshots as Server-Sent Events until the job ends
// or the client leaves. Each snapshot is a "job" event; an "end" event
// follows the terminal one.
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "jobId")

	ch, stop, err := h.jobs.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	defer stop()

	rc := http.NewResponseController(w)
	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
		case job, ok := <-ch:
			if !ok {
				_ = writeEvent(w, "end", map[string]string{"id": id})
				_ = rc.Flush()
				return nil
			}
			if err := writeEvent(w, "job", job); err != nil {
				return nil
			}
		}
		if err := rc.Flush(); err != nil {
			return nil
		}
	}
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// JobVideo downloads the artifact of a completed job.
func (h *Handler) JobVideo(w http.ResponseWriter, r *http.Request) error {
	job, err := h.jobs.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		return err
	}
	if job.State != models.JobCompleted || job.Artifact == nil {
		return errors.Conflict(fmt.Sprintf("job is %s, video not available", job.State)).
			WithField("job_id", job.ID)
	}
	return h.serveArtifact(w, r, job.Artifact.Filename)
}

// Video downloads a finished video by the filename /render returned.
func (h *Handler) Video(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "filename")
	if !output.IsVideoFilename(name) {
		return errors.NotFound("video", name)
	}
	return h.serveArtifact(w, r, name)
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, name string) error {
	rc, ct, size, err := h.artifacts.GetObject(r.Context(), name)
	if err != nil {
		return err
	}
	defer rc.Close()

	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, time.Time{}, rs)
		return nil
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, _ = io.Copy(w, rc)
	return nil
}
