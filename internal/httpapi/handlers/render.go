package handlers

import (
	"net/http"

	"clipforge/internal/httpkit"
	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/middleware"
)

// Response texts of the synchronous render endpoint.
const (
	MsgInvalidJSON     = "Invalid JSON body"
	MsgBodyTooLarge    = "Request body too large"
	MsgRenderSucceeded = "Video rendered successfully"
	NoteTemporary      = "Video is stored temporarily. Upload to cloud storage for permanent hosting."
)

type renderResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	VideoPath     string `json:"videoPath"`
	VideoFilename string `json:"videoFilename"`
	FileSizeBytes int64  `json:"fileSizeBytes"`
	Note          string `json:"note"`
	JobID         string `json:"jobId"`
}

// Render runs one job to completion within the request. A client that
// disconnects cancels its job.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	var req models.RenderRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	log.Info("received render request",
		"video_url", req.VideoURL,
		"caption_len", len(req.Caption),
		"has_script", req.ScriptText != "",
	)

	job, err := h.jobs.Render(ctx, req)
	if err == nil && job.Artifact == nil {
		err = errors.Internal("render finished without an artifact").WithField("job_id", job.ID)
	}
	if err != nil {
		h.renderError(w, r, job, err)
		return
	}

	log.Info("video rendered",
		"job_id", job.ID,
		"path", job.Artifact.Path,
		"size_bytes", job.Artifact.SizeBytes,
	)
	httpkit.WriteJSON(w, http.StatusOK, renderResponse{
		Success:       true,
		Message:       MsgRenderSucceeded,
		VideoPath:     job.Artifact.Path,
		VideoFilename: job.Artifact.Filename,
		FileSizeBytes: job.Artifact.SizeBytes,
		Note:          NoteTemporary,
		JobID:         job.ID,
	})
}

// renderError writes the /render failure shapes: bare 400 bodies for bad
// input, 429/503 for admission, 500 for every pipeline failure.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, job models.Job, err error) {
	log := h.log.FromContext(r.Context())

	var coded *errors.Error
	if errors.As(err, &coded) && coded.Code == errors.CodeValidation {
		log.Warn("render request rejected", "error", coded.Message)
		httpkit.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": coded.Message})
		return
	}

	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeResourceExhaust:
		status = http.StatusTooManyRequests
	case errors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}

	msg := models.NewErrorInfo(err, "").Message
	if job.Error != nil {
		msg = job.Error.Message
	}
	body := middleware.ErrorBody{Error: msg, Code: string(code)}
	if status == http.StatusInternalServerError && h.dev {
		body.Stack = errors.GetStackTrace(err)
	}
	if job.ID != "" {
		w.Header().Set("X-Job-ID", job.ID)
	}

	fields := []any{"error", err.Error(), "code", string(code), "status", status, "job_id", job.ID}
	if status == http.StatusInternalServerError {
		log.Error("render failed", append(fields, "stack", errors.GetStackTrace(err))...)
	} else {
		log.Warn("render not admitted", fields...)
	}
	middleware.WriteError(w, status, body)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpkit.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": MsgBodyTooLarge})
		return
	}
	httpkit.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": MsgInvalidJSON})
}
