package models

import (
	"fmt"
	"time"

	"clipforge/internal/pkg/errors"
)

// JobState is the lifecycle position of a render job.
type JobState string

const (
	JobPending              JobState = "pending"
	JobBundling             JobState = "bundling"
	JobResolvingComposition JobState = "resolving_composition"
	JobRendering            JobState = "rendering"
	JobCompleted            JobState = "completed"
	JobFailed               JobState = "failed"
)

// stageOrder is the only forward path a job may take before it ends.
var stageOrder = []JobState{
	JobPending,
	JobBundling,
	JobResolvingComposition,
	JobRendering,
	JobCompleted,
}

// IsTerminal reports whether no further transition is allowed.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// FinalStateConflict is what a job store returns when a write would move
// a job out of completed or failed.
func FinalStateConflict(id string, state JobState) *errors.Error {
	msg := fmt.Sprintf("job %s already reached a final state", id)
	if state != "" {
		msg = fmt.Sprintf("job %s is already %s", id, state)
	}
	return errors.Conflict(msg).WithField("job_id", id)
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	switch s {
	case JobPending, JobBundling, JobResolvingComposition, JobRendering, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobState) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// ErrorInfo is the persisted form of a job failure.
type ErrorInfo struct {
	Code    string   `json:"code"`
	Op      string   `json:"op,omitempty"`
	Message string   `json:"message"`
	Stage   JobState `json:"stage,omitempty"`
}

// NewErrorInfo captures err as it left stage.
func NewErrorInfo(err error, stage JobState) *ErrorInfo {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var coded *errors.Error
	if errors.As(err, &coded) {
		msg = coded.Message
		if coded.Err != nil {
			msg += ": " + coded.Err.Error()
		}
	}
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return &ErrorInfo{
		Code:    string(errors.GetCode(err)),
		Op:      errors.GetOp(err),
		Message: msg,
		Stage:   stage,
	}
}

// Job is one render request moving through the pipeline.
type Job struct {
	ID          string                 `json:"id"`
	Request     RenderRequest          `json:"request"`
	State       JobState               `json:"state"`
	Progress    float64                `json:"progress"`
	OutputPath  string                 `json:"outputPath,omitempty"`
	Composition *CompositionDescriptor `json:"composition,omitempty"`
	Artifact    *OutputArtifact        `json:"artifact,omitempty"`
	Error       *ErrorInfo             `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	StartedAt   *time.Time             `json:"startedAt,omitempty"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
}

// NewJob returns a pending job for req.
func NewJob(id string, req RenderRequest, now time.Time) Job {
	now = now.UTC()
	return Job{
		ID:        id,
		Request:   req,
		State:     JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the job to the next pipeline state. Only the immediate
// successor of the current state is accepted.
func (j *Job) Advance(next JobState, now time.Time) error {
	cur := j.State.index()
	if cur < 0 || j.State.IsTerminal() || next.index() != cur+1 {
		return errors.Conflict(fmt.Sprintf("invalid job transition %s -> %s", j.State, next)).
			WithField("job_id", j.ID)
	}
	now = now.UTC()
	if j.State == JobPending {
		j.StartedAt = &now
	}
	j.State = next
	j.UpdatedAt = now
	if next == JobCompleted {
		j.Progress = 1
		j.FinishedAt = &now
	}
	return nil
}

// Fail moves a non-terminal job to failed, recording err against the stage
// it was in.
func (j *Job) Fail(err error, now time.Time) error {
	if j.State.IsTerminal() {
		return errors.Conflict(fmt.Sprintf("job already %s", j.State)).WithField("job_id", j.ID)
	}
	now = now.UTC()
	j.Error = NewErrorInfo(err, j.State)
	j.State = JobFailed
	j.UpdatedAt = now
	j.FinishedAt = &now
	return nil
}

// SetProgress records a render fraction. Values are clamped to [0,1] and
// never move backwards; it reports whether the stored value changed.
func (j *Job) SetProgress(p float64, now time.Time) bool {
	if j.State != JobRendering {
		return false
	}
	if p != p || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p <= j.Progress {
		return false
	}
	j.Progress = p
	j.UpdatedAt = now.UTC()
	return true
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	out := j
	if j.Composition != nil {
		c := *j.Composition
		if j.Composition.BoundInputs != nil {
			c.BoundInputs = make(map[string]any, len(j.Composition.BoundInputs))
			for k, v := range j.Composition.BoundInputs {
				c.BoundInputs[k] = v
			}
		}
		out.Composition = &c
	}
	if j.Artifact != nil {
		a := *j.Artifact
		out.Artifact = &a
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
