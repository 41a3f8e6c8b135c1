package models

import (
	"fmt"
	"testing"
	"time"

	"clipforge/internal/pkg/errors"
)

func TestRenderRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     RenderRequest
		wantMsg string
		field   string
	}{
		{"valid", RenderRequest{VideoURL: "https://cdn.example.com/a.mp4", Caption: "Hi"}, "", ""},
		{"file url", RenderRequest{VideoURL: "file:///srv/clip.mp4", Caption: "Hi"}, "", ""},
		{"missing url", RenderRequest{Caption: "Hi"}, MsgMissingVideoURL, "videoUrl"},
		{"blank url", RenderRequest{VideoURL: "  ", Caption: "Hi"}, MsgMissingVideoURL, "videoUrl"},
		{"url checked before caption", RenderRequest{}, MsgMissingVideoURL, "videoUrl"},
		{"missing caption", RenderRequest{VideoURL: "https://x/a.mp4"}, MsgMissingCaption, "caption"},
		{"relative url", RenderRequest{VideoURL: "clip.mp4", Caption: "Hi"}, MsgInvalidVideoURL, "videoUrl"},
		{"unsupported scheme", RenderRequest{VideoURL: "ftp://host/a.mp4", Caption: "Hi"}, MsgInvalidVideoURL, "videoUrl"},
		{"missing host", RenderRequest{VideoURL: "https:///a.mp4", Caption: "Hi"}, MsgInvalidVideoURL, "videoUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var e *errors.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected coded error, got %v", err)
			}
			if e.Code != errors.CodeValidation || e.Message != tt.wantMsg {
				t.Errorf("expected %s %q, got %s %q", errors.CodeValidation, tt.wantMsg, e.Code, e.Message)
			}
			if e.Fields["field"] != tt.field {
				t.Errorf("expected field %s, got %v", tt.field, e.Fields["field"])
			}
		})
	}
}

func TestRenderRequestNormalize(t *testing.T) {
	got := RenderRequest{VideoURL: " https://x/a.mp4 ", Caption: "Hello"}.Normalize()
	if got.ScriptText != "Hello" {
		t.Errorf("expected scriptText to default to caption, got %q", got.ScriptText)
	}
	if got.VideoURL != "https://x/a.mp4" {
		t.Errorf("expected trimmed url, got %q", got.VideoURL)
	}

	got = RenderRequest{VideoURL: "https://x/a.mp4", Caption: "Hello", ScriptText: "Narration"}.Normalize()
	if got.ScriptText != "Narration" {
		t.Errorf("expected explicit scriptText to be kept, got %q", got.ScriptText)
	}

	in := got.Inputs()
	if in["videoUrl"] != "https://x/a.mp4" || in["caption"] != "Hello" || in["scriptText"] != "Narration" {
		t.Errorf("unexpected inputs %v", in)
	}
}

func TestJobAdvanceOrder(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j := NewJob("job-1", RenderRequest{}, now)

	for _, next := range []JobState{JobBundling, JobResolvingComposition, JobRendering, JobCompleted} {
		if err := j.Advance(next, now); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if j.Progress != 1 {
		t.Errorf("expected progress 1 on completion, got %v", j.Progress)
	}
	if j.StartedAt == nil || j.FinishedAt == nil {
		t.Error("expected start and finish timestamps")
	}
	if err := j.Advance(JobCompleted, now); err == nil {
		t.Error("expected terminal job to reject transitions")
	}
}

func TestJobAdvanceRejectsSkipsAndRegressions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		from JobState
		to   JobState
	}{
		{"skip bundling", JobPending, JobResolvingComposition},
		{"straight to completed", JobPending, JobCompleted},
		{"backwards", JobRendering, JobBundling},
		{"same state", JobBundling, JobBundling},
		{"advance into failed", JobRendering, JobFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Job{ID: "j", State: tt.from}
			err := j.Advance(tt.to, now)
			if !errors.IsCode(err, errors.CodeConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}
			if j.State != tt.from {
				t.Errorf("state changed to %s", j.State)
			}
		})
	}
}

func TestJobFail(t *testing.T) {
	now := time.Now()
	j := Job{ID: "j", State: JobRendering, Progress: 0.4}

	cause := errors.RenderEngine("engine.local.render", fmt.Errorf("exit status 1"))
	if err := j.Fail(cause, now); err != nil {
		t.Fatal(err)
	}
	if j.State != JobFailed {
		t.Fatalf("expected failed, got %s", j.State)
	}
	if j.Error.Code != string(errors.CodeRenderEngine) || j.Error.Stage != JobRendering || j.Error.Op != "engine.local.render" {
		t.Errorf("unexpected error info %+v", j.Error)
	}
	if j.Error.Message != "render engine failed: exit status 1" {
		t.Errorf("unexpected message %q", j.Error.Message)
	}
	if j.Progress != 0.4 {
		t.Errorf("progress should be kept on failure, got %v", j.Progress)
	}
	if err := j.Fail(cause, now); err == nil {
		t.Error("expected second Fail to be rejected")
	}
}

func TestJobSetProgress(t *testing.T) {
	now := time.Now()
	j := Job{State: JobBundling}
	if j.SetProgress(0.5, now) {
		t.Error("progress outside rendering must be ignored")
	}

	j.State = JobRendering
	steps := []struct {
		in      float64
		changed bool
		want    float64
	}{
		{0.2, true, 0.2},
		{0.1, false, 0.2},
		{-3, false, 0.2},
		{0.2, false, 0.2},
		{7, true, 1},
	}
	for _, s := range steps {
		if got := j.SetProgress(s.in, now); got != s.changed {
			t.Errorf("SetProgress(%v) changed=%v, want %v", s.in, got, s.changed)
		}
		if j.Progress != s.want {
			t.Errorf("after %v progress=%v, want %v", s.in, j.Progress, s.want)
		}
	}
}

func TestJobCloneIsDeep(t *testing.T) {
	started := time.Now()
	j := Job{
		ID:          "j",
		StartedAt:   &started,
		Composition: &CompositionDescriptor{ID: "SocialMediaVideo", BoundInputs: map[string]any{"caption": "a"}},
		Artifact:    &OutputArtifact{Path: "/tmp/v.mp4"},
	}
	c := j.Clone()
	c.Composition.BoundInputs["caption"] = "b"
	c.Artifact.Path = "/elsewhere"
	*c.StartedAt = started.Add(time.Hour)

	if j.Composition.BoundInputs["caption"] != "a" || j.Artifact.Path != "/tmp/v.mp4" || !j.StartedAt.Equal(started) {
		t.Error("clone shares state with original")
	}
}

func TestCompositionDuration(t *testing.T) {
	c := CompositionDescriptor{FPS: 30, DurationInFrames: 450}
	if c.Duration() != 15*time.Second {
		t.Errorf("expected 15s, got %v", c.Duration())
	}
	if (CompositionDescriptor{}).Duration() != 0 {
		t.Error("expected zero duration without fps")
	}
}
