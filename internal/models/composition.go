package models

import "time"

// ProjectHandle references a built project. It is produced once per process
// and shared read-only by every render.
type ProjectHandle struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	EntryPoint string    `json:"entryPoint,omitempty"`
	BuiltAt    time.Time `json:"builtAt"`
}

// CompositionDescriptor is a composition resolved against bound inputs.
type CompositionDescriptor struct {
	ID               string         `json:"id"`
	Component        string         `json:"component,omitempty"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	FPS              int            `json:"fps"`
	DurationInFrames int            `json:"durationInFrames"`
	BoundInputs      map[string]any `json:"boundInputs,omitempty"`
}

// Duration returns the playback length of the composition.
func (c CompositionDescriptor) Duration() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(c.DurationInFrames) * time.Second / time.Duration(c.FPS)
}

// OutputArtifact is a finalized video file.
type OutputArtifact struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
}
