package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"clipforge/internal/pkg/errors"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "clipforge-test",
	}), &buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "json", config: Config{Level: "info", Format: "json", ServiceName: "clipforge-api"}},
		{name: "debug level", config: Config{Level: "debug", Format: "json"}},
		{name: "text format", config: Config{Level: "info", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if New(tt.config) == nil {
				t.Fatal("expected logger to be non-nil")
			}
		})
	}
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Info("render queued", "composition", "SocialMediaVideo")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "render queued" {
		t.Errorf("expected msg='render queued', got %v", entry["msg"])
	}
	if entry["composition"] != "SocialMediaVideo" {
		t.Errorf("expected composition attr, got %v", entry["composition"])
	}
	if entry["service"] != "clipforge-test" {
		t.Errorf("expected service='clipforge-test', got %v", entry["service"])
	}
	ts, _ := entry["time"].(string)
	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("expected UTC timestamp, got %q", ts)
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info level logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"info level does not log debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"debug level logs debug", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"error level does not log warn", "error", func(l *Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)
			if (buf.Len() > 0) != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got output %q", tt.shouldLog, buf.String())
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.WithJobID("job-456").WithStage("rendering").WithComponent("pipeline").Info("progress")

	output := buf.String()
	for _, want := range []string{`"job_id":"job-456"`, `"stage":"rendering"`, `"component":"pipeline"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestWithError(t *testing.T) {
	log, buf := newBufferLogger("info")

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}

	log.WithError(context.DeadlineExceeded).Info("test message")
	if !strings.Contains(buf.String(), "deadline exceeded") {
		t.Errorf("expected output to contain error, got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")
	ctx = ContextWithStage(ctx, "bundling")

	log.FromContext(ctx).Info("test message")

	output := buf.String()
	for _, want := range []string{"req-abc", "job-xyz", "bundling"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %s, got: %s", want, output)
		}
	}
	if JobIDFromContext(ctx) != "job-xyz" {
		t.Errorf("JobIDFromContext = %q", JobIDFromContext(ctx))
	}
	if JobIDFromContext(context.Background()) != "" {
		t.Error("expected empty job id for bare context")
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{" info ", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogError(t *testing.T) {
	log, buf := newBufferLogger("info")
	ctx := ContextWithJobID(context.Background(), "job-7")

	log.LogError(ctx, "failed to admit job", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing logged for nil error, got %s", buf.String())
	}

	err := errors.Wrap(errors.NotFound("job", "job-7"), "jobs.enqueue", "load job")
	log.LogError(ctx, "failed to admit job", err, "attempt", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}
	want := map[string]any{
		"level":  "ERROR",
		"job_id": "job-7",
		"code":   "NOT_FOUND",
		"op":     "jobs.enqueue",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("expected %s=%v, got %v", k, v, entry[k])
		}
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("expected attempt=2, got %v", entry["attempt"])
	}
}
