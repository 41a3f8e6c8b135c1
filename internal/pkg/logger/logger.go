// Package logger is the structured logger shared by the API, the queue worker
// and the CLI. Lines are slog records tagged with the service name; request,
// job and pipeline stage ids travel in the context and are added by
// FromContext.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"clipforge/internal/pkg/errors"
)

type contextKey string

// Context keys, also used as the attribute names on log lines.
const (
	RequestIDKey contextKey = "request_id"
	JobIDKey     contextKey = "job_id"
	StageKey     contextKey = "stage"
)

// contextFields are copied from the context onto the logger, in this order.
var contextFields = []contextKey{RequestIDKey, JobIDKey, StageKey}

type Logger struct {
	*slog.Logger
}

// Config selects level, encoding and destination.
type Config struct {
	Level       string // debug, info, warn or error
	Format      string // json (default) or text
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "clipforge"),
	}
}

// New builds a Logger. Timestamps are written in UTC.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

func utcTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{Level: "error", Output: io.Discard})
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String(key, value))}
}

func (l *Logger) WithRequestID(id string) *Logger { return l.with(string(RequestIDKey), id) }
func (l *Logger) WithJobID(id string) *Logger     { return l.with(string(JobIDKey), id) }
func (l *Logger) WithStage(stage string) *Logger  { return l.with(string(StageKey), stage) }
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithError attaches err's message; a nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// FromContext returns l with the request, job and stage ids found in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	for _, key := range contextFields {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			out = out.with(string(key), v)
		}
	}
	return out
}

// LogError logs err at error level with its code and operation, plus the
// ids carried by ctx.
func (l *Logger) LogError(ctx context.Context, msg string, err error, args ...any) {
	if err == nil {
		return
	}
	args = append(args, "error", err.Error(), "code", string(errors.GetCode(err)))
	if op := errors.GetOp(err); op != "" {
		args = append(args, "op", op)
	}
	l.FromContext(ctx).Error(msg, args...)
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error(), "code", string(errors.GetCode(err)))
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, JobIDKey, id)
}

func ContextWithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// JobIDFromContext returns the job id carried by ctx, or "".
func JobIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(JobIDKey).(string)
	return v
}

// parseLevel accepts slog level names in any case, plus "warning".
// Anything else is info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
