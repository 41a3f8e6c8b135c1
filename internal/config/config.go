// Package config loads clipforge settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clipforge/internal/pkg/logger"
)

// Engine kinds.
const (
	EngineLocal  = "local"
	EngineRemote = "remote"
)

// Job store kinds.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Admission policies for a full render queue.
const (
	AdmissionQueue  = "queue"
	AdmissionReject = "reject"
)

// Dispatch modes for the API.
const (
	DispatchLocal = "local"
	DispatchRedis = "redis"
)

// Config is the process configuration shared by every binary.
type Config struct {
	Port    string
	NodeEnv string

	OutputDir          string
	ScratchDir         string
	TemplateEntryPoint string
	CompositionID      string
	Codec              string
	PrebuildProject    bool
	KeepFailedOutputs  bool

	Engine          string
	RendererBaseURL string
	FFmpegBin       string

	Workers    int
	QueueSize  int
	Admission  string
	JobTimeout time.Duration

	JobStore      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	QueueName     string
	Dispatch      string

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string
	LogSource bool
}

// Load reads the configuration from the environment. Call LoadDotEnv first
// to pick up a .env file.
func Load() Config {
	return Config{
		Port:    Env("PORT", "3000"),
		NodeEnv: Env("NODE_ENV", "production"),

		OutputDir:          Env("OUTPUT_DIR", "/tmp/videos"),
		ScratchDir:         Env("SCRATCH_DIR", filepath.Join(Env("TMPDIR", "/tmp"), "clipforge")),
		TemplateEntryPoint: Env("TEMPLATE_ENTRY_POINT", ""),
		CompositionID:      Env("COMPOSITION_ID", "SocialMediaVideo"),
		Codec:              Env("RENDER_CODEC", "h264"),
		PrebuildProject:    BoolEnv("PREBUILD_PROJECT", true),
		KeepFailedOutputs:  BoolEnv("KEEP_FAILED_OUTPUTS", false),

		Engine:          strings.ToLower(Env("RENDER_ENGINE", EngineLocal)),
		RendererBaseURL: Env("RENDERER_HTTP_BASEURL", ""),
		FFmpegBin:       Env("FFMPEG_BIN", "ffmpeg"),

		Workers:    IntEnv("RENDER_WORKERS", 2),
		QueueSize:  IntEnv("RENDER_QUEUE_SIZE", 8),
		Admission:  strings.ToLower(Env("RENDER_ADMISSION", AdmissionQueue)),
		JobTimeout: DurationEnv("RENDER_TIMEOUT", 10*time.Minute),

		JobStore:      strings.ToLower(Env("JOB_STORE", StoreMemory)),
		RedisAddr:     Env("REDIS_ADDR", "localhost:6379"),
		RedisPassword: Env("REDIS_PASSWORD", ""),
		RedisDB:       IntEnv("REDIS_DB", 0),
		DatabaseURL:   Env("DATABASE_URL", ""),
		QueueName:     Env("JOB_QUEUE_NAME", "clipforge:jobs"),
		Dispatch:      strings.ToLower(Env("JOB_DISPATCH", DispatchLocal)),

		CORSAllowedOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),
		ShutdownTimeout: DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel:  Env("LOG_LEVEL", "info"),
		LogFormat: Env("LOG_FORMAT", "json"),
		LogSource: BoolEnv("LOG_SOURCE", false),
	}
}

// LoadDotEnv loads the given .env files (".env" when none are named) into the
// process environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// IsDevelopment reports whether stack traces may be exposed to callers.
func (c Config) IsDevelopment() bool {
	return c.NodeEnv == "development"
}

// Logger returns the logger configuration for serviceName.
func (c Config) Logger(serviceName string) logger.Config {
	return logger.Config{
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		AddSource:   c.LogSource,
		ServiceName: serviceName,
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	if c.CompositionID == "" {
		errs = append(errs, errors.New("COMPOSITION_ID is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("RENDER_WORKERS must be >= 1, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("RENDER_QUEUE_SIZE must be >= 0, got %d", c.QueueSize))
	}
	if c.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("RENDER_TIMEOUT must not be negative, got %s", c.JobTimeout))
	}

	switch c.Admission {
	case AdmissionQueue, AdmissionReject:
	default:
		errs = append(errs, fmt.Errorf("RENDER_ADMISSION must be %q or %q, got %q", AdmissionQueue, AdmissionReject, c.Admission))
	}

	switch c.Engine {
	case EngineLocal:
	case EngineRemote:
		if c.RendererBaseURL == "" {
			errs = append(errs, errors.New("RENDERER_HTTP_BASEURL is required when RENDER_ENGINE=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("RENDER_ENGINE must be %q or %q, got %q", EngineLocal, EngineRemote, c.Engine))
	}

	switch c.JobStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when JOB_STORE=redis"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when JOB_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("JOB_STORE must be memory, redis or postgres, got %q", c.JobStore))
	}

	switch c.Dispatch {
	case DispatchLocal:
	case DispatchRedis:
		if c.JobStore == StoreMemory {
			errs = append(errs, errors.New("JOB_DISPATCH=redis needs a shared JOB_STORE (redis or postgres)"))
		}
	default:
		errs = append(errs, fmt.Errorf("JOB_DISPATCH must be %q or %q, got %q", DispatchLocal, DispatchRedis, c.Dispatch))
	}

	return errors.Join(errs...)
}
