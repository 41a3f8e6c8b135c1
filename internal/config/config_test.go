package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "NODE_ENV", "OUTPUT_DIR", "RENDER_WORKERS", "RENDER_ADMISSION", "JOB_STORE", "RENDER_TIMEOUT", "COMPOSITION_ID"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "/tmp/videos", cfg.OutputDir)
	assert.Equal(t, "SocialMediaVideo", cfg.CompositionID)
	assert.Equal(t, "h264", cfg.Codec)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, AdmissionQueue, cfg.Admission)
	assert.Equal(t, StoreMemory, cfg.JobStore)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.False(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("NODE_ENV", "development")
	t.Setenv("RENDER_WORKERS", "4")
	t.Setenv("RENDER_ADMISSION", "REJECT")
	t.Setenv("RENDER_TIMEOUT", "90")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, AdmissionReject, cfg.Admission)
	assert.Equal(t, 90*time.Second, cfg.JobTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)

	lc := cfg.Logger("clipforge-api")
	assert.Equal(t, "clipforge-api", lc.ServiceName)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Port:          "3000",
			OutputDir:     "/tmp/videos",
			CompositionID: "SocialMediaVideo",
			Workers:       1,
			Admission:     AdmissionQueue,
			Engine:        EngineLocal,
			JobStore:      StoreMemory,
			Dispatch:      DispatchLocal,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "RENDER_WORKERS"},
		{"bad admission", func(c *Config) { c.Admission = "drop" }, "RENDER_ADMISSION"},
		{"remote without url", func(c *Config) { c.Engine = EngineRemote }, "RENDERER_HTTP_BASEURL"},
		{"unknown engine", func(c *Config) { c.Engine = "gpu" }, "RENDER_ENGINE"},
		{"postgres without dsn", func(c *Config) { c.JobStore = StorePostgres }, "DATABASE_URL"},
		{"redis dispatch needs shared store", func(c *Config) { c.Dispatch = DispatchRedis }, "JOB_DISPATCH"},
		{"unknown store", func(c *Config) { c.JobStore = "etcd" }, "JOB_STORE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	for _, want := range []string{"PORT", "OUTPUT_DIR", "RENDER_WORKERS", "RENDER_ENGINE", "JOB_STORE"} {
		assert.True(t, strings.Contains(err.Error(), want), "missing %s in %v", want, err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CF_STR", "  value ")
	t.Setenv("CF_BOOL", "yes")
	t.Setenv("CF_INT", "x")
	t.Setenv("CF_DUR", "1m30s")

	assert.Equal(t, "value", Env("CF_STR", "def"))
	assert.Equal(t, "def", Env("CF_MISSING", "def"))
	assert.True(t, BoolEnv("CF_BOOL", true), "invalid bool keeps default")
	assert.Equal(t, 7, IntEnv("CF_INT", 7))
	assert.Equal(t, 90*time.Second, DurationEnv("CF_DUR", time.Second))

	_, err := MustEnv("CF_MISSING")
	assert.Error(t, err)
	v, err := MustEnv("CF_STR")
	assert.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CF_DOTENV_ONLY=from-file\nCF_DOTENV_SET=from-file\n"), 0o600))

	t.Setenv("CF_DOTENV_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("CF_DOTENV_ONLY") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	assert.Equal(t, "from-file", os.Getenv("CF_DOTENV_ONLY"))
	assert.Equal(t, "from-env", os.Getenv("CF_DOTENV_SET"))
}
