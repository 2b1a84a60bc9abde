package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fwbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "/workspace", cfg.Workspace.Root)
	assert.Equal(t, "build_", cfg.Workspace.Prefix)
	assert.Equal(t, "id_rsa", cfg.Workspace.KeyFile)
	assert.Equal(t, ".ssh/config", cfg.Workspace.SSHConfig)
	assert.Equal(t, "repo", cfg.Workspace.RepoDir)
	assert.Equal(t, "src/certs", cfg.Workspace.CertSubdir)
	assert.Equal(t, "/workspace/build", cfg.Artifacts.Root)
	assert.Equal(t, []string{"bootloader.bin", "partitions.bin", "firmware.bin", "spiffs.bin"}, cfg.Artifacts.Candidates)
	assert.Equal(t, "pio run && pio run -t buildfs -v", cfg.Toolchain.Command)
	assert.Equal(t, []string{"/bin/sh", "-c"}, cfg.Toolchain.Shell)
	assert.Equal(t, "esp32dev", cfg.Profile.DefaultEnv)
	assert.Equal(t, "https://letsencrypt.org/certs/lets-encrypt-r3.pem", cfg.TrustChain.IntermediateURL)
	assert.Equal(t, "https://letsencrypt.org/certs/isrgrootx1.pem", cfg.TrustChain.RootURL)
	assert.Equal(t, "isrgrootx1.pem", cfg.TrustChain.FileName)
	assert.Equal(t, 10*time.Second, cfg.TrustChain.Timeout)
	assert.Equal(t, RetryBackoffFixed, cfg.TrustChain.Retry.Backoff)
	assert.Equal(t, 2*time.Second, cfg.TrustChain.Retry.Initial)
	assert.Equal(t, 2, cfg.TrustChain.Retry.Retries())
	assert.Equal(t, 30*time.Minute, cfg.Build.Timeout)
	assert.Equal(t, StorageNone, cfg.Storage.Type)
	assert.Equal(t, "fwbuilder", cfg.Events.SubjectPrefix)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.False(t, cfg.Janitor.Enabled())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("FW_TEST_BUCKET", "firmware-artifacts")
	path := writeConfig(t, `
server:
  listen: "127.0.0.1:9090"
workspace:
  root: /srv/fw
  prefix: debug_build_
toolchain:
  command: "make all"
trust_chain:
  timeout: 3s
  retry:
    backoff: Exponential
    max_retries: 0
build:
  timeout: 5m
  max_concurrent: 2
storage:
  type: s3
  s3:
    bucket: ${FW_TEST_BUCKET}
janitor:
  interval: 1h
  retention: 72h
logging:
  level: DEBUG
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "/srv/fw", cfg.Workspace.Root)
	assert.Equal(t, "debug_build_", cfg.Workspace.Prefix)
	assert.Equal(t, "make all", cfg.Toolchain.Command)
	assert.Equal(t, 3*time.Second, cfg.TrustChain.Timeout)
	assert.Equal(t, RetryBackoffExponential, cfg.TrustChain.Retry.Backoff)
	assert.Equal(t, 0, cfg.TrustChain.Retry.Retries(), "explicit zero retries must survive defaults")
	assert.Equal(t, 5*time.Minute, cfg.Build.Timeout)
	assert.Equal(t, 2, cfg.Build.MaxConcurrent)
	assert.Equal(t, StorageS3, cfg.Storage.Type)
	assert.Equal(t, "firmware-artifacts", cfg.Storage.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.True(t, cfg.Janitor.Enabled())
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvListen, ":7070")
	t.Setenv(EnvWorkspaceRoot, "/data/ws")
	t.Setenv(EnvArtifactRoot, "/data/out")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "/data/ws", cfg.Workspace.Root)
	assert.Equal(t, "/data/out", cfg.Artifacts.Root)
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"relative workspace root", func(c *Config) { c.Workspace.Root = "ws" }, "workspace.root"},
		{"relative artifact root", func(c *Config) { c.Artifacts.Root = "out" }, "artifacts.root"},
		{"escaping repo dir", func(c *Config) { c.Workspace.RepoDir = "../repo" }, "workspace.repo_dir"},
		{"candidate with directory", func(c *Config) { c.Artifacts.Candidates = []string{"x/firmware.bin"} }, "artifacts.candidates"},
		{"bad chain url", func(c *Config) { c.TrustChain.RootURL = "ftp://example.com/x.pem" }, "trust_chain.root_url"},
		{"bad backoff", func(c *Config) { c.TrustChain.Retry.Backoff = "random" }, "trust_chain.retry.backoff"},
		{"empty command", func(c *Config) { c.Toolchain.Command = "  " }, "toolchain.command"},
		{"negative concurrency", func(c *Config) { c.Build.MaxConcurrent = -1 }, "build.max_concurrent"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, "storage.s3.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }, "storage.type"},
		{"half janitor", func(c *Config) { c.Janitor.Interval = time.Hour }, "janitor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(cfg)
			err := Validate(cfg)
			require.Error(t, err)

			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, ferrors.CategoryConfig, ce.Category())
			field, _ := ce.Context().GetString("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fwbuilder.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "existing file must not be overwritten without force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Toolchain.Command, cfg.Toolchain.Command)
}
