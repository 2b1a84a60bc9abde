package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fwbuilder service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Toolchain  ToolchainConfig  `yaml:"toolchain"`
	Profile    ProfileConfig    `yaml:"profile"`
	TrustChain TrustChainConfig `yaml:"trust_chain"`
	Git        GitConfig        `yaml:"git"`
	Build      BuildConfig      `yaml:"build"`
	Storage    StorageConfig    `yaml:"storage"`
	History    HistoryConfig    `yaml:"history"`
	Events     EventsConfig     `yaml:"events"`
	Janitor    JanitorConfig    `yaml:"janitor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes int64         `yaml:"max_request_bytes"`
}

// WorkspaceConfig controls where per-device workspaces live.
type WorkspaceConfig struct {
	Root       string `yaml:"root"`
	Prefix     string `yaml:"prefix"`
	KeyFile    string `yaml:"key_file"`    // relative to the workspace
	SSHConfig  string `yaml:"ssh_config"`  // relative to the workspace
	RepoDir    string `yaml:"repo_dir"`    // checkout directory inside the workspace
	CertSubdir string `yaml:"cert_subdir"` // certificate directory inside the checkout
}

// ArtifactsConfig controls archive output.
type ArtifactsConfig struct {
	Root       string   `yaml:"root"`
	Candidates []string `yaml:"candidates"`
}

// ToolchainConfig describes how the firmware toolchain is invoked.
type ToolchainConfig struct {
	Command string   `yaml:"command"`
	Shell   []string `yaml:"shell"` // argv prefix, the command is appended
}

// ProfileConfig holds device profile rendering settings.
type ProfileConfig struct {
	DefaultEnv string `yaml:"default_env"`
}

// TrustChainConfig configures the CA chain download.
type TrustChainConfig struct {
	IntermediateURL string        `yaml:"intermediate_url"`
	RootURL         string        `yaml:"root_url"`
	FileName        string        `yaml:"file_name"`
	Timeout         time.Duration `yaml:"timeout"`
	Retry           RetryConfig   `yaml:"retry"`
}

// RetryConfig is the YAML form of a retry policy.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries *int             `yaml:"max_retries"`
}

// Retries returns the configured retry count, or -1 when unset.
func (r RetryConfig) Retries() int {
	if r.MaxRetries == nil {
		return -1
	}
	return *r.MaxRetries
}

// GitConfig configures source checkout.
type GitConfig struct {
	ShallowDepth int    `yaml:"shallow_depth"`
	SSHUser      string `yaml:"ssh_user"`
}

// BuildConfig bounds build runs.
type BuildConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// StorageType selects the artifact publisher.
type StorageType string

const (
	StorageNone StorageType = "none"
	StorageS3   StorageType = "s3"
)

// StorageConfig configures artifact publication.
type StorageConfig struct {
	Type StorageType `yaml:"type"`
	S3   S3Config    `yaml:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	PublicURL       string `yaml:"public_url"`
}

// HistoryConfig configures the build event log. Empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig configures lifecycle notifications. Empty NATSURL disables them.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// JanitorConfig configures periodic workspace pruning.
type JanitorConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
}

// Enabled reports whether pruning is configured.
func (j JanitorConfig) Enabled() bool {
	return j.Interval > 0 && j.Retention > 0
}

// Load reads configuration from path, applies defaults, environment
// overrides and validation. An empty path yields the default configuration.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(".env", ".env.local"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("configuration file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = NewDefaultApplier().ApplyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	slog.Info("Configuration file created", "path", path)
	return nil
}
