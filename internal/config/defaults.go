package config

import "time"

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultListen          = ":8080"
	DefaultWorkspaceRoot   = "/workspace"
	DefaultWorkspacePrefix = "build_"
	DefaultKeyFile         = "id_rsa"
	DefaultSSHConfig       = ".ssh/config"
	DefaultRepoDir         = "repo"
	DefaultCertSubdir      = "src/certs"
	DefaultArtifactRoot    = "/workspace/build"
	DefaultToolchainCmd    = "pio run && pio run -t buildfs -v"
	DefaultEnvName         = "esp32dev"
	DefaultIntermediateURL = "https://letsencrypt.org/certs/lets-encrypt-r3.pem"
	DefaultRootURL         = "https://letsencrypt.org/certs/isrgrootx1.pem"
	DefaultChainFileName   = "isrgrootx1.pem"
	DefaultFetchTimeout    = 10 * time.Second
	DefaultRetryDelay      = 2 * time.Second
	DefaultRetryMax        = 30 * time.Second
	DefaultMaxRetries      = 2
	DefaultBuildTimeout    = 30 * time.Minute
	DefaultSSHUser         = "git"
	DefaultSubjectPrefix   = "fwbuilder"
)

// DefaultCandidates lists the binaries collected from the toolchain output, in archive order.
func DefaultCandidates() []string {
	return []string{"bootloader.bin", "partitions.bin", "firmware.bin", "spiffs.bin"}
}

// DefaultShell is the argv prefix used to run the toolchain command.
func DefaultShell() []string {
	return []string{"/bin/sh", "-c"}
}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&ServerDefaultApplier{},
			&WorkspaceDefaultApplier{},
			&PipelineDefaultApplier{},
			&TrustChainDefaultApplier{},
			&IntegrationDefaultApplier{},
		},
	}
}

// ApplyDefaults runs every domain applier in order.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, a := range c.appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// ServerDefaultApplier handles server and logging defaults.
type ServerDefaultApplier struct{}

func (s *ServerDefaultApplier) Domain() string { return "server" }

func (s *ServerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxRequestBytes <= 0 {
		cfg.Server.MaxRequestBytes = 10 << 20
	}
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// WorkspaceDefaultApplier handles workspace and artifact path defaults.
type WorkspaceDefaultApplier struct{}

func (w *WorkspaceDefaultApplier) Domain() string { return "workspace" }

func (w *WorkspaceDefaultApplier) ApplyDefaults(cfg *Config) error {
	ws := &cfg.Workspace
	if ws.Root == "" {
		ws.Root = DefaultWorkspaceRoot
	}
	if ws.Prefix == "" {
		ws.Prefix = DefaultWorkspacePrefix
	}
	if ws.KeyFile == "" {
		ws.KeyFile = DefaultKeyFile
	}
	if ws.SSHConfig == "" {
		ws.SSHConfig = DefaultSSHConfig
	}
	if ws.RepoDir == "" {
		ws.RepoDir = DefaultRepoDir
	}
	if ws.CertSubdir == "" {
		ws.CertSubdir = DefaultCertSubdir
	}
	if cfg.Artifacts.Root == "" {
		cfg.Artifacts.Root = DefaultArtifactRoot
	}
	if len(cfg.Artifacts.Candidates) == 0 {
		cfg.Artifacts.Candidates = DefaultCandidates()
	}
	return nil
}

// PipelineDefaultApplier handles toolchain, profile, git and build defaults.
type PipelineDefaultApplier struct{}

func (p *PipelineDefaultApplier) Domain() string { return "pipeline" }

func (p *PipelineDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Toolchain.Command == "" {
		cfg.Toolchain.Command = DefaultToolchainCmd
	}
	if len(cfg.Toolchain.Shell) == 0 {
		cfg.Toolchain.Shell = DefaultShell()
	}
	if cfg.Profile.DefaultEnv == "" {
		cfg.Profile.DefaultEnv = DefaultEnvName
	}
	if cfg.Git.SSHUser == "" {
		cfg.Git.SSHUser = DefaultSSHUser
	}
	if cfg.Build.Timeout <= 0 {
		cfg.Build.Timeout = DefaultBuildTimeout
	}
	return nil
}

// TrustChainDefaultApplier handles CA chain download defaults.
type TrustChainDefaultApplier struct{}

func (t *TrustChainDefaultApplier) Domain() string { return "trust_chain" }

func (t *TrustChainDefaultApplier) ApplyDefaults(cfg *Config) error {
	tc := &cfg.TrustChain
	if tc.IntermediateURL == "" {
		tc.IntermediateURL = DefaultIntermediateURL
	}
	if tc.RootURL == "" {
		tc.RootURL = DefaultRootURL
	}
	if tc.FileName == "" {
		tc.FileName = DefaultChainFileName
	}
	if tc.Timeout <= 0 {
		tc.Timeout = DefaultFetchTimeout
	}
	if tc.Retry.Backoff == "" {
		tc.Retry.Backoff = RetryBackoffFixed
	} else if m := NormalizeRetryBackoff(string(tc.Retry.Backoff)); m != "" {
		tc.Retry.Backoff = m
	}
	if tc.Retry.Initial <= 0 {
		tc.Retry.Initial = DefaultRetryDelay
	}
	if tc.Retry.Max <= 0 {
		tc.Retry.Max = DefaultRetryMax
	}
	if tc.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		tc.Retry.MaxRetries = &n
	}
	return nil
}

// IntegrationDefaultApplier handles storage, events and history defaults.
type IntegrationDefaultApplier struct{}

func (i *IntegrationDefaultApplier) Domain() string { return "integrations" }

func (i *IntegrationDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageNone
	}
	if cfg.Storage.Type == StorageS3 && cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = DefaultSubjectPrefix
	}
	return nil
}
