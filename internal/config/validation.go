package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Validate checks the configuration for values that cannot be applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ferrors.ConfigError("configuration is nil").Build()
	}
	checks := []func(*Config) error{
		validatePaths,
		validateTrustChain,
		validatePipeline,
		validateStorage,
		validateJanitor,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validatePaths(cfg *Config) error {
	if !filepath.IsAbs(cfg.Workspace.Root) {
		return invalid("workspace.root", cfg.Workspace.Root, "must be an absolute path")
	}
	if !filepath.IsAbs(cfg.Artifacts.Root) {
		return invalid("artifacts.root", cfg.Artifacts.Root, "must be an absolute path")
	}
	if strings.ContainsRune(cfg.Workspace.Prefix, filepath.Separator) {
		return invalid("workspace.prefix", cfg.Workspace.Prefix, "must not contain a path separator")
	}
	for field, rel := range map[string]string{
		"workspace.key_file":    cfg.Workspace.KeyFile,
		"workspace.ssh_config":  cfg.Workspace.SSHConfig,
		"workspace.repo_dir":    cfg.Workspace.RepoDir,
		"workspace.cert_subdir": cfg.Workspace.CertSubdir,
	} {
		if filepath.IsAbs(rel) || strings.HasPrefix(filepath.Clean(rel), "..") {
			return invalid(field, rel, "must be relative and stay inside the workspace")
		}
	}
	for _, name := range cfg.Artifacts.Candidates {
		if name == "" || filepath.Base(name) != name {
			return invalid("artifacts.candidates", name, "must be a bare file name")
		}
	}
	return nil
}

func validateTrustChain(cfg *Config) error {
	tc := cfg.TrustChain
	for field, raw := range map[string]string{
		"trust_chain.intermediate_url": tc.IntermediateURL,
		"trust_chain.root_url":         tc.RootURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(field, raw, "must be an http(s) URL")
		}
	}
	if filepath.Base(tc.FileName) != tc.FileName {
		return invalid("trust_chain.file_name", tc.FileName, "must be a bare file name")
	}
	if NormalizeRetryBackoff(string(tc.Retry.Backoff)) == "" {
		return invalid("trust_chain.retry.backoff", string(tc.Retry.Backoff), "must be fixed, linear or exponential")
	}
	if tc.Retry.Retries() < 0 {
		return invalid("trust_chain.retry.max_retries", fmt.Sprint(tc.Retry.Retries()), "cannot be negative")
	}
	return nil
}

func validatePipeline(cfg *Config) error {
	if strings.TrimSpace(cfg.Toolchain.Command) == "" {
		return invalid("toolchain.command", cfg.Toolchain.Command, "must not be empty")
	}
	if cfg.Build.MaxConcurrent < 0 {
		return invalid("build.max_concurrent", fmt.Sprint(cfg.Build.MaxConcurrent), "cannot be negative")
	}
	if cfg.Git.ShallowDepth < 0 {
		return invalid("git.shallow_depth", fmt.Sprint(cfg.Git.ShallowDepth), "cannot be negative")
	}
	return nil
}

func validateStorage(cfg *Config) error {
	switch cfg.Storage.Type {
	case StorageNone:
		return nil
	case StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			return invalid("storage.s3.bucket", "", "is required when storage.type is s3")
		}
		return nil
	default:
		return invalid("storage.type", string(cfg.Storage.Type), "must be none or s3")
	}
}

func validateJanitor(cfg *Config) error {
	j := cfg.Janitor
	if (j.Interval > 0) != (j.Retention > 0) {
		return invalid("janitor", fmt.Sprintf("interval=%s retention=%s", j.Interval, j.Retention),
			"interval and retention must be set together")
	}
	return nil
}

func invalid(field, value, reason string) error {
	return ferrors.ConfigError(fmt.Sprintf("invalid %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		Build()
}
