package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override configuration file values.
const (
	EnvListen        = "FWBUILDER_LISTEN"
	EnvWorkspaceRoot = "FWBUILDER_WORKSPACE_ROOT"
	EnvArtifactRoot  = "FWBUILDER_ARTIFACT_ROOT"
	EnvLogLevel      = "FWBUILDER_LOG_LEVEL"
)

// loadEnvFiles loads KEY=VALUE files into the process environment.
// Missing files are skipped and variables already set are not overwritten.
func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		slog.Debug("Loaded environment variables", "path", p)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkspaceRoot)); v != "" {
		cfg.Workspace.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvArtifactRoot)); v != "" {
		cfg.Artifacts.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = NormalizeLogLevel(v)
	}
}
