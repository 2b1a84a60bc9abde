// Package commands implements the fwbuilder CLI commands.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
)

// Global is shared state passed to every command.
type Global struct {
	Logger *slog.Logger
	// Stdout receives command output; nil means os.Stdout.
	Stdout io.Writer
}

func (g *Global) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (defaults only when empty)" env:"FWBUILDER_CONFIG" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve      ServeCmd   `cmd:"" help:"Run the HTTP build server"`
	Build      BuildCmd   `cmd:"" help:"Run one build from a JSON request file"`
	Init       InitCmd    `cmd:"" help:"Write an example configuration file"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; it installs a bootstrap logger that is
// refined once the configuration is loaded.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(os.Stderr, config.LogFormatText, level)
	slog.SetDefault(logger)
	if g != nil {
		g.Logger = logger
	}
	return nil
}

// loadConfig loads the configured file and applies its logging section.
// --verbose always wins over the configured level.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(os.Stderr, cfg.Logging.Format, level)
	slog.SetDefault(logger)
	g.Logger = logger
	return cfg, nil
}

func newLogger(w io.Writer, format config.LogFormat, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
