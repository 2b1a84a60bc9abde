package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/janitor"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/server/handlers"
	"git.home.luguber.info/inful/fwbuilder/internal/server/httpserver"
	"git.home.luguber.info/inful/fwbuilder/internal/version"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Listen string `short:"l" help:"Override server.listen" placeholder:"ADDR"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Server.Listen = s.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg, g.Logger)
}

// RunServe serves the build API until ctx is canceled.
func RunServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting fwbuilder", slog.String("version", version.Resolved()))

	reg := metrics.NewRegistry()
	st, err := newStack(ctx, cfg, metrics.NewPrometheusRecorder(reg))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn("Failed to close build stack", slog.Any("error", cerr))
		}
	}()

	if cfg.Janitor.Enabled() {
		j, err := janitor.New(cfg.Janitor.Interval, cfg.Janitor.Retention,
			janitor.Target{Name: "workspaces", Pruner: st.service.Workspaces()},
			janitor.Target{Name: "artifacts", Pruner: st.service.Packager()},
		)
		if err != nil {
			return fmt.Errorf("create janitor: %w", err)
		}
		j.Start(ctx)
		defer func() { _ = j.Stop(context.WithoutCancel(ctx)) }()
	}

	opts := httpserver.Options{
		Runner:    st.service,
		Artifacts: st.service.Packager(),
		Metrics:   metrics.HTTPHandler(reg),
		Logger:    logger,
	}
	// A typed nil journal must not become a non-nil interface.
	if st.journal != nil {
		opts.History = handlers.History(st.journal)
	}

	if err := httpserver.New(cfg, opts).Run(ctx); err != nil {
		return err
	}
	logger.Info("fwbuilder stopped")
	return nil
}
