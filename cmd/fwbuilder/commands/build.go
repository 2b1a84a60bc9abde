package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/fwbuilder/internal/build"
	"git.home.luguber.info/inful/fwbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Request string `short:"r" required:"" help:"Path to a JSON build request, or - for stdin" placeholder:"FILE"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	req, err := readRequest(b.Request)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return RunBuild(ctx, cfg, req, g.stdout())
}

// RunBuild executes one build and writes the result as JSON to out.
func RunBuild(ctx context.Context, cfg *config.Config, req build.Request, out io.Writer) error {
	st, err := newStack(ctx, cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	result, err := st.service.Run(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readRequest(path string) (build.Request, error) {
	if path == "-" {
		return build.DecodeRequest(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return build.Request{}, ferrors.ValidationError("cannot open build request").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	return build.DecodeRequest(f)
}
