package commands

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/fwbuilder/internal/build"
	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/notify"
	"git.home.luguber.info/inful/fwbuilder/internal/storage"
)

// historySize bounds the in-memory build history projection.
const historySize = 500

// stack is the build service together with the optional collaborators it
// was wired with.
type stack struct {
	service *build.Service
	journal *eventstore.Journal
	closers []func() error
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newStack builds a Service from cfg. The caller must Close the result.
func newStack(ctx context.Context, cfg *config.Config, recorder metrics.Recorder) (*stack, error) {
	st := &stack{}
	publisher, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	opts := []build.Option{build.WithRecorder(recorder), build.WithPublisher(publisher)}

	if cfg.History.Path != "" {
		journal, err := eventstore.Open(ctx, cfg.History.Path, historySize, cfg.Build.Timeout)
		if err != nil {
			return nil, err
		}
		slog.Info("Build history enabled", logfields.Path(cfg.History.Path))
		st.journal = journal
		st.closers = append(st.closers, journal.Close)
		opts = append(opts, build.WithEventRecorder(journal))
	}

	if cfg.Events.NATSURL != "" {
		notifier, err := notify.NewNATSNotifier(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		st.closers = append(st.closers, notifier.Close)
		opts = append(opts, build.WithNotifier(notifier))
	}

	st.service = build.NewService(cfg, opts...)
	return st, nil
}
