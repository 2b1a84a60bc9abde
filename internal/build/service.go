package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/fwbuilder/internal/artifact"
	"git.home.luguber.info/inful/fwbuilder/internal/certs"
	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/credentials"
	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/git"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
	"git.home.luguber.info/inful/fwbuilder/internal/notify"
	"git.home.luguber.info/inful/fwbuilder/internal/observability"
	"git.home.luguber.info/inful/fwbuilder/internal/profile"
	"git.home.luguber.info/inful/fwbuilder/internal/retry"
	"git.home.luguber.info/inful/fwbuilder/internal/storage"
	"git.home.luguber.info/inful/fwbuilder/internal/toolchain"
	"git.home.luguber.info/inful/fwbuilder/internal/workspace"
)

// configFileName is the rendered profile's location inside the checkout.
const configFileName = "platformio.ini"

// Toolchain runs the firmware build inside a checkout.
type Toolchain interface {
	Execute(ctx context.Context, repoRoot string) error
}

// EventRecorder persists lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, e eventstore.Event) error
}

// Service executes builds. It is safe for concurrent use.
type Service struct {
	workspaces  *workspace.Manager
	provisioner *credentials.Provisioner
	git         *git.Client
	fetcher     certs.ChainFetcher
	assembler   *certs.Assembler
	toolchain   Toolchain
	packager    *artifact.Packager
	publisher   storage.Publisher
	events      EventRecorder
	notifier    notify.Notifier
	recorder    metrics.Recorder

	repoDir    string
	defaultEnv string
	timeout    time.Duration
	sem        *semaphore.Weighted
	inFlight   atomic.Int64
	newID      func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPublisher mirrors archives to remote storage.
func WithPublisher(p storage.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithEventRecorder persists build events (typically an *eventstore.Journal).
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// WithNotifier announces build events.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithChainFetcher replaces the CA chain download.
func WithChainFetcher(f certs.ChainFetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithToolchain replaces the toolchain runner.
func WithToolchain(t Toolchain) Option {
	return func(s *Service) { s.toolchain = t }
}

// NewService wires a Service from configuration.
func NewService(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		recorder:  metrics.NoopRecorder{},
		publisher: storage.NoopPublisher{},
		notifier:  notify.NoopNotifier{},
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.fetcher == nil {
		s.fetcher = certs.NewFetcher(
			cfg.TrustChain.IntermediateURL,
			cfg.TrustChain.RootURL,
			cfg.TrustChain.Timeout,
			retry.FromConfig(cfg.TrustChain.Retry),
			certs.WithRecorder(s.recorder),
		)
	}
	if s.toolchain == nil {
		s.toolchain = toolchain.NewExecutor(cfg.Toolchain.Shell, cfg.Toolchain.Command)
	}

	s.workspaces = workspace.NewManager(cfg.Workspace.Root, cfg.Workspace.Prefix)
	s.provisioner = credentials.NewProvisioner(cfg.Workspace.KeyFile, cfg.Workspace.SSHConfig, cfg.Git.SSHUser)
	s.git = git.NewClient(cfg.Git.ShallowDepth)
	s.assembler = certs.NewAssembler(s.fetcher, cfg.Workspace.CertSubdir, cfg.TrustChain.FileName)
	s.packager = artifact.NewPackager(cfg.Artifacts.Root, cfg.Artifacts.Candidates)
	s.repoDir = cfg.Workspace.RepoDir
	s.defaultEnv = cfg.Profile.DefaultEnv
	s.timeout = cfg.Build.Timeout
	if cfg.Build.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.Build.MaxConcurrent))
	}
	return s
}

// Workspaces exposes the workspace manager (for pruning).
func (s *Service) Workspaces() *workspace.Manager { return s.workspaces }

// Packager exposes the archive packager (for downloads and pruning).
func (s *Service) Packager() *artifact.Packager { return s.packager }

// run carries the per-build state shared by stages.
type run struct {
	req       Request
	id        string
	started   time.Time
	workspace string
	repoRoot  string
	material  *credentials.Material
	commit    string
	rendered  *profile.Rendered
	archive   *artifact.Archive
	url       string
	warnings  []string
}

func (r *run) warn(ctx context.Context, err error) {
	if err == nil {
		return
	}
	observability.WarnContext(ctx, "Build degraded", logfields.Error(err))
	r.warnings = append(r.warnings, err.Error())
}

// Run executes the pipeline for req. On failure the result is nil and the
// error is a *StageError.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{req: req, id: s.newID(), started: time.Now()}
	ctx = observability.WithBuildID(ctx, r.id)
	ctx = observability.WithDevice(ctx, req.Device.Identity)

	if err := req.Validate(); err != nil {
		s.recorder.IncBuildOutcome(metrics.BuildOutcomeFailed)
		return nil, &StageError{Stage: StageValidate, Kind: string(ferrors.CategoryValidation), Err: err}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// The workspace lock is taken before a build slot so that runs queued
	// behind the same device never occupy a slot.
	unlock, err := s.workspaces.Lock(ctx, req.Device.Identity)
	if err != nil {
		return nil, s.fail(ctx, r, stageFailure(ctx, StagePrepare, err))
	}
	defer unlock()
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, s.fail(ctx, r, stageFailure(ctx, StagePrepare, err))
		}
		defer s.sem.Release(1)
	}

	s.recorder.SetBuildsInFlight(int(s.inFlight.Add(1)))
	defer func() { s.recorder.SetBuildsInFlight(int(s.inFlight.Add(-1))) }()

	observability.InfoContext(ctx, "Build started",
		logfields.Repository(req.Repository.URL),
		logfields.Branch(req.Repository.Branch))
	if started, err := eventstore.NewBuildStarted(r.id, req.Device.Identity, eventstore.BuildStartedData{
		Repository:   req.Repository.URL,
		Branch:       req.Repository.Branch,
		Authenticate: req.Repository.SSHKey != "",
		Certificates: req.CertificateNames(),
	}); err == nil {
		s.emit(ctx, started)
	}

	steps := []struct {
		name StageName
		fn   func(context.Context, *run) error
	}{
		{StagePrepare, s.prepare},
		{StageCredentials, s.provision},
		{StageCheckout, s.checkout},
		{StageConfigure, s.configure},
		{StageCertificates, s.certificates},
		{StageBuild, s.build},
		{StagePackage, s.pack},
		{StagePublish, s.publish},
	}
	for _, step := range steps {
		if err := s.stage(ctx, r, step.name, step.fn); err != nil {
			return nil, s.fail(ctx, r, err)
		}
	}

	res := &Result{
		Status:      StatusDone,
		Artifact:    r.archive.Path,
		BuildID:     r.id,
		Device:      req.Device.Identity,
		Commit:      r.commit,
		Files:       r.archive.Files,
		ArtifactURL: r.url,
		DurationMS:  time.Since(r.started).Milliseconds(),
		Warnings:    r.warnings,
	}
	if res.Files == nil {
		res.Files = []string{}
	}

	outcome := metrics.BuildOutcomeSuccess
	if len(r.warnings) > 0 {
		outcome = metrics.BuildOutcomeWarning
	}
	s.recorder.IncBuildOutcome(outcome)
	s.recorder.ObserveBuildDuration(time.Since(r.started))
	if done, err := eventstore.NewBuildCompleted(r.id, req.Device.Identity, eventstore.BuildCompletedData{
		Artifact:    res.Artifact,
		ArtifactURL: res.ArtifactURL,
		Files:       res.Files,
		Commit:      res.Commit,
		DurationMS:  res.DurationMS,
		Warnings:    res.Warnings,
	}); err == nil {
		s.emit(ctx, done)
	}
	observability.InfoContext(ctx, "Build finished",
		logfields.Path(res.Artifact),
		logfields.DurationMS(float64(res.DurationMS)),
		slog.Int("files", len(res.Files)))
	return res, nil
}

// stage runs fn with stage-scoped logging, metrics and events.
func (s *Service) stage(ctx context.Context, r *run, name StageName, fn func(context.Context, *run) error) *StageError {
	ctx = observability.WithStage(ctx, string(name))
	if ctx.Err() != nil {
		return stageFailure(ctx, name, ctx.Err())
	}

	start := time.Now()
	observability.DebugContext(ctx, "Stage started")
	err := fn(ctx, r)
	elapsed := time.Since(start)
	s.recorder.ObserveStageDuration(string(name), elapsed)

	if err != nil {
		se := stageFailure(ctx, name, err)
		result := metrics.ResultFatal
		if se.Kind == string(ferrors.CategoryCanceled) || se.Kind == string(ferrors.CategoryTimeout) {
			result = metrics.ResultCanceled
		}
		s.recorder.IncStageResult(string(name), result)
		return se
	}

	s.recorder.IncStageResult(string(name), metrics.ResultSuccess)
	observability.InfoContext(ctx, "Stage completed", logfields.DurationMS(float64(elapsed.Milliseconds())))
	if e, eerr := eventstore.NewStageCompleted(r.id, r.req.Device.Identity, string(name), elapsed); eerr == nil {
		s.emit(ctx, e)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, r *run, se *StageError) error {
	outcome := metrics.BuildOutcomeFailed
	if se.Kind == string(ferrors.CategoryCanceled) || se.Kind == string(ferrors.CategoryTimeout) {
		outcome = metrics.BuildOutcomeCanceled
	}
	s.recorder.IncBuildOutcome(outcome)
	s.recorder.ObserveBuildDuration(time.Since(r.started))

	observability.ErrorContext(ctx, "Build failed",
		logfields.Stage(string(se.Stage)),
		slog.String("kind", se.Kind),
		logfields.Error(se.Err))
	if e, err := eventstore.NewBuildFailed(r.id, r.req.Device.Identity, eventstore.BuildFailedData{
		Stage:      string(se.Stage),
		Kind:       se.Kind,
		Error:      se.Err.Error(),
		DurationMS: time.Since(r.started).Milliseconds(),
	}); err == nil {
		s.emit(ctx, e)
	}
	return se
}

// emit records and announces e. Neither may fail the build; the context is
// detached so terminal events survive a canceled request.
func (s *Service) emit(ctx context.Context, e eventstore.Event) {
	ctx = context.WithoutCancel(ctx)
	if s.events != nil {
		if err := s.events.Record(ctx, e); err != nil {
			observability.WarnContext(ctx, "Failed to record build event", slog.String("type", e.Type()), logfields.Error(err))
		}
	}
	s.notifier.Notify(ctx, e)
}

func (s *Service) prepare(ctx context.Context, r *run) error {
	path, warning, err := s.workspaces.Reset(r.req.Device.Identity)
	if err != nil {
		return err
	}
	r.warn(ctx, warning)
	r.workspace = path
	r.repoRoot = filepath.Join(path, s.repoDir)
	observability.InfoContext(ctx, "Workspace ready", logfields.Path(path))
	return nil
}

func (s *Service) provision(_ context.Context, r *run) error {
	m, err := s.provisioner.Provision(r.workspace, r.req.Repository.SSHKey)
	if err != nil {
		return err
	}
	r.material = m
	return nil
}

func (s *Service) checkout(ctx context.Context, r *run) error {
	req := git.CloneRequest{
		URL:    r.req.Repository.URL,
		Branch: r.req.Repository.Branch,
		Dest:   r.repoRoot,
	}
	if r.material != nil {
		req.Auth = r.material.Auth
		observability.DebugContext(ctx, "Using SSH credentials", slog.String("ssh_command", r.material.SSHCommand()))
	}
	res, err := s.git.Clone(ctx, req)
	if err != nil {
		return err
	}
	r.commit = res.Commit
	return nil
}

func (s *Service) configure(ctx context.Context, r *run) error {
	rendered, warning, err := profile.Prepare(r.req.Profile.Script, r.req.Device.TemplateFields(), s.defaultEnv)
	if err != nil {
		return err
	}
	r.warn(ctx, warning)

	path := filepath.Join(r.repoRoot, configFileName)
	if err := os.WriteFile(path, []byte(rendered.Script), 0o644); err != nil { //nolint:gosec // build configuration is not secret
		return ferrors.FileSystemError("failed to write build configuration").
			WithCause(err).
			Fatal().
			WithContext("path", path).
			Build()
	}
	r.rendered = rendered
	observability.InfoContext(ctx, "Build configuration written",
		logfields.Path(path),
		logfields.Env(rendered.EnvName))
	return nil
}

func (s *Service) certificates(ctx context.Context, r *run) error {
	_, err := s.assembler.Assemble(ctx, r.repoRoot, r.req.Certificates)
	return err
}

func (s *Service) build(ctx context.Context, r *run) error {
	return s.toolchain.Execute(ctx, r.repoRoot)
}

func (s *Service) pack(ctx context.Context, r *run) error {
	a, err := s.packager.Package(filepath.Join(r.repoRoot, filepath.FromSlash(r.rendered.BuildPath)), r.req.Device.Identity)
	if err != nil {
		return err
	}
	r.warn(ctx, a.Warning)
	s.recorder.ObserveArchivedFiles(len(a.Files))
	r.archive = a
	return nil
}

func (s *Service) publish(ctx context.Context, r *run) error {
	url, err := s.publisher.Publish(ctx, storage.Key("", r.req.Device.Identity), r.archive.Path)
	if err != nil {
		return err
	}
	r.url = url
	return nil
}
