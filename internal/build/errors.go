package build

import (
	"context"
	stderrors "errors"
	"fmt"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/git"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageValidate     StageName = "validate"
	StagePrepare      StageName = "prepare"
	StageCredentials  StageName = "credentials"
	StageCheckout     StageName = "checkout"
	StageConfigure    StageName = "configure"
	StageCertificates StageName = "certificates"
	StageBuild        StageName = "build"
	StagePackage      StageName = "package"
	StagePublish      StageName = "publish"
)

// Stages lists the pipeline stages in execution order.
var Stages = []StageName{
	StagePrepare,
	StageCredentials,
	StageCheckout,
	StageConfigure,
	StageCertificates,
	StageBuild,
	StagePackage,
	StagePublish,
}

// StageError reports the stage that aborted a build.
type StageError struct {
	Stage StageName
	// Kind is a short machine-readable failure class such as "auth",
	// "toolchain" or "timeout".
	Kind string
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("build stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage name for error adapters.
func (e *StageError) FailedStage() string { return string(e.Stage) }

// stageFailure wraps err for stage. When ctx has expired the cause is
// reclassified as a timeout or cancellation.
func stageFailure(ctx context.Context, stage StageName, err error) *StageError {
	var se *StageError
	if stderrors.As(err, &se) {
		return se
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		want := ferrors.CategoryTimeout
		if stderrors.Is(ctxErr, context.Canceled) {
			want = ferrors.CategoryCanceled
		}
		if ferrors.GetCategory(err) != want {
			err = ferrors.TimeoutError("build interrupted").
				WithCategory(want).
				WithCause(err).
				WithContext("stage", string(stage)).
				Build()
		}
		return &StageError{Stage: stage, Kind: string(want), Err: err}
	}
	return &StageError{Stage: stage, Kind: kindOf(err), Err: err}
}

func kindOf(err error) string {
	if k := git.Kind(err); k != "" && k != git.KindUnknown {
		return k
	}
	return string(ferrors.GetCategory(err))
}
