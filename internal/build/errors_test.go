package build

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/git"
)

func TestStageFailureKinds(t *testing.T) {
	ctx := context.Background()

	se := stageFailure(ctx, StageBuild, ferrors.ToolchainError("exit 1").Build())
	assert.Equal(t, "toolchain", se.Kind)

	cloneErr := git.ClassifyCloneError(fmt.Errorf("authentication required"), "u", "b")
	se = stageFailure(ctx, StageCheckout, cloneErr)
	assert.Equal(t, git.KindAuth, se.Kind)

	se = stageFailure(ctx, StageBuild, fmt.Errorf("plain"))
	assert.Equal(t, string(ferrors.CategoryInternal), se.Kind)
}

func TestStageFailureReclassifiesExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	se := stageFailure(ctx, StageCheckout, ferrors.GitError("clone failed").Build())
	assert.Equal(t, string(ferrors.CategoryCanceled), se.Kind)
	assert.True(t, ferrors.HasCategory(se, ferrors.CategoryCanceled))
	assert.True(t, ferrors.HasCategory(se.Err, ferrors.CategoryCanceled))
}

func TestStageErrorUnwrapsAndNames(t *testing.T) {
	cause := ferrors.PackagingError("zip failed").Build()
	se := &StageError{Stage: StagePackage, Kind: "packaging", Err: cause}

	assert.ErrorIs(t, se, cause)
	assert.Equal(t, "package", se.FailedStage())
	assert.Contains(t, se.Error(), "package")
	assert.Contains(t, se.Error(), "zip failed")
}

func TestStageFailureKeepsExistingStageError(t *testing.T) {
	inner := &StageError{Stage: StageCheckout, Kind: "git", Err: fmt.Errorf("x")}
	assert.Same(t, inner, stageFailure(context.Background(), StageBuild, fmt.Errorf("wrap: %w", inner)))
}
