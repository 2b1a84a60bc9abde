package handlers

import (
	"context"
	"errors"
	"net/http"

	"git.home.luguber.info/inful/fwbuilder/internal/build"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Runner executes one build request.
type Runner interface {
	Run(ctx context.Context, req build.Request) (*build.Result, error)
}

// BuildHandlers serves POST /build.
type BuildHandlers struct {
	runner       Runner
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewBuildHandlers creates the build handler set.
func NewBuildHandlers(runner Runner, adapter *ferrors.HTTPErrorAdapter) *BuildHandlers {
	return &BuildHandlers{runner: runner, errorAdapter: adapter}
}

// HandleBuild decodes the request body and runs the build synchronously. The
// build is canceled if the client goes away.
func (h *BuildHandlers) HandleBuild(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodPost) {
		return
	}

	req, err := build.DecodeRequest(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = ferrors.ValidationError("request body too large").
				WithContext("limit_bytes", tooLarge.Limit).
				Build()
		}
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	result, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	if err := writeJSONPretty(w, r, http.StatusOK, result); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write build response").Build())
	}
}
