package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/artifact"
	"git.home.luguber.info/inful/fwbuilder/internal/build"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// ArtifactLocator maps a device identity to its archive path.
type ArtifactLocator interface {
	Path(identity string) string
}

// ArtifactHandlers serves GET /artifacts/{identity}.
type ArtifactHandlers struct {
	locator      ArtifactLocator
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewArtifactHandlers creates the artifact download handler set.
func NewArtifactHandlers(locator ArtifactLocator, adapter *ferrors.HTTPErrorAdapter) *ArtifactHandlers {
	return &ArtifactHandlers{locator: locator, errorAdapter: adapter}
}

// HandleDownload streams the latest archive for a device. The identity may be
// given with or without the .zip suffix.
func (h *ArtifactHandlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) {
		return
	}

	identity := strings.TrimSuffix(r.PathValue("identity"), artifact.Extension)
	if !build.ValidIdentity(identity) {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.ValidationError("invalid device identity").
			WithContext("identity", identity).
			Build())
		return
	}

	path := h.locator.Path(identity)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		h.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("artifact not found").
			WithContext("identity", identity).
			Build())
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
