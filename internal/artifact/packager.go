// Package artifact bundles toolchain outputs into per-device zip archives.
package artifact

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// Extension is appended to the device identity to form the archive name.
const Extension = ".zip"

// Archive describes a packaged build output.
type Archive struct {
	Path  string
	Files []string
	Bytes int64
	// Warning is set when the archive is valid but unexpected (no candidates found).
	Warning error
}

// Packager writes archives into a single artifact directory.
type Packager struct {
	root       string
	candidates []string
	now        func() time.Time
}

// NewPackager creates a packager collecting candidates (bare file names, in
// archive order) into root.
func NewPackager(root string, candidates []string) *Packager {
	return &Packager{root: root, candidates: candidates, now: time.Now}
}

// Root returns the artifact directory.
func (p *Packager) Root() string {
	return p.root
}

// Path returns the archive path for identity.
func (p *Packager) Path(identity string) string {
	return filepath.Join(p.root, identity+Extension)
}

// Package archives every candidate present in outputDir into
// <root>/<identity>.zip, replacing any previous archive atomically.
func (p *Packager) Package(outputDir, identity string) (*Archive, error) {
	if err := os.MkdirAll(p.root, 0o750); err != nil {
		return nil, errors.PackagingError("failed to create artifact directory").
			WithCause(err).
			WithContext("path", p.root).
			Build()
	}

	found := make([]string, 0, len(p.candidates))
	for _, name := range p.candidates {
		info, err := os.Stat(filepath.Join(outputDir, name))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found = append(found, name)
	}

	dest := p.Path(identity)
	tmp, err := os.CreateTemp(p.root, "."+identity+"-*.zip.tmp")
	if err != nil {
		return nil, errors.PackagingError("failed to create archive").
			WithCause(err).
			WithContext("path", dest).
			Build()
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	zw := zip.NewWriter(tmp)
	for _, name := range found {
		if err := addFile(zw, filepath.Join(outputDir, name), name); err != nil {
			_ = zw.Close()
			_ = tmp.Close()
			cleanup()
			return nil, errors.PackagingError("failed to add file to archive").
				WithCause(err).
				WithContext("file", name).
				WithContext("path", dest).
				Build()
		}
		slog.Debug("Archived file", logfields.File(name), logfields.Path(dest))
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		cleanup()
		return nil, errors.PackagingError("failed to finalize archive").WithCause(err).WithContext("path", dest).Build()
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, errors.PackagingError("failed to close archive").WithCause(err).WithContext("path", dest).Build()
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return nil, errors.PackagingError("failed to move archive into place").WithCause(err).WithContext("path", dest).Build()
	}

	archive := &Archive{Path: dest, Files: found}
	if info, err := os.Stat(dest); err == nil {
		archive.Bytes = info.Size()
	}
	if len(found) == 0 {
		archive.Warning = errors.NotFoundError("no build artifacts found").
			Warning().
			WithContext("output_dir", outputDir).
			WithContext("candidates", strings.Join(p.candidates, ",")).
			Build()
		slog.Warn("Archive is empty, no candidate binaries found", logfields.Path(outputDir))
	}
	slog.Info("Packaged artifacts", logfields.Path(dest), slog.Int("files", len(found)), slog.Int64("bytes", archive.Bytes))
	return archive, nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src) //nolint:gosec // src is a fixed candidate inside the build output directory
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}

// Prune removes archives last modified before olderThan ago.
func (p *Packager) Prune(olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileSystemError("failed to list artifact directory").WithCause(err).WithContext("path", p.root).Build()
	}
	cutoff := p.now().Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(p.root, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to prune archive", logfields.Path(path), logfields.Error(err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, nil
}
