package certs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// ChainFetcher supplies the CA chain document.
type ChainFetcher interface {
	FetchChain(ctx context.Context) ([]byte, error)
}

// Assembler writes certificates into a checkout.
type Assembler struct {
	fetcher   ChainFetcher
	certDir   string
	chainFile string
}

// Assembly lists what was written.
type Assembly struct {
	Dir   string
	Files []string
}

// NewAssembler creates an assembler writing into certDir (relative to the
// repository root) and storing the fetched chain as chainFile.
func NewAssembler(fetcher ChainFetcher, certDir, chainFile string) *Assembler {
	return &Assembler{fetcher: fetcher, certDir: certDir, chainFile: chainFile}
}

// ValidName reports whether name is usable as a certificate file name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// Assemble writes every entry of certs verbatim, then downloads the CA chain
// and writes it to the chain file, replacing a caller file of the same name.
func (a *Assembler) Assemble(ctx context.Context, repoRoot string, certs map[string]string) (*Assembly, error) {
	dir := filepath.Join(repoRoot, a.certDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.FileSystemError("failed to create certificate directory").
			WithCause(err).Fatal().WithContext("path", dir).Build()
	}

	out := &Assembly{Dir: dir}
	names := make([]string, 0, len(certs))
	for name := range certs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if !ValidName(name) {
			return nil, errors.ValidationError("invalid certificate name").WithContext("name", name).Build()
		}
		path := filepath.Join(dir, name)
		content := certs[name]
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // certificates are public material
			return nil, errors.FileSystemError("failed to write certificate").
				WithCause(err).Fatal().WithContext("path", path).Build()
		}
		slog.Info("Wrote certificate", logfields.Path(path), logfields.Bytes(len(content)))
		out.Files = append(out.Files, name)
	}

	chain, err := a.fetcher.FetchChain(ctx)
	if err != nil {
		return nil, err
	}
	chainPath := filepath.Join(dir, a.chainFile)
	if err := os.WriteFile(chainPath, chain, 0o644); err != nil { //nolint:gosec // certificates are public material
		return nil, errors.FileSystemError("failed to write CA chain").
			WithCause(err).Fatal().WithContext("path", chainPath).Build()
	}
	slog.Info("CA chain updated", logfields.Path(chainPath), logfields.Bytes(len(chain)))
	if !slices.Contains(out.Files, a.chainFile) {
		out.Files = append(out.Files, a.chainFile)
	}
	return out, nil
}
