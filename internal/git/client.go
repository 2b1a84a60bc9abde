package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// Client performs source checkouts.
type Client struct {
	shallowDepth int
}

// NewClient creates a client. A shallowDepth of 0 clones full history.
func NewClient(shallowDepth int) *Client {
	if shallowDepth < 0 {
		shallowDepth = 0
	}
	return &Client{shallowDepth: shallowDepth}
}

// CloneRequest describes one checkout.
type CloneRequest struct {
	URL    string
	Branch string
	Dest   string
	// Auth is nil for anonymous access.
	Auth transport.AuthMethod
}

// CloneResult reports where the checkout landed.
type CloneResult struct {
	Path   string
	Branch string
	Commit string
}

// Clone performs a single-branch clone of req.Branch into req.Dest.
// Dest must not exist or be empty. Failures are never retried.
func (c *Client) Clone(ctx context.Context, req CloneRequest) (*CloneResult, error) {
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o750); err != nil {
		return nil, fmt.Errorf("prepare clone destination: %w", err)
	}

	opts := &git.CloneOptions{
		URL:           req.URL,
		ReferenceName: plumbing.NewBranchReferenceName(req.Branch),
		SingleBranch:  true,
		Auth:          req.Auth,
		Tags:          git.NoTags,
	}
	if c.shallowDepth > 0 {
		opts.Depth = c.shallowDepth
	}

	slog.Debug("Cloning repository",
		logfields.URL(req.URL),
		logfields.Branch(req.Branch),
		logfields.Path(req.Dest),
		slog.Bool("authenticated", req.Auth != nil))

	repo, err := git.PlainCloneContext(ctx, req.Dest, false, opts)
	if err != nil {
		return nil, ClassifyCloneError(err, req.URL, req.Branch)
	}

	res := &CloneResult{Path: req.Dest, Branch: req.Branch}
	if ref, herr := repo.Head(); herr == nil {
		res.Commit = ref.Hash().String()
	}
	slog.Info("Repository cloned",
		logfields.URL(req.URL),
		logfields.Branch(req.Branch),
		logfields.Commit(shortHash(res.Commit)),
		logfields.Path(req.Dest))
	return res, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
