package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

func initRemote(t *testing.T, commits int) (path string, head string) {
	t.Helper()

	path = t.TempDir()
	repo, err := ggit.PlainInit(path, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for i := range commits {
		require.NoError(t, os.WriteFile(filepath.Join(path, "platformio.ini"), []byte{byte('a' + i)}, 0o600))
		_, err = wt.Add("platformio.ini")
		require.NoError(t, err)
		_, err = wt.Commit("commit", &ggit.CommitOptions{Author: &object.Signature{
			Name: "t", Email: "t@example.invalid", When: time.Now().Add(time.Duration(i-commits) * time.Hour),
		}})
		require.NoError(t, err)
	}
	ref, err := repo.Head()
	require.NoError(t, err)
	return path, ref.Hash().String()
}

func TestClone_SingleBranch(t *testing.T) {
	remote, head := initRemote(t, 2)
	dest := filepath.Join(t.TempDir(), "ws", "repo")

	res, err := NewClient(0).Clone(t.Context(), CloneRequest{URL: remote, Branch: "master", Dest: dest})
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, "master", res.Branch)
	assert.Equal(t, head, res.Commit)
	assert.FileExists(t, filepath.Join(dest, "platformio.ini"))
}

func TestClone_MissingBranch(t *testing.T) {
	remote, _ := initRemote(t, 1)
	dest := filepath.Join(t.TempDir(), "repo")

	_, err := NewClient(0).Clone(t.Context(), CloneRequest{URL: remote, Branch: "does-not-exist", Dest: dest})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
	assert.True(t, ferrors.HasSeverity(err, ferrors.SeverityFatal))
	assert.Equal(t, KindBranch, Kind(err))
}

func TestClone_MissingRepository(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "repo")
	missing := filepath.Join(t.TempDir(), "nowhere")

	_, err := NewClient(0).Clone(t.Context(), CloneRequest{URL: missing, Branch: "master", Dest: dest})
	require.Error(t, err)
	c, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryGit, c.Category())
	assert.False(t, c.CanRetry(), "checkout failures are never retried")
	url, _ := c.Context().GetString("url")
	assert.Equal(t, missing, url)
}

func TestClassifyCloneError(t *testing.T) {
	tests := []struct {
		msg  string
		kind string
	}{
		{"ssh: handshake failed: ssh: unable to authenticate", KindAuth},
		{"repository not found", KindNotFound},
		{"couldn't find remote ref refs/heads/dev", KindBranch},
		{"unsupported scheme \"gopher\"", KindProtocol},
		{"dial tcp: lookup git.invalid: no such host", KindNetwork},
		{"something odd", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			err := ClassifyCloneError(errString(tt.msg), "ssh://git@example/repo.git", "main")
			assert.Equal(t, tt.kind, Kind(err))
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
		})
	}

	assert.NoError(t, ClassifyCloneError(nil, "", ""))
	already := ferrors.ValidationError("bad").Build()
	assert.Same(t, already, ClassifyCloneError(already, "", ""))
}

type errString string

func (e errString) Error() string { return string(e) }
