package git

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Failure kinds recorded in the "kind" context key of clone errors.
const (
	KindAuth     = "auth"
	KindNotFound = "not_found"
	KindBranch   = "branch"
	KindNetwork  = "network"
	KindProtocol = "protocol"
	KindCanceled = "canceled"
	KindUnknown  = "unknown"
)

// ClassifyCloneError translates go-git errors into a fatal git-category
// ClassifiedError carrying the failure kind.
func ClassifyCloneError(err error, url, branch string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	kind := cloneErrorKind(err)
	builder := errors.GitError("source checkout failed").
		WithCause(err).
		WithContext("op", "clone").
		WithContext("url", url).
		WithContext("branch", branch).
		WithContext("kind", kind)
	if kind == KindCanceled {
		builder.WithCategory(errors.CategoryCanceled)
	}
	return builder.Build()
}

// Kind returns the failure kind recorded on a clone error, or "".
func Kind(err error) string {
	c, ok := errors.AsClassified(err)
	if !ok {
		return ""
	}
	k, _ := c.Context().GetString("kind")
	return k
}

func cloneErrorKind(err error) string {
	var noRef git.NoMatchingRefSpecError
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		stderrors.Is(err, transport.ErrInvalidAuthMethod):
		return KindAuth
	case stderrors.Is(err, transport.ErrRepositoryNotFound),
		stderrors.Is(err, transport.ErrEmptyRemoteRepository):
		return KindNotFound
	case stderrors.Is(err, plumbing.ErrReferenceNotFound), stderrors.As(err, &noRef):
		return KindBranch
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") ||
		strings.Contains(l, "unable to authenticate") || strings.Contains(l, "permission denied"):
		return KindAuth
	case strings.Contains(l, "couldn't find remote ref") || strings.Contains(l, "reference not found"):
		return KindBranch
	case strings.Contains(l, "repository not found") || strings.Contains(l, "not found") ||
		strings.Contains(l, "does not exist"):
		return KindNotFound
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported") ||
		strings.Contains(l, "unsupported scheme"):
		return KindProtocol
	case strings.Contains(l, "timeout") || strings.Contains(l, "connection refused") ||
		strings.Contains(l, "connection reset") || strings.Contains(l, "no route to host") ||
		strings.Contains(l, "no such host") || strings.Contains(l, "remote hung up"):
		return KindNetwork
	default:
		return KindUnknown
	}
}
