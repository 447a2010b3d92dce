package git

import (
	"context"
	"errors"
	"net"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	platformerrors "github.com/jhol/marlintool/errors"
)

// wrapError classifies a go-git error and wraps it with message. The
// original error stays in the chain for errors.Is/errors.As.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return platformerrors.Wrap(err, classifyError(err), message)
}

func wrapPathError(err error, message, path string) error {
	if err == nil {
		return nil
	}
	return platformerrors.WithContext(wrapError(err, message), "path", path)
}

func wrapURLError(err error, message, url string) error {
	if err == nil {
		return nil
	}
	if url == "" {
		return wrapError(err, message)
	}
	return platformerrors.WithContext(wrapError(err, message+" "+url), "url", url)
}

// classifyError maps go-git errors to platform error codes. Errors that
// carry no recognizable cause are CodeInternal.
//
//nolint:gocyclo,cyclop // each case is a simple mapping
func classifyError(err error) platformerrors.ErrorCode {
	var noMatch gogit.NoMatchingRefSpecError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return platformerrors.CodeTimeout
	case errors.Is(err, context.Canceled):
		return platformerrors.CodeInternal

	case errors.Is(err, gogit.ErrRepositoryNotExists),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, gogit.ErrRemoteNotFound),
		errors.Is(err, gogit.ErrBranchNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.As(err, &noMatch):
		return platformerrors.CodeNotFound

	case errors.Is(err, gogit.ErrRepositoryAlreadyExists),
		errors.Is(err, gogit.ErrRemoteExists),
		errors.Is(err, gogit.ErrBranchExists):
		return platformerrors.CodeAlreadyExists

	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return platformerrors.CodeUnauthorized

	case errors.Is(err, gogit.ErrWorktreeNotClean),
		errors.Is(err, gogit.ErrEmptyCommit):
		return platformerrors.CodeConflict

	case errors.Is(err, gogit.ErrMissingURL),
		errors.Is(err, gogit.ErrMissingAuthor),
		errors.Is(err, gogit.ErrMissingName),
		errors.Is(err, gogit.ErrHashOrReference),
		errors.Is(err, gogit.ErrBranchHashExclusive),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return platformerrors.CodeInvalidInput

	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return platformerrors.CodeTimeout
		}
		return platformerrors.CodeNetwork
	}

	var coded platformerrors.PlatformError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return platformerrors.CodeInternal
}
