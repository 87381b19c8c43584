package git

import (
	stderrors "errors"

	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

func resolutionError(ref string, err error) error {
	return errors.ResolutionError("cannot resolve commit reference").
		WithContext("ref", ref).
		WithCause(err).
		Build()
}

func integrityError(path, ref string, err error) error {
	msg := "blob missing at expected commit"
	if err != nil && !stderrors.Is(err, object.ErrFileNotFound) {
		msg = "blob unreadable at expected commit"
	}
	return errors.IntegrityError(msg).
		WithContext("path", path).
		WithContext("ref", ref).
		WithCause(err).
		Build()
}
