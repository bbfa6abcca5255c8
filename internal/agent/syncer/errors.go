package syncer

import (
	"errors"

	"github.com/dmitrijs2005/syncagent/internal/agent/archive"
	"github.com/dmitrijs2005/syncagent/internal/agent/store"
	"github.com/dmitrijs2005/syncagent/internal/agent/upload"
	"github.com/dmitrijs2005/syncagent/internal/agent/workspace"
)

var ErrTargetNotFound = errors.New("sync target not found")

// ErrorKind names the failure class behind a failed Outcome.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindArchive        ErrorKind = "archive"
	KindNetwork        ErrorKind = "network"
	KindAPI            ErrorKind = "api"
	KindTargetNotFound ErrorKind = "target_not_found"
	KindCredentials    ErrorKind = "credentials"
	KindInternal       ErrorKind = "internal"
)

func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, archive.ErrArchive):
		return KindArchive
	case errors.Is(err, upload.ErrNetwork):
		return KindNetwork
	case errors.Is(err, upload.ErrAPI):
		return KindAPI
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, workspace.ErrInvalidTarget):
		return KindTargetNotFound
	case errors.Is(err, store.ErrNoCredentials), errors.Is(err, store.ErrBadToken):
		return KindCredentials
	default:
		return KindInternal
	}
}
