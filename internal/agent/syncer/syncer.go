// Package syncer uploads one sync target: it resolves the target under the
// user's workspace, zips it when it is a directory, uploads the result and
// removes the transient archive.
//
// Callers get an Outcome rather than an error. Every failure has the same
// shape (Failed, status 500, "API request failed"); Kind and Err keep the
// underlying cause for logs and diagnostics.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/dmitrijs2005/syncagent/internal/agent/events"
	"github.com/dmitrijs2005/syncagent/internal/agent/repositories/history"
	"github.com/dmitrijs2005/syncagent/internal/agent/store"
	"github.com/dmitrijs2005/syncagent/internal/agent/upload"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
)

// FailureMessage is the message of every failed Outcome.
const FailureMessage = "API request failed"

const (
	TargetFile      = "file"
	TargetDirectory = "directory"
)

type Uploader interface {
	Upload(ctx context.Context, req upload.UploadRequest) (*upload.Result, error)
}

type Archiver interface {
	ArchiveDirectory(ctx context.Context, src string) (string, error)
}

type CredentialSource interface {
	Load(ctx context.Context) (*store.Credentials, error)
}

type Resolver interface {
	ResolveTarget(username, targetID string) (string, error)
}

// Outcome is the result of one SyncTarget call.
type Outcome struct {
	Failed  bool
	Status  int
	Message string
	Kind    ErrorKind
	Err     error
	Result  *upload.Result
}

func failure(err error) Outcome {
	return Outcome{
		Failed:  true,
		Status:  http.StatusInternalServerError,
		Message: FailureMessage,
		Kind:    classify(err),
		Err:     err,
	}
}

type Config struct {
	EndpointURL string
}

type Orchestrator struct {
	fs       billy.Filesystem
	creds    CredentialSource
	resolver Resolver
	archiver Archiver
	uploader Uploader
	history  history.Repository
	bus      *events.Bus
	log      logging.Logger
	cfg      Config
}

type Deps struct {
	FS       billy.Filesystem
	Creds    CredentialSource
	Resolver Resolver
	Archiver Archiver
	Uploader Uploader
	// History and Bus are optional.
	History history.Repository
	Bus     *events.Bus
	Log     logging.Logger
}

func New(d Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		fs:       d.FS,
		creds:    d.Creds,
		resolver: d.Resolver,
		archiver: d.Archiver,
		uploader: d.Uploader,
		history:  d.History,
		bus:      d.Bus,
		log:      d.Log,
		cfg:      cfg,
	}
}

// SyncTarget uploads the target named targetID. Must not be called
// concurrently for the same target.
func (o *Orchestrator) SyncTarget(ctx context.Context, targetID string) Outcome {
	log := o.log.With("target", targetID)
	log.Info(ctx, "sync start")

	res, targetKind, err := o.run(ctx, log, targetID)

	var out Outcome
	if err != nil {
		out = failure(err)
		log.Error(ctx, "sync failed", "kind", string(out.Kind), "error", err)
	} else {
		out = Outcome{Status: res.StatusCode, Message: res.Status, Result: res}
		log.Info(ctx, "sync completed", "status", res.StatusCode)
	}

	o.record(ctx, log, targetID, targetKind, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, log logging.Logger, targetID string) (*upload.Result, string, error) {
	creds, err := o.creds.Load(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load credentials: %w", err)
	}

	target, err := o.resolver.ResolveTarget(creds.Username, targetID)
	if err != nil {
		return nil, "", err
	}

	info, err := o.fs.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	if err != nil {
		return nil, "", fmt.Errorf("stat %q: %w", target, err)
	}

	req := upload.UploadRequest{
		FilePath:    target,
		EndpointURL: o.cfg.EndpointURL,
		BearerToken: creds.Token.Access,
		Username:    creds.Username,
	}

	if !info.IsDir() {
		res, err := o.uploader.Upload(ctx, req)
		return res, TargetFile, err
	}

	zipPath, err := o.archiver.ArchiveDirectory(ctx, target)
	if err != nil {
		return nil, TargetDirectory, err
	}
	defer o.cleanup(ctx, log, zipPath)

	req.FilePath = zipPath
	req.DirectoryName = upload.DirectoryName(zipPath)

	res, err := o.uploader.Upload(ctx, req)
	return res, TargetDirectory, err
}

func (o *Orchestrator) cleanup(ctx context.Context, log logging.Logger, zipPath string) {
	if err := o.fs.Remove(zipPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn(ctx, "cleanup warning: failed to delete transient archive", "path", zipPath, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, log logging.Logger, targetID, targetKind string, out Outcome) {
	if o.history != nil {
		rec := &history.Record{
			Target:    targetID,
			Kind:      targetKind,
			Succeeded: !out.Failed,
			Status:    out.Status,
			Message:   out.Message,
			ErrorKind: string(out.Kind),
		}
		if out.Err != nil {
			rec.Message = out.Err.Error()
		}
		if err := o.history.Insert(ctx, rec); err != nil {
			log.Warn(ctx, "failed to record sync history", "error", err)
		}
	}

	if o.bus != nil {
		o.bus.PublishSyncCompleted(events.SyncCompleted{
			Target:  targetID,
			Failed:  out.Failed,
			Status:  out.Status,
			Message: out.Message,
			Kind:    string(out.Kind),
		})
	}
}
