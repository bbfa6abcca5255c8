package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/syncagent/internal/agent/archive"
	"github.com/dmitrijs2005/syncagent/internal/agent/autosync"
	"github.com/dmitrijs2005/syncagent/internal/agent/config"
	"github.com/dmitrijs2005/syncagent/internal/agent/events"
	"github.com/dmitrijs2005/syncagent/internal/agent/mirror"
	"github.com/dmitrijs2005/syncagent/internal/agent/stage"
	"github.com/dmitrijs2005/syncagent/internal/agent/store"
	"github.com/dmitrijs2005/syncagent/internal/agent/syncer"
	"github.com/dmitrijs2005/syncagent/internal/agent/upload"
	"github.com/dmitrijs2005/syncagent/internal/agent/workspace"
	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
)

// autoSyncer is the part of autosync.Controller the shell drives.
type autoSyncer interface {
	Enabled() bool
	Enable(ctx context.Context) error
	Disable(ctx context.Context)
	Close()
}

type App struct {
	config   *config.Config
	log      logging.Logger
	fs       billy.Filesystem
	db       *store.DB
	creds    *store.CredentialStore
	excl     *store.ExclusionStore
	ws       *workspace.Manager
	archiver *archive.Archiver
	stager   *stage.Copier
	syncer   *syncer.Orchestrator
	bus      *events.Bus

	// newAutoSync builds a controller staging src into dst.
	newAutoSync func(src, dst string) autoSyncer
	autoSync    autoSyncer

	userName string
	reader   *bufio.Reader
	out      io.Writer
}

// Deps are the pieces New cannot build itself.
type Deps struct {
	Config   *config.Config
	FS       billy.Filesystem
	DB       *store.DB
	Uploader syncer.Uploader
	Log      logging.Logger
	In       io.Reader
	Out      io.Writer
}

// New assembles an App from d and subscribes the shell to UI events.
func New(d Deps) (*App, error) {
	out := &syncWriter{w: d.Out}
	bus := events.New()
	ws := workspace.New(d.FS, d.Log)
	arch := archive.New(d.FS, d.Log)
	creds := store.NewCredentialStore(d.DB)

	a := &App{
		config:   d.Config,
		log:      d.Log,
		fs:       d.FS,
		db:       d.DB,
		creds:    creds,
		excl:     store.NewExclusionStore(d.DB),
		ws:       ws,
		archiver: arch,
		stager:   stage.New(d.FS, arch, d.Log, stage.Options{}),
		syncer: syncer.New(syncer.Deps{
			FS:       d.FS,
			Creds:    creds,
			Resolver: ws,
			Archiver: arch,
			Uploader: d.Uploader,
			History:  d.DB.History,
			Bus:      bus,
			Log:      d.Log,
		}, syncer.Config{EndpointURL: d.Config.EndpointURL}),
		bus:    bus,
		reader: bufio.NewReader(d.In),
		out:    out,
	}
	a.newAutoSync = a.buildAutoSync

	if err := a.subscribe(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewApp opens the local store, picks the upload backend and wires the
// shell to the process's terminal.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	db, err := store.Open(ctx, c.DBPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DBPath, "error", err)
		return nil, err
	}

	fsys := fsx.OS(c.RootDir)

	up, err := newUploader(ctx, c, fsys, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a, err := New(Deps{Config: c, FS: fsys, DB: db, Uploader: up, Log: log, In: os.Stdin, Out: os.Stdout})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newUploader(ctx context.Context, c *config.Config, fsys billy.Filesystem, log logging.Logger) (syncer.Uploader, error) {
	if c.UploadBackend != config.BackendS3 {
		return upload.NewClient(fsys, log, c.HTTPTimeout), nil
	}

	m, err := mirror.New(ctx, fsys, mirror.Config{
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	}, log)
	if err != nil {
		log.Error(ctx, "failed to set up s3 mirror", "bucket", c.S3Bucket, "error", err)
		return nil, err
	}
	return m, nil
}

// sourceOf resolves a staging source argument to the filesystem it is read
// from, its path there and the OS path to watch. Absolute paths are read in
// place; relative ones live under root_dir.
func (a *App) sourceOf(src string) (billy.Filesystem, string, string) {
	if filepath.IsAbs(src) {
		return fsx.OS(src), "", src
	}
	return a.fs, src, filepath.Join(a.config.RootDir, filepath.FromSlash(src))
}

func (a *App) buildAutoSync(src, dst string) autoSyncer {
	from, dir, watch := a.sourceOf(src)
	return autosync.New(autosync.Config{
		WatchDir:          watch,
		Source:            from,
		SourceDir:         dir,
		DestDir:           dst,
		AllowedExtensions: a.config.AllowedExtensions,
		Debounce:          a.config.WatchDebounce,
		NotifyDelay:       a.config.NotifyDelay,
	}, autosync.NewNotifyWatcher(), a.stager, a.excl, a.bus, a.log)
}

// Run restores a saved session and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	a.restoreSession(ctx)
	fmt.Fprintln(a.out, "Welcome to the Dentread sync agent (type 'help' for commands)")

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// Close stops auto-sync and closes the local store.
func (a *App) Close() {
	if a.autoSync != nil {
		a.autoSync.Close()
	}
	a.bus.WaitAsync()
	if err := a.db.Close(); err != nil {
		a.log.Warn(context.Background(), "failed to close database", "error", err)
	}
}

func (a *App) restoreSession(ctx context.Context) {
	c, err := a.creds.Load(ctx)
	if err != nil {
		a.log.Debug(ctx, "no saved session", "error", err)
		return
	}
	a.userName = c.Username
	a.log.Info(ctx, "session restored", "username", c.Username)
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) getStatus() string {
	s := a.userName
	if a.autoSync != nil && a.autoSync.Enabled() {
		if s != "" {
			s += " "
		}
		s += "autosync"
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// subscribe stands the terminal in for the desktop UI. Handlers run with the
// bus locked and must not publish.
func (a *App) subscribe() error {
	if err := a.bus.OnNotification(func(n events.Notification) {
		fmt.Fprintf(a.out, "\n[%s] %s\n", n.Title, n.Message)
	}); err != nil {
		return err
	}
	if err := a.bus.OnToggle(func(enabled bool, foldersJSON string) {
		if enabled {
			fmt.Fprintf(a.out, "Auto sync is on; synced folders: %s\n", foldersJSON)
			return
		}
		fmt.Fprintln(a.out, "Auto sync is off")
	}); err != nil {
		return err
	}
	if err := a.bus.OnOpenSettings(func() { a.printSettings(context.Background()) }); err != nil {
		return err
	}
	return a.bus.OnOpenLogs(func() { a.printHistory(context.Background(), historyLimit, true) })
}

// syncWriter serialises writes from the REPL and from timer callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
