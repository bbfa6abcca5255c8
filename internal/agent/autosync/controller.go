// Package autosync keeps the staging area fed while auto-sync is on.
//
// While enabled, the Controller watches the source tree and runs one staging
// pass per debounced burst of changes. Passes run on a single goroutine, so
// two never overlap. Turning auto-sync off schedules a one-shot reminder
// notification.
package autosync

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/syncagent/internal/agent/events"
	"github.com/dmitrijs2005/syncagent/internal/agent/models"
	"github.com/dmitrijs2005/syncagent/internal/agent/stage"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
)

const (
	DefaultNotifyDelay = 5 * time.Minute
	DefaultDebounce    = 2 * time.Second

	NotificationTitle   = "Dentread IM App Auto Sync Notification"
	NotificationMessage = "This is to notify that auto sync is off"
)

type Stager interface {
	CopySelected(ctx context.Context, req stage.Request) (stage.Report, error)
}

type Exclusions interface {
	Load(ctx context.Context) (models.Exclusions, error)
	FoldersJSON(ctx context.Context) (string, error)
	Add(ctx context.Context, folders, files []string) error
}

type Config struct {
	// WatchDir is the OS path watched for changes.
	WatchDir string
	// Source is the filesystem SourceDir is read from; nil means the
	// stager's own. DestDir is always on the stager's filesystem.
	Source            billy.Filesystem
	SourceDir         string
	DestDir           string
	AllowedExtensions []string

	Debounce    time.Duration
	NotifyDelay time.Duration
}

type Controller struct {
	cfg     Config
	watcher Watcher
	stager  Stager
	excl    Exclusions
	bus     *events.Bus
	log     logging.Logger

	mu      sync.Mutex
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
	timer   *time.Timer
}

func New(cfg Config, w Watcher, s Stager, ex Exclusions, bus *events.Bus, log logging.Logger) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.NotifyDelay <= 0 {
		cfg.NotifyDelay = DefaultNotifyDelay
	}
	return &Controller{cfg: cfg, watcher: w, stager: s, excl: ex, bus: bus, log: log}
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Enable announces auto-sync, cancels a pending off reminder and starts
// watching. A first pass runs right away. Enabling twice is a no-op.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	if c.enabled {
		c.mu.Unlock()
		return nil
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	evs, err := c.watcher.Watch(c.cfg.WatchDir)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.enabled = true
	go c.loop(runCtx, evs, c.done)
	c.mu.Unlock()

	folders, err := c.excl.FoldersJSON(ctx)
	if err != nil {
		c.log.Warn(ctx, "failed to read synced folder names", "error", err)
		folders = "[]"
	}
	c.bus.PublishToggle(true, folders)

	c.log.Info(ctx, "auto sync enabled", "watch", c.cfg.WatchDir)
	return nil
}

// Disable stops watching, waits for an in-flight pass to return, announces
// the change and schedules the off reminder.
func (c *Controller) Disable(ctx context.Context) {
	c.stop()

	c.bus.PublishToggle(false, "")

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.cfg.NotifyDelay, func() {
		c.bus.PublishNotification(events.Notification{
			Title:   NotificationTitle,
			Message: NotificationMessage,
			Sound:   true,
		})
	})
	c.mu.Unlock()

	c.log.Info(ctx, "auto sync disabled", "reminder_in", c.cfg.NotifyDelay.String())
}

// Close stops watching and drops any pending reminder without publishing.
func (c *Controller) Close() {
	c.stop()

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
}

func (c *Controller) stop() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.enabled, c.cancel, c.done = false, nil, nil
	c.mu.Unlock()

	cancel()
	c.watcher.Stop()
	<-done
}

func (c *Controller) loop(ctx context.Context, evs <-chan string, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-evs:
			if !ok {
				evs = nil
				continue
			}
			resetTimer(timer, c.cfg.Debounce)
		case <-timer.C:
			more := c.pass(ctx)
			if more && ctx.Err() == nil {
				resetTimer(timer, c.cfg.Debounce)
			}
		}
	}
}

// pass runs one staging pass and records what it staged. It reports whether
// the source still had unexamined items.
func (c *Controller) pass(ctx context.Context) bool {
	ex, err := c.excl.Load(ctx)
	if err != nil {
		c.log.Error(ctx, "auto sync pass skipped", "error", err)
		return false
	}

	rep, err := c.stager.CopySelected(ctx, stage.Request{
		Source:            c.cfg.Source,
		SourceDir:         c.cfg.SourceDir,
		DestDir:           c.cfg.DestDir,
		AllowedExtensions: c.cfg.AllowedExtensions,
		Exclusions:        ex,
	})
	if err != nil {
		c.log.Error(ctx, "auto sync pass failed", "error", err)
	}

	if rep.Done() > 0 {
		if err := c.excl.Add(ctx, rep.Archived, rep.Copied); err != nil {
			c.log.Error(ctx, "failed to record staged names", "error", err)
			return false
		}
	}
	return err == nil && rep.Remaining > 0
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
