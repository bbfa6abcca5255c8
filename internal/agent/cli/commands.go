package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/syncagent/internal/agent/auth"
	"github.com/dmitrijs2005/syncagent/internal/agent/stage"
	"github.com/dmitrijs2005/syncagent/internal/agent/store"
	"github.com/dmitrijs2005/syncagent/internal/agent/workspace"
)

const historyLimit = 20

var ErrEmptyToken = errors.New("empty access token")

// Login saves the username and access token and creates the user's
// workspace.
func (a *App) Login(ctx context.Context) error {
	userName, err := GetSimpleText(a.reader, "-Enter username", a.out)
	if err != nil {
		a.log.Error(ctx, "error reading username", "error", err)
		return err
	}
	if !workspace.ValidName(userName) {
		fmt.Fprintf(a.out, "Invalid username: %q\n", userName)
		return fmt.Errorf("%w: username %q", workspace.ErrInvalidTarget, userName)
	}

	raw, err := GetToken(a.out)
	if err != nil {
		a.log.Error(ctx, "error reading token", "error", err)
		return err
	}
	defer wipe(raw)

	access := strings.TrimSpace(string(raw))
	if access == "" {
		fmt.Fprintln(a.out, "Login unsuccessful: empty token")
		return ErrEmptyToken
	}

	switch err := auth.CheckExpiry(access, time.Now()); {
	case errors.Is(err, auth.ErrTokenExpired):
		fmt.Fprintln(a.out, "Warning: this token has already expired; uploads will be rejected")
	case err != nil:
		a.log.Debug(ctx, "token expiry unknown", "error", err)
	}

	if err := a.creds.Save(ctx, store.Credentials{Username: userName, Token: store.Token{Access: access}}); err != nil {
		a.log.Error(ctx, "failed to save credentials", "error", err)
		fmt.Fprintln(a.out, "Login unsuccessful:", err)
		return err
	}
	a.userName = userName

	res, err := a.ws.Create(ctx, userName)
	if err != nil {
		a.log.Error(ctx, "failed to create workspace", "error", err)
		fmt.Fprintln(a.out, "Logged in, but the workspace could not be created:", err)
		return err
	}
	if res.Created {
		fmt.Fprintln(a.out, "Created workspace", res.Path)
	}

	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout stops auto-sync and forgets the saved credentials.
func (a *App) Logout(ctx context.Context) error {
	if a.autoSync != nil && a.autoSync.Enabled() {
		a.autoSync.Disable(ctx)
	}
	if err := a.creds.Clear(ctx); err != nil {
		a.log.Error(ctx, "failed to clear credentials", "error", err)
		return err
	}
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Init(ctx context.Context) error {
	res, err := a.ws.Create(ctx, a.userName)
	if err != nil {
		fmt.Fprintln(a.out, "Error creating workspace:", err)
		return err
	}
	if res.Created {
		fmt.Fprintln(a.out, "Created workspace", res.Path)
	} else {
		fmt.Fprintln(a.out, "Workspace already exists:", res.Path)
	}
	return nil
}

// List prints the user's workspace, or a directory inside it.
func (a *App) List(ctx context.Context, args []string) error {
	dir, err := a.ws.UserDir(a.userName)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		if dir, err = a.ws.ResolveTarget(a.userName, args[0]); err != nil {
			fmt.Fprintln(a.out, "Invalid directory:", args[0])
			return err
		}
	}

	entries := a.ws.List(ctx, dir)
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return nil
	}
	for _, e := range entries {
		if e.IsDirectory {
			fmt.Fprintf(a.out, "%s/\n", e.Name)
		} else {
			fmt.Fprintln(a.out, e.Name)
		}
	}
	return nil
}

// Stage copies one batch from args[0] into args[1], the configured
// destination or the user's workspace, and records what it staged.
func (a *App) Stage(ctx context.Context, args []string) error {
	dst, err := a.stageDest(args[1:])
	if err != nil {
		return err
	}

	ex, err := a.excl.Load(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error reading synced names:", err)
		return err
	}

	from, dir, _ := a.sourceOf(args[0])
	rep, err := a.stager.CopySelected(ctx, stage.Request{
		Source:            from,
		SourceDir:         dir,
		DestDir:           dst,
		AllowedExtensions: a.config.AllowedExtensions,
		Exclusions:        ex,
	})
	if rep.Done() > 0 {
		if aerr := a.excl.Add(ctx, rep.Archived, rep.Copied); aerr != nil {
			a.log.Error(ctx, "failed to record staged names", "error", aerr)
		}
	}

	for _, name := range rep.Copied {
		fmt.Fprintln(a.out, "copied  ", name)
	}
	for _, name := range rep.Archived {
		fmt.Fprintln(a.out, "archived", name)
	}
	fmt.Fprintf(a.out, "Staged %d item(s), skipped %d, %d left for the next run\n",
		rep.Done(), len(rep.Skipped), rep.Remaining)

	if err != nil {
		fmt.Fprintln(a.out, "Staging stopped:", err)
		return err
	}
	return nil
}

func (a *App) stageDest(args []string) (string, error) {
	switch {
	case len(args) > 0:
		return args[0], nil
	case a.config.StageDestDir != "":
		return a.config.StageDestDir, nil
	default:
		return a.ws.UserDir(a.userName)
	}
}

// Sync uploads one workspace entry. On success the entry's name is added to
// the synced names so staging will not bring it back.
func (a *App) Sync(ctx context.Context, target string) error {
	out := a.syncer.SyncTarget(ctx, target)
	if out.Failed {
		fmt.Fprintf(a.out, "%s (status %d, %s)\n", out.Message, out.Status, out.Kind)
		return out.Err
	}

	fmt.Fprintf(a.out, "Sync completed: %d %s\n", out.Status, out.Message)

	path, err := a.ws.ResolveTarget(a.userName, target)
	if err != nil {
		return nil
	}
	info, err := a.fs.Stat(path)
	if err != nil {
		return nil
	}
	folders, files := []string(nil), []string{target}
	if info.IsDir() {
		folders, files = []string{target}, nil
	}
	if err := a.excl.Add(ctx, folders, files); err != nil {
		a.log.Warn(ctx, "failed to record synced name", "target", target, "error", err)
	}
	return nil
}

// Empty removes a synced entry from the workspace.
func (a *App) Empty(ctx context.Context, target string) error {
	msg, err := a.ws.Empty(ctx, a.userName, target)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

// AutoSync turns auto-sync on (watching args[1] or the configured source) or
// off.
func (a *App) AutoSync(ctx context.Context, args []string) error {
	if args[0] == "off" {
		if a.autoSync == nil || !a.autoSync.Enabled() {
			fmt.Fprintln(a.out, "Auto sync is already off")
			return nil
		}
		a.autoSync.Disable(ctx)
		return nil
	}

	if a.autoSync != nil && a.autoSync.Enabled() {
		fmt.Fprintln(a.out, "Auto sync is already on")
		return nil
	}

	src := a.config.StageSourceDir
	if len(args) > 1 {
		src = args[1]
	}
	if src == "" {
		fmt.Fprintln(a.out, "Usage: autosync on <src> (no stage_source_dir configured)")
		return nil
	}
	dst, err := a.stageDest(nil)
	if err != nil {
		return err
	}

	if a.autoSync != nil {
		a.autoSync.Close()
	}
	a.autoSync = a.newAutoSync(src, dst)
	if err := a.autoSync.Enable(ctx); err != nil {
		fmt.Fprintln(a.out, "Error enabling auto sync:", err)
		return err
	}
	return nil
}

func (a *App) History(ctx context.Context) error {
	return a.printHistory(ctx, historyLimit, false)
}

// Settings asks the UI to show the settings; the shell prints them.
func (a *App) Settings(ctx context.Context) error {
	a.bus.OpenSettings()
	return nil
}

// Logs asks the UI to show the log view; the shell prints recent failures.
func (a *App) Logs(ctx context.Context) error {
	a.bus.OpenLogs()
	return nil
}

func (a *App) printHistory(ctx context.Context, limit int, failedOnly bool) error {
	recs, err := a.db.History.ListRecent(ctx, limit)
	if err != nil {
		a.log.Error(ctx, "failed to read sync history", "error", err)
		fmt.Fprintln(a.out, "Error reading history:", err)
		return err
	}

	n := 0
	for _, r := range recs {
		if failedOnly && r.Succeeded {
			continue
		}
		state := "ok"
		if !r.Succeeded {
			state = "failed"
		}
		line := fmt.Sprintf("%s  %-6s %-9s %s %d", r.CreatedAt.Local().Format(time.DateTime), state, r.Kind, r.Target, r.Status)
		if !r.Succeeded {
			line += fmt.Sprintf(" [%s] %s", r.ErrorKind, r.Message)
		}
		fmt.Fprintln(a.out, line)
		n++
	}
	if n == 0 {
		fmt.Fprintln(a.out, "(no entries)")
	}
	return nil
}

func (a *App) printSettings(ctx context.Context) {
	c := a.config
	fmt.Fprintln(a.out, "Settings:")
	fmt.Fprintln(a.out, "  root dir:          ", c.RootDir)
	fmt.Fprintln(a.out, "  endpoint:          ", c.EndpointURL)
	fmt.Fprintln(a.out, "  upload backend:    ", c.UploadBackend)
	fmt.Fprintln(a.out, "  database:          ", c.DBPath)
	fmt.Fprintln(a.out, "  allowed extensions:", strings.Join(c.AllowedExtensions, " "))
	fmt.Fprintln(a.out, "  stage source:      ", c.StageSourceDir)
	fmt.Fprintln(a.out, "  stage destination: ", c.StageDestDir)

	if folders, err := a.excl.FoldersJSON(ctx); err != nil {
		a.log.Warn(ctx, "failed to read synced folder names", "error", err)
	} else {
		fmt.Fprintln(a.out, "  synced folders:    ", folders)
	}

	// Values stay out of the listing; the token is among them.
	entries, err := a.db.Metadata.Entries(ctx)
	if err != nil {
		a.log.Warn(ctx, "failed to list local state", "error", err)
		return
	}
	fmt.Fprintln(a.out, "Local state:")
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "  (empty)")
	}
	for _, e := range entries {
		updated := "-"
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(a.out, "  %-14s %6d bytes  %s\n", e.Key, e.Size, updated)
	}
}
