// Package stage copies a bounded batch of new items from a source directory
// into a destination tree.
//
// Files with an allowed extension are copied verbatim. Directories are zipped
// into the destination as "<name>.zip". Names already present in the caller's
// exclusion sets are skipped, so repeated calls work through the source a
// batch at a time without a persisted cursor. Links in the source are
// followed; a link whose target is gone is skipped.
package stage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/dmitrijs2005/syncagent/internal/agent/archive"
	"github.com/dmitrijs2005/syncagent/internal/agent/models"
	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
)

// BatchLimit is the number of successful copies and archives per call.
const BatchLimit = 5

// Reason says why an item was left alone.
type Reason string

const (
	ReasonExcludedFolder  Reason = "excluded folder"
	ReasonZipSuffix       Reason = "folder name ends in .zip"
	ReasonAlreadyArchived Reason = "archive exists at destination"
	ReasonExtension       Reason = "extension not allowed"
	ReasonExcludedFile    Reason = "excluded file"
	ReasonBrokenLink      Reason = "link target missing"
)

type Request struct {
	// Source is the filesystem SourceDir lives on. Nil means the copier's
	// own filesystem, which always receives the output.
	Source            billy.Filesystem
	SourceDir         string
	DestDir           string
	AllowedExtensions []string
	Exclusions        models.Exclusions
}

type Skip struct {
	Name   string
	Reason Reason
}

// Report describes one call. Remaining counts snapshot items not examined.
type Report struct {
	Copied    []string
	Archived  []string
	Skipped   []Skip
	Remaining int
}

// Done is the number of items counted toward the batch limit.
func (r Report) Done() int { return len(r.Copied) + len(r.Archived) }

type Options struct {
	// BatchLimit overrides the default of 5 when positive.
	BatchLimit int
}

type Copier struct {
	fs       billy.Filesystem
	archiver *archive.Archiver
	log      logging.Logger
	limit    int
}

func New(fsys billy.Filesystem, archiver *archive.Archiver, log logging.Logger, opts Options) *Copier {
	limit := BatchLimit
	if opts.BatchLimit > 0 {
		limit = opts.BatchLimit
	}
	return &Copier{fs: fsys, archiver: archiver, log: log, limit: limit}
}

// CopySelected processes req.SourceDir in name order, one item at a time,
// until the batch limit is reached or the listing is exhausted. The listing
// is taken once at the start. The first failing item aborts the scan; the
// partial report is returned along with the error.
func (c *Copier) CopySelected(ctx context.Context, req Request) (Report, error) {
	var rep Report

	from := req.Source
	if from == nil {
		from = c.fs
	}

	items, err := fsx.ReadDirSorted(from, req.SourceDir)
	if err != nil {
		c.log.Error(ctx, "staging failed", "source", req.SourceDir, "error", err)
		return rep, err
	}

	if err := c.fs.MkdirAll(req.DestDir, 0o755); err != nil {
		err = fmt.Errorf("create destination %q: %w", req.DestDir, err)
		c.log.Error(ctx, "staging failed", "destination", req.DestDir, "error", err)
		return rep, err
	}

	allowed := extensionSet(req.AllowedExtensions)
	folders, files := req.Exclusions.Folders, req.Exclusions.Files

	for i, item := range items {
		if rep.Done() >= c.limit {
			rep.Remaining = len(items) - i
			break
		}
		if err := ctx.Err(); err != nil {
			rep.Remaining = len(items) - i
			return rep, err
		}

		name := item.Name()
		src := from.Join(req.SourceDir, name)

		if item.Mode()&os.ModeSymlink != 0 {
			resolved, err := from.Stat(src)
			if err != nil {
				c.log.Warn(ctx, "skipping unresolvable link", "item", src, "error", err)
				rep.Skipped = append(rep.Skipped, Skip{Name: name, Reason: ReasonBrokenLink})
				continue
			}
			item = resolved
		}

		if item.IsDir() {
			reason, err := c.skipDir(name, req.DestDir, folders)
			if err != nil {
				rep.Remaining = len(items) - i - 1
				c.log.Error(ctx, "staging aborted", "item", src, "error", err)
				return rep, err
			}
			if reason != "" {
				rep.Skipped = append(rep.Skipped, Skip{Name: name, Reason: reason})
				continue
			}

			dst := c.fs.Join(req.DestDir, name+archive.Ext)
			if err := c.archiver.ArchiveFrom(ctx, from, src, dst); err != nil {
				rep.Remaining = len(items) - i - 1
				c.log.Error(ctx, "staging aborted", "item", src, "error", err)
				return rep, err
			}
			rep.Archived = append(rep.Archived, name)
			c.log.Info(ctx, "archived folder", "source", src, "destination", dst)
			continue
		}

		if reason := skipFile(name, allowed, files); reason != "" {
			rep.Skipped = append(rep.Skipped, Skip{Name: name, Reason: reason})
			continue
		}

		dst := c.fs.Join(req.DestDir, name)
		if _, err := fsx.CopyFileBetween(from, src, c.fs, dst); err != nil {
			rep.Remaining = len(items) - i - 1
			c.log.Error(ctx, "staging aborted", "item", src, "error", err)
			return rep, err
		}
		rep.Copied = append(rep.Copied, name)
		c.log.Info(ctx, "copied file", "source", src, "destination", dst)
	}

	c.log.Debug(ctx, "staging pass finished", "copied", len(rep.Copied),
		"archived", len(rep.Archived), "skipped", len(rep.Skipped), "remaining", rep.Remaining)
	return rep, nil
}

func (c *Copier) skipDir(name, destDir string, excluded models.NameSet) (Reason, error) {
	switch {
	case excluded.Has(name):
		return ReasonExcludedFolder, nil
	case strings.HasSuffix(name, archive.Ext):
		return ReasonZipSuffix, nil
	}

	exists, err := fsx.Exists(c.fs, c.fs.Join(destDir, name+archive.Ext))
	if err != nil {
		return "", err
	}
	if exists {
		return ReasonAlreadyArchived, nil
	}
	return "", nil
}

func skipFile(name string, allowed map[string]struct{}, excluded models.NameSet) Reason {
	if _, ok := allowed[strings.ToLower(path.Ext(name))]; !ok {
		return ReasonExtension
	}
	if excluded.Has(name) {
		return ReasonExcludedFile
	}
	return ""
}

// extensionSet normalizes ".PDF", "pdf" and ".pdf" to ".pdf".
func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}
