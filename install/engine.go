// Package install implements the install engine: the four-stage state
// machine (copy, backup, replace, cleanup) and its revert path that
// together carry a scanned, persisted journal.Journal to completion.
package install

import (
	"os"

	"github.com/pkg/errors"

	"github.com/mgorny/atomic-install-v2/aierrors"
	"github.com/mgorny/atomic-install-v2/copyfile"
	"github.com/mgorny/atomic-install-v2/filemeta"
	"github.com/mgorny/atomic-install-v2/journal"
	stagelog "github.com/mgorny/atomic-install-v2/log"
	"github.com/mgorny/atomic-install-v2/pathbuf"
)

// Engine drives a single install transaction described by j. JournalPath,
// when non-empty, is where CopyFiles and BackupFiles persist the journal.
// BackupFiles re-persists it so Revert can recover existed flags across a
// crash.
//
// Logger, when non-nil and Verbose is set, narrates stage transitions and
// absorbed-errno conditions (ENOENT during backup, EEXIST during copy).
type Engine struct {
	Journal     *journal.Journal
	JournalPath string

	Logger  *stagelog.Logger
	Verbose bool
}

// NewEngine returns an Engine ready to run CopyFiles against j. journalPath
// may be empty when the caller does not need crash-resumability (tests,
// mostly); Resume requires it.
func NewEngine(j *journal.Journal, journalPath string) *Engine {
	return &Engine{Journal: j, JournalPath: journalPath}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger == nil || !e.Verbose {
		return
	}
	e.Logger.LogStagefln(format, args...)
}

func (e *Engine) save() error {
	if e.JournalPath == "" {
		return nil
	}
	return e.Journal.Save(e.JournalPath)
}

// liveBuf renders a record's final path under the destination root.
func (e *Engine) liveBuf() *pathbuf.Buffer {
	return pathbuf.New(e.Journal.DestRoot, "")
}

func (e *Engine) newBuf() *pathbuf.Buffer {
	return pathbuf.New(e.Journal.DestRoot, e.Journal.NewPrefix)
}

func (e *Engine) backupBuf() *pathbuf.Buffer {
	return pathbuf.New(e.Journal.DestRoot, e.Journal.BackupPrefix)
}

// CopyFiles runs Stage 1: stage every regular file's payload beside its
// final name and materialize every directory. Re-entrant: a partially
// completed prior run is safe to repeat.
func (e *Engine) CopyFiles() error {
	e.logf("copying %s -> %s", e.Journal.SourceRoot, e.Journal.DestRoot)
	if err := e.save(); err != nil {
		return errors.Wrap(err, "persisting journal before copy")
	}

	live := e.liveBuf()
	newb := e.newBuf()
	src := pathbuf.New(e.Journal.SourceRoot, "")

	for _, rec := range e.Journal.Files {
		switch rec.Kind {
		case filemeta.Directory:
			src.SetDirectory(rec.Path)
			live.SetDirectory(rec.Path)
			srcPath, dstPath := src.String(), live.String()
			if err := copyfile.Copy(srcPath, dstPath); err != nil {
				if !aierrors.IsExist(err) {
					return errors.Wrapf(err, "copying directory %s", rec.Path)
				}
				e.logf("directory %s already exists, refreshing metadata", rec.Path)
				if err := copyfile.CopyMetadata(srcPath, dstPath); err != nil {
					return errors.Wrapf(err, "refreshing metadata for existing directory %s", rec.Path)
				}
			}

		case filemeta.Regular:
			src.SetPath(rec.Path)
			newb.SetPath(rec.Path)
			if err := copyfile.LinkOrCopy(src.String(), newb.String()); err != nil {
				return errors.Wrapf(err, "staging %s", rec.Path)
			}

		default:
			return &aierrors.LogicError{Msg: "unexpected file kind reaching CopyFiles: " + rec.Kind.String()}
		}
	}

	return nil
}

// BackupFiles runs Stage 2: preserve any live file a Regular record would
// overwrite, setting existed on success. The journal is re-persisted at
// the end of this stage so a crash afterward can still recover which
// files were backed up.
func (e *Engine) BackupFiles() error {
	e.logf("backing up prior files under %s", e.Journal.DestRoot)
	live := e.liveBuf()
	backup := e.backupBuf()

	for i := range e.Journal.Files {
		rec := &e.Journal.Files[i]
		if rec.Kind != filemeta.Regular {
			continue
		}

		live.SetPath(rec.Path)
		livePath := live.String()
		backup.SetPath(rec.Path)
		backupPath := backup.String()

		err := copyfile.LinkOrCopy(livePath, backupPath)
		switch {
		case err == nil:
			rec.Existed = true
		case aierrors.IsNotExist(err):
			rec.Existed = false
			e.logf("no prior file at %s, nothing to back up", rec.Path)
		default:
			return errors.Wrapf(err, "backing up %s", rec.Path)
		}
	}

	if err := e.save(); err != nil {
		return errors.Wrap(err, "persisting journal after backup")
	}
	return nil
}

// Replace runs Stage 3, the commit: rename each staged payload over its
// final name. The first successful rename is the transaction's commit
// point; callers must treat a failure partway through as "roll forward
// or roll back all remaining records", never as undoing renames already
// completed. A record whose staged payload is already gone was renamed by
// an earlier, interrupted run and is skipped, so Replace can be re-run.
func (e *Engine) Replace() error {
	e.logf("committing %s", e.Journal.DestRoot)
	newb := e.newBuf()
	live := e.liveBuf()

	for _, rec := range e.Journal.Files {
		if rec.Kind != filemeta.Regular {
			continue
		}
		newb.SetPath(rec.Path)
		live.SetPath(rec.Path)
		if err := copyfile.Move(newb.String(), live.String()); err != nil {
			if aierrors.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "replacing %s", rec.Path)
		}
	}
	return nil
}

// Cleanup runs Stage 4: remove any leftover staged or backup siblings.
// Unconditionally idempotent.
func (e *Engine) Cleanup() error {
	e.logf("cleaning up staged/backup siblings under %s", e.Journal.DestRoot)
	newb := e.newBuf()
	backup := e.backupBuf()

	for _, rec := range e.Journal.Files {
		if rec.Kind != filemeta.Regular {
			continue
		}
		newb.SetPath(rec.Path)
		if err := removeIgnoreNotExist(newb.String()); err != nil {
			return errors.Wrapf(err, "cleaning up staged payload for %s", rec.Path)
		}
		backup.SetPath(rec.Path)
		if err := removeIgnoreNotExist(backup.String()); err != nil {
			return errors.Wrapf(err, "cleaning up backup for %s", rec.Path)
		}
	}
	return nil
}

// Revert restores the destination tree to its pre-transaction state
// using the journal's existed flags. Callers still run Cleanup afterward
// to remove any remaining staged siblings.
func (e *Engine) Revert() error {
	live := e.liveBuf()
	backup := e.backupBuf()

	for _, rec := range e.Journal.Files {
		if rec.Kind != filemeta.Regular {
			continue
		}
		live.SetPath(rec.Path)
		livePath := live.String()

		if rec.Existed {
			backup.SetPath(rec.Path)
			err := copyfile.Move(backup.String(), livePath)
			if err != nil && !aierrors.IsNotExist(err) {
				return errors.Wrapf(err, "restoring %s from backup", rec.Path)
			}
			continue
		}

		if err := removeIgnoreNotExist(livePath); err != nil {
			return errors.Wrapf(err, "removing unbacked %s", rec.Path)
		}
	}
	return nil
}

func removeIgnoreNotExist(path string) error {
	err := os.Remove(path)
	if err == nil || aierrors.IsNotExist(err) {
		return nil
	}
	return aierrors.NewIOError("remove", path, err)
}
