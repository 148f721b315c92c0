package install

import (
	"os"

	"github.com/pkg/errors"

	"github.com/mgorny/atomic-install-v2/filemeta"
)

// stage identifies how far a transaction has progressed.
type stage int

const (
	stageScanned stage = iota
	stageCopied
	stageBackedUp
)

// Run drives a freshly scanned Engine through all four stages in order.
// If BackupFiles fails it reverts and cleans up before returning the
// original error. A CopyFiles failure is returned as is, and a Replace
// failure is returned without reverting, since it is past the commit
// point.
func (e *Engine) Run() error {
	if err := e.CopyFiles(); err != nil {
		return err
	}
	if err := e.BackupFiles(); err != nil {
		if rerr := e.Revert(); rerr != nil {
			return errors.Wrapf(rerr, "reverting after backup failure: %s", err)
		}
		_ = e.Cleanup()
		return err
	}
	if err := e.Replace(); err != nil {
		return errors.Wrap(err, "past commit point; re-run Resume to roll forward")
	}
	return e.Cleanup()
}

// Resume inspects the destination tree for the filename-salted siblings a
// prior, interrupted run of this same journal would have left behind,
// determines which stage was last completed, and drives the remaining
// stages to completion. It is the counterpart to Run for recovering
// after a crash.
//
// Resume never re-runs Scan: j must already carry the file list that was
// in effect before the crash (reloaded from the persisted journal at
// e.JournalPath).
func (e *Engine) Resume() error {
	reached, err := e.detectStage()
	if err != nil {
		return errors.Wrap(err, "detecting resume point")
	}

	switch reached {
	case stageScanned:
		return e.Run()
	case stageCopied:
		if err := e.BackupFiles(); err != nil {
			if rerr := e.Revert(); rerr != nil {
				return errors.Wrapf(rerr, "reverting after backup failure: %s", err)
			}
			_ = e.Cleanup()
			return err
		}
		fallthrough
	case stageBackedUp:
		if err := e.Replace(); err != nil {
			return errors.Wrap(err, "past commit point; re-run Resume to roll forward")
		}
		return e.Cleanup()
	default:
		return nil
	}
}

// detectStage looks for any backup sibling (the backup stage was at
// least partially reached) or any staged-copy sibling (the copy stage
// was at least partially reached).
func (e *Engine) detectStage() (stage, error) {
	newb := e.newBuf()
	backup := e.backupBuf()

	sawNew := false
	for _, rec := range e.Journal.Files {
		if rec.Kind != filemeta.Regular {
			continue
		}

		backup.SetPath(rec.Path)
		if exists, err := pathExists(backup.String()); err != nil {
			return stageScanned, err
		} else if exists {
			return stageBackedUp, nil
		}

		newb.SetPath(rec.Path)
		if exists, err := pathExists(newb.String()); err != nil {
			return stageScanned, err
		} else if exists {
			sawNew = true
		}
	}

	if sawNew {
		return stageCopied, nil
	}
	return stageScanned, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
