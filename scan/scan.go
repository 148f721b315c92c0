// Package scan implements the breadth-first tree walk that populates a
// journal's file list: an index-based walk over a slice that grows while
// being iterated, so that every directory appended to the list is later
// visited by the same loop that appended it.
package scan

import (
	"os"

	"github.com/pkg/errors"

	"github.com/mgorny/atomic-install-v2/filemeta"
	"github.com/mgorny/atomic-install-v2/journal"
	"github.com/mgorny/atomic-install-v2/pathbuf"
)

// Scan walks j.SourceRoot and appends a FileRecord for every regular file
// and directory found: the root first, then each directory's children
// immediately after the loop reaches that directory's own record. This
// guarantees every record's parent directory appears earlier in the
// list. j.Files must be empty on entry.
//
// A symlink or special file anywhere in the tree aborts the scan with an
// *aierrors.UnsupportedKindError before any destructive action has been
// taken elsewhere: scan never touches the destination tree.
func Scan(j *journal.Journal) error {
	if len(j.Files) != 0 {
		return errors.New("scan: journal already has files")
	}

	rootKind, _, err := filemeta.Stat(j.SourceRoot)
	if err != nil {
		return err
	}
	if rootKind != filemeta.Directory {
		return errors.Errorf("scan: source root is not a directory: %s", j.SourceRoot)
	}
	j.Files = append(j.Files, journal.FileRecord{Path: "/", Kind: filemeta.Directory})

	buf := pathbuf.New(j.SourceRoot, "")

	for i := 0; i < len(j.Files); i++ {
		dirRecord := j.Files[i]
		if dirRecord.Kind != filemeta.Directory {
			continue
		}

		buf.SetDirectory(dirRecord.Path)
		dirPath := buf.String()

		entries, err := os.ReadDir(dirPath)
		if err != nil {
			return errors.Wrapf(err, "cannot read directory %s", dirPath)
		}

		for _, entry := range entries {
			buf.SetFilename(entry.Name())
			fullPath := buf.String()
			relPath := buf.RelativePath()

			kind, mtime, err := filemeta.Stat(fullPath)
			if err != nil {
				return err
			}

			rec := journal.FileRecord{Path: relPath, Kind: kind}
			if kind == filemeta.Regular {
				digest, err := filemeta.ComputeDigest(fullPath)
				if err != nil {
					return err
				}
				rec.Digest = digest
				rec.Mtime = mtime
			}
			j.Files = append(j.Files, rec)
		}
	}

	return nil
}
