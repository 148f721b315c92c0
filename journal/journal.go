// Package journal implements the persisted transaction manifest for an
// atomic directory install: the ordered list of participating files, the
// transaction-unique filename-salting prefixes, and the on-disk codec
// that makes the whole thing resumable after a crash.
package journal

import (
	"time"

	"github.com/google/uuid"

	"github.com/mgorny/atomic-install-v2/filemeta"
)

// FileRecord is one entry in a Journal's file list.
type FileRecord struct {
	// Path is relative to the tree root and always begins with "/"; the
	// root itself is "/".
	Path string
	Kind filemeta.Kind
	// Digest is defined only when Kind == Regular.
	Digest filemeta.Digest
	// Mtime is defined only when Kind == Regular.
	Mtime time.Time
	// Existed is set true by the backup stage iff a destination file was
	// successfully backed up from this path.
	Existed bool
}

// Journal is the transaction record: the source and destination roots,
// the two transaction-unique salting prefixes, and the ordered file list.
//
// Ordering invariant: for every non-root record, its parent directory's
// record appears earlier in Files. The root "/" is always Files[0], kind
// Directory. Non-directory records may appear in any order within a
// directory's subtree.
type Journal struct {
	SourceRoot string
	DestRoot   string

	NewPrefix    string
	BackupPrefix string

	Files []FileRecord
}

// New creates an empty journal for copying files from sourceRoot to
// destRoot. The two per-transaction prefixes are generated here, not
// lazily, so that they stay stable across process restarts: the journal
// is the only thing persisted across a crash.
//
// The prefix token is 8 characters drawn from a UUIDv4
// (github.com/google/uuid), giving a fixed-length, always-nonempty,
// filesystem-safe salt for every transaction.
func New(sourceRoot, destRoot string) *Journal {
	token := newToken()
	return &Journal{
		SourceRoot:   sourceRoot,
		DestRoot:     destRoot,
		NewPrefix:    ".AIn~" + token + ".",
		BackupPrefix: ".AIb~" + token + ".",
	}
}

func newToken() string {
	id := uuid.New()
	// The canonical string form is 36 characters whose first 8 are hex
	// digits; truncating to those gives a fixed-length, filesystem-safe,
	// printable token, which is all the salting scheme needs.
	return id.String()[:8]
}

// Root returns the journal's root directory record, which scan.Scan
// always places first.
func (j *Journal) Root() (FileRecord, bool) {
	if len(j.Files) == 0 {
		return FileRecord{}, false
	}
	return j.Files[0], true
}
