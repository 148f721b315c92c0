// Package filemeta determines file kind and computes the content digest
// and modification time the install journal records for each file,
// streaming file content through a hash rather than reading it whole
// into memory.
package filemeta

import (
	"crypto/md5"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/mgorny/atomic-install-v2/aierrors"
)

// Kind is the closed set of file types the install protocol understands.
type Kind uint8

const (
	// Regular is an ordinary file whose content participates in the
	// install: it is copied, backed up, replaced and cleaned up.
	Regular Kind = iota
	// Directory is a container; only its existence and metadata matter.
	Directory
	// EndOfList is a sentinel used only on the journal wire format to
	// terminate the file-record stream. It is never a real file's Kind.
	EndOfList
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case EndOfList:
		return "end-of-list"
	default:
		return "unknown"
	}
}

// Digest is the 128-bit content fingerprint recorded for regular files.
// It identifies content for audit/dedup purposes only; collision
// resistance is not required.
type Digest [16]byte

const chunkSize = 4096

// Stat determines the Kind of path without following a trailing symlink.
// Anything that is neither a regular file nor a directory (symlinks and
// special files included) is fatal: it is reported as an
// *aierrors.UnsupportedKindError.
func Stat(path string) (kind Kind, mtime time.Time, err error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "cannot lstat %s", path)
	}

	switch {
	case fi.Mode().IsRegular():
		return Regular, fi.ModTime(), nil
	case fi.Mode().IsDir():
		return Directory, fi.ModTime(), nil
	default:
		return 0, time.Time{}, &aierrors.UnsupportedKindError{Path: path}
	}
}

// ComputeDigest streams path's content through MD5 in fixed-size chunks
// so the read size is a known, fixed quantity rather than an incidental
// detail of io.Copy's internal buffering.
func ComputeDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return Digest{}, errors.Wrapf(werr, "cannot hash %s", path)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Digest{}, errors.Wrapf(rerr, "cannot read %s", path)
		}
	}

	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}
