// Package copyfile implements move, link_or_copy, copy and
// copy_metadata: thin wrappers around POSIX primitives with the
// fallback behavior the install stages rely on, including a
// cross-device rename fallback and a metadata-preserving byte copy.
// Errno classification goes through golang.org/x/sys/unix rather than
// string-matching error messages.
package copyfile

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/mgorny/atomic-install-v2/aierrors"
)

// Move renames src to dst, falling back to a metadata-preserving copy plus
// source removal when they sit on different filesystems (EXDEV). It is
// used by the Replace stage to promote a staged payload to its final name
// and by Revert to move a backup back to its final name.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isExdev(err) {
		return aierrors.NewIOError("rename", src, err)
	}
	if cerr := copyTree(src, dst); cerr != nil {
		return cerr
	}
	if rerr := os.RemoveAll(src); rerr != nil {
		return aierrors.NewIOError("remove", src, rerr)
	}
	return nil
}

// LinkOrCopy stages dst as src's content: a hardlink when src and dst
// share a filesystem, otherwise a metadata-preserving byte copy. A dst
// that already exists and is identical to src (same device and inode) is
// treated as success, so repeating the call after a partial run does not
// fail on its own prior output.
func LinkOrCopy(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}
	if aierrors.IsExist(err) {
		if same, serr := sameFile(src, dst); serr == nil && same {
			return nil
		}
		return aierrors.NewIOError("link", dst, err)
	}
	if !isExdev(err) && !isEperm(err) {
		return aierrors.NewIOError("link", dst, err)
	}
	return Copy(src, dst)
}

// Copy creates dst as a copy of src, preserving mode, ownership and
// modification time where permitted. If src is a directory, dst is
// created with a single-level Mkdir (the install engine only ever asks
// for a directory whose parent it has already materialized, since the
// journal's file list is parent-before-child ordered) and src's metadata
// is applied. An already-existing dst directory is reported as an
// *aierrors.IOError carrying EEXIST, unwrapped, so the caller can choose
// to fall back to CopyMetadata instead; Copy itself does not fall back.
// Copy does not recurse into a directory's children.
func Copy(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return aierrors.NewIOError("lstat", src, err)
	}

	if fi.IsDir() {
		if err := os.Mkdir(dst, fi.Mode().Perm()); err != nil {
			return aierrors.NewIOError("mkdir", dst, err)
		}
		return CopyMetadata(src, dst)
	}

	if err := copyRegular(src, dst, fi); err != nil {
		return err
	}
	return CopyMetadata(src, dst)
}

// CopyMetadata applies src's mode, ownership and modification time to an
// already-existing dst, used both by Copy and by callers falling back
// when a destination directory is already present.
func CopyMetadata(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return aierrors.NewIOError("lstat", src, err)
	}

	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return aierrors.NewIOError("chmod", dst, err)
	}

	uid, gid, ok := ownerOf(fi)
	if ok {
		if err := os.Chown(dst, uid, gid); err != nil && !isEperm(err) {
			return aierrors.NewIOError("chown", dst, err)
		}
	}

	mtime := fi.ModTime()
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return aierrors.NewIOError("chtimes", dst, err)
	}

	return nil
}

func copyRegular(src, dst string, srcInfo os.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return aierrors.NewIOError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return aierrors.NewIOError("create", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return aierrors.NewIOError("copy", dst, err)
	}
	if err = out.Sync(); err != nil {
		return aierrors.NewIOError("fsync", dst, err)
	}
	return nil
}

// copyTree copies a single file or a directory (recursively, for the
// Move fallback only: the install engine never asks Move to cross a
// whole subtree on its own, but the rename fallback must still handle
// the directory case for robustness).
func copyTree(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return aierrors.NewIOError("lstat", src, err)
	}
	if !fi.IsDir() {
		return Copy(src, dst)
	}

	if err := os.MkdirAll(dst, fi.Mode().Perm()); err != nil {
		return aierrors.NewIOError("mkdir", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return aierrors.NewIOError("readdir", src, err)
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return errors.Wrapf(err, "copying %s", entry.Name())
		}
	}
	return CopyMetadata(src, dst)
}

func sameFile(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(fa, fb), nil
}

func isExdev(err error) bool {
	return errnoIs(err, unix.EXDEV)
}

func isEperm(err error) bool {
	return errnoIs(err, unix.EPERM)
}
