// Package aierrors implements the error taxonomy for the install
// journal: I/O failures carrying a POSIX errno, format failures from the
// journal codec, unsupported-file-kind failures from the scanner, and
// logic failures for programmer mistakes. Each kind is an exported
// struct with its own Error() method so callers can switch on errno or
// type-assert for a specific failure rather than matching on string
// content.
package aierrors

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// IOError wraps a POSIX errno with the path it applies to and a short
// human message.
type IOError struct {
	Op    string
	Path  string
	Errno unix.Errno
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, unix.ENOENT) work directly against an *IOError.
func (e *IOError) Is(target error) bool {
	if errno, ok := target.(unix.Errno); ok {
		return e.Errno == errno
	}
	return false
}

// NewIOError builds an IOError from a raw error, extracting its errno when
// the error is an *os.PathError or *os.LinkError wrapping one. If no
// errno can be recovered, Errno is zero and Is-based matching no-ops.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Errno: errnoOf(err), Err: err}
}

// errnoOf extracts the underlying errno from an os error, if any, walking
// the standard *os.PathError/*os.LinkError/*os.SyscallError chain that
// os.Rename, os.Link, os.Open and friends produce.
func errnoOf(err error) unix.Errno {
	var sysErrno syscall.Errno
	if errors.As(err, &sysErrno) {
		return unix.Errno(sysErrno)
	}
	return 0
}

// IsNotExist reports whether err represents ENOENT, whether raw or
// wrapped in an *IOError.
func IsNotExist(err error) bool {
	return hasErrno(err, unix.ENOENT)
}

// IsExist reports whether err represents EEXIST, whether raw or wrapped
// in an *IOError.
func IsExist(err error) bool {
	return hasErrno(err, unix.EEXIST)
}

// IsNotEmpty reports whether err represents ENOTEMPTY.
func IsNotEmpty(err error) bool {
	return hasErrno(err, unix.ENOTEMPTY)
}

func hasErrno(err error, want unix.Errno) bool {
	if ioErr, ok := err.(*IOError); ok {
		return ioErr.Errno == want
	}
	return errnoOf(err) == want
}

// FormatError reports a journal codec failure: bad magic or a short read.
type FormatError struct {
	Path string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return e.Msg + ": " + e.Path
}

// UnsupportedKindError reports a scan encountering a non-regular,
// non-directory filesystem node.
type UnsupportedKindError struct {
	Path string
}

func (e *UnsupportedKindError) Error() string {
	return "unknown file type: " + e.Path
}

// LogicError reports a programming error that must not occur on
// well-formed inputs: requesting a digest from a non-regular record, or a
// malformed relative path reaching a component that assumes it is
// well-formed.
type LogicError struct {
	Msg string
}

func (e *LogicError) Error() string { return "logic error: " + e.Msg }
