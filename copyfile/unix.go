package copyfile

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ownerOf extracts the uid/gid off an os.FileInfo's platform-specific
// Sys() value. ok is false when the underlying syscall.Stat_t is
// unavailable (never the case on a real POSIX filesystem, but os.FileInfo
// doesn't guarantee it).
func ownerOf(fi os.FileInfo) (uid, gid int, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}

// errnoIs reports whether err carries the given unix.Errno anywhere in its
// chain, converting the stdlib's syscall.Errno (what os.* actually
// returns) to the golang.org/x/sys/unix named type the rest of this
// module classifies errors with.
func errnoIs(err error, want unix.Errno) bool {
	var sysErrno syscall.Errno
	if errors.As(err, &sysErrno) {
		return unix.Errno(sysErrno) == want
	}
	return false
}
