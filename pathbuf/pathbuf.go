// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pathbuf implements the reusable path buffer described in the
// install journal format: a value anchored to a fixed root (and an
// optional filename prefix) that can render either a plain relative path
// or a salted sibling of it. Each call rebuilds the path in a fresh
// buffer and copies the root into it again; the root's bytes are not
// kept in place between calls.
package pathbuf

import "strings"

// Buffer composes a root directory, an optional filename prefix, and a
// mutable tail into a full filesystem path. It holds a string and two
// remembered offsets rather than subclassing string, per the composition
// note in the install journal design: the underlying buffer is never
// surfaced to callers as anything but a Buffer.
type Buffer struct {
	root   string
	prefix string

	buf          strings.Builder
	prefixLen    int // len(root)
	directoryLen int // len(root+dirpath)
}

// New returns a Buffer anchored to root, salting filenames with prefix.
// An empty prefix is valid and yields unsalted filenames.
func New(root, prefix string) *Buffer {
	b := &Buffer{root: root, prefix: prefix}
	b.buf.WriteString(root)
	b.prefixLen = b.buf.Len()
	b.directoryLen = b.prefixLen
	return b
}

// reset truncates the buffer back to just the root.
func (b *Buffer) reset() {
	if b.buf.Len() == b.prefixLen {
		return
	}
	kept := b.buf.String()[:b.prefixLen]
	b.buf.Reset()
	b.buf.WriteString(kept)
}

// SetDirectory truncates to root, appends relPath, and, unless relPath is
// exactly "/", appends a trailing slash. relPath must begin with "/".
// The resulting buffer denotes a directory; SetFilename appends after it.
func (b *Buffer) SetDirectory(relPath string) {
	if len(relPath) == 0 || relPath[0] != '/' {
		panic("pathbuf: relative path must begin with /: " + relPath)
	}
	b.reset()
	b.buf.WriteString(relPath)
	if relPath != "/" {
		b.buf.WriteByte('/')
	}
	b.directoryLen = b.buf.Len()
}

// SetFilename truncates to the directory set by the most recent
// SetDirectory call and appends prefix+name. The final path is
// root + dirpath + "/" + prefix + name.
func (b *Buffer) SetFilename(name string) {
	kept := b.buf.String()[:b.directoryLen]
	b.buf.Reset()
	b.buf.WriteString(kept)
	b.buf.WriteString(b.prefix)
	b.buf.WriteString(name)
}

// SetPath truncates to root, appends relPath, and inserts prefix
// immediately after the last slash in the result, so that only the
// filename component is salted. relPath must contain at least one slash.
func (b *Buffer) SetPath(relPath string) {
	idx := strings.LastIndexByte(relPath, '/')
	if idx < 0 {
		panic("pathbuf: relative path must contain a slash: " + relPath)
	}
	b.reset()
	b.buf.WriteString(relPath[:idx+1])
	b.directoryLen = b.buf.Len()
	b.buf.WriteString(b.prefix)
	b.buf.WriteString(relPath[idx+1:])
}

// String returns the fully composed path.
func (b *Buffer) String() string {
	return b.buf.String()
}

// RelativePath returns the substring of the current path after root,
// i.e. the part a Journal stores as a FileRecord's path.
func (b *Buffer) RelativePath() string {
	return b.buf.String()[b.prefixLen:]
}
