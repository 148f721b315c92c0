package copyfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLinkOrCopyHardlinksWhenPossible(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LinkOrCopy(src, dst); err != nil {
		t.Fatal(err)
	}

	si, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	di, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(si, di) {
		t.Fatal("expected dst to be a hardlink of src")
	}
}

func TestLinkOrCopyExistingIdenticalIsSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Link(src, dst); err != nil {
		t.Fatal(err)
	}

	if err := LinkOrCopy(src, dst); err != nil {
		t.Fatalf("re-running LinkOrCopy over its own prior output should succeed, got %v", err)
	}
}

func TestLinkOrCopyExistingDifferentFileFails(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("other"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LinkOrCopy(src, dst); err == nil {
		t.Fatal("expected error when dst already exists as an unrelated file")
	}
}

func TestCopyRegularFilePreservesModeAndMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("payload"), 0640); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := Copy(src, dst); err != nil {
		t.Fatal(err)
	}

	content, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "payload" {
		t.Fatalf("content = %q", content)
	}

	di, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if di.Mode().Perm() != 0640 {
		t.Fatalf("mode = %v, want 0640", di.Mode().Perm())
	}
	if !di.ModTime().Equal(mtime) {
		t.Fatalf("mtime = %v, want %v", di.ModTime(), mtime)
	}
}

func TestCopyDirectoryCreatesAndAppliesMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "srcdir")
	dst := filepath.Join(dir, "dstdir")
	if err := os.Mkdir(src, 0750); err != nil {
		t.Fatal(err)
	}

	if err := Copy(src, dst); err != nil {
		t.Fatal(err)
	}

	di, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !di.IsDir() {
		t.Fatal("expected dst to be a directory")
	}
	if di.Mode().Perm() != 0750 {
		t.Fatalf("mode = %v, want 0750", di.Mode().Perm())
	}
}

func TestCopyMetadataRefreshesExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "srcdir")
	dst := filepath.Join(dir, "dstdir")
	if err := os.Mkdir(src, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(dst, 0755); err != nil {
		t.Fatal(err)
	}

	if err := CopyMetadata(src, dst); err != nil {
		t.Fatal(err)
	}

	di, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if di.Mode().Perm() != 0700 {
		t.Fatalf("mode = %v, want 0700 after copy_metadata fallback", di.Mode().Perm())
	}
}

func TestMoveRenamesWithinSameFilesystem(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Move(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected src to be gone after Move")
	}
	content, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "x" {
		t.Fatalf("content = %q", content)
	}
}
