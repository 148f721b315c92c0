package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mgorny/atomic-install-v2/aierrors"
	"github.com/mgorny/atomic-install-v2/filemeta"
)

func sampleJournal() *Journal {
	j := New("/src", "/dst")
	j.Files = []FileRecord{
		{Path: "/", Kind: filemeta.Directory},
		{Path: "/a", Kind: filemeta.Regular, Digest: filemeta.Digest{1, 2, 3}, Mtime: time.Unix(1000, 500).UTC()},
		{Path: "/dir", Kind: filemeta.Directory},
		{Path: "/dir/b", Kind: filemeta.Regular, Digest: filemeta.Digest{4, 5, 6}, Mtime: time.Unix(2000, 0).UTC(), Existed: true},
	}
	return j
}

func journalsEqual(a, b *Journal) bool {
	if a.SourceRoot != b.SourceRoot || a.DestRoot != b.DestRoot {
		return false
	}
	if a.NewPrefix != b.NewPrefix || a.BackupPrefix != b.BackupPrefix {
		return false
	}
	if len(a.Files) != len(b.Files) {
		return false
	}
	for i := range a.Files {
		ra, rb := a.Files[i], b.Files[i]
		if ra.Path != rb.Path || ra.Kind != rb.Kind || ra.Digest != rb.Digest ||
			!ra.Mtime.Equal(rb.Mtime) || ra.Existed != rb.Existed {
			return false
		}
	}
	return true
}

func TestRoundTrip(t *testing.T) {
	j := sampleJournal()
	path := filepath.Join(t.TempDir(), "journal")

	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !journalsEqual(j, got) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", j, got)
	}
}

func TestRoundTripAfterExistedFlagsSet(t *testing.T) {
	j := sampleJournal()
	j.Files[1].Existed = true
	path := filepath.Join(t.TempDir(), "journal")

	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if !journalsEqual(j, got) {
		t.Fatal("round trip did not preserve existed flags")
	}
}

func TestReadRejectsBadStartMagic(t *testing.T) {
	j := sampleJournal()
	path := filepath.Join(t.TempDir(), "journal")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Read(path)
	fmtErr, ok := err.(*aierrors.FormatError)
	if !ok {
		t.Fatalf("err type = %T, want *aierrors.FormatError", err)
	}
	if fmtErr.Msg != "Journal magic invalid" {
		t.Fatalf("Msg = %q", fmtErr.Msg)
	}
}

func TestReadRejectsBadEndMagic(t *testing.T) {
	j := sampleJournal()
	path := filepath.Join(t.TempDir(), "journal")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] = 'X'
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = Read(path)
	fmtErr, ok := err.(*aierrors.FormatError)
	if !ok {
		t.Fatalf("err type = %T, want *aierrors.FormatError", err)
	}
	if fmtErr.Msg != "Journal end magic invalid" {
		t.Fatalf("Msg = %q", fmtErr.Msg)
	}
}

func TestReadRejectsTruncation(t *testing.T) {
	j := sampleJournal()
	path := filepath.Join(t.TempDir(), "journal")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, cut := range []int{0, 4, 10, len(data) - 1, len(data) - 5} {
		if cut < 0 || cut > len(data) {
			continue
		}
		truncPath := path + ".trunc"
		if err := os.WriteFile(truncPath, data[:cut], 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(truncPath); err == nil {
			t.Fatalf("cut %d: expected read error for truncated journal", cut)
		}
	}
}

func TestNewPrefixesAreStableAndDistinct(t *testing.T) {
	j := New("/src", "/dst")
	if j.NewPrefix == j.BackupPrefix {
		t.Fatal("new and backup prefixes must differ")
	}
	if j.NewPrefix == "" || j.BackupPrefix == "" {
		t.Fatal("prefixes must not be empty")
	}

	path := filepath.Join(t.TempDir(), "journal")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.NewPrefix != j.NewPrefix || got.BackupPrefix != j.BackupPrefix {
		t.Fatal("prefixes did not survive persistence, violating restart-stability requirement")
	}
}
