package journal

import (
	"bufio"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/mgorny/atomic-install-v2/aierrors"
	"github.com/mgorny/atomic-install-v2/filemeta"
)

var magicStart = [4]byte{'A', 'I', 'j', '!'}
var magicEnd = [4]byte{'!', 'A', 'I', 'j'}

const existedFlag uint32 = 1 << 0

// zeroMtime is the wire value for a zero Mtime (directory records carry
// none); time.Time{}.UnixNano() overflows int64 and would not read back.
const zeroMtime int64 = -1 << 63

// Save persists j to path: it writes to a sibling temp file and
// atomically renames it over path on success, so an interrupted write
// never corrupts an existing journal.
func (j *Journal) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "cannot create temp file for journal %s", path)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	if err := j.encode(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot flush journal %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot close journal temp file %s", tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrapf(err, "cannot rename journal into place: %s -> %s", tmpPath, path)
	}
	return nil
}

// Read loads a Journal previously written by Save. Magic mismatches and
// truncated files are reported as *aierrors.FormatError.
func Read(path string) (*Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open journal %s", path)
	}
	defer f.Close()

	j, err := decode(bufio.NewReader(f), path)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) encode(w io.Writer) error {
	if _, err := w.Write(magicStart[:]); err != nil {
		return errors.Wrap(err, "cannot write journal start magic")
	}
	for _, s := range []string{j.SourceRoot, j.DestRoot, j.NewPrefix, j.BackupPrefix} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	for i := range j.Files {
		if err := writeRecord(w, &j.Files[i]); err != nil {
			return err
		}
	}
	if err := writeByte(w, byte(filemeta.EndOfList)); err != nil {
		return errors.Wrap(err, "cannot write journal terminator")
	}
	if _, err := w.Write(magicEnd[:]); err != nil {
		return errors.Wrap(err, "cannot write journal end magic")
	}
	return nil
}

func decode(r io.Reader, path string) (*Journal, error) {
	var start [4]byte
	if err := readFull(r, start[:], path); err != nil {
		return nil, err
	}
	if start != magicStart {
		return nil, &aierrors.FormatError{Path: path, Msg: "Journal magic invalid"}
	}

	j := &Journal{}
	var err error
	if j.SourceRoot, err = readString(r, path); err != nil {
		return nil, err
	}
	if j.DestRoot, err = readString(r, path); err != nil {
		return nil, err
	}
	if j.NewPrefix, err = readString(r, path); err != nil {
		return nil, err
	}
	if j.BackupPrefix, err = readString(r, path); err != nil {
		return nil, err
	}

	for {
		kindByte, err := readByte(r, path)
		if err != nil {
			return nil, err
		}
		if filemeta.Kind(kindByte) == filemeta.EndOfList {
			break
		}
		rec, err := readRecordBody(r, filemeta.Kind(kindByte), path)
		if err != nil {
			return nil, err
		}
		j.Files = append(j.Files, rec)
	}

	var end [4]byte
	if err := readFull(r, end[:], path); err != nil {
		return nil, err
	}
	if end != magicEnd {
		return nil, &aierrors.FormatError{Path: path, Msg: "Journal end magic invalid"}
	}

	return j, nil
}

func writeRecord(w io.Writer, rec *FileRecord) error {
	if err := writeByte(w, byte(rec.Kind)); err != nil {
		return errors.Wrap(err, "cannot write record kind")
	}
	if err := writeString(w, rec.Path); err != nil {
		return err
	}
	if _, err := w.Write(rec.Digest[:]); err != nil {
		return errors.Wrap(err, "cannot write record digest")
	}
	mtime := rec.Mtime.UnixNano()
	if rec.Mtime.IsZero() {
		mtime = zeroMtime
	}
	if err := writeInt64(w, mtime); err != nil {
		return errors.Wrap(err, "cannot write record mtime")
	}
	var flags uint32
	if rec.Existed {
		flags |= existedFlag
	}
	if err := writeUint32(w, flags); err != nil {
		return errors.Wrap(err, "cannot write record flags")
	}
	return nil
}

func readRecordBody(r io.Reader, kind filemeta.Kind, path string) (FileRecord, error) {
	rec := FileRecord{Kind: kind}

	var err error
	if rec.Path, err = readString(r, path); err != nil {
		return FileRecord{}, err
	}
	if err := readFull(r, rec.Digest[:], path); err != nil {
		return FileRecord{}, err
	}
	nanos, err := readInt64(r, path)
	if err != nil {
		return FileRecord{}, err
	}
	if nanos != zeroMtime {
		rec.Mtime = time.Unix(0, nanos).UTC()
	}

	flags, err := readUint32(r, path)
	if err != nil {
		return FileRecord{}, err
	}
	rec.Existed = flags&existedFlag != 0

	return rec, nil
}

// --- primitive wire helpers ---

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return errors.Wrap(err, "cannot write string length")
	}
	if _, err := io.WriteString(w, s); err != nil {
		return errors.Wrap(err, "cannot write string bytes")
	}
	return nil
}

func readString(r io.Reader, path string) (string, error) {
	n, err := readUint32(r, path)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf, path); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader, path string) (byte, error) {
	var buf [1]byte
	if err := readFull(r, buf[:], path); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader, path string) (uint32, error) {
	var buf [4]byte
	if err := readFull(r, buf[:], path); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt64(r io.Reader, path string) (int64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:], path); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// readFull reports a short journal as a *aierrors.FormatError rather than
// a bare io.ErrUnexpectedEOF.
func readFull(r io.Reader, buf []byte, path string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return &aierrors.FormatError{Path: path, Msg: "Short read occurred"}
	}
	return nil
}
