package recdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/recdb/internal/fs"
)

// Presence flag values. A row is deleted iff its flag equals flagDeleted.
const (
	flagValid   uint16 = 0x0000
	flagDeleted uint16 = 0x8000
)

// errRowAbsent reports that a row lies (wholly or partly) past end-of-file.
// It never leaves the package; the query layer turns it into
// ErrRecordNotFound or uses it to end a scan.
var errRowAbsent = errors.New("row absent")

// Record is one row as stored on disk.
type Record struct {
	Row int64

	// Present is false for a deleted row (tombstone). The fields of a
	// tombstone are the stale bytes left by the deleted record.
	Present bool

	Fields []string
}

// store performs row-level I/O. Every call opens its own short-lived file
// handle; there is no lock around record I/O.
type store struct {
	fs         fs.FS
	path       string
	schema     Schema
	syncWrites bool
}

func (s *store) openRead() (fs.File, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, ioError("open data file", err)
	}

	return f, nil
}

func (s *store) openWrite() (fs.File, error) {
	f, err := s.fs.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return nil, ioError("open data file", err)
	}

	return f, nil
}

// readRow reads and decodes row. A row that does not fit completely before
// end-of-file yields errRowAbsent.
func (s *store) readRow(row int64) (Record, error) {
	pos, ok := s.schema.rowPos(row)
	if !ok {
		return Record{}, errRowAbsent
	}

	f, err := s.openRead()
	if err != nil {
		return Record{}, err
	}
	defer f.Close()

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return Record{}, ioError(fmt.Sprintf("seek row %d", row), err)
	}

	buf := make([]byte, s.schema.RecordLength())

	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, errRowAbsent
		}

		return Record{}, ioError(fmt.Sprintf("read row %d", row), err)
	}

	rec := Record{
		Row:     row,
		Present: binary.BigEndian.Uint16(buf) != flagDeleted,
		Fields:  make([]string, len(s.schema.Fields)),
	}

	off := flagSize
	for i, field := range s.schema.Fields {
		rec.Fields[i] = decodeField(buf[off : off+field.Length])
		off += field.Length
	}

	return rec, nil
}

// writeRow marks row valid and writes every present value into its span.
// Absent values leave their span untouched on disk. values must have one
// entry per field.
//
// Writing one row past the last existing row extends the file.
func (s *store) writeRow(row int64, values []Value) error {
	base, ok := s.schema.rowPos(row)
	if !ok {
		return fmt.Errorf("%w: row %d is out of range", ErrInvalidInput, row)
	}

	f, err := s.openWrite()
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, s.schema.RecordLength())
	binary.BigEndian.PutUint16(buf, flagValid)

	// Contiguous present spans are written together, starting with the flag.
	start, end := 0, flagSize

	for i, field := range s.schema.Fields {
		span := buf[end : end+field.Length]

		v, ok := values[i].Get()
		if ok {
			encodeField(span, v)
			end += field.Length

			continue
		}

		if err := writeAt(f, base+int64(start), buf[start:end]); err != nil {
			return ioError(fmt.Sprintf("write row %d", row), err)
		}

		end += field.Length
		start = end
	}

	if err := writeAt(f, base+int64(start), buf[start:end]); err != nil {
		return ioError(fmt.Sprintf("write row %d", row), err)
	}

	return s.sync(f)
}

// allocateSlot returns the lowest deleted row, or the row just past the last
// complete row when none is deleted.
//
// Nothing is reserved: two callers that allocate before either writes get
// the same row.
func (s *store) allocateSlot() (int64, error) {
	f, err := s.openRead()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Seek(s.schema.RowOffset, io.SeekStart); err != nil {
		return 0, ioError("seek first row", err)
	}

	br := bufio.NewReader(f)
	skip := int(s.schema.RecordLength() - flagSize)

	var flag [flagSize]byte

	for row := int64(0); ; row++ {
		if _, err := io.ReadFull(br, flag[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return row, nil
			}

			return 0, ioError(fmt.Sprintf("read row %d flag", row), err)
		}

		if binary.BigEndian.Uint16(flag[:]) == flagDeleted {
			return row, nil
		}

		n, err := br.Discard(skip)
		if n < skip {
			if err == nil || errors.Is(err, io.EOF) {
				return row, nil
			}

			return 0, ioError(fmt.Sprintf("read row %d", row), err)
		}
	}
}

// markDeleted flips row's flag to deleted. It reports false, writing
// nothing, when the row is absent or already deleted. Field bytes stay on
// disk until the slot is reused.
func (s *store) markDeleted(row int64) (bool, error) {
	pos, ok := s.schema.rowPos(row)
	if !ok {
		return false, nil
	}

	f, err := s.openWrite()
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, ioError("stat data file", err)
	}

	if info.Size() < pos+s.schema.RecordLength() {
		return false, nil
	}

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return false, ioError(fmt.Sprintf("seek row %d", row), err)
	}

	var flag [flagSize]byte

	if _, err := io.ReadFull(f, flag[:]); err != nil {
		return false, ioError(fmt.Sprintf("read row %d flag", row), err)
	}

	if binary.BigEndian.Uint16(flag[:]) == flagDeleted {
		return false, nil
	}

	binary.BigEndian.PutUint16(flag[:], flagDeleted)

	if err := writeAt(f, pos, flag[:]); err != nil {
		return false, ioError(fmt.Sprintf("write row %d flag", row), err)
	}

	return true, s.sync(f)
}

// rowInsideFile reports whether row lies completely before end-of-file.
func (s *store) rowInsideFile(row int64) (bool, error) {
	pos, ok := s.schema.rowPos(row)
	if !ok {
		return false, nil
	}

	info, err := s.fs.Stat(s.path)
	if err != nil {
		return false, ioError("stat data file", err)
	}

	return info.Size() >= pos+s.schema.RecordLength(), nil
}

func (s *store) sync(f fs.File) error {
	if !s.syncWrites {
		return nil
	}

	if err := fs.Datasync(f); err != nil {
		return ioError("sync data file", err)
	}

	return nil
}

func writeAt(f fs.File, pos int64, b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	_, err := f.Write(b)

	return err
}
