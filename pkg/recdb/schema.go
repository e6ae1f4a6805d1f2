package recdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
)

// Header layout (big-endian):
//
//	0   magic cookie       uint32 (opaque, not validated)
//	4   offset to row 0    uint32
//	8   field count        uint16
//	10  per field: name length uint16, name bytes, field length uint16
const (
	headerFixedSize = 10
	flagSize        = 2
)

// Field describes one fixed-width field of a record.
type Field struct {
	Name   string
	Length int
}

// Schema is the layout of a data file. It is read once from the header and
// never changes for the life of a [DB].
type Schema struct {
	// Magic is the file's identifying cookie. It is carried through but not
	// checked against any known value.
	Magic uint32

	// RowOffset is the byte offset of row 0.
	RowOffset int64

	Fields []Field
}

// NewSchema returns a schema whose rows start right after the header.
func NewSchema(magic uint32, fields ...Field) Schema {
	s := Schema{Magic: magic, Fields: fields}
	s.RowOffset = s.headerSize()

	return s
}

// RecordLength is the size of one row in bytes: the presence flag plus every
// field span.
func (s Schema) RecordLength() int64 {
	n := int64(flagSize)
	for _, f := range s.Fields {
		n += int64(f.Length)
	}

	return n
}

// FieldNames returns the field names in file order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}

	return names
}

// rowPos is the byte offset of row. It reports false for rows whose whole
// byte region cannot be addressed with an int64 offset.
func (s Schema) rowPos(row int64) (int64, bool) {
	if !s.addressable(row) {
		return 0, false
	}

	return s.RowOffset + row*s.RecordLength(), true
}

// addressable reports whether row's byte region ends at or before
// math.MaxInt64.
func (s Schema) addressable(row int64) bool {
	n := s.RecordLength()

	return row >= 0 && row <= (math.MaxInt64-s.RowOffset-n)/n
}

// clone returns s with its own copy of Fields.
func (s Schema) clone() Schema {
	s.Fields = slices.Clone(s.Fields)

	return s
}

func (s Schema) headerSize() int64 {
	n := int64(headerFixedSize)
	for _, f := range s.Fields {
		n += 2 + int64(len(f.Name)) + 2
	}

	return n
}

func (s Schema) validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields: %w", ErrInvalidInput)
	}

	if len(s.Fields) > math.MaxUint16 {
		return fmt.Errorf("schema has %d fields, max %d: %w", len(s.Fields), math.MaxUint16, ErrInvalidInput)
	}

	for i, f := range s.Fields {
		if f.Name == "" || len(f.Name) > math.MaxUint16 {
			return fmt.Errorf("field %d: invalid name %q: %w", i, f.Name, ErrInvalidInput)
		}

		if f.Length < 1 || f.Length > math.MaxUint16 {
			return fmt.Errorf("field %q: length %d out of range [1, %d]: %w", f.Name, f.Length, math.MaxUint16, ErrInvalidInput)
		}
	}

	if s.RowOffset < s.headerSize() || s.RowOffset > math.MaxUint32 {
		return fmt.Errorf("row offset %d overlaps header of %d bytes: %w", s.RowOffset, s.headerSize(), ErrInvalidInput)
	}

	return nil
}

// encodeHeader serializes the schema header. The bytes between the end of
// the header and RowOffset are zero.
func (s Schema) encodeHeader() []byte {
	buf := make([]byte, 0, s.RowOffset)

	buf = binary.BigEndian.AppendUint32(buf, s.Magic)
	buf = binary.BigEndian.AppendUint32(buf, uint32(s.RowOffset))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s.Fields)))

	for _, f := range s.Fields {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Name)))
		buf = append(buf, f.Name...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(f.Length))
	}

	for int64(len(buf)) < s.RowOffset {
		buf = append(buf, 0)
	}

	return buf
}

// readSchema parses a header from r.
//
// A stream that ends before the declared structure is complete, or a row
// offset pointing inside the header, yields [ErrMetadataCorrupt]. Other read
// failures yield [ErrIO].
func readSchema(r io.Reader) (Schema, error) {
	hr := headerReader{r: r}

	magic := hr.uint32("magic cookie")
	rowOffset := hr.uint32("row offset")
	count := hr.uint16("field count")

	schema := Schema{Magic: magic, RowOffset: int64(rowOffset)}

	for i := 0; i < int(count) && hr.err == nil; i++ {
		nameLen := hr.uint16("field name length")
		name := hr.bytes(int(nameLen), "field name")
		length := hr.uint16("field length")

		schema.Fields = append(schema.Fields, Field{Name: string(name), Length: int(length)})
	}

	if hr.err != nil {
		return Schema{}, hr.err
	}

	if schema.RowOffset < schema.headerSize() {
		return Schema{}, fmt.Errorf("%w: row offset %d inside %d-byte header", ErrMetadataCorrupt, schema.RowOffset, schema.headerSize())
	}

	return schema, nil
}

// headerReader reads big-endian header values, remembering the first error.
type headerReader struct {
	r   io.Reader
	buf [4]byte
	err error
}

func (h *headerReader) bytes(n int, what string) []byte {
	if h.err != nil {
		return nil
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(h.r, b); err != nil {
		h.fail(what, err)

		return nil
	}

	return b
}

func (h *headerReader) uint32(what string) uint32 {
	if h.err != nil {
		return 0
	}

	if _, err := io.ReadFull(h.r, h.buf[:4]); err != nil {
		h.fail(what, err)

		return 0
	}

	return binary.BigEndian.Uint32(h.buf[:4])
}

func (h *headerReader) uint16(what string) uint16 {
	if h.err != nil {
		return 0
	}

	if _, err := io.ReadFull(h.r, h.buf[:2]); err != nil {
		h.fail(what, err)

		return 0
	}

	return binary.BigEndian.Uint16(h.buf[:2])
}

func (h *headerReader) fail(what string, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		h.err = fmt.Errorf("%w: header ends before %s", ErrMetadataCorrupt, what)

		return
	}

	h.err = ioError("read header "+what, err)
}

// schemaCache holds the schema after the first successful load. A failed
// load is not cached, so the next call tries again.
type schemaCache struct {
	mu     sync.Mutex
	schema *Schema
}

func (c *schemaCache) get(load func() (Schema, error)) (Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schema != nil {
		return c.schema.clone(), nil
	}

	s, err := load()
	if err != nil {
		return Schema{}, err
	}

	cached := s.clone()
	c.schema = &cached

	return s, nil
}
