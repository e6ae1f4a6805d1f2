package recdb

import "io"

// Export internal functions for testing.
// This file is only compiled during tests.

// AllocateSlotForTesting runs the create allocator without writing.
func AllocateSlotForTesting(db *DB) (int64, error) {
	return db.store.allocateSlot()
}

// MarkDeletedForTesting flips row's flag without checking locks.
func MarkDeletedForTesting(db *DB, row int64) (bool, error) {
	return db.store.markDeleted(row)
}

// EncodeFieldForTesting encodes v into a span of length bytes.
func EncodeFieldForTesting(v string, length int) []byte {
	span := make([]byte, length)
	encodeField(span, v)

	return span
}

// DecodeFieldForTesting decodes a field span.
func DecodeFieldForTesting(span []byte) string {
	return decodeField(span)
}

// ReadSchemaForTesting parses a header.
func ReadSchemaForTesting(r io.Reader) (Schema, error) {
	return readSchema(r)
}

// EncodeHeaderForTesting serializes a schema header.
func EncodeHeaderForTesting(s Schema) []byte {
	return s.encodeHeader()
}

// LoadSchemaCachedForTesting runs load through a fresh schema cache twice
// and returns both results.
func LoadSchemaCachedForTesting(load func() (Schema, error)) (first, second Schema, firstErr, secondErr error) {
	var c schemaCache

	first, firstErr = c.get(load)
	second, secondErr = c.get(load)

	return first, second, firstErr, secondErr
}
