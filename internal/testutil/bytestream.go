package testutil

// ByteStream reads bytes sequentially from a byte slice.
//
// Used by fuzz tests to deterministically derive values from fuzz input.
// When the stream is exhausted, all reads return zero values, so the same
// input always produces the same sequence of operations.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over the given bytes.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal) derived from the next byte.
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextBool returns a boolean derived from the next byte.
func (s *ByteStream) NextBool() bool {
	return s.NextByte()&1 == 1
}

// fieldAlphabet is small so prefix searches hit often. It includes a space
// and a Latin-1 letter to exercise trimming and encoding.
var fieldAlphabet = []rune{'a', 'b', 'c', 'A', ' ', 'é'}

// NextField returns a string of 0 to maxLen characters from fieldAlphabet.
func (s *ByteStream) NextField(maxLen int) string {
	n := s.NextInt(maxLen + 1)

	out := make([]rune, n)
	for i := range out {
		out[i] = fieldAlphabet[s.NextInt(len(fieldAlphabet))]
	}

	return string(out)
}
