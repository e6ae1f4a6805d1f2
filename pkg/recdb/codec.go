package recdb

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Field bytes are ISO-8859-1: one byte per character, so a field's byte
// length is also its length in characters.
var fieldCharset = charmap.ISO8859_1

// substituteByte replaces characters ISO-8859-1 cannot represent.
const substituteByte = '?'

// decodeField converts a field's on-disk bytes to a string.
//
// Bytes up to the first zero byte (or the whole span) are decoded; the rest
// of the span is ignored. Surrounding whitespace, meaning any character at or
// below U+0020, is trimmed.
func decodeField(span []byte) string {
	if end := bytes.IndexByte(span, 0); end >= 0 {
		span = span[:end]
	}

	var sb strings.Builder

	sb.Grow(len(span))

	for _, b := range span {
		sb.WriteRune(fieldCharset.DecodeByte(b))
	}

	return strings.TrimFunc(sb.String(), isFieldSpace)
}

func isFieldSpace(r rune) bool {
	return r <= ' '
}

// encodeField fills span with v: encoded, truncated to len(span) characters
// and zero-padded. Truncation is silent.
func encodeField(span []byte, v string) {
	n := 0

	for n < len(span) && len(v) > 0 {
		r, size := utf8.DecodeRuneInString(v)
		v = v[size:]

		b, ok := fieldCharset.EncodeRune(r)
		if !ok {
			b = substituteByte
		}

		span[n] = b
		n++
	}

	clear(span[n:])
}
