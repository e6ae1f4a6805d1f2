package recdb

import "strconv"

// Value is an optional field value.
//
// The zero Value is [Absent]. In an update an absent value leaves the stored
// field untouched; in search criteria it matches any field. Absent is
// distinct from Some(""), which clears a field or matches everything by
// prefix.
type Value struct {
	s  string
	ok bool
}

// Absent is the "leave unchanged" / "match anything" value.
var Absent Value

// Some returns a present Value holding s.
func Some(s string) Value {
	return Value{s: s, ok: true}
}

// Values returns a present Value for each string.
func Values(ss ...string) []Value {
	out := make([]Value, len(ss))
	for i, s := range ss {
		out[i] = Some(s)
	}

	return out
}

// Get returns the string and whether the value is present.
func (v Value) Get() (string, bool) {
	return v.s, v.ok
}

// IsAbsent reports whether v is [Absent].
func (v Value) IsAbsent() bool {
	return !v.ok
}

// String returns the quoted value, or "<absent>".
func (v Value) String() string {
	if !v.ok {
		return "<absent>"
	}

	return strconv.Quote(v.s)
}
