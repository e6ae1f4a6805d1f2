package testutil

import (
	"fmt"
	"strings"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Model is an in-memory reference of a data file: a slice of slots, each
// live or deleted. It mirrors the observable behavior of [recdb.DB] for a
// single caller.
type Model struct {
	lengths []int
	rows    []modelRow
}

type modelRow struct {
	present bool
	fields  []string
}

// NewModel returns an empty model for schema.
func NewModel(schema recdb.Schema) *Model {
	lengths := make([]int, len(schema.Fields))
	for i, f := range schema.Fields {
		lengths[i] = f.Length
	}

	return &Model{lengths: lengths}
}

// Rows returns the number of slots, live or deleted.
func (m *Model) Rows() int64 {
	return int64(len(m.rows))
}

// Create stores values in the lowest deleted slot, or appends.
func (m *Model) Create(values []recdb.Value) int64 {
	fields := make([]string, len(m.lengths))
	m.overwrite(fields, values)

	for i := range m.rows {
		if !m.rows[i].present {
			m.rows[i] = modelRow{present: true, fields: fields}

			return int64(i)
		}
	}

	m.rows = append(m.rows, modelRow{present: true, fields: fields})

	return int64(len(m.rows) - 1)
}

// Read returns the fields of a live row.
func (m *Model) Read(row int64) ([]string, error) {
	r, err := m.live(row)
	if err != nil {
		return nil, err
	}

	return append([]string(nil), r.fields...), nil
}

// Update overwrites the present values of a live row.
func (m *Model) Update(row int64, values []recdb.Value) error {
	r, err := m.live(row)
	if err != nil {
		return err
	}

	m.overwrite(r.fields, values)

	return nil
}

// Delete marks a live row deleted.
func (m *Model) Delete(row int64) error {
	r, err := m.live(row)
	if err != nil {
		return err
	}

	r.present = false

	return nil
}

// Find returns the live rows whose fields start with every present
// criterion.
func (m *Model) Find(criteria []recdb.Value) []int64 {
	out := []int64{}

	for i, r := range m.rows {
		if r.present && matchesPrefix(r.fields, criteria) {
			out = append(out, int64(i))
		}
	}

	return out
}

func (m *Model) live(row int64) (*modelRow, error) {
	if row < 0 || row >= int64(len(m.rows)) || !m.rows[row].present {
		return nil, fmt.Errorf("%w: row %d", recdb.ErrRecordNotFound, row)
	}

	return &m.rows[row], nil
}

func (m *Model) overwrite(fields []string, values []recdb.Value) {
	for i, v := range values {
		if s, ok := v.Get(); ok {
			fields[i] = stored(s, m.lengths[i])
		}
	}
}

// stored is what reading back v from a field of length characters yields.
func stored(v string, length int) string {
	runes := []rune(v)
	if len(runes) > length {
		runes = runes[:length]
	}

	return strings.TrimFunc(string(runes), func(r rune) bool { return r <= ' ' })
}

func matchesPrefix(fields []string, criteria []recdb.Value) bool {
	for i, c := range criteria {
		if p, ok := c.Get(); ok && !strings.HasPrefix(fields[i], p) {
			return false
		}
	}

	return true
}
