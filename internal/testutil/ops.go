// Package testutil provides a reference model and random operation streams
// for model-vs-real behavior tests of the record store.
package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Result is the outcome of one operation. Value holds the canonical
// payload (row id, fields or found rows) for comparison.
type Result struct {
	Err   error
	Value any
}

// Op is a behavior test operation executed against model and real DB.
type Op interface {
	ApplyModel(h *Harness) Result
	ApplyReal(h *Harness) Result
	String() string
}

// OpCreate stores a new record.
type OpCreate struct {
	Values []recdb.Value
}

func (op OpCreate) ApplyModel(h *Harness) Result {
	return Result{Value: h.Model.Create(op.Values)}
}

func (op OpCreate) ApplyReal(h *Harness) Result {
	row, err := h.DB.Create(op.Values)

	return Result{Err: err, Value: row}
}

func (op OpCreate) String() string {
	return "create " + formatValues(op.Values)
}

// OpRead reads one row.
type OpRead struct {
	Row int64
}

func (op OpRead) ApplyModel(h *Harness) Result {
	fields, err := h.Model.Read(op.Row)

	return Result{Err: err, Value: fields}
}

func (op OpRead) ApplyReal(h *Harness) Result {
	fields, err := h.DB.Read(op.Row)

	return Result{Err: err, Value: fields}
}

func (op OpRead) String() string {
	return fmt.Sprintf("read %d", op.Row)
}

// OpUpdate locks a row, updates it and unlocks it.
type OpUpdate struct {
	Row    int64
	Values []recdb.Value
}

func (op OpUpdate) ApplyModel(h *Harness) Result {
	return Result{Err: h.Model.Update(op.Row, op.Values)}
}

func (op OpUpdate) ApplyReal(h *Harness) Result {
	return Result{Err: h.locked(op.Row, func(c recdb.Cookie) error {
		return h.DB.Update(op.Row, op.Values, c)
	})}
}

func (op OpUpdate) String() string {
	return fmt.Sprintf("update %d %s", op.Row, formatValues(op.Values))
}

// OpDelete locks a row and deletes it.
type OpDelete struct {
	Row int64
}

func (op OpDelete) ApplyModel(h *Harness) Result {
	return Result{Err: h.Model.Delete(op.Row)}
}

func (op OpDelete) ApplyReal(h *Harness) Result {
	return Result{Err: h.locked(op.Row, func(c recdb.Cookie) error {
		return h.DB.Delete(op.Row, c)
	})}
}

func (op OpDelete) String() string {
	return fmt.Sprintf("delete %d", op.Row)
}

// OpFind runs a prefix search.
type OpFind struct {
	Criteria []recdb.Value
}

func (op OpFind) ApplyModel(h *Harness) Result {
	return Result{Value: h.Model.Find(op.Criteria)}
}

func (op OpFind) ApplyReal(h *Harness) Result {
	rows, err := h.DB.Find(op.Criteria)

	return Result{Err: err, Value: rows}
}

func (op OpFind) String() string {
	return "find " + formatValues(op.Criteria)
}

// OpReopen closes and reopens the data file. The model is unchanged.
type OpReopen struct{}

func (OpReopen) ApplyModel(*Harness) Result {
	return Result{}
}

func (OpReopen) ApplyReal(h *Harness) Result {
	return Result{Err: h.Reopen()}
}

func (OpReopen) String() string {
	return "reopen"
}

// errorKinds are the sentinels results are compared by.
var errorKinds = []error{
	recdb.ErrRecordNotFound,
	recdb.ErrLockMismatch,
	recdb.ErrInvalidInput,
	recdb.ErrClosed,
	recdb.ErrIO,
	recdb.ErrMetadataCorrupt,
}

func errorKind(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return err
}

func formatValues(values []recdb.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if s, ok := v.Get(); ok {
			parts[i] = fmt.Sprintf("%q", s)
		} else {
			parts[i] = "-"
		}
	}

	return "[" + strings.Join(parts, " ") + "]"
}
