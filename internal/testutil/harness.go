package testutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Harness wires together a real data file and the reference model.
type Harness struct {
	TB     testing.TB
	Path   string
	Schema recdb.Schema
	DB     *recdb.DB
	Model  *Model
}

// BehaviorSchema is the small layout behavior tests run against.
func BehaviorSchema() recdb.Schema {
	return recdb.NewSchema(0x7e57,
		recdb.Field{Name: "a", Length: 4},
		recdb.Field{Name: "b", Length: 6},
		recdb.Field{Name: "c", Length: 2},
	)
}

// NewHarness creates a fresh data file in a temp dir.
func NewHarness(tb testing.TB) *Harness {
	tb.Helper()

	schema := BehaviorSchema()
	path := filepath.Join(tb.TempDir(), "behavior.db")

	db, err := recdb.Create(path, schema, recdb.Options{})
	if err != nil {
		tb.Fatalf("create data file: %v", err)
	}

	h := &Harness{TB: tb, Path: path, Schema: schema, DB: db, Model: NewModel(schema)}

	tb.Cleanup(func() { _ = h.DB.Close() })

	return h
}

// Reopen closes the DB and opens the file again.
func (h *Harness) Reopen() error {
	if err := h.DB.Close(); err != nil {
		return err
	}

	db, err := recdb.Open(h.Path, recdb.Options{})
	if err != nil {
		return err
	}

	h.DB = db

	return nil
}

// locked runs fn while holding row's lock.
func (h *Harness) locked(row int64, fn func(recdb.Cookie) error) error {
	cookie, err := h.DB.Lock(row)
	if err != nil {
		return err
	}

	return errors.Join(fn(cookie), h.DB.Unlock(row, cookie))
}
