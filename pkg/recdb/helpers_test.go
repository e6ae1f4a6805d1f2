package recdb_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

var contractorFields = []recdb.Field{
	{Name: "name", Length: 32},
	{Name: "location", Length: 64},
	{Name: "specialties", Length: 64},
	{Name: "size", Length: 6},
	{Name: "rate", Length: 8},
	{Name: "owner", Length: 8},
}

func newTestDB(t *testing.T, opts recdb.Options) *recdb.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := recdb.Create(path, recdb.NewSchema(0x203, contractorFields...), opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func mustCreate(t *testing.T, db *recdb.DB, fields ...string) int64 {
	t.Helper()

	row, err := db.Create(recdb.Values(fields...))
	require.NoError(t, err)

	return row
}

func mustLock(t *testing.T, db *recdb.DB, row int64) recdb.Cookie {
	t.Helper()

	cookie, err := db.Lock(row)
	require.NoError(t, err)

	return cookie
}

func mustDelete(t *testing.T, db *recdb.DB, row int64) {
	t.Helper()

	cookie := mustLock(t, db, row)
	require.NoError(t, db.Delete(row, cookie))
	require.NoError(t, db.Unlock(row, cookie))
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return b
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	mu        sync.Mutex
	ops       []string
	errs      []error
	waits     []time.Duration
	locksHeld []int
}

func (o *recordingObserver) OpDone(op string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) LockWaited(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.waits = append(o.waits, d)
}

func (o *recordingObserver) LocksHeld(n int) {
	// Called with the lock table locked; never call back into the DB here.
	o.mu.Lock()
	defer o.mu.Unlock()

	o.locksHeld = append(o.locksHeld, n)
}
