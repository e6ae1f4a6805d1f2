package metrics_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recdb/internal/metrics"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

func Test_Metrics_Counts_Operations_When_Used_As_Observer(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	path := filepath.Join(t.TempDir(), "m.db")
	db, err := recdb.Create(path, recdb.NewSchema(1, recdb.Field{Name: "name", Length: 8}), recdb.Options{Observer: m})
	require.NoError(t, err)

	defer db.Close()

	row, err := db.Create(recdb.Values("a"))
	require.NoError(t, err)

	cookie, err := db.Lock(row)
	require.NoError(t, err)
	require.NoError(t, db.Unlock(row, cookie))

	_, err = db.Read(42)
	require.ErrorIs(t, err, recdb.ErrRecordNotFound)

	expected := `
# HELP recdb_operations_total Record operations by operation and result.
# TYPE recdb_operations_total counter
recdb_operations_total{op="create",result="ok"} 1
recdb_operations_total{op="lock",result="ok"} 1
recdb_operations_total{op="read",result="not_found"} 1
recdb_operations_total{op="unlock",result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "recdb_operations_total"))

	n, err := testutil.GatherAndCount(m.Registry(), "recdb_lock_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func Test_Metrics_Serves_Exposition_When_Handler_Requested(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.RequestDone("GET /healthz", http.StatusOK)
	m.LocksHeld(3)
	m.LockWaited(time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `recdb_http_requests_total{code="200",route="GET /healthz"} 1`)
	assert.Contains(t, string(body), "recdb_locks_held 3")
}

func Test_Result_Maps_Errors_To_Labels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{recdb.ErrRecordNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", recdb.ErrLockMismatch), "lock_mismatch"},
		{recdb.ErrInvalidInput, "invalid"},
		{recdb.ErrClosed, "closed"},
		{recdb.ErrIO, "io"},
		{io.ErrClosedPipe, "error"},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.want, metrics.Result(testCase.err), "err=%v", testCase.err)
	}
}
