package recdb_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recdb/internal/fs"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

func Test_DB_Applies_Owner_When_Record_Created_Locked_Updated_And_Unlocked(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	row := mustCreate(t, db, "Ace", "Berlin", "plumbing", "5", "$50", "  ")

	rec, err := db.ReadRecord(row)
	require.NoError(t, err)
	assert.True(t, rec.Present)
	assert.Equal(t, []string{"Ace", "Berlin", "plumbing", "5", "$50", ""}, rec.Fields)

	cookie := mustLock(t, db, row)

	update := []recdb.Value{recdb.Absent, recdb.Absent, recdb.Absent, recdb.Absent, recdb.Absent, recdb.Some("12345678")}
	require.NoError(t, db.Update(row, update, cookie))
	require.NoError(t, db.Unlock(row, cookie))

	got, err := db.Read(row)
	require.NoError(t, err)

	want := []string{"Ace", "Berlin", "plumbing", "5", "$50", "12345678"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func Test_DB_Writes_Expected_Bytes_When_Record_Created(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tiny.db")
	schema := recdb.NewSchema(0x01020304, recdb.Field{Name: "a", Length: 3}, recdb.Field{Name: "b", Length: 2})

	db, err := recdb.Create(path, schema, recdb.Options{})
	require.NoError(t, err)

	defer db.Close()

	_, err = db.Create(recdb.Values("xy", "long"))
	require.NoError(t, err)

	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x00, 0x00, 0x00, 0x14,
		0x00, 0x02,
		0x00, 0x01, 'a', 0x00, 0x03,
		0x00, 0x01, 'b', 0x00, 0x02,
		0x00, 0x00, 'x', 'y', 0x00, 'l', 'o',
	}

	assert.Equal(t, want, readFile(t, path))
}

func Test_DB_Reuses_Lowest_Deleted_Row_When_Creating(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	a := mustCreate(t, db, "A")
	b := mustCreate(t, db, "B")
	c := mustCreate(t, db, "C")
	require.Equal(t, []int64{0, 1, 2}, []int64{a, b, c})

	mustDelete(t, db, c)
	mustDelete(t, db, a)

	d := mustCreate(t, db, "D")
	assert.Equal(t, a, d, "lowest free slot reused first")

	e := mustCreate(t, db, "E")
	assert.Equal(t, c, e)

	f := mustCreate(t, db, "F")
	assert.Equal(t, int64(3), f, "file extended once no slot is free")
}

func Test_DB_Clears_Stale_Bytes_When_Reused_Slot_Created_With_Absent_Values(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	row := mustCreate(t, db, "Old", "Paris", "roofing", "9", "$90", "87654321")
	mustDelete(t, db, row)

	reused, err := db.Create([]recdb.Value{recdb.Some("New")})
	require.NoError(t, err)
	require.Equal(t, row, reused)

	got, err := db.Read(reused)
	require.NoError(t, err)
	assert.Equal(t, []string{"New", "", "", "", "", ""}, got)
}

func Test_DB_Returns_Same_Row_When_Two_Allocations_Race(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	mustCreate(t, db, "A")
	second := mustCreate(t, db, "B")
	mustDelete(t, db, second)

	// Both creates scan before either writes.
	first, err := recdb.AllocateSlotForTesting(db)
	require.NoError(t, err)

	again, err := recdb.AllocateSlotForTesting(db)
	require.NoError(t, err)

	assert.Equal(t, second, first)
	assert.Equal(t, first, again)
}

func Test_MarkDeleted_Returns_True_Then_False_When_Called_Twice(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "A")

	deleted, err := recdb.MarkDeletedForTesting(db, row)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = recdb.MarkDeletedForTesting(db, row)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = recdb.MarkDeletedForTesting(db, row+10)
	require.NoError(t, err)
	assert.False(t, deleted, "row past end-of-file")
}

func Test_DB_Keeps_Field_Bytes_When_Row_Deleted(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "Ghost", "Oslo")

	before := readFile(t, db.Path())
	mustDelete(t, db, row)
	after := readFile(t, db.Path())

	schema, err := db.Schema()
	require.NoError(t, err)

	flagPos := schema.RowOffset
	assert.Equal(t, []byte{0x80, 0x00}, after[flagPos:flagPos+2])
	assert.Equal(t, before[flagPos+2:], after[flagPos+2:])
}

func Test_DB_Leaves_File_Unchanged_When_Update_Has_Only_Absent_Values(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "Ace", "Berlin", "plumbing", "5", "$50", "")
	mustCreate(t, db, "Neighbour", "Rome")

	before := readFile(t, db.Path())

	cookie := mustLock(t, db, row)
	require.NoError(t, db.Update(row, make([]recdb.Value, 6), cookie))
	require.NoError(t, db.Update(row, nil, cookie))
	require.NoError(t, db.Unlock(row, cookie))

	assert.True(t, bytes.Equal(before, readFile(t, db.Path())))
}

func Test_DB_Does_Not_Touch_Neighbours_When_Updating_Row(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	first := mustCreate(t, db, "First", "A")
	middle := mustCreate(t, db, "Middle", "B")
	last := mustCreate(t, db, "Last", "C")

	cookie := mustLock(t, db, middle)
	long := string(bytes.Repeat([]byte("z"), 200))
	require.NoError(t, db.Update(middle, []recdb.Value{recdb.Some(long), recdb.Some(long)}, cookie))
	require.NoError(t, db.Unlock(middle, cookie))

	got, err := db.Read(first)
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "A", "", "", "", ""}, got)

	got, err = db.Read(last)
	require.NoError(t, err)
	assert.Equal(t, []string{"Last", "C", "", "", "", ""}, got)

	got, err = db.Read(middle)
	require.NoError(t, err)
	assert.Equal(t, long[:32], got[0])
	assert.Equal(t, long[:64], got[1])
}

func Test_DB_Returns_ErrRecordNotFound_When_Reading_Missing_Rows(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "A")
	mustDelete(t, db, row)

	for _, r := range []int64{row, 1, 99, -1} {
		_, err := db.Read(r)
		require.ErrorIs(t, err, recdb.ErrRecordNotFound, "row %d", r)
	}
}

func Test_DB_Returns_ErrRecordNotFound_When_Deleting_Deleted_Row(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "A")

	cookie := mustLock(t, db, row)
	require.NoError(t, db.Delete(row, cookie))

	err := db.Delete(row, cookie)
	require.ErrorIs(t, err, recdb.ErrRecordNotFound)

	err = db.Update(row, recdb.Values("B"), cookie)
	require.ErrorIs(t, err, recdb.ErrRecordNotFound)

	require.NoError(t, db.Unlock(row, cookie))
}

func Test_DB_Returns_ErrInvalidInput_When_More_Values_Than_Fields(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "A")
	tooMany := recdb.Values("1", "2", "3", "4", "5", "6", "7")

	_, err := db.Create(tooMany)
	require.ErrorIs(t, err, recdb.ErrInvalidInput)

	_, err = db.Find(tooMany)
	require.ErrorIs(t, err, recdb.ErrInvalidInput)

	cookie := mustLock(t, db, row)
	require.ErrorIs(t, db.Update(row, tooMany, cookie), recdb.ErrInvalidInput)
	require.NoError(t, db.Unlock(row, cookie))
}

func Test_Find_Matches_By_Prefix_When_Criteria_Present(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	fred := mustCreate(t, db, "Fred", "NYC")
	freddy := mustCreate(t, db, "Freddy", "LA")
	mustCreate(t, db, "fred", "SF")

	testCases := []struct {
		name     string
		criteria []recdb.Value
		want     []int64
	}{
		{name: "Prefix", criteria: []recdb.Value{recdb.Some("Fred"), recdb.Absent}, want: []int64{fred, freddy}},
		{name: "LongerPrefix", criteria: []recdb.Value{recdb.Some("Freddy"), recdb.Absent}, want: []int64{freddy}},
		{name: "SecondField", criteria: []recdb.Value{recdb.Absent, recdb.Some("N")}, want: []int64{fred}},
		{name: "AllFields", criteria: []recdb.Value{recdb.Some("Fred"), recdb.Some("LA")}, want: []int64{freddy}},
		{name: "CaseSensitive", criteria: []recdb.Value{recdb.Some("FRED")}, want: []int64{}},
		{name: "EmptyMatchesAll", criteria: []recdb.Value{recdb.Some("")}, want: []int64{0, 1, 2}},
		{name: "NoCriteria", criteria: nil, want: []int64{0, 1, 2}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := db.Find(testCase.criteria)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func Test_Find_Skips_Deleted_Rows_Without_Stopping_When_Scanning(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	a := mustCreate(t, db, "A")
	b := mustCreate(t, db, "B")
	c := mustCreate(t, db, "C")
	d := mustCreate(t, db, "D")

	mustDelete(t, db, b)
	mustDelete(t, db, d)

	got, err := db.Find(nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, c}, got)
}

func Test_Find_Stops_At_First_Absent_Row_When_File_Ends_With_Partial_Row(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	mustCreate(t, db, "A")
	mustCreate(t, db, "B")

	f, err := os.OpenFile(db.Path(), os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)

	_, err = f.Write([]byte{0, 0, 'C'})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := db.Find(nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, got)

	_, err = db.Read(2)
	require.ErrorIs(t, err, recdb.ErrRecordNotFound)

	row, err := recdb.AllocateSlotForTesting(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row, "partial row counts as free")
}

func Test_Find_Returns_Empty_When_File_Has_No_Rows(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	got, err := db.Find(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func Test_Open_Returns_ErrIO_When_File_Missing(t *testing.T) {
	t.Parallel()

	_, err := recdb.Open(filepath.Join(t.TempDir(), "missing.db"), recdb.Options{})
	require.ErrorIs(t, err, recdb.ErrIO)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func Test_Open_Returns_ErrMetadataCorrupt_When_Header_Truncated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.db")
	header := recdb.EncodeHeaderForTesting(recdb.NewSchema(1, contractorFields...))
	require.NoError(t, os.WriteFile(path, header[:len(header)-1], 0o644))

	_, err := recdb.Open(path, recdb.Options{})
	require.ErrorIs(t, err, recdb.ErrMetadataCorrupt)
}

func Test_Open_Reads_Existing_Records_When_Reopened(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "Persisted", "Here")
	require.NoError(t, db.Close())

	reopened, err := recdb.Open(db.Path(), recdb.Options{})
	require.NoError(t, err)

	defer reopened.Close()

	got, err := reopened.Read(row)
	require.NoError(t, err)
	assert.Equal(t, "Persisted", got[0])

	schema, err := reopened.Schema()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x203), schema.Magic)
}

func Test_Create_Returns_ErrInvalidInput_When_File_Exists_Or_Schema_Invalid(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	_, err := recdb.Create(db.Path(), recdb.NewSchema(0, contractorFields...), recdb.Options{})
	require.ErrorIs(t, err, recdb.ErrInvalidInput)

	dir := t.TempDir()

	_, err = recdb.Create(filepath.Join(dir, "a.db"), recdb.NewSchema(0), recdb.Options{})
	require.ErrorIs(t, err, recdb.ErrInvalidInput)

	_, err = recdb.Create(filepath.Join(dir, "b.db"), recdb.NewSchema(0, recdb.Field{Name: "x", Length: 0}), recdb.Options{})
	require.ErrorIs(t, err, recdb.ErrInvalidInput)
}

func Test_Open_Returns_ErrBusy_When_Exclusive_And_Already_Open(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{Exclusive: true})

	_, err := recdb.Open(db.Path(), recdb.Options{Exclusive: true})
	require.ErrorIs(t, err, recdb.ErrBusy)

	shared, err := recdb.Open(db.Path(), recdb.Options{})
	require.NoError(t, err, "non-exclusive open ignores the lock")
	require.NoError(t, shared.Close())

	require.NoError(t, db.Close())

	again, err := recdb.Open(db.Path(), recdb.Options{Exclusive: true})
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func Test_DB_Returns_ErrClosed_When_Used_After_Close(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "A")
	cookie := mustLock(t, db, row)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "Close is idempotent")

	_, err := db.Create(recdb.Values("B"))
	require.ErrorIs(t, err, recdb.ErrClosed)

	_, err = db.Read(row)
	require.ErrorIs(t, err, recdb.ErrClosed)

	_, err = db.Find(nil)
	require.ErrorIs(t, err, recdb.ErrClosed)

	_, err = db.Lock(row)
	require.ErrorIs(t, err, recdb.ErrClosed)

	require.ErrorIs(t, db.Update(row, nil, cookie), recdb.ErrClosed)
	require.ErrorIs(t, db.Delete(row, cookie), recdb.ErrClosed)
	require.ErrorIs(t, db.Unlock(row, cookie), recdb.ErrClosed)
}

func Test_DB_Returns_ErrIO_When_Data_File_Unreadable(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	db := newTestDB(t, recdb.Options{FS: chaos})
	row := mustCreate(t, db, "A")

	chaos.SetMode(fs.ChaosModeStickyOnly)
	chaos.Break(db.Path())

	_, err := db.Read(row)
	require.ErrorIs(t, err, recdb.ErrIO)
	require.ErrorIs(t, err, syscall.EIO)
	assert.True(t, fs.IsInjected(err))

	_, err = db.Create(recdb.Values("B"))
	require.ErrorIs(t, err, recdb.ErrIO)

	_, err = db.Find(nil)
	require.ErrorIs(t, err, recdb.ErrIO)

	_, err = db.Lock(row)
	require.ErrorIs(t, err, recdb.ErrIO)

	chaos.Heal(db.Path())

	got, err := db.Read(row)
	require.NoError(t, err, "a failed operation leaves the DB usable")
	assert.Equal(t, "A", got[0])

	cookie := mustLock(t, db, row)
	require.NoError(t, db.Unlock(row, cookie))
}

func Test_Find_Skips_Rows_When_Reads_Fail_Inside_File(t *testing.T) {
	t.Parallel()

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{ReadFailRate: 1})
	db := newTestDB(t, recdb.Options{FS: chaos})
	mustCreate(t, db, "A")
	mustCreate(t, db, "B")

	chaos.SetMode(fs.ChaosModeInject)

	got, err := db.Find(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Positive(t, chaos.Stats().ReadFails)

	chaos.SetMode(fs.ChaosModePassthrough)

	got, err = db.Find(nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, got)
}

func Test_Open_Returns_ErrIO_When_Header_Unreadable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	require.NoError(t, db.Close())

	chaos := fs.NewChaos(fs.NewReal(), 1, fs.ChaosConfig{})
	chaos.SetMode(fs.ChaosModeStickyOnly)
	chaos.Break(db.Path())

	_, err := recdb.Open(db.Path(), recdb.Options{FS: chaos})
	require.ErrorIs(t, err, recdb.ErrIO)
}

func Test_DB_Persists_Records_When_SyncWrites_Enabled(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{SyncWrites: true})
	row := mustCreate(t, db, "Synced")
	mustDelete(t, db, row)

	row = mustCreate(t, db, "Again")

	got, err := db.Read(row)
	require.NoError(t, err)
	assert.Equal(t, "Again", got[0])
}

func Test_DB_Reports_Operations_When_Observer_Set(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	db := newTestDB(t, recdb.Options{Observer: obs})

	row := mustCreate(t, db, "A")
	cookie := mustLock(t, db, row)
	require.NoError(t, db.Unlock(row, cookie))

	_, err := db.Read(99)
	require.Error(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()

	assert.Equal(t, []string{"create", "lock", "unlock", "read"}, obs.ops)
	require.ErrorIs(t, obs.errs[3], recdb.ErrRecordNotFound)
	assert.Len(t, obs.waits, 1)
	assert.Equal(t, []int{1, 0}, obs.locksHeld)
}

func Test_DB_Returns_ErrRecordNotFound_When_Row_Offset_Would_Overflow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})

	row := mustCreate(t, db, "Ace", "Berlin", "plumbing", "5", "$50", "")
	want := []string{"Ace", "Berlin", "plumbing", "5", "$50", ""}

	// Row 0 stays locked throughout; none of the huge ids may reach it.
	cookie := mustLock(t, db, row)

	// 1<<61 * 184 wraps to exactly row 0's offset.
	for _, huge := range []int64{1 << 61, 1<<62 + 7, math.MaxInt64} {
		_, err := db.Read(huge)
		require.ErrorIs(t, err, recdb.ErrRecordNotFound, "read %d", huge)

		_, err = db.Lock(huge)
		require.ErrorIs(t, err, recdb.ErrRecordNotFound, "lock %d", huge)

		err = db.Update(huge, recdb.Values("Hijack"), cookie)
		require.ErrorIs(t, err, recdb.ErrRecordNotFound, "update %d", huge)

		err = db.Delete(huge, cookie)
		require.ErrorIs(t, err, recdb.ErrRecordNotFound, "delete %d", huge)

		deleted, err := recdb.MarkDeletedForTesting(db, huge)
		require.NoError(t, err)
		assert.False(t, deleted, "mark deleted %d", huge)
	}

	require.NoError(t, db.Unlock(row, cookie))

	got, err := db.Read(row)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("row 0 changed (-want +got):\n%s", diff)
	}
}

func Test_DB_Keeps_Geometry_When_Returned_Schema_Mutated(t *testing.T) {
	t.Parallel()

	db := newTestDB(t, recdb.Options{})
	row := mustCreate(t, db, "Ace", "Berlin", "plumbing", "5", "$50", "")

	s, err := db.Schema()
	require.NoError(t, err)

	wantLength := s.RecordLength()
	s.Fields[0].Length = 2
	s.Fields[1].Name = "changed"

	again, err := db.Schema()
	require.NoError(t, err)
	assert.Equal(t, wantLength, again.RecordLength())
	assert.Equal(t, "location", again.Fields[1].Name)

	got, err := db.Read(row)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ace", "Berlin", "plumbing", "5", "$50", ""}, got)
}
