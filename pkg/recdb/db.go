package recdb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/recdb/internal/fs"
)

const dataFilePerm = 0o644

// Options configures [Open] and [Create]. The zero value is usable.
type Options struct {
	// FS is the filesystem the data file is accessed through.
	// Default: the real filesystem.
	FS fs.FS

	// Logger receives operational logs. Default: discard.
	Logger *slog.Logger

	// Observer receives operation events. Default: none.
	Observer Observer

	// Exclusive takes an advisory lock on "<path>.lock" for the life of the
	// DB so no other process opens the same file with Exclusive set.
	// Open fails with [ErrBusy] if the lock is held.
	Exclusive bool

	// SyncWrites flushes file data to stable storage after every write.
	SyncWrites bool
}

// DB is an open data file. Create one DB per file and share it; it is safe
// for concurrent use.
type DB struct {
	path     string
	log      *slog.Logger
	obs      Observer
	store    *store
	schemas  schemaCache
	locks    *lockTable
	fileLock *fs.Lock
	closed   atomic.Bool
}

// Open opens an existing data file and reads its schema.
//
// Possible errors: [ErrIO] (including a missing file, which also matches
// [os.ErrNotExist]), [ErrMetadataCorrupt], [ErrBusy].
func Open(path string, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	var fileLock *fs.Lock

	if opts.Exclusive {
		lk, err := fs.NewLocker(opts.FS).TryLock(path + ".lock")
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return nil, fmt.Errorf("%w: %s is in use by another process", ErrBusy, path)
			}

			return nil, ioError("lock data file", err)
		}

		fileLock = lk
	}

	db := &DB{
		path:     path,
		log:      opts.Logger.With("db", path),
		obs:      opts.Observer,
		fileLock: fileLock,
		store:    &store{fs: opts.FS, path: path, syncWrites: opts.SyncWrites},
	}

	schema, err := db.Schema()
	if err != nil {
		if fileLock != nil {
			_ = fileLock.Close()
		}

		return nil, err
	}

	db.store.schema = schema
	db.locks = newLockTable(db.lockableRow, db.obs.LocksHeld)

	db.log.Info("opened data file",
		"fields", len(schema.Fields),
		"record_length", schema.RecordLength(),
		"exclusive", opts.Exclusive,
	)

	return db, nil
}

// Create writes a new data file containing only the header for schema and
// opens it. The file must not exist.
//
// Possible errors: [ErrInvalidInput] (bad schema or existing file), [ErrIO].
func Create(path string, schema Schema, opts Options) (*DB, error) {
	opts = opts.withDefaults()

	if err := schema.validate(); err != nil {
		return nil, err
	}

	exists, err := opts.FS.Exists(path)
	if err != nil {
		return nil, ioError("stat data file", err)
	}

	if exists {
		return nil, fmt.Errorf("%w: %s already exists", ErrInvalidInput, path)
	}

	if err := opts.FS.WriteFileAtomic(path, schema.encodeHeader(), dataFilePerm); err != nil {
		return nil, ioError("write data file", err)
	}

	opts.Logger.Info("created data file", "db", path, "fields", len(schema.Fields))

	return Open(path, opts)
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fs.NewReal()
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	if o.Observer == nil {
		o.Observer = nopObserver{}
	}

	return o
}

// Path returns the data file path.
func (db *DB) Path() string {
	return db.path
}

// Schema returns the file's schema. It is read from the header on first use
// and cached; a failed read is retried on the next call.
//
// Possible errors: [ErrIO], [ErrMetadataCorrupt].
func (db *DB) Schema() (Schema, error) {
	return db.schemas.get(db.loadSchema)
}

func (db *DB) loadSchema() (Schema, error) {
	f, err := db.store.openRead()
	if err != nil {
		return Schema{}, err
	}
	defer f.Close()

	schema, err := readSchema(f)
	if err != nil {
		db.log.Error("reading header failed", "err", err)

		return Schema{}, err
	}

	return schema, nil
}

// Close releases the exclusive file lock, if any, and wakes every blocked
// [DB.Lock] call, which then fails with [ErrClosed].
//
// After Close, all other methods return [ErrClosed].
// Close is idempotent; subsequent calls are no-ops.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	db.locks.close()

	if db.fileLock != nil {
		if err := db.fileLock.Close(); err != nil {
			return ioError("unlock data file", err)
		}
	}

	db.log.Info("closed data file")

	return nil
}

// Create stores values in the lowest free row and returns its id. Absent
// values are stored as empty fields. Create takes no row lock.
//
// Two concurrent creates may pick the same deleted row; the later write
// wins and both callers get the same id.
//
// Possible errors: [ErrClosed], [ErrInvalidInput], [ErrIO].
func (db *DB) Create(values []Value) (row int64, err error) {
	defer db.observe("create", time.Now(), &err)

	if db.closed.Load() {
		return 0, ErrClosed
	}

	vals, err := db.normalize(values, "values")
	if err != nil {
		return 0, err
	}

	for i, v := range vals {
		if v.IsAbsent() {
			vals[i] = Some("")
		}
	}

	row, err = db.store.allocateSlot()
	if err != nil {
		return 0, err
	}

	if err := db.store.writeRow(row, vals); err != nil {
		return 0, err
	}

	db.log.Debug("record created", "row", row)

	return row, nil
}

// Read returns the fields of row.
//
// Possible errors: [ErrClosed], [ErrRecordNotFound], [ErrIO].
func (db *DB) Read(row int64) ([]string, error) {
	rec, err := db.ReadRecord(row)
	if err != nil {
		return nil, err
	}

	return rec.Fields, nil
}

// ReadRecord is [DB.Read] returning the whole [Record].
func (db *DB) ReadRecord(row int64) (rec Record, err error) {
	defer db.observe("read", time.Now(), &err)

	if db.closed.Load() {
		return Record{}, ErrClosed
	}

	return db.readPresent(row)
}

// Update writes the present values over row, leaving fields whose value is
// [Absent] unchanged. The caller must hold the row's lock.
//
// Possible errors: [ErrClosed], [ErrInvalidInput], [ErrLockMismatch],
// [ErrRecordNotFound], [ErrIO].
func (db *DB) Update(row int64, values []Value, cookie Cookie) (err error) {
	defer db.observe("update", time.Now(), &err)

	if db.closed.Load() {
		return ErrClosed
	}

	vals, err := db.normalize(values, "values")
	if err != nil {
		return err
	}

	if !db.store.schema.addressable(row) {
		return fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	if err := db.locks.check(row, cookie); err != nil {
		return err
	}

	if _, err := db.readPresent(row); err != nil {
		return err
	}

	if err := db.store.writeRow(row, vals); err != nil {
		return err
	}

	db.log.Debug("record updated", "row", row)

	return nil
}

// Delete marks row deleted. The caller must hold the row's lock, which stays
// held until [DB.Unlock].
//
// Possible errors: [ErrClosed], [ErrLockMismatch], [ErrRecordNotFound],
// [ErrIO].
func (db *DB) Delete(row int64, cookie Cookie) (err error) {
	defer db.observe("delete", time.Now(), &err)

	if db.closed.Load() {
		return ErrClosed
	}

	if !db.store.schema.addressable(row) {
		return fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	if err := db.locks.check(row, cookie); err != nil {
		return err
	}

	deleted, err := db.store.markDeleted(row)
	if err != nil {
		return err
	}

	if !deleted {
		return fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	db.log.Debug("record deleted", "row", row)

	return nil
}

// Lock blocks until row is unlocked, then locks it and returns a new cookie.
// There is no timeout. If the row is absent or deleted once the lock is
// available, Lock fails and leaves the row unlocked.
//
// Possible errors: [ErrClosed], [ErrRecordNotFound], [ErrIO].
func (db *DB) Lock(row int64) (cookie Cookie, err error) {
	start := time.Now()
	defer db.observe("lock", start, &err)

	if db.closed.Load() {
		return 0, ErrClosed
	}

	if !db.store.schema.addressable(row) {
		return 0, fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	cookie, err = db.locks.lock(row)

	waited := time.Since(start)
	db.obs.LockWaited(waited)

	if err != nil {
		return 0, err
	}

	db.log.Debug("row locked", "row", row, "waited", waited)

	return cookie, nil
}

// Unlock releases row's lock.
//
// Possible errors: [ErrClosed], [ErrLockMismatch].
func (db *DB) Unlock(row int64, cookie Cookie) (err error) {
	defer db.observe("unlock", time.Now(), &err)

	if db.closed.Load() {
		return ErrClosed
	}

	if err := db.locks.unlock(row, cookie); err != nil {
		return err
	}

	db.log.Debug("row unlocked", "row", row)

	return nil
}

// readPresent reads row, failing unless it exists and is not deleted.
func (db *DB) readPresent(row int64) (Record, error) {
	if !db.store.schema.addressable(row) {
		return Record{}, fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	rec, err := db.store.readRow(row)
	if errors.Is(err, errRowAbsent) {
		return Record{}, fmt.Errorf("%w: row %d", ErrRecordNotFound, row)
	}

	if err != nil {
		return Record{}, err
	}

	if !rec.Present {
		return Record{}, fmt.Errorf("%w: row %d is deleted", ErrRecordNotFound, row)
	}

	return rec, nil
}

// lockableRow is the lock table's existence check.
func (db *DB) lockableRow(row int64) error {
	_, err := db.readPresent(row)

	return err
}

// normalize pads values with Absent to one per field.
func (db *DB) normalize(values []Value, what string) ([]Value, error) {
	n := len(db.store.schema.Fields)
	if len(values) > n {
		return nil, fmt.Errorf("%w: %d %s for %d fields", ErrInvalidInput, len(values), what, n)
	}

	out := make([]Value, n)
	copy(out, values)

	return out, nil
}

func (db *DB) observe(op string, start time.Time, err *error) {
	db.obs.OpDone(op, *err, time.Since(start))

	if *err != nil && errors.Is(*err, ErrIO) {
		db.log.Error("operation failed", "op", op, "err", *err)
	}
}
