package recdb

import (
	"errors"
	"strings"
	"time"
)

// Find returns the ids of all non-deleted rows matching criteria, in
// ascending order.
//
// criteria holds one value per field (missing trailing values are Absent).
// An Absent criterion matches any value; a present one matches values that
// start with it, case-sensitively. Some("") matches everything.
//
// The scan starts at row 0 and stops at the first row that is not in the
// file. Deleted rows are skipped without stopping it. A row whose read fails
// although it lies inside the file is logged and skipped.
//
// Possible errors: [ErrClosed], [ErrInvalidInput], [ErrIO].
func (db *DB) Find(criteria []Value) (rows []int64, err error) {
	defer db.observe("find", time.Now(), &err)

	if db.closed.Load() {
		return nil, ErrClosed
	}

	crit, err := db.normalize(criteria, "criteria")
	if err != nil {
		return nil, err
	}

	rows = []int64{}

	for row := int64(0); ; row++ {
		rec, err := db.store.readRow(row)
		if errors.Is(err, errRowAbsent) {
			break
		}

		if err != nil {
			inside, statErr := db.store.rowInsideFile(row)
			if statErr != nil {
				return nil, statErr
			}

			if !inside {
				break
			}

			db.log.Warn("skipping unreadable row", "row", row, "err", err)

			continue
		}

		if rec.Present && matches(rec.Fields, crit) {
			rows = append(rows, row)
		}
	}

	return rows, nil
}

func matches(fields []string, criteria []Value) bool {
	for i, c := range criteria {
		prefix, ok := c.Get()
		if ok && !strings.HasPrefix(fields[i], prefix) {
			return false
		}
	}

	return true
}
