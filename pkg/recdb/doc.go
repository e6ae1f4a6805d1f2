// Package recdb provides a single-file, fixed-width record store.
//
// A data file starts with a header describing the schema (an ordered list of
// named, fixed-length text fields) followed by an array of equally sized
// rows. Each row is a 2-byte presence flag plus one byte span per field.
// Deleting a row only flips its flag; the slot is reused by the next create.
//
// # Basic Usage
//
//	db, err := recdb.Open("contractors.db", recdb.Options{})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	row, err := db.Create(recdb.Values("Ace", "Berlin", "plumbing", "5", "$50", ""))
//
//	cookie, err := db.Lock(row)
//	err = db.Update(row, []recdb.Value{5: recdb.Some("12345678")}, cookie)
//	err = db.Unlock(row, cookie)
//
//	rows, err := db.Find([]recdb.Value{recdb.Some("Ace")})
//
// # Concurrency
//
// A [DB] is safe for concurrent use. Update and Delete require the caller to
// hold the row's lock (see [DB.Lock]); Lock blocks, without timeout, while
// another caller holds the row. Create takes no lock: two concurrent creates
// may select the same deleted slot, and the later write wins.
//
// # Error Handling
//
// All errors wrap one of the sentinel errors in this package and are checked
// with [errors.Is]. Underlying OS errors are joined under [ErrIO], so
// errors.Is(err, fs.ErrPermission) keeps working.
package recdb
