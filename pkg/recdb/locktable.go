package recdb

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Cookie proves ownership of a row lock. A fresh, nonzero cookie is issued
// on every successful [DB.Lock].
type Cookie uint64

// String formats the cookie as 16 hex digits.
func (c Cookie) String() string {
	return fmt.Sprintf("%016x", uint64(c))
}

// pending marks a row reserved by a lock call that is still checking the row
// exists. No issued cookie is ever zero, so pending never matches.
const pending Cookie = 0

// lockTable maps rows to the cookie of their holder.
//
// All waiters share one condition variable. A wake-up only means some row
// was released, so every waiter re-checks its own row.
type lockTable struct {
	mu     sync.Mutex
	cond   *sync.Cond
	held   map[int64]Cookie
	closed bool

	// exists is called without mu held. A non-nil error aborts the lock.
	exists func(row int64) error

	// changed is called with mu held after the number of held locks changes.
	changed func(held int)
}

func newLockTable(exists func(row int64) error, changed func(held int)) *lockTable {
	t := &lockTable{
		held:    make(map[int64]Cookie),
		exists:  exists,
		changed: changed,
	}
	t.cond = sync.NewCond(&t.mu)

	return t
}

// lock blocks until row is free, then verifies it exists and returns a new
// cookie. There is no timeout.
func (t *lockTable) lock(row int64) (Cookie, error) {
	t.mu.Lock()

	for {
		if t.closed {
			t.mu.Unlock()

			return 0, ErrClosed
		}

		if _, busy := t.held[row]; !busy {
			break
		}

		t.cond.Wait()
	}

	t.held[row] = pending
	t.mu.Unlock()

	existsErr := t.exists(row)

	t.mu.Lock()
	defer t.mu.Unlock()

	if existsErr != nil || t.closed {
		delete(t.held, row)
		t.cond.Broadcast()

		if existsErr != nil {
			return 0, existsErr
		}

		return 0, ErrClosed
	}

	cookie := t.newCookie()
	t.held[row] = cookie
	t.notify()

	return cookie, nil
}

// check fails unless row is locked with cookie.
func (t *lockTable) check(row int64, cookie Cookie) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.checkLocked(row, cookie)
}

// unlock releases row and wakes every waiter.
func (t *lockTable) unlock(row int64, cookie Cookie) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(row, cookie); err != nil {
		return err
	}

	delete(t.held, row)
	t.cond.Broadcast()
	t.notify()

	return nil
}

// close makes blocked and future lock calls fail with ErrClosed.
func (t *lockTable) close() {
	t.mu.Lock()
	t.closed = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *lockTable) checkLocked(row int64, cookie Cookie) error {
	holder, ok := t.held[row]
	if !ok || holder == pending {
		return fmt.Errorf("%w: row %d is not locked", ErrLockMismatch, row)
	}

	if holder != cookie {
		return fmt.Errorf("%w: row %d: got cookie %s, held with %s", ErrLockMismatch, row, cookie, holder)
	}

	return nil
}

func (t *lockTable) newCookie() Cookie {
	var b [8]byte

	for {
		// crypto/rand.Read never returns an error.
		_, _ = rand.Read(b[:])

		c := Cookie(binary.LittleEndian.Uint64(b[:]))
		if c == pending || t.inUse(c) {
			continue
		}

		return c
	}
}

func (t *lockTable) inUse(c Cookie) bool {
	for _, held := range t.held {
		if held == c {
			return true
		}
	}

	return false
}

func (t *lockTable) notify() {
	if t.changed == nil {
		return
	}

	n := 0

	for _, c := range t.held {
		if c != pending {
			n++
		}
	}

	t.changed(n)
}
