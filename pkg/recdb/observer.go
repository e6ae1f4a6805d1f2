package recdb

import "time"

// Observer receives operation events, typically to feed metrics.
//
// Methods are called synchronously from the operation's goroutine and must
// not block. LocksHeld is called while the lock table is locked and must not
// call back into the [DB].
type Observer interface {
	// OpDone is called once per public operation ("create", "read",
	// "update", "delete", "find", "lock", "unlock") with its result.
	OpDone(op string, err error, elapsed time.Duration)

	// LockWaited reports how long a Lock call blocked, including the
	// existence check.
	LockWaited(d time.Duration)

	// LocksHeld reports the number of rows currently locked.
	LocksHeld(n int)
}

type nopObserver struct{}

func (nopObserver) OpDone(string, error, time.Duration) {}
func (nopObserver) LockWaited(time.Duration)            {}
func (nopObserver) LocksHeld(int)                       {}
