package fs

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// injectedPathErrors records the *fs.PathError values created by [Chaos].
// Injected errors stay plain *fs.PathError so os.IsNotExist and errors.Is on
// the errno keep working; this registry is what tells them apart.
var injectedPathErrors sync.Map // map[*iofs.PathError]struct{}

// IsInjected reports whether err (or any error it wraps) was injected by
// [Chaos]. Returns false if err is nil.
func IsInjected(err error) bool {
	var pathErr *iofs.PathError
	if !errors.As(err, &pathErr) {
		return false
	}

	_, ok := injectedPathErrors.Load(pathErr)

	return ok
}

func markInjectedPathError(err *iofs.PathError) {
	injectedPathErrors.Store(err, struct{}{})
}
