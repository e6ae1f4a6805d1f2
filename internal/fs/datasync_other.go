//go:build !linux

package fs

// Datasync flushes file contents to stable storage. Platforms without
// fdatasync(2) use a full [File.Sync].
func Datasync(f File) error {
	return f.Sync()
}
