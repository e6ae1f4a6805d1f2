package fs

import (
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
type ChaosConfig struct {
	OpenFailRate    float64 // Fail Open/OpenFile
	ReadFailRate    float64 // Fail reads entirely
	PartialReadRate float64 // Return a short read
	WriteFailRate   float64 // Fail writes entirely
	StatFailRate    float64 // Fail Stat/Exists
}

// DefaultChaosConfig returns a config with low fault rates, useful for
// randomized tests.
func DefaultChaosConfig() ChaosConfig {
	return ChaosConfig{
		OpenFailRate:    0.02,
		ReadFailRate:    0.02,
		PartialReadRate: 0.02,
		WriteFailRate:   0.02,
		StatFailRate:    0.01,
	}
}

// ChaosMode controls how Chaos behaves.
type ChaosMode uint8

const (
	// ChaosModePassthrough behaves like the underlying FS and ignores both
	// fault rates and broken paths.
	ChaosModePassthrough ChaosMode = iota

	// ChaosModeInject applies fault rates and broken paths.
	ChaosModeInject

	// ChaosModeStickyOnly applies broken paths only.
	ChaosModeStickyOnly
)

// Chaos wraps an [FS] and injects failures for testing.
//
// Injected errors are real *fs.PathError values carrying a syscall.Errno, so
// errors.Is(err, syscall.EIO) behaves exactly as with a real disk error.
// [IsInjected] tells them apart from genuine failures.
//
// A path marked with [Chaos.Break] fails every open, read, write and stat
// with EIO until [Chaos.Heal] is called, which is how tests simulate a bad
// sector under a data file.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	mu     sync.Mutex
	rng    *rand.Rand
	broken map[string]bool

	openFails    atomic.Int64
	readFails    atomic.Int64
	partialReads atomic.Int64
	writeFails   atomic.Int64
	statFails    atomic.Int64
}

// NewChaos creates a Chaos filesystem wrapping fs. The seed makes fault
// injection reproducible. The initial mode is [ChaosModePassthrough].
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{
		fs:     fs,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		broken: make(map[string]bool),
	}
}

// SetMode updates Chaos behavior. Safe for concurrent use.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Break makes every operation on path fail with EIO.
func (c *Chaos) Break(path string) {
	c.mu.Lock()
	c.broken[path] = true
	c.mu.Unlock()
}

// Heal undoes [Chaos.Break].
func (c *Chaos) Heal(path string) {
	c.mu.Lock()
	delete(c.broken, path)
	c.mu.Unlock()
}

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails    int64
	ReadFails    int64
	PartialReads int64
	WriteFails   int64
	StatFails    int64
}

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:    c.openFails.Load(),
		ReadFails:    c.readFails.Load(),
		PartialReads: c.partialReads.Load(),
		WriteFails:   c.writeFails.Load(),
		StatFails:    c.statFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.PartialReads + s.WriteFails + s.StatFails
}

func (c *Chaos) currentMode() ChaosMode {
	return ChaosMode(c.mode.Load())
}

func (c *Chaos) isBroken(mode ChaosMode, path string) bool {
	if mode == ChaosModePassthrough {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.broken[path]
}

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeInject || rate <= 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) randIntn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Intn(n)
}

// pathError creates an *fs.PathError like the OS would, marked as injected.
func pathError(op, path string, errno syscall.Errno) error {
	pe := &fs.PathError{Op: op, Path: path, Err: errno}
	markInjectedPathError(pe)

	return pe
}

func (c *Chaos) Open(path string) (File, error) {
	return c.OpenFile(path, os.O_RDONLY, 0)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	mode := c.currentMode()

	if c.isBroken(mode, path) || c.should(mode, c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, pathError("open", path, syscall.EIO)
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	mode := c.currentMode()

	if c.isBroken(mode, path) || c.should(mode, c.config.StatFailRate) {
		c.statFails.Add(1)

		return nil, pathError("stat", path, syscall.EIO)
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	mode := c.currentMode()

	if c.isBroken(mode, path) || c.should(mode, c.config.StatFailRate) {
		c.statFails.Add(1)

		return false, pathError("stat", path, syscall.EIO)
	}

	return c.fs.Exists(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.fs.MkdirAll(path, perm)
}

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	mode := c.currentMode()

	if c.isBroken(mode, path) || c.should(mode, c.config.WriteFailRate) {
		c.writeFails.Add(1)

		return pathError("write", path, syscall.EIO)
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// chaosFile wraps a File and injects faults on Read/Write.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

func (cf *chaosFile) Read(p []byte) (int, error) {
	mode := cf.chaos.currentMode()

	if cf.chaos.isBroken(mode, cf.path) || cf.chaos.should(mode, cf.chaos.config.ReadFailRate) {
		cf.chaos.readFails.Add(1)

		return 0, pathError("read", cf.path, syscall.EIO)
	}

	// Limit the underlying read rather than shrinking the returned count,
	// otherwise the file offset would advance past bytes the caller never saw.
	if len(p) > 1 && cf.chaos.should(mode, cf.chaos.config.PartialReadRate) {
		cf.chaos.partialReads.Add(1)

		return cf.f.Read(p[:cf.chaos.randIntn(len(p)-1)+1])
	}

	return cf.f.Read(p)
}

func (cf *chaosFile) Write(p []byte) (int, error) {
	mode := cf.chaos.currentMode()

	if cf.chaos.isBroken(mode, cf.path) || cf.chaos.should(mode, cf.chaos.config.WriteFailRate) {
		cf.chaos.writeFails.Add(1)

		return 0, pathError("write", cf.path, syscall.EIO)
	}

	return cf.f.Write(p)
}

func (cf *chaosFile) Close() error {
	return cf.f.Close()
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	return cf.f.Seek(offset, whence)
}

func (cf *chaosFile) Fd() uintptr {
	return cf.f.Fd()
}

func (cf *chaosFile) Stat() (os.FileInfo, error) {
	return cf.f.Stat()
}

func (cf *chaosFile) Sync() error {
	return cf.f.Sync()
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
