package device

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SemaphoreName is the named cross-process lock all configuration phases
// acquire (§4.1, §6): "/gstreamer-aja-sem", created with read/write
// permission for the current user.
const SemaphoreName = "/gstreamer-aja-sem"

// GlobalSetupMutex is C2: a named, inter-process mutex guarding multi-
// channel shared state (cross-point routing, quad-frame enables,
// reference source, genlock). It is held only around configuration
// phases (§4.5.2, §4.6.1) and their corresponding teardown -- never
// across DMA transfers or vertical-interrupt waits.
//
// POSIX named semaphores aren't exposed by the Go standard library
// without cgo; a V4L2-style device layer talks to the kernel directly
// through golang.org/x/sys/unix, so this follows the same idiom one level
// down: an flock(2) advisory lock on a file
// named after the semaphore, which gives the same cross-process mutual
// exclusion semantics POSIX sem_open would, open to any process on the
// machine with permission to read/write the lock file.
type GlobalSetupMutex struct {
	path string
	fd   int

	// mu additionally serializes goroutines within this process; flock
	// alone only serializes at the process/file-descriptor level.
	mu sync.Mutex
}

// OpenGlobalSetupMutex opens (creating if necessary) the named semaphore
// file for name, e.g. SemaphoreName.
func OpenGlobalSetupMutex(name string) (*GlobalSetupMutex, error) {
	path := filepath.Join(os.TempDir(), filepath.Base(name)+".lock")
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening global setup mutex %q", path)
	}
	return &GlobalSetupMutex{path: path, fd: fd}, nil
}

// Lock blocks until the cross-process lock is held.
func (m *GlobalSetupMutex) Lock() error {
	m.mu.Lock()
	if err := unix.Flock(m.fd, unix.LOCK_EX); err != nil {
		m.mu.Unlock()
		return errors.Wrap(err, "flock LOCK_EX")
	}
	return nil
}

// Unlock releases the cross-process lock.
func (m *GlobalSetupMutex) Unlock() error {
	defer m.mu.Unlock()
	return errors.Wrap(unix.Flock(m.fd, unix.LOCK_UN), "flock LOCK_UN")
}

// TryLock attempts to acquire the lock without blocking.
func (m *GlobalSetupMutex) TryLock() (bool, error) {
	m.mu.Lock()
	err := unix.Flock(m.fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	m.mu.Unlock()
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, errors.Wrap(err, "flock LOCK_EX|LOCK_NB")
}

// Close releases the underlying file descriptor. It does not remove the
// lock file, since other processes may still be using it.
func (m *GlobalSetupMutex) Close() error {
	return unix.Close(m.fd)
}

// WithLock runs fn with the mutex held, matching the "held only around
// configuration phases" discipline: callers should never perform DMA
// transfers or vertical-interrupt waits inside fn.
func (m *GlobalSetupMutex) WithLock(fn func() error) error {
	if err := m.Lock(); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}
