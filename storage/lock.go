package storage

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LockFileName is the advisory lock file created inside an index directory.
const LockFileName = "LOCK"

// DirLock holds an exclusive advisory flock on an index directory, enforcing
// the single-process-per-index invariant. It is intentionally advisory:
// a crashed process releases it automatically when its file descriptor
// table is torn down, which is why an index directory never needs a stale
// lock repair step on recovery.
type DirLock struct {
	f *os.File
}

// AcquireLock takes an exclusive, non-blocking lock on dir/LOCK. It returns
// ErrAlreadyLocked if another process already holds it.
func AcquireLock(dir string) (*DirLock, error) {
	path := filepath.Join(dir, LockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyLocked
		}
		return nil, err
	}

	return &DirLock{f: f}, nil
}

// Release drops the lock and closes the underlying file descriptor.
func (l *DirLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	err := l.f.Close()
	l.f = nil
	return err
}
