package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Lock is a held advisory file lock; Release must be called to free it.
type Lock struct {
	f *os.File
}

// AcquireLock takes an exclusive, non-blocking advisory lock on path,
// writing the caller's PID into the file. If the lock is already held by a
// process whose PID no longer exists (stale lock, per spec §5/§9), it is
// reclaimed automatically instead of failing.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, cortexerr.Transient("store: open lock "+path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		reopened, ok := reclaimIfStale(f, path)
		if !ok {
			f.Close()
			return nil, cortexerr.PreconditionFailed("store: lock held: "+path, nil)
		}
		f = reopened
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			return nil, cortexerr.PreconditionFailed("store: lock held after reclaim attempt: "+path, err)
		}
	}

	f.Truncate(0)
	f.Seek(0, 0)
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return &Lock{f: f}, nil
}

// Release unlocks and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	name := l.f.Name()
	l.f.Close()
	os.Remove(name)
}

// reclaimIfStale reads the PID recorded in the lock file and, if that
// process no longer exists, removes and recreates the file so a fresh flock
// attempt can succeed. Returns the reopened file handle on success.
func reclaimIfStale(f *os.File, path string) (*os.File, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return nil, false
	}
	if pidAlive(pid) {
		return nil, false
	}
	f.Close()
	os.Remove(path)
	reopened, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, false
	}
	return reopened, true
}

func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}
