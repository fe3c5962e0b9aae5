// Package lock implements the advisory filesystem lock held for the
// duration of any mutating mport operation (spec §5): one process at a time
// writes to the live package database.
package lock

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Lock holds an advisory, exclusive flock(2) on a file. The zero value is
// not usable; construct with Acquire.
type Lock struct {
	path string
	f    *os.File

	mu        sync.Mutex
	released  bool
	sigCh     chan os.Signal
	sigDoneCh chan struct{}
}

// Acquire opens (creating if absent) the file at path and takes an
// exclusive, non-blocking flock. It returns an error immediately if another
// process already holds the lock, rather than waiting, matching the
// "fail fast, tell the operator" behavior spec §5 implies for a CLI tool.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %q: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("lock: %q is held by another process", path)
		}
		return nil, fmt.Errorf("lock: flock %q: %w", path, err)
	}

	l := &Lock{path: path, f: f}
	l.installSignalHandler()
	return l, nil
}

// installSignalHandler arranges for SIGINT/SIGTERM to release the lock
// before the process's default signal disposition runs, so an interrupted
// mutating command never leaves a stale lock behind (spec §5).
func (l *Lock) installSignalHandler() {
	l.sigCh = make(chan os.Signal, 1)
	l.sigDoneCh = make(chan struct{})
	signal.Notify(l.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig, ok := <-l.sigCh:
			if !ok {
				return
			}
			l.Release()
			signal.Reset(syscall.SIGINT, syscall.SIGTERM)
			p, err := os.FindProcess(os.Getpid())
			if err == nil {
				p.Signal(sig)
			}
		case <-l.sigDoneCh:
			return
		}
	}()
}

// Release drops the lock and closes the underlying file descriptor. Safe to
// call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	if l.sigDoneCh != nil {
		close(l.sigDoneCh)
	}
	signal.Stop(l.sigCh)
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	l.f.Close()
}

// Path returns the path the lock was acquired against.
func (l *Lock) Path() string { return l.path }
