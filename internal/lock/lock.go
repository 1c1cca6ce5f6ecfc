// Package lock keeps one daemon per profile by flock'ing a file in the
// profile directory.
package lock

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the lock file inside the profile directory.
const FileName = "LOCK"

// Owner is the record the lock holder writes into the lock file.
type Owner struct {
	PID     int       `toml:"pid"`
	Started time.Time `toml:"started"`
}

// HeldError reports that another live process owns the profile.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	if e.Owner.PID == 0 {
		return "profile is locked by another process (" + e.Path + ")"
	}
	return fmt.Sprintf("profile is locked by pid %d since %s (%s)",
		e.Owner.PID, e.Owner.Started.Format(time.RFC3339), e.Path)
}

type Lock struct {
	f    *os.File
	path string
}

// Acquire takes dir's lock without blocking. The kernel drops the flock
// when the process dies, so a crashed daemon never wedges the profile.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("lock: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		owner, _ := readOwner(f)
		_ = f.Close()
		return nil, &HeldError{Owner: owner, Path: path}
	}

	me := Owner{PID: os.Getpid(), Started: time.Now().UTC().Truncate(time.Second)}
	if err := rewrite(f, me); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock: record owner: %w", err)
	}
	return &Lock{f: f, path: path}, nil
}

func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the file. It is a no-op on nil or on a lock
// already released.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// The file goes first so a contender never reads our stale record.
	_ = os.Remove(l.path)
	err := l.f.Close()
	l.f = nil
	return err
}

// Holder returns the pid recorded in dir's lock file, or 0 when there is
// no readable record.
func Holder(dir string) int {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()
	owner, _ := readOwner(f)
	return owner.PID
}

func readOwner(r io.ReadSeeker) (Owner, error) {
	var o Owner
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return o, err
	}
	_, err := toml.NewDecoder(r).Decode(&o)
	return o, err
}

func rewrite(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(o)
}
