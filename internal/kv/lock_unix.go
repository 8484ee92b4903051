//go:build unix

package kv

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

var localMu sync.Mutex

// acquireLock takes the process-level mutex and an exclusive flock on path.
func acquireLock(path string) (func(), error) {
	localMu.Lock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		localMu.Unlock()
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		localMu.Unlock()
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		localMu.Unlock()
		return nil, err
	}

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		localMu.Unlock()
	}, nil
}
