//go:build !unix

package kv

import "sync"

var localMu sync.Mutex

// acquireLock only serializes within the process on platforms without flock.
func acquireLock(path string) (func(), error) {
	localMu.Lock()
	return localMu.Unlock, nil
}
