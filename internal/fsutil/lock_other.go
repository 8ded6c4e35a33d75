//go:build !unix

package fsutil

import (
	"context"
	"sync"
)

// Without flock(2) the lock only serializes writers inside this process.
var (
	processLocksMu sync.Mutex
	processLocks   = make(map[string]chan struct{})
)

// Lock is an exclusive lock keyed by path.
type Lock struct {
	ch chan struct{}
}

// AcquireLock takes the lock for path, waiting until ctx is done.
func AcquireLock(ctx context.Context, path string) (*Lock, error) {
	processLocksMu.Lock()
	ch, ok := processLocks[path]
	if !ok {
		ch = make(chan struct{}, 1)
		processLocks[path] = ch
	}
	processLocksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return &Lock{ch: ch}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.ch == nil {
		return nil
	}
	<-l.ch
	l.ch = nil
	return nil
}
