// internal/domain/locker.go
package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock is already held by another process.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired distributed lock.
type Lock interface {
	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Locker guards exclusive dispatch runs and task leases across processes.
type Locker interface {
	// Lock must not block. A held lock yields ErrLockNotAcquired.
	Lock(ctx context.Context, name string) (Lock, error)
}
