// internal/infra/etcd/etcd_locker.go
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasks-pizza/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// LockPrefix is the root of all distributed locks.
	LockPrefix = KeyRoot + "locks/"
	// LockSessionTTL bounds how long a crashed holder keeps a lock, in seconds.
	LockSessionTTL = 10
	// DefaultLockTimeout bounds a single TryLock round trip.
	DefaultLockTimeout = 2 * time.Second
)

// etcdLock implements domain.Lock.
type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

// Unlock releases the mutex and closes its session so the lease goes away.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		if l.session != nil {
			_ = l.session.Close()
		}
	}()

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.name, err)
	}
	return nil
}

// etcdLocker implements domain.Locker.
type etcdLocker struct {
	client  *clientv3.Client
	timeout time.Duration
}

// NewEtcdLocker creates a locker whose locks live in their own etcd session.
// timeout bounds each attempt; zero means DefaultLockTimeout.
func NewEtcdLocker(client *clientv3.Client, timeout time.Duration) domain.Locker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &etcdLocker{client: client, timeout: timeout}
}

// Lock tries once to acquire the lock called name.
func (l *etcdLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	// One session per lock: closing it drops the lease and the lock with it.
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(LockSessionTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w", name, err)
	}

	mutex := concurrency.NewMutex(session, LockPrefix+name)

	tryCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := mutex.TryLock(tryCtx); err != nil {
		_ = session.Close()
		return nil, tryLockError(name, err)
	}

	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
	}, nil
}

// tryLockError maps a TryLock failure. Only a lock held by another session is
// ErrLockNotAcquired; a timeout is a backend failure.
func tryLockError(name string, err error) error {
	if errors.Is(err, concurrency.ErrLocked) {
		return domain.ErrLockNotAcquired
	}
	return fmt.Errorf("failed to try acquiring etcd lock %s: %w", name, err)
}
