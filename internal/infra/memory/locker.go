package memory

import (
	"context"
	"sync"

	"tasks-pizza/internal/domain"
)

var _ domain.Locker = (*Locker)(nil)

// Locker hands out process-local locks.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, domain.ErrLockNotAcquired
	}
	l.held[name] = struct{}{}
	return &lock{locker: l, name: name}, nil
}

type lock struct {
	locker *Locker
	name   string
	once   sync.Once
}

func (k *lock) Unlock(ctx context.Context) error {
	k.once.Do(func() {
		k.locker.mu.Lock()
		delete(k.locker.held, k.name)
		k.locker.mu.Unlock()
	})
	return nil
}
