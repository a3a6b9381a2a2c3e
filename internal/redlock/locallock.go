package redlock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// localDoctorLocker serializes per doctor within a single process. Used
// by tests and the simulator's offline mode; multi-instance deployments
// need the Redis locker.
type localDoctorLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewLocalDoctorLocker() Locker {
	return &localDoctorLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *localDoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}
