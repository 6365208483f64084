package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker serializes work per key inside one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]chan struct{})}
}

// Lock waits for key to be free. ttl is ignored: an in-process holder
// always releases through unlock.
func (m *MemoryLocker) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	for {
		m.mu.Lock()
		wait, busy := m.held[key]
		if !busy {
			release := make(chan struct{})
			m.held[key] = release
			m.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.held, key)
					m.mu.Unlock()
					close(release)
				})
			}, nil
		}
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
