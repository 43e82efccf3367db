package transport

import (
	"context"
	"sync"
)

// MemoryAdapter is an in-process bus. Events sent for a kind are delivered to
// that kind's subscriber; events without a subscriber are dropped.
type MemoryAdapter struct {
	mu     sync.RWMutex
	subs   map[EventKind]chan Event
	buffer int
	done   chan struct{}
	once   sync.Once
}

func NewMemoryAdapter(buffer int) *MemoryAdapter {
	if buffer < 0 {
		buffer = 0
	}

	return &MemoryAdapter{
		subs:   make(map[EventKind]chan Event),
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

func (m *MemoryAdapter) Send(ctx context.Context, kind EventKind, payload any) error {
	ev, err := NewEvent(kind, payload)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	ch, ok := m.subs[kind]
	if !ok {
		return nil
	}

	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func (m *MemoryAdapter) Subscribe(_ context.Context, kind EventKind) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	if _, ok := m.subs[kind]; ok {
		return nil, ErrAlreadySubscribed
	}

	ch := make(chan Event, m.buffer)
	m.subs[kind] = ch

	return ch, nil
}

func (m *MemoryAdapter) Close() error {
	m.once.Do(func() {
		close(m.done)

		m.mu.Lock()
		defer m.mu.Unlock()

		for kind, ch := range m.subs {
			close(ch)
			delete(m.subs, kind)
		}
	})

	return nil
}
