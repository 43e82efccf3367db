package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter relays events over Redis pub/sub, one channel per event kind.
// Reconnects and resubscription are handled by the go-redis PubSub.
type RedisAdapter struct {
	client *redis.Client
	prefix string
	buffer int

	mu     sync.Mutex
	subs   map[EventKind]*redis.PubSub
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewRedisAdapter(client *redis.Client, prefix string, buffer int) *RedisAdapter {
	return &RedisAdapter{
		client: client,
		prefix: prefix,
		buffer: buffer,
		subs:   make(map[EventKind]*redis.PubSub),
		done:   make(chan struct{}),
	}
}

func (r *RedisAdapter) Channel(kind EventKind) string {
	return r.prefix + ":" + string(kind)
}

func (r *RedisAdapter) Send(ctx context.Context, kind EventKind, payload any) error {
	ev, err := NewEvent(kind, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	if err := r.client.Publish(ctx, r.Channel(kind), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	return nil
}

func (r *RedisAdapter) Subscribe(ctx context.Context, kind EventKind) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	if _, ok := r.subs[kind]; ok {
		return nil, ErrAlreadySubscribed
	}

	ps := r.client.Subscribe(ctx, r.Channel(kind))

	// wait for the subscription confirmation so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", kind, err)
	}

	r.subs[kind] = ps

	out := make(chan Event, r.buffer)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)

		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("Dropping malformed transport event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()))
				continue
			}

			if ev.Kind == "" {
				ev.Kind = kind
			}

			select {
			case out <- ev:
			case <-r.done:
				return
			}
		}
	}()

	return out, nil
}

func (r *RedisAdapter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)

	var firstErr error
	for kind, ps := range r.subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s subscription: %w", kind, err)
		}
		delete(r.subs, kind)
	}
	r.mu.Unlock()

	r.wg.Wait()

	return firstErr
}
