package lock

import (
	"context"
	"errors"
	"field-service-router/internal/ports"
	"fmt"
	"sync"
)

// LocalDateLocker is the single-process fallback when no Redis is configured.
type LocalDateLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	next uint64
}

func NewLocalDateLocker() *LocalDateLocker {
	return &LocalDateLocker{held: make(map[string]uint64)}
}

func (l *LocalDateLocker) Lock(ctx context.Context, day string) (ports.Unlock, error) {
	if day == "" {
		return nil, errors.New("local locker: day must be non-empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[day]; ok {
		return nil, fmt.Errorf("date=%s: %w", day, ports.ErrDateLocked)
	}
	l.next++
	token := l.next
	l.held[day] = token

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[day] == token {
			delete(l.held, day)
		}
		return nil
	}, nil
}
