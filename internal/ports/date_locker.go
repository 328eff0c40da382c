package ports

import (
	"context"
	"errors"
)

var ErrDateLocked = errors.New("planning run already in progress for date")

// Unlock releases a lock obtained from DateLocker.
type Unlock func(ctx context.Context) error

// Serializes planning runs for the same service day across operators.
type DateLocker interface {
	// Lock returns ErrDateLocked when another run holds the day.
	Lock(ctx context.Context, day string) (Unlock, error)
}
