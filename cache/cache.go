package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// UpdateFunc receives the current value (found is false when there is none)
// and returns the value to store. It may run more than once when the key is
// modified concurrently.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

type CanvasCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	GetQuotaState(ctx context.Context, key string) ([]byte, bool, error)
	UpdateQuotaState(ctx context.Context, key string, ttl time.Duration, update UpdateFunc) error

	GetCachedBalance(ctx context.Context, wallet string) (float64, bool, error)
	SetCachedBalance(ctx context.Context, wallet string, balance float64, ttl time.Duration) error
}

var ErrUpdateConflict = eris.New("too many concurrent updates")
