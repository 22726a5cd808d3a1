package service

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/zlnvch/pixelverse/leaderboard"
)

var (
	ErrBadRequest         = eris.New("bad request")
	ErrQuotaDenied        = eris.New("placement quota exhausted")
	ErrUnknownLeaderboard = leaderboard.ErrUnknownBoard
	ErrUnauthorized       = eris.New("unauthorized")
	ErrModerationDisabled = eris.New("moderation queue not configured")
)

func badRequestf(format string, args ...any) error {
	return eris.Wrapf(ErrBadRequest, format, args...)
}

// QuotaDeniedError is returned by PlacePixel under server enforcement.
type QuotaDeniedError struct {
	CooldownLeft time.Duration
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("%s: cooldown ends in %s", ErrQuotaDenied.Error(), e.CooldownLeft.Round(time.Second))
}

func (e *QuotaDeniedError) Is(target error) bool {
	return target == ErrQuotaDenied
}

// CooldownSeconds rounds up so a client never retries too early.
func (e *QuotaDeniedError) CooldownSeconds() int {
	return int((e.CooldownLeft + time.Second - 1) / time.Second)
}
