package syncer

import (
	"context"
	"time"

	"satsync/internal/retry"
)

// Clock supplies the time and the context-aware sleeps the loop waits with.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	return retry.Sleep(ctx, d)
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}
