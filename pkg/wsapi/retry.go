// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls the backoff of retryable calls. MaxRetries is
// the number of retries after the first attempt, so a call makes at
// most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the behavior battle-tested against the
// hosted API: 15 attempts with delays of 2s, 4s, 8s, ... plus jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 14, BaseDelay: 2 * time.Second}
}

// Delay returns the backoff after the attempt-th try failed (zero
// based): BaseDelay * 2^attempt plus up to one second of jitter to
// spread out competing workers.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay << uint(attempt)
	return d + time.Duration(rand.Float64()*float64(time.Second))
}

// sleepContext waits for d or until ctx is done, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
