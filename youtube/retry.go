/*
DESCRIPTION
  retry.go provides Retrier, which retries publishes that failed for
  transient network reasons.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package youtube

import (
	"context"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/cenkalti/backoff/v4"
)

// DefaultBackoff is the initial wait between attempts.
const DefaultBackoff = 2 * time.Second

// Retrier wraps an Uploader with a bounded retry of transient failures.
// Requests without a MediaPath are attempted once, since a stream cannot
// be replayed.
type Retrier struct {
	Publisher Uploader
	Attempts  int           // Total attempts; values below 1 mean 1.
	Backoff   time.Duration // Initial wait, doubled after each attempt.
	Log       logging.Logger
}

func (r *Retrier) attempts() int {
	if r.Attempts < 1 {
		return 1
	}
	return r.Attempts
}

func (r *Retrier) initial() time.Duration {
	if r.Backoff <= 0 {
		return DefaultBackoff
	}
	return r.Backoff
}

// MaxWait returns the longest total time Publish spends waiting between
// attempts, excluding the attempts themselves.
func (r *Retrier) MaxWait() time.Duration {
	var total time.Duration
	wait := r.initial()
	for i := 1; i < r.attempts(); i++ {
		total += wait
		wait *= 2
	}
	return total
}

// Publish implements Uploader.
func (r *Retrier) Publish(ctx context.Context, req Request) (*Result, error) {
	attempts := r.attempts()
	if req.MediaPath == "" {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial()
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	var (
		res     *Result
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		res, err = r.Publisher.Publish(ctx, req)
		if err != nil && KindOf(err) != KindTransientNetwork {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if r.Log != nil {
			r.Log.Warning("transient publish failure, retrying", "attempt", attempt, "attempts", attempts, "wait", wait, "error", err)
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(op, bo, notify)
	if err != nil {
		return nil, err
	}
	return res, nil
}
