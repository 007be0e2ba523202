/*
LICENSE
  Copyright (C) 2024-2026 the Australian Ocean Lab (AusOcean)

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

package notify

import (
	"context"
	"sync"
	"time"
)

// TimeStore is an interface for notification persistence
type TimeStore interface {
	Sendable(ctx context.Context, period time.Duration, key string) (bool, error) // Returns true if a message is sendable.
	Sent(ctx context.Context, key string) error                                   // Records the time a message was sent.
}

// memStore implements a TimeStore in memory. Send times are forgotten
// on restart, so at most one extra message per key follows a restart.
type memStore struct {
	mu   sync.Mutex
	sent map[string]time.Time
	now  func() time.Time
}

// NewMemStore returns an in-memory TimeStore.
func NewMemStore() TimeStore {
	return &memStore{sent: make(map[string]time.Time), now: time.Now}
}

// Sendable returns true either if (1) the specified period has elapsed
// since the last time a message for the given key was sent or (2) a
// message is being sent for the first time.
func (ts *memStore) Sendable(ctx context.Context, period time.Duration, key string) (bool, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.sent[key]
	if !ok {
		return true, nil // No record of sending this kind of message.
	}
	return ts.now().Sub(t) >= period, nil
}

// Sent records the time that a message with the given key was sent.
func (ts *memStore) Sent(ctx context.Context, key string) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.sent[key] = ts.now()
	return nil
}
