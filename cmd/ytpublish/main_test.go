/*
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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ausocean/ytpublish/config"
	"github.com/ausocean/ytpublish/youtube"
)

func TestFiringTimeout(t *testing.T) {
	tests := []struct {
		attempts int
		timeout  time.Duration
		want     time.Duration
	}{
		{attempts: 1, timeout: time.Minute, want: time.Minute},
		{attempts: 0, timeout: time.Minute, want: time.Minute},
		{attempts: 3, timeout: time.Minute, want: 3*time.Minute + 3*youtube.DefaultBackoff},
	}
	for _, test := range tests {
		cfg := &config.Config{PublishAttempts: test.attempts, PublishTimeout: test.timeout}
		r := &youtube.Retrier{Attempts: test.attempts}
		got := firingTimeout(cfg, r)
		assert.Equal(t, test.want, got, "attempts %d", test.attempts)
		assert.GreaterOrEqual(t, got, time.Duration(test.attempts)*test.timeout+r.MaxWait())
	}
}
