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

package gauth

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCompleteAuthorizationThenAccessToken(t *testing.T) {
	p := newFakeProvider(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	s := newTestSession(t, p, store)
	ctx := context.Background()

	assert.Equal(t, StateUnauthenticated, s.State())

	cred, err := s.CompleteAuthorization(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "T1", cred.AccessToken)
	assert.Equal(t, "R1", cred.RefreshToken)
	assert.Equal(t, StateAuthenticated, s.State())

	tok, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", tok)
	assert.EqualValues(t, 0, p.refreshes.Load(), "fresh credential should not be refreshed")

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", stored.AccessToken)
	assert.Equal(t, "R1", stored.RefreshToken)
}

func TestCompleteAuthorizationRejected(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p, nil)
	ctx := context.Background()

	s.BeginAuthorization()
	_, err := s.CompleteAuthorization(ctx, "stale-code")
	assert.ErrorIs(t, err, ErrExchange)
	var rerr *oauth2.RetrieveError
	assert.ErrorAs(t, err, &rerr)
	assert.EqualValues(t, 1, p.exchanges.Load(), "rejected code must not be retried")

	_, err = s.CompleteAuthorization(ctx, "")
	assert.ErrorIs(t, err, ErrExchange)
	assert.EqualValues(t, 1, p.exchanges.Load())

	_, err = s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAccessTokenRefreshesExpired(t *testing.T) {
	p := newFakeProvider(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	ctx := context.Background()

	expired := &Credential{AccessToken: "T1", RefreshToken: "R1", TokenType: "Bearer", Expiry: time.Now().Add(-10 * time.Second)}
	require.NoError(t, store.Save(ctx, expired))

	s := newTestSession(t, p, store)

	tok, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", tok)
	assert.EqualValues(t, 1, p.refreshes.Load())

	tok, err = s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", tok)
	assert.EqualValues(t, 1, p.refreshes.Load(), "second call should use the cached token")

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", stored.AccessToken)
	assert.Equal(t, "R1", stored.RefreshToken, "refresh token must be kept when the provider omits it")
	assert.True(t, stored.Expiry.After(time.Now().Add(50*time.Minute)))
}

func TestAccessTokenConcurrentRefresh(t *testing.T) {
	p := newFakeProvider(t)
	p.refreshDelay = 100 * time.Millisecond
	store := NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &Credential{AccessToken: "T1", RefreshToken: "R1", Expiry: time.Now().Add(-time.Minute)}))

	s := newTestSession(t, p, store)

	const callers = 16
	var (
		wg   sync.WaitGroup
		toks = make([]string, callers)
		errs = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			toks[i], errs[i] = s.AccessToken(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "T2", toks[i])
	}
	assert.EqualValues(t, 1, p.refreshes.Load(), "expected exactly one refresh call")
}

func TestAccessTokenUnauthenticated(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p, nil)

	_, err := s.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.EqualValues(t, 0, p.refreshes.Load())
}

func TestAccessTokenExpiredWithoutRefreshToken(t *testing.T) {
	p := newFakeProvider(t)
	store := NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &Credential{AccessToken: "T1", Expiry: time.Now().Add(-time.Hour)}))

	s := newTestSession(t, p, store)
	_, err := s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.EqualValues(t, 0, p.refreshes.Load())
}

func TestAccessTokenRefreshRejected(t *testing.T) {
	p := newFakeProvider(t)
	p.failRefresh = true
	s := newTestSession(t, p, nil, WithSeedRefreshToken("revoked"))

	_, err := s.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrRefresh)
	var rerr *oauth2.RetrieveError
	assert.ErrorAs(t, err, &rerr)
	assert.EqualValues(t, 1, p.refreshes.Load())
}

func TestSeedRefreshToken(t *testing.T) {
	p := newFakeProvider(t)
	p.refreshToken = "R2"
	store := NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	ctx := context.Background()

	s := newTestSession(t, p, store, WithSeedRefreshToken("R1"))
	assert.Equal(t, StateAuthenticated, s.State())

	seeded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Credential{RefreshToken: "R1"}, seeded)

	tok, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", tok)
	assert.Equal(t, "R2", s.Credential().RefreshToken, "rotated refresh token should be adopted")

	// A stored credential wins over the seed.
	s2 := newTestSession(t, p, store, WithSeedRefreshToken("R-ignored"))
	assert.Equal(t, "R2", s2.Credential().RefreshToken)
}

func TestRefreshPersistFailure(t *testing.T) {
	p := newFakeProvider(t)
	store := &failingStore{TokenStore: NewFileStore(filepath.Join(t.TempDir(), "youtube.token")), allow: 1}

	var notified []string
	notify := func(msg string) error {
		notified = append(notified, msg)
		return nil
	}
	s := newTestSession(t, p, store, WithSeedRefreshToken("R1"), WithNotifier(notify))

	tok, err := s.AccessToken(context.Background())
	require.NoError(t, err, "token should still be usable in memory")
	assert.Equal(t, "T2", tok)
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "lost on restart")
}

func TestCompleteAuthorizationPersistFailure(t *testing.T) {
	p := newFakeProvider(t)
	store := &failingStore{TokenStore: NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))}
	s := newTestSession(t, p, store)

	cred, err := s.CompleteAuthorization(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrPersist)
	require.NotNil(t, cred)
	assert.Equal(t, "T1", cred.AccessToken)
}

func TestBeginAuthorization(t *testing.T) {
	p := newFakeProvider(t)
	s := newTestSession(t, p, nil)

	authURL, state := s.BeginAuthorization("scope-a", "scope-b")
	assert.Equal(t, StateAuthorizing, s.State())

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "scope-a scope-b", q.Get("scope"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))

	// A second authorisation supersedes the first.
	_, state2 := s.BeginAuthorization()
	assert.NotEqual(t, state, state2)

	_, err = s.CompleteAuthorization(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, s.State())
}

func TestAccessTokenContextCancelled(t *testing.T) {
	p := newFakeProvider(t)
	p.refreshDelay = 200 * time.Millisecond
	s := newTestSession(t, p, nil, WithSeedRefreshToken("R1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.AccessToken(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got: %v", err)

	// The shared refresh still completes for later callers.
	tok, err := s.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T2", tok)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnauthenticated, "unauthenticated"},
		{StateAuthorizing, "authorizing"},
		{StateAuthenticated, "authenticated"},
		{State(7), "State(7)"},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.want {
			t.Errorf("unexpected state string: got:%s want:%s", got, test.want)
		}
	}
}
