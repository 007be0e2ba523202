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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"golang.org/x/oauth2"
)

// fakeProvider is a token endpoint that counts the calls it receives.
type fakeProvider struct {
	srv *httptest.Server

	refreshes atomic.Int32
	exchanges atomic.Int32

	mu           sync.Mutex
	refreshDelay time.Duration
	refreshToken string // Returned by the next refresh, if set.
	accessToken  string // Returned by refreshes and exchanges.
	failRefresh  bool
}

func newFakeProvider(t *testing.T) *fakeProvider {
	p := &fakeProvider{accessToken: "T2"}
	p.srv = httptest.NewServer(http.HandlerFunc(p.token))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/token" {
		http.NotFound(w, r)
		return
	}
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	delay, access, refresh, fail := p.refreshDelay, p.accessToken, p.refreshToken, p.failRefresh
	p.mu.Unlock()

	resp := map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		p.exchanges.Add(1)
		if r.Form.Get("code") != "good-code" {
			writeTokenError(w, "invalid_grant")
			return
		}
		resp["access_token"] = "T1"
		resp["refresh_token"] = "R1"
	case "refresh_token":
		p.refreshes.Add(1)
		time.Sleep(delay)
		if fail || r.Form.Get("refresh_token") == "" {
			writeTokenError(w, "invalid_grant")
			return
		}
		if refresh != "" {
			resp["refresh_token"] = refresh
		}
	default:
		writeTokenError(w, "unsupported_grant_type")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeTokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	io.WriteString(w, `{"error":"`+code+`"}`)
}

func (p *fakeProvider) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:10000/auth/callback",
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.srv.URL + "/auth",
			TokenURL:  p.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// failingStore wraps a store and fails every Save after the first n.
type failingStore struct {
	TokenStore
	saves atomic.Int32
	allow int32
}

func (s *failingStore) Save(ctx context.Context, c *Credential) error {
	if s.saves.Add(1) > s.allow {
		return errors.New("disk full")
	}
	return s.TokenStore.Save(ctx, c)
}

func testLogger() logging.Logger {
	return logging.New(logging.Debug, io.Discard, false)
}

func newTestSession(t *testing.T, p *fakeProvider, store TokenStore, opts ...Option) *Session {
	t.Helper()
	if store == nil {
		store = NewFileStore(filepath.Join(t.TempDir(), "youtube.token"))
	}
	opts = append([]Option{WithLogger(testLogger()), WithTimeout(5 * time.Second)}, opts...)
	s, err := NewSession(context.Background(), p.config(), store, opts...)
	if err != nil {
		t.Fatalf("could not create session: %v", err)
	}
	return s
}
