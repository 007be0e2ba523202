/*
DESCRIPTION
  session.go provides Session, which owns the OAuth2 credential used to
  act on a YouTube account. It issues consent URLs, exchanges authorisation
  codes, and refreshes expired access tokens, persisting the credential
  after every change.

LICENSE
  Copyright (C) 2025-2026 the Australian Ocean Lab (AusOcean)

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

// Package gauth manages the OAuth2 credential lifecycle for Google APIs.
package gauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/ausocean/ytpublish/metrics"
)

// Exported errors.
var (
	// ErrUnauthenticated means no usable credential is held. The operator
	// must complete the authorisation handshake again.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrExchange means the provider rejected an authorisation code.
	ErrExchange = errors.New("authorisation code exchange failed")

	// ErrRefresh means an access token refresh failed.
	ErrRefresh = errors.New("access token refresh failed")

	// ErrPersist means the credential could not be written to the store.
	ErrPersist = errors.New("could not persist credential")
)

// DefaultTimeout bounds each call to the token endpoint.
const DefaultTimeout = 30 * time.Second

const refreshKey = "refresh"

// State is the authorisation state of a Session.
type State int

// Session states.
const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option is a functional option for NewSession.
type Option func(*Session) error

// WithLogger sets the logger used by the session.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) error {
		s.log = l
		return nil
	}
}

// WithTimeout bounds each exchange and refresh call.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout: %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) error {
		s.client = c
		return nil
	}
}

// WithSeedRefreshToken supplies a long-lived refresh token which is used
// when the store holds no credential yet.
func WithSeedRefreshToken(rt string) Option {
	return func(s *Session) error {
		s.seed = rt
		return nil
	}
}

// WithNotifier sets a function called with a message whenever a refreshed
// credential could not be persisted.
func WithNotifier(notify func(msg string) error) Option {
	return func(s *Session) error {
		s.notify = notify
		return nil
	}
}

// Session holds the authoritative in-memory credential and is the only
// writer to its TokenStore. It is safe for concurrent use.
type Session struct {
	cfg     *oauth2.Config
	store   TokenStore
	log     logging.Logger
	timeout time.Duration
	client  *http.Client
	seed    string
	notify  func(msg string) error

	flight singleflight.Group
	saveMu sync.Mutex // Serialises store writes.

	mu      sync.Mutex
	cred    *Credential
	pending string // State value of the outstanding consent URL.
}

// NewSession returns a Session for the given oauth2 configuration, loading
// any stored credential.
func NewSession(ctx context.Context, cfg *oauth2.Config, store TokenStore, opts ...Option) (*Session, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("oauth2 config and token store are required")
	}
	s := &Session{cfg: cfg, store: store, timeout: DefaultTimeout}
	for i, opt := range opts {
		err := opt(s)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	if s.log == nil {
		s.log = logging.New(logging.Info, os.Stderr, true)
	}

	cred, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not load credential: %w", err)
	}
	switch {
	case cred != nil:
		s.log.Info("loaded stored credential", "expiry", cred.Expiry, "refreshable", cred.RefreshToken != "")
	case s.seed != "":
		s.log.Info("no stored credential, seeding from configured refresh token")
		cred = &Credential{RefreshToken: s.seed}
		err = store.Save(ctx, cred)
		if err != nil {
			return nil, err
		}
	default:
		s.log.Warning("no stored credential, authorisation required")
	}
	s.cred = cred
	return s, nil
}

// State returns the current authorisation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.pending != "":
		return StateAuthorizing
	case s.cred != nil && (s.cred.AccessToken != "" || s.cred.RefreshToken != ""):
		return StateAuthenticated
	default:
		return StateUnauthenticated
	}
}

// Credential returns a copy of the held credential, or nil.
func (s *Session) Credential() *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil
	}
	c := *s.cred
	return &c
}

// BeginAuthorization returns a consent URL requesting offline access for
// the given scopes, or the configured scopes if none are given, along with
// the state value embedded in it. A new call supersedes any pending one.
func (s *Session) BeginAuthorization(scopes ...string) (authURL, state string) {
	cfg := *s.cfg
	if len(scopes) != 0 {
		cfg.Scopes = scopes
	}
	state = uuid.NewString()
	authURL = cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	s.mu.Lock()
	s.pending = state
	s.mu.Unlock()
	return authURL, state
}

// CompleteAuthorization exchanges a one-time authorisation code for a
// credential and persists it. Failed exchanges are not retried; callers
// must begin a new authorisation. If only persisting fails, the new
// credential is held and returned along with an ErrPersist error.
func (s *Session) CompleteAuthorization(ctx context.Context, code string) (*Credential, error) {
	if code == "" {
		metrics.CodeExchanges.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: no authorisation code", ErrExchange)
	}

	xctx, cancel := context.WithTimeout(s.providerContext(ctx), s.timeout)
	defer cancel()
	tok, err := s.cfg.Exchange(xctx, code)
	if err != nil {
		metrics.CodeExchanges.WithLabelValues(metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	metrics.CodeExchanges.WithLabelValues(metrics.ResultOK).Inc()

	s.mu.Lock()
	cred := s.cred.merge(tok)
	s.cred = cred
	s.pending = ""
	s.mu.Unlock()
	s.log.Info("authorisation complete", "expiry", cred.Expiry, "refreshable", cred.RefreshToken != "")

	c := *cred
	err = s.persist(ctx)
	if err != nil {
		return &c, err
	}
	return &c, nil
}

// AccessToken returns a valid access token, refreshing it first if it has
// expired. Concurrent callers share a single refresh. ErrUnauthenticated
// is returned when there is no credential to refresh with.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	cred := s.cred
	switch {
	case cred.Valid(time.Now()):
		tok := cred.AccessToken
		s.mu.Unlock()
		return tok, nil
	case cred == nil || (cred.AccessToken == "" && cred.RefreshToken == ""):
		s.mu.Unlock()
		return "", ErrUnauthenticated
	case cred.RefreshToken == "":
		s.mu.Unlock()
		return "", fmt.Errorf("%w: access token expired and no refresh token held", ErrUnauthenticated)
	}
	s.mu.Unlock()

	// The flight is not bound to ctx so one caller giving up does not fail
	// the others.
	ch := s.flight.DoChan(refreshKey, func() (interface{}, error) {
		return s.refresh()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// refresh performs a single refresh call unless another flight has already
// produced a valid token.
func (s *Session) refresh() (string, error) {
	s.mu.Lock()
	cred := s.cred
	if cred.Valid(time.Now()) {
		tok := cred.AccessToken
		s.mu.Unlock()
		return tok, nil
	}
	if cred == nil || cred.RefreshToken == "" {
		s.mu.Unlock()
		return "", ErrUnauthenticated
	}
	rt := cred.RefreshToken
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.providerContext(context.Background()), s.timeout)
	defer cancel()

	s.log.Debug("refreshing access token")
	tok, err := s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultError).Inc()
		s.log.Error("could not refresh access token", "error", err)
		return "", fmt.Errorf("%w: %w", ErrRefresh, err)
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultOK).Inc()

	s.mu.Lock()
	next := s.cred.merge(tok)
	s.cred = next
	s.mu.Unlock()
	s.log.Info("refreshed access token", "expiry", next.Expiry)

	// The new token is still usable for the life of this process, but the
	// operator must know it will not survive a restart.
	sctx, scancel := context.WithTimeout(context.Background(), s.timeout)
	defer scancel()
	err = s.persist(sctx)
	if err != nil {
		msg := fmt.Sprintf("refreshed credential is held in memory only and will be lost on restart: %v", err)
		s.log.Error(msg)
		if s.notify != nil {
			nerr := s.notify(msg)
			if nerr != nil {
				s.log.Warning("could not send notification", "error", nerr)
			}
		}
	}
	return next.AccessToken, nil
}

// persist writes the current credential to the store.
func (s *Session) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.cred == nil {
		s.mu.Unlock()
		return nil
	}
	c := *s.cred
	s.mu.Unlock()

	err := s.store.Save(ctx, &c)
	if err != nil {
		metrics.CredentialSaveFailures.Inc()
		if !errors.Is(err, ErrPersist) {
			err = fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return err
	}
	return nil
}

// providerContext attaches the configured HTTP client for oauth2 calls.
func (s *Session) providerContext(ctx context.Context) context.Context {
	if s.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}
