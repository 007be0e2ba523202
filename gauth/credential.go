/*
DESCRIPTION
  credential.go defines the OAuth2 credential held by a Session and its
  plain key/value storage record.

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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

// Record keys.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenType    = "token_type"
	keyExpiresAt    = "expires_at"
)

// expiryDelta is how early an access token is considered expired, matching
// the oauth2 package.
const expiryDelta = 10 * time.Second

var errEmptyRecord = errors.New("credential record holds no tokens")

// Credential is an OAuth2 token pair and the access token expiry.
// A zero Expiry means the expiry is unknown and the access token is
// treated as valid for as long as it is present.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Valid reports whether the access token can be used at time now.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Add(expiryDelta).Before(c.Expiry)
}

// merge returns a copy of c updated with tok. The refresh token is only
// replaced when tok carries a new one.
func (c *Credential) merge(tok *oauth2.Token) *Credential {
	next := &Credential{}
	if c != nil {
		*next = *c
	}
	next.AccessToken = tok.AccessToken
	next.TokenType = tok.TokenType
	next.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	return next
}

// MarshalText encodes the credential as sorted key=value lines.
func (c *Credential) MarshalText() ([]byte, error) {
	var exp int64
	if !c.Expiry.IsZero() {
		exp = c.Expiry.Unix()
	}
	s, err := godotenv.Marshal(map[string]string{
		keyAccessToken:  c.AccessToken,
		keyRefreshToken: c.RefreshToken,
		keyTokenType:    c.TokenType,
		keyExpiresAt:    strconv.FormatInt(exp, 10),
	})
	if err != nil {
		return nil, err
	}
	return []byte(s + "\n"), nil
}

// UnmarshalText decodes a record written by MarshalText.
func (c *Credential) UnmarshalText(b []byte) error {
	m, err := godotenv.Unmarshal(string(b))
	if err != nil {
		return fmt.Errorf("could not parse credential record: %w", err)
	}
	if m[keyAccessToken] == "" && m[keyRefreshToken] == "" {
		return errEmptyRecord
	}

	var exp time.Time
	if v := m[keyExpiresAt]; v != "" && v != "0" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", keyExpiresAt, v, err)
		}
		exp = time.Unix(secs, 0)
	}

	*c = Credential{
		AccessToken:  m[keyAccessToken],
		RefreshToken: m[keyRefreshToken],
		TokenType:    m[keyTokenType],
		Expiry:       exp,
	}
	return nil
}
