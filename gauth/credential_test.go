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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentialText(t *testing.T) {
	c := &Credential{AccessToken: "T1", RefreshToken: "R1", TokenType: "Bearer", Expiry: time.Unix(1700000000, 0)}
	b, err := c.MarshalText()
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, `access_token="T1"`)
	assert.Contains(t, s, `refresh_token="R1"`)
	assert.Contains(t, s, `expires_at=1700000000`)

	var got Credential
	require.NoError(t, got.UnmarshalText(b))
	assert.Equal(t, *c, got)
}

func TestCredentialTextNoExpiry(t *testing.T) {
	c := &Credential{RefreshToken: "R1"}
	b, err := c.MarshalText()
	require.NoError(t, err)
	assert.Contains(t, string(b), "expires_at=0")

	var got Credential
	require.NoError(t, got.UnmarshalText(b))
	assert.True(t, got.Expiry.IsZero())
}

func TestCredentialUnmarshalEmpty(t *testing.T) {
	var c Credential
	assert.ErrorIs(t, c.UnmarshalText([]byte("token_type=Bearer\n")), errEmptyRecord)
}

func TestCredentialValid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		cred *Credential
		want bool
	}{
		{cred: nil, want: false},
		{cred: &Credential{RefreshToken: "R1"}, want: false},
		{cred: &Credential{AccessToken: "T1"}, want: true},
		{cred: &Credential{AccessToken: "T1", Expiry: now.Add(time.Hour)}, want: true},
		{cred: &Credential{AccessToken: "T1", Expiry: now.Add(5 * time.Second)}, want: false},
		{cred: &Credential{AccessToken: "T1", Expiry: now.Add(-10 * time.Second)}, want: false},
	}
	for i, test := range tests {
		if got := test.cred.Valid(now); got != test.want {
			t.Errorf("test %d: unexpected validity: got:%v want:%v", i, got, test.want)
		}
	}
}

func TestCredentialMergeKeepsRefreshToken(t *testing.T) {
	c := &Credential{AccessToken: "T1", RefreshToken: "R1"}
	exp := time.Now().Add(time.Hour)

	next := c.merge(&oauth2.Token{AccessToken: "T2", TokenType: "Bearer", Expiry: exp})
	assert.Equal(t, "T2", next.AccessToken)
	assert.Equal(t, "R1", next.RefreshToken)
	assert.Equal(t, exp, next.Expiry)
	assert.Equal(t, "T1", c.AccessToken, "merge must not mutate the receiver")

	next = next.merge(&oauth2.Token{AccessToken: "T3", RefreshToken: "R2"})
	assert.Equal(t, "R2", next.RefreshToken)

	var empty *Credential
	next = empty.merge(&oauth2.Token{AccessToken: "T1", RefreshToken: "R1"})
	assert.Equal(t, "R1", next.RefreshToken)
}
