/*
DESCRIPTION
  metrics.go provides the Prometheus counters exported by the publisher
  service on /metrics.

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

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the counters below.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	// Publishes counts publish attempts by result, which is either "ok" or
	// the failure kind.
	Publishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytpublish_publishes_total",
			Help: "Video publish attempts by result.",
		},
		[]string{"result"},
	)

	// TokenRefreshes counts access token refresh calls made to the provider.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytpublish_token_refreshes_total",
			Help: "OAuth2 access token refreshes by result.",
		},
		[]string{"result"},
	)

	// CodeExchanges counts authorisation code exchanges.
	CodeExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytpublish_code_exchanges_total",
			Help: "OAuth2 authorisation code exchanges by result.",
		},
		[]string{"result"},
	)

	// CredentialSaveFailures counts failed writes to the token store.
	CredentialSaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytpublish_credential_save_failures_total",
			Help: "Failed attempts to persist the OAuth2 credential.",
		},
	)

	// ScheduleFirings counts scheduled publish firings by entry and result.
	ScheduleFirings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytpublish_schedule_firings_total",
			Help: "Scheduled publish firings by entry and result.",
		},
		[]string{"entry", "result"},
	)
)
