/*
DESCRIPTION
  failure.go classifies errors from a publish attempt into the small set of
  failure kinds that callers act upon.

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
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Kind is the classification of a failed publish.
type Kind string

// Failure kinds.
const (
	// KindUnauthenticated means the credential is missing or was rejected.
	// The operator must authorise again; retrying cannot help.
	KindUnauthenticated Kind = "unauthenticated"

	// KindQuotaExceeded means the account hit a rate or quota limit. Retry
	// no sooner than the next scheduled window.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindInvalidMedia means the payload or its metadata was missing,
	// unreadable or rejected. The same request must not be retried.
	KindInvalidMedia Kind = "invalid_media"

	// KindTransientNetwork covers connection errors, timeouts and 5xx
	// responses. A bounded retry with backoff is safe.
	KindTransientNetwork Kind = "transient_network"

	// KindUnknownRemote is any other provider error.
	KindUnknownRemote Kind = "unknown_remote"
)

// Reasons given with a 403 response that indicate a quota problem rather
// than a permissions problem.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
	"uploadLimitExceeded":   true,
}

// Failure is a classified publish error.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the same request may be attempted again.
func (f *Failure) Retryable() bool { return f.Kind == KindTransientNetwork }

func newFailure(k Kind, msg string, err error) *Failure {
	return &Failure{Kind: k, Message: msg, Err: err}
}

// KindOf returns the kind of a Failure found in err's chain, or classifies
// err if there is none. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Classify(err)
}

// Classify maps a provider or transport error to a Kind.
func Classify(err error) Kind {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return classifyStatus(gerr.Code, gerr)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		if rerr.Response.StatusCode >= http.StatusInternalServerError {
			return KindTransientNetwork
		}
		return KindUnauthenticated
	}

	var nerr net.Error
	var uerr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransientNetwork
	case errors.As(err, &nerr), errors.As(err, &uerr):
		return KindTransientNetwork
	}
	return KindUnknownRemote
}

func classifyStatus(code int, gerr *googleapi.Error) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthenticated
	case code == http.StatusTooManyRequests:
		return KindQuotaExceeded
	case code == http.StatusForbidden:
		for _, e := range gerr.Errors {
			if quotaReasons[e.Reason] {
				return KindQuotaExceeded
			}
		}
		return KindUnauthenticated
	case code == http.StatusBadRequest,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnsupportedMediaType:
		return KindInvalidMedia
	case code >= http.StatusInternalServerError:
		return KindTransientNetwork
	default:
		return KindUnknownRemote
	}
}

// classifyToken maps a token provider error. Anything that is not plainly
// a transport problem means the credential is unusable.
func classifyToken(err error) Kind {
	if errors.Is(err, context.Canceled) || Classify(err) == KindTransientNetwork {
		return KindTransientNetwork
	}
	return KindUnauthenticated
}
