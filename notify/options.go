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
	"errors"
	"fmt"
	"time"

	"github.com/ausocean/utils/logging"
)

// Secret keys read by WithSecrets.
const (
	PublicKeySecret  = "mailjetPublicKey"
	PrivateKeySecret = "mailjetPrivateKey"
)

// Secrets lists the secrets needed to mail notifications.
var Secrets = []string{PublicKeySecret, PrivateKeySecret}

// Option is a functional option supplied to Init.
type Option func(*Notifier) error

// WithSender sets the From address of notification mail.
func WithSender(sender string) Option {
	return func(n *Notifier) error {
		if sender == "" {
			return errors.New("empty sender")
		}
		n.sender = sender
		return nil
	}
}

// WithRecipient mails notifications to a single address.
func WithRecipient(recipient string) Option {
	return WithRecipients([]string{recipient})
}

// WithRecipients mails notifications to each of recipients. Empty
// addresses are ignored, but at least one address is required.
func WithRecipients(recipients []string) Option {
	return func(n *Notifier) error {
		var to []string
		for _, r := range recipients {
			if r != "" {
				to = append(to, r)
			}
		}
		if len(to) == 0 {
			return errors.New("no recipients")
		}
		n.recipients = to
		return nil
	}
}

// WithFilter only sends messages containing filter. Filters accumulate,
// so every one must match. An empty filter removes all filters.
func WithFilter(filter string) Option {
	return func(n *Notifier) error {
		if filter == "" {
			n.filters = nil
			return nil
		}
		n.filters = append(n.filters, filter)
		return nil
	}
}

// WithStore sets the TimeStore used to rate limit messages.
func WithStore(store TimeStore) Option {
	return func(n *Notifier) error {
		n.store = store
		return nil
	}
}

// WithPeriod sets the minimum time between messages of the same kind to
// the same recipient. It has no effect without a store.
func WithPeriod(period time.Duration) Option {
	return func(n *Notifier) error {
		if period < 0 {
			return fmt.Errorf("invalid period: %v", period)
		}
		n.period = period
		return nil
	}
}

// WithTimeout bounds each send, including the mail API call.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout: %v", d)
		}
		n.timeout = d
		return nil
	}
}

// WithSecrets supplies the mailjet API keys. Without them messages are
// logged but not mailed.
func WithSecrets(secrets map[string]string) Option {
	return func(n *Notifier) error {
		for _, k := range Secrets {
			if secrets[k] == "" {
				return fmt.Errorf("%s secret not found", k)
			}
		}
		n.publicKey = secrets[PublicKeySecret]
		n.privateKey = secrets[PrivateKeySecret]
		return nil
	}
}

// WithLogger sets the notifier's logger.
func WithLogger(l logging.Logger) Option {
	return func(n *Notifier) error {
		n.log = l
		return nil
	}
}
