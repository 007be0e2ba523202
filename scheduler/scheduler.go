/*
DESCRIPTION
  scheduler.go provides a cron based scheduler that publishes a video each
  time one of its entries fires.

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

// Package scheduler publishes videos at fixed wall clock times.
//
// A failed firing is logged, recorded and notified, and the entry stays
// armed. The next scheduled time is the only retry across firings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/kortschak/sun"
	cron "github.com/robfig/cron/v3"

	"github.com/ausocean/ytpublish/content"
	"github.com/ausocean/ytpublish/metrics"
	"github.com/ausocean/ytpublish/youtube"
)

// Defaults.
const (
	DefaultTimeout = 30 * time.Minute
	DefaultHistory = 100
)

var (
	errNoTimeSpec = errors.New("no time spec specified for entry")
	errNoLocation = errors.New("invalid solar cron: no coordinates")
	ErrNoEntry    = errors.New("no such schedule entry")
)

// Entry pairs a trigger spec with the strategy that builds each request.
type Entry struct {
	Name     string
	Spec     string
	Strategy content.Strategy
}

// Outcome records a single firing.
type Outcome struct {
	Entry    string        `json:"entry"`
	Time     time.Time     `json:"time"`
	Duration time.Duration `json:"duration"`
	VideoID  string        `json:"videoId,omitempty"`
	URL      string        `json:"url,omitempty"`
	Kind     youtube.Kind  `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the firing published a video.
func (o Outcome) OK() bool { return o.Error == "" }

// Status describes an entry and its next and previous firing times.
type Status struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
	Last *Outcome  `json:"last,omitempty"`
}

// Option is a functional option for New.
type Option func(*Scheduler) error

// WithLocation sets the time zone specs are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) error {
		if loc == nil {
			return errors.New("nil location")
		}
		s.loc = loc
		return nil
	}
}

// WithParser replaces the default sun aware spec parser.
func WithParser(p cron.ScheduleParser) Option {
	return func(s *Scheduler) error {
		s.parser = p
		return nil
	}
}

// WithCoordinates sets the latitude and longitude used by solar specs such
// as @sunrise and @sunset.
func WithCoordinates(lat, lon float64) Option {
	return func(s *Scheduler) error {
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return fmt.Errorf("invalid coordinates: %v, %v", lat, lon)
		}
		s.lat, s.lon = lat, lon
		return nil
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) error {
		s.log = l
		return nil
	}
}

// WithNotifier sets the function that reports failed firings.
func WithNotifier(notify func(msg string) error) Option {
	return func(s *Scheduler) error {
		s.notify = notify
		return nil
	}
}

// WithTimeout bounds a whole firing, including any retries.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout: %v", d)
		}
		s.timeout = d
		return nil
	}
}

// WithHistory sets how many outcomes are kept.
func WithHistory(n int) Option {
	return func(s *Scheduler) error {
		if n < 1 {
			return fmt.Errorf("invalid history size: %d", n)
		}
		s.history = n
		return nil
	}
}

// Scheduler fires publish jobs on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	pub      youtube.Uploader
	log      logging.Logger
	notify   func(msg string) error
	loc      *time.Location
	parser   cron.ScheduleParser
	lat, lon float64
	timeout  time.Duration
	history  int

	mu       sync.Mutex
	entries  map[string]*entry
	order    []string
	outcomes []Outcome
}

type entry struct {
	Entry
	id   cron.EntryID
	last *Outcome
}

// New returns a Scheduler that publishes with pub. Entries are added with
// Add and nothing fires until Start is called.
func New(pub youtube.Uploader, opts ...Option) (*Scheduler, error) {
	if pub == nil {
		return nil, errors.New("uploader is required")
	}
	s := &Scheduler{
		pub:     pub,
		loc:     time.UTC,
		parser:  sun.Parser{},
		lat:     math.NaN(),
		lon:     math.NaN(),
		timeout: DefaultTimeout,
		history: DefaultHistory,
		entries: make(map[string]*entry),
	}
	for i, opt := range opts {
		err := opt(s)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	if s.log == nil {
		s.log = logging.New(logging.Info, os.Stderr, true)
	}

	cl := cronLogger{s.log}
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s, nil
}

// Add installs an entry. Names must be unique.
func (s *Scheduler) Add(e Entry) error {
	if e.Name == "" {
		return errors.New("entry has no name")
	}
	if e.Strategy == nil {
		return fmt.Errorf("entry %s has no content strategy", e.Name)
	}
	spec, err := cronSpec(e.Spec, s.lat, s.lon)
	if err != nil {
		return fmt.Errorf("could not get cron spec for entry %s: %w", e.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.Name]; ok {
		return fmt.Errorf("duplicate entry name: %s", e.Name)
	}

	name := e.Name
	id, err := s.cron.AddFunc(spec, func() { s.fire(name) })
	if err != nil {
		return fmt.Errorf("failed to add cron spec %s to the cron scheduler: %w", spec, err)
	}
	s.entries[name] = &entry{Entry: e, id: id}
	s.order = append(s.order, name)
	s.log.Info("added schedule entry", "name", name, "spec", spec)
	return nil
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler. The returned context is done once running
// firings have finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Run fires the named entry immediately and waits for its outcome. A
// failed publish is reported in the Outcome, not as an error.
func (s *Scheduler) Run(ctx context.Context, name string) (Outcome, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoEntry, name)
	}
	return s.run(ctx, e), nil
}

// Entries returns the status of every entry in the order they were added.
func (s *Scheduler) Entries() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		ce := s.cron.Entry(e.id)
		var last *Outcome
		if e.last != nil {
			o := *e.last
			last = &o
		}
		st = append(st, Status{Name: name, Spec: e.Spec, Next: ce.Next, Prev: ce.Prev, Last: last})
	}
	return st
}

// Outcomes returns recent outcomes, oldest first.
func (s *Scheduler) Outcomes() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

// fire is the cron job for the named entry.
func (s *Scheduler) fire(name string) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Info("cron run: publishing", "entry", name)
	s.run(context.Background(), e)
}

// run builds a request from the entry's strategy, publishes it and records
// the outcome.
func (s *Scheduler) run(ctx context.Context, e *entry) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	o := Outcome{Entry: e.Name, Time: start}
	req, err := e.Strategy.Next(ctx)
	if err != nil {
		o.Error = fmt.Sprintf("could not build request: %v", err)
	} else {
		var res *youtube.Result
		res, err = s.pub.Publish(ctx, req)
		if err != nil {
			o.Kind = youtube.KindOf(err)
			o.Error = err.Error()
		} else {
			o.VideoID, o.URL = res.VideoID, res.URL
		}
	}
	o.Duration = time.Since(start)
	s.record(e, o)

	if !o.OK() {
		result := metrics.ResultError
		if o.Kind != "" {
			result = string(o.Kind)
		}
		metrics.ScheduleFirings.WithLabelValues(e.Name, result).Inc()
		s.logAndNotify("cron: error publishing for entry %s: %s", e.Name, o.Error)
		return o
	}
	metrics.ScheduleFirings.WithLabelValues(e.Name, metrics.ResultOK).Inc()
	s.log.Info("cron run: published", "entry", e.Name, "id", o.VideoID, "url", o.URL)
	return o
}

func (s *Scheduler) record(e *entry, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.last = &o
	s.outcomes = append(s.outcomes, o)
	if n := len(s.outcomes) - s.history; n > 0 {
		s.outcomes = append([]Outcome(nil), s.outcomes[n:]...)
	}
}

// logAndNotify will log and then call the notify func with the provided message
// (as a formattable string) and args. The notify function for example could
// send an email.
// Notification happens in the background so a slow notifier never holds
// up a firing.
func (s *Scheduler) logAndNotify(msg string, args ...interface{}) {
	m := fmt.Sprintf(msg, args...)
	s.log.Error(m)
	if s.notify == nil {
		return
	}
	go func() {
		err := s.notify(m)
		if err != nil {
			s.log.Warning("could not send notification", "error", err)
		}
	}()
}

// cronSpec returns spec as a cron spec line for the given geographic
// location. Solar specs implemented by github.com/kortschak/sun need the
// coordinates appended.
func cronSpec(spec string, lat, lon float64) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", errNoTimeSpec
	}

	if strings.HasPrefix(spec, "@sunrise") || strings.HasPrefix(spec, "@noon") || strings.HasPrefix(spec, "@sunset") {
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return "", errNoLocation
		}
		return fmt.Sprintf("%s %v %v", spec, lat, lon), nil
	}

	return spec, nil
}

// cronLogger adapts a logging.Logger to cron.Logger.
type cronLogger struct {
	l logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
