/*
DESCRIPTION
  content.go provides content strategies, which build the publish request
  for a firing that has no caller supplied metadata.

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

// Package content provides strategies that produce publish requests.
package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/ausocean/ytpublish/youtube"
)

// Strategy produces the request for the next publish.
type Strategy interface {
	Next(ctx context.Context) (youtube.Request, error)
}

// StrategyFunc adapts a function to a Strategy.
type StrategyFunc func(ctx context.Context) (youtube.Request, error)

// Next implements Strategy.
func (f StrategyFunc) Next(ctx context.Context) (youtube.Request, error) { return f(ctx) }

// Fixed always returns the same request.
type Fixed struct {
	Request youtube.Request
}

// Next implements Strategy.
func (f Fixed) Next(ctx context.Context) (youtube.Request, error) {
	req := f.Request
	req.Tags = append([]string(nil), f.Request.Tags...)
	return req, nil
}

// DefaultFacts are used by a FactPicker with no facts of its own.
var DefaultFacts = []string{
	"The ocean covers about 71 percent of the Earth's surface.",
	"More than half of the oxygen we breathe is produced by marine plankton.",
	"The Great Barrier Reef is the largest living structure on Earth.",
	"Octopuses have three hearts and blue blood.",
	"Kelp can grow up to half a metre in a single day.",
	"Sound travels more than four times faster in seawater than in air.",
	"The deepest known point in the ocean, Challenger Deep, is nearly 11 kilometres down.",
	"Seagrass meadows store carbon up to 35 times faster than tropical rainforests.",
	"Sea turtles use the Earth's magnetic field to find their way home.",
	"Most of the ocean floor has never been mapped in high resolution.",
}

// Defaults for a FactPicker.
const (
	DefaultTitlePrefix = "Ocean Fact"
	DefaultCategory    = "28"
)

const maxTitleLen = 100

// Option is a functional option for NewFactPicker.
type Option func(*FactPicker) error

// WithFacts sets the facts to pick from.
func WithFacts(facts []string) Option {
	return func(p *FactPicker) error {
		facts = cleanFacts(facts)
		if len(facts) == 0 {
			return errors.New("no facts given")
		}
		p.facts = facts
		return nil
	}
}

// WithTitlePrefix sets the text placed before each fact in the title. The
// prefix may use at most half of the title.
func WithTitlePrefix(prefix string) Option {
	return func(p *FactPicker) error {
		if utf8.RuneCountInString(prefix) > maxTitleLen/2 {
			return fmt.Errorf("title prefix too long: %q", prefix)
		}
		p.prefix = prefix
		return nil
	}
}

// WithPrivacy sets the privacy of built requests.
func WithPrivacy(privacy youtube.Privacy) Option {
	return func(p *FactPicker) error {
		p.privacy = privacy
		return nil
	}
}

// WithCategory sets the category ID or name of built requests.
func WithCategory(cat string) Option {
	return func(p *FactPicker) error {
		p.category = cat
		return nil
	}
}

// WithTags sets the tags of built requests.
func WithTags(tags []string) Option {
	return func(p *FactPicker) error {
		p.tags = tags
		return nil
	}
}

// WithSeed seeds the shuffle so the order of facts is reproducible.
func WithSeed(seed int64) Option {
	return func(p *FactPicker) error {
		p.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// FactPicker titles each video with a fact, visiting every fact once in
// shuffled order before any repeats. It is safe for concurrent use.
type FactPicker struct {
	media    string
	facts    []string
	prefix   string
	privacy  youtube.Privacy
	category string
	tags     []string

	mu    sync.Mutex
	rng   *rand.Rand
	order []int
	pos   int
}

// NewFactPicker returns a FactPicker that publishes the media at path.
func NewFactPicker(media string, opts ...Option) (*FactPicker, error) {
	if media == "" {
		return nil, errors.New("media path is required")
	}
	p := &FactPicker{
		media:    media,
		facts:    DefaultFacts,
		prefix:   DefaultTitlePrefix,
		category: DefaultCategory,
	}
	for i, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p, nil
}

// Next implements Strategy.
func (p *FactPicker) Next(ctx context.Context) (youtube.Request, error) {
	fact := p.pick()
	return youtube.Request{
		MediaPath:   p.media,
		Title:       title(p.prefix, fact),
		Description: fact,
		Category:    p.category,
		Tags:        append([]string(nil), p.tags...),
		Privacy:     p.privacy,
	}, nil
}

func (p *FactPicker) pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= len(p.order) {
		p.order = p.rng.Perm(len(p.facts))
		p.pos = 0
	}
	f := p.facts[p.order[p.pos]]
	p.pos++
	return f
}

// title joins prefix and fact, shortening the fact at a word boundary to
// fit YouTube's title limit.
func title(prefix, fact string) string {
	if prefix != "" {
		prefix += ": "
	}
	room := maxTitleLen - utf8.RuneCountInString(prefix)
	if utf8.RuneCountInString(fact) <= room {
		return prefix + fact
	}

	const ellipsis = "..."
	r := []rune(fact)[:room-len(ellipsis)]
	s := string(r)
	if i := strings.LastIndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	return prefix + strings.TrimRight(s, " ,.;:") + ellipsis
}

// factsFile is the layout of a facts file.
type factsFile struct {
	Facts []string `yaml:"facts"`
}

// LoadFacts reads facts from a YAML file holding a "facts" list.
func LoadFacts(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read facts file: %w", err)
	}
	var ff factsFile
	err = yaml.Unmarshal(b, &ff)
	if err != nil {
		return nil, fmt.Errorf("could not parse facts file %s: %w", path, err)
	}
	facts := cleanFacts(ff.Facts)
	if len(facts) == 0 {
		return nil, fmt.Errorf("no facts in %s", path)
	}
	return facts, nil
}

func cleanFacts(in []string) []string {
	var out []string
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
