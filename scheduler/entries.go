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

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ausocean/ytpublish/content"
	"github.com/ausocean/ytpublish/youtube"
)

// FileEntry is one entry of a schedule file.
//
// An entry with a title always publishes the same request. Otherwise an
// entry with media or facts gets its own fact picker, and an entry with
// neither uses the default strategy.
type FileEntry struct {
	Name        string   `yaml:"name"`
	Spec        string   `yaml:"spec"`
	Media       string   `yaml:"media"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Privacy     string   `yaml:"privacy"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
	Facts       []string `yaml:"facts"`
}

type scheduleFile struct {
	Entries []FileEntry `yaml:"entries"`
}

// LoadEntries reads a YAML schedule file. media and privacy are used by
// entries that name none, and def is the strategy for entries with no
// content of their own.
func LoadEntries(path, media string, privacy youtube.Privacy, def content.Strategy) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read schedule file: %w", err)
	}
	var sf scheduleFile
	err = yaml.Unmarshal(b, &sf)
	if err != nil {
		return nil, fmt.Errorf("could not parse schedule file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(sf.Entries))
	for i, fe := range sf.Entries {
		if fe.Name == "" {
			fe.Name = fmt.Sprintf("entry-%d", i+1)
		}
		e, err := fe.entry(media, privacy, def)
		if err != nil {
			return nil, fmt.Errorf("schedule entry %s: %w", fe.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (fe FileEntry) entry(media string, privacy youtube.Privacy, def content.Strategy) (Entry, error) {
	p, err := youtube.ParsePrivacy(fe.Privacy)
	if err != nil {
		return Entry{}, err
	}
	if p != "" {
		privacy = p
	}
	if fe.Media != "" {
		media = fe.Media
	}

	e := Entry{Name: fe.Name, Spec: fe.Spec}
	switch {
	case fe.Title != "":
		e.Strategy = content.Fixed{Request: youtube.Request{
			MediaPath:   media,
			Title:       fe.Title,
			Description: fe.Description,
			Category:    fe.Category,
			Tags:        fe.Tags,
			Privacy:     privacy,
		}}

	case fe.Media != "" || len(fe.Facts) != 0:
		opts := []content.Option{content.WithPrivacy(privacy), content.WithTags(fe.Tags)}
		if fe.Category != "" {
			opts = append(opts, content.WithCategory(fe.Category))
		}
		if len(fe.Facts) != 0 {
			opts = append(opts, content.WithFacts(fe.Facts))
		}
		e.Strategy, err = content.NewFactPicker(media, opts...)
		if err != nil {
			return Entry{}, err
		}

	default:
		if def == nil {
			return Entry{}, errors.New("no content and no default strategy")
		}
		e.Strategy = def
	}
	return e, nil
}

// EntriesFromSpecs returns one entry per non-empty spec, all sharing
// strategy st. Entries are named publish-1, publish-2 and so on.
func EntriesFromSpecs(specs []string, st content.Strategy) []Entry {
	var entries []Entry
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		entries = append(entries, Entry{
			Name:     fmt.Sprintf("publish-%d", len(entries)+1),
			Spec:     spec,
			Strategy: st,
		})
	}
	return entries
}
