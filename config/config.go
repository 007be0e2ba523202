/*
DESCRIPTION
  config.go loads and validates the service configuration from the
  process environment and an optional .env file.

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

// Package config provides the ytpublish configuration.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort             = 10000
	DefaultTokenStore       = "youtube.token"
	DefaultUploadDir        = "uploads"
	DefaultPlaceholderMedia = "test.mp4"
	DefaultPrivacy          = "public"
	DefaultLocation         = "UTC"
	DefaultPublishTimeout   = 10 * time.Minute
	DefaultTokenTimeout     = 30 * time.Second
	DefaultPublishAttempts  = 3
	DefaultLogLevel         = "info"
	DefaultOpsEmail         = "ops@ausocean.org"
	DefaultOpsPeriod        = 60 * time.Minute
)

// Config holds the service configuration. The env tag names the
// environment variable for each field.
type Config struct {
	ClientID         string        `env:"YOUTUBE_CLIENT_ID" validate:"required"`
	ClientSecret     string        `env:"YOUTUBE_CLIENT_SECRET" validate:"required"`
	RedirectURI      string        `env:"YOUTUBE_REDIRECT_URI" validate:"required,url"`
	RefreshToken     string        `env:"YOUTUBE_REFRESH_TOKEN"`
	TokenStore       string        `env:"YOUTUBE_TOKEN" validate:"required"`
	Port             int           `env:"PORT" validate:"min=1,max=65535"`
	UploadDir        string        `env:"UPLOAD_DIR" validate:"required"`
	PlaceholderMedia string        `env:"PLACEHOLDER_MEDIA" validate:"required"`
	DefaultPrivacy   string        `env:"DEFAULT_PRIVACY" validate:"oneof=public unlisted private"`
	PublishCrons     []string      `env:"PUBLISH_CRONS"`
	ScheduleFile     string        `env:"SCHEDULE_FILE"`
	FactsFile        string        `env:"FACTS_FILE"`
	Location         string        `env:"SCHEDULE_LOCATION" validate:"required"`
	Latitude         string        `env:"SCHEDULE_LATITUDE" validate:"omitempty,latitude"`
	Longitude        string        `env:"SCHEDULE_LONGITUDE" validate:"omitempty,longitude"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" validate:"gt=0"`
	TokenTimeout     time.Duration `env:"TOKEN_TIMEOUT" validate:"gt=0"`
	PublishAttempts  int           `env:"PUBLISH_ATTEMPTS" validate:"min=1,max=10"`
	LogLevel         string        `env:"LOG_LEVEL" validate:"oneof=debug info warning error fatal"`
	LogPath          string        `env:"LOG_PATH"`
	StateKey         string        `env:"STATE_KEY" validate:"omitempty,hexadecimal"`
	SecretsURI       string        `env:"YTPUBLISH_SECRETS"`
	OpsEmail         string        `env:"OPS_EMAIL" validate:"omitempty,email"`
	OpsPeriod        time.Duration `env:"OPS_PERIOD" validate:"gte=0"`
}

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads envFile into the environment, if it exists, and returns the
// configuration from the environment. Variables already set in the
// environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		err := godotenv.Load(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv returns a validated configuration using lookup.
func FromEnv(lookup LookupFunc) (*Config, error) {
	get := func(key, def string) string {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return def
		}
		return v
	}

	c := &Config{
		ClientID:         get("YOUTUBE_CLIENT_ID", ""),
		ClientSecret:     get("YOUTUBE_CLIENT_SECRET", ""),
		RedirectURI:      get("YOUTUBE_REDIRECT_URI", ""),
		RefreshToken:     get("YOUTUBE_REFRESH_TOKEN", ""),
		TokenStore:       get("YOUTUBE_TOKEN", DefaultTokenStore),
		UploadDir:        get("UPLOAD_DIR", DefaultUploadDir),
		PlaceholderMedia: get("PLACEHOLDER_MEDIA", DefaultPlaceholderMedia),
		DefaultPrivacy:   strings.ToLower(get("DEFAULT_PRIVACY", DefaultPrivacy)),
		PublishCrons:     splitList(get("PUBLISH_CRONS", "")),
		ScheduleFile:     get("SCHEDULE_FILE", ""),
		FactsFile:        get("FACTS_FILE", ""),
		Location:         get("SCHEDULE_LOCATION", DefaultLocation),
		Latitude:         get("SCHEDULE_LATITUDE", ""),
		Longitude:        get("SCHEDULE_LONGITUDE", ""),
		LogLevel:         strings.ToLower(get("LOG_LEVEL", DefaultLogLevel)),
		LogPath:          get("LOG_PATH", ""),
		StateKey:         get("STATE_KEY", ""),
		SecretsURI:       get("YTPUBLISH_SECRETS", ""),
		OpsEmail:         get("OPS_EMAIL", DefaultOpsEmail),
	}

	var errs []string
	var err error
	c.Port, err = strconv.Atoi(get("PORT", strconv.Itoa(DefaultPort)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("PORT: %v", err))
	}
	c.PublishAttempts, err = strconv.Atoi(get("PUBLISH_ATTEMPTS", strconv.Itoa(DefaultPublishAttempts)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("PUBLISH_ATTEMPTS: %v", err))
	}
	durations := []struct {
		key     string
		dst     *time.Duration
		def     time.Duration
		minutes bool // Accept a bare integer as minutes.
	}{
		{"PUBLISH_TIMEOUT", &c.PublishTimeout, DefaultPublishTimeout, false},
		{"TOKEN_TIMEOUT", &c.TokenTimeout, DefaultTokenTimeout, false},
		{"OPS_PERIOD", &c.OpsPeriod, DefaultOpsPeriod, true},
	}
	for _, d := range durations {
		*d.dst, err = parseDuration(get(d.key, ""), d.def, d.minutes)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", d.key, err))
		}
	}
	if len(errs) != 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	err = c.validate()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// validate checks c against its validate tags and checks values the tags
// cannot express.
func (c *Config) validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	var errs []string
	err := v.Struct(c)
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		for _, e := range verrs {
			if e.Tag() == "required" {
				errs = append(errs, fmt.Sprintf("%s is required", e.Field()))
				continue
			}
			errs = append(errs, fmt.Sprintf("%s: invalid value %q (%s)", e.Field(), fmt.Sprint(e.Value()), e.Tag()))
		}
	case err != nil:
		return fmt.Errorf("could not validate configuration: %w", err)
	}

	if c.Location != "" {
		if _, err := time.LoadLocation(c.Location); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULE_LOCATION: %v", err))
		}
	}
	if (c.Latitude == "") != (c.Longitude == "") {
		errs = append(errs, "SCHEDULE_LATITUDE and SCHEDULE_LONGITUDE must be given together")
	}
	if c.StateKey != "" && len(c.StateKey) < 64 {
		errs = append(errs, "STATE_KEY must be at least 32 bytes of hex")
	}

	if len(errs) != 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Level returns the logging level for LogLevel.
func (c *Config) Level() int8 {
	switch c.LogLevel {
	case "debug":
		return logging.Debug
	case "warning":
		return logging.Warning
	case "error":
		return logging.Error
	case "fatal":
		return logging.Fatal
	default:
		return logging.Info
	}
}

// TimeLocation returns the schedule time zone.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Coordinates returns the schedule's latitude and longitude, if set.
func (c *Config) Coordinates() (lat, lon float64, ok bool) {
	if c.Latitude == "" || c.Longitude == "" {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(c.Latitude, 64)
	lon, err2 := strconv.ParseFloat(c.Longitude, 64)
	return lat, lon, err1 == nil && err2 == nil
}

// StateKeyBytes returns the decoded state cookie key, or nil if none is set.
func (c *Config) StateKeyBytes() []byte {
	b, err := hex.DecodeString(c.StateKey)
	if err != nil || len(b) == 0 {
		return nil
	}
	return b
}

// splitList splits a semicolon separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseDuration parses a Go duration. If minutes is set a bare integer
// is a number of minutes, as OPS_PERIOD has always been given.
func parseDuration(s string, def time.Duration, minutes bool) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil && minutes {
		return time.Duration(n) * time.Minute, nil
	}
	return time.ParseDuration(s)
}
