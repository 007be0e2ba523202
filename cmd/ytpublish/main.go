/*
DESCRIPTION
  ytpublish is a web service that publishes videos to YouTube, either on
  request or on a cron schedule, holding the OAuth2 credential needed to
  act on the channel.

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

// ytpublish is a cloud service that publishes videos to YouTube.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/ytpublish/config"
	"github.com/ausocean/ytpublish/content"
	"github.com/ausocean/ytpublish/gauth"
	"github.com/ausocean/ytpublish/notify"
	"github.com/ausocean/ytpublish/scheduler"
	"github.com/ausocean/ytpublish/youtube"
)

const version = "v0.1.0"

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Shutdown grace period for in-flight requests.
const shutdownTimeout = 30 * time.Second

// service holds the components behind the HTTP handlers.
type service struct {
	cfg      *config.Config
	log      logging.Logger
	session  *gauth.Session
	pub      *youtube.Publisher
	uploader youtube.Uploader // pub with retries.
	strategy content.Strategy
	sched    *scheduler.Scheduler
	notifier *notify.Notifier
	cookies  *securecookie.SecureCookie
}

func main() {
	envFile := flag.String("env", ".env", "Environment file to load, if present.")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.New(logging.Info, os.Stderr, false).Fatal("could not load configuration", "error", err)
	}
	log := newLogger(cfg)
	log.Info("starting ytpublish", "version", version, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx, cfg, log)
	if err != nil {
		log.Fatal("could not set up service", "error", err)
	}
	app := svc.newApp()

	svc.sched.Start()
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err = <-errCh:
		log.Error("web server stopped", "error", err)
	case <-ctx.Done():
		log.Info("shutting down")
	}

	err = app.ShutdownWithTimeout(shutdownTimeout)
	if err != nil {
		log.Warning("could not shut down web server cleanly", "error", err)
	}
	<-svc.sched.Stop().Done()
	log.Info("stopped")
}

// newLogger returns a logger writing to stdout and, if LOG_PATH is set, to
// a rotated log file.
func newLogger(cfg *config.Config) logging.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogPath != "" {
		fileLog := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		w = io.MultiWriter(os.Stdout, fileLog)
	}
	return logging.New(cfg.Level(), w, logSuppress)
}

// oauthConfig returns the Google OAuth2 configuration for the channel.
func oauthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       youtube.Scopes,
		Endpoint:     google.Endpoint,
	}
}

func newService(ctx context.Context, cfg *config.Config, log logging.Logger) (*service, error) {
	return buildService(ctx, cfg, log, oauthConfig(cfg))
}

// buildService wires up the service from its configuration. Publisher
// options are appended to the defaults, which lets tests point the
// publisher at another endpoint.
func buildService(ctx context.Context, cfg *config.Config, log logging.Logger, oc *oauth2.Config, pubOpts ...youtube.PublisherOption) (*service, error) {
	svc := &service{cfg: cfg, log: log, notifier: &notify.Notifier{}}

	opts := []notify.Option{
		notify.WithRecipient(cfg.OpsEmail),
		notify.WithStore(notify.NewMemStore()),
		notify.WithPeriod(cfg.OpsPeriod),
		notify.WithLogger(log),
	}
	if cfg.SecretsURI != "" {
		secrets, err := gauth.GetSecrets(ctx, cfg.SecretsURI, notify.Secrets)
		if err != nil {
			log.Warning("could not get secrets, notifications will not be mailed", "error", err)
		} else {
			opts = append(opts, notify.WithSecrets(secrets))
		}
	}
	err := svc.notifier.Init(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not set up notifier: %w", err)
	}

	store, err := gauth.NewTokenStore(ctx, cfg.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("could not open token store: %w", err)
	}
	svc.session, err = gauth.NewSession(ctx, oc, store,
		gauth.WithLogger(log),
		gauth.WithTimeout(cfg.TokenTimeout),
		gauth.WithSeedRefreshToken(cfg.RefreshToken),
		gauth.WithNotifier(svc.notifier.SendFunc(notify.KindCredential)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create session: %w", err)
	}

	pubOpts = append([]youtube.PublisherOption{youtube.WithTimeout(cfg.PublishTimeout), youtube.WithLogger(log)}, pubOpts...)
	svc.pub, err = youtube.NewPublisher(svc.session, pubOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create publisher: %w", err)
	}
	retrier := &youtube.Retrier{Publisher: svc.pub, Attempts: cfg.PublishAttempts, Log: log}
	svc.uploader = retrier

	privacy, err := youtube.ParsePrivacy(cfg.DefaultPrivacy)
	if err != nil {
		return nil, err
	}
	cOpts := []content.Option{content.WithPrivacy(privacy)}
	if cfg.FactsFile != "" {
		facts, err := content.LoadFacts(cfg.FactsFile)
		if err != nil {
			return nil, err
		}
		cOpts = append(cOpts, content.WithFacts(facts))
	}
	svc.strategy, err = content.NewFactPicker(cfg.PlaceholderMedia, cOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create content strategy: %w", err)
	}

	sOpts := []scheduler.Option{
		scheduler.WithLocation(cfg.TimeLocation()),
		scheduler.WithLogger(log),
		scheduler.WithNotifier(svc.notifier.SendFunc(notify.KindPublish)),
		scheduler.WithTimeout(firingTimeout(cfg, retrier)),
	}
	if lat, lon, ok := cfg.Coordinates(); ok {
		sOpts = append(sOpts, scheduler.WithCoordinates(lat, lon))
	}
	svc.sched, err = scheduler.New(svc.uploader, sOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create scheduler: %w", err)
	}
	entries := scheduler.EntriesFromSpecs(cfg.PublishCrons, svc.strategy)
	if cfg.ScheduleFile != "" {
		more, err := scheduler.LoadEntries(cfg.ScheduleFile, cfg.PlaceholderMedia, privacy, svc.strategy)
		if err != nil {
			return nil, err
		}
		entries = append(entries, more...)
	}
	for _, e := range entries {
		err = svc.sched.Add(e)
		if err != nil {
			return nil, err
		}
	}
	if len(entries) == 0 {
		log.Info("no publish schedule configured")
	}

	key := cfg.StateKeyBytes()
	if key == nil {
		log.Warning("no STATE_KEY set, authorisation cookies will not survive a restart")
		key = securecookie.GenerateRandomKey(32)
	}
	svc.cookies = securecookie.New(key, nil)
	svc.cookies.MaxAge(int(stateMaxAge.Seconds()))

	err = os.MkdirAll(cfg.UploadDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("could not create upload directory: %w", err)
	}
	return svc, nil
}

// firingTimeout returns the time allowed for one scheduled publish: every
// attempt at its full timeout plus the waits between them.
func firingTimeout(cfg *config.Config, r *youtube.Retrier) time.Duration {
	attempts := cfg.PublishAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*cfg.PublishTimeout + r.MaxWait()
}
