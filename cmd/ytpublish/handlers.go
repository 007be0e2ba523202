/*
DESCRIPTION
  handlers.go provides the ytpublish HTTP routes: the OAuth2 handshake,
  manual and generated uploads, schedule control and video status.

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

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ausocean/ytpublish/scheduler"
	"github.com/ausocean/ytpublish/youtube"
)

const (
	stateCookie = "ytpublish_state"
	stateMaxAge = 10 * time.Minute
	bodyLimit   = 1 << 30 // Largest accepted upload.
)

// newApp returns the fiber app serving the service's routes.
func (svc *service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{BodyLimit: bodyLimit, DisableStartupMessage: true})

	// Recover from panics.
	app.Use(recover.New())

	// Log requests.
	app.Use(func(c *fiber.Ctx) error {
		svc.log.Debug("request", "method", c.Method(), "path", c.Path())
		return c.Next()
	})

	svc.registerRoutes(app)
	return app
}

func (svc *service) registerRoutes(app *fiber.App) {
	app.Get("/", svc.indexHandler)

	app.Group("/auth").
		Get("/", svc.authHandler).
		Get("/callback", svc.callbackHandler).
		Get("/status", svc.authStatusHandler)

	app.Post("/upload", svc.uploadHandler)
	app.Post("/generate-and-upload", svc.generateHandler)

	app.Get("/schedule", svc.scheduleHandler)
	app.Post("/schedule/:name/run", svc.runHandler)

	app.Get("/videos/:id/status", svc.videoStatusHandler)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// indexHandler reports that the service is alive.
func (svc *service) indexHandler(c *fiber.Ctx) error {
	return c.SendString("ytpublish " + version + " is running")
}

// authHandler redirects to the consent page. The state embedded in the
// consent URL is also kept in a signed cookie so the callback can check it.
func (svc *service) authHandler(c *fiber.Ctx) error {
	authURL, state := svc.session.BeginAuthorization()
	v, err := svc.cookies.Encode(stateCookie, state)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not encode state cookie: %v", err))
	}
	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    v,
		Path:     "/auth",
		MaxAge:   int(stateMaxAge.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	svc.log.Info("redirecting for authorisation")
	return c.Redirect(authURL, fiber.StatusFound)
}

// callbackHandler completes the authorisation handshake.
func (svc *service) callbackHandler(c *fiber.Ctx) error {
	if e := c.Query("error"); e != "" {
		return svc.logAndReturnError(c, "authorisation denied: "+e)
	}

	var want string
	err := svc.cookies.Decode(stateCookie, c.Cookies(stateCookie), &want)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not verify authorisation state: %v", err))
	}
	if want == "" || c.Query("state") != want {
		return svc.logAndReturnError(c, "authorisation state mismatch")
	}
	c.ClearCookie(stateCookie)

	cred, err := svc.session.CompleteAuthorization(c.UserContext(), c.Query("code"))
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not complete authorisation: %v", err))
	}
	svc.log.Info("authorised", "expiry", cred.Expiry)
	return c.SendString("Authentication successful! You can now upload videos.")
}

// authStatusHandler reports the authorisation state.
func (svc *service) authStatusHandler(c *fiber.Ctx) error {
	resp := fiber.Map{"state": svc.session.State().String()}
	if cred := svc.session.Credential(); cred != nil {
		resp["refreshable"] = cred.RefreshToken != ""
		if !cred.Expiry.IsZero() {
			resp["expiry"] = cred.Expiry
		}
	}
	return c.JSON(resp)
}

// uploadHandler publishes an uploaded video file. The file is kept in the
// upload directory only for the duration of the request.
func (svc *service) uploadHandler(c *fiber.Ctx) error {
	fh, err := c.FormFile("video")
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("no video file uploaded: %v", err))
	}

	privacy := svc.cfg.DefaultPrivacy
	if p := c.FormValue("privacy"); p != "" {
		privacy = p
	}
	pv, err := youtube.ParsePrivacy(privacy)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}

	path := filepath.Join(svc.cfg.UploadDir, uuid.NewString()+filepath.Ext(fh.Filename))
	err = c.SaveFile(fh, path)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not save upload: %v", err))
	}
	defer func() {
		err := os.Remove(path)
		if err != nil {
			svc.log.Warning("could not remove upload", "path", path, "error", err)
		}
	}()

	return svc.publish(c, youtube.Request{
		MediaPath:   path,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
		Tags:        splitTags(c.FormValue("tags")),
		Privacy:     pv,
	})
}

// generateHandler publishes the next request from the content strategy.
func (svc *service) generateHandler(c *fiber.Ctx) error {
	req, err := svc.strategy.Next(c.UserContext())
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not generate content: %v", err))
	}
	return svc.publish(c, req)
}

func (svc *service) publish(c *fiber.Ctx, req youtube.Request) error {
	res, err := svc.uploader.Publish(c.UserContext(), req)
	if err != nil {
		return svc.logAndReturnError(c, err.Error(), withStatus(statusFor(youtube.KindOf(err))))
	}
	return c.JSON(fiber.Map{"success": true, "videoId": res.VideoID, "url": res.URL})
}

// scheduleHandler lists the schedule entries.
func (svc *service) scheduleHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"entries": svc.sched.Entries(), "outcomes": svc.sched.Outcomes()})
}

// runHandler fires a schedule entry now and returns its outcome.
func (svc *service) runHandler(c *fiber.Ctx) error {
	o, err := svc.sched.Run(c.UserContext(), c.Params("name"))
	if errors.Is(err, scheduler.ErrNoEntry) {
		return svc.logAndReturnError(c, err.Error(), withStatus(fiber.StatusNotFound))
	}
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	if !o.OK() {
		c.Status(statusFor(o.Kind))
	}
	return c.JSON(o)
}

// videoStatusHandler reports the upload status of a video.
func (svc *service) videoStatusHandler(c *fiber.Ctx) error {
	id := c.Params("id")
	status, err := svc.pub.CheckUploadStatus(c.UserContext(), id)
	switch {
	case errors.Is(err, youtube.ErrVideoNotFound):
		return svc.logAndReturnError(c, fmt.Sprintf("video %s not found", id), withStatus(fiber.StatusNotFound))
	case err != nil:
		return svc.logAndReturnError(c, err.Error(), withStatus(statusFor(youtube.KindOf(err))))
	}
	return c.JSON(fiber.Map{"videoId": id, "status": status})
}

// statusFor returns the HTTP status for a publish failure kind.
func statusFor(k youtube.Kind) int {
	switch k {
	case youtube.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case youtube.KindQuotaExceeded:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// splitTags splits a comma separated tag list.
func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type loggingErrorOption func(c *fiber.Ctx, m map[string]string) error

// withStatus sets the status of the response.
func withStatus(status int) loggingErrorOption {
	return func(c *fiber.Ctx, m map[string]string) error {
		c.Status(status)
		return nil
	}
}

// logAndReturnError logs the passed message as an error and returns an response to the client.
// The response code defaults to internal server error (500) and the message defaults to the status text.
func (svc *service) logAndReturnError(c *fiber.Ctx, message string, opts ...loggingErrorOption) error {
	svc.log.Error(message, "path", c.Path())
	c.Status(fiber.StatusInternalServerError)
	kv := make(map[string]string)
	kv["error"] = message
	for i, opt := range opts {
		err := opt(c, kv)
		if err != nil {
			svc.log.Error("error applying option", "index", i, "error", err)
		}
	}
	kv["message"] = http.StatusText(c.Response().StatusCode())
	return c.JSON(kv)
}
