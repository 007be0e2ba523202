/*
DESCRIPTION
  upload.go provides the publish job, which uploads a video and its
  metadata to YouTube using an access token from a TokenProvider.

LICENSE
  Copyright (C) 2025-2026 the Australian Ocean Lab (AusOcean)

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

// Package youtube publishes videos to YouTube.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ausocean/utils/logging"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ausocean/ytpublish/metrics"
)

// Scopes required to upload and manage videos.
var Scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeForceSslScope}

// DefaultTimeout bounds a single upload call.
const DefaultTimeout = 10 * time.Minute

// maxTitleLen is YouTube's limit on title length in characters.
const maxTitleLen = 100

// ErrUnknownStatus is returned by CheckUploadStatus when the provider
// reports an upload status it does not recognise.
var ErrUnknownStatus = errors.New("unknown video status")

// Privacy is the visibility of a published video.
type Privacy string

// Privacy statuses.
const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

// ParsePrivacy returns the Privacy named by s. An empty string gives the
// zero Privacy, which means the default is used.
func ParsePrivacy(s string) (Privacy, error) {
	p := Privacy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" || validPrivacy(string(p)) {
		return p, nil
	}
	return "", fmt.Errorf("invalid privacy status: %s", s)
}

// Request describes one video to publish. Media is used when MediaPath is
// empty. Zero valued metadata fields take their defaults.
type Request struct {
	MediaPath   string
	Media       io.Reader
	Title       string
	Description string
	Category    string
	Tags        []string
	Privacy     Privacy
}

// Result identifies a published video.
type Result struct {
	VideoID string `json:"videoId"`
	URL     string `json:"url"`
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// TokenProvider supplies valid OAuth2 access tokens.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Uploader publishes a single Request.
type Uploader interface {
	Publish(ctx context.Context, req Request) (*Result, error)
}

// VideoUploadOption is a functional option type for configuring YouTube video uploads.
type VideoUploadOption func(*youtube.Video) error

// WithTitle sets the title of the video being uploaded.
// It returns an error if the title is empty or longer than 100 characters.
func WithTitle(title string) VideoUploadOption {
	return func(video *youtube.Video) error {
		if title == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleLen {
			return fmt.Errorf("title exceeds %d characters", maxTitleLen)
		}
		video.Snippet.Title = title
		return nil
	}
}

// WithDescription sets the description of the video being uploaded.
// It returns an error if the description is empty.
func WithDescription(description string) VideoUploadOption {
	return func(video *youtube.Video) error {
		if description == "" {
			return fmt.Errorf("description cannot be empty")
		}
		video.Snippet.Description = description
		return nil
	}
}

// WithCategory sets the category of the video being uploaded.
// It accepts either a category ID or a category name, for example "28" or
// "Science & Technology". It returns an error if the category is not found.
func WithCategory(categoryID string) VideoUploadOption {
	return func(video *youtube.Video) error {
		video.Snippet.CategoryId = sanitiseCategory(categoryID)
		if video.Snippet.CategoryId == "" {
			return fmt.Errorf("invalid category ID or name: %s", categoryID)
		}
		return nil
	}
}

// WithPrivacy sets the privacy status of the video being uploaded.
// It accepts "public", "unlisted", or "private" as valid privacy statuses.
// It returns an error if the privacy status is empty or invalid.
func WithPrivacy(privacy string) VideoUploadOption {
	return func(video *youtube.Video) error {
		if !validPrivacy(privacy) {
			return fmt.Errorf("invalid privacy status: %s", privacy)
		}
		video.Status.PrivacyStatus = privacy
		return nil
	}
}

// WithTags sets the tags for the video being uploaded.
// It returns an error if the tags slice is empty.
func WithTags(tags []string) VideoUploadOption {
	return func(video *youtube.Video) error {
		if len(tags) == 0 {
			return fmt.Errorf("tags cannot be empty")
		}
		video.Snippet.Tags = tags
		return nil
	}
}

// options returns the upload options for the fields set in r.
func (r Request) options() []VideoUploadOption {
	var opts []VideoUploadOption
	if r.Title != "" {
		opts = append(opts, WithTitle(r.Title))
	}
	if r.Description != "" {
		opts = append(opts, WithDescription(r.Description))
	}
	if r.Category != "" {
		opts = append(opts, WithCategory(r.Category))
	}
	if len(r.Tags) != 0 {
		opts = append(opts, WithTags(r.Tags))
	}
	if r.Privacy != "" {
		opts = append(opts, WithPrivacy(string(r.Privacy)))
	}
	return opts
}

// newVideo returns the video resource for an upload with defaults applied
// for title, description, category, privacy, and tags. Defaults are:
// - Title: "Uploaded at <current time>"
// - Description: "No description provided."
// - Category: "Science & Technology" (ID: 28)
// - Privacy: "unlisted"
// - Tags: ["ocean uploads"]
func newVideo(now time.Time, opts ...VideoUploadOption) (*youtube.Video, error) {
	const (
		// Science & Technology category ID
		scienceAndTechnologyCategoryID = "28"

		// Defaults
		defaultDescription = "No description provided."
		defaultCategory    = scienceAndTechnologyCategoryID
		defaultPrivacy     = "unlisted"
	)

	// Defaults
	var (
		defaultTitle    = "Uploaded at " + now.Format("2006-01-02 15:04:05")
		defaultKeywords = []string{"ocean uploads"}
	)

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       defaultTitle,
			Description: defaultDescription,
			CategoryId:  defaultCategory,
			Tags:        defaultKeywords, // The API returns a 400 Bad Request response if tags is an empty string.
		},
		Status: &youtube.VideoStatus{PrivacyStatus: defaultPrivacy},
	}

	for _, opt := range opts {
		if err := opt(upload); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return upload, nil
}

// PublisherOption is a functional option for NewPublisher.
type PublisherOption func(*Publisher) error

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) PublisherOption {
	return func(p *Publisher) error {
		p.endpoint = url
		return nil
	}
}

// WithHTTPClient sets the client that carries API requests.
func WithHTTPClient(c *http.Client) PublisherOption {
	return func(p *Publisher) error {
		p.client = c
		return nil
	}
}

// WithTimeout bounds each upload or status call.
func WithTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout: %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithLogger sets the publisher's logger.
func WithLogger(l logging.Logger) PublisherOption {
	return func(p *Publisher) error {
		p.log = l
		return nil
	}
}

// Publisher uploads videos to a YouTube account. Each Publish makes at most
// one upload attempt. It is safe for concurrent use.
type Publisher struct {
	tokens   TokenProvider
	endpoint string
	client   *http.Client
	timeout  time.Duration
	log      logging.Logger
}

// NewPublisher returns a Publisher that authenticates with tokens from tp.
func NewPublisher(tp TokenProvider, opts ...PublisherOption) (*Publisher, error) {
	if tp == nil {
		return nil, errors.New("token provider is required")
	}
	p := &Publisher{tokens: tp, timeout: DefaultTimeout}
	for i, opt := range opts {
		err := opt(p)
		if err != nil {
			return nil, fmt.Errorf("could not apply option %d: %w", i, err)
		}
	}
	if p.log == nil {
		p.log = logging.New(logging.Info, os.Stderr, true)
	}
	return p, nil
}

// Publish uploads the media in req with its metadata. Errors are always a
// *Failure. Media and metadata are checked before any token is requested,
// so an invalid request never reaches the provider.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	res, err := p.publish(ctx, req)
	if err != nil {
		var f *Failure
		errors.As(err, &f)
		metrics.Publishes.WithLabelValues(string(f.Kind)).Inc()
		p.log.Warning("publish failed", "kind", f.Kind, "error", f.Err, "message", f.Message)
		return nil, err
	}
	metrics.Publishes.WithLabelValues(metrics.ResultOK).Inc()
	p.log.Info("published video", "id", res.VideoID, "url", res.URL)
	return res, nil
}

func (p *Publisher) publish(ctx context.Context, req Request) (*Result, error) {
	media, err := openMedia(req)
	if err != nil {
		return nil, newFailure(KindInvalidMedia, "media unavailable", err)
	}
	defer media.Close()

	video, err := newVideo(time.Now(), req.options()...)
	if err != nil {
		return nil, newFailure(KindInvalidMedia, "invalid metadata", err)
	}

	svc, err := p.service(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	p.log.Debug("uploading video", "title", video.Snippet.Title, "privacy", video.Status.PrivacyStatus)
	vid, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(media).Context(ctx).Do()
	if err != nil {
		return nil, newFailure(Classify(err), "failed to insert video", err)
	}
	if vid.Id == "" {
		return nil, newFailure(KindUnknownRemote, "provider returned no video ID", nil)
	}
	return &Result{VideoID: vid.Id, URL: WatchURL(vid.Id)}, nil
}

// Upload Status constants.
const (
	UploadStatusUploaded  = "uploaded"
	UploadStatusProcessed = "processed"
	UploadStatusFailed    = "failed"
	UploadStatusRejected  = "rejected"
	UploadStatusDeleted   = "deleted"
)

// CheckUploadStatus checks the status for the video with the associated videoID.
// the returned status will be one of:
// - UploadStatusUploaded
// - UploadStatusProcessed
// - UploadStatusFailed
// - UploadStatusRejected
// - UploadStatusDeleted
func (p *Publisher) CheckUploadStatus(ctx context.Context, videoID string) (string, error) {
	svc, err := p.service(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	vid, err := svc.Videos.List([]string{"snippet", "status"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", newFailure(Classify(err), "failed to get video status", err)
	}

	if len(vid.Items) == 0 || vid.Items[0].Status == nil {
		return "", ErrVideoNotFound
	}

	switch vid.Items[0].Status.UploadStatus {
	case "processed":
		return UploadStatusProcessed, nil
	case "failed":
		return UploadStatusFailed, nil
	case "rejected":
		return UploadStatusRejected, nil
	case "deleted":
		return UploadStatusDeleted, nil
	case "uploaded":
		return UploadStatusUploaded, nil
	default:
		return "", ErrUnknownStatus
	}
}

// ErrVideoNotFound is returned by CheckUploadStatus for an unknown video.
var ErrVideoNotFound = errors.New("video not found")

// service returns a YouTube service authorised with a current access token.
func (p *Publisher) service(ctx context.Context) (*youtube.Service, error) {
	tok, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, newFailure(classifyToken(err), "could not get access token", err)
	}

	hctx := ctx
	if p.client != nil {
		hctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(hctx, src))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, newFailure(KindUnknownRemote, "could not create youtube service", err)
	}
	return svc, nil
}

// openMedia opens the request's media for reading.
func openMedia(req Request) (io.ReadCloser, error) {
	if req.MediaPath == "" {
		if req.Media == nil {
			return nil, errors.New("no media given")
		}
		return io.NopCloser(req.Media), nil
	}

	fi, err := os.Stat(req.MediaPath)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", req.MediaPath)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", req.MediaPath)
	}
	return os.Open(req.MediaPath)
}

// sanitiseCategory checks if the given category ID or Name is valid,
// and returns its ID if valid.
func sanitiseCategory(cat string) string {
	for id, name := range categories {
		if id == cat || strings.EqualFold(name, cat) {
			return id
		}
	}
	return ""
}

// categories maps YouTube video category IDs to their names.
var categories = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"18": "Short Movies",
	"19": "Travel & Events",
	"20": "Gaming",
	"21": "Videoblogging",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
	"29": "Nonprofits & Activism",
	"30": "Movies",
	"31": "Anime/Animation",
	"32": "Action/Adventure",
	"33": "Classics",
	"35": "Documentary",
	"36": "Drama",
	"37": "Family",
	"38": "Foreign",
	"39": "Horror",
	"40": "Sci-Fi/Fantasy",
	"41": "Thriller",
	"42": "Shorts",
	"43": "Shows",
	"44": "Trailers",
}

func validPrivacy(privacy string) bool {
	switch Privacy(privacy) {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
		return true
	}
	return false
}
