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

package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"
)

// fakeYouTube serves the subset of the YouTube Data API used by Publisher.
type fakeYouTube struct {
	srv *httptest.Server

	inserts atomic.Int32
	lists   atomic.Int32

	// Response to an insert. A zero code means success.
	code   int
	reason string

	// Upload status reported by list; empty means no items.
	uploadStatus string

	mu    sync.Mutex
	auth  string
	video youtube.Video
	media []byte
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	f := &fakeYouTube{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeYouTube) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/videos") {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		f.inserts.Add(1)
		f.record(r)
		if f.code != 0 {
			w.WriteHeader(f.code)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake failure","errors":[{"reason":%q,"message":"fake failure"}]}}`, f.code, f.reason)
			return
		}
		fmt.Fprint(w, `{"kind":"youtube#video","id":"vid123"}`)

	case http.MethodGet:
		f.lists.Add(1)
		if f.uploadStatus == "" {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprintf(w, `{"items":[{"id":%q,"status":{"uploadStatus":%q}}]}`, r.URL.Query().Get("id"), f.uploadStatus)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// record keeps the authorisation header, metadata and media of an insert.
func (f *fakeYouTube) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return
	}
	json.NewDecoder(part).Decode(&f.video)
	part, err = mr.NextPart()
	if err != nil {
		return
	}
	f.media, _ = io.ReadAll(part)
}

func (f *fakeYouTube) uploaded() (auth string, video youtube.Video, media []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth, f.video, f.media
}

// staticTokens is a TokenProvider returning a fixed token or error.
type staticTokens struct {
	tok   string
	err   error
	calls atomic.Int32
}

func (s *staticTokens) AccessToken(ctx context.Context) (string, error) {
	s.calls.Add(1)
	return s.tok, s.err
}

func testLogger() logging.Logger {
	return logging.New(logging.Debug, io.Discard, false)
}

func newTestPublisher(t *testing.T, f *fakeYouTube, tp TokenProvider) *Publisher {
	t.Helper()
	p, err := NewPublisher(tp, WithEndpoint(f.srv.URL+"/"), WithTimeout(5*time.Second), WithLogger(testLogger()))
	require.NoError(t, err)
	return p
}

// writeMedia writes a small fake video file and returns its path.
func writeMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really an mp4"), 0644))
	return path
}
