/*
DESCRIPTION
  tokenstore.go provides durable storage for a single OAuth2 credential
  record, either in a local file or in a Google Storage bucket object.

LICENSE
  Copyright (C) 2021-2026 the Australian Ocean Lab (AusOcean)

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

package gauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// TokenStore persists a single Credential.
//
// Load returns a nil Credential and a nil error when nothing has been
// stored yet. Save must never leave a partially written record behind.
type TokenStore interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, c *Credential) error
}

// NewTokenStore returns a BucketStore for gs:// URIs and a FileStore for
// anything else.
func NewTokenStore(ctx context.Context, uri string) (TokenStore, error) {
	if isBucketURI(uri) {
		return NewBucketStore(ctx, uri)
	}
	if uri == "" {
		return nil, errors.New("empty token store location")
	}
	return NewFileStore(uri), nil
}

// FileStore keeps the credential record in a local file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the record.
func (s *FileStore) Path() string { return s.path }

// Load implements TokenStore.
func (s *FileStore) Load(ctx context.Context) (*Credential, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read token file %s: %w", s.path, err)
	}
	c := &Credential{}
	err = c.UnmarshalText(b)
	if err != nil {
		return nil, fmt.Errorf("could not decode token file %s: %w", s.path, err)
	}
	return c, nil
}

// Save implements TokenStore. The record is written to a temporary file in
// the same directory and renamed over the previous record.
func (s *FileStore) Save(ctx context.Context, c *Credential) error {
	b, err := c.MarshalText()
	if err != nil {
		return fmt.Errorf("%w: could not encode credential: %w", ErrPersist, err)
	}

	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: could not create temporary token file: %w", ErrPersist, err)
	}
	tmp := f.Name()
	cleanup := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	_, err = f.Write(b)
	if err != nil {
		return cleanup(err)
	}
	err = f.Chmod(0600)
	if err != nil {
		return cleanup(err)
	}
	err = f.Sync()
	if err != nil {
		return cleanup(err)
	}
	err = f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	err = os.Rename(tmp, s.path)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: could not replace token file: %w", ErrPersist, err)
	}
	return nil
}

// BucketStore keeps the credential record in a Google Storage bucket
// object. An object write only becomes visible once the writer is
// closed successfully, so a failed Save leaves the previous record intact.
type BucketStore struct {
	uri string
	obj *storage.ObjectHandle
}

// NewBucketStore returns a BucketStore for a gs://bucket/object URI.
func NewBucketStore(ctx context.Context, uri string) (*BucketStore, error) {
	clt, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not create storage client: %w", err)
	}
	obj, err := objectHandle(ctx, clt, uri)
	if err != nil {
		return nil, err
	}
	return &BucketStore{uri: uri, obj: obj}, nil
}

// Load implements TokenStore.
func (s *BucketStore) Load(ctx context.Context) (*Credential, error) {
	r, err := s.obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get reader for %s: %w", s.uri, err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", s.uri, err)
	}
	c := &Credential{}
	err = c.UnmarshalText(b)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", s.uri, err)
	}
	return c, nil
}

// Save implements TokenStore.
func (s *BucketStore) Save(ctx context.Context, c *Credential) error {
	b, err := c.MarshalText()
	if err != nil {
		return fmt.Errorf("%w: could not encode credential: %w", ErrPersist, err)
	}

	// Cancelling the context aborts the upload without replacing the object.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.obj.NewWriter(ctx)
	w.ContentType = "text/plain"
	_, err = w.Write(b)
	if err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("%w: could not write %s: %w", ErrPersist, s.uri, err)
	}
	err = w.Close()
	if err != nil {
		return fmt.Errorf("%w: could not close written object %s: %w", ErrPersist, s.uri, err)
	}
	return nil
}
