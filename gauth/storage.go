/*
DESCRIPTION
  storage.go provides the small set of Google Storage bucket operations
  needed to keep credentials and secrets in the cloud.

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
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

// The URL scheme that represents a Google Storage Bucket.
const gsbScheme = "gs://"

func isBucketURI(uri string) bool { return strings.HasPrefix(uri, gsbScheme) }

// objectHandle returns a handle for the bucket object at uri using the
// provided client, or a fresh client if clt is nil.
func objectHandle(ctx context.Context, clt *storage.Client, uri string) (*storage.ObjectHandle, error) {
	bkt, obj, err := googleStorageAddr(uri)
	if err != nil {
		return nil, fmt.Errorf("could not parse uri: %w", err)
	}
	if clt == nil {
		clt, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not create storage client: %w", err)
		}
	}
	return clt.Bucket(bkt).Object(obj), nil
}

// readObject returns the bytes contained in the object at the given URI.
func readObject(ctx context.Context, uri string) ([]byte, error) {
	obj, err := objectHandle(ctx, nil, uri)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get reader for object: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// googleStorageAddr splits a gs://bucket/object URI.
func googleStorageAddr(addr string) (bucket, object string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("url does not have gs scheme: %s", u)
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("url must name a bucket and object: %s", u)
	}
	return u.Host, object, nil
}
