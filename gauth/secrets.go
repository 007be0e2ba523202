/*
DESCRIPTION
  secrets.go reads service secrets, such as mail API keys, from either a
  local file or a Google Storage bucket object.

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

package gauth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ausocean/utils/filemap"
)

// GetSecrets looks up secrets from either a file or Google Storage
// bucket object at uri. Each line is a colon-separated key and value.
// The keys argument specifies required keys.
func GetSecrets(ctx context.Context, uri string, keys []string) (map[string]string, error) {
	if uri == "" {
		return nil, fmt.Errorf("no secrets location given")
	}

	var (
		bytes []byte
		err   error
	)
	if isBucketURI(uri) {
		bytes, err = readObject(ctx, uri)
	} else {
		bytes, err = os.ReadFile(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read secrets from %s: %w", uri, err)
	}

	// Strip carriage returns, if any.
	s := strings.ReplaceAll(string(bytes), "\r", "")

	// There is one colon-separated secret per line.
	m := filemap.Split(s, "\n", ":")
	for _, k := range keys {
		if m[k] == "" {
			return m, fmt.Errorf("missing key %s", k)
		}
	}
	return m, nil
}
