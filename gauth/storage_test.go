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

package gauth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestGoogleStorageAddr(t *testing.T) {
	const (
		wantBkt = "ausocean"
		wantObj = "ytpublish/youtube.token"
		testURI = "gs://" + wantBkt + "/" + wantObj
	)

	bkt, obj, err := googleStorageAddr(testURI)
	if err != nil {
		t.Fatalf("did not expect error: %v from googleStorageAddr", err)
	}

	if bkt != wantBkt {
		t.Errorf("did not get expected bkt name, got: %s want: %s", bkt, wantBkt)
	}

	if obj != wantObj {
		t.Errorf("did not get expected obj name, got: %s want: %s", obj, wantObj)
	}

	for _, bad := range []string{"file:///tmp/token", "gs://bucket-only", "gs:///object"} {
		_, _, err := googleStorageAddr(bad)
		if err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestGetSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.txt")
	err := os.WriteFile(path, []byte("mailjetPublicKey:pub\r\nmailjetPrivateKey:priv\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	secrets, err := GetSecrets(ctx, path, []string{"mailjetPublicKey", "mailjetPrivateKey"})
	if err != nil {
		t.Fatalf("GetSecrets failed: %v", err)
	}
	if secrets["mailjetPublicKey"] != "pub" || secrets["mailjetPrivateKey"] != "priv" {
		t.Errorf("unexpected secrets: %v", secrets)
	}

	_, err = GetSecrets(ctx, path, []string{"cronSecret"})
	if err == nil {
		t.Errorf("expected error for missing key")
	}

	_, err = GetSecrets(ctx, "", nil)
	if err == nil {
		t.Errorf("expected error for empty location")
	}
}
