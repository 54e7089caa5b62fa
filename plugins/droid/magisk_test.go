package droid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMagiskReleases(t *testing.T) {
	versions := map[string]string{"stable": "27.0", "beta": "27.1", "canary": "27102"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		branch := r.URL.Path[1 : len(r.URL.Path)-len(".json")]
		v, ok := versions[branch]
		if !ok {
			http.NotFound(w, r)
			return
		}
		// The real host serves JSON as text/plain.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, `{"magisk":{"version":%q,"versionCode":"27000","note":"https://notes/%s","link":"https://dl/%s.apk"}}`, v, branch, branch)
	}))
	defer srv.Close()

	c := NewMagiskClient(srv.URL, srv.Client())
	rels, err := c.Releases(context.Background())
	if err != nil {
		t.Fatalf("releases: %v", err)
	}
	if len(rels) != 3 {
		t.Fatalf("expected 3 branches, got %d", len(rels))
	}
	if rels[0].Label != "Stable" || rels[0].Version != "27.0" || rels[0].VersionCode != "27000" {
		t.Fatalf("stable: %+v", rels[0])
	}
	if rels[2].Label != "Canary" || rels[2].Note != "https://notes/canary" {
		t.Fatalf("canary: %+v", rels[2])
	}
}

func TestMagiskFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewMagiskClient(srv.URL, srv.Client())
	if _, err := c.Fetch(context.Background(), "Stable", "stable"); err == nil {
		t.Fatal("expected error on 404")
	}
}
