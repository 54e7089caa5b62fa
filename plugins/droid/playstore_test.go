package droid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const featuredPage = `<html><body>
<div class="vWM94c">Telegram</div>
<div class="LbQbAe">Telegram FZ-LLC</div>
<div class="TT9eCd">4.3star</div>
<a class="Qfxief" href="/store/apps/details?id=org.telegram.messenger"></a>
<img class="T75of bzqKMd" src="https://img.example/icon.png">
</body></html>`

const listPage = `<html><body>
<span class="DdYX5">Signal</span>
<span class="wMUdtb">Signal Foundation</span>
<span class="w2kbF">4.5</span>
<a class="Si6A0c Gy4nib" href="/store/apps/details?id=org.thoughtcrime.securesms"></a>
<img class="T75of stzEZd" src="https://img.example/signal.png">
</body></html>`

func servePage(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/store/search" {
			http.NotFound(w, r)
			return
		}
		if q := r.URL.Query().Get("q"); q == "" {
			t.Errorf("missing query parameter")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchFeaturedLayout(t *testing.T) {
	srv := servePage(t, featuredPage)
	ps := NewPlayStore(srv.URL, srv.Client())

	app, err := ps.Search(context.Background(), "telegram")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if app.Name != "Telegram" || app.Developer != "Telegram FZ-LLC" {
		t.Fatalf("got %+v", app)
	}
	if app.Rating != "4.3" {
		t.Fatalf("star suffix not stripped: %q", app.Rating)
	}
	if app.Link != "https://play.google.com/store/apps/details?id=org.telegram.messenger" {
		t.Fatalf("link: %q", app.Link)
	}
	if app.DevLink != "https://play.google.com/store/apps/developer?id=Telegram+FZ-LLC" {
		t.Fatalf("dev link: %q", app.DevLink)
	}
}

func TestSearchListFallback(t *testing.T) {
	srv := servePage(t, listPage)
	ps := NewPlayStore(srv.URL, srv.Client())

	app, err := ps.Search(context.Background(), "signal")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if app.Name != "Signal" || app.Developer != "Signal Foundation" || app.Rating != "4.5" {
		t.Fatalf("got %+v", app)
	}
	if app.Icon != "https://img.example/signal.png" {
		t.Fatalf("icon: %q", app.Icon)
	}
}

func TestSearchNoResult(t *testing.T) {
	srv := servePage(t, "<html><body><p>nothing here</p></body></html>")
	ps := NewPlayStore(srv.URL, srv.Client())

	_, err := ps.Search(context.Background(), "qwertyuiop")
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}
