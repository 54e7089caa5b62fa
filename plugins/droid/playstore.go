package droid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoResult means the search page contained neither the featured-result
// layout nor the list layout.
var ErrNoResult = errors.New("no result found in search")

type App struct {
	Name      string
	Developer string
	DevLink   string
	Rating    string
	Link      string
	Icon      string
}

// PlayStore scrapes the Play Store search page. The markup ships two
// layouts: a featured card for strong matches and a plain result list;
// both are tried in that order. Class names track the live site and break
// when Google reshuffles them, which is why they are config-overridable
// upstream.
type PlayStore struct {
	base   string
	client *http.Client
}

func NewPlayStore(base string, client *http.Client) *PlayStore {
	if base == "" {
		base = "https://play.google.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PlayStore{base: strings.TrimSuffix(base, "/"), client: client}
}

func (ps *PlayStore) Search(ctx context.Context, query string) (App, error) {
	u := fmt.Sprintf("%s/store/search?q=%s&c=apps", ps.base, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return App{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	res, err := ps.client.Do(req)
	if err != nil {
		return App{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return App{}, fmt.Errorf("play store: unexpected status %s", res.Status)
	}

	doc, err := html.Parse(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return App{}, err
	}

	app := ps.featured(doc)
	if app.Name == "" {
		app = ps.listed(doc)
	}
	if app.Name == "" {
		return App{}, ErrNoResult
	}

	if app.Link != "" && !strings.HasPrefix(app.Link, "http") {
		app.Link = "https://play.google.com" + app.Link
	}
	app.Rating = strings.TrimSpace(strings.ReplaceAll(app.Rating, "star", ""))
	app.DevLink = "https://play.google.com/store/apps/developer?id=" + url.QueryEscape(app.Developer)
	return app, nil
}

// featured reads the big result card shown for strong matches.
func (ps *PlayStore) featured(doc *html.Node) App {
	return App{
		Name:      textByClass(doc, "div", "vWM94c"),
		Developer: textByClass(doc, "div", "LbQbAe"),
		Rating:    textByClass(doc, "div", "TT9eCd"),
		Link:      attrByClass(doc, "a", "Qfxief", "href"),
		Icon:      attrByClass(doc, "img", "T75of bzqKMd", "src"),
	}
}

// listed reads the first entry of the plain result list.
func (ps *PlayStore) listed(doc *html.Node) App {
	return App{
		Name:      textByClass(doc, "span", "DdYX5"),
		Developer: textByClass(doc, "span", "wMUdtb"),
		Rating:    textByClass(doc, "span", "w2kbF"),
		Link:      attrByClass(doc, "a", "Si6A0c Gy4nib", "href"),
		Icon:      attrByClass(doc, "img", "T75of stzEZd", "src"),
	}
}

// findByClass walks the tree for the first element with the given tag whose
// class attribute contains every token of class.
func findByClass(n *html.Node, tag, class string) *html.Node {
	want := strings.Fields(class)
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == tag && hasClasses(n, want) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(n)
}

func hasClasses(n *html.Node, want []string) bool {
	var have []string
	for _, a := range n.Attr {
		if a.Key == "class" {
			have = strings.Fields(a.Val)
			break
		}
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func textByClass(doc *html.Node, tag, class string) string {
	n := findByClass(doc, tag, class)
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func attrByClass(doc *html.Node, tag, class, key string) string {
	n := findByClass(doc, tag, class)
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
