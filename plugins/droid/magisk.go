package droid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// magiskBranches in display order.
var magiskBranches = []struct {
	Label  string
	Branch string
}{
	{"Stable", "stable"},
	{"Beta", "beta"},
	{"Canary", "canary"},
}

type MagiskRelease struct {
	Label       string
	Version     string
	VersionCode string
	Note        string
	Link        string
}

// MagiskClient reads the topjohnwu/magisk-files release manifests.
type MagiskClient struct {
	base   string
	client *http.Client
}

func NewMagiskClient(base string, client *http.Client) *MagiskClient {
	if base == "" {
		base = "https://raw.githubusercontent.com/topjohnwu/magisk-files/master/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &MagiskClient{base: base, client: client}
}

func (c *MagiskClient) Fetch(ctx context.Context, label, branch string) (MagiskRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+branch+".json", nil)
	if err != nil {
		return MagiskRelease{}, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return MagiskRelease{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return MagiskRelease{}, fmt.Errorf("magisk %s: unexpected status %s", branch, res.Status)
	}

	// The raw host serves these as text/plain; decode from bytes instead of
	// trusting the content type.
	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return MagiskRelease{}, err
	}
	var payload struct {
		Magisk struct {
			Version     string `json:"version"`
			VersionCode string `json:"versionCode"`
			Note        string `json:"note"`
			Link        string `json:"link"`
		} `json:"magisk"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return MagiskRelease{}, fmt.Errorf("magisk %s: %w", branch, err)
	}
	return MagiskRelease{
		Label:       label,
		Version:     payload.Magisk.Version,
		VersionCode: payload.Magisk.VersionCode,
		Note:        payload.Magisk.Note,
		Link:        payload.Magisk.Link,
	}, nil
}

// Releases fetches all branches. A single failing branch fails the whole
// call; partial release lists are misleading.
func (c *MagiskClient) Releases(ctx context.Context) ([]MagiskRelease, error) {
	out := make([]MagiskRelease, 0, len(magiskBranches))
	for _, b := range magiskBranches {
		rel, err := c.Fetch(ctx, b.Label, b.Branch)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}
