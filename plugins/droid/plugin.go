// Package droid bundles the Android-ecosystem helper commands: a Play
// Store search and a Magisk release lookup with an optional new-release
// announcer.
package droid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fedbot/internal/core"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
	"fedbot/pkg/tgui"
)

type Config struct {
	PlayStoreBase string `json:"playstore_base"`
	MagiskBase    string `json:"magisk_base"`
	HTTPTimeout   string `json:"http_timeout"` // default 15s

	// MagiskWatch is a cron spec; when set together with AnnounceChat, new
	// stable releases are announced there.
	MagiskWatch  string `json:"magisk_watch"`
	AnnounceChat int64  `json:"announce_chat"`
}

type Plugin struct {
	log  logx.Logger
	deps core.PluginDeps

	mu     sync.RWMutex
	cfg    Config
	play   *PlayStore
	magisk *MagiskClient

	watchID     cron.EntryID
	lastVersion string
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "droid" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.deps = deps
	p.log = deps.Log.With(logx.String("plugin", p.Name()))
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	var c Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
	}
	timeout := 15 * time.Second
	if c.HTTPTimeout != "" {
		d, err := time.ParseDuration(c.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("http_timeout: %w", err)
		}
		timeout = d
	}
	client := &http.Client{Timeout: timeout}

	p.mu.Lock()
	p.cfg = c
	p.play = NewPlayStore(c.PlayStoreBase, client)
	p.magisk = NewMagiskClient(c.MagiskBase, client)
	p.mu.Unlock()

	p.rearmWatch(c)
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.RLock()
	c := p.cfg
	p.mu.RUnlock()
	p.rearmWatch(c)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.watchID != 0 {
		p.deps.Scheduler.Remove(p.watchID)
		p.watchID = 0
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) rearmWatch(c Config) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watchID != 0 {
		p.deps.Scheduler.Remove(p.watchID)
		p.watchID = 0
	}
	if c.MagiskWatch == "" || c.AnnounceChat == 0 || p.deps.Scheduler == nil {
		return
	}
	id, err := p.deps.Scheduler.Add("magisk-watch", c.MagiskWatch, p.checkMagisk)
	if err != nil {
		p.log.Warn("magisk watch not scheduled", logx.Err(err), logx.String("spec", c.MagiskWatch))
		return
	}
	p.watchID = id
}

// checkMagisk announces a stable release the first time its versionCode is
// seen. The first run only primes the baseline.
func (p *Plugin) checkMagisk(ctx context.Context) error {
	p.mu.RLock()
	client := p.magisk
	chat := p.cfg.AnnounceChat
	p.mu.RUnlock()

	rel, err := client.Fetch(ctx, "Stable", "stable")
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.lastVersion
	p.lastVersion = rel.VersionCode
	p.mu.Unlock()

	if prev == "" || prev == rel.VersionCode {
		return nil
	}

	text := fmt.Sprintf("New Magisk %s release: %s\n%s: %s\n%s: %s",
		tgui.B(rel.Label),
		tgui.Code(rel.Version+"-"+rel.VersionCode),
		tgui.B("Notes"), tgui.Link("changelog", rel.Note),
		tgui.B("Download"), tgui.Link("apk", rel.Link),
	)
	_, err = p.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: chat}, text, &kit.SendOptions{ParseMode: "HTML"})
	return err
}

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Name:        "app",
			Description: "search the Play Store",
			Usage:       "/app <name>",
			Timeout:     30 * time.Second,
			Handle:      p.cmdApp,
		},
		{
			Name:        "magisk",
			Description: "latest Magisk releases",
			Usage:       "/magisk",
			Timeout:     30 * time.Second,
			Handle:      p.cmdMagisk,
		},
	}
}

func (p *Plugin) cmdApp(ctx context.Context, req *core.Request) error {
	query := strings.Join(req.Args, " ")
	if strings.TrimSpace(query) == "" {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "Usage: /app <name>", nil)
		return nil
	}

	p.mu.RLock()
	play := p.play
	p.mu.RUnlock()

	ref, err := req.Adapter.SendText(ctx, req.Chat, "Searching...", nil)
	if err != nil {
		return err
	}

	app, err := play.Search(ctx, query)
	if errors.Is(err, ErrNoResult) {
		return req.Adapter.EditText(ctx, ref, "No result found in search. Please enter a valid app name.", nil)
	}
	if err != nil {
		_ = req.Adapter.EditText(ctx, ref, "Play Store lookup failed, try again later.", nil)
		return err
	}

	text := tgui.Link("📲", app.Icon) + " " + tgui.B(app.Name) + "\n\n" + tgui.JoinH(
		tgui.Code("Developer :")+" "+tgui.Link(app.Developer, app.DevLink),
		tgui.Code("Rating :")+" "+tgui.Esc(app.Rating)+" ⭐️",
		tgui.Code("Features :")+" "+tgui.Link("View in Play Store", app.Link),
	)
	return req.Adapter.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML"})
}

func (p *Plugin) cmdMagisk(ctx context.Context, req *core.Request) error {
	p.mu.RLock()
	client := p.magisk
	p.mu.RUnlock()

	rels, err := client.Releases(ctx)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "Magisk lookup failed, try again later.", nil)
		return err
	}

	var b strings.Builder
	b.WriteString(tgui.B("Latest Magisk Releases:") + "\n")
	for _, r := range rels {
		fmt.Fprintf(&b, "× %s: %s | %s | %s\n",
			tgui.B(r.Label),
			tgui.Code(r.Version+"-"+r.VersionCode),
			tgui.Link("Notes", r.Note),
			tgui.Link("Magisk", r.Link),
		)
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, b.String(), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}
