// Package fban is the federated-ban coordinator: it keeps the federation
// registry, fans /fban and /unfban commands out to every registered chat,
// and reports the per-federation results.
package fban

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fedbot/internal/core"
	"fedbot/internal/fed"
	"fedbot/pkg/logx"
)

type Config struct {
	// LogChat receives reports and proof forwards.
	LogChat int64 `json:"log_chat"`
	// MonitorChat auto-bans the original sender of any message forwarded
	// into it. 0 disables the monitor.
	MonitorChat int64 `json:"monitor_chat"`
	// SudoChat + SudoTrigger mirror every broadcast command to a secondary
	// moderation system with a different command prefix.
	SudoChat    int64  `json:"sudo_chat"`
	SudoTrigger string `json:"sudo_trigger"`

	// FedBotIDs are the only senders whose replies count as
	// acknowledgments. Empty accepts any sender.
	FedBotIDs []int64 `json:"fed_bot_ids"`

	PerTargetTimeout string `json:"per_target_timeout"` // default 8s
	SendInterval     string `json:"send_interval"`      // default 1s
	ConfirmTimeout   string `json:"confirm_timeout"`    // default 30s
	AutoDelete       string `json:"auto_delete"`        // default 5s

	// Acknowledgment vocabulary. The defaults track the phrases the common
	// federation bots emit and must stay verbatim for interoperability.
	BanPatterns   []string `json:"ban_patterns"`
	UnbanPatterns []string `json:"unban_patterns"`
	UpdatePrompt  string   `json:"update_prompt"`
	UpdateButton  string   `json:"update_button"`

	// AutoReason is the reason attached to monitor-chat auto-bans.
	AutoReason string `json:"auto_reason"`
}

type settings struct {
	Config
	perTargetTimeout time.Duration
	sendInterval     time.Duration
	confirmTimeout   time.Duration
	autoDelete       time.Duration
	banMatcher       *fed.Matcher
	unbanMatcher     *fed.Matcher
}

type Plugin struct {
	log  logx.Logger
	deps core.PluginDeps

	mu    sync.RWMutex
	set   settings
	bcast *fed.Broadcaster

	runCtx  context.Context
	stopMon func()
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "fban" }

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

	s := settings{Config: c}
	var err error
	if s.perTargetTimeout, err = durationOr(c.PerTargetTimeout, 8*time.Second); err != nil {
		return fmt.Errorf("per_target_timeout: %w", err)
	}
	if s.sendInterval, err = durationOr(c.SendInterval, time.Second); err != nil {
		return fmt.Errorf("send_interval: %w", err)
	}
	if s.confirmTimeout, err = durationOr(c.ConfirmTimeout, 30*time.Second); err != nil {
		return fmt.Errorf("confirm_timeout: %w", err)
	}
	if s.autoDelete, err = durationOr(c.AutoDelete, 5*time.Second); err != nil {
		return fmt.Errorf("auto_delete: %w", err)
	}

	banPats := c.BanPatterns
	if len(banPats) == 0 {
		banPats = fed.DefaultBanPatterns
	}
	unbanPats := c.UnbanPatterns
	if len(unbanPats) == 0 {
		unbanPats = fed.DefaultUnbanPatterns
	}
	if s.banMatcher, err = fed.NewMatcher(banPats); err != nil {
		return fmt.Errorf("ban_patterns: %w", err)
	}
	if s.unbanMatcher, err = fed.NewMatcher(unbanPats); err != nil {
		return fmt.Errorf("unban_patterns: %w", err)
	}
	if s.UpdatePrompt == "" {
		s.UpdatePrompt = "Would you like to update this reason"
	}
	if s.UpdateButton == "" {
		s.UpdateButton = "Update reason"
	}
	if s.AutoReason == "" {
		s.AutoReason = "Automated Fed-Ban Proof:"
	}

	p.mu.Lock()
	prevInterval := p.set.sendInterval
	prevMonitor := p.set.MonitorChat
	p.set = s
	if p.bcast == nil || prevInterval != s.sendInterval {
		p.bcast = fed.NewBroadcaster(p.deps.Adapter, p.deps.Watch, s.sendInterval, p.log)
	}
	p.mu.Unlock()

	// Re-arm the monitor when its chat moved and the plugin is running.
	if p.runCtx != nil && prevMonitor != s.MonitorChat {
		p.startMonitor(s.MonitorChat)
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.runCtx = ctx
	p.startMonitor(p.snapshot().MonitorChat)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	stop := p.stopMon
	p.stopMon = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

func (p *Plugin) snapshot() settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set
}

func (p *Plugin) broadcaster() *fed.Broadcaster {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bcast
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive: %s", s)
	}
	return d, nil
}
