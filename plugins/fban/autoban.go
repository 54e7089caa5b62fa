package fban

import (
	"context"
	"errors"

	"fedbot/internal/core"
	"fedbot/internal/fed"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
	"fedbot/pkg/tgui"
)

// startMonitor (re)arms the forwarded-message watcher on the monitor chat.
// Any message forwarded into that chat bans its original sender across all
// federations, no questions asked.
func (p *Plugin) startMonitor(chatID int64) {
	p.mu.Lock()
	if p.stopMon != nil {
		p.stopMon()
		p.stopMon = nil
	}
	runCtx := p.runCtx
	p.mu.Unlock()

	if chatID == 0 || runCtx == nil {
		return
	}

	ch, unsub := p.deps.Watch.Watch(chatID, func(m kit.Message) bool {
		return m.Forward != nil
	}, 16)
	monCtx, monCancel := context.WithCancel(runCtx)

	p.mu.Lock()
	p.stopMon = func() {
		unsub()
		monCancel()
	}
	p.mu.Unlock()

	go func() {
		defer unsub()
		defer monCancel()
		for {
			select {
			case <-monCtx.Done():
				return
			case m := <-ch:
				p.autoBan(runCtx, m)
			}
		}
	}()
	p.log.Info("forward monitor armed", logx.Int64("chat_id", chatID))
}

func (p *Plugin) autoBan(ctx context.Context, m kit.Message) {
	set := p.snapshot()

	tgt, err := fed.TargetFromForward(m.Forward)
	if err != nil {
		// Channel and hidden-sender forwards carry no bannable user; say so
		// instead of silently dropping the report.
		if errors.Is(err, fed.ErrChannelForward) || errors.Is(err, fed.ErrHiddenForward) {
			ref, serr := p.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
				tgui.Esc(err.Error()), nil)
			if serr == nil {
				p.deleteLater(ref, set.autoDelete)
			}
		}
		return
	}

	req := &core.Request{
		Msg:     &m,
		Chat:    kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		FromID:  m.FromID,
		Command: "autoban",
		Adapter: p.deps.Adapter,
		Config:  p.deps.Config.Get(),
		Log:     p.log,
		Store:   p.deps.Store,
		Watch:   p.deps.Watch,
		Owners:  p.deps.Owners,
	}

	if err := p.runAction(ctx, req, fed.ActionBan, runOpts{
		proofMsg: &m,
		target:   &tgt,
		reason:   set.AutoReason,
	}); err != nil {
		p.log.Warn("auto ban failed", logx.Err(err), logx.Int64("target", tgt.ID))
	}
}
