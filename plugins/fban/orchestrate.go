package fban

import (
	"context"
	"fmt"
	"strings"

	"fedbot/internal/core"
	"fedbot/internal/fed"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
	"fedbot/pkg/tgui"
)

type runOpts struct {
	// confirm gates the broadcast behind an interactive y/n reply from the
	// invoker.
	confirm bool
	// silent suppresses all feedback in the initiating chat; the log
	// channel still gets the report.
	silent bool
	// proofMsg, when set, is forwarded to the log channel and its permalink
	// appended to the outbound command as evidence.
	proofMsg *kit.Message
	// target skips extraction when the caller already resolved the subject
	// (the forwarded-message monitor).
	target *fed.Target
	reason string
}

// runAction is the full workflow: extract target, guard, confirm, forward
// proof, broadcast, aggregate, publish, relay.
func (p *Plugin) runAction(ctx context.Context, req *core.Request, kind fed.ActionKind, o runOpts) error {
	set := p.snapshot()

	var progress kit.MessageRef
	say := func(text string) {
		if o.silent {
			return
		}
		var err error
		if progress.MessageID == 0 {
			progress, err = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		} else {
			err = req.Adapter.EditText(ctx, progress, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		}
		if err != nil {
			p.log.Warn("progress update failed", logx.Err(err))
		}
	}
	say("❯")

	var (
		tgt    fed.Target
		reason string
	)
	if o.target != nil {
		tgt, reason = *o.target, o.reason
	} else {
		var err error
		tgt, reason, err = fed.ExtractTarget(ctx, req.Msg, req.Args, req.Adapter)
		if err != nil {
			say(tgui.Esc(err.Error()))
			return nil
		}
	}

	if p.isProtected(ctx, req, tgt.ID) {
		say("Cannot FBan Owner/Sudo users.")
		return nil
	}

	if o.confirm && !p.confirmed(ctx, req, tgt, reason, set) {
		say(string(kind) + " cancelled.")
		return nil
	}

	feds, err := req.Store.ListFederations(ctx)
	if err != nil {
		return err
	}
	if len(feds) == 0 {
		say("You Don't have any feds connected!")
		return nil
	}

	proofLink := p.forwardProof(ctx, o.proofMsg, set)

	freq := fed.Request{
		TargetID:      tgt.ID,
		TargetMention: tgt.Mention,
		Reason:        reason,
		Action:        kind,
		ProofLink:     proofLink,
	}
	cmd := fed.RenderCommand(freq)

	matcher := set.banMatcher
	if kind == fed.ActionUnban {
		matcher = set.unbanMatcher
	}

	say("❯❯")
	outcomes := p.broadcaster().Run(ctx, feds, fed.Params{
		Command:          cmd,
		Matcher:          matcher,
		PerTargetTimeout: set.perTargetTimeout,
		UpdatePrompt:     set.UpdatePrompt,
		UpdateButton:     set.UpdateButton,
		FromBots:         set.FedBotIDs,
	})

	initiatedIn := req.Msg.ChatTitle
	if initiatedIn == "" {
		initiatedIn = "PM"
	}
	byLine := ""
	if !req.IsOwner() {
		byLine = req.Msg.FromName
	}
	report := fed.Summarize(outcomes, freq, initiatedIn, byLine)

	p.logToChannel(ctx, report)
	if !o.silent {
		say(report)
		p.deleteLater(progress, set.autoDelete)
	}

	p.relaySudo(ctx, cmd, set)
	return nil
}

// isProtected rejects targets that hold power over this bot: owners and
// approved operators.
func (p *Plugin) isProtected(ctx context.Context, req *core.Request, id int64) bool {
	for _, o := range req.Owners {
		if o == id {
			return true
		}
	}
	ok, err := req.Store.IsApprover(ctx, id)
	if err != nil {
		p.log.Warn("approver lookup failed", logx.Err(err))
		// Fail closed: an unverifiable target stays untouchable.
		return true
	}
	return ok
}

// confirmed asks the invoker for a y/n reply and waits out the configured
// window. Only the invoker's reply in the same chat counts.
func (p *Plugin) confirmed(ctx context.Context, req *core.Request, tgt fed.Target, reason string, set settings) bool {
	prompt := fmt.Sprintf(
		"Are you sure you want to FBan %s?\nReason: %s\n\nReply with 'y' to confirm or 'n' to cancel.",
		tgt.Mention, tgui.Esc(reason),
	)
	ref, err := req.Adapter.SendText(ctx, req.Chat, prompt, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		p.log.Warn("confirmation prompt failed", logx.Err(err))
		return false
	}
	defer p.deleteLater(ref, set.autoDelete)

	match := func(m kit.Message) bool {
		if m.FromID != req.FromID {
			return false
		}
		t := strings.ToLower(strings.TrimSpace(m.Text))
		return t == "y" || t == "n"
	}
	resp, ok := req.Watch.WaitFor(ctx, req.Chat.ChatID, match, set.confirmTimeout)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(resp.Text), "y")
}

// forwardProof copies the evidentiary message into the log channel and
// returns its permalink. Best-effort: a failed forward just drops the link.
func (p *Plugin) forwardProof(ctx context.Context, msg *kit.Message, set settings) string {
	if msg == nil || set.LogChat == 0 {
		return ""
	}
	ref, err := p.deps.Adapter.ForwardMessage(ctx, kit.ChatTarget{ChatID: set.LogChat}, kit.MessageRef{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
	})
	if err != nil {
		p.log.Warn("proof forward failed", logx.Err(err))
		return ""
	}
	return tgui.MessageLink(set.LogChat, ref.MessageID)
}

// relaySudo mirrors the command to the auxiliary moderation system with its
// trigger prefix. Failures are logged, never surfaced.
func (p *Plugin) relaySudo(ctx context.Context, cmd string, set settings) {
	if set.SudoChat == 0 || set.SudoTrigger == "" {
		return
	}
	relay := fed.RelayCommand(cmd, set.SudoTrigger)
	if _, err := p.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: set.SudoChat}, relay, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		p.log.Warn("sudo relay failed", logx.Err(err))
	}
}
