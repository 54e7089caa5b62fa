package fban

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fedbot/internal/core"
	"fedbot/internal/fed"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
	"fedbot/pkg/tgui"
)

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Name:        "addf",
			Description: "register this chat as a federation",
			Usage:       "/addf [name]",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdAddFed,
		},
		{
			Name:        "delf",
			Description: "remove a federation from the registry",
			Usage:       "/delf [id] | /delf -all",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdDelFed,
		},
		{
			Name:        "listf",
			Description: "list connected federations",
			Usage:       "/listf [-id]",
			Access:      core.AccessApprover,
			Handle:      p.cmdListFeds,
		},
		{
			Name:        "ffbanp",
			Description: "federation-ban a user across all registered feds",
			Usage:       "/ffbanp <id|@user|reply> <reason>",
			Access:      core.AccessApprover,
			Timeout:     10 * time.Minute,
			Handle:      p.cmdFBan,
		},
		{
			Name:        "unfban",
			Description: "lift a federation ban across all registered feds",
			Usage:       "/unfban <id|@user|reply> <reason>",
			Access:      core.AccessApprover,
			Timeout:     10 * time.Minute,
			Handle:      p.cmdUnFBan,
		},
		{
			Name:        "report",
			Description: "silently federation-ban the reported user",
			Usage:       "/report <reason> (as a reply)",
			Access:      core.AccessOwnerOnly,
			Timeout:     10 * time.Minute,
			Handle:      p.cmdReport,
		},
		{
			Name:        "fapprove",
			Description: "allow a user to run federation commands",
			Usage:       "/fapprove <id|@user|reply>",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdApprove,
		},
		{
			Name:        "fremove",
			Description: "revoke federation command access",
			Usage:       "/fremove <id|@user|reply>",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdRemoveApprover,
		},
		{
			Name:        "fapproved",
			Description: "list approved users",
			Usage:       "/fapproved",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdListApprovers,
		},
	}
}

func (p *Plugin) cmdAddFed(ctx context.Context, req *core.Request) error {
	name := strings.Join(req.Args, " ")
	if name == "" {
		name = req.Msg.ChatTitle
	}
	if name == "" {
		name = strconv.FormatInt(req.Chat.ChatID, 10)
	}
	kind := "group"
	if !req.Msg.IsGroup {
		kind = "private"
	}

	if err := req.Store.UpsertFederation(ctx, storage.Federation{ID: req.Chat.ChatID, Name: name, Kind: kind}); err != nil {
		return err
	}

	text := fmt.Sprintf("#FBANS\n%s: %s added to FED LIST.", tgui.B(name), tgui.Code(strconv.FormatInt(req.Chat.ChatID, 10)))
	p.replyEphemeral(ctx, req, text, 5*time.Second)
	p.logToChannel(ctx, text)
	return nil
}

func (p *Plugin) cmdDelFed(ctx context.Context, req *core.Request) error {
	if req.BoolFlags["all"] {
		if err := req.Store.DeleteAllFederations(ctx); err != nil {
			return err
		}
		p.replyEphemeral(ctx, req, "FED LIST cleared.", 8*time.Second)
		return nil
	}

	id := req.Chat.ChatID
	if len(req.Args) > 0 {
		v, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			p.replyEphemeral(ctx, req, "Invalid chat id.", 8*time.Second)
			return nil
		}
		id = v
	}

	ok, err := req.Store.DeleteFederation(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		p.replyEphemeral(ctx, req, fmt.Sprintf("%s not in FED LIST.", tgui.Code(strconv.FormatInt(id, 10))), 8*time.Second)
		return nil
	}
	text := fmt.Sprintf("#FBANS\n%s removed from FED LIST.", tgui.Code(strconv.FormatInt(id, 10)))
	p.replyEphemeral(ctx, req, text, 8*time.Second)
	p.logToChannel(ctx, text)
	return nil
}

func (p *Plugin) cmdListFeds(ctx context.Context, req *core.Request) error {
	feds, err := req.Store.ListFederations(ctx)
	if err != nil {
		return err
	}
	if len(feds) == 0 {
		p.replyEphemeral(ctx, req, "You don't have any Feds Connected.", 8*time.Second)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "List of %s Connected Feds:\n\n", tgui.B(strconv.Itoa(len(feds))))
	for _, f := range feds {
		fmt.Fprintf(&b, "%s\n", tgui.B("• "+f.Name))
		if req.BoolFlags["id"] {
			fmt.Fprintf(&b, "  %s\n", tgui.Code(strconv.FormatInt(f.ID, 10)))
		}
	}
	p.replyEphemeral(ctx, req, b.String(), 30*time.Second)
	return nil
}

func (p *Plugin) cmdFBan(ctx context.Context, req *core.Request) error {
	return p.runAction(ctx, req, fed.ActionBan, runOpts{confirm: true, proofMsg: req.Msg})
}

func (p *Plugin) cmdUnFBan(ctx context.Context, req *core.Request) error {
	return p.runAction(ctx, req, fed.ActionUnban, runOpts{})
}

// cmdReport bans without any feedback in the initiating chat; only the log
// channel hears about it. Proof is the replied-to message.
func (p *Plugin) cmdReport(ctx context.Context, req *core.Request) error {
	return p.runAction(ctx, req, fed.ActionBan, runOpts{silent: true, proofMsg: req.Msg.ReplyTo})
}

func (p *Plugin) cmdApprove(ctx context.Context, req *core.Request) error {
	tgt, _, err := fed.ExtractTarget(ctx, req.Msg, req.Args, req.Adapter)
	if err != nil {
		p.replyEphemeral(ctx, req, tgui.Esc(err.Error()), 8*time.Second)
		return nil
	}
	if err := req.Store.UpsertApprover(ctx, storage.Approver{ID: tgt.ID, Name: tgt.Name}); err != nil {
		return err
	}
	p.replyEphemeral(ctx, req, fmt.Sprintf("%s can now run federation commands.", tgt.Mention), 8*time.Second)
	return nil
}

func (p *Plugin) cmdRemoveApprover(ctx context.Context, req *core.Request) error {
	tgt, _, err := fed.ExtractTarget(ctx, req.Msg, req.Args, req.Adapter)
	if err != nil {
		p.replyEphemeral(ctx, req, tgui.Esc(err.Error()), 8*time.Second)
		return nil
	}
	ok, err := req.Store.DeleteApprover(ctx, tgt.ID)
	if err != nil {
		return err
	}
	if !ok {
		p.replyEphemeral(ctx, req, fmt.Sprintf("%s was not approved.", tgt.Mention), 8*time.Second)
		return nil
	}
	p.replyEphemeral(ctx, req, fmt.Sprintf("Revoked federation access for %s.", tgt.Mention), 8*time.Second)
	return nil
}

func (p *Plugin) cmdListApprovers(ctx context.Context, req *core.Request) error {
	list, err := req.Store.ListApprovers(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		p.replyEphemeral(ctx, req, "No approved users.", 8*time.Second)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Approved users (%d):\n", len(list))
	for _, a := range list {
		name := a.Name
		if name == "" {
			name = strconv.FormatInt(a.ID, 10)
		}
		fmt.Fprintf(&b, "• %s %s\n", tgui.Esc(name), tgui.Code(strconv.FormatInt(a.ID, 10)))
	}
	p.replyEphemeral(ctx, req, b.String(), 30*time.Second)
	return nil
}

// replyEphemeral sends text and deletes it after ttl.
func (p *Plugin) replyEphemeral(ctx context.Context, req *core.Request, text string, ttl time.Duration) {
	ref, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		p.log.Warn("reply failed", logx.Err(err), logx.Int64("chat_id", req.Chat.ChatID))
		return
	}
	p.deleteLater(ref, ttl)
}

func (p *Plugin) logToChannel(ctx context.Context, text string) {
	set := p.snapshot()
	if set.LogChat == 0 {
		return
	}
	if _, err := p.deps.Adapter.SendText(ctx, kit.ChatTarget{ChatID: set.LogChat}, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		p.log.Warn("log channel send failed", logx.Err(err))
	}
}

func (p *Plugin) deleteLater(ref kit.MessageRef, after time.Duration) {
	if after <= 0 {
		return
	}
	runCtx := p.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	go func() {
		t := time.NewTimer(after)
		defer t.Stop()
		select {
		case <-runCtx.Done():
		case <-t.C:
			_ = p.deps.Adapter.DeleteMessage(context.Background(), ref)
		}
	}()
}
