package fed

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
)

// Waiter blocks for the next message in a chat that satisfies match.
// Satisfied by *chatwatch.Bus.
type Waiter interface {
	WaitFor(ctx context.Context, chatID int64, match func(kit.Message) bool, timeout time.Duration) (kit.Message, bool)
}

// Params configures one broadcast run.
type Params struct {
	Command string // full command text sent to every federation chat

	Matcher          *Matcher
	PerTargetTimeout time.Duration

	// UpdatePrompt marks an acknowledgment that needs one follow-up answer
	// (the remote bot asking whether to update an existing ban reason).
	// UpdateButton is the answer sent back.
	UpdatePrompt string
	UpdateButton string

	// FromBots restricts which senders count as an acknowledgment.
	// Empty means any sender in the chat.
	FromBots []int64
}

// Broadcaster addresses federation chats one at a time: send the command,
// wait for the remote bot's acknowledgment, move on. Sequential on purpose
// so remote per-chat rate limits are respected and results stay ordered.
type Broadcaster struct {
	adapter kit.Adapter
	waits   Waiter
	limiter *rate.Limiter
	log     logx.Logger
}

func NewBroadcaster(adapter kit.Adapter, waits Waiter, sendInterval time.Duration, log logx.Logger) *Broadcaster {
	if sendInterval <= 0 {
		sendInterval = time.Second
	}
	return &Broadcaster{
		adapter: adapter,
		waits:   waits,
		limiter: rate.NewLimiter(rate.Every(sendInterval), 1),
		log:     log,
	}
}

// Run fans the command out to targets in registry order and returns one
// Outcome per target, in the same order. A failing target never stops the
// run; remaining targets are marked errored only if ctx itself dies.
func (b *Broadcaster) Run(ctx context.Context, targets []storage.Federation, p Params) []Outcome {
	if p.PerTargetTimeout <= 0 {
		p.PerTargetTimeout = 8 * time.Second
	}

	out := make([]Outcome, 0, len(targets))
	for i, fd := range targets {
		if err := b.limiter.Wait(ctx); err != nil {
			for _, rest := range targets[i:] {
				out = append(out, Outcome{Target: rest, Status: StatusErrored, Detail: err.Error()})
			}
			return out
		}
		out = append(out, b.one(ctx, fd, p))
	}
	return out
}

func (b *Broadcaster) one(ctx context.Context, fd storage.Federation, p Params) Outcome {
	log := b.log.With(logx.Int64("fed_chat", fd.ID), logx.String("fed", fd.Name))

	_, err := b.adapter.SendText(ctx, kit.ChatTarget{ChatID: fd.ID}, p.Command, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		log.Warn("broadcast send failed", logx.Err(err))
		return Outcome{Target: fd, Status: StatusErrored, Detail: err.Error()}
	}

	match := func(m kit.Message) bool {
		if len(p.FromBots) > 0 && !containsID(p.FromBots, m.FromID) {
			return false
		}
		return p.Matcher.Match(m.Text)
	}
	resp, ok := b.waits.WaitFor(ctx, fd.ID, match, p.PerTargetTimeout)
	if !ok {
		log.Warn("no acknowledgment", logx.Duration("timeout", p.PerTargetTimeout))
		return Outcome{Target: fd, Status: StatusTimedOut}
	}

	if p.UpdatePrompt != "" && strings.Contains(resp.Text, p.UpdatePrompt) {
		ref := kit.MessageRef{ChatID: fd.ID, MessageID: resp.ID}
		if err := b.adapter.AnswerPrompt(ctx, ref, p.UpdateButton); err != nil {
			// The ban itself went through; only the reason update is lost.
			log.Warn("reason update answer failed", logx.Err(err))
		}
	}

	log.Debug("acknowledged")
	return Outcome{Target: fd, Status: StatusAcked}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
