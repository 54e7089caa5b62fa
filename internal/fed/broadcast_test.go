package fed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fedbot/internal/chatwatch"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
)

// fakeAdapter records outgoing traffic and lets tests script per-chat
// acknowledgment behavior via the shared chatwatch bus.
type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMsg
	answers []kit.MessageRef

	bus     *chatwatch.Bus
	onSend  func(chatID int64, text string) // scripted remote bot
	sendErr map[int64]error
}

type sentMsg struct {
	ChatID int64
	Text   string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{ChatID: to.ChatID, Text: text})
	err := f.sendErr[to.ChatID]
	f.mu.Unlock()
	if err != nil {
		return kit.MessageRef{}, err
	}
	if f.onSend != nil {
		go f.onSend(to.ChatID, text)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, kit.MessageRef) error { return nil }
func (f *fakeAdapter) ForwardMessage(_ context.Context, to kit.ChatTarget, _ kit.MessageRef) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (f *fakeAdapter) AnswerPrompt(_ context.Context, ref kit.MessageRef, _ string) error {
	f.mu.Lock()
	f.answers = append(f.answers, ref)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) ResolveUser(_ context.Context, username string) (int64, string, error) {
	if username == "@spammer" {
		return 777, "Spammer", nil
	}
	return 0, "", errors.New("unknown username")
}

func (f *fakeAdapter) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func testParams() Params {
	return Params{
		Command:          "/fban <a href=\"tg://user?id=777\">777</a> spam",
		Matcher:          MustMatcher(DefaultBanPatterns),
		PerTargetTimeout: 200 * time.Millisecond,
		UpdatePrompt:     "Would you like to update this reason",
		UpdateButton:     "Update reason",
	}
}

func TestRunPartialAcknowledgment(t *testing.T) {
	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus}
	fa.onSend = func(chatID int64, _ string) {
		// Fed A acknowledges, Fed B never replies. The small delay lets the
		// broadcaster register its wait before the reply lands.
		time.Sleep(10 * time.Millisecond)
		if chatID == 100 {
			bus.Publish(kit.Message{ID: 1, ChatID: 100, FromID: 9000, Text: "New FedBan in Fed A"})
		}
	}

	b := NewBroadcaster(fa, bus, time.Millisecond, logx.Nop())
	targets := []storage.Federation{
		{ID: 100, Name: "Fed A"},
		{ID: 200, Name: "Fed B"},
	}
	out := b.Run(context.Background(), targets, testParams())

	if len(out) != len(targets) {
		t.Fatalf("expected %d outcomes, got %d", len(targets), len(out))
	}
	if out[0].Target.ID != 100 || out[0].Status != StatusAcked {
		t.Fatalf("Fed A: %+v", out[0])
	}
	if out[1].Target.ID != 200 || out[1].Status != StatusTimedOut {
		t.Fatalf("Fed B: %+v", out[1])
	}

	acked, failed := 0, 0
	for _, o := range out {
		if o.Failed() {
			failed++
		} else {
			acked++
		}
	}
	if acked+failed != len(targets) {
		t.Fatalf("counts do not sum: acked=%d failed=%d total=%d", acked, failed, len(targets))
	}
}

func TestRunSendErrorDoesNotStopRun(t *testing.T) {
	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus, sendErr: map[int64]error{100: errors.New("forbidden: bot was kicked")}}
	fa.onSend = func(chatID int64, _ string) {
		time.Sleep(10 * time.Millisecond)
		bus.Publish(kit.Message{ID: 1, ChatID: chatID, Text: "starting a federation ban"})
	}

	b := NewBroadcaster(fa, bus, time.Millisecond, logx.Nop())
	out := b.Run(context.Background(), []storage.Federation{
		{ID: 100, Name: "Fed A"},
		{ID: 200, Name: "Fed B"},
	}, testParams())

	if out[0].Status != StatusErrored || !strings.Contains(out[0].Detail, "kicked") {
		t.Fatalf("Fed A: %+v", out[0])
	}
	if out[1].Status != StatusAcked {
		t.Fatalf("Fed B should still be addressed: %+v", out[1])
	}
}

func TestRunUpdatePromptFollowUp(t *testing.T) {
	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus}
	fa.onSend = func(chatID int64, _ string) {
		time.Sleep(10 * time.Millisecond)
		bus.Publish(kit.Message{ID: 42, ChatID: chatID, Text: "This user is already banned. Would you like to update this reason?"})
	}

	b := NewBroadcaster(fa, bus, time.Millisecond, logx.Nop())
	out := b.Run(context.Background(), []storage.Federation{{ID: 100, Name: "Fed A"}}, testParams())

	if out[0].Status != StatusAcked {
		t.Fatalf("outcome: %+v", out[0])
	}
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.answers) != 1 {
		t.Fatalf("expected exactly one follow-up answer, got %d", len(fa.answers))
	}
	if fa.answers[0].ChatID != 100 || fa.answers[0].MessageID != 42 {
		t.Fatalf("follow-up addressed the wrong message: %+v", fa.answers[0])
	}
}

func TestRunIgnoresForeignSenders(t *testing.T) {
	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus}
	fa.onSend = func(chatID int64, _ string) {
		// A chatty human happens to quote the phrase; only the configured
		// bot id may acknowledge.
		time.Sleep(10 * time.Millisecond)
		bus.Publish(kit.Message{ID: 1, ChatID: chatID, FromID: 5555, Text: "New FedBan"})
	}

	p := testParams()
	p.FromBots = []int64{9000}
	b := NewBroadcaster(fa, bus, time.Millisecond, logx.Nop())
	out := b.Run(context.Background(), []storage.Federation{{ID: 100, Name: "Fed A"}}, p)

	if out[0].Status != StatusTimedOut {
		t.Fatalf("expected timeout, got %+v", out[0])
	}
}

func TestRunContextCancelMarksRemaining(t *testing.T) {
	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBroadcaster(fa, bus, time.Hour, logx.Nop()) // limiter would block forever
	out := b.Run(ctx, []storage.Federation{
		{ID: 100, Name: "Fed A"},
		{ID: 200, Name: "Fed B"},
	}, testParams())

	if len(out) != 2 {
		t.Fatalf("expected outcomes for all targets, got %d", len(out))
	}
	for _, o := range out[1:] {
		if o.Status != StatusErrored {
			t.Fatalf("remaining target not errored: %+v", o)
		}
	}
	if got := fa.sentTo(200); len(got) != 0 {
		t.Fatalf("no command should reach Fed B after cancel, got %v", got)
	}
}
