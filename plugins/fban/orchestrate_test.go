package fban

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fedbot/internal/chatwatch"
	"fedbot/internal/config"
	"fedbot/internal/core"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
)

const (
	ownerID  = int64(1)
	logChat  = int64(-100900)
	sudoChat = int64(-100901)
	homeChat = int64(-100500)
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sentMsg
	edits    []sentMsg
	deletes  []kit.MessageRef
	forwards []kit.ChatTarget
	nextID   int

	bus    *chatwatch.Bus
	onSend func(chatID int64, text string)
}

type sentMsg struct {
	ChatID int64
	MsgID  int
	Text   string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.sent = append(f.sent, sentMsg{ChatID: to.ChatID, MsgID: id, Text: text})
	f.mu.Unlock()
	if f.onSend != nil {
		go f.onSend(to.ChatID, text)
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: id}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	f.edits = append(f.edits, sentMsg{ChatID: ref.ChatID, MsgID: ref.MessageID, Text: text})
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) DeleteMessage(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, ref)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) ForwardMessage(_ context.Context, to kit.ChatTarget, _ kit.MessageRef) (kit.MessageRef, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.forwards = append(f.forwards, to)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: id}, nil
}

func (f *fakeAdapter) AnswerPrompt(context.Context, kit.MessageRef, string) error { return nil }

func (f *fakeAdapter) ResolveUser(context.Context, string) (int64, string, error) {
	return 0, "", nil
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

func (f *fakeAdapter) lastEdit(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.edits) - 1; i >= 0; i-- {
		if f.edits[i].ChatID == chatID {
			return f.edits[i].Text
		}
	}
	return ""
}

type fixture struct {
	plugin  *Plugin
	adapter *fakeAdapter
	bus     *chatwatch.Bus
	store   storage.Store
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, rawCfg string) *fixture {
	t.Helper()

	bus := chatwatch.New()
	fa := &fakeAdapter{bus: bus}

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "fban.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfgm := config.NewManager("")
	cfgm.Commit(&config.Config{})

	p := New()
	deps := core.PluginDeps{
		Log:     logx.Nop(),
		Adapter: fa,
		Config:  cfgm,
		Store:   st,
		Watch:   bus,
		Owners:  []int64{ownerID},
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.OnConfigChange(context.Background(), []byte(rawCfg)); err != nil {
		t.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Stop(context.Background())
		cancel()
	})

	return &fixture{plugin: p, adapter: fa, bus: bus, store: st, cancel: cancel}
}

func testConfig() string {
	return `{
		"log_chat": -100900,
		"sudo_chat": -100901,
		"sudo_trigger": "!",
		"per_target_timeout": "150ms",
		"send_interval": "1ms",
		"confirm_timeout": "200ms",
		"auto_delete": "1h"
	}`
}

func (fx *fixture) request(msg *kit.Message, args []string) *core.Request {
	return &core.Request{
		Msg:     msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: "ffbanp",
		Args:    args,
		Adapter: fx.adapter,
		Log:     logx.Nop(),
		Store:   fx.store,
		Watch:   fx.bus,
		Owners:  []int64{ownerID},
	}
}

func ownerMsg(text string) *kit.Message {
	return &kit.Message{ID: 1, ChatID: homeChat, ChatTitle: "Control Room", FromID: ownerID, FromName: "Owner", Text: text, IsGroup: true}
}

func TestEmptyRegistryShortCircuits(t *testing.T) {
	fx := newFixture(t, testConfig())

	req := fx.request(ownerMsg("/unfban 777 mistake"), []string{"777", "mistake"})
	if err := fx.plugin.cmdUnFBan(context.Background(), req); err != nil {
		t.Fatalf("unfban: %v", err)
	}

	if got := fx.adapter.lastEdit(homeChat); got != "You Don't have any feds connected!" {
		t.Fatalf("expected empty-registry message, got %q", got)
	}
	if got := fx.adapter.sentTo(logChat); len(got) != 0 {
		t.Fatalf("nothing should reach the log channel, got %v", got)
	}
}

func TestProtectedTargetRejected(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 100, Name: "Fed A"}); err != nil {
		t.Fatal(err)
	}

	req := fx.request(ownerMsg("/unfban 1 oops"), []string{"1", "oops"})
	if err := fx.plugin.cmdUnFBan(ctx, req); err != nil {
		t.Fatalf("unfban: %v", err)
	}

	if got := fx.adapter.lastEdit(homeChat); got != "Cannot FBan Owner/Sudo users." {
		t.Fatalf("expected guard message, got %q", got)
	}
	if got := fx.adapter.sentTo(100); len(got) != 0 {
		t.Fatalf("no command may reach feds for a protected target, got %v", got)
	}
}

func TestConfirmDeclineAborts(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 100, Name: "Fed A"}); err != nil {
		t.Fatal(err)
	}

	fx.adapter.onSend = func(chatID int64, text string) {
		if chatID == homeChat && strings.Contains(text, "Reply with 'y'") {
			time.Sleep(10 * time.Millisecond)
			fx.bus.Publish(kit.Message{ID: 50, ChatID: homeChat, FromID: ownerID, Text: "n"})
		}
	}

	req := fx.request(ownerMsg("/ffbanp 777 spam"), []string{"777", "spam"})
	if err := fx.plugin.cmdFBan(ctx, req); err != nil {
		t.Fatalf("ffbanp: %v", err)
	}

	if got := fx.adapter.lastEdit(homeChat); got != "FBan cancelled." {
		t.Fatalf("expected cancellation, got %q", got)
	}
	if got := fx.adapter.sentTo(100); len(got) != 0 {
		t.Fatalf("decline must prevent broadcast, got %v", got)
	}
}

func TestConfirmIgnoresForeignReply(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 100, Name: "Fed A"}); err != nil {
		t.Fatal(err)
	}

	fx.adapter.onSend = func(chatID int64, text string) {
		if chatID == homeChat && strings.Contains(text, "Reply with 'y'") {
			time.Sleep(10 * time.Millisecond)
			fx.bus.Publish(kit.Message{ID: 53, ChatID: homeChat, FromID: 9999, Text: "y"})
		}
	}

	req := fx.request(ownerMsg("/ffbanp 777 spam"), []string{"777", "spam"})
	if err := fx.plugin.cmdFBan(ctx, req); err != nil {
		t.Fatalf("ffbanp: %v", err)
	}

	if got := fx.adapter.lastEdit(homeChat); got != "FBan cancelled." {
		t.Fatalf("a bystander's reply must not confirm, got %q", got)
	}
	if got := fx.adapter.sentTo(100); len(got) != 0 {
		t.Fatalf("foreign confirmation must not trigger a broadcast, got %v", got)
	}
}

func TestConfirmTimeoutAborts(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 100, Name: "Fed A"}); err != nil {
		t.Fatal(err)
	}

	req := fx.request(ownerMsg("/ffbanp 777 spam"), []string{"777", "spam"})
	if err := fx.plugin.cmdFBan(ctx, req); err != nil {
		t.Fatalf("ffbanp: %v", err)
	}

	if got := fx.adapter.lastEdit(homeChat); got != "FBan cancelled." {
		t.Fatalf("expected cancellation on timeout, got %q", got)
	}
	if got := fx.adapter.sentTo(100); len(got) != 0 {
		t.Fatalf("timeout must prevent broadcast, got %v", got)
	}
}

func TestFullBanFlow(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 100, Name: "Fed A"}); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.UpsertFederation(ctx, storage.Federation{ID: 200, Name: "Fed B"}); err != nil {
		t.Fatal(err)
	}

	fx.adapter.onSend = func(chatID int64, text string) {
		time.Sleep(10 * time.Millisecond)
		switch {
		case chatID == homeChat && strings.Contains(text, "Reply with 'y'"):
			fx.bus.Publish(kit.Message{ID: 51, ChatID: homeChat, FromID: ownerID, Text: "y"})
		case chatID == 100 && strings.HasPrefix(text, "/fban"):
			fx.bus.Publish(kit.Message{ID: 52, ChatID: 100, Text: "New FedBan"})
		}
		// Fed B stays silent.
	}

	req := fx.request(ownerMsg("/ffbanp 777 spam"), []string{"777", "spam"})
	if err := fx.plugin.cmdFBan(ctx, req); err != nil {
		t.Fatalf("ffbanp: %v", err)
	}

	for _, chat := range []int64{100, 200} {
		got := fx.adapter.sentTo(chat)
		if len(got) != 1 || !strings.HasPrefix(got[0], "/fban ") {
			t.Fatalf("fed %d: %v", chat, got)
		}
		if !strings.Contains(got[0], "tg://user?id=777") {
			t.Fatalf("fed %d command missing user link: %q", chat, got[0])
		}
	}

	logs := fx.adapter.sentTo(logChat)
	if len(logs) != 1 {
		t.Fatalf("expected one report in the log channel, got %v", logs)
	}
	report := logs[0]
	for _, want := range []string{"❯❯❯ <b>FBanned</b>", "• Fed B", "Failed in", "Control Room"} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "<b>By</b>") {
		t.Fatalf("owner-initiated report must omit the By line:\n%s", report)
	}

	if got := fx.adapter.lastEdit(homeChat); got != report {
		t.Fatalf("progress message not edited with the report:\n%q", got)
	}

	sudo := fx.adapter.sentTo(sudoChat)
	if len(sudo) != 1 || !strings.HasPrefix(sudo[0], "!fban ") {
		t.Fatalf("sudo relay: %v", sudo)
	}
}

func TestAutoBanRejectsChannelForward(t *testing.T) {
	cfg := strings.Replace(testConfig(), `"log_chat": -100900,`, `"log_chat": -100900, "monitor_chat": -100700,`, 1)
	fx := newFixture(t, cfg)

	fx.bus.Publish(kit.Message{
		ID:      5,
		ChatID:  -100700,
		FromID:  ownerID,
		Forward: &kit.Forward{ChannelID: -100123},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, s := range fx.adapter.sentTo(-100700) {
			if strings.Contains(s, "channel") {
				if got := fx.adapter.sentTo(100); len(got) != 0 {
					t.Fatalf("no ban may follow a channel forward, got %v", got)
				}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a channel-forward rejection in the monitor chat")
}
