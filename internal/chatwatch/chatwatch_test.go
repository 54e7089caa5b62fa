package chatwatch

import (
	"context"
	"strings"
	"testing"
	"time"

	kit "fedbot/internal/transport"
)

func TestWaitForMatch(t *testing.T) {
	b := New()

	done := make(chan kit.Message, 1)
	go func() {
		m, ok := b.WaitFor(context.Background(), 100, func(m kit.Message) bool {
			return strings.Contains(m.Text, "New FedBan")
		}, 2*time.Second)
		if !ok {
			t.Error("expected a match")
		}
		done <- m
	}()

	// Give the waiter a moment to register.
	time.Sleep(20 * time.Millisecond)
	b.Publish(kit.Message{ChatID: 200, Text: "New FedBan"}) // wrong chat
	b.Publish(kit.Message{ChatID: 100, Text: "hello"})      // wrong text
	b.Publish(kit.Message{ChatID: 100, Text: "New FedBan in Fed A"})

	select {
	case m := <-done:
		if m.ChatID != 100 {
			t.Fatalf("unexpected chat id %d", m.ChatID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never returned")
	}
}

func TestWaitForTimeout(t *testing.T) {
	b := New()
	start := time.Now()
	_, ok := b.WaitFor(context.Background(), 1, nil, 50*time.Millisecond)
	if ok {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("returned before timeout")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := New()
	_, unsub := b.Watch(0, nil, 1)
	unsub()
	unsub() // must not panic
	b.Publish(kit.Message{ChatID: 1, Text: "x"})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	ch, unsub := b.Watch(1, nil, 4)
	unsub()
	b.Publish(kit.Message{ChatID: 1, Text: "late"})

	select {
	case m := <-ch:
		t.Fatalf("unsubscribed watcher received %+v", m)
	default:
	}
}

func TestPublishDuringUnsubscribe(t *testing.T) {
	b := New()

	unsubs := make([]func(), 0, 64)
	for i := 0; i < 64; i++ {
		_, unsub := b.Watch(0, nil, 1)
		unsubs = append(unsubs, unsub)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			b.Publish(kit.Message{ChatID: 1, Text: "x"})
		}
	}()
	for _, unsub := range unsubs {
		unsub()
	}
	<-done
}

func TestPersistentWatcher(t *testing.T) {
	b := New()
	ch, unsub := b.Watch(42, func(m kit.Message) bool { return m.Forward != nil }, 4)
	defer unsub()

	b.Publish(kit.Message{ChatID: 42, Text: "plain"})
	b.Publish(kit.Message{ChatID: 42, Forward: &kit.Forward{FromID: 7}})

	select {
	case m := <-ch:
		if m.Forward == nil || m.Forward.FromID != 7 {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive forwarded message")
	}
}
