package chatwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	kit "fedbot/internal/transport"
)

// Bus fans incoming chat messages out to registered watchers.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Watchers receive on buffered channels; slow watchers may drop messages.
//
// It serves three consumers: broadcast acknowledgment waits, interactive
// confirmation waits, and the forwarded-message monitor.
type Bus struct {
	mu       sync.RWMutex
	watchers map[uint64]*watcher
	seq      atomic.Uint64
}

type watcher struct {
	chatID int64 // 0 matches any chat
	match  func(kit.Message) bool
	ch     chan kit.Message
}

func New() *Bus {
	return &Bus{watchers: map[uint64]*watcher{}}
}

// Publish offers m to every watcher whose chat and predicate match.
// Never blocks; a full watcher channel drops the message for that watcher.
func (b *Bus) Publish(m kit.Message) {
	b.mu.RLock()
	ws := make([]*watcher, 0, len(b.watchers))
	for _, w := range b.watchers {
		ws = append(ws, w)
	}
	b.mu.RUnlock()

	for _, w := range ws {
		if w.chatID != 0 && w.chatID != m.ChatID {
			continue
		}
		if w.match != nil && !w.match(m) {
			continue
		}
		select {
		case w.ch <- m:
		default:
		}
	}
}

// Watch registers a persistent watcher. The returned unsubscribe func is
// idempotent and stops delivery; the channel is left open, so consumers
// must select on their own cancellation signal rather than channel close.
func (b *Bus) Watch(chatID int64, match func(kit.Message) bool, buffer int) (<-chan kit.Message, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	w := &watcher{chatID: chatID, match: match, ch: make(chan kit.Message, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.watchers[id] = w
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.watchers, id)
			b.mu.Unlock()
		})
	}
	return w.ch, unsub
}

// WaitFor blocks until a message in chatID satisfying match arrives, the
// timeout elapses, or ctx is done. The boolean reports whether a message
// was received.
func (b *Bus) WaitFor(ctx context.Context, chatID int64, match func(kit.Message) bool, timeout time.Duration) (kit.Message, bool) {
	ch, unsub := b.Watch(chatID, match, 4)
	defer unsub()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case m := <-ch:
		return m, true
	case <-t.C:
		return kit.Message{}, false
	case <-ctx.Done():
		return kit.Message{}, false
	}
}
