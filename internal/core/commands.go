package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"fedbot/internal/chatwatch"
	"fedbot/internal/config"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessApprover admits the owner and everyone on the approver
	// allow-list.
	AccessApprover
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

type Request struct {
	Update  kit.Update
	Msg     *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string

	Args      []string // positionals, flags stripped
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter kit.Adapter
	Config  *config.Config
	Log     logx.Logger
	Store   storage.Store
	Watch   *chatwatch.Bus
	Owners  []int64
}

func (r *Request) IsOwner() bool { return isOwner(r.FromID, r.Owners) }

// CommandManager routes incoming updates to registered command handlers
// through a bounded worker pool. Every message update is also published on
// the chatwatch bus before routing, so acknowledgment and confirmation
// waits observe traffic that is not addressed to the bot at all.
type CommandManager struct {
	mu     sync.RWMutex
	byName map[string]*Command
	order  []string
	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *config.Manager
	store   storage.Store
	watch   *chatwatch.Bus

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *config.Manager, store storage.Store, watch *chatwatch.Bus, owners []int64) *CommandManager {
	return &CommandManager{
		byName:  map[string]*Command{},
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		store:   store,
		watch:   watch,
		jobs:    make(chan func(), 256),
	}
}

// SetOwners updates the owner list. Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	cp := append([]int64(nil), m.owners...)
	m.mu.RUnlock()
	return cp
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show help",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			_, _ = req.Adapter.SendText(ctx, req.Chat, m.helpText(req.Args), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return nil
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	var order []string
	for i := range cmds {
		c := &cmds[i]
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[name]; !dup {
			order = append(order, name)
		}
		byName[name] = c
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			byName[a] = c
		}
	}

	m.mu.Lock()
	m.byName = byName
	m.order = order
	m.mu.Unlock()
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() { closeOnce.Do(func() { close(m.jobs) }) }

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					if job != nil {
						job()
					}
				}
			}
		}()
	}

	defer func() {
		closeJobs()
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message

	// Publish first: watchers see every message, command or not.
	m.watch.Publish(*msg)

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}

	m.mu.RLock()
	cmd, ok := m.byName[word]
	m.mu.RUnlock()
	if !ok {
		// Slash commands addressed to other bots flow through group chats
		// constantly; stay silent.
		m.log.Debug("unknown command", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	pos, flags, bools := parseFlags(parts[1:])
	m.enqueue(root, up, *cmd, pos, parts[1:], flags, bools)
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, cmd Command, args, raw []string, flags map[string]string, bools map[string]bool) {
	msg := up.Message
	owners := m.ownersSnapshot()

	if !m.permitted(root, cmd.Access, msg.FromID, owners) {
		m.log.Debug("access denied", logx.String("cmd", cmd.Name), logx.Int64("from_id", msg.FromID))
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)

	req := &Request{
		Update:    up,
		Msg:       msg,
		Chat:      kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:    msg.FromID,
		Command:   cmd.Name,
		Args:      args,
		RawArgs:   raw,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Adapter:   m.adapter,
		Config:    m.cfgm.Get(),
		Log:       reqLog,
		Store:     m.store,
		Watch:     m.watch,
		Owners:    owners,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func (m *CommandManager) permitted(ctx context.Context, access Access, fromID int64, owners []int64) bool {
	switch access {
	case AccessEveryone:
		return true
	case AccessOwnerOnly:
		return isOwner(fromID, owners)
	case AccessApprover:
		if isOwner(fromID, owners) {
			return true
		}
		ok, err := m.store.IsApprover(ctx, fromID)
		if err != nil {
			m.log.Warn("approver lookup failed", logx.Err(err), logx.Int64("from_id", fromID))
			return false
		}
		return ok
	}
	return false
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
