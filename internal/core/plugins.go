package core

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"fedbot/internal/chatwatch"
	"fedbot/internal/config"
	"fedbot/internal/scheduler"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// ConfigurablePlugin receives its raw config blob on start and on every
// reload where the blob changed.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

type PluginDeps struct {
	Log       logx.Logger
	Adapter   kit.Adapter
	Config    *config.Manager
	Store     storage.Store
	Watch     *chatwatch.Bus
	Scheduler *scheduler.Service
	Owners    []int64
}

// PluginManager reconciles registered plugins against the
// plugins.<name>.enabled config section: enables, disables, and re-applies
// config blobs as the config changes at runtime.
type PluginManager struct {
	mu sync.Mutex

	log  logx.Logger
	cfgm *config.Manager
	deps PluginDeps
	reg  map[string]Plugin
	run  map[string]bool
	// last config blob hash per running plugin, to skip redundant
	// OnConfigChange calls
	lastRawHash map[string]uint64

	baseCtx    context.Context
	baseCancel context.CancelFunc
	bound      bool

	pcancel map[string]context.CancelFunc

	cmdm *CommandManager
}

func NewPluginManager(log logx.Logger, cfgm *config.Manager, deps PluginDeps, cmdm *CommandManager) *PluginManager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &PluginManager{
		log:         log,
		cfgm:        cfgm,
		deps:        deps,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		lastRawHash: map[string]uint64{},
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		pcancel:     map[string]context.CancelFunc{},
		cmdm:        cmdm,
	}
}

// BindContext bridges appCtx into the long-lived plugin base context so a
// call-scoped ctx passed to StartAll cannot kill running plugins. First
// bind wins.
func (pm *PluginManager) BindContext(appCtx context.Context) {
	pm.mu.Lock()
	if pm.bound || appCtx == nil {
		pm.mu.Unlock()
		return
	}
	pm.bound = true
	baseCancel := pm.baseCancel
	pm.mu.Unlock()

	go func() {
		<-appCtx.Done()
		baseCancel()
	}()
}

func (pm *PluginManager) Register(p ...Plugin) {
	pm.mu.Lock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
	pm.mu.Unlock()
}

func (pm *PluginManager) StartAll(ctx context.Context) error {
	pm.BindContext(ctx)
	return pm.reconcile(pm.cfgm.Get())
}

func (pm *PluginManager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()

	for _, name := range names {
		pm.stopOne(ctx, name)
	}
	pm.refreshRegistry(pm.cfgm.Get())
}

func (pm *PluginManager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	pm.BindContext(ctx)
	_ = pm.reconcile(cfg)
}

// SetOwners updates the owner list plugins observe after a hot-reload.
func (pm *PluginManager) SetOwners(ids []int64) {
	cp := append([]int64(nil), ids...)
	pm.mu.Lock()
	pm.deps.Owners = cp
	pm.mu.Unlock()
}

func (pm *PluginManager) stopOne(stopCtx context.Context, name string) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()

	if !running || p == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		_ = pm.safeCall("plugin.stop."+name, func() error { return p.Stop(stopCtx) })
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(stopCtx.Err()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pcancel, name)
	delete(pm.lastRawHash, name)
	pm.mu.Unlock()

	pm.log.Info("plugin stopped", logx.String("plugin", name))
}

func (pm *PluginManager) reconcile(cfg *config.Config) error {
	type op struct {
		name    string
		p       Plugin
		raw     config.PluginConfigRaw
		enabled bool
		run     bool
	}
	pm.mu.Lock()
	ops := make([]op, 0, len(pm.reg))
	for name, p := range pm.reg {
		raw, ok := cfg.Plugins[name]
		ops = append(ops, op{name: name, p: p, raw: raw, enabled: ok && raw.Enabled, run: pm.run[name]})
	}
	deps := pm.deps
	pm.mu.Unlock()

	const callTimeout = 10 * time.Second

	for _, o := range ops {
		switch {
		case o.enabled && !o.run:
			pctx, cancel := context.WithCancel(pm.baseCtx)

			ictx, icancel := context.WithTimeout(pctx, callTimeout)
			err := pm.safeCall("plugin.init."+o.name, func() error { return o.p.Init(ictx, deps) })
			icancel()
			if err != nil {
				pm.log.Error("plugin init failed", logx.String("plugin", o.name), logx.Err(err))
				cancel()
				continue
			}

			if cp, ok := o.p.(ConfigurablePlugin); ok {
				cctx, ccancel := context.WithTimeout(pctx, callTimeout)
				if err := pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) }); err != nil {
					ccancel()
					pm.log.Error("plugin config apply failed", logx.String("plugin", o.name), logx.Err(err))
					cancel()
					continue
				}
				ccancel()
			}

			if err := pm.safeCall("plugin.start."+o.name, func() error { return o.p.Start(pctx) }); err != nil {
				pm.log.Error("plugin start failed", logx.String("plugin", o.name), logx.Err(err))
				cancel()
				continue
			}

			pm.mu.Lock()
			pm.run[o.name] = true
			pm.pcancel[o.name] = cancel
			pm.lastRawHash[o.name] = hashRaw(o.raw.Config)
			pm.mu.Unlock()

			pm.log.Info("plugin started", logx.String("plugin", o.name))

		case !o.enabled && o.run:
			stopCtx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
			pm.stopOne(stopCtx, o.name)
			cancel()

		case o.enabled && o.run:
			cp, ok := o.p.(ConfigurablePlugin)
			if !ok {
				break
			}
			newHash := hashRaw(o.raw.Config)
			pm.mu.Lock()
			oldHash := pm.lastRawHash[o.name]
			pm.lastRawHash[o.name] = newHash
			pm.mu.Unlock()
			if newHash == oldHash {
				break
			}
			cctx, ccancel := context.WithTimeout(pm.baseCtx, callTimeout)
			if err := pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) }); err != nil {
				pm.log.Warn("plugin config apply failed", logx.String("plugin", o.name), logx.Err(err))
			}
			ccancel()
		}
	}

	pm.refreshRegistry(cfg)
	return nil
}

func (pm *PluginManager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				logx.String("call", label),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

func (pm *PluginManager) refreshRegistry(cfg *config.Config) {
	pm.mu.Lock()
	var cmds []Command
	for name, p := range pm.reg {
		if !pm.run[name] {
			continue
		}
		raw, ok := cfg.Plugins[name]
		if !ok || !raw.Enabled {
			continue
		}
		for _, c := range p.Commands() {
			c.PluginName = name
			cmds = append(cmds, c)
		}
	}
	pm.mu.Unlock()

	pm.cmdm.SetRegistry(cmds)
}

func hashRaw(b json.RawMessage) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
