// Package orchestrator implements the top-level object that constructs
// every other subsystem, brings providers up in stages, runs the 100ms
// monitoring loop that drives automatic provider restarts, and tears
// everything down in the reverse dependency order on shutdown.
//
// The staged-startup/staged-shutdown shape — bring the core up first,
// bring the noisy/best-effort bits up last, tear down in exactly the
// reverse order — generalizes from a fixed hardware bring-up sequence to
// a configurable set of providers plus an optional BT tree.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/bttree"
	"github.com/FEASTorg/anolis-sub001/internal/config"
	"github.com/FEASTorg/anolis-sub001/internal/devregistry"
	"github.com/FEASTorg/anolis-sub001/internal/events"
	"github.com/FEASTorg/anolis-sub001/internal/logging"
	"github.com/FEASTorg/anolis-sub001/internal/metrics"
	"github.com/FEASTorg/anolis-sub001/internal/modemgr"
	"github.com/FEASTorg/anolis-sub001/internal/paramstore"
	"github.com/FEASTorg/anolis-sub001/internal/provider"
	"github.com/FEASTorg/anolis-sub001/internal/router"
	"github.com/FEASTorg/anolis-sub001/internal/statecache"
	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/supervisor"
	"github.com/FEASTorg/anolis-sub001/internal/value"
)

// monitorInterval is the main loop's fixed tick rate.
const monitorInterval = 100 * time.Millisecond

// Orchestrator owns the whole live runtime.
type Orchestrator struct {
	cfg *config.Config
	log logging.Logger

	Modes      *modemgr.Manager
	Params     *paramstore.Store
	Devices    *devregistry.Registry
	Handles    *provider.Registry
	Cache      *statecache.Cache
	Router     *router.Router
	Supervisor *supervisor.Supervisor
	Emitter    *events.Emitter
	Metrics    *metrics.Metrics
	Engine     *bttree.Engine // nil if no tree was loaded

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs every subsystem and registers the parameters/providers
// named in cfg, but starts nothing yet — that's Start's job.
func New(cfg *config.Config, log logging.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logging.New(nil)
	}

	initialMode := modemgr.ModeIdle
	if cfg.Runtime.Mode != "" {
		m, err := modemgr.ParseMode(cfg.Runtime.Mode)
		if err != nil {
			return nil, err
		}
		initialMode = m
	}

	o := &Orchestrator{
		cfg:        cfg,
		log:        log,
		Modes:      modemgr.New(initialMode),
		Params:     paramstore.New(),
		Devices:    devregistry.New(),
		Handles:    provider.NewRegistry(),
		Emitter:    events.New(),
		Supervisor: supervisor.New(),
		Metrics:    metrics.New(namespaceOrDefault(cfg.MetricsNamespace)),
		stopCh:     make(chan struct{}),
	}

	pollInterval := time.Duration(cfg.Polling.IntervalMS) * time.Millisecond
	o.Cache = statecache.New(o.Devices, o.Handles, o.Emitter, pollInterval, nil)
	o.Router = router.New(o.Devices, o.Handles, o.Modes, o.Cache)

	if cfg.Automation.ManualGatingPolicy == string(router.GatingOverride) {
		o.Router.SetGatingPolicy(router.GatingOverride)
	}

	if err := registerParameters(o.Params, cfg.Automation.Parameters); err != nil {
		return nil, err
	}

	for _, p := range cfg.Providers {
		o.Supervisor.Register(p.ID, supervisor.Config{
			Enabled:     p.RestartPolicy.Enabled,
			MaxAttempts: p.RestartPolicy.MaxAttempts,
			BackoffMS:   p.RestartPolicy.BackoffMS,
			TimeoutMS:   p.TimeoutMS,
		})
	}

	o.Modes.OnChange(func(from, to modemgr.Mode, at time.Time) {
		o.Metrics.ModeTransitions.WithLabelValues(from.String(), to.String()).Inc()
		o.Emitter.PublishModeChange(events.ModeChange{From: from.String(), To: to.String(), Timestamp: at})
	})
	o.Params.OnChange(func(name string, v value.Value) {
		o.Emitter.PublishParameterChange(events.ParameterChange{Name: name, Value: v, Timestamp: time.Now()})
	})

	return o, nil
}

func namespaceOrDefault(ns string) string {
	if ns == "" {
		return "anolis"
	}
	return ns
}

func registerParameters(store *paramstore.Store, defs []config.Parameter) error {
	for _, d := range defs {
		kind, ok := value.KindFromString(d.Type)
		if !ok {
			return statuscode.New(statuscode.InvalidArgument, "orchestrator.registerParameters", "unknown parameter type: "+d.Type)
		}
		def := paramstore.Definition{Name: d.Name, Type: kind, Default: literalToValue(kind, d.Default)}
		if d.Min != nil && d.Max != nil {
			def.HasBounds = true
			def.Min, def.Max = *d.Min, *d.Max
		}
		for _, a := range d.Allowed {
			def.Allowed = append(def.Allowed, literalToValue(kind, a))
		}
		if err := store.Define(def); err != nil {
			return err
		}
	}
	return nil
}

// literalToValue converts a YAML-decoded scalar (float64/int/string/bool)
// to a Value of the declared kind.
func literalToValue(kind value.Kind, v any) value.Value {
	switch kind {
	case value.Double:
		switch n := v.(type) {
		case float64:
			return value.Double(n)
		case int:
			return value.Double(float64(n))
		}
	case value.Int64:
		switch n := v.(type) {
		case int:
			return value.Int64(int64(n))
		case float64:
			return value.Int64(int64(n))
		}
	case value.Bool:
		if b, ok := v.(bool); ok {
			return value.Bool(b)
		}
	case value.String:
		if s, ok := v.(string); ok {
			return value.String(s)
		}
	}
	return value.Declared(kind)
}

// LoadTree installs a behavior tree to run while the runtime is in AUTO.
// Must be called before Start; a nil Engine means the BT Runtime simply
// never ticks.
func (o *Orchestrator) LoadTree(raw []byte, rateHz int) error {
	root, err := bttree.LoadTree(raw)
	if err != nil {
		return err
	}
	bb := bttree.NewBlackboard(o.Cache, o.Devices, o.Params, o.Router, o.Emitter)
	o.Engine = bttree.NewEngine(root, bb, o.Modes, o.Emitter, rateHz)
	return nil
}

// Start brings the runtime up in stages: core services are already live
// from New; providers are started and their devices discovered; every
// discovered device is primed with one poll_once before the scheduled
// poller and BT engine (the "automation" stage) start. The HTTP
// front-end and telemetry exporter are out of this module's scope;
// their stage is represented here only by a log line marking where a
// real implementation would plug in.
func (o *Orchestrator) Start(ctx context.Context) error {
	for _, p := range o.cfg.Providers {
		if err := o.startProvider(ctx, p); err != nil {
			o.log.WarnCtx(ctx, "provider failed to start", "provider_id", p.ID, "error", err)
			o.Supervisor.RecordCrash(p.ID)
			continue
		}
	}

	for _, key := range o.Devices.AllKeys() {
		o.Cache.PollOnce(key)
	}

	o.Cache.Start(ctx)
	if o.Engine != nil {
		o.Engine.Start(ctx)
	}

	o.log.InfoCtx(ctx, "http front-end stage skipped (out of scope)")
	o.log.InfoCtx(ctx, "telemetry exporter stage skipped (out of scope)")

	o.wg.Add(1)
	go o.monitorLoop(ctx)

	return nil
}

func (o *Orchestrator) startProvider(ctx context.Context, p config.Provider) error {
	timeout := time.Duration(p.TimeoutMS) * time.Millisecond
	transport := &provider.SubprocessTransport{Command: p.Command, Args: p.Args}
	h := provider.NewHandle(p.ID, transport, timeout, nil)
	if err := h.Start(ctx); err != nil {
		return err
	}
	o.Handles.Add(h)

	if err := o.Devices.DiscoverProvider(p.ID, h); err != nil {
		return err
	}
	o.Supervisor.RecordSuccess(p.ID)
	return nil
}

// monitorLoop is the 100ms main loop: it asks the Supervisor whether any
// provider is due for a restart attempt and, if so, sequences one.
func (o *Orchestrator) monitorLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			for _, p := range o.cfg.Providers {
				if h, ok := o.Handles.Get(p.ID); ok && !h.IsAvailable() {
					if o.Supervisor.MarkCrashDetected(p.ID) {
						o.Supervisor.RecordCrash(p.ID)
					}
				}
				if o.Supervisor.ShouldRestart(p.ID) {
					o.restartProvider(ctx, p)
				}
			}
		}
	}
}

// restartProvider sequences one restart attempt: shut the old handle
// down, clear its devices, spawn and start a new handle, and on success
// rediscover devices and prime a poll.
func (o *Orchestrator) restartProvider(ctx context.Context, p config.Provider) {
	o.Metrics.ProviderRestarts.WithLabelValues(p.ID).Inc()

	if old, ok := o.Handles.Get(p.ID); ok {
		_ = old.Shutdown()
		o.Handles.Remove(p.ID)
	}
	o.Devices.ClearProviderDevices(p.ID)

	if err := o.startProvider(ctx, p); err != nil {
		o.log.WarnCtx(ctx, "provider restart failed", "provider_id", p.ID, "error", err)
		o.Supervisor.RecordCrash(p.ID)
		return
	}
	o.Supervisor.RecordSuccess(p.ID)
	o.Supervisor.ClearCrashDetected(p.ID)

	for _, d := range o.Devices.DevicesForProvider(p.ID) {
		o.Cache.PollOnce(devregistry.Key{ProviderID: d.ProviderID, DeviceID: d.DeviceID})
	}
}

// Shutdown tears the runtime down in the reverse order of Start: BT
// engine, then (stubbed) HTTP front-end, then (stubbed) telemetry, then
// cache polling, then providers.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()

	if o.Engine != nil {
		o.Engine.Stop()
	}
	o.log.InfoCtx(ctx, "http front-end stage skipped during shutdown (out of scope)")
	o.log.InfoCtx(ctx, "telemetry exporter stage skipped during shutdown (out of scope)")
	o.Cache.Stop()

	for _, id := range o.Handles.IDs() {
		if h, ok := o.Handles.Get(id); ok {
			_ = h.Shutdown()
		}
	}
}

// ProviderStatus is one provider's entry in a Status snapshot.
type ProviderStatus struct {
	ID             string
	Available      bool
	CircuitOpen    bool
	AttemptCount   int
	LastError      string
	LastStatusCode statuscode.Code
}

// Status is a point-in-time runtime status snapshot: a single
// read-only view of everything an operator or HTTP front-end would
// want to poll.
type Status struct {
	Mode      string
	BTHealth  string
	Providers []ProviderStatus
}

// Status returns a point-in-time snapshot of the runtime.
func (o *Orchestrator) Status() Status {
	s := Status{Mode: o.Modes.Current().String(), BTHealth: bttree.BTIdle.String()}
	if o.Engine != nil {
		s.BTHealth = o.Engine.GetHealth().String()
	}
	for _, p := range o.cfg.Providers {
		h, ok := o.Handles.Get(p.ID)
		ps := ProviderStatus{ID: p.ID, CircuitOpen: o.Supervisor.IsCircuitOpen(p.ID), AttemptCount: o.Supervisor.GetAttemptCount(p.ID)}
		if ok {
			ps.Available = h.IsAvailable()
			ps.LastError = h.LastError()
			ps.LastStatusCode = h.LastStatusCode()
		}
		s.Providers = append(s.Providers, ps)
	}
	return s
}
