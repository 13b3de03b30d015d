// Package config loads the runtime's YAML configuration file and
// optionally hot-reloads the safely-reloadable subset of it while
// running: yaml.v3 unmarshal into a plain struct, an fsnotify.Watcher on
// the config file's directory filtering to Write events on the exact
// path, reloading and re-validating before invoking registered
// callbacks.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/FEASTorg/anolis-sub001/internal/modemgr"
	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
)

// RestartPolicy is one provider's restart policy.
type RestartPolicy struct {
	Enabled     bool    `yaml:"enabled"`
	MaxAttempts int     `yaml:"max_attempts"`
	BackoffMS   []int64 `yaml:"backoff_ms"`
}

// Provider describes one provider subprocess to launch.
type Provider struct {
	ID            string        `yaml:"id"`
	Command       string        `yaml:"command"`
	Args          []string      `yaml:"args"`
	TimeoutMS     int64         `yaml:"timeout_ms"`
	RestartPolicy RestartPolicy `yaml:"restart_policy"`
}

// Parameter describes one Parameter Manager definition loaded from
// config.
type Parameter struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Default any      `yaml:"default"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Allowed []any    `yaml:"allowed,omitempty"`
}

// Automation is the "automation" config block: whether a behavior tree
// runs at all, which file to load, how fast to tick it, and the runtime-
// wide policy governing manual calls made while AUTO.
type Automation struct {
	Enabled            bool        `yaml:"enabled"`
	BehaviorTree       string      `yaml:"behavior_tree"`
	TickRateHz         int         `yaml:"tick_rate_hz"`
	ManualGatingPolicy string      `yaml:"manual_gating_policy"`
	Parameters         []Parameter `yaml:"parameters"`
}

// Runtime is the "runtime" config block.
type Runtime struct {
	// Mode is the mode the runtime starts in: IDLE, MANUAL, AUTO, or
	// FAULT. Defaults to IDLE when left empty.
	Mode string `yaml:"mode"`
}

// Logging is the "logging" config block.
type Logging struct {
	// Level is the minimum level emitted by the runtime's logger: debug,
	// info, warn, or error. Defaults to info when left empty.
	Level string `yaml:"level"`
}

// Polling is the "polling" config block.
type Polling struct {
	IntervalMS int64 `yaml:"interval_ms"`
}

// Config is the complete on-disk runtime configuration.
type Config struct {
	Runtime          Runtime `yaml:"runtime"`
	Logging          Logging `yaml:"logging"`
	Polling          Polling `yaml:"polling"`
	MetricsNamespace string  `yaml:"metrics_namespace"`

	Providers  []Provider `yaml:"providers"`
	Automation Automation `yaml:"automation"`
}

// Load reads and parses path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, statuscode.Wrap(statuscode.Internal, "config.Load", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, statuscode.Wrap(statuscode.InvalidArgument, "config.Load", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the structural invariants a config must satisfy:
// provider ids unique, backoff schedule length matching max_attempts,
// polling interval non-negative (the State Cache clamps the floor
// itself, so Validate only rejects outright nonsense), runtime mode
// recognized, automation block internally consistent.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.ID == "" {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate", "provider missing id")
		}
		if seen[p.ID] {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate", "duplicate provider id: "+p.ID)
		}
		seen[p.ID] = true
		if p.RestartPolicy.Enabled && len(p.RestartPolicy.BackoffMS) != p.RestartPolicy.MaxAttempts {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate",
				fmt.Sprintf("provider %s: backoff_ms length (%d) must equal max_attempts (%d)",
					p.ID, len(p.RestartPolicy.BackoffMS), p.RestartPolicy.MaxAttempts))
		}
	}
	if cfg.Runtime.Mode != "" {
		if _, err := modemgr.ParseMode(cfg.Runtime.Mode); err != nil {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate", "runtime.mode: "+err.Error())
		}
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return statuscode.New(statuscode.InvalidArgument, "config.Validate", "logging.level must be one of debug, info, warn, error")
	}
	if cfg.Automation.Enabled {
		if cfg.Automation.BehaviorTree == "" {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate", "automation.behavior_tree is required when automation.enabled is true")
		}
		if cfg.Automation.TickRateHz < 1 || cfg.Automation.TickRateHz > 1000 {
			return statuscode.New(statuscode.InvalidArgument, "config.Validate", "automation.tick_rate_hz must be in [1,1000]")
		}
	}
	switch cfg.Automation.ManualGatingPolicy {
	case "", "BLOCK", "OVERRIDE":
	default:
		return statuscode.New(statuscode.InvalidArgument, "config.Validate", "automation.manual_gating_policy must be BLOCK or OVERRIDE")
	}
	if cfg.Polling.IntervalMS < 0 {
		return statuscode.New(statuscode.InvalidArgument, "config.Validate", "polling.interval_ms must be non-negative")
	}
	return nil
}

// ChangeFunc is invoked with the newly reloaded, validated config after
// every on-disk change. The receiver decides what to apply live;
// cmd/anolisd applies only the manual gating policy. Provider process
// definitions take effect only after a restart, and no diff between the
// old and new config is computed or logged.
type ChangeFunc func(cfg *Config)

// Watcher hot-reloads a config file, re-parsing and re-validating on
// every write and invoking registered callbacks with the result.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []ChangeFunc
}

// NewWatcher starts watching path's containing directory. Callers still
// get the first Load themselves; Watcher only handles changes after that.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, statuscode.Wrap(statuscode.Internal, "config.NewWatcher", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, statuscode.Wrap(statuscode.Internal, "config.NewWatcher", err)
	}
	return &Watcher{path: path, watcher: w}, nil
}

// OnChange registers a callback for every successfully reloaded config.
func (cw *Watcher) OnChange(fn ChangeFunc) {
	cw.mu.Lock()
	cw.callbacks = append(cw.callbacks, fn)
	cw.mu.Unlock()
}

// Run processes fsnotify events until stopCh is closed. Parse/validate
// errors are passed to onErr (if non-nil) and otherwise swallowed — a bad
// edit to the config file must
// never crash the runtime that is reading it.
func (cw *Watcher) Run(stopCh <-chan struct{}, onErr func(error)) {
	defer cw.watcher.Close()
	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != cw.path || ev.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			cfg, err := Load(cw.path)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			cw.mu.Lock()
			cbs := make([]ChangeFunc, len(cw.callbacks))
			copy(cbs, cw.callbacks)
			cw.mu.Unlock()
			for _, cb := range cbs {
				cb(cfg)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if onErr != nil {
				onErr(err)
			}
		}
	}
}
