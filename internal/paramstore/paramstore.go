// Package paramstore implements the runtime's parameter store: named,
// typed, bounded runtime-tunable parameters with change notification.
// Definitions are idempotent by name; sets are validated against the
// declared type and bounds before being applied, and a callback fires
// only when the stored value actually changes.
//
// The single-mutex, snapshot-then-invoke-outside-lock callback pattern
// mirrors the mode manager (internal/modemgr): a locked
// registration/state phase strictly separate from an unlocked delivery
// phase.
package paramstore

import (
	"sync"

	"github.com/FEASTorg/anolis-sub001/internal/mathx"
	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/value"
)

// Definition describes one parameter's static shape.
type Definition struct {
	Name    string
	Type    value.Kind
	Default value.Value

	HasBounds bool
	Min, Max  float64

	Allowed []value.Value // optional enumerated allow-list; empty means unconstrained
}

type entry struct {
	def     Definition
	current value.Value
}

// ChangeFunc is invoked after a parameter's stored value actually changes.
// It is never called while the store's lock is held.
type ChangeFunc func(name string, newVal value.Value)

// Store holds the complete set of defined parameters.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	callbackMu sync.Mutex
	callbacks  []ChangeFunc
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// OnChange registers a callback invoked whenever any parameter's value
// changes. Callbacks accumulate; there is no unregister, matching the
// mode manager's subscription model.
func (s *Store) OnChange(fn ChangeFunc) {
	s.callbackMu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.callbackMu.Unlock()
}

// Define installs or re-confirms a parameter. Defining the same name
// twice with an identical Definition is a no-op (idempotent-by-name);
// defining it again with a different Type is rejected, since existing
// callers may hold typed assumptions.
func (s *Store) Define(def Definition) error {
	if def.Name == "" {
		return statuscode.New(statuscode.InvalidArgument, "paramstore.Define", "name must not be empty")
	}
	if def.HasBounds && def.Max < def.Min {
		def.Min, def.Max = def.Max, def.Min
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[def.Name]; ok {
		if existing.def.Type != def.Type {
			return statuscode.New(statuscode.FailedPrecondition, "paramstore.Define",
				"parameter "+def.Name+" already defined with a different type")
		}
		return nil
	}

	s.entries[def.Name] = &entry{def: def, current: def.Default}
	return nil
}

func (s *Store) validate(def Definition, v value.Value) error {
	if v.Kind() != def.Type {
		return statuscode.New(statuscode.InvalidArgument, "paramstore.Set", "type mismatch for "+def.Name)
	}
	if def.HasBounds {
		d, ok := v.ToDouble()
		if !ok {
			return statuscode.New(statuscode.InvalidArgument, "paramstore.Set", "value not numeric, cannot bound-check "+def.Name)
		}
		if !mathx.Between(d, def.Min, def.Max) {
			return statuscode.New(statuscode.InvalidArgument, "paramstore.Set", "value out of bounds for "+def.Name)
		}
	}
	if len(def.Allowed) > 0 {
		allowed := false
		for _, a := range def.Allowed {
			if value.Equal(a, v) {
				allowed = true
				break
			}
		}
		if !allowed {
			return statuscode.New(statuscode.InvalidArgument, "paramstore.Set", "value not in allow-list for "+def.Name)
		}
	}
	return nil
}

// Set validates and applies a new value for name. Returns NotFound if the
// parameter was never defined. The change callback fires only if the
// stored value actually differs from before: a set is a no-op, in terms
// of notification, when the new value equals the old one.
func (s *Store) Set(name string, v value.Value) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return statuscode.New(statuscode.NotFound, "paramstore.Set", "parameter not defined: "+name)
	}
	if err := s.validate(e.def, v); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := !value.Equal(e.current, v)
	e.current = v
	s.mu.Unlock()

	if changed {
		s.notify(name, v)
	}
	return nil
}

func (s *Store) notify(name string, v value.Value) {
	s.callbackMu.Lock()
	cbs := make([]ChangeFunc, len(s.callbacks))
	copy(cbs, s.callbacks)
	s.callbackMu.Unlock()

	for _, cb := range cbs {
		cb(name, v)
	}
}

// Get returns the current value of name and whether it is defined.
func (s *Store) Get(name string) (value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return value.Value{}, false
	}
	return e.current, true
}

// GetDouble returns name's value coerced to float64, falling back to
// fallback if the parameter is undefined or not numeric: typed accessors
// degrade to a caller-supplied default rather than erroring, since BT
// nodes must never halt on a missing tunable.
func (s *Store) GetDouble(name string, fallback float64) float64 {
	v, ok := s.Get(name)
	if !ok {
		return fallback
	}
	d, ok := v.ToDouble()
	if !ok {
		return fallback
	}
	return d
}

// GetBool returns name's value as a bool, falling back to fallback on
// miss or type mismatch.
func (s *Store) GetBool(name string, fallback bool) bool {
	v, ok := s.Get(name)
	if !ok {
		return fallback
	}
	b, ok := v.AsBool()
	if !ok {
		return fallback
	}
	return b
}

// GetString returns name's value as a string, falling back to fallback
// on miss or type mismatch.
func (s *Store) GetString(name string, fallback string) string {
	v, ok := s.Get(name)
	if !ok {
		return fallback
	}
	str, ok := v.AsString()
	if !ok {
		return fallback
	}
	return str
}

// Names returns the defined parameter names in no particular order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for n := range s.entries {
		out = append(out, n)
	}
	return out
}
