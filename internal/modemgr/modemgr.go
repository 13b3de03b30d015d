// Package modemgr implements the runtime's MANUAL / AUTO / IDLE / FAULT
// state machine, gating automation and call execution elsewhere in the
// runtime.
//
// SetMode is a compare-and-swap under a single mutex: the requested
// transition is checked against the allowed-transition graph, applied,
// and only then are subscriber callbacks invoked — after the lock has
// been released, so a callback calling back into the Mode Manager can
// never deadlock or re-enter mid-transition. This mirrors the same
// snapshot-then-invoke pattern used in internal/paramstore.
package modemgr

import (
	"sync"
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
)

// Mode is one of the four runtime operating modes.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeManual
	ModeAuto
	ModeFault
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeManual:
		return "MANUAL"
	case ModeAuto:
		return "AUTO"
	case ModeFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ParseMode is the strict string_to_mode inverse of Mode.String:
// unrecognized strings are rejected rather than silently mapped to a
// default mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "IDLE":
		return ModeIdle, nil
	case "MANUAL":
		return ModeManual, nil
	case "AUTO":
		return ModeAuto, nil
	case "FAULT":
		return ModeFault, nil
	default:
		return 0, statuscode.New(statuscode.InvalidArgument, "modemgr.ParseMode", "unrecognized mode: "+s)
	}
}

// allowed is the transition graph: MANUAL and AUTO are mutually reachable
// directly, MANUAL and IDLE are mutually reachable directly, FAULT is
// reachable from any mode (a fault can be raised at any time), and FAULT
// leaves only back to MANUAL as an explicit recovery transition.
var allowed = map[Mode]map[Mode]bool{
	ModeIdle:   {ModeManual: true, ModeFault: true},
	ModeManual: {ModeAuto: true, ModeIdle: true, ModeFault: true},
	ModeAuto:   {ModeManual: true, ModeFault: true},
	ModeFault:  {ModeManual: true},
}

// IsAllowed reports whether from->to is a legal transition.
func IsAllowed(from, to Mode) bool {
	if from == to {
		return true // setting the current mode is always a no-op success
	}
	return allowed[from][to]
}

// ChangeFunc is invoked after a successful mode transition. Never called
// while the Manager's lock is held.
type ChangeFunc func(from, to Mode, at time.Time)

// Manager owns the single current-mode value for the whole runtime.
type Manager struct {
	mu      sync.Mutex
	current Mode

	callbackMu sync.Mutex
	callbacks  []ChangeFunc
}

// New creates a Manager starting in the given mode.
func New(initial Mode) *Manager {
	return &Manager{current: initial}
}

// OnChange registers a callback for every successful transition.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.callbackMu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.callbackMu.Unlock()
}

// Current returns the mode in effect right now.
func (m *Manager) Current() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetMode attempts the from-current-to-to transition. Returns
// FailedPrecondition if the transition is not in the allowed graph. On
// success, registered callbacks are invoked with the transition and the
// timestamp, after the lock is released.
func (m *Manager) SetMode(to Mode) error {
	m.mu.Lock()
	from := m.current
	if !IsAllowed(from, to) {
		m.mu.Unlock()
		return statuscode.New(statuscode.FailedPrecondition, "modemgr.SetMode",
			"transition "+from.String()+" -> "+to.String()+" is not permitted")
	}
	changed := from != to
	m.current = to
	m.mu.Unlock()

	if changed {
		m.notify(from, to)
	}
	return nil
}

// RaiseFault forces an immediate transition to FAULT from any mode. It
// never fails: a fault condition must always be representable.
func (m *Manager) RaiseFault() {
	m.mu.Lock()
	from := m.current
	changed := from != ModeFault
	m.current = ModeFault
	m.mu.Unlock()

	if changed {
		m.notify(from, ModeFault)
	}
}

func (m *Manager) notify(from, to Mode) {
	at := time.Now()
	m.callbackMu.Lock()
	cbs := make([]ChangeFunc, len(m.callbacks))
	copy(cbs, m.callbacks)
	m.callbackMu.Unlock()

	for _, cb := range cbs {
		cb(from, to, at)
	}
}
