// Package events implements the runtime's event emitter: a bounded,
// multi-subscriber, drop-oldest event queue carrying a fixed sum type
// (SignalUpdate | QualityChange | ModeChange | ParameterChange |
// BTError), each event tagged with a monotonically increasing event_id.
//
// The delivery strategy — non-blocking send, drop the oldest queued
// event on overflow, never block the publisher — keeps a locked
// subscriber-collection phase strictly separate from a lock-free
// delivery phase, with per-subscriber drop counters.
package events

import (
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/value"
)

// Kind tags which variant of the event sum type a Payload carries.
type Kind int

const (
	KindSignalUpdate Kind = iota
	KindQualityChange
	KindModeChange
	KindParameterChange
	KindBTError
)

// SignalUpdate fires when a cached signal's stored value changes by exact
// value-variant (in)equality.
type SignalUpdate struct {
	ProviderID, DeviceID, SignalID string
	Value                          value.Value
	Quality                        string
	Timestamp                      time.Time
}

// QualityChange fires when a cached signal's quality transitions without
// (necessarily) its value changing.
type QualityChange struct {
	ProviderID, DeviceID, SignalID string
	Quality                        string
	Timestamp                      time.Time
}

// ModeChange fires on every successful mode manager transition.
type ModeChange struct {
	From, To  string
	Timestamp time.Time
}

// ParameterChange fires when a parameter's stored value actually changes.
type ParameterChange struct {
	Name      string
	Value     value.Value
	Timestamp time.Time
}

// BTError fires on the first FAILURE of a BT run or on an error caught
// inside a tick.
type BTError struct {
	Message   string
	Timestamp time.Time
}

// Event is one entry of the event stream: a monotonically increasing id
// plus exactly one populated payload field.
type Event struct {
	ID              uint64
	Kind            Kind
	SignalUpdate    *SignalUpdate
	QualityChange   *QualityChange
	ModeChange      *ModeChange
	ParameterChange *ParameterChange
	BTError         *BTError
}
