// runtime.go implements the BT engine's fixed-rate tick loop: gated to
// tick the loaded tree only while the mode manager reports AUTO, at a
// configurable 1-1000Hz rate, absorbing scheduler drift by advancing the
// next deadline by a full period rather than by "now + period" (which
// would let a slow tick permanently shift the schedule).
package bttree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/events"
	"github.com/FEASTorg/anolis-sub001/internal/modemgr"
)

// Health is the BT engine's externally observable state.
type Health uint8

const (
	// BTIdle: the runtime is not in AUTO, so the tree is not being ticked.
	BTIdle Health = iota
	// BTRunning: the tree is ticking normally.
	BTRunning
	// BTError: the most recent tick raised an error.
	BTError
	// BTStalled: the tick loop has fallen behind its scheduled rate by a
	// full period or more.
	BTStalled
)

func (h Health) String() string {
	switch h {
	case BTRunning:
		return "BT_RUNNING"
	case BTError:
		return "BT_ERROR"
	case BTStalled:
		return "BT_STALLED"
	default:
		return "BT_IDLE"
	}
}

const (
	minRateHz = 1
	maxRateHz = 1000
)

// Engine owns the tick loop for one loaded tree.
type Engine struct {
	root    Node
	bb      *Blackboard
	modes   *modemgr.Manager
	emitter *events.Emitter
	period  time.Duration

	mu           sync.RWMutex
	health       Health
	lastErr      error
	lastTickAt   time.Time
	errorLatched bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewEngine builds an Engine ticking root at rateHz (clamped to
// [1,1000]).
func NewEngine(root Node, bb *Blackboard, modes *modemgr.Manager, emitter *events.Emitter, rateHz int) *Engine {
	if rateHz < minRateHz {
		rateHz = minRateHz
	}
	if rateHz > maxRateHz {
		rateHz = maxRateHz
	}
	return &Engine{
		root:    root,
		bb:      bb,
		modes:   modes,
		emitter: emitter,
		period:  time.Second / time.Duration(rateHz),
		health:  BTIdle,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the tick loop goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.run(ctx)
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	next := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		now := time.Now()
		stalled := false
		if next.After(now) {
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-e.stopCh:
				timer.Stop()
				return
			}
		} else if now.Sub(next) >= e.period {
			stalled = true
		}

		e.tickOnce()
		if stalled && e.GetHealth() == BTRunning {
			e.setHealth(BTStalled, nil)
		}
		next = next.Add(e.period)
	}
}

func (e *Engine) tickOnce() {
	if e.modes.Current() != modemgr.ModeAuto {
		e.setHealth(BTIdle, nil)
		return
	}

	status, err := e.root.Tick(e.bb)

	e.mu.Lock()
	e.lastTickAt = time.Now()
	e.mu.Unlock()

	if err != nil {
		e.setHealth(BTError, err)
		e.mu.Lock()
		alreadyLatched := e.errorLatched
		e.errorLatched = true
		e.mu.Unlock()
		if !alreadyLatched && e.emitter != nil {
			e.emitter.PublishBTError(events.BTError{Message: fmt.Sprintf("%v", err), Timestamp: time.Now()})
		}
		return
	}
	if status == Failure {
		e.mu.Lock()
		alreadyLatched := e.errorLatched
		e.errorLatched = true
		e.mu.Unlock()
		if !alreadyLatched && e.emitter != nil {
			e.emitter.PublishBTError(events.BTError{Message: "tree returned FAILURE", Timestamp: time.Now()})
		}
		e.setHealth(BTRunning, nil)
		return
	}

	e.mu.Lock()
	e.errorLatched = false
	e.mu.Unlock()
	e.setHealth(BTRunning, nil)
}

func (e *Engine) setHealth(h Health, err error) {
	e.mu.Lock()
	e.health = h
	if err != nil {
		e.lastErr = err
	}
	e.mu.Unlock()
}

// GetHealth returns the current health view.
func (e *Engine) GetHealth() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.health
}

// LastError returns the most recent tick error, or nil.
func (e *Engine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// LastTickAt returns when the tree was last ticked.
func (e *Engine) LastTickAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTickAt
}
