// Package statecache implements the runtime's state cache: a dedicated
// polling loop that keeps the latest signal value + quality for every
// known device, readable by the rest of the runtime without ever
// blocking on a provider round trip.
//
// The poll loop is a ticker-driven worker goroutine that owns one piece
// of shared state and republishes changes through the event emitter; it
// round-robins every known device once per tick, plus any prompt-poll
// requests queued in between.
package statecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FEASTorg/anolis-sub001/internal/devregistry"
	"github.com/FEASTorg/anolis-sub001/internal/events"
	"github.com/FEASTorg/anolis-sub001/internal/provider"
	"github.com/FEASTorg/anolis-sub001/internal/value"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// MinPollInterval is the lowest polling_interval_ms the cache accepts.
const MinPollInterval = 100 * time.Millisecond

// DefaultPollInterval is used when config supplies no override.
const DefaultPollInterval = 500 * time.Millisecond

// Reading is one cached signal's value, quality, and the time it was last
// refreshed.
type Reading struct {
	Value     value.Value
	Quality   wire.SignalQuality
	UpdatedAt time.Time
}

type deviceCache struct {
	mu      sync.RWMutex
	signals map[string]Reading
}

// Cache is the thread-safe, non-blocking-read store of every known
// device's latest signal state.
type Cache struct {
	devices  *devregistry.Registry
	handles  *provider.Registry
	emitter  *events.Emitter
	interval time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	byKey  map[devregistry.Key]*deviceCache
	pollCh chan devregistry.Key // prompt-poll requests

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Cache. A zero interval selects DefaultPollInterval;
// any other interval is clamped to MinPollInterval.
func New(devices *devregistry.Registry, handles *provider.Registry, emitter *events.Emitter, interval time.Duration, log *slog.Logger) *Cache {
	if interval == 0 {
		interval = DefaultPollInterval
	}
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		devices:  devices,
		handles:  handles,
		emitter:  emitter,
		interval: interval,
		log:      log,
		byKey:    make(map[devregistry.Key]*deviceCache),
		pollCh:   make(chan devregistry.Key, 32),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the dedicated polling goroutine. It round-robins every
// device registered at the time of each tick, plus any prompt-poll
// requests queued via PollNow.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop halts the polling goroutine and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Cache) run(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case key := <-c.pollCh:
			c.PollOnce(key)
		case <-ticker.C:
			for _, key := range c.devices.AllKeys() {
				c.PollOnce(key)
			}
		}
	}
}

// PollNow queues an out-of-cycle prompt poll for key: a non-blocking
// request, dropped silently if the queue is already full since another
// poll is already pending.
func (c *Cache) PollNow(key devregistry.Key) {
	select {
	case c.pollCh <- key:
	default:
	}
}

func (c *Cache) deviceCacheFor(key devregistry.Key) *deviceCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	dc, ok := c.byKey[key]
	if !ok {
		dc = &deviceCache{signals: make(map[string]Reading)}
		c.byKey[key] = dc
	}
	return dc
}

// PollOnce performs a single read_signals round trip for key and updates
// the cache, emitting SignalUpdate/QualityChange events for whatever
// changed. It is safe to call concurrently with the scheduled loop.
func (c *Cache) PollOnce(key devregistry.Key) {
	dev, ok := c.devices.Get(key)
	if !ok {
		return
	}
	signalIDs := make([]string, 0, len(dev.Capabilities.SignalsByID))
	for id := range dev.Capabilities.SignalsByID {
		signalIDs = append(signalIDs, id)
	}
	if len(signalIDs) == 0 {
		return
	}

	h, ok := c.handles.Get(key.ProviderID)
	if !ok || !h.IsAvailable() {
		c.markProviderUnavailable(key, signalIDs)
		return
	}

	resp, err := h.ReadSignals(dev.DeviceID, signalIDs)
	if err != nil {
		c.log.Warn("poll failed", "device", key.String(), "error", err)
		if h.IsAvailable() {
			// Not a transport failure: the provider stays up and only
			// this read's signals go STALE.
			dc := c.deviceCacheFor(key)
			now := time.Now()
			for _, id := range signalIDs {
				c.applyReading(dc, key, id, value.Value{}, wire.QualityStale, now)
			}
			return
		}
		c.markProviderUnavailable(key, signalIDs)
		return
	}

	dc := c.deviceCacheFor(key)
	now := time.Now()
	for _, id := range signalIDs {
		reading, present := resp.Values[id]
		quality := wire.QualityStale
		var v value.Value
		if present {
			quality = reading.Quality
			v = reading.Value
		}
		c.applyReading(dc, key, id, v, quality, now)
	}
}

func (c *Cache) markProviderUnavailable(key devregistry.Key, signalIDs []string) {
	dc := c.deviceCacheFor(key)
	now := time.Now()
	for _, id := range signalIDs {
		c.applyReading(dc, key, id, value.Value{}, wire.QualityProviderUnavailable, now)
	}
}

// applyReading updates one signal's cached Reading and emits the
// appropriate event if the value or quality actually changed, using the
// same exact-variant comparison the parameter store uses.
func (c *Cache) applyReading(dc *deviceCache, key devregistry.Key, signalID string, v value.Value, quality wire.SignalQuality, at time.Time) {
	dc.mu.Lock()
	prev, existed := dc.signals[signalID]
	valueChanged := !existed || !value.Equal(prev.Value, v)
	qualityChanged := !existed || prev.Quality != quality
	dc.signals[signalID] = Reading{Value: v, Quality: quality, UpdatedAt: at}
	dc.mu.Unlock()

	if c.emitter == nil {
		return
	}
	if valueChanged {
		c.emitter.PublishSignalUpdate(events.SignalUpdate{
			ProviderID: key.ProviderID, DeviceID: key.DeviceID, SignalID: signalID,
			Value: v, Quality: string(quality), Timestamp: at,
		})
	} else if qualityChanged {
		c.emitter.PublishQualityChange(events.QualityChange{
			ProviderID: key.ProviderID, DeviceID: key.DeviceID, SignalID: signalID,
			Quality: string(quality), Timestamp: at,
		})
	}
}

// Read returns the current cached reading for one signal, never blocking
// on a provider: reads must be thread-safe and non-blocking.
func (c *Cache) Read(key devregistry.Key, signalID string) (Reading, bool) {
	c.mu.RLock()
	dc, ok := c.byKey[key]
	c.mu.RUnlock()
	if !ok {
		return Reading{}, false
	}
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	r, ok := dc.signals[signalID]
	return r, ok
}

// ReadAll returns a snapshot of every cached signal for key.
func (c *Cache) ReadAll(key devregistry.Key) map[string]Reading {
	c.mu.RLock()
	dc, ok := c.byKey[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	out := make(map[string]Reading, len(dc.signals))
	for k, v := range dc.signals {
		out[k] = v
	}
	return out
}
