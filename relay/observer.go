package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hubcast/hubcast/hub"
)

// ObserveTimeout is how long observation stays on without a listener
// confirmation before it shuts itself off.
const ObserveTimeout = 90 * time.Second

// Observer gates live characteristic-change push. While observing, hub
// change notifications are forwarded upstream; when no listener
// confirmation arrives within the timeout window, it detaches and goes
// idle on its own.
type Observer struct {
	provider hub.Provider
	forward  func(accessoryID, characteristicType string, value any)
	timeout  time.Duration

	mu          sync.Mutex
	observing   bool
	gen         uint64 // timer generation, guards against stale fires
	timer       *time.Timer
	attached    map[string]struct{}
	lastConfirm time.Time
}

func NewObserver(provider hub.Provider, forward func(accessoryID, characteristicType string, value any)) *Observer {
	return &Observer{
		provider: provider,
		forward:  forward,
		timeout:  ObserveTimeout,
		attached: make(map[string]struct{}),
	}
}

// SetTimeout overrides the confirmation window. Must be called before Start.
func (o *Observer) SetTimeout(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeout = d
}

// Start enters the observing state and attaches change hooks to every
// accessory the hub knows about. Attachment is idempotent per accessory, so
// calling Start again after devices joined picks up only the new ones.
func (o *Observer) Start(ctx context.Context) error {
	ids, err := o.provider.AccessoryIDs(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range ids {
		if _, ok := o.attached[id]; ok {
			continue
		}
		if err := o.provider.SubscribeChanges(id, o.handleChange); err != nil {
			slog.Warn("Failed to attach change hook", "accessory", id, "error", err.Error())
			continue
		}
		o.attached[id] = struct{}{}
	}

	if !o.observing {
		slog.Info("Observation started", "accessories", len(o.attached))
	}
	o.observing = true
	o.lastConfirm = time.Now()
	o.resetTimerLocked()
	return nil
}

// Confirm handles a listener-presence signal from the relay. A positive
// signal keeps (or brings back) observation; a negative one lets the
// timeout lapse naturally.
func (o *Observer) Confirm(ctx context.Context, listening bool) {
	if !listening {
		return
	}

	o.mu.Lock()
	if o.observing {
		o.lastConfirm = time.Now()
		o.resetTimerLocked()
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	// A listener appeared while idle: resume observing.
	if err := o.Start(ctx); err != nil {
		slog.Warn("Failed to resume observation", "error", err.Error())
	}
}

// Stop leaves the observing state and detaches all change hooks.
func (o *Observer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked("stopped")
}

func (o *Observer) stopLocked(reason string) {
	if !o.observing && len(o.attached) == 0 {
		return
	}
	o.observing = false
	o.gen++ // invalidate any in-flight timer fire
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	for id := range o.attached {
		o.provider.UnsubscribeChanges(id)
		delete(o.attached, id)
	}
	slog.Info("Observation ended", "reason", reason)
}

// resetTimerLocked rearms the timeout with a fresh generation. A fire from
// an older generation is ignored, so a rearm racing a fire never loses.
func (o *Observer) resetTimerLocked() {
	o.gen++
	gen := o.gen
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.timeout, func() { o.onTimeout(gen) })
}

func (o *Observer) onTimeout(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.observing {
		return
	}
	slog.Info("No listener confirmation within window, stopping observation")
	o.stopLocked("timeout")
}

// handleChange forwards a hub change notification upstream. While idle the
// hooks are detached, so a notification that races the detach is dropped.
func (o *Observer) handleChange(accessoryID, characteristicType string, value any) {
	o.mu.Lock()
	observing := o.observing
	o.mu.Unlock()
	if !observing {
		return
	}
	o.forward(accessoryID, characteristicType, value)
}

// Observing reports whether change push is currently enabled.
func (o *Observer) Observing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observing
}

// LastConfirmation returns the time of the most recent listener signal.
func (o *Observer) LastConfirmation() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastConfirm
}
