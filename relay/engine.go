package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hubcast/hubcast/hub"
	"github.com/hubcast/hubcast/proto"
)

// Defaults for the connection lifecycle.
const (
	DefaultPingInterval         = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// Config wires up an Engine.
type Config struct {
	URL         string
	Credentials Credentials
	Provider    hub.Provider
	Dialer      Dialer // defaults to NewWebSocketDialer()

	PingInterval         time.Duration // defaults to DefaultPingInterval
	MaxReconnectAttempts int           // defaults to DefaultMaxReconnectAttempts
	ObserveTimeout       time.Duration // defaults to ObserveTimeout
	Registry             prometheus.Registerer

	// ReconnectDelay computes the sleep before retry n (1-based).
	// Defaults to linear backoff: n * 2s.
	ReconnectDelay func(attempt int) time.Duration
}

// Status is a point-in-time snapshot of the engine for diagnostics.
type Status struct {
	Connected         bool      `json:"connected"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	GaveUp            bool      `json:"gaveUp"`
	Observing         bool      `json:"observing"`
	LastConfirmation  time.Time `json:"lastConfirmation,omitzero"`
	DeviceID          string    `json:"deviceId"`
}

// session is one established connection. A reconnect always produces a new
// session object; the old one is torn down, never reused.
type session struct {
	transport Transport

	mu        sync.Mutex
	connected bool
	done      chan struct{}
}

func (s *session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// close marks the session disconnected and stops its loops. Safe to call
// more than once; only the first call does anything.
func (s *session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.connected = false
	close(s.done)
	s.transport.Close()
	return true
}

// Engine is the relay protocol engine: it keeps the persistent connection
// alive, dispatches inbound requests against the hub, pushes change events
// while observed, and reconnects with backoff until it gives up.
type Engine struct {
	cfg        Config
	dispatcher *Dispatcher
	observer   *Observer
	heartbeat  *Heartbeat
	metrics    *Metrics

	// OnConnect fires after each successful connection, OnDisconnect after
	// each loss. OnAuthError fires once when retries are exhausted; the
	// owner is expected to force re-authentication.
	OnConnect    func()
	OnDisconnect func(error)
	OnAuthError  func()

	mu       sync.Mutex
	session  *session
	attempts int
	gaveUp   bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(cfg Config) *Engine {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebSocketDialer()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay == nil {
		cfg.ReconnectDelay = func(attempt int) time.Duration {
			return time.Duration(attempt) * 2 * time.Second
		}
	}

	e := &Engine{cfg: cfg, metrics: NewMetrics(cfg.Registry)}
	e.observer = NewObserver(cfg.Provider, e.forwardChange)
	if cfg.ObserveTimeout != 0 {
		e.observer.SetTimeout(cfg.ObserveTimeout)
	}
	e.dispatcher = NewDispatcher(cfg.Provider, e.sendEvent)
	e.heartbeat = NewHeartbeat(e.send, e.observer)
	return e
}

// Connect establishes the relay connection. On failure the retry path takes
// over in the background; the first attempt's error is still returned so
// callers can log it.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.session != nil && e.session.isConnected() {
		e.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	e.closed = false
	e.gaveUp = false
	e.attempts = 0
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	return e.connect()
}

func (e *Engine) connect() error {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	transport := e.cfg.Dialer()
	if err := transport.Connect(ctx, e.cfg.URL, e.cfg.Credentials); err != nil {
		slog.Warn("Connection attempt failed", "url", e.cfg.URL, "error", err.Error())
		e.handleFailure(err)
		return err
	}

	s := &session{transport: transport, connected: true, done: make(chan struct{})}

	e.mu.Lock()
	// A Disconnect may have landed while the dial was in flight; the fresh
	// connection must not be installed over it.
	if e.closed {
		e.mu.Unlock()
		transport.Close()
		return fmt.Errorf("disconnected during connection attempt")
	}
	e.session = s
	e.attempts = 0
	e.mu.Unlock()

	e.metrics.Connected.Set(1)
	e.metrics.ReconnectAttempts.Set(0)
	e.metrics.ConnectsTotal.Inc()
	slog.Info("Connected to relay", "url", e.cfg.URL, "device_id", e.cfg.Credentials.DeviceID)

	// Connection implies a remote that may want events; observe until the
	// confirmation window says otherwise.
	if err := e.observer.Start(ctx); err != nil {
		slog.Warn("Failed to start observation", "error", err.Error())
	}

	go e.readLoop(ctx, s)
	go e.pingLoop(s)

	if e.OnConnect != nil {
		e.OnConnect()
	}
	return nil
}

// Disconnect closes the connection deliberately. No retry follows.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	e.closed = true
	s := e.session
	cancel := e.cancel
	e.mu.Unlock()

	e.observer.Stop()
	if s != nil && s.close() {
		e.metrics.Connected.Set(0)
		e.metrics.DisconnectsTotal.Inc()
		slog.Info("Disconnected from relay")
	}
	if cancel != nil {
		cancel()
	}
}

// readLoop receives frames until the session dies. Each request is
// dispatched on its own goroutine so a slow device write never stalls the
// next frame; response order is whatever completion order is, correlation
// is by id only.
func (e *Engine) readLoop(ctx context.Context, s *session) {
	for {
		msg, err := s.transport.Read()
		if err != nil {
			if !s.isConnected() {
				return // deliberate close, not a failure
			}
			var decErr *proto.DecodeError
			if errors.As(err, &decErr) && decErr.ID != "" {
				// Best effort: the peer gets a correlated error before the
				// session is declared dead.
				resp := proto.NewErrorResponse(decErr.ID, "", proto.CodeInvalidRequest, decErr.Err.Error())
				if sendErr := e.send(resp); sendErr != nil {
					slog.Warn("Failed to answer undecodable frame", "error", sendErr.Error())
				}
			}
			e.sessionFailed(s, err)
			return
		}

		e.metrics.MessagesReceived.WithLabelValues(msg.Type).Inc()

		switch msg.Type {
		case proto.TypePing:
			e.heartbeat.HandlePing(ctx, msg)
		case proto.TypeConfig:
			e.heartbeat.HandleConfig(ctx, msg)
		case proto.TypePong:
			slog.Debug("Received pong")
		case proto.TypeRequest:
			go e.dispatch(ctx, msg)
		default:
			slog.Warn("Unhandled message", "type", msg.Type, "action", msg.Action)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, req proto.Message) {
	resp := e.dispatcher.Handle(ctx, req)
	if resp.Error != nil {
		e.metrics.DispatchErrors.WithLabelValues(resp.Error.Code).Inc()
	}
	if err := e.send(resp); err != nil {
		// The session died under us; the response is dropped, not retried.
		slog.Warn("Dropped response after send failure", "id", resp.ID, "action", resp.Action, "error", err.Error())
	}
}

// pingLoop sends an outbound ping on a fixed cadence until the session ends.
func (e *Engine) pingLoop(s *session) {
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.send(proto.Ping()); err != nil {
				slog.Warn("Failed to send ping", "error", err.Error())
			}
		case <-s.done:
			return
		}
	}
}

// send is the single serialized outbound path for the current session.
func (e *Engine) send(msg proto.Message) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()

	if s == nil || !s.isConnected() {
		return fmt.Errorf("not connected")
	}
	if err := s.transport.Send(msg); err != nil {
		return err
	}
	e.metrics.MessagesSent.WithLabelValues(msg.Type).Inc()
	return nil
}

// sendEvent pushes an event message, counting it. Failures are logged by
// callers; events are fire-and-forget.
func (e *Engine) sendEvent(msg proto.Message) {
	if err := e.send(msg); err != nil {
		slog.Warn("Failed to push event", "action", msg.Action, "error", err.Error())
		return
	}
	e.metrics.EventsPushed.Inc()
}

// forwardChange is the observer's outbound path for hub-driven changes.
func (e *Engine) forwardChange(accessoryID, characteristicType string, value any) {
	e.sendEvent(proto.NewEvent(EventCharacteristicUpdated, proto.Payload{
		"accessoryId":        accessoryID,
		"characteristicType": characteristicType,
		"value":              proto.NormalizeValue(value),
	}))
}

// PushChangeEvent pushes a characteristic change upstream on behalf of the
// owning application, independent of the observation gate.
func (e *Engine) PushChangeEvent(accessoryID, characteristicType string, value any) error {
	msg := proto.NewEvent(EventCharacteristicUpdated, proto.Payload{
		"accessoryId":        accessoryID,
		"characteristicType": characteristicType,
		"value":              proto.NormalizeValue(value),
	})
	if err := e.send(msg); err != nil {
		return err
	}
	e.metrics.EventsPushed.Inc()
	return nil
}

// sessionFailed handles a transport failure detected by the read loop.
func (e *Engine) sessionFailed(s *session, err error) {
	if !s.close() {
		return // lost a race with Disconnect or another failure
	}
	e.metrics.Connected.Set(0)
	e.metrics.DisconnectsTotal.Inc()
	e.handleFailure(err)
}

// handleFailure runs the retry policy: linear backoff per attempt, then a
// terminal give-up after the attempt budget is spent. Repeated failures
// usually mean a revoked credential, so the give-up signal is routed to a
// distinct callback for forced re-authentication.
func (e *Engine) handleFailure(err error) {
	e.observer.Stop()

	e.mu.Lock()
	if e.closed || e.gaveUp {
		e.mu.Unlock()
		return
	}
	e.attempts++
	attempts := e.attempts
	giveUp := attempts >= e.cfg.MaxReconnectAttempts
	if giveUp {
		e.gaveUp = true
	}
	e.mu.Unlock()

	e.metrics.ReconnectAttempts.Set(float64(attempts))
	if e.OnDisconnect != nil {
		e.OnDisconnect(err)
	}

	if giveUp {
		e.metrics.GiveUpsTotal.Inc()
		slog.Error("Giving up after repeated connection failures", "attempts", attempts, "error", err.Error())
		if e.OnAuthError != nil {
			e.OnAuthError()
		}
		return
	}

	delay := e.cfg.ReconnectDelay(attempts)
	slog.Info("Reconnecting", "attempt", attempts, "delay", delay.String())

	go func() {
		e.mu.Lock()
		ctx := e.ctx
		e.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		e.connect()
	}()
}

// Connected reports whether a session is currently established.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil && e.session.isConnected()
}

// Status returns a snapshot for the diagnostics endpoint.
func (e *Engine) Status() Status {
	e.mu.Lock()
	connected := e.session != nil && e.session.isConnected()
	attempts := e.attempts
	gaveUp := e.gaveUp
	e.mu.Unlock()

	return Status{
		Connected:         connected,
		ReconnectAttempts: attempts,
		GaveUp:            gaveUp,
		Observing:         e.observer.Observing(),
		LastConfirmation:  e.observer.LastConfirmation(),
		DeviceID:          e.cfg.Credentials.DeviceID,
	}
}

// Observer exposes the observation controller, mainly for tests and the
// diagnostics surface.
func (e *Engine) Observer() *Observer {
	return e.observer
}
