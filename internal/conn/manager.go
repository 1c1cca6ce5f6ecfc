// Package conn manages the lifecycle of the transport connection to one room:
// connect with timeout, heartbeat, reconnect with backoff and clean shutdown.
package conn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sereno-app/sereno/internal/backoff"
	"github.com/sereno-app/sereno/internal/chaterr"
	"github.com/sereno-app/sereno/internal/metrics"
	"github.com/sereno-app/sereno/internal/status"
	"github.com/sereno-app/sereno/internal/transport"
	"github.com/sereno-app/sereno/internal/wire"
	"go.uber.org/zap"
)

// Options tunes timeouts and buffers. Zero values take defaults.
type Options struct {
	ConnectTimeout time.Duration
	// HeartbeatInterval < 0 disables heartbeats.
	HeartbeatInterval time.Duration
	// HeartbeatGrace defaults to twice the interval.
	HeartbeatGrace time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
}

const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultSendBuffer        = 64
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.HeartbeatGrace <= 0 && o.HeartbeatInterval > 0 {
		o.HeartbeatGrace = 2 * o.HeartbeatInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	return o
}

// Hooks receive connection events. They are never called with the manager's
// lock held, so they may call back into the Manager.
//
// epoch identifies the room binding the event belongs to. It changes on
// every Connect and Disconnect but not across reconnects, so a receiver can
// drop late events from a previous room with IsCurrent.
type Hooks struct {
	OnFrame          func(epoch uint64, data []byte)
	OnConnected      func(epoch uint64)
	OnConnectionLost func(epoch uint64, err error)
	OnWriteFailed    func(epoch uint64, ref string, err error)
	OnError          func(err error)
}

// EndpointFunc resolves the transport URL for a room.
type EndpointFunc func(roomID string) (string, error)

// Deps are the Manager's collaborators.
type Deps struct {
	Dialer   transport.Dialer
	Endpoint EndpointFunc
	Policy   backoff.Policy
	Machine  *status.Machine
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Hooks    Hooks
}

type outFrame struct {
	ref  string
	data []byte
}

// Manager owns one transport connection at a time.
type Manager struct {
	opts     Options
	dialer   transport.Dialer
	endpoint EndpointFunc
	policy   backoff.Policy
	machine  *status.Machine
	metrics  *metrics.Metrics
	logger   *zap.Logger
	hooks    Hooks

	mu      sync.Mutex
	gen     uint64
	epoch   uint64
	roomID  string
	url     string
	attempt int
	conn    transport.Conn
	sendq   chan outFrame
	cancel  context.CancelFunc
	timer   *time.Timer

	lastSeen atomic.Int64
}

// New creates a Manager in the machine's current state.
func New(opts Options, d Deps) *Manager {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := d.Policy
	if policy == nil {
		policy = backoff.Default()
	}
	machine := d.Machine
	if machine == nil {
		machine = status.NewMachine(nil)
	}
	return &Manager{
		opts:     opts.withDefaults(),
		dialer:   d.Dialer,
		endpoint: d.Endpoint,
		policy:   policy,
		machine:  machine,
		metrics:  d.Metrics,
		logger:   logger,
		hooks:    d.Hooks,
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Room returns the room the manager is bound to, if any.
func (m *Manager) Room() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// Connect starts connecting to roomID and returns without waiting for the
// transport. Outcome is reported through state transitions and hooks.
func (m *Manager) Connect(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("connect: %w", chaterr.ErrInvalidRoom)
	}

	url := roomID
	if m.endpoint != nil {
		var err error
		url, err = m.endpoint(roomID)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch cur := m.machine.Current(); cur {
	case status.Idle, status.Disconnected, status.Failed:
	default:
		return fmt.Errorf("connect %s: %w (state %s)", roomID, chaterr.ErrAlreadyActive, cur)
	}

	m.stopTimerLocked()
	m.epoch++
	m.roomID = roomID
	m.url = url
	m.attempt = 0
	return m.startDialLocked()
}

// IsCurrent reports whether epoch is the room binding still in effect.
func (m *Manager) IsCurrent(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return epoch == m.epoch
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// idempotent. Once it returns, no reconnect attempt from before the call can
// change state.
func (m *Manager) Disconnect(reason string) {
	m.mu.Lock()
	m.gen++
	m.epoch++
	m.stopTimerLocked()
	m.teardownLocked(reason)
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	room := m.roomID
	m.mu.Unlock()

	m.logger.Info("disconnected", zap.String("room", room), zap.String("reason", reason))
}

// Send hands a frame to the transport.
func (m *Manager) Send(frame []byte) error {
	return m.SendRef("", frame)
}

// SendRef hands a frame to the transport. ref is passed to OnWriteFailed if
// the write later fails.
func (m *Manager) SendRef(ref string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.Current() != status.Connected || m.sendq == nil {
		return chaterr.ErrNotConnected
	}
	select {
	case m.sendq <- outFrame{ref: ref, data: frame}:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", chaterr.ErrTransport)
	}
}

func (m *Manager) startDialLocked() error {
	if err := m.machine.Transition(status.Connecting); err != nil {
		return err
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.logger.Info("connecting",
		zap.String("room", m.roomID),
		zap.String("url", transport.Redact(m.url)),
		zap.Int("attempt", m.attempt),
	)
	go m.dial(ctx, gen, m.url)
	return nil
}

func (m *Manager) dial(ctx context.Context, gen uint64, url string) {
	dctx, dcancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	c, err := m.dialer.Dial(dctx, url)
	timedOut := errors.Is(dctx.Err(), context.DeadlineExceeded)
	dcancel()

	m.mu.Lock()
	if gen != m.gen || ctx.Err() != nil {
		m.mu.Unlock()
		if c != nil {
			go func() { _ = c.Close("superseded") }()
		}
		return
	}

	if err != nil {
		if timedOut && !errors.Is(err, chaterr.ErrTimeout) {
			err = fmt.Errorf("%w: %w", chaterr.ErrTimeout, err)
		} else if !errors.Is(err, chaterr.ErrTimeout) && !errors.Is(err, chaterr.ErrTransport) {
			err = fmt.Errorf("%w: %w", chaterr.ErrTransport, err)
		}
		m.metrics.ConnectAttempt("error")
		_ = m.machine.Transition(status.Failed)
		gaveUp := m.scheduleReconnectLocked(gen)
		room := m.roomID
		m.mu.Unlock()

		m.logger.Warn("connect failed", zap.String("room", room), zap.Error(err))
		m.emitError(err)
		if gaveUp {
			m.emitError(fmt.Errorf("%w: %w", chaterr.ErrGaveUp, err))
		}
		return
	}

	m.metrics.ConnectAttempt("ok")
	m.conn = c
	m.attempt = 0
	q := make(chan outFrame, m.opts.SendBuffer)
	m.sendq = q
	m.lastSeen.Store(time.Now().UnixNano())
	_ = m.machine.Transition(status.Connected)
	room, epoch := m.roomID, m.epoch
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("room", room))
	if m.hooks.OnConnected != nil {
		m.hooks.OnConnected(epoch)
	}

	go m.readLoop(ctx, gen, epoch, c)
	go m.writeLoop(ctx, gen, epoch, c, q)
	if m.opts.HeartbeatInterval > 0 {
		go m.heartbeat(ctx, gen)
	}
}

// scheduleReconnectLocked arms the reconnect timer, or reports true when the
// policy gives up. The caller must hold m.mu and be in Failed or Connected.
func (m *Manager) scheduleReconnectLocked(gen uint64) (gaveUp bool) {
	m.attempt++
	if m.policy.ShouldGiveUp(m.attempt) {
		if m.machine.Current() == status.Connected {
			_ = m.machine.Transition(status.Reconnecting)
		}
		if m.machine.Current() != status.Failed {
			_ = m.machine.Transition(status.Failed)
		}
		m.logger.Warn("reconnect attempts exhausted", zap.String("room", m.roomID), zap.Int("attempts", m.attempt-1))
		return true
	}

	delay := m.policy.NextDelay(m.attempt)
	_ = m.machine.Transition(status.Reconnecting)
	m.metrics.ReconnectScheduled()
	m.logger.Info("reconnect scheduled",
		zap.String("room", m.roomID),
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay),
	)
	m.timer = time.AfterFunc(delay, func() { m.reconnect(gen) })
	return false
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.machine.Current() != status.Reconnecting {
		return
	}
	m.timer = nil
	if err := m.startDialLocked(); err != nil {
		m.logger.Error("reconnect failed to start", zap.Error(err))
	}
}

// connectionLost handles an unexpected close of the live connection.
func (m *Manager) connectionLost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.machine.Current() != status.Connected {
		m.mu.Unlock()
		return
	}
	m.teardownLocked("connection lost")
	gaveUp := m.scheduleReconnectLocked(gen)
	room, epoch := m.roomID, m.epoch
	m.mu.Unlock()

	m.logger.Warn("connection lost", zap.String("room", room), zap.Error(cause))
	if m.hooks.OnConnectionLost != nil {
		m.hooks.OnConnectionLost(epoch, cause)
	}
	if gaveUp {
		m.emitError(fmt.Errorf("%w: %w", chaterr.ErrGaveUp, cause))
	}
}

func (m *Manager) readLoop(ctx context.Context, gen, epoch uint64, c transport.Conn) {
	for {
		data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.connectionLost(gen, err)
			return
		}
		if !m.live(gen) {
			return
		}
		m.lastSeen.Store(time.Now().UnixNano())
		if m.hooks.OnFrame != nil {
			m.hooks.OnFrame(epoch, data)
		}
	}
}

// live reports whether gen is still the active connection attempt.
func (m *Manager) live(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) writeLoop(ctx context.Context, gen, epoch uint64, c transport.Conn, q <-chan outFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-q:
			wctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
			err := c.Write(wctx, f.data)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if f.ref != "" && m.hooks.OnWriteFailed != nil {
					m.hooks.OnWriteFailed(epoch, f.ref, err)
				}
				m.connectionLost(gen, err)
				return
			}
			m.metrics.FrameSent()
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	ping, _ := wire.Encode(wire.Ping{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, m.lastSeen.Load()))
			if idle > m.opts.HeartbeatGrace {
				m.connectionLost(gen, fmt.Errorf("%w: no traffic for %s", chaterr.ErrTimeout, idle.Round(time.Millisecond)))
				return
			}
			if err := m.Send(ping); err != nil {
				m.logger.Debug("heartbeat skipped", zap.Error(err))
			}
		}
	}
}

// teardownLocked cancels loops and closes the live connection, if any.
func (m *Manager) teardownLocked(reason string) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		c := m.conn
		go func() { _ = c.Close(reason) }()
		m.conn = nil
	}
	m.sendq = nil
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) emitError(err error) {
	if m.hooks.OnError != nil {
		m.hooks.OnError(err)
	}
}
