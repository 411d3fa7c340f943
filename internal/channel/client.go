// Package channel is the client side of the realtime channel: one
// authenticated, auto-reconnecting socket per session with room bookkeeping,
// role-checked emits and typed event subscriptions.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"foodtrack/internal/clock"
	"foodtrack/internal/contracts"
	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

var (
	ErrNotConnected    = errors.New("channel not connected")
	ErrForbidden       = errors.New("event not allowed for this role")
	ErrUnauthenticated = errors.New("credential required")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrMissingOrderID  = errors.New("order id required")
)

// Conn is the part of *websocket.Conn the client needs.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// Prober is the lightweight liveness check run before the first dial.
type Prober interface {
	Probe(ctx context.Context) error
}

type Options struct {
	Clock             clock.Clock
	ProbeTimeout      time.Duration
	ProbeRetryDelay   time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 3 * time.Second
	}
	if o.ProbeRetryDelay <= 0 {
		o.ProbeRetryDelay = 3 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	return o
}

type state int

const (
	stateIdle state = iota
	stateProbing
	stateDialing
	stateConnected
)

// attempt carries what a scheduled step needs. A Disconnect bumps the epoch
// and every step from an older epoch becomes a no-op.
type attempt struct {
	epoch      int
	ctx        context.Context
	credential string
}

type Client struct {
	dialer Dialer
	prober Prober
	opts   Options
	logger *slog.Logger
	subs   *registry
	conn   Connectivity

	writeMu sync.Mutex

	mu            sync.Mutex
	state         state
	epoch         int
	who           types.Identity
	cancel        context.CancelFunc
	socket        Conn
	timer         clock.Timer
	orderRoom     types.ID
	prevRoom      types.ID
	adminTracking bool
}

func NewClient(dialer Dialer, prober Prober, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		dialer: dialer,
		prober: prober,
		opts:   opts,
		logger: logging.Or(opts.Logger),
		subs:   newRegistry(),
	}
}

// Connectivity exposes the connected flag for dependents.
func (c *Client) Connectivity() *Connectivity { return &c.conn }

func (c *Client) Connected() bool { return c.conn.Get() }

func (c *Client) Identity() types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.who
}

// Connect starts probing and dialing in the background. It is a no-op while
// an attempt is in flight or a connection is open.
func (c *Client) Connect(who types.Identity, credential string) error {
	if credential == "" {
		return ErrUnauthenticated
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.who = who
	c.cancel = cancel
	c.state = stateProbing
	a := attempt{epoch: c.epoch, ctx: ctx, credential: credential}
	c.timer = c.opts.Clock.AfterFunc(0, func() { c.probe(a, true) })
	return nil
}

func (c *Client) probe(a attempt, retry bool) {
	var err error
	if c.prober != nil {
		ctx, cancel := context.WithTimeout(a.ctx, c.opts.ProbeTimeout)
		err = c.prober.Probe(ctx)
		cancel()
	}

	c.mu.Lock()
	if c.epoch != a.epoch {
		c.mu.Unlock()
		return
	}
	if err != nil {
		if retry {
			c.timer = c.opts.Clock.AfterFunc(c.opts.ProbeRetryDelay, func() { c.probe(a, false) })
		} else {
			c.state = stateIdle
			c.timer = nil
		}
		c.mu.Unlock()
		c.logger.Warn("channel_probe_failed", "retry", retry, "error", err)
		c.emitLocal(contracts.EventConnectError, contracts.ErrorEvent{Message: err.Error()})
		return
	}
	c.state = stateDialing
	c.mu.Unlock()
	c.dial(a, 1, false)
}

// dial makes one attempt; failures are retried with a fixed delay up to
// ReconnectAttempts in total.
func (c *Client) dial(a attempt, n int, reconnecting bool) {
	sock, err := c.dialer.Dial(a.ctx, a.credential)

	c.mu.Lock()
	if c.epoch != a.epoch {
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		if n < c.opts.ReconnectAttempts {
			c.timer = c.opts.Clock.AfterFunc(c.opts.ReconnectDelay, func() { c.dial(a, n+1, reconnecting) })
		} else {
			c.state = stateIdle
			c.timer = nil
		}
		c.mu.Unlock()
		c.logger.Warn("channel_dial_failed", "attempt", n, "error", err)
		c.emitLocal(contracts.EventConnectError, contracts.ErrorEvent{Message: err.Error()})
		return
	}
	c.socket = sock
	c.state = stateConnected
	c.timer = nil
	c.mu.Unlock()

	c.conn.set(true)
	c.logger.Info("channel_connected", "reconnect", reconnecting)
	if reconnecting {
		c.emitLocal(contracts.EventReconnect, nil)
	}
	c.emitLocal(contracts.EventConnect, nil)
	go c.readLoop(sock, a)
}

// readLoop dispatches inbound frames in arrival order on one goroutine.
func (c *Client) readLoop(sock Conn, a attempt) {
	for {
		var f contracts.Frame
		err := sock.ReadJSON(&f)
		if err == nil {
			if f.Event == contracts.EventError {
				c.onServerError(f)
			}
			c.subs.dispatch(f)
			continue
		}
		var syntax *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syntax) || errors.As(err, &typ) {
			c.logger.Warn("channel_bad_frame", "error", err)
			continue
		}

		c.mu.Lock()
		if c.epoch != a.epoch || c.socket != sock {
			c.mu.Unlock()
			return
		}
		c.socket = nil
		c.state = stateDialing
		c.timer = c.opts.Clock.AfterFunc(c.opts.ReconnectDelay, func() { c.dial(a, 1, true) })
		c.mu.Unlock()

		_ = sock.Close()
		c.conn.set(false)
		c.logger.Info("channel_disconnected", "reason", err.Error())
		c.emitLocal(contracts.EventDisconnect, contracts.ErrorEvent{Message: err.Error()})
		return
	}
}

// Disconnect closes the socket, stops pending attempts and clears rooms. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.epoch++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	sock := c.socket
	c.socket = nil
	c.state = stateIdle
	c.orderRoom, c.prevRoom = "", ""
	c.adminTracking = false
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if c.conn.set(false) {
		c.emitLocal(contracts.EventDisconnect, contracts.ErrorEvent{Message: "client disconnect"})
	}
}

// Emit sends a driver-originated event. Nothing is written unless the channel
// is connected and the caller's role may originate the event.
func (c *Client) Emit(event string, payload any) error {
	switch event {
	case contracts.EventShareDriverLocation, contracts.EventUpdateDriverLocation:
	default:
		return ErrUnknownEvent
	}
	return c.send(event, payload)
}

func (c *Client) send(event string, payload any) error {
	c.mu.Lock()
	sock, st, who := c.socket, c.state, c.who
	c.mu.Unlock()
	if st != stateConnected || sock == nil {
		return ErrNotConnected
	}
	if need, ok := contracts.EmitRole(event); ok && who.Role != need {
		return ErrForbidden
	}
	f, err := contracts.NewFrame(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return sock.WriteJSON(f)
}

// JoinOrderRoom watches orderID. Joining implicitly leaves the previous order room.
func (c *Client) JoinOrderRoom(orderID types.ID) error {
	if orderID == "" {
		return ErrMissingOrderID
	}
	if err := c.send(contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: orderID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.prevRoom, c.orderRoom = c.orderRoom, orderID
	c.mu.Unlock()
	return nil
}

// onServerError rolls back a join the server refused. The server keeps the
// previous order room in that case, so the client does too.
func (c *Client) onServerError(f contracts.Frame) {
	var e contracts.ErrorEvent
	if err := json.Unmarshal(f.Data, &e); err != nil || e.Event != contracts.EventJoinOrderRoom {
		return
	}
	c.mu.Lock()
	c.orderRoom, c.prevRoom = c.prevRoom, ""
	c.mu.Unlock()
}

// LeaveOrderRoom is a no-op when no order room is held.
func (c *Client) LeaveOrderRoom() error {
	c.mu.Lock()
	held := c.orderRoom
	c.mu.Unlock()
	if held == "" {
		return nil
	}
	if err := c.send(contracts.EventLeaveOrderRoom, contracts.RoomRequest{OrderID: held}); err != nil {
		return err
	}
	c.mu.Lock()
	if c.orderRoom == held {
		c.orderRoom, c.prevRoom = "", ""
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) JoinAdminTracking() error {
	if err := c.send(contracts.EventJoinAdminTracking, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.adminTracking = true
	c.mu.Unlock()
	return nil
}

// Rooms lists the rooms this session has joined, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var rooms []string
	if c.orderRoom != "" {
		rooms = append(rooms, contracts.OrderRoom(c.orderRoom))
	}
	if c.adminTracking {
		rooms = append(rooms, contracts.AdminTrackingRoom)
	}
	sort.Strings(rooms)
	return rooms
}

// Rejoin re-issues the remembered joins. Reconnects never do this on their
// own; callers hook it to OnReconnect when they want it.
func (c *Client) Rejoin() error {
	c.mu.Lock()
	orderID, admin := c.orderRoom, c.adminTracking
	c.mu.Unlock()
	if orderID != "" {
		if err := c.send(contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: orderID}); err != nil {
			return err
		}
	}
	if admin {
		if err := c.send(contracts.EventJoinAdminTracking, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) emitLocal(event string, payload any) {
	f, err := contracts.NewFrame(event, payload)
	if err != nil {
		return
	}
	c.subs.dispatch(f)
}
