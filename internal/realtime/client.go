package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options configures a Client.
type Options struct {
	// ReconnectAttempts is the maximum number of automatic reconnect tries
	// after an unexpected close. Once spent, the client lands in
	// StateDisconnected until the next explicit Connect.
	ReconnectAttempts int

	// ReconnectInterval is the delay between reconnect attempts.
	ReconnectInterval time.Duration

	// ReconnectMaxInterval caps the delay when BackoffMultiplier grows it.
	ReconnectMaxInterval time.Duration

	// BackoffMultiplier grows the reconnect delay per attempt. 1 keeps the
	// interval fixed, which is the default.
	BackoffMultiplier float64

	// PingInterval is the delay between heartbeat sends while connected.
	PingInterval time.Duration

	// ConnectTimeout bounds a single transport open attempt. Zero means the
	// transport's own handshake timeout applies.
	ConnectTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ReconnectAttempts:    5,
		ReconnectInterval:    time.Second,
		ReconnectMaxInterval: 30 * time.Second,
		BackoffMultiplier:    1,
		PingInterval:         15 * time.Second,
		ConnectTimeout:       10 * time.Second,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = def.ReconnectInterval
	}
	if o.ReconnectMaxInterval == 0 {
		o.ReconnectMaxInterval = def.ReconnectMaxInterval
	}
	if o.BackoffMultiplier == 0 {
		o.BackoffMultiplier = def.BackoffMultiplier
	}
	if o.PingInterval == 0 {
		o.PingInterval = def.PingInterval
	}
}

// Client owns the realtime connection lifecycle: it opens the transport,
// keeps it alive with heartbeats, reconnects after unexpected closes within
// the retry budget, and routes inbound envelopes to listeners.
//
// All state mutations are funneled through a single mutex; a connection
// generation counter keeps callbacks from abandoned transports from
// affecting the current connection.
type Client struct {
	opts       Options
	transport  Transport
	logger     *slog.Logger
	dispatcher *Dispatcher
	policy     *reconnectPolicy
	heartbeat  *heartbeatTimer

	mu        sync.Mutex
	state     ConnectionState
	conn      Conn
	gen       uint64
	sessionID string
}

// NewClient creates a realtime client over the given transport.
func NewClient(transport Transport, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()

	return &Client{
		opts:       opts,
		transport:  transport,
		logger:     logger,
		dispatcher: NewDispatcher(logger),
		policy: newReconnectPolicy(
			opts.ReconnectAttempts,
			opts.ReconnectInterval,
			opts.ReconnectMaxInterval,
			opts.BackoffMultiplier,
		),
		heartbeat: newHeartbeatTimer(logger),
		state:     StateDisconnected,
	}
}

// Connect opens the transport for the given session and blocks until the
// open succeeds or fails. Calling Connect while already connecting or
// connected is a no-op and never opens a second transport. A failed open
// surfaces to the caller and still feeds the reconnect policy.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateConnected, StateDisconnecting:
		c.mu.Unlock()
		return nil
	}

	// Fresh connection lifetime: abandon any pending retry from a previous
	// one and start with a full budget.
	c.gen++
	gen := c.gen
	c.policy.cancel()
	c.policy.reset()
	c.sessionID = sessionID
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, sessionID)
	return c.finishDial(conn, err, gen, true)
}

// Disconnect tears down the connection from any state: it cancels a pending
// reconnect, stops the heartbeat, closes the transport, and leaves the
// client disconnected. It is idempotent, and no heartbeat or reconnect fires
// after it returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	c.gen++
	c.policy.cancel()
	c.heartbeat.Stop()
	c.setStateLocked(StateDisconnecting)
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send serializes and transmits the envelope when connected. When not
// connected the envelope is dropped, not queued; delivery is not guaranteed
// across reconnects (see DESIGN.md).
func (c *Client) Send(env Envelope) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("dropping outbound envelope",
			"event_type", env.Type,
			"state", state,
		)
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	data, err := Encode(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// On registers a listener for an event type. The registry persists across
// reconnects.
func (c *Client) On(eventType string, fn Listener) {
	c.dispatcher.On(eventType, fn)
}

// Off removes a previously registered listener.
func (c *Client) Off(eventType string, fn Listener) {
	c.dispatcher.Off(eventType, fn)
}

// Status returns the current connection state.
func (c *Client) Status() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// dial opens the transport, bounded by ConnectTimeout when set.
func (c *Client) dial(ctx context.Context, sessionID string) (Conn, error) {
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}
	return c.transport.Dial(ctx, sessionID)
}

// finishDial applies the outcome of a transport open attempt. surface
// controls whether a failure is returned to the caller; only the explicit
// Connect surfaces errors, scheduled retries report through Status.
func (c *Client) finishDial(conn Conn, err error, gen uint64, surface bool) error {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Abandoned by an explicit Disconnect while the open was in flight.
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}

	if err != nil {
		c.setStateLocked(StateError)
		c.scheduleRetryLocked()
		c.mu.Unlock()
		if surface {
			return fmt.Errorf("open transport: %w", err)
		}
		return nil
	}

	c.conn = conn
	c.setStateLocked(StateConnected)
	c.policy.reset()
	c.heartbeat.Start(c.opts.PingInterval, c.Send)
	go c.readLoop(conn, gen)
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("realtime connected", "session_id", sessionID)
	return nil
}

// readLoop decodes inbound frames and dispatches them until the transport
// closes.
func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}

		env, derr := Decode(data)
		if derr != nil {
			// Malformed frames are dropped; the connection stays open.
			c.logger.Warn("dropping malformed frame", "error", derr)
			continue
		}

		c.dispatcher.Dispatch(env)
	}
}

// handleClose reacts to a transport close observed by the read loop. A close
// from an abandoned or superseded connection is ignored.
func (c *Client) handleClose(conn Conn, gen uint64, err error) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.conn != conn {
		return
	}

	c.logger.Warn("connection closed unexpectedly", "error", err)
	c.heartbeat.Stop()
	c.conn = nil
	c.setStateLocked(StateError)
	c.scheduleRetryLocked()
}

// scheduleRetryLocked arms the next reconnect attempt or, with the budget
// spent, lands in the terminal disconnected state.
func (c *Client) scheduleRetryLocked() {
	if !c.policy.shouldRetry() {
		c.logger.Warn("reconnect attempts exhausted",
			"attempts", c.policy.attemptsMade(),
		)
		c.setStateLocked(StateDisconnected)
		return
	}

	gen := c.gen
	c.policy.scheduleNext(func() { c.retry(gen) })
}

// retry is the reconnect timer callback. It re-checks state first: an
// explicit Disconnect may race with a scheduled retry.
func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateError {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Info("attempting reconnection",
		"session_id", sessionID,
		"attempt", c.policy.attemptsMade(),
	)

	conn, err := c.dial(context.Background(), sessionID)
	c.finishDial(conn, err, gen, false)
}

func (c *Client) setStateLocked(next ConnectionState) {
	if c.state == next {
		return
	}
	c.logger.Debug("state transition", "from", c.state, "to", next)
	c.state = next
}
