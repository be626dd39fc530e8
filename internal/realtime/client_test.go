package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Closing it unblocks ReadMessage with
// io.EOF, which the client treats as an unexpected close unless it initiated
// the teardown itself.
type fakeConn struct {
	inbox chan []byte
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// deliver pushes an encoded envelope into the connection's inbox.
func (c *fakeConn) deliver(t *testing.T, eventType, data string) {
	t.Helper()
	frame, err := Encode(Envelope{
		Type:      eventType,
		Data:      json.RawMessage(data),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("encode test envelope: %v", err)
	}
	c.inbox <- frame
}

// fakeTransport hands out fakeConns. Dials at or past failFrom (when >= 0)
// fail. A non-nil gate blocks Dial until released, for racing Disconnect
// against an in-flight open.
type fakeTransport struct {
	mu          sync.Mutex
	conns       []*fakeConn
	dials       int
	failFrom    int
	gate        chan struct{}
	lastSession string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFrom: -1}
}

func (t *fakeTransport) Dial(ctx context.Context, sessionID string) (Conn, error) {
	t.mu.Lock()
	idx := t.dials
	t.dials++
	t.lastSession = sessionID
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFrom >= 0 && idx >= t.failFrom {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSession
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.conns) {
		return nil
	}
	return t.conns[i]
}

func waitForStatus(t *testing.T, c *Client, want ConnectionState) {
	t.Helper()
	deadline := time.After(time.Second)
	for c.Status() != want {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for status %v, have %v", want, c.Status())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func waitForDials(t *testing.T, ft *fakeTransport, want int) {
	t.Helper()
	deadline := time.After(time.Second)
	for ft.dialCount() < want {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for dial %d, have %d", want, ft.dialCount())
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func testOptions() Options {
	return Options{
		ReconnectAttempts: 3,
		ReconnectInterval: 20 * time.Millisecond,
		PingInterval:      time.Hour, // heartbeat out of the way unless a test wants it
	}
}

func TestClientConnect(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	if got := c.Status(); got != StateDisconnected {
		t.Fatalf("initial status = %v, want disconnected", got)
	}

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := c.Status(); got != StateConnected {
		t.Errorf("status = %v, want connected", got)
	}
	if got := ft.session(); got != "s1" {
		t.Errorf("dialed session = %q, want s1", got)
	}

	c.Disconnect()
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status after Disconnect = %v, want disconnected", got)
	}
	if !ft.conn(0).isClosed() {
		t.Error("transport not closed by Disconnect")
	}
}

func TestClientConnectWhileConnected(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	// Second connect must not open a second transport.
	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Errorf("re-Connect returned error: %v", err)
	}
	if got := ft.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestClientDisconnectIdempotent(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	c.Disconnect()
	c.Disconnect()

	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}

	// Disconnect on a never-connected client is also a no-op.
	fresh := NewClient(newFakeTransport(), testOptions(), nil)
	fresh.Disconnect()
	if got := fresh.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
}

func TestClientSendWhileDisconnected(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	env, _ := NewEnvelope(EventSessionUpdate, map[string]int{"x": 1})
	if err := c.Send(env); err != nil {
		t.Errorf("Send while disconnected returned error: %v", err)
	}
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected (Send must not connect)", got)
	}
	if ft.dialCount() != 0 {
		t.Error("Send while disconnected dialed the transport")
	}
}

func TestClientSendWhileConnected(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	env, _ := NewEnvelope(EventSessionUpdate, map[string]int{"x": 1})
	if err := c.Send(env); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	conn := ft.conn(0)
	if got := conn.writeCount(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
	conn.mu.Lock()
	frame := conn.writes[0]
	conn.mu.Unlock()

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}
	if decoded.Type != EventSessionUpdate {
		t.Errorf("written type = %q, want %q", decoded.Type, EventSessionUpdate)
	}
}

func TestClientDispatchesInboundEvents(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	got := make(chan string, 4)
	c.On(EventAnalysisProgress, func(data json.RawMessage) { got <- string(data) })

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	ft.conn(0).deliver(t, EventAnalysisProgress, `{"percent":40}`)

	select {
	case data := <-got:
		if data != `{"percent":40}` {
			t.Errorf("data = %s, want {\"percent\":40}", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dispatched event")
	}
}

func TestClientMalformedFrameKeepsConnection(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	got := make(chan string, 1)
	c.On(EventSessionUpdate, func(data json.RawMessage) { got <- string(data) })

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	conn := ft.conn(0)
	conn.inbox <- []byte("{not json")
	conn.inbox <- []byte(`{"data":{"x":1}}`) // missing type
	conn.deliver(t, EventSessionUpdate, `{"status":"done"}`)

	select {
	case data := <-got:
		if data != `{"status":"done"}` {
			t.Errorf("data = %s, want the valid frame's payload", data)
		}
	case <-time.After(time.Second):
		t.Fatal("valid frame not dispatched after malformed ones")
	}

	if got := c.Status(); got != StateConnected {
		t.Errorf("status = %v, want connected after malformed frames", got)
	}
}

func TestClientReconnectsAfterUnexpectedClose(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	// Server drops the connection. Status alone can't signal the reconnect
	// (the client is connected on both sides of it), so wait for the second
	// dial before asserting on the new transport.
	ft.conn(0).Close()

	waitForDials(t, ft, 2)
	waitForStatus(t, c, StateConnected)

	// Listener registry survives the reconnect.
	got := make(chan string, 1)
	c.On(EventSessionUpdate, func(data json.RawMessage) { got <- string(data) })
	ft.conn(1).deliver(t, EventSessionUpdate, `{}`)

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("event not dispatched on reconnected transport")
	}
}

func TestClientBoundedRetry(t *testing.T) {
	ft := newFakeTransport()
	opts := Options{
		ReconnectAttempts: 1,
		ReconnectInterval: 20 * time.Millisecond,
		PingInterval:      time.Hour,
	}
	c := NewClient(ft, opts, nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Every dial after the first fails: the single retry is spent and no
	// further attempt may be scheduled.
	ft.mu.Lock()
	ft.failFrom = 1
	ft.mu.Unlock()

	ft.conn(0).Close()

	waitForStatus(t, c, StateDisconnected)
	if got := ft.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2 (initial + exactly one retry)", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := ft.dialCount(); got != 2 {
		t.Errorf("dials = %d after settling, want still 2", got)
	}
}

func TestClientExplicitConnectAfterExhaustion(t *testing.T) {
	ft := newFakeTransport()
	opts := Options{
		ReconnectAttempts: 1,
		ReconnectInterval: 10 * time.Millisecond,
		PingInterval:      time.Hour,
	}
	c := NewClient(ft, opts, nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ft.mu.Lock()
	ft.failFrom = 1
	ft.mu.Unlock()
	ft.conn(0).Close()
	waitForStatus(t, c, StateDisconnected)

	// Manual retry starts a fresh lifetime with a fresh budget.
	ft.mu.Lock()
	ft.failFrom = -1
	ft.mu.Unlock()

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect after exhaustion failed: %v", err)
	}
	defer c.Disconnect()

	if got := c.Status(); got != StateConnected {
		t.Errorf("status = %v, want connected", got)
	}
}

func TestClientConnectFailureSurfaces(t *testing.T) {
	ft := newFakeTransport()
	ft.failFrom = 0
	opts := Options{
		ReconnectAttempts: 0,
		ReconnectInterval: 10 * time.Millisecond,
		PingInterval:      time.Hour,
	}
	c := NewClient(ft, opts, nil)

	err := c.Connect(context.Background(), "s1")
	if err == nil {
		t.Fatal("Connect returned nil for a failed open")
	}
	// No retry budget: terminal disconnected.
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
}

func TestClientDisconnectCancelsPendingReconnect(t *testing.T) {
	ft := newFakeTransport()
	opts := Options{
		ReconnectAttempts: 3,
		ReconnectInterval: 50 * time.Millisecond,
		PingInterval:      time.Hour,
	}
	c := NewClient(ft, opts, nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ft.conn(0).Close()
	waitForStatus(t, c, StateError)

	// Disconnect while the retry timer is pending.
	c.Disconnect()

	time.Sleep(150 * time.Millisecond)
	if got := ft.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1 (retry must not fire after Disconnect)", got)
	}
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}
}

func TestClientDisconnectDuringConnect(t *testing.T) {
	ft := newFakeTransport()
	gate := make(chan struct{})
	ft.gate = gate
	c := NewClient(ft, testOptions(), nil)

	connectDone := make(chan error, 1)
	go func() {
		connectDone <- c.Connect(context.Background(), "s1")
	}()

	// Wait for the dial to start, then disconnect before it completes.
	waitForDials(t, ft, 1)
	c.Disconnect()

	// Release the dial: the open from the abandoned attempt must be ignored.
	close(gate)

	if err := <-connectDone; err != nil {
		t.Errorf("abandoned Connect returned error: %v", err)
	}
	if got := c.Status(); got != StateDisconnected {
		t.Errorf("status = %v, want disconnected", got)
	}

	conn := ft.conn(0)
	if conn == nil {
		t.Fatal("transport produced no connection")
	}
	if !conn.isClosed() {
		t.Error("abandoned transport left open")
	}
}

func TestClientHeartbeat(t *testing.T) {
	ft := newFakeTransport()
	opts := Options{
		ReconnectAttempts: 0,
		ReconnectInterval: time.Hour,
		PingInterval:      20 * time.Millisecond,
	}
	c := NewClient(ft, opts, nil)

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := ft.conn(0)
	deadline := time.After(time.Second)
	for conn.writeCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no heartbeat sent while connected")
		case <-time.After(5 * time.Millisecond):
		}
	}

	conn.mu.Lock()
	frame := conn.writes[0]
	conn.mu.Unlock()
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode heartbeat frame: %v", err)
	}
	if env.Type != EventPing {
		t.Errorf("heartbeat type = %q, want %q", env.Type, EventPing)
	}
	if env.Timestamp.IsZero() {
		t.Error("heartbeat timestamp not set by sender")
	}

	c.Disconnect()
	n := conn.writeCount()
	time.Sleep(80 * time.Millisecond)
	if got := conn.writeCount(); got != n {
		t.Errorf("writes after Disconnect = %d, want %d (no heartbeat after Disconnect)", got, n)
	}
}

func TestClientOffStopsDelivery(t *testing.T) {
	ft := newFakeTransport()
	c := NewClient(ft, testOptions(), nil)

	calls := make(chan struct{}, 4)
	fn := func(json.RawMessage) { calls <- struct{}{} }
	c.On(EventAnalysisProgress, fn)
	c.Off(EventAnalysisProgress, fn)

	keep := make(chan struct{}, 1)
	c.On(EventSessionUpdate, func(json.RawMessage) { keep <- struct{}{} })

	if err := c.Connect(context.Background(), "s1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Disconnect()

	conn := ft.conn(0)
	conn.deliver(t, EventAnalysisProgress, `{}`)
	conn.deliver(t, EventSessionUpdate, `{}`)

	select {
	case <-keep:
	case <-time.After(time.Second):
		t.Fatal("sentinel event not delivered")
	}
	select {
	case <-calls:
		t.Error("removed listener was invoked")
	default:
	}
}
