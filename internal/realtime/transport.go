package realtime

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport opens realtime connections addressed by session.
type Transport interface {
	// Dial opens a connection for the given session identifier.
	Dial(ctx context.Context, sessionID string) (Conn, error)
}

// Conn is a single full-duplex realtime connection.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or a read error.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one outbound frame.
	WriteMessage(data []byte) error

	// Close closes the connection.
	Close() error
}

// WebSocketTransport dials the dashboard's realtime endpoint over WebSocket.
type WebSocketTransport struct {
	baseURL          string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
}

// NewWebSocketTransport creates a transport for the given base URL
// (e.g. wss://api.example.com/realtime).
func NewWebSocketTransport(baseURL string, handshakeTimeout, writeTimeout time.Duration) *WebSocketTransport {
	if handshakeTimeout == 0 {
		handshakeTimeout = 10 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}
	return &WebSocketTransport{
		baseURL:          strings.TrimRight(baseURL, "/"),
		handshakeTimeout: handshakeTimeout,
		writeTimeout:     writeTimeout,
	}
}

// Dial opens the session's event stream.
func (t *WebSocketTransport) Dial(ctx context.Context, sessionID string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
	}

	endpoint := t.baseURL + "/sessions/" + url.PathEscape(sessionID)
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return &wsConn{conn: conn, writeTimeout: t.writeTimeout}, nil
}

// wsConn adapts a gorilla connection to the Conn interface.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return c.conn.Close()
}
