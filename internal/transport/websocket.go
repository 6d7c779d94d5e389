// Package transport implements the stream connection seam on top of
// gorilla/websocket.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"volspike/internal/platform"
)

const (
	handshakeTimeout = 10 * time.Second
	readBufferSize   = 1 << 20
	closeGrace       = time.Second
)

// WebsocketDialer opens websocket connections with a generous read buffer
// sized for combined-stream array frames.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   readBufferSize,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (platform.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close writes a close control frame so the peer sees a clean shutdown,
// then drops the TCP connection.
func (c *wsConn) Close(code int, reason string) error {
	deadline := time.Now().Add(closeGrace)
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return c.conn.Close()
}
