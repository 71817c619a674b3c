package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lob_go/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	HandshakeTimeout = 10 * time.Second
	ReadTimeout      = 60 * time.Second
	PingInterval     = 30 * time.Second
)

// WSConn is a websocket connection shared by the venue workers: one reader,
// any number of serialized writers, and Close from anywhere.
type WSConn struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// Dial opens url. Handshake failures are retriable network errors.
func (c *WSConn) Dial(ctx context.Context, url string, header http.Header) error {
	dialer := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *WSConn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Write sends one message. Safe for concurrent use.
func (c *WSConn) Write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return domain.NewNetworkError("write", domain.ErrNotConnected)
	}
	if err := c.conn.WriteMessage(msgType, data); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}

// Read returns the next message, failing after ReadTimeout of silence.
func (c *WSConn) Read() ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, domain.NewNetworkError("read", domain.ErrNotConnected)
	}

	conn.SetReadDeadline(time.Now().Add(ReadTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, domain.NewNetworkError("read", err)
	}
	return msg, nil
}

// CloseOnDone closes the connection when ctx ends, unblocking Read.
// The returned func stops the watcher.
func (c *WSConn) CloseOnDone(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// PingLoop keeps the connection alive until ctx ends or a write fails.
// A nil text payload sends protocol ping frames instead of text pings.
func (c *WSConn) PingLoop(ctx context.Context, interval time.Duration, text []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error
			if text == nil {
				err = c.ping()
			} else {
				err = c.Write(websocket.TextMessage, text)
			}
			if err != nil {
				return
			}
		}
	}
}

func (c *WSConn) ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return domain.NewNetworkError("ping", domain.ErrNotConnected)
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(HandshakeTimeout))
}

func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
