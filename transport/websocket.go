// Package transport adapts message-oriented connections to the byte streams
// a link runs on.
//
// A WebSocket carries link frames as binary messages. Each Write becomes one
// message; Read concatenates message payloads back into a byte stream, so
// frame boundaries and message boundaries need not agree.
//
//	link ──Write(frame)──→ WebSocketConn ──BinaryMessage──→ peer
//	link ←──Read(p)─────── WebSocketConn ←──NextReader()─── peer
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNoReadDeadline is returned by WebSocketConn.SetReadDeadline. A gorilla
// connection is unusable after a read times out, so reads are never bounded
// and a link on top of it blocks in Read instead of polling.
var ErrNoReadDeadline = errors.New("transport: websocket reads cannot be interrupted")

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// WebSocketConn presents a websocket as a net.Conn.
type WebSocketConn struct {
	ws  *websocket.Conn
	r   io.Reader  // current message, nil between messages
	wmu sync.Mutex // gorilla allows one concurrent writer
}

func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

// Read must not be called concurrently; a link has exactly one reader.
func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.r = r
		}

		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *WebSocketConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close message on a best-effort basis and drops the connection.
func (c *WebSocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *WebSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *WebSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *WebSocketConn) SetDeadline(t time.Time) error {
	return ErrNoReadDeadline
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return ErrNoReadDeadline
}

func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// DialWebSocket opens a websocket to url and returns it as a stream.
func DialWebSocket(ctx context.Context, url string) (*WebSocketConn, error) {
	ws, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket upgrade failed (%d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
		}
		return nil, err
	}
	return NewWebSocketConn(ws), nil
}

// WebSocketListener is an http.Handler that upgrades requests and hands the
// resulting connections out through the net.Listener interface, so a server
// accepts websocket peers exactly like TCP peers.
type WebSocketListener struct {
	upgrader websocket.Upgrader
	addr     net.Addr
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
	srv      *http.Server // set by ListenWebSocket
}

func NewWebSocketListener(addr net.Addr) *WebSocketListener {
	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // admission is decided on the accepted connection
			},
		},
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// ListenWebSocket binds address and serves websocket upgrades on path.
func ListenWebSocket(network, address, path string) (*WebSocketListener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	l := NewWebSocketListener(ln.Addr())
	mux := http.NewServeMux()
	mux.Handle(path, l)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *WebSocketListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade has already answered the request
	}

	c := NewWebSocketConn(ws)
	select {
	case l.conns <- c:
	case <-l.done:
		c.Close()
	}
}

func (l *WebSocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops accepting. Connections already handed out stay open.
func (l *WebSocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.srv != nil {
			err = l.srv.Close()
		}
	})
	return err
}

func (l *WebSocketListener) Addr() net.Addr {
	return l.addr
}
