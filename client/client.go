// Package client opens links to a server. There is no discovery and no
// reconnection: the caller supplies the address and owns the returned link.
package client

import (
	"context"
	"net"

	"mini-link/link"
	"mini-link/transport"
)

var dialer net.Dialer

// Dial connects to a TCP (or unix) address and opens a link on the
// connection. factory may be nil for a client that serves nothing.
func Dial(ctx context.Context, network, address string, factory link.HandlerFactory, opts ...link.Option) (*link.Link, error) {
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return Connect(conn, factory, opts...)
}

// DialWebSocket connects to a ws:// or wss:// url served by a
// transport.WebSocketListener.
func DialWebSocket(ctx context.Context, url string, factory link.HandlerFactory, opts ...link.Option) (*link.Link, error) {
	conn, err := transport.DialWebSocket(ctx, url)
	if err != nil {
		return nil, err
	}
	return Connect(conn, factory, opts...)
}

// Connect opens a link on an established connection.
func Connect(conn net.Conn, factory link.HandlerFactory, opts ...link.Option) (*link.Link, error) {
	l := link.New(conn, opts...)
	var h link.Handler
	if factory != nil {
		h = factory(l)
	}
	if err := l.Open(h); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}
