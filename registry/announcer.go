// Package registry announces where a link server can be reached.
//
// Announcements are for operators and tooling: they record that a server is
// up and on which address. Clients never resolve through them; they dial an
// address they were given.
//
//	FileAnnouncer:  <dir>/<port>                 → "127.0.0.1:<port>"
//	EtcdAnnouncer:  /mini-link/<name>/<addr>     → JSON Endpoint (TTL lease)
package registry

import (
	"context"
)

// Endpoint is one announced server.
type Endpoint struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

type Announcer interface {
	// Announce publishes ep. Announcing the same endpoint again refreshes it.
	Announce(ctx context.Context, ep Endpoint) error
	// Withdraw removes ep. Withdrawing an unknown endpoint is not an error.
	Withdraw(ctx context.Context, ep Endpoint) error
	// List returns the endpoints currently announced under name.
	List(ctx context.Context, name string) ([]Endpoint, error)
}
