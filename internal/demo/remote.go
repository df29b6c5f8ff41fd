package demo

import (
	"context"

	"mini-link/link"
)

// Remote is the typed stub for a peer serving Service.
type Remote struct {
	c *link.Caller
}

func NewRemote(c *link.Caller) *Remote {
	return &Remote{c: c}
}

func (r *Remote) Echo(ctx context.Context, v string) (string, error) {
	return link.Invoke[string](ctx, r.c, "echo", v)
}

func (r *Remote) Upper(ctx context.Context, v string) (string, error) {
	return link.Invoke[string](ctx, r.c, "upper", v)
}

func (r *Remote) Fail(ctx context.Context, msg string) (string, error) {
	return link.Invoke[string](ctx, r.c, "fail", msg)
}

func (r *Remote) Sleep(ctx context.Context, ms int) (int, error) {
	return link.Invoke[int](ctx, r.c, "sleep", ms)
}

func (r *Remote) Sum(ctx context.Context, a, b int64) (int64, error) {
	return link.Invoke[int64](ctx, r.c, "sum", a, b)
}

func (r *Remote) Checksum(ctx context.Context, data []byte) (string, error) {
	return link.Invoke[string](ctx, r.c, "checksum", data)
}

// Notify does not wait for the peer.
func (r *Remote) Notify(msg string) error {
	return r.c.Send("notify", msg)
}

func (r *Remote) String() string {
	return r.c.String()
}
