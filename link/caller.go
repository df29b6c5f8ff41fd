package link

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mini-link/pending"
)

// Caller is the stub for the peer's handler. Every method sends one request
// frame named after the method, with one argument blob per parameter.
//
// A []byte argument is sent verbatim, anything else through the link's codec.
// Results decode the same way: pass a *[]byte to receive the raw blob.
type Caller struct {
	l *Link
}

// Call invokes method on the peer and waits for its response.
//
// The outcome is one of:
//   - the peer's result decoded into reply (the zero value for a nil result)
//   - a *RemoteError when the peer's handler failed
//   - ctx.Err() when ctx is done first
//   - nil with reply untouched when the call timeout expires first; a timeout
//     cannot be told apart from an empty result
//   - ErrClosed, or the write error, when the request could not be sent
func (c *Caller) Call(ctx context.Context, method string, reply any, args ...any) error {
	if c == nil {
		return ErrClosed
	}
	return c.l.call(ctx, method, reply, args)
}

// Send invokes a void method on the peer. It returns once the request is
// written; the peer never answers.
func (c *Caller) Send(method string, args ...any) error {
	if c == nil {
		return ErrClosed
	}
	return c.l.notify(method, args)
}

// Link returns the link the stub calls through.
func (c *Caller) Link() *Link {
	return c.l
}

// String is answered locally and never crosses the wire.
func (c *Caller) String() string {
	return c.l.String()
}

// Invoke is Call with the result returned by value.
func Invoke[R any](ctx context.Context, c *Caller, method string, args ...any) (R, error) {
	var r R
	err := c.Call(ctx, method, &r, args...)
	return r, err
}

func (l *Link) call(ctx context.Context, method string, reply any, args []any) error {
	if l.closing.Load() {
		return ErrClosed
	}
	f, err := l.frame(method, l.newID(), args)
	if err != nil {
		return err
	}

	// Register before writing: the response may beat the return of write.
	call := l.pending.Register(f.ID)
	defer l.pending.Remove(f.ID)

	if err := l.write(f); err != nil {
		l.logger.Info("writing request failed, closing link", zap.String("method", method), zap.Error(err))
		l.Close()
		return fmt.Errorf("link: sending %s: %w", method, err)
	}

	timer := time.NewTimer(l.opts.callTimeout)
	defer timer.Stop()

	select {
	case r := <-call.Done():
		return l.decodeResult(method, r, reply)
	case <-timer.C:
		l.logger.Warn("call timed out",
			zap.String("method", method),
			zap.Int32("id", f.ID),
			zap.Duration("timeout", l.opts.callTimeout))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) notify(method string, args []any) error {
	if l.closing.Load() {
		return ErrClosed
	}
	f, err := l.frame(method, l.newID(), args)
	if err != nil {
		return err
	}
	if err := l.write(f); err != nil {
		l.logger.Info("writing request failed, closing link", zap.String("method", method), zap.Error(err))
		l.Close()
		return fmt.Errorf("link: sending %s: %w", method, err)
	}
	return nil
}

func (l *Link) decodeResult(method string, r pending.Result, reply any) error {
	if r.Failed {
		var msg string
		if err := l.opts.codec.Decode(r.Payload, &msg); err != nil {
			msg = string(r.Payload)
		}
		return &RemoteError{Method: method, Message: msg}
	}
	if reply == nil {
		return nil
	}
	if p, ok := reply.(*[]byte); ok {
		*p = r.Payload
		return nil
	}
	// null and empty payloads leave the zero value behind
	setZero(reply)
	if len(r.Payload) == 0 {
		return nil
	}
	if err := l.opts.codec.Decode(r.Payload, reply); err != nil {
		return fmt.Errorf("link: decoding result of %s: %w", method, err)
	}
	return nil
}
