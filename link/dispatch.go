package link

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mini-link/middleware"
	"mini-link/protocol"
)

type callKey struct{}

type invocationKey struct{}

type invocation struct {
	method Method
	args   Args
}

// CallID returns the message id of the request being served by ctx. Handlers
// receive such a context; Transfer needs it to address its final response.
func CallID(ctx context.Context) (int32, bool) {
	id, ok := ctx.Value(callKey{}).(int32)
	return id, ok
}

// schedule hands a request to the executor. The reader never runs handlers itself.
func (l *Link) schedule(f *protocol.Frame) {
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("dispatch panicked", zap.String("method", f.Command), zap.Any("panic", r))
			}
		}()
		l.dispatch(f)
	}
	if err := l.opts.executor.Execute(l.ctx, task); err != nil {
		l.logger.Warn("dropping request, executor refused it",
			zap.String("method", f.Command), zap.Int32("id", f.ID), zap.Error(err))
	}
}

func (l *Link) dispatch(f *protocol.Frame) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()

	m, ok := h.Lookup(f.Command, len(f.Args))
	if !ok {
		l.logger.Debug("no such method", zap.String("method", f.Command), zap.Int("arity", len(f.Args)))
		if l.opts.replyUnknown && !l.transferring.Load() {
			l.respond(-f.ID, fmt.Sprintf("no such method %s/%d", f.Command, len(f.Args)))
		}
		return
	}

	ctx := context.WithValue(l.ctx, callKey{}, f.ID)
	ctx = context.WithValue(ctx, invocationKey{}, &invocation{
		method: m,
		args:   Args{raw: f.Args, codec: l.opts.codec},
	})
	result, err := l.invoke(ctx, &middleware.Call{Method: f.Command, ID: f.ID, Arity: len(f.Args)})

	// After a transfer the stream belongs to someone else.
	if m.Void || l.transferring.Load() {
		if err != nil {
			l.logger.Debug("call failed, nobody is waiting", zap.String("method", f.Command), zap.Error(err))
		}
		return
	}
	if err != nil {
		l.respond(-f.ID, err.Error())
		return
	}
	l.respond(f.ID, result)
}

// invokeMethod is the innermost handler of the middleware chain.
func (l *Link) invokeMethod(ctx context.Context, call *middleware.Call) (result any, err error) {
	inv := ctx.Value(invocationKey{}).(*invocation)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", call.Method, r)
		}
	}()
	return inv.method.Invoke(ctx, inv.args)
}

// respond writes a response frame. A result that cannot be encoded is reported
// to the caller as a failure; a broken stream closes the link.
func (l *Link) respond(id int32, result any) {
	f, err := l.frame("", id, []any{result})
	if err != nil {
		l.logger.Warn("encoding result failed", zap.Int32("id", id), zap.Error(err))
		if id < 0 {
			return
		}
		if f, err = l.frame("", -id, []any{err.Error()}); err != nil {
			return
		}
	}
	if err := l.write(f); err != nil {
		l.logger.Info("writing response failed, closing link", zap.Int32("id", id), zap.Error(err))
		l.Close()
	}
}
