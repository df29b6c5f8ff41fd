// Package middleware wraps the invocation of incoming requests on a link.
//
// Middlewares see every request the link dispatches to its local handler,
// after the method has been resolved and before a response is written.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution order: A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import (
	"context"
)

// Call describes the request being dispatched.
type Call struct {
	Method string // Command name from the frame
	ID     int32  // Message id the response will carry
	Arity  int    // Number of arguments
}

// HandlerFunc invokes the resolved method and returns its result.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
