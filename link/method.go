package link

import (
	"context"
	"fmt"
	"reflect"

	"mini-link/codec"
)

// Method is one entry of a handler's dispatch table: a name, a parameter
// count and a typed invocation thunk. Void methods never send a response.
type Method struct {
	Name   string
	Arity  int
	Void   bool
	Invoke func(ctx context.Context, args Args) (any, error)
}

// Handler answers requests arriving from the peer. A handler that also
// implements io.Closer is closed when its link closes.
type Handler interface {
	Lookup(name string, arity int) (Method, bool)
}

// HandlerFactory builds the local handler for a freshly created link. It
// receives the link so the handler can call back through link.Remote().
type HandlerFactory func(l *Link) Handler

// Args holds the undecoded argument blobs of a request.
type Args struct {
	raw   [][]byte
	codec codec.Codec
}

// NewArgs wraps raw blobs, decoding non-[]byte parameters with c.
func NewArgs(c codec.Codec, raw ...[]byte) Args {
	return Args{raw: raw, codec: c}
}

func (a Args) Len() int {
	return len(a.raw)
}

// Raw returns the i-th blob exactly as received.
func (a Args) Raw(i int) []byte {
	return a.raw[i]
}

// Decode stores the i-th argument in v. A *[]byte receives the blob verbatim;
// anything else goes through the codec.
func (a Args) Decode(i int, v any) error {
	if p, ok := v.(*[]byte); ok {
		*p = a.raw[i]
		return nil
	}
	setZero(v)
	if len(a.raw[i]) == 0 {
		return nil
	}
	if err := a.codec.Decode(a.raw[i], v); err != nil {
		return fmt.Errorf("argument %d: %w", i, err)
	}
	return nil
}

// Table is a statically registered dispatch table. Lookup returns the first
// method registered under a name with the requested arity. Register every
// method before the table is handed to a link.
type Table struct {
	methods []Method
}

func NewTable(methods ...Method) *Table {
	return &Table{methods: methods}
}

// Add appends methods and returns the table for chaining.
func (t *Table) Add(methods ...Method) *Table {
	t.methods = append(t.methods, methods...)
	return t
}

func (t *Table) Lookup(name string, arity int) (Method, bool) {
	for _, m := range t.methods {
		if m.Name == name && m.Arity == arity {
			return m, true
		}
	}
	return Method{}, false
}

func (t *Table) Methods() []Method {
	return t.methods
}

func arg[T any](args Args, i int) (T, error) {
	var v T
	err := args.Decode(i, &v)
	return v, err
}

func Func0[R any](name string, fn func(ctx context.Context) (R, error)) Method {
	return Method{Name: name, Arity: 0, Invoke: func(ctx context.Context, args Args) (any, error) {
		r, err := fn(ctx)
		return r, err
	}}
}

func Func1[A, R any](name string, fn func(ctx context.Context, a A) (R, error)) Method {
	return Method{Name: name, Arity: 1, Invoke: func(ctx context.Context, args Args) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a)
		return r, err
	}}
}

func Func2[A, B, R any](name string, fn func(ctx context.Context, a A, b B) (R, error)) Method {
	return Method{Name: name, Arity: 2, Invoke: func(ctx context.Context, args Args) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b)
		return r, err
	}}
}

func Func3[A, B, C, R any](name string, fn func(ctx context.Context, a A, b B, c C) (R, error)) Method {
	return Method{Name: name, Arity: 3, Invoke: func(ctx context.Context, args Args) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		c, err := arg[C](args, 2)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b, c)
		return r, err
	}}
}

func Proc0(name string, fn func(ctx context.Context) error) Method {
	return Method{Name: name, Arity: 0, Void: true, Invoke: func(ctx context.Context, args Args) (any, error) {
		return nil, fn(ctx)
	}}
}

func Proc1[A any](name string, fn func(ctx context.Context, a A) error) Method {
	return Method{Name: name, Arity: 1, Void: true, Invoke: func(ctx context.Context, args Args) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, a)
	}}
}

func Proc2[A, B any](name string, fn func(ctx context.Context, a A, b B) error) Method {
	return Method{Name: name, Arity: 2, Void: true, Invoke: func(ctx context.Context, args Args) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, a, b)
	}}
}

// setZero resets the value v points to.
func setZero(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv.Elem().SetZero()
	}
}
