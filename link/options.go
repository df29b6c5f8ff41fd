package link

import (
	"time"

	"go.uber.org/zap"

	"mini-link/codec"
	"mini-link/middleware"
)

const (
	// DefaultCallTimeout is how long a non-void call waits for its response.
	DefaultCallTimeout = 300 * time.Second
	// DefaultPollInterval bounds each idle read so the reader can notice
	// Close and Transfer on a quiet stream.
	DefaultPollInterval = 500 * time.Millisecond
)

type options struct {
	name         string
	codec        codec.Codec
	executor     Executor
	logger       *zap.Logger
	callTimeout  time.Duration
	pollInterval time.Duration
	middlewares  []middleware.Middleware
	replyUnknown bool
}

func defaultOptions() options {
	return options{
		name:         "link",
		codec:        &codec.JSONCodec{},
		executor:     GoExecutor(),
		logger:       zap.NewNop(),
		callTimeout:  DefaultCallTimeout,
		pollInterval: DefaultPollInterval,
	}
}

type Option func(*options)

// WithName labels the link in logs and in its stub's String form.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithCodec sets the serialization used for every non-[]byte argument and result.
func WithCodec(c codec.Codec) Option { return func(o *options) { o.codec = c } }

// WithExecutor sets where incoming requests run. The default starts one goroutine per request.
func WithExecutor(e Executor) Option { return func(o *options) { o.executor = e } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithCallTimeout sets how long non-void calls wait before giving up with no result.
func WithCallTimeout(d time.Duration) Option { return func(o *options) { o.callTimeout = d } }

// WithPollInterval sets the idle read deadline. Zero or negative disables polling.
func WithPollInterval(d time.Duration) Option { return func(o *options) { o.pollInterval = d } }

// WithMiddleware wraps every dispatched request, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithUnknownMethodReplies makes the link answer requests for methods its
// handler lacks with a failure instead of dropping them. Without it the
// peer's caller only learns through its own call timeout.
func WithUnknownMethodReplies() Option { return func(o *options) { o.replyUnknown = true } }
