// Package server accepts connections and turns each admitted one into a link.
//
// Connection pipeline:
//
//	Accept conn → admission policy ──rejected──→ close, no link
//	  → link.New(conn) → tracked → factory(link) → link.Open(handler)
//	    → link finishes (Close, peer gone, Transfer) → untracked
//
// The accept loop runs in its own goroutine. Accept errors are logged and
// retried after a backoff; Stop interrupts the backoff.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-link/link"
	"mini-link/registry"
)

const (
	// DefaultBackoff is the pause after a failed Accept.
	DefaultBackoff = time.Second
	// DefaultAnnounceInterval is how often the announcement is refreshed.
	DefaultAnnounceInterval = 5 * time.Second
)

var (
	ErrServerClosed  = errors.New("server: closed")
	ErrServerStarted = errors.New("server: already started")
)

type options struct {
	admission     AdmissionPolicy
	linkOpts      []link.Option
	logger        *zap.Logger
	backoff       time.Duration
	announcer     registry.Announcer
	announceEvery time.Duration
	advertiseAddr string
}

type Option func(*options)

// WithAdmission filters peers by address. The default admits everyone.
func WithAdmission(p AdmissionPolicy) Option { return func(o *options) { o.admission = p } }

// WithLinkOptions applies opts to every link the server creates.
func WithLinkOptions(opts ...link.Option) Option {
	return func(o *options) { o.linkOpts = append(o.linkOpts, opts...) }
}

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithBackoff sets the pause after a failed Accept (default 1s).
func WithBackoff(d time.Duration) Option { return func(o *options) { o.backoff = d } }

// WithAnnouncer publishes the bound address through a on start, refreshes it
// every interval and withdraws it on Stop.
func WithAnnouncer(a registry.Announcer, interval time.Duration) Option {
	return func(o *options) {
		o.announcer = a
		o.announceEvery = interval
	}
}

// WithAdvertiseAddr announces addr instead of the listener's address, which
// may be a wildcard such as [::]:8080 that peers cannot dial.
func WithAdvertiseAddr(addr string) Option { return func(o *options) { o.advertiseAddr = addr } }

// Server hands every admitted connection to a fresh link.
type Server struct {
	name    string
	factory link.HandlerFactory
	opts    options
	logger  *zap.Logger

	g        errgroup.Group
	stop     chan struct{}
	started  atomic.Bool
	shutdown atomic.Bool // set before the listener closes so Accept errors read as intentional
	stopOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
	links    map[*link.Link]struct{}
}

// New creates a server whose links are named name and served by handlers
// from factory. A nil factory, or a factory returning nil, serves nothing.
func New(name string, factory link.HandlerFactory, opts ...Option) *Server {
	o := options{
		logger:        zap.NewNop(),
		backoff:       DefaultBackoff,
		announceEvery: DefaultAnnounceInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.announceEvery <= 0 {
		o.announceEvery = DefaultAnnounceInterval
	}

	return &Server{
		name:    name,
		factory: factory,
		opts:    o,
		logger:  o.logger.With(zap.String("server", name)),
		stop:    make(chan struct{}),
		links:   make(map[*link.Link]struct{}),
	}
}

// Listen binds network/address and starts serving. Use port 0 to pick a free
// port and Addr to learn it.
func (s *Server) Listen(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	if err := s.Start(ln); err != nil {
		ln.Close()
		return err
	}
	return nil
}

// Start serves connections from ln until Stop. It does not block.
func (s *Server) Start(ln net.Listener) error {
	if s.shutdown.Load() {
		return ErrServerClosed
	}
	if s.started.Swap(true) {
		return ErrServerStarted
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", zap.Stringer("addr", ln.Addr()))
	s.g.Go(s.acceptLoop)

	if s.opts.announcer != nil {
		ep := registry.Endpoint{Name: s.name, Addr: s.advertiseAddr()}
		s.announce(ep)
		s.g.Go(func() error { return s.announceLoop(ep) })
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Name() string {
	return s.name
}

// Links returns the number of live links.
func (s *Server) Links() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Stop closes the listener, waits for the accept loop, closes every live link
// and withdraws the announcement. It is idempotent.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		// Step 1: flag first, so the Accept error caused by Close is not reported
		s.shutdown.Store(true)
		close(s.stop)

		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}

		// Step 2: join the accept and announce tasks
		if gerr := s.g.Wait(); gerr != nil && err == nil {
			err = gerr
		}

		// Step 3: no link can be added any more
		s.mu.Lock()
		links := make([]*link.Link, 0, len(s.links))
		for l := range s.links {
			links = append(links, l)
		}
		s.mu.Unlock()
		for _, l := range links {
			l.Close()
		}

		if s.opts.announcer != nil && ln != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			ep := registry.Endpoint{Name: s.name, Addr: s.advertiseAddr()}
			if werr := s.opts.announcer.Withdraw(ctx, ep); werr != nil {
				s.logger.Warn("withdrawing announcement", zap.Error(werr))
			}
		}
		s.logger.Info("stopped", zap.Int("links", len(links)))
	})
	return err
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.logger.Error("listener closed underneath the server", zap.Error(err))
				return err
			}
			s.logger.Error("accept failed", zap.Error(err), zap.Duration("backoff", s.opts.backoff))
			select {
			case <-s.stop:
				return nil
			case <-time.After(s.opts.backoff):
			}
			continue
		}
		s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	remote := conn.RemoteAddr()
	if s.opts.admission != nil && !s.opts.admission(remote) {
		s.logger.Warn("rejecting connection", zap.Stringer("remote", remote))
		conn.Close()
		return
	}

	opts := append([]link.Option{link.WithName(s.name), link.WithLogger(s.logger)}, s.opts.linkOpts...)
	l := link.New(conn, opts...)
	if !s.track(l) {
		l.Close()
		return
	}

	var h link.Handler
	if s.factory != nil {
		h = s.factory(l)
	}
	if err := l.Open(h); err != nil {
		s.logger.Warn("opening link", zap.Error(err))
		l.Close()
	} else {
		s.logger.Debug("link accepted", zap.Stringer("remote", remote), zap.String("link", l.ID()))
	}

	go func() {
		<-l.Done()
		s.untrack(l)
	}()
}

func (s *Server) track(l *link.Link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.links[l] = struct{}{}
	return true
}

func (s *Server) untrack(l *link.Link) {
	s.mu.Lock()
	delete(s.links, l)
	s.mu.Unlock()
}

func (s *Server) advertiseAddr() string {
	if s.opts.advertiseAddr != "" {
		return s.opts.advertiseAddr
	}
	if a := s.Addr(); a != nil {
		return a.String()
	}
	return ""
}

func (s *Server) announce(ep registry.Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.announcer.Announce(ctx, ep); err != nil {
		s.logger.Warn("announce failed", zap.String("addr", ep.Addr), zap.Error(err))
	}
}

func (s *Server) announceLoop(ep registry.Endpoint) error {
	ticker := time.NewTicker(s.opts.announceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.announce(ep)
		}
	}
}
