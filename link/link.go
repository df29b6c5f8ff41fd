// Package link implements a symmetric RPC channel over a single byte stream.
//
// Both ends of a Link are equal: each side serves a local handler to the peer
// and calls the peer's handler through a stub. Requests and responses of both
// directions share the stream.
//
//	goroutine-1 ──Call("echo", id=10000)──┐
//	goroutine-2 ──Call("sum",  id=10001)──┼──→ stream ──→ peer
//	goroutine-3 ──Send("notify")──────────┘    (one frame per Write, under wmu)
//
//	readLoop:  ←── response(id=10001) → pending.Resolve → goroutine-2 wakes up
//	           ←── request("upper", id=10040) → Executor → handler → response(10040)
//
// One reader goroutine owns the stream's read side. It routes responses to the
// pending table and hands requests to the executor, so handlers may call back
// into the peer without deadlocking the link.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mini-link/middleware"
	"mini-link/pending"
	"mini-link/protocol"
)

// initialID seeds the message id generator. Ids stay positive so the sign
// can mark failed responses.
const initialID = 10000

var errStopped = errors.New("link: reader stopped")

// deadliner is implemented by streams whose reads can be bounded in time.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type Link struct {
	id     string
	rwc    io.ReadWriteCloser
	br     *bufio.Reader
	opts   options
	logger *zap.Logger

	nextID  atomic.Int32
	pending *pending.Table
	invoke  middleware.HandlerFunc

	started      atomic.Bool
	closing      atomic.Bool
	transferring atomic.Bool

	mu      sync.Mutex // guards handler and remote
	handler Handler
	remote  *Caller

	wmu sync.Mutex // held for one complete frame write

	rmu      sync.Mutex // orders read deadline changes against wake
	deadline deadliner  // nil when reads cannot be polled
	inFrame  bool       // reader is past the first byte of a frame

	ctx        context.Context // canceled on close or transfer
	cancel     context.CancelFunc
	readerDone chan struct{}
	done       chan struct{}
}

// New wraps rwc in a link. Nothing is read until Open.
func New(rwc io.ReadWriteCloser, opts ...Option) *Link {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		id:         uuid.NewString(),
		rwc:        rwc,
		br:         bufio.NewReader(rwc),
		opts:       o,
		pending:    pending.NewTable(),
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	l.logger = o.logger.With(zap.String("link", l.id), zap.String("name", o.name))
	l.nextID.Store(initialID)
	if d, ok := rwc.(deadliner); ok && o.pollInterval > 0 {
		l.deadline = d
	}
	l.invoke = middleware.Chain(o.middlewares...)(l.invokeMethod)
	return l
}

// Open installs the local handler and starts the reader. A nil handler serves
// nothing. Open works once; it fails with ErrClosed on a closed link.
func (l *Link) Open(h Handler) error {
	if l.started.Swap(true) {
		return ErrAlreadyStarted
	}
	if l.closing.Load() {
		return ErrClosed
	}
	if h == nil {
		h = NewTable()
	}
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()

	go l.readLoop()
	l.logger.Debug("link opened")
	return nil
}

// Close stops the link: the handler is closed if it is an io.Closer, and the
// stream is closed. Callers already blocked in Call keep waiting until their
// timeout or ctx ends. Close is idempotent and safe to call from any
// goroutine, including handlers.
func (l *Link) Close() error {
	if !l.closing.CompareAndSwap(false, true) {
		return nil
	}
	l.teardown()
	return nil
}

// teardown releases everything the link owns. The stream is left open when
// it was transferred.
func (l *Link) teardown() {
	l.cancel()

	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if c, ok := h.(io.Closer); ok {
		if err := c.Close(); err != nil {
			l.logger.Debug("closing handler", zap.Error(err))
		}
	}

	transferred := l.transferring.Load()
	if !transferred {
		if err := l.rwc.Close(); err != nil {
			l.logger.Debug("closing stream", zap.Error(err))
		}
	}
	close(l.done)
	l.logger.Debug("link closed", zap.Bool("transferred", transferred), zap.Int("pending", l.pending.Len()))
}

// IsOpen reports whether the link is neither closing nor transferred.
func (l *Link) IsOpen() bool {
	return !l.closing.Load()
}

// Done is closed once the link has been torn down.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) ID() string   { return l.id }
func (l *Link) Name() string { return l.opts.name }

// Pending returns the number of calls still waiting for a response.
func (l *Link) Pending() int {
	return l.pending.Len()
}

func (l *Link) String() string {
	return "link::" + l.opts.name + "/" + l.id
}

// Remote returns the stub for calling the peer, or nil once the link is closing.
func (l *Link) Remote() *Caller {
	if l.closing.Load() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remote == nil {
		l.remote = &Caller{l: l}
	}
	return l.remote
}

func (l *Link) running() bool {
	return !l.closing.Load() && !l.transferring.Load()
}

// newID hands out positive ids, starting again at initialID after overflow.
func (l *Link) newID() int32 {
	for {
		id := l.nextID.Add(1) - 1
		if id >= initialID {
			return id
		}
		l.nextID.CompareAndSwap(id+1, initialID)
	}
}

// readLoop is the only goroutine reading the stream. It exits when the link
// stops running or the stream fails; a stream failure closes the link.
func (l *Link) readLoop() {
	defer close(l.readerDone)

	for l.running() {
		f, err := l.readFrame()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, errStopped) || !l.running() {
				return
			}
			if errors.Is(err, io.EOF) {
				l.logger.Debug("peer closed the stream")
			} else {
				l.logger.Info("reading from stream failed, closing link", zap.Error(err))
			}
			l.Close()
			return
		}
		// A transfer may have started while the frame was decoded.
		if !l.running() {
			return
		}

		if ce := l.logger.Check(zapcore.DebugLevel, "rx"); ce != nil {
			ce.Write(zap.String("cmd", f.Command), zap.Int32("id", f.ID), zap.Int("args", len(f.Args)))
		}

		if f.IsResponse() {
			l.resolve(f)
			continue
		}
		l.schedule(f)
	}
}

// readFrame waits for the first byte of a frame under the poll deadline, then
// reads the rest of the frame without one so a slow peer cannot split it.
func (l *Link) readFrame() (*protocol.Frame, error) {
	if err := l.armPoll(); err != nil {
		return nil, err
	}
	if _, err := l.br.Peek(1); err != nil {
		return nil, err
	}
	l.disarmPoll()
	return protocol.Decode(l.br)
}

func (l *Link) armPoll() error {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	if !l.running() {
		return errStopped
	}
	l.inFrame = false
	if l.deadline != nil {
		if err := l.deadline.SetReadDeadline(time.Now().Add(l.opts.pollInterval)); err != nil {
			l.logger.Debug("stream cannot poll, reads will block", zap.Error(err))
			l.deadline = nil
		}
	}
	return nil
}

func (l *Link) disarmPoll() {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	l.inFrame = true
	if l.deadline != nil {
		_ = l.deadline.SetReadDeadline(time.Time{})
	}
}

// wake interrupts an idle read so the reader re-checks the link state.
func (l *Link) wake() {
	l.rmu.Lock()
	defer l.rmu.Unlock()

	if l.deadline != nil && !l.inFrame {
		_ = l.deadline.SetReadDeadline(time.Now())
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (l *Link) resolve(f *protocol.Frame) {
	id, failed := f.CallID()
	r := pending.Result{Failed: failed}
	if len(f.Args) > 0 {
		r.Payload = f.Args[0]
	}
	if !l.pending.Resolve(id, r) {
		l.logger.Debug("dropping response for unknown call", zap.Int32("id", id))
	}
}

// frame encodes args into a frame. Nothing is written, so errors here leave
// the stream intact.
func (l *Link) frame(cmd string, id int32, args []any) (*protocol.Frame, error) {
	if len(cmd) > protocol.MaxCommandLen {
		return nil, protocol.ErrCommandTooLong
	}
	if len(args) > protocol.MaxArgs {
		return nil, protocol.ErrTooManyArgs
	}
	f := &protocol.Frame{Command: cmd, ID: id, Args: make([][]byte, len(args))}
	for i, a := range args {
		if b, ok := a.([]byte); ok {
			f.Args[i] = b
			continue
		}
		if a == nil {
			f.Args[i] = l.encodeNil()
			continue
		}
		data, err := l.opts.codec.Encode(a)
		if err != nil {
			return nil, fmt.Errorf("link: encoding argument %d: %w", i, err)
		}
		f.Args[i] = data
	}
	return f, nil
}

// encodeNil returns the codec's encoding of nil, or an empty blob for codecs
// that have none (gob). Both decode to the zero value.
func (l *Link) encodeNil() []byte {
	data, err := l.opts.codec.Encode(nil)
	if err != nil {
		return []byte{}
	}
	return data
}

// write puts one frame on the stream. Any error means the stream is broken.
func (l *Link) write(f *protocol.Frame) error {
	l.wmu.Lock()
	err := protocol.Encode(l.rwc, f)
	l.wmu.Unlock()

	if ce := l.logger.Check(zapcore.DebugLevel, "tx"); ce != nil {
		ce.Write(zap.String("cmd", f.Command), zap.Int32("id", f.ID), zap.Int("args", len(f.Args)), zap.Error(err))
	}
	return err
}
