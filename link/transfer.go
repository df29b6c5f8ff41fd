package link

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Transfer hands the stream over to another protocol. It must be called from
// a handler, with the handler's ctx: the reader is stopped, result (if not nil)
// is sent as the response to the current request, and the link shuts down
// without closing the stream. The successor takes the stream from Handoff.
//
// Responses for requests still running are discarded once Transfer starts.
func (l *Link) Transfer(ctx context.Context, result any) error {
	id, ok := CallID(ctx)
	if !ok {
		return ErrNoCallContext
	}
	if !l.closing.CompareAndSwap(false, true) {
		return ErrClosed
	}
	l.transferring.Store(true)
	l.cancel()
	l.wake()
	if l.started.Load() {
		<-l.readerDone
	}

	l.rmu.Lock()
	if l.deadline != nil {
		_ = l.deadline.SetReadDeadline(time.Time{})
	}
	l.rmu.Unlock()

	var err error
	if result != nil {
		err = l.sendFinal(id, result)
	}

	l.teardown()
	l.logger.Info("link transferred", zap.Int32("id", id), zap.Error(err))
	return err
}

func (l *Link) sendFinal(id int32, result any) error {
	f, err := l.frame("", id, []any{result})
	if err != nil {
		return err
	}
	if err := l.write(f); err != nil {
		return fmt.Errorf("link: sending transfer response: %w", err)
	}
	return nil
}

// Handoff returns the stream after a completed Transfer. The reader includes
// any bytes the link had already buffered, so the successor sees the stream
// exactly where the link stopped.
func (l *Link) Handoff() (io.Reader, io.WriteCloser, error) {
	if !l.transferring.Load() {
		return nil, nil, ErrNotTransferred
	}
	select {
	case <-l.done:
		return l.br, l.rwc, nil
	default:
		return nil, nil, ErrNotTransferred
	}
}
