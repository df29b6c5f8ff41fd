// Package demo is the service linkd serves and linkctl calls, with a
// hand-written stub for each side.
package demo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-link/link"
)

// MaxSleep caps the sleep method so a peer cannot park a worker forever.
const MaxSleep = time.Minute

// Service answers one link. It is closed together with the link.
type Service struct {
	*link.Table
	l      *link.Link
	logger *zap.Logger

	mu    sync.Mutex
	notes []string
}

// Factory builds a Service for each link a server accepts.
func Factory(logger *zap.Logger) link.HandlerFactory {
	return func(l *link.Link) link.Handler {
		return NewService(l, logger)
	}
}

func NewService(l *link.Link, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{l: l, logger: logger.With(zap.String("link", l.ID()))}
	s.Table = link.NewTable(
		link.Func1("echo", s.Echo),
		link.Func1("upper", s.Upper),
		link.Func1("fail", s.Fail),
		link.Func1("sleep", s.Sleep),
		link.Func2("sum", s.Sum),
		link.Func1("checksum", s.Checksum),
		link.Proc1("notify", s.Notify),
	)
	return s
}

func (s *Service) Echo(ctx context.Context, v string) (string, error) {
	return v, nil
}

func (s *Service) Upper(ctx context.Context, v string) (string, error) {
	return strings.ToUpper(v), nil
}

// Fail always fails with msg.
func (s *Service) Fail(ctx context.Context, msg string) (string, error) {
	return "", errors.New(msg)
}

// Sleep waits ms milliseconds, or until the link closes.
func (s *Service) Sleep(ctx context.Context, ms int) (int, error) {
	d := time.Duration(ms) * time.Millisecond
	if d > MaxSleep {
		d = MaxSleep
	}
	select {
	case <-time.After(d):
		return ms, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Service) Sum(ctx context.Context, a, b int64) (int64, error) {
	return a + b, nil
}

// Checksum returns the hex SHA-256 of an opaque blob.
func (s *Service) Checksum(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) Notify(ctx context.Context, msg string) error {
	s.mu.Lock()
	s.notes = append(s.notes, msg)
	s.mu.Unlock()
	s.logger.Info("notified", zap.String("msg", msg))
	return nil
}

// Notes returns the notifications received so far.
func (s *Service) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

func (s *Service) Close() error {
	s.mu.Lock()
	n := len(s.notes)
	s.mu.Unlock()
	s.logger.Debug("service closed", zap.Int("notes", n))
	return nil
}
