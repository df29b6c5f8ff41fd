package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, call *Call) (any, error) {
	return "ok", nil
}

// 模拟一个慢 handler：睡 200ms
func slowHandler(ctx context.Context, call *Call) (any, error) {
	time.Sleep(200 * time.Millisecond)
	return "ok", nil
}

func failingHandler(ctx context.Context, call *Call) (any, error) {
	return nil, errors.New("boom")
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zaptest.NewLogger(t))(echoHandler)

	result, err := handler(context.Background(), &Call{Method: "echo", ID: 10000, Arity: 1})
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expect result 'ok', got '%v'", result)
	}
}

func TestLoggingPassesErrors(t *testing.T) {
	handler := LoggingMiddleware(zaptest.NewLogger(t))(failingHandler)

	_, err := handler(context.Background(), &Call{Method: "fail", ID: 10001})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expect 'boom', got %v", err)
	}
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	if _, err := handler(context.Background(), &Call{Method: "echo"}); err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), &Call{Method: "slow"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect timeout error, got '%v'", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	call := &Call{Method: "echo"}

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), call); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	_, err := handler(context.Background(), call)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: '%v'", err)
	}
}

func TestChain(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *Call) (any, error) {
				order = append(order, name)
				return next(ctx, call)
			}
		}
	}

	handler := Chain(trace("A"), trace("B"), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	if _, err := handler(context.Background(), &Call{Method: "echo"}); err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("unexpected order %v", order)
	}
}
