package link

import (
	"context"
	"net"
	"testing"

	"mini-link/codec"
)

type addArgs struct {
	A, B int
}

func benchPair(b *testing.B, opts ...Option) *Link {
	c1, c2 := net.Pipe()
	client := New(c1, opts...)
	server := New(c2, opts...)
	if err := server.Open(NewTable(Func1("add", func(ctx context.Context, a addArgs) (int, error) {
		return a.A + a.B, nil
	}))); err != nil {
		b.Fatal(err)
	}
	if err := client.Open(nil); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

// 场景1: 单 goroutine 串行调用
func BenchmarkSerialCall(b *testing.B) {
	l := benchPair(b)
	ctx := context.Background()
	args := addArgs{A: 1, B: 2}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Invoke[int](ctx, l.Remote(), "add", args); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 多 goroutine 并发调用（同一条流上的多路复用）
func BenchmarkConcurrentCall(b *testing.B) {
	l := benchPair(b)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		args := addArgs{A: 1, B: 2}
		for pb.Next() {
			if _, err := Invoke[int](ctx, l.Remote(), "add", args); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// 场景3: 有界执行池
func BenchmarkPooledCall(b *testing.B) {
	l := benchPair(b, WithExecutor(NewPool(8)))
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		args := addArgs{A: 1, B: 2}
		for pb.Next() {
			if _, err := Invoke[int](ctx, l.Remote(), "add", args); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// 场景4: Gob 编码
func BenchmarkGobCall(b *testing.B) {
	l := benchPair(b, WithCodec(&codec.GobCodec{}))
	ctx := context.Background()
	args := addArgs{A: 1, B: 2}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := Invoke[int](ctx, l.Remote(), "add", args); err != nil {
			b.Fatal(err)
		}
	}
}
