package demo

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"mini-link/client"
	"mini-link/link"
	"mini-link/middleware"
	"mini-link/registry"
	"mini-link/server"
)

// TestFullIntegration 完整端到端测试
// 链路: Client → TCP → Server(admission) → Link → Middleware → Service，再经 announcement 回查
func TestFullIntegration(t *testing.T) {
	// 1. 启动 Server，挂载中间件和 announcement
	dir := t.TempDir()
	svr := server.New("demo", Factory(nil),
		server.WithAdmission(server.LoopbackOnly),
		server.WithAnnouncer(registry.NewFileAnnouncer(dir), time.Second),
		server.WithLinkOptions(
			link.WithExecutor(link.NewPool(4)),
			link.WithMiddleware(middleware.LoggingMiddleware(zap.NewNop())),
		),
	)
	if err := svr.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer svr.Stop()

	// 2. announcement 里能找到这个实例
	eps, err := registry.NewFileAnnouncer(dir).List(context.Background(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0].Addr != svr.Addr().String() {
		t.Fatalf("announced %+v, server on %s", eps, svr.Addr())
	}

	// 3. 按 announcement 的地址建立 Client
	l, err := client.Dial(context.Background(), "tcp", eps[0].Addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	r := NewRemote(l.Remote())
	ctx := context.Background()

	// 4. 测试 sum / upper / fail
	for i := int64(1); i <= 10; i++ {
		got, err := r.Sum(ctx, i, i*10)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if got != i+i*10 {
			t.Fatalf("request %d: expect %d, got %d", i, i+i*10, got)
		}
	}
	if out, err := r.Upper(ctx, "link"); err != nil || out != "LINK" {
		t.Fatalf("Upper = %q, %v", out, err)
	}
	var re *link.RemoteError
	if _, err := r.Fail(ctx, "expected"); !errors.As(err, &re) {
		t.Fatalf("Fail = %v", err)
	}

	// 5. 清理：Stop 关闭 link
	svr.Stop()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client link survived server stop")
	}
}

// TestIntegrationWithEtcd 和上面一样，announcement 换成 etcd
func TestIntegrationWithEtcd(t *testing.T) {
	a, err := registry.NewEtcdAnnouncer([]string{"127.0.0.1:2379"}, 10, nil)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	defer a.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := a.List(pingCtx, "demo-it"); err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	svr := server.New("demo-it", Factory(nil), server.WithAnnouncer(a, time.Second))
	if err := svr.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	eps, err := a.List(context.Background(), "demo-it")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ep := range eps {
		if ep.Addr == svr.Addr().String() {
			found = true
		}
	}
	if !found {
		t.Fatalf("server %s not announced in %+v", svr.Addr(), eps)
	}

	l, err := client.Dial(context.Background(), "tcp", svr.Addr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if out, err := NewRemote(l.Remote()).Echo(context.Background(), "etcd"); err != nil || out != "etcd" {
		t.Fatalf("Echo = %q, %v", out, err)
	}

	svr.Stop()
	eps, _ = a.List(context.Background(), "demo-it")
	for _, ep := range eps {
		if ep.Addr == svr.Addr().String() {
			t.Fatalf("announcement survived Stop")
		}
	}
}
