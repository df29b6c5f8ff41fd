package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newEtcdAnnouncer(t *testing.T) *EtcdAnnouncer {
	t.Helper()
	a, err := NewEtcdAnnouncer([]string{"localhost:2379"}, 10, zap.NewNop())
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := a.client.Get(ctx, keyPrefix); err != nil {
		a.client.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	return a
}

func TestEtcdAnnounceAndWithdraw(t *testing.T) {
	a := newEtcdAnnouncer(t)
	defer a.Close()
	ctx := context.Background()

	ep1 := Endpoint{Name: "workspace-test", Addr: "127.0.0.1:8001"}
	ep2 := Endpoint{Name: "workspace-test", Addr: "127.0.0.1:8002"}

	if err := a.Announce(ctx, ep1); err != nil {
		t.Fatal(err)
	}
	if err := a.Announce(ctx, ep2); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if err := a.Announce(ctx, ep1); err != nil {
		t.Fatal(err)
	}

	eps, err := a.List(ctx, "workspace-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 2 {
		t.Fatalf("expect 2 endpoints, got %d", len(eps))
	}

	if err := a.Withdraw(ctx, ep1); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	eps, err = a.List(ctx, "workspace-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0] != ep2 {
		t.Fatalf("expect only %v, got %v", ep2, eps)
	}

	a.Withdraw(ctx, ep2)
}
