package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileAnnouncerLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "remotews")
	a := NewFileAnnouncer(dir)
	ctx := context.Background()
	ep := Endpoint{Name: "workspace", Addr: "127.0.0.1:29345"}

	if err := a.Announce(ctx, ep); err != nil {
		t.Fatalf("announce failed: %v", err)
	}

	p := filepath.Join(dir, "29345")
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("endpoint file missing: %v", err)
	}
	if string(data) != ep.Addr {
		t.Fatalf("endpoint file holds %q", data)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if d := info.ModTime().Sub(a.started); d > time.Second || d < -time.Second {
		t.Fatalf("mtime %v is not the start time %v", info.ModTime(), a.started)
	}

	// re-announcing restores a removed file
	os.Remove(p)
	if err := a.Announce(ctx, ep); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("file not restored: %v", err)
	}

	eps, err := a.List(ctx, "workspace")
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0] != ep {
		t.Fatalf("List returned %+v", eps)
	}

	if err := a.Withdraw(ctx, ep); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("file still present after withdraw")
	}
	if err := a.Withdraw(ctx, ep); err != nil {
		t.Fatalf("second withdraw should be a no-op, got %v", err)
	}
}

func TestFileAnnouncerBadAddr(t *testing.T) {
	a := NewFileAnnouncer(t.TempDir())
	if err := a.Announce(context.Background(), Endpoint{Addr: "no-port"}); err == nil {
		t.Fatalf("expected an error for an address without port")
	}
}

func TestFileAnnouncerListMissingDir(t *testing.T) {
	a := NewFileAnnouncer(filepath.Join(t.TempDir(), "absent"))
	eps, err := a.List(context.Background(), "x")
	if err != nil || len(eps) != 0 {
		t.Fatalf("List on a missing dir = %v, %v", eps, err)
	}
}
