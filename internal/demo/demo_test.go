package demo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"testing"
	"time"

	"mini-link/link"
)

func connect(t *testing.T) (*Remote, *Service) {
	t.Helper()
	c1, c2 := net.Pipe()
	client := link.New(c1, link.WithName("ctl"))
	server := link.New(c2, link.WithName("demo"))
	svc := NewService(server, nil)
	if err := server.Open(svc); err != nil {
		t.Fatal(err)
	}
	if err := client.Open(nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewRemote(client.Remote()), svc
}

func TestRemote(t *testing.T) {
	r, svc := connect(t)
	ctx := context.Background()

	if out, err := r.Echo(ctx, "hi"); err != nil || out != "hi" {
		t.Fatalf("Echo = %q, %v", out, err)
	}
	if out, err := r.Upper(ctx, "hi"); err != nil || out != "HI" {
		t.Fatalf("Upper = %q, %v", out, err)
	}
	if out, err := r.Sum(ctx, 1<<40, 2); err != nil || out != 1<<40+2 {
		t.Fatalf("Sum = %d, %v", out, err)
	}

	_, err := r.Fail(ctx, "boom")
	var re *link.RemoteError
	if !errors.As(err, &re) || re.Message != "boom" {
		t.Fatalf("Fail = %v", err)
	}

	data := []byte{0, 1, 2, 3, 0xff}
	want := sha256.Sum256(data)
	if out, err := r.Checksum(ctx, data); err != nil || out != hex.EncodeToString(want[:]) {
		t.Fatalf("Checksum = %q, %v", out, err)
	}

	if err := r.Notify("ping"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(svc.Notes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("notification never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if notes := svc.Notes(); notes[0] != "ping" {
		t.Fatalf("notes = %v", notes)
	}
}

func TestSleepStopsWithLink(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	server := link.New(c2)
	svc := NewService(server, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Sleep(ctx, int(time.Hour/time.Millisecond))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sleep ignored cancellation")
	}
}
