package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileAnnouncer drops one file per server into a shared directory. The file
// is named after the port and holds the full address; its modification time
// is the time the server started. Name is not part of the layout: a directory
// belongs to one kind of server.
type FileAnnouncer struct {
	dir     string
	started time.Time
}

func NewFileAnnouncer(dir string) *FileAnnouncer {
	return &FileAnnouncer{dir: dir, started: time.Now()}
}

func (a *FileAnnouncer) path(ep Endpoint) (string, error) {
	_, port, err := net.SplitHostPort(ep.Addr)
	if err != nil {
		return "", fmt.Errorf("registry: bad address %q: %w", ep.Addr, err)
	}
	return filepath.Join(a.dir, port), nil
}

// Announce writes the endpoint file if it is missing. It is cheap enough to
// call periodically, which restores the file if someone removed it.
func (a *FileAnnouncer) Announce(ctx context.Context, ep Endpoint) error {
	p, err := a.path(ep)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil {
		return nil
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(ep.Addr), 0o644); err != nil {
		return err
	}
	return os.Chtimes(p, a.started, a.started)
}

func (a *FileAnnouncer) Withdraw(ctx context.Context, ep Endpoint) error {
	p, err := a.path(ep)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (a *FileAnnouncer) List(ctx context.Context, name string) ([]Endpoint, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, e.Name()))
		if err != nil {
			continue // withdrawn while listing
		}
		endpoints = append(endpoints, Endpoint{Name: name, Addr: strings.TrimSpace(string(data))})
	}
	return endpoints, nil
}
