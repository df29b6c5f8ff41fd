package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyPrefix = "/mini-link/"

// EtcdAnnouncer keeps each endpoint under a TTL lease. If the process dies the
// lease expires and the entry disappears on its own.
type EtcdAnnouncer struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	ttl    int64
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease; guarded so servers can share one announcer
}

// NewEtcdAnnouncer connects to the given etcd endpoints. ttl is the lease
// time in seconds.
func NewEtcdAnnouncer(endpoints []string, ttl int64, logger *zap.Logger) (*EtcdAnnouncer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdAnnouncer{
		client: c,
		ttl:    ttl,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func key(ep Endpoint) string {
	return keyPrefix + ep.Name + "/" + ep.Addr
}

// Announce puts the endpoint under a fresh lease and keeps the lease alive
// until Withdraw or Close. A second Announce of the same endpoint is a no-op.
//
// Flow:
//  1. Grant a lease with the configured TTL
//  2. Put the key with the lease attached
//  3. KeepAlive renews the lease in the background
func (a *EtcdAnnouncer) Announce(ctx context.Context, ep Endpoint) error {
	k := key(ep)

	a.mu.Lock()
	_, ok := a.leases[k]
	a.mu.Unlock()
	if ok {
		return nil
	}

	lease, err := a.client.Grant(ctx, a.ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	if _, err := a.client.Put(ctx, k, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive must outlive ctx, which may belong to a single request.
	ch, err := a.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
		a.logger.Debug("lease keepalive stopped", zap.String("key", k))
	}()

	a.mu.Lock()
	a.leases[k] = lease.ID
	a.mu.Unlock()
	return nil
}

// Withdraw revokes the endpoint's lease, which deletes its key. Endpoints this
// announcer does not know about are deleted directly.
func (a *EtcdAnnouncer) Withdraw(ctx context.Context, ep Endpoint) error {
	k := key(ep)

	a.mu.Lock()
	id, ok := a.leases[k]
	delete(a.leases, k)
	a.mu.Unlock()

	if ok {
		_, err := a.client.Revoke(ctx, id)
		return err
	}
	_, err := a.client.Delete(ctx, k)
	return err
}

// List queries every key under /mini-link/<name>/.
func (a *EtcdAnnouncer) List(ctx context.Context, name string) ([]Endpoint, error) {
	resp, err := a.client.Get(ctx, keyPrefix+name+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // Skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Close revokes every lease still held and closes the client.
func (a *EtcdAnnouncer) Close() error {
	a.mu.Lock()
	leases := a.leases
	a.leases = make(map[string]clientv3.LeaseID)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for k, id := range leases {
		if _, err := a.client.Revoke(ctx, id); err != nil {
			a.logger.Warn("revoking lease", zap.String("key", k), zap.Error(err))
		}
	}
	return a.client.Close()
}
