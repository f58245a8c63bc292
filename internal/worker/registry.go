// internal/worker/registry.go
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tasks-pizza/internal/infra/etcd"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registry keeps a worker's address in etcd for as long as the worker lives.
type Registry struct {
	client  *clientv3.Client
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string
	value   string
}

// NewRegistry creates a new worker registry.
func NewRegistry(client *clientv3.Client, logger *slog.Logger) *Registry {
	return &Registry{
		client: client,
		logger: logger.With("component", "worker-registry"),
	}
}

// Register publishes workerAddr under workerID with a lease of ttl seconds
// and keeps the lease alive in the background.
func (r *Registry) Register(ctx context.Context, workerID, workerAddr string, ttl int64) error {
	r.key = etcd.WorkerDir + workerID
	r.value = workerAddr

	leaseResp, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	if _, err := r.client.Put(ctx, r.key, r.value, clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to put worker registration key: %w", err)
	}

	keepAliveCh, err := r.client.KeepAlive(context.WithoutCancel(ctx), r.leaseID)
	if err != nil {
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	go func() {
		// The channel closes once the lease is revoked or expired.
		for ka := range keepAliveCh {
			r.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		r.logger.Warn("keep-alive channel closed, worker registration may have expired")
	}()

	r.logger.Info("worker registered successfully", "key", r.key, "value", r.value)
	return nil
}

// Deregister revokes the lease, which deletes the registration key.
func (r *Registry) Deregister(ctx context.Context) error {
	r.logger.Info("deregistering worker", "key", r.key)
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}
