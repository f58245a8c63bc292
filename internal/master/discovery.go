// internal/master/discovery.go
package master

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"tasks-pizza/internal/infra/etcd"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// WorkerRegistryPrefix is the etcd prefix where queue workers register their gRPC address.
const WorkerRegistryPrefix = etcd.WorkerDir

// Worker is a registered queue worker.
type Worker struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// WorkerDiscovery tracks the queue workers registered in etcd.
type WorkerDiscovery struct {
	client  *clientv3.Client
	logger  *slog.Logger
	workers map[string]string // workerID -> addr
	mu      sync.RWMutex
}

// NewWorkerDiscovery creates a new discovery service.
func NewWorkerDiscovery(client *clientv3.Client, logger *slog.Logger) *WorkerDiscovery {
	return &WorkerDiscovery{
		client:  client,
		logger:  logger.With("component", "worker-discovery"),
		workers: make(map[string]string),
	}
}

// WatchWorkers follows registrations until ctx is done. It blocks.
func (d *WorkerDiscovery) WatchWorkers(ctx context.Context) {
	d.logger.Info("starting to watch for workers")

	rev, err := d.loadInitialWorkers(ctx)
	if err != nil {
		d.logger.Error("failed to perform initial worker load", "error", err)
	}

	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	for watchResp := range d.client.Watch(ctx, WorkerRegistryPrefix, opts...) {
		for _, event := range watchResp.Events {
			d.apply(event.Type, string(event.Kv.Key), string(event.Kv.Value))
		}
	}
	d.logger.Info("stopped watching for workers")
}

func (d *WorkerDiscovery) apply(typ mvccpb.Event_EventType, key, addr string) {
	workerID := strings.TrimPrefix(key, WorkerRegistryPrefix)

	d.mu.Lock()
	defer d.mu.Unlock()
	switch typ {
	case mvccpb.PUT:
		if _, ok := d.workers[workerID]; !ok {
			d.logger.Info("new worker discovered", "worker_id", workerID, "addr", addr)
		}
		d.workers[workerID] = addr
	case mvccpb.DELETE:
		// Lease expired or the worker shut down.
		d.logger.Info("worker deregistered", "worker_id", workerID, "addr", d.workers[workerID])
		delete(d.workers, workerID)
	}
}

func (d *WorkerDiscovery) loadInitialWorkers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(ctx, WorkerRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}

	for _, kv := range resp.Kvs {
		d.apply(mvccpb.PUT, string(kv.Key), string(kv.Value))
	}
	return resp.Header.Revision, nil
}

// GetWorkers returns a snapshot of the registered workers sorted by id.
func (d *WorkerDiscovery) GetWorkers() []Worker {
	d.mu.RLock()
	defer d.mu.RUnlock()

	workers := make([]Worker, 0, len(d.workers))
	for id, addr := range d.workers {
		workers = append(workers, Worker{ID: id, Addr: addr})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers
}
