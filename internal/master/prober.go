// internal/master/prober.go
package master

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeTimeout = 2 * time.Second

// WorkerLister returns the currently known workers.
type WorkerLister interface {
	GetWorkers() []Worker
}

// WorkerStatus is a worker together with the answer of its health service.
type WorkerStatus struct {
	Worker
	Status string `json:"status"`
}

// WorkerProber asks every discovered worker for its gRPC health status.
type WorkerProber struct {
	lister  WorkerLister
	clients map[string]healthpb.HealthClient // cache of gRPC clients by addr
	conns   map[string]*grpc.ClientConn
	mu      sync.Mutex
	logger  *slog.Logger
}

// NewWorkerProber creates a prober for the workers lister knows about.
func NewWorkerProber(lister WorkerLister, logger *slog.Logger) *WorkerProber {
	return &WorkerProber{
		lister:  lister,
		clients: make(map[string]healthpb.HealthClient),
		conns:   make(map[string]*grpc.ClientConn),
		logger:  logger.With("component", "worker-prober"),
	}
}

// Workers probes all workers concurrently.
func (p *WorkerProber) Workers(ctx context.Context) []WorkerStatus {
	workers := p.lister.GetWorkers()
	statuses := make([]WorkerStatus, len(workers))

	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = WorkerStatus{Worker: w, Status: p.probe(ctx, w.Addr)}
		}()
	}
	wg.Wait()
	return statuses
}

func (p *WorkerProber) probe(ctx context.Context, addr string) string {
	client, err := p.getClient(addr)
	if err != nil {
		p.logger.Warn("failed to create grpc client for worker", "addr", addr, "error", err)
		return healthpb.HealthCheckResponse_UNKNOWN.String()
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		p.logger.Warn("worker health check failed", "addr", addr, "error", err)
		return healthpb.HealthCheckResponse_UNKNOWN.String()
	}
	return resp.GetStatus().String()
}

// getClient retrieves a cached client or dials a new one.
func (p *WorkerProber) getClient(addr string) (healthpb.HealthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[addr]; ok {
		return client, nil
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, err
	}

	client := healthpb.NewHealthClient(conn)
	p.clients[addr] = client
	p.conns[addr] = conn
	return client, nil
}

// Close closes all cached connections.
func (p *WorkerProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("failed to close grpc connection", "addr", addr, "error", err)
		}
	}
	p.conns = make(map[string]*grpc.ClientConn)
	p.clients = make(map[string]healthpb.HealthClient)
}
