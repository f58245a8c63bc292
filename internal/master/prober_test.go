package master

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type staticLister []Worker

func (l staticLister) GetWorkers() []Worker { return l }

func startHealthServer(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", status)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func TestWorkerProber(t *testing.T) {
	serving := startHealthServer(t, healthpb.HealthCheckResponse_SERVING)
	draining := startHealthServer(t, healthpb.HealthCheckResponse_NOT_SERVING)

	lister := staticLister{
		{ID: "a", Addr: serving},
		{ID: "b", Addr: draining},
		{ID: "c", Addr: "127.0.0.1:1"},
	}
	p := NewWorkerProber(lister, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer p.Close()

	statuses := p.Workers(context.Background())
	require.Len(t, statuses, 3)
	assert.Equal(t, "SERVING", statuses[0].Status)
	assert.Equal(t, "NOT_SERVING", statuses[1].Status)
	assert.Equal(t, "UNKNOWN", statuses[2].Status)
	assert.Equal(t, "a", statuses[0].ID)

	// Clients are reused between probes.
	p.Workers(context.Background())
	assert.Len(t, p.conns, 3)
}

func TestWorkerDiscovery_Apply(t *testing.T) {
	d := NewWorkerDiscovery(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	d.apply(mvccpb.PUT, WorkerRegistryPrefix+"w2", "10.0.0.2:50051")
	d.apply(mvccpb.PUT, WorkerRegistryPrefix+"w1", "10.0.0.1:50051")
	assert.Equal(t, []Worker{
		{ID: "w1", Addr: "10.0.0.1:50051"},
		{ID: "w2", Addr: "10.0.0.2:50051"},
	}, d.GetWorkers())

	d.apply(mvccpb.DELETE, WorkerRegistryPrefix+"w1", "")
	assert.Equal(t, []Worker{{ID: "w2", Addr: "10.0.0.2:50051"}}, d.GetWorkers())
}
