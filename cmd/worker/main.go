// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasks-pizza/internal/config"
	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/infra/etcd"
	http_infra "tasks-pizza/internal/infra/http"
	redis_infra "tasks-pizza/internal/infra/redis"
	"tasks-pizza/internal/tracing"
	"tasks-pizza/internal/worker"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	otelgrpc "go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Each task request gets this long per attempt.
const taskTimeout = 15 * time.Second

type taskQueue interface {
	domain.TaskQueue
	domain.TaskConsumer
}

func main() {
	// 1. Init logger, tracer and config
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("tasks-pizza-worker")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workerID := uuid.New().String()
	logger.Info("starting worker node", "worker_id", workerID, "grpc_addr", cfg.GrpcListenAddr, "queue_backend", cfg.QueueBackend)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 3. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)

	queue, closeQueue, err := newTaskQueue(cfg, etcdClient, logger)
	if err != nil {
		log.Fatalf("Failed to create task queue: %v", err)
	}
	defer closeQueue()

	// 4. Serve the gRPC health service
	lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	logger.Info("gRPC server listening", "addr", lis.Addr().String())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 5. Register this worker in etcd
	registry := worker.NewRegistry(etcdClient, logger)
	regCtx, regCancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer regCancel()
	if err := registry.Register(regCtx, workerID, advertiseAddr(cfg.GrpcListenAddr), int64(cfg.LeaderElectionTTL.Seconds())); err != nil {
		log.Fatalf("Failed to register worker: %v", err)
	}
	defer func() {
		deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer deregCancel()
		if err := registry.Deregister(deregCtx); err != nil {
			logger.Error("failed to deregister worker", "error", err)
		}
	}()

	// 6. Drain the queue
	ref := domain.QueueRef{Project: cfg.Project, Location: cfg.Location, Queue: cfg.Queue}
	runner := worker.NewRunner(
		queue,
		queue,
		http_infra.NewHttpTaskExecutor(tracing.NewHTTPClient(taskTimeout)),
		etcd.NewEtcdExecutionRepository(etcdClient, logger),
		ref.QueuePath(),
		domain.RetryConfig{MaxAttempts: cfg.Worker.MaxAttempts, MinBackoff: cfg.Worker.Backoff},
		cfg.Worker.PollInterval,
		workerID,
		logger,
	)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if err := runner.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("queue runner stopped with error", "error", err)
	}

	// 7. Shut down
	logger.Info("shutting down worker node gracefully")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("worker node shut down")
}

func newTaskQueue(cfg *config.Config, etcdClient *clientv3.Client, logger *slog.Logger) (taskQueue, func(), error) {
	switch cfg.QueueBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping().Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return redis_infra.NewRedisTaskQueue(client, cfg.TaskRetention, logger), func() { _ = client.Close() }, nil
	case "etcd":
		return etcd.NewEtcdTaskQueue(etcdClient, etcd.NewEtcdLocker(etcdClient, cfg.LockTimeout), cfg.TaskRetention, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("queue backend %q cannot be shared with a worker process", cfg.QueueBackend)
	}
}

// advertiseAddr turns a listen address like ":50052" into one other nodes can dial.
func advertiseAddr(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || (host != "" && host != "0.0.0.0" && host != "::") {
		return listenAddr
	}
	hostname, err := os.Hostname()
	if err != nil {
		return listenAddr
	}
	return net.JoinHostPort(hostname, port)
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
