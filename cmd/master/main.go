// cmd/master/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "tasks-pizza/internal/api/http"
	"tasks-pizza/internal/config"
	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/infra/etcd"
	"tasks-pizza/internal/infra/gist"
	http_infra "tasks-pizza/internal/infra/http"
	"tasks-pizza/internal/infra/memory"
	"tasks-pizza/internal/infra/postgres"
	redis_infra "tasks-pizza/internal/infra/redis"
	"tasks-pizza/internal/master"
	"tasks-pizza/internal/scheduler"
	"tasks-pizza/internal/tracing"
	"tasks-pizza/internal/usecase"
	"tasks-pizza/internal/worker"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// taskQueue is what the master needs from a queue backend. The memory backend
// also consumes its own tasks.
type taskQueue interface {
	domain.TaskQueue
	domain.TaskConsumer
}

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("tasks-pizza-master")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := uuid.New().String()
	logger.Info("starting tasks-pizza master node", "node_id", nodeID,
		"queue_backend", cfg.QueueBackend, "store_backend", cfg.StoreBackend)

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 4. Backends. etcd is skipped only when everything runs in memory.
	localMode := !cfg.NeedsEtcd()

	var etcdClient *clientv3.Client
	if !localMode {
		etcdClient, err = etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)
	}

	var (
		locker   domain.Locker
		execRepo domain.ExecutionRepository
	)
	if localMode {
		locker = memory.NewLocker()
		execRepo = memory.NewExecutionRepository()
	} else {
		locker = etcd.NewEtcdLocker(etcdClient, cfg.LockTimeout)
		execRepo = etcd.NewEtcdExecutionRepository(etcdClient, logger)
	}

	queue, closeQueue, err := newTaskQueue(cfg, etcdClient, locker, logger)
	if err != nil {
		log.Fatalf("Failed to create task queue: %v", err)
	}
	defer closeQueue()

	locationRepo, err := newLocationRepository(cfg, etcdClient, logger)
	if err != nil {
		log.Fatalf("Failed to create location store: %v", err)
	}

	// 5. Instantiate components
	ref := domain.QueueRef{Project: cfg.Project, Location: cfg.Location, Queue: cfg.Queue}
	source := gist.NewIdentifierSource(tracing.NewHTTPClient(cfg.Source.Timeout), cfg.Source.URL, cfg.Source.File, logger)
	dispatcher, err := usecase.NewTaskDispatcher(queue, ref, cfg.CallbackURL(), cfg.Dispatch.Concurrency, logger)
	if err != nil {
		log.Fatalf("Failed to create task dispatcher: %v", err)
	}
	dispatchService := usecase.NewDispatchService(
		usecase.NewQueueProvisioner(queue, ref, logger),
		source,
		dispatcher,
		execRepo,
		locker,
		domain.RunConcurrencyPolicy(cfg.Dispatch.ConcurrencyPolicy),
		cfg.Queue,
		logger,
	)
	locationService := usecase.NewLocationService(locationRepo, logger)

	var workers http_api.WorkerStatusLister
	if etcdClient != nil {
		discovery := master.NewWorkerDiscovery(etcdClient, logger)
		go discovery.WatchWorkers(rootCtx)
		prober := master.NewWorkerProber(discovery, logger)
		defer prober.Close()
		workers = prober
	}

	if cfg.InProcessWorker() {
		// Worker processes cannot see a memory queue: drain it here.
		runner := worker.NewRunner(queue, queue, http_infra.NewHttpTaskExecutor(tracing.NewHTTPClient(15*time.Second)),
			execRepo, ref.QueuePath(), workerRetryConfig(cfg), cfg.Worker.PollInterval, nodeID, logger)
		go func() { _ = runner.Run(rootCtx) }()
	}

	// 6. Scheduled runs
	if cfg.Dispatch.Schedule != "" {
		cronScheduler := scheduler.NewCronScheduler(dispatchService, logger)
		if localMode {
			if err := cronScheduler.AddRun(cfg.Dispatch.Schedule); err != nil {
				log.Fatalf("Invalid dispatch schedule: %v", err)
			}
			go func() { _ = cronScheduler.Start(rootCtx) }()
		} else {
			leaderManager := etcd.NewEtcdLeaderElectionManager(etcdClient, nodeID, cfg.LeaderElectionTTL, logger)
			schedulerService := usecase.NewSchedularService(leaderManager, cronScheduler, cfg.Dispatch.Schedule, nodeID, logger)
			go func() {
				if err := schedulerService.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.Fatalf("SchedulerService stopped with error: %v", err)
				}
			}()
		}
	}

	// 7. Register routes and start the HTTP API server with CORS middleware
	mux := http_api.NewRouter(
		http_api.NewDispatchHandler(dispatchService, logger),
		http_api.NewLocationHandler(locationService, logger),
		http_api.NewWorkerHandler(workers),
	)

	logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           http_api.CorsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 8. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down application gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	logger.Info("application shut down")
}

func newTaskQueue(cfg *config.Config, etcdClient *clientv3.Client, locker domain.Locker, logger *slog.Logger) (taskQueue, func(), error) {
	switch cfg.QueueBackend {
	case "memory":
		return memory.NewTaskQueue(cfg.TaskRetention), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping().Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return redis_infra.NewRedisTaskQueue(client, cfg.TaskRetention, logger), func() { _ = client.Close() }, nil
	default:
		return etcd.NewEtcdTaskQueue(etcdClient, locker, cfg.TaskRetention, logger), func() {}, nil
	}
}

func newLocationRepository(cfg *config.Config, etcdClient *clientv3.Client, appLogger *slog.Logger) (domain.LocationRepository, error) {
	switch cfg.StoreBackend {
	case "memory":
		return memory.NewLocationRepository(), nil
	case "postgres":
		db, err := postgres.InitDB(cfg.PostgresDSN, &gorm.Config{
			Logger: logger.New(slog.NewLogLogger(appLogger.Handler(), slog.LevelWarn), logger.Config{
				SlowThreshold: time.Second,
				LogLevel:      logger.Warn,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return postgres.NewLocationRepository(db), nil
	default:
		return etcd.NewEtcdLocationRepository(etcdClient, appLogger), nil
	}
}

func workerRetryConfig(cfg *config.Config) domain.RetryConfig {
	return domain.RetryConfig{
		MaxAttempts: cfg.Worker.MaxAttempts,
		MinBackoff:  cfg.Worker.Backoff,
	}
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
