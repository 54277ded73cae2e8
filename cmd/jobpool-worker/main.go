// jobpool-worker runs one named job pool: its queue producers, its
// worker monitors, and the admin API that exposes the Submission API
// over HTTP.
//
// Workers scale horizontally: point any number of processes at the
// same pool name, AMQP_URL, and DB_URL, and they share the pool's
// broker topology and dead-letter audit trail.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/jobpool/internal/api"
	"github.com/shaiso/jobpool/internal/failuremode"
	"github.com/shaiso/jobpool/internal/metrics"
	"github.com/shaiso/jobpool/internal/mq"
	"github.com/shaiso/jobpool/internal/pool"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
	"github.com/shaiso/jobpool/internal/repo"
	"github.com/shaiso/jobpool/internal/submission"
	"github.com/shaiso/jobpool/internal/telemetry"
	"github.com/shaiso/jobpool/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting jobpool-worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbPool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("database connected")

	mqURL := os.Getenv("AMQP_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	poolName := envOr("JOBPOOL_NAME", "default")
	numQueues := envInt("JOBPOOL_NUM_QUEUES", 1)
	numWorkers := envInt("JOBPOOL_NUM_WORKERS", 4)
	prefetch := envInt("JOBPOOL_PREFETCH", 10)
	initRetrySecs := envInt("JOBPOOL_INIT_RETRY_SECS", 5)

	reg := registry.New()
	met := metrics.New(prometheus.DefaultRegisterer)
	deadLetterRepo := repo.NewDeadLetterRepo(dbPool)
	subClient := submission.New(reg, logger)
	defer subClient.Close()

	failureMode := failuremode.NewDeadLetter(
		pool.RegistryAcker{Registry: reg, Pool: poolName},
		deadLetterRepo,
		logger,
	)

	backends := make([]queueproducer.Backend, numQueues)
	for i := range backends {
		backends[i] = mq.NewBackend(mqConn, logger)
	}

	p, err := pool.New(pool.Config{
		Name:        poolName,
		Registry:    reg,
		Backends:    backends,
		Prefetch:    prefetch,
		NumWorkers:  numWorkers,
		Module:      func() worker.Module { return exampleModule{} },
		InitRetry:   time.Duration(initRetrySecs) * time.Second,
		FailureMode: failureMode,
		Replies:     subClient,
		Metrics:     met,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to build pool", "error", err)
		os.Exit(1)
	}

	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Client: subClient, Logger: logger}).RegisterRoutes(mux)

	port := envOr("JOBPOOL_PORT", "8090")
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	p.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	logger.Info("jobpool-worker stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// exampleModule is the worker.Module this binary ships to demonstrate
// and exercise the pool end to end; operators embedding this module
// supply their own in its place.
type exampleModule struct{}

func (exampleModule) Init(ctx context.Context, args any) (any, *worker.MethodRegistry, error) {
	methods := worker.NewMethodRegistry()
	methods.Register("echo", func(ctx context.Context, state any, args []any) (any, error) {
		if len(args) == 1 {
			return args[0], nil
		}
		return args, nil
	})
	return nil, methods, nil
}
