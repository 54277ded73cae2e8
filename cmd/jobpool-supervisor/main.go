// jobpool-supervisor runs the cluster-wide housekeeping sweep of §4.G:
// leader-elected via a Postgres advisory lock, scheduled by
// robfig/cron/v3, looking for queue producers whose demand and
// broker-reported depth have drifted.
//
// It joins the same pool a jobpool-worker process would, but only to
// watch its queue producers — it starts no worker monitors of its own,
// so it never competes with the pool's real workers for jobs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/jobpool/internal/mq"
	"github.com/shaiso/jobpool/internal/pool"
	"github.com/shaiso/jobpool/internal/queueproducer"
	"github.com/shaiso/jobpool/internal/registry"
	"github.com/shaiso/jobpool/internal/repo"
	"github.com/shaiso/jobpool/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting jobpool-supervisor")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbPool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

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

	poolName := envOr("JOBPOOL_NAME", "default")
	numQueues := envInt("JOBPOOL_NUM_QUEUES", 1)

	reg := registry.New()

	backends := make([]queueproducer.Backend, numQueues)
	for i := range backends {
		backends[i] = mq.NewBackend(mqConn, logger)
	}

	p, err := pool.New(pool.Config{
		Name:     poolName,
		Registry: reg,
		Backends: backends,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build pool", "error", err)
		os.Exit(1)
	}
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}
	defer p.Stop()

	supervisor := pool.NewSupervisor(dbPool, []*pool.Pool{p}, logger)
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("failed to start sweep", "error", err)
		os.Exit(1)
	}
	defer supervisor.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := envOr("JOBPOOL_SUPERVISOR_PORT", "8091")
	go func() {
		logger.Info("listening", "addr", ":"+port)
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("jobpool-supervisor stopped")
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
