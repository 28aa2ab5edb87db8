package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/checkworker/internal/broker"
	"github.com/ocx/checkworker/internal/config"
	"github.com/ocx/checkworker/internal/envelope"
	"github.com/ocx/checkworker/internal/jobcounter"
	"github.com/ocx/checkworker/internal/metrics"
	"github.com/ocx/checkworker/internal/pidfile"
	"github.com/ocx/checkworker/internal/pool"
	"github.com/ocx/checkworker/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	pidPath := getEnvOrDefault("CHECKWORKER_PIDFILE", "")
	if err := pidfile.Write(pidPath); err != nil {
		log.Fatalf("pidfile: %v", err)
	}
	defer pidfile.Remove(pidPath)

	m := metrics.New()
	counter := jobcounter.New()

	brokerClient, err := newBroker(cfg)
	if err != nil {
		log.Fatalf("broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := brokerClient.Connect(ctx); err != nil {
		log.Fatalf("broker: connect: %v", err)
	}
	defer brokerClient.Close()

	for _, q := range worker.Queues(cfg) {
		if err := brokerClient.Subscribe(ctx, q.Queue, q.Priority); err != nil {
			log.Fatalf("broker: subscribe %s: %v", q.Queue, err)
		}
		slog.Info("subscribed to queue", "queue", q.Queue, "priority", q.Priority)
	}

	cryptKey := envelope.NewKey([]byte(cfg.CryptKey))

	runWorker := func(runCtx context.Context, id string) error {
		w := worker.New(worker.Config{
			ID:             id,
			MaxAge:         time.Duration(cfg.MaxAgeSec) * time.Second,
			ResultQueue:    cfg.ResultQueue,
			CryptKey:       cryptKey,
			Encryption:     cfg.Encryption,
			JobsBeforeExit: cfg.JobsBeforeExit,
			Source:         "checkworker",
		}, brokerClient, counter, m)
		return w.Run(runCtx)
	}

	supervisor := pool.New(cfg.MinWorker, cfg.MaxWorker, runWorker, counter, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGUSR1:
				// Kept for operational parity with the original worker, which
				// used SIGUSR1 to force an immediate shared-memory refresh of
				// the in-flight job count; the atomic counter here is always
				// current, so this just logs a snapshot on demand.
				slog.Info("sigusr1: in-flight snapshot", "jobs", counter.Snapshot(cfg.MaxWorker))
			default:
				slog.Info("received shutdown signal, stopping workers", "signal", sig)
				cancel()
				return
			}
		}
	}()

	slog.Info("checkworker starting",
		"min_worker", cfg.MinWorker,
		"max_worker", cfg.MaxWorker,
		"broker", cfg.Broker.Backend,
		"result_queue", cfg.ResultQueue,
	)

	supervisor.Run(ctx)

	slog.Info("checkworker stopped")
}

func newBroker(cfg *config.Config) (broker.Client, error) {
	switch cfg.Broker.Backend {
	case "pubsub":
		return broker.NewPubSubClient(cfg.Broker.PubSub.ProjectID), nil
	default:
		return broker.NewRedisClient(cfg.Servers, cfg.Broker.Redis.ChannelPrefix), nil
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
