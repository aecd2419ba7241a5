// cockpit-api is the HTTP API server that admits at most one job at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cockpit/internal/api"
	"cockpit/internal/config"
	"cockpit/internal/dispatcher"
	"cockpit/internal/executor"
	"cockpit/internal/health"
	"cockpit/internal/job"
	"cockpit/internal/observability"
	"cockpit/internal/queue/docker"
	"cockpit/internal/queue/local"
	"cockpit/internal/state"
	"cockpit/internal/state/redisstore"
	"cockpit/internal/state/sqlitestore"

	"golang.org/x/sync/errgroup"
)

func main() {
	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: svcCfg.SlogLevel()})))

	if err := run(svcCfg); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(svcCfg *config.ServiceConfig) error {
	ctx := context.Background()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, svcCfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("State store ready", "backend", svcCfg.Store.Backend)

	// Callback dispatcher; the notifier is nil (disabled) without CALLBACK_URL
	eventDispatcher := dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), metrics)
	notifier := job.NewNotifier(eventDispatcher, job.NotifierConfig{
		URL:    svcCfg.Callback.URL,
		Key:    svcCfg.Callback.Key,
		Events: svcCfg.Callback.Events,
	})

	queue, err := openQueue(svcCfg.Queue, metrics, notifier)
	if err != nil {
		return err
	}
	slog.Info("Task queue ready", "backend", svcCfg.Queue.Backend)

	coordinator := job.NewCoordinator(queue, store, job.Options{
		Lock: state.LockOptions{
			Name: svcCfg.Lock.Name,
			Wait: svcCfg.Lock.Wait,
			TTL:  svcCfg.Lock.TTL,
		},
		Metrics:  metrics,
		Notifier: notifier,
	})

	healthChecker := health.NewChecker(map[string]health.ReadinessChecker{
		"store": health.ReadyFunc(store.Ping),
		"queue": queue,
	})

	router := api.NewRouter(api.RouterConfig{
		Coordinator:   coordinator,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("Starting API server", "port", svcCfg.Port)
		return serve(apiServer)
	})
	g.Go(func() error {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		return serve(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		if sigCtx.Err() != nil {
			slog.Info("Received shutdown signal")

			// Phase 1: fail readiness so load balancers stop routing here
			healthChecker.SetShuttingDown()
			if svcCfg.ShutdownDrainWait > 0 {
				slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
				time.Sleep(svcCfg.ShutdownDrainWait)
			}
		}

		// Phase 2: stop accepting connections, finish in-flight requests
		slog.Info("Starting graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		return errors.Join(shutdown(shutdownCtx, "API", apiServer), shutdown(shutdownCtx, "metrics", metricsServer))
	})

	serveErr := g.Wait()

	// Phase 3: stop the queue. The local queue cancels its jobs (publishing
	// their finished events); Docker job containers keep running.
	if err := queue.Close(); err != nil {
		slog.Warn("Queue shutdown error", "error", err)
	}

	// Phase 4: drain callbacks
	slog.Info("Draining callback dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return serveErr
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

func shutdown(ctx context.Context, name string, srv *http.Server) error {
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server shutdown error", "server", name, "error", err)
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (state.Store, error) {
	switch cfg.Backend {
	case config.StoreRedis:
		store, err := redisstore.New(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			// Readiness reports it until Redis comes up.
			slog.Warn("Redis not reachable yet", "error", err)
		}
		return store, nil
	case config.StoreSQLite:
		return sqlitestore.Open(ctx, cfg.SQLitePath)
	case config.StoreMemory:
		slog.Warn("Using in-memory state store; admission is not shared across instances")
		return state.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func openQueue(cfg config.QueueConfig, metrics *observability.Metrics, notifier *job.Notifier) (job.Queue, error) {
	switch cfg.Backend {
	case config.QueueLocal:
		exec, err := executor.New(executor.LoadConfigFromEnv())
		if err != nil {
			return nil, err
		}
		return local.New(exec, local.LoadConfigFromEnv(), local.Options{
			Metrics:  metrics,
			OnFinish: notifier.Finished,
		}), nil
	case config.QueueDocker:
		q, err := docker.New(docker.LoadConfigFromEnv())
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
