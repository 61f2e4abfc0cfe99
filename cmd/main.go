package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/posture/internal/adapters/http/api"
	"github.com/okian/posture/internal/adapters/http/client"
	"github.com/okian/posture/internal/adapters/http/stream"
	"github.com/okian/posture/internal/adapters/http/swagger"
	"github.com/okian/posture/internal/adapters/notify"
	"github.com/okian/posture/internal/adapters/repository"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	metrics.Init(metricsOptions(cfg)...)

	if err := logger.Init(loggerOptions(cfg)...); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	notifier, closeNotifier := buildNotifier(ctx, cfg, loggerInstance)
	defer closeNotifier()

	svc := service.New(serviceOptions(cfg, loggerInstance, notifier)...)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			loggerInstance.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, loggerInstance),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

func loggerOptions(cfg *config.Config) []logger.Option {
	var opts []logger.Option
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile))
	}
	if cfg.LogJSON {
		opts = append(opts, logger.WithJSON())
	}
	return opts
}

func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
	}
	if buckets, err := cfg.LatencyBuckets(); err == nil && len(buckets) > 0 {
		opts = append(opts, metrics.WithLatencyBuckets(buckets))
	}
	return opts
}

// serviceOptions maps configuration onto the service.
func serviceOptions(cfg *config.Config, l logger.Logger, n notify.Notifier) []service.Option {
	opts := []service.Option{
		service.WithLogger(l),
		service.WithNotifier(n),
		service.WithWorkerCount(cfg.SubmitWorkers),
		service.WithQueueSize(cfg.SubmitQueueSize),
		service.WithDeliveryTimeout(cfg.SubmitTimeout()),
		service.WithRetentionCap(cfg.RetentionCap),
		service.WithPersistenceThreshold(cfg.PersistenceThreshold()),
		service.WithLogCooldown(cfg.LogCooldown()),
		service.WithAnalyzerOptions(
			posture.WithSlouchThreshold(cfg.SlouchThreshold),
			posture.WithTiltThreshold(cfg.TiltThreshold()),
		),
		service.WithStoreTarget(repository.Target{
			Driver:    cfg.StoreDriver,
			Path:      cfg.StorePath,
			RedisAddr: cfg.RedisAddr,
			RedisKey:  cfg.RedisKey,
		}),
	}
	if cfg.LogEndpoint != "" {
		opts = append(opts, service.WithForwarder(client.New(cfg.LogEndpoint,
			client.WithTimeout(cfg.SubmitTimeout()),
			client.WithLogger(l.Named("logclient")),
		)))
	}
	return opts
}

// buildNotifier always logs alerts and adds MQTT when a broker is configured.
// An unreachable broker is logged and skipped.
func buildNotifier(ctx context.Context, cfg *config.Config, l logger.Logger) (notify.Notifier, func()) {
	logSink := notify.NewLogNotifier(l.Named("alerts"))
	if cfg.MQTTBroker == "" {
		return logSink, func() {}
	}
	mqttClient, err := notify.DialMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientID, l.Named("mqtt"))
	if err != nil {
		l.Warn(ctx, "mqtt notifier disabled", logger.String("broker", cfg.MQTTBroker), logger.Error(err))
		return logSink, func() {}
	}
	mqttSink := notify.NewMQTTNotifier(mqttClient, cfg.MQTTTopic, l.Named("mqtt"))
	return notify.Multi{logSink, mqttSink}, func() { _ = mqttSink.Close() }
}

// newMux registers every HTTP surface of the service.
func newMux(ctx context.Context, svc *service.Service, l logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	api.NewServer(svc, svc, api.WithLogger(l.Named("api"))).Register(ctx, mux)

	// Live frame channel.
	stream.NewHandler(svc, stream.WithLogger(l.Named("stream"))).Register(ctx, mux)

	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateServiceMetrics refreshes gauges that are only sampled, not pushed.
func updateServiceMetrics(svc *service.Service) {
	// GetStats already refreshes the stored entry gauge.
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
