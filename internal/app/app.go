// Package app собирает сервис fulfillment: хранилища, сервисы, HTTP API,
// gRPC health, метрики, outbox worker, Kafka и Redis.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fulfillment/internal/health"
	"github.com/vladislavdragonenkov/fulfillment/internal/httpapi"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/realtime"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/membership"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outbox"
	"github.com/vladislavdragonenkov/fulfillment/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := lifecycle.ParseCancelPolicy(cfg.CancelFrom)
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	fm := metrics.NewFulfillmentMetrics()
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterOptional("outbox", outboxBacklogChecker(deps, cfg.OutboxMaxPending))

	var bus *realtime.Bus
	if cfg.RedisAddr != "" {
		bus, err = realtime.Connect(ctx, cfg.RedisAddr, logger.WithField("component", "snapshot-bus"))
		if err != nil {
			logger.WithError(err).Warn("redis is unavailable, snapshot push disabled")
		} else {
			defer func() { _ = bus.Close() }()
			healthHandler.RegisterOptional("redis", healthcheck.NewFuncChecker("redis", bus.Ping))
		}
	}

	orders := fulfillment.NewService(deps.repo, deps.timelineRepo, deps.outboxRepo,
		fulfillment.WithEngine(lifecycle.NewEngine(lifecycle.WithCancelPolicy(policy))),
		fulfillment.WithLogger(logger.WithField("component", "fulfillment")),
		fulfillment.WithMetrics(fm),
		fulfillment.WithBulkLimit(cfg.BulkLimit),
	)
	memberOpts := []membership.Option{
		membership.WithLogger(logger.WithField("component", "membership")),
		membership.WithMetrics(fm),
	}
	if bus != nil {
		memberOpts = append(memberOpts, membership.WithPublisher(bus))
	}
	members := membership.NewService(deps.membershipRepo, deps.catalog, memberOpts...)

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(kafkaProducer, logger)
	outboxCancel, outboxDone := startOutboxWorker(ctx, cfg, deps, kafkaProducer, logger)
	defer shutdownOutboxWorker(outboxCancel, outboxDone, logger)
	retentionCancel, retentionDone := startRetentionWorker(ctx, cfg, deps, logger)
	defer shutdownOutboxWorker(retentionCancel, retentionDone, logger)

	grpcServer, grpcHealth := newGRPCServer(logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	api := httpapi.NewServer(orders, members,
		httpapi.WithLogger(logger.WithField("component", "httpapi")),
		httpapi.WithMetrics(fm),
	)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- api.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownAPI(api, logger)
		return ctx.Err()
	case err := <-errCh:
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownAPI(api, logger)
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer поднимает gRPC health и reflection с метриками интерсепторов.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

func shutdownAPI(api *httpapi.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http api shutdown with error")
	}
}

// startOutboxWorker запускает публикацию outbox в Kafka. Без producer воркер не нужен:
// события остаются pending до появления брокера.
func startOutboxWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	if producer == nil {
		logger.Info("kafka is not configured, outbox worker is disabled")
		return nil, nil
	}

	options := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if cfg.KafkaShipmentTopic != "" {
		options = append(options, outbox.WithRoute(
			kafka.NewOutboxPublisher(producer, cfg.KafkaShipmentTopic),
			domain.EventOrderShipped, domain.EventOrderDelivered,
		))
	}

	worker := outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), options...)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// startRetentionWorker удаляет опубликованные события, если хранилище это умеет.
func startRetentionWorker(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) (context.CancelFunc, <-chan struct{}) {
	pruner, ok := deps.outboxRepo.(domain.OutboxPruner)
	if !ok {
		return nil, nil
	}

	worker := outbox.NewRetentionWorker(pruner,
		outbox.WithRetentionLogger(logger.WithField("component", "outbox-retention")),
		outbox.WithRetention(cfg.OutboxRetention),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
	)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(workerCtx)
	}()
	return cancel, done
}

// shutdownOutboxWorker останавливает воркер и ждёт его завершения.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info("outbox worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("outbox worker did not stop in time")
	}
}

// outboxBacklogChecker помечает сервис degraded, когда backlog outbox превышает limit.
func outboxBacklogChecker(deps *runtimeDependencies, limit int) healthcheck.Checker {
	return healthcheck.NewFuncChecker("outbox", func(ctx context.Context) error {
		stats, err := deps.outboxRepo.Stats(ctx)
		if err != nil {
			return err
		}
		if limit > 0 && stats.PendingCount > limit {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, limit)
		}
		return nil
	})
}

// startMetricsServer запускает HTTP-обработчик /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
