package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inpaintx/dataset-ingestion-service/internal/infra/config"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/email"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/ffmpeg"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/httpapi"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/metrics"
	miniostorage "github.com/inpaintx/dataset-ingestion-service/internal/infra/minio"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/postgres"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/rabbitmq"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/tokenledger"
	"github.com/inpaintx/dataset-ingestion-service/internal/infra/tracing"
	"github.com/inpaintx/dataset-ingestion-service/internal/media"
	"github.com/inpaintx/dataset-ingestion-service/internal/usecase"
	"github.com/inpaintx/dataset-ingestion-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting dataset-ingestion-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	err = postgres.RunMigrations(cfg.DatabaseURL, "migrations")
	if err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Bucket:    cfg.MinIOBucket,
	}, log)
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBucket(ctx), "ensure minio bucket")

	fatalOnErr(os.MkdirAll(cfg.TempDir, 0o755), "create temp dir")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	// Adapters
	repo := postgres.NewDatasetRepository(pool)
	ledger := tokenledger.NewClient(cfg.LedgerBaseURL, time.Duration(cfg.LedgerTimeoutMs)*time.Millisecond)
	decoder := ffmpeg.NewDecoder(log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)

	// Core pipeline
	extractor := media.NewExtractor(decoder, storage, cfg.TempDir, log)
	archives := media.NewArchiveProcessor(extractor, log)
	estimator := usecase.NewCostEstimator(extractor, log)
	mutator := usecase.NewDatasetMutator(repo, log)

	ingestUC := usecase.NewIngestUploadUseCase(
		estimator, ledger, repo, storage,
		extractor, archives, mutator,
		statusPub, notifier,
		log,
	)
	createUC := usecase.NewCreateDatasetUseCase(repo, log)
	worker := usecase.NewIngestWorker(ingestUC, storage, dlqPub, log)

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// HTTP API
	api := httpapi.NewServer(
		ingestUC, createUC, ledger, repo, storage,
		time.Duration(cfg.PresignTTLMinutes)*time.Minute,
		log,
	)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.Router(),
	}
	go func() {
		log.Info("http api starting", zap.Int("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http api error", zap.Error(err))
		}
	}()

	// Consumer (worker pool for queued ingestions)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQIngestQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, worker.Handle, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("dataset-ingestion-service started")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("dataset-ingestion-service stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
