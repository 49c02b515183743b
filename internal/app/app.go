// Package app assembles the stores, queue and services shared by the
// wardline binaries.
package app

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/config"
	"github.com/gosuda/wardline/internal/metrics"
	"github.com/gosuda/wardline/internal/queue"
	"github.com/gosuda/wardline/internal/report"
	"github.com/gosuda/wardline/internal/retention"
	"github.com/gosuda/wardline/internal/store/postgres"
	redisstore "github.com/gosuda/wardline/internal/store/redis"
)

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// App holds the long-lived dependencies. Build it once per process.
type App struct {
	Config      *config.Config
	Store       *postgres.Store
	PubSub      *redisstore.PubSub
	Archives    blob.Store
	Attachments blob.Store
	Registry    *prometheus.Registry

	reportMetrics    *metrics.ReportMetrics
	retentionMetrics *metrics.RetentionMetrics
}

// Open connects to PostgreSQL, Redis and both blob buckets. Migrations are
// not applied here.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("app.Open: database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.reportMetrics = metrics.NewReportMetrics(a.Registry)
	a.retentionMetrics = metrics.NewRetentionMetrics(a.Registry)
	a.reportMetrics.Initialize()

	var err error
	a.Store, err = postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), //nolint:gosec // bounds checked above
		postgres.WithAppName(cfg.Report.AppName))
	if err != nil {
		return nil, fmt.Errorf("app.Open: %w", err)
	}

	a.PubSub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Open: %w", err)
	}

	a.Archives, err = blob.New(ctx, cfg.Blob.Store(cfg.Blob.ReportsBucket))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Open: reports bucket: %w", err)
	}

	a.Attachments, err = blob.New(ctx, cfg.Blob.Store(cfg.Blob.AttachmentsBucket))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.Open: attachments bucket: %w", err)
	}

	return a, nil
}

// Close releases everything Open acquired. Safe on a partially opened App.
func (a *App) Close() {
	if a.Attachments != nil {
		_ = a.Attachments.Close()
	}
	if a.Archives != nil {
		_ = a.Archives.Close()
	}
	if a.PubSub != nil {
		_ = a.PubSub.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// Runner builds the report job runner.
func (a *App) Runner() *report.Runner {
	return report.NewRunner(
		a.Store.AuditReports(),
		a.Store.AuditEvents(),
		a.Store.Attachments(),
		a.Archives,
		a.Attachments,
		a.PubSub,
		a.reportMetrics,
		report.RunnerConfig{
			MinJobVersion: a.Config.Report.MinJobVersion,
			PollInterval:  a.Config.Report.PollInterval,
			ScratchDir:    a.Config.Report.ScratchDir,
			MaxPartBytes:  a.Config.Report.MaxPartBytes,
			SignedURLTTL:  a.Config.Blob.SignedURLTTL,
		},
	)
}

// Service builds the request-side report service on top of jobs.
func (a *App) Service(jobs report.JobPublisher) *report.Service {
	return report.NewService(
		a.Store.AuditReports(),
		jobs,
		a.Archives,
		a.PubSub,
		a.Config.Report.MaxReportsPerUser,
		a.Config.Blob.SignedURLTTL,
	)
}

// Sweeper builds the retention sweeper over the attachments bucket.
func (a *App) Sweeper() *retention.Sweeper {
	return retention.NewSweeper(
		a.Store.RetentionSettings(),
		a.Store.Attachments(),
		a.Store.AuditEvents(),
		a.Attachments,
		a.retentionMetrics,
		retention.Config{
			ThumbnailPrefix:  a.Config.Retention.ThumbnailPrefix,
			Concurrency:      a.Config.Retention.Concurrency,
			DeletesPerSecond: a.Config.Retention.DeletesPerSecond,
		},
	)
}

// Scheduler builds the cron-driven sweep scheduler guarded by the redis lock.
func (a *App) Scheduler() (*retention.Scheduler, error) {
	s, err := retention.NewScheduler(a.Sweeper(), a.PubSub, a.Config.Retention.Schedule, a.Config.Retention.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("app.Scheduler: %w", err)
	}
	return s, nil
}

// Reconciler builds the orphaned-archive reconciler.
func (a *App) Reconciler() *report.Reconciler {
	return report.NewReconciler(a.Store.AuditReports(), a.Archives)
}

// Queue is a job transport that can both publish and consume.
type Queue interface {
	queue.Publisher
	queue.Consumer
}

type sqsQueue struct {
	*queue.SQSPublisher
	*queue.SQSConsumer
}

func (q sqsQueue) Close() error { return nil }

// OpenQueue connects to the configured job transport.
func OpenQueue(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch cfg.Backend {
	case config.QueueRabbitMQ:
		q, err := queue.NewRabbitMQ(cfg.URL, cfg.Name, cfg.Prefetch)
		if err != nil {
			return nil, fmt.Errorf("app.OpenQueue: %w", err)
		}
		return q, nil
	case config.QueueSQS:
		client, err := queue.NewSQSClient(ctx, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("app.OpenQueue: %w", err)
		}
		queueURL := cfg.URL
		if queueURL == "" {
			out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.Name)})
			if err != nil {
				return nil, fmt.Errorf("app.OpenQueue: resolve %s: %w", cfg.Name, err)
			}
			queueURL = aws.ToString(out.QueueUrl)
		}
		return sqsQueue{
			SQSPublisher: queue.NewSQSPublisher(client, queueURL),
			SQSConsumer:  queue.NewSQSConsumer(client, queueURL, cfg.Workers, int32(cfg.WaitSeconds)), //nolint:gosec // validated 0-20
		}, nil
	default:
		return nil, fmt.Errorf("app.OpenQueue: unknown backend %q", cfg.Backend)
	}
}
