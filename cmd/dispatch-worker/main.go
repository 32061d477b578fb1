package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldsignal/relay/pkg/common/config"
	"github.com/fieldsignal/relay/pkg/common/database"
	"github.com/fieldsignal/relay/pkg/common/events"
	"github.com/fieldsignal/relay/pkg/common/httpclient"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/dispatch"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/fieldsignal/relay/pkg/trigger"
	"github.com/google/uuid"
)

func main() {
	logger.Init("dispatch-worker")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}

	registryRepo := registry.NewRepository(db)
	reportRepo := reports.NewRepository(db)
	deliveryRepo := delivery.NewRepository(db)

	jobQueue := queue.New(database.GetRedis(), "")

	clients := dispatch.NewHTTPClientFactory(httpclient.New(cfg.UpstreamTimeout))
	dispatcher := dispatch.NewDispatcher(
		deliveryRepo, reportRepo, registryRepo, clients, jobQueue,
		cfg.DispatchRetries, cfg.DispatchRetryBackoff,
	)
	engine := trigger.NewEngine(reportRepo, registryRepo, deliveryRepo, jobQueue, cfg.FormsDebounceDelay)

	worker := queue.NewWorker(jobQueue, cfg.DispatchWorkers, cfg.DispatchSoftDeadline)
	worker.Handle(queue.JobDispatchDelivery, func(ctx context.Context, job *queue.Job) error {
		deliveryID, err := uuid.Parse(job.String("delivery_id"))
		if err != nil {
			return fmt.Errorf("job without usable delivery_id: %w", err)
		}
		return dispatcher.Deliver(ctx, deliveryID)
	})
	worker.Handle(queue.JobAttachTags, func(ctx context.Context, job *queue.Job) error {
		integrationID, err := uuid.Parse(job.String("integration_id"))
		if err != nil {
			return fmt.Errorf("job without usable integration_id: %w", err)
		}
		return dispatcher.AttachTags(ctx, integrationID, job.String("ticket_token"), job.Strings("tags"))
	})

	consumer := events.NewConsumer(cfg.ReportEventTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithField("workers", cfg.DispatchWorkers).Info("Dispatch worker pool started")
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Worker pool stopped")
		}
	}()

	go func() {
		logger.Log.WithField("topic", cfg.ReportEventTopic).Info("Trigger consumer started")
		if err := consumer.Consume(ctx, engine.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("Trigger consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down dispatch worker...")
	cancel()

	database.ClosePostgres()
	database.CloseRedis()
	logger.Log.Info("Dispatch worker stopped")
}
