package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldsignal/relay/pkg/common/config"
	"github.com/fieldsignal/relay/pkg/common/database"
	"github.com/fieldsignal/relay/pkg/common/events"
	"github.com/fieldsignal/relay/pkg/common/logger"
	"github.com/fieldsignal/relay/pkg/common/middleware"
	"github.com/fieldsignal/relay/pkg/delivery"
	"github.com/fieldsignal/relay/pkg/queue"
	"github.com/fieldsignal/relay/pkg/reconcile"
	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/reports"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init("relay-api")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}

	registryRepo := registry.NewRepository(db)
	reportRepo := reports.NewRepository(db)
	deliveryRepo := delivery.NewRepository(db)

	for _, migrate := range []func() error{
		registryRepo.AutoMigrate,
		reportRepo.AutoMigrate,
		deliveryRepo.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to run migrations")
		}
	}

	jobQueue := queue.New(database.GetRedis(), "")
	producer := events.NewProducer(cfg.ReportEventTopic)
	defer producer.Close()

	reportService := reports.NewService(reportRepo, producer)
	listener := reconcile.NewListener(reportRepo, registryRepo, deliveryRepo, jobQueue)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	registry.NewHandler(registryRepo).Register(api)
	reports.NewHandler(reportService).Register(api)
	delivery.NewHandler(deliveryRepo, reportRepo, registryRepo, jobQueue).Register(api)
	reconcile.NewHandler(listener).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Relay API started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Relay API...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	database.ClosePostgres()
	database.CloseRedis()
	logger.Log.Info("Relay API stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
