package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OpsDiagnosis/internal/api"
	"OpsDiagnosis/internal/config"
	"OpsDiagnosis/internal/database/kafka"
	"OpsDiagnosis/internal/database/redis"
	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/internal/taskqueue"
	"OpsDiagnosis/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "配置文件路径")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	serviceLogger := logger.New("DiagnosisAPIService", "", "")

	// Connect to Redis (session store + task result backend)
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
	}

	// Connect to Kafka (task queue), creating topics if needed
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Kafka")
	}

	// Create components with logger injection
	sessionStore := session.NewRedisStore(redisClient, cfg.SessionTTL(), serviceLogger)
	statusStore := taskqueue.NewStatusStore(redisClient, cfg.ResultTTL(), serviceLogger)
	taskPublisher := taskqueue.NewPublisher(kafkaClient.Writer, cfg.TaskQueue.TasksTopic, serviceLogger)

	apiHandler := api.NewAPI(taskPublisher, statusStore, sessionStore,
		redis.HealthCheck, kafkaClient.HealthCheck, serviceLogger)

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(serviceLogger))
	api.RegisterRoutes(router, apiHandler, cfg.Auth.APIKey)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Server forced to shutdown")
	}

	// writer 随 Kafka 单例一起关闭
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka client")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Redis client")
	}

	serviceLogger.Info("Server gracefully stopped")
}
