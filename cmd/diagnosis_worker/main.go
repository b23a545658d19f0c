package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"OpsDiagnosis/internal/config"
	"OpsDiagnosis/internal/database/kafka"
	"OpsDiagnosis/internal/database/mongo"
	"OpsDiagnosis/internal/database/redis"
	"OpsDiagnosis/internal/executor"
	"OpsDiagnosis/internal/knowledge"
	"OpsDiagnosis/internal/llm"
	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/internal/session"
	"OpsDiagnosis/internal/taskqueue"
	"OpsDiagnosis/internal/workflow"
	"OpsDiagnosis/pkg/logger"

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

	serviceLogger := logger.New("DiagnosisWorker", "", "")

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

	// Connect to MongoDB (fault case knowledge base)
	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
	}
	db := mongoClient.Database(cfg.Databases.MongoDB.Database)

	// Build the inference client
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to create LLM client")
	}

	// Assemble the workflow engine and executor
	retriever := knowledge.NewMongoRetriever(db, cfg.Knowledge.Collection, cfg.Knowledge.TopK, serviceLogger)
	engine := workflow.NewEngine(workflow.Capabilities{
		LLM:       llmClient,
		Retriever: retriever,
		TopK:      cfg.Knowledge.TopK,
	}, serviceLogger)

	sessionStore := session.NewRedisStore(redisClient, cfg.SessionTTL(), serviceLogger)
	statusStore := taskqueue.NewStatusStore(redisClient, cfg.ResultTTL(), serviceLogger)
	sessionLocks := session.NewLock(redisClient, cfg.SessionLockTTL())
	taskExecutor := executor.New(engine, sessionStore, statusStore, serviceLogger)

	pool := taskqueue.NewWorkerPool(taskqueue.WorkerPoolConfig{
		Brokers:     cfg.Databases.Kafka.Brokers,
		Topic:       cfg.TaskQueue.TasksTopic,
		GroupID:     cfg.TaskQueue.GroupID,
		WorkerCount: cfg.TaskQueue.WorkerCount,
		HardLimit:   cfg.HardTimeLimit(),
		SoftLimit:   cfg.SoftTimeLimit(),
	}, taskExecutor, statusStore, sessionLocks, serviceLogger)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	serviceLogger.Info("Diagnosis worker pool started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down workers...")

	cancel()
	if err := pool.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing worker pool")
	}
	if err := kafkaClient.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka client")
	}
	if err := mongo.Close(context.Background()); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
	}
	if err := redis.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Redis client")
	}

	serviceLogger.Info("Worker gracefully stopped")
}
