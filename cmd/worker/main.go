package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trellis-ai/trellis/backend/internal/db"
	"github.com/trellis-ai/trellis/backend/internal/queue"
	"github.com/trellis-ai/trellis/backend/internal/storage"
	"github.com/trellis-ai/trellis/backend/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trellis-ai/trellis/backend/pkg/ai"
	oai "github.com/trellis-ai/trellis/backend/pkg/ai/ollama"
	gai "github.com/trellis-ai/trellis/backend/pkg/ai/openai"
	"github.com/trellis-ai/trellis/backend/pkg/leaselock"
	"github.com/trellis-ai/trellis/backend/pkg/logger"
	"github.com/trellis-ai/trellis/backend/pkg/logger/console"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	logger.Init(console.New(console.Params{
		Debug:  debug,
		Prefix: "worker",
	}))

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// IndexAIClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.IndexAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewIndexOllamaClient(oai.NewIndexOllamaClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			SkeletonModel:  util.GetEnv("AI_SKELETON_MODEL"),
			ComposeModel:   util.GetEnv("AI_COMPOSE_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewIndexOpenAIClient(gai.NewIndexOpenAIClientParams{
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			SkeletonModel:  util.GetEnv("AI_SKELETON_MODEL"),
			ComposeModel:   util.GetEnv("AI_COMPOSE_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
	}

	// Run migrations before the pool opens
	if err := db.Migrate(util.GetEnv("DATABASE_URL")); err != nil {
		logger.Fatal("Failed to run database migrations", "err", err)
	}

	// Init pgx client
	poolConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database config", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.WorkerQueues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	locks := leaselock.New(pgConn)

	var includePatterns []string
	if patterns := util.GetEnv("INDEX_INCLUDE_PATTERNS"); patterns != "" {
		includePatterns = strings.Split(patterns, ",")
	}

	sessions, err := queue.NewSessions(ctx, queue.SessionsParams{
		AIClient:        aiClient,
		Pool:            pgConn,
		WorkspaceRoot:   util.GetEnv("WORKSPACE_ROOT"),
		IncludePatterns: includePatterns,
		DrainInterval:   time.Duration(util.GetEnvNumeric("INDEX_DRAIN_INTERVAL_MS", 0)) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("Failed to create workspace sessions", "err", err)
	}
	defer sessions.Close()

	logger.Info("Listening for messages")

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE message is delivered at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.WorkerQueues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.FileEventQueue:
					processingErr = queue.HandleFileEvent(ctx, sessions, string(qm.msg.Body))
				case queue.RebuildQueue:
					processingErr = queue.HandleRebuild(ctx, sessions, locks, string(qm.msg.Body))
				case queue.DeleteQueue:
					processingErr = queue.HandleDelete(ctx, sessions, locks, s3Client, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
