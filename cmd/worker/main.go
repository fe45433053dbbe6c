package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graftlab/graft/internal/docstore"
	"github.com/graftlab/graft/internal/queue"
	"github.com/graftlab/graft/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/graftlab/graft/pkg/ai"
	oai "github.com/graftlab/graft/pkg/ai/ollama"
	gai "github.com/graftlab/graft/pkg/ai/openai"
	"github.com/graftlab/graft/pkg/analyze"
	"github.com/graftlab/graft/pkg/fusion"
	"github.com/graftlab/graft/pkg/leaselock"
	"github.com/graftlab/graft/pkg/loader"
	ioloader "github.com/graftlab/graft/pkg/loader/io"
	s3loader "github.com/graftlab/graft/pkg/loader/s3"
	webloader "github.com/graftlab/graft/pkg/loader/web"
	"github.com/graftlab/graft/pkg/logger"
	"github.com/graftlab/graft/pkg/logger/console"
	"github.com/graftlab/graft/pkg/store"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// GraphAiClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			DescriptionModel: util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),
			ExtractionModel:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 1)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			DescriptionModel: util.GetEnv("AI_CHAT_DESCRIBE_MODEL"),
			ExtractionModel:  util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client
	databaseURL := util.GetEnv("DATABASE_URL")
	migrationsPath := util.GetEnvString("MIGRATIONS_PATH", "internal/docstore/migrations")
	if err := docstore.Migrate(databaseURL, migrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Graph storage and fusion processor
	graphStorage, err := store.NewGraphStorage(ctx, store.ConfigFromEnv())
	if err != nil {
		logger.Fatal("Failed to open graph storage", "err", err)
	}
	defer graphStorage.Close(ctx)

	resolver, err := ai.NewResolver(ai.NewResolverParams{Client: aiClient})
	if err != nil {
		logger.Fatal("Failed to create resolver", "err", err)
	}

	processor, err := fusion.NewProcessor(ctx, fusion.NewProcessorParams{
		Storage:              graphStorage,
		Resolver:             resolver,
		ConsolidateThreshold: int(util.GetEnvNumeric("CONSOLIDATE_THRESHOLD", 0)),
	})
	if err != nil {
		logger.Fatal("Failed to create fusion processor", "err", err)
	}

	analyzer, err := analyze.NewAnalyzer(analyze.NewAnalyzerParams{
		Client:        aiClient,
		MaxTokens:     int(util.GetEnvNumeric("CHUNK_MAX_TOKENS", 0)),
		OverlapTokens: int(util.GetEnvNumeric("CHUNK_OVERLAP_TOKENS", 0)),
		ParallelMax:   int(util.GetEnvNumeric("AI_PARALLEL_REQ", 0)),
	})
	if err != nil {
		logger.Fatal("Failed to create analyzer", "err", err)
	}

	// Document loaders
	var s3Loader loader.GraphFileLoader
	if util.GetEnv("AWS_BUCKET") != "" {
		l, err := s3loader.NewS3GraphFileLoader(ctx, s3loader.NewS3GraphFileLoaderParams{
			Bucket:    util.GetEnv("AWS_BUCKET"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			Region:    util.GetEnv("AWS_REGION"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
		})
		if err != nil {
			logger.Fatal("Failed to create S3 loader", "err", err)
		}
		s3Loader = l
	}

	handler, err := queue.NewHandler(queue.NewHandlerParams{
		Analyzer:  analyzer,
		Processor: processor,
		Docs:      docstore.New(pgConn),
		Lease:     leaselock.New(pgConn),

		IOLoader:  ioloader.NewIOGraphFileLoader(),
		WebLoader: webloader.NewWebGraphLoader(),
		S3Loader:  s3Loader,

		ReportDir:      util.GetEnv("REPORT_DIR"),
		DefaultGraphID: util.GetEnvString("GRAPH_ID", "default"),
	})
	if err != nil {
		logger.Fatal("Failed to create message handler", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

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

	for _, queueName := range queue.Queues {
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
				case queue.IngestQueue:
					processingErr = handler.ProcessIngest(ctx, string(qm.msg.Body))
				case queue.ConsolidateQueue:
					processingErr = handler.ProcessConsolidate(ctx, string(qm.msg.Body))
				}

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					handleProcessingError(consumerCh, qm.msg, qm.queueName)
				} else {
					err = qm.msg.Ack(false)
					if err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "text/plain",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "text/plain",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
