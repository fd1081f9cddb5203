package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/config"
	"github.com/mahirjain10/texture-workers/internal/aws"
	"github.com/mahirjain10/texture-workers/internal/observability"
	"github.com/mahirjain10/texture-workers/internal/queue"
)

type App struct {
	config          *config.Config
	logger          *zap.Logger
	rabbitMqConn    *amqp.Connection
	publisher       *queue.Publisher
	s3Service       *aws.S3Service
	rabbitMqService *queue.RabbitMqService
}

// NewApp creates and initializes a new App instance with all dependencies
func NewApp(ctx context.Context) (*App, error) {
	envConfig, err := config.InitializeEnvs()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize environment config: %w", err)
	}

	logger, err := observability.SetupLogger(envConfig.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	awsConfig, err := config.InitializeAws(ctx, envConfig.Aws)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
	}
	s3Client := aws.NewS3Client(awsConfig, envConfig.Aws.Endpoint)
	s3Service := aws.NewS3Service(s3Client, envConfig.AwsBucketName, logger.Named("s3"))

	conn, err := queue.NewRabbitMQClient(envConfig.RabbitMqURL)
	if err != nil {
		return nil, err
	}
	publisher := queue.NewPublisher(envConfig.RabbitMqURL, logger.Named("publisher"))

	rabbitMqService := queue.NewRabbitMqService(s3Service, publisher, envConfig, logger.Named("worker"))
	logger.Info("texture worker initialized",
		zap.String("bucket", s3Service.BucketName()),
		zap.Strings("queues", envConfig.RabbitMqQueues),
		zap.Int("textureSize", envConfig.TextureSize),
	)

	return &App{
		config:          envConfig,
		logger:          logger,
		rabbitMqConn:    conn,
		publisher:       publisher,
		s3Service:       s3Service,
		rabbitMqService: rabbitMqService,
	}, nil
}

// Close gracefully shuts down the application
func (a *App) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("error closing publisher", zap.Error(err))
	}
	if a.rabbitMqConn != nil && !a.rabbitMqConn.IsClosed() {
		if err := a.rabbitMqConn.Close(); err != nil {
			a.logger.Warn("error closing RabbitMQ connection", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	if err := app.rabbitMqService.Start(ctx, app.rabbitMqConn); err != nil {
		app.logger.Error("worker stopped", zap.Error(err))
	}
}
