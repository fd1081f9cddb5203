// Command texture-client runs one texture generation workflow at a time
// behind a small HTTP API: upload a photo, query the task, download the maps.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/config"
	"github.com/mahirjain10/texture-workers/internal/api"
	"github.com/mahirjain10/texture-workers/internal/aws"
	"github.com/mahirjain10/texture-workers/internal/cloud"
	"github.com/mahirjain10/texture-workers/internal/observability"
	"github.com/mahirjain10/texture-workers/internal/queue"
	"github.com/mahirjain10/texture-workers/internal/texture"
)

func run(ctx context.Context) error {
	envConfig, err := config.InitializeEnvs()
	if err != nil {
		return fmt.Errorf("failed to initialize environment config: %w", err)
	}
	logger, err := observability.SetupLogger(envConfig.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	awsConfig, err := config.InitializeAws(ctx, envConfig.Aws)
	if err != nil {
		return fmt.Errorf("failed to initialize AWS config: %w", err)
	}
	s3Service := aws.NewS3Service(aws.NewS3Client(awsConfig, envConfig.Aws.Endpoint), envConfig.AwsBucketName, logger.Named("s3"))

	publisher := queue.NewPublisher(envConfig.RabbitMqURL, logger.Named("publisher"))
	defer publisher.Close()
	if err := publisher.DeclareQueue(config.JobQueue); err != nil {
		return err
	}

	remote := cloud.NewService(s3Service, publisher, envConfig.TextureSize, logger.Named("remote"))

	recorder := texture.NewRecorder(envConfig.NotificationHistory)
	opts := texture.Options{
		Config:      texture.Configuration{TextureMode: envConfig.TextureMode},
		DownloadDir: envConfig.DownloadDir,
		Notifier:    texture.MultiNotifier{texture.LogNotifier{Logger: logger.Named("notify")}, recorder},
		Logger:      logger.Named("client"),
	}
	if envConfig.Poll.Enabled {
		opts.Poll = &texture.PollPolicy{
			InitialInterval: envConfig.Poll.InitialInterval,
			MaxInterval:     envConfig.Poll.MaxInterval,
			MaxElapsed:      envConfig.Poll.MaxElapsed,
			MaxTries:        envConfig.Poll.MaxTries,
		}
	}
	client := texture.NewClient(remote, opts)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("client close failed", zap.Error(err))
		}
	}()

	if !envConfig.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterHandlers(r, client, recorder)

	srv := &http.Server{Addr: envConfig.HTTPAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("texture client listening", zap.String("addr", envConfig.HTTPAddr), zap.String("downloadDir", envConfig.DownloadDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("texture client: %v", err)
	}
}
