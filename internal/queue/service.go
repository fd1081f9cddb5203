package queue

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mahirjain10/texture-workers/config"
	"github.com/mahirjain10/texture-workers/internal/aws"
	queueErrors "github.com/mahirjain10/texture-workers/internal/queue/errors"
	"github.com/mahirjain10/texture-workers/internal/queue/handlers"
	"github.com/mahirjain10/texture-workers/internal/queue/models"
	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

// ObjectStore is the subset of aws.S3Service the worker needs.
type ObjectStore interface {
	DownloadObject(ctx context.Context, key string, filePath string, progress aws.ProgressFunc) (int64, error)
	PutFile(ctx context.Context, key string, filePath string, contentType string, progress aws.ProgressFunc) error
	PutJSON(ctx context.Context, key string, v any) error
	DeleteS3Object(ctx context.Context, key string) (bool, error)
}

// StatusPublisher broadcasts phase changes. Publishing is best effort: the
// status record in the object store is authoritative.
type StatusPublisher interface {
	PublishJSON(ctx context.Context, exchange string, routingKey string, message any) error
}

type RabbitMqService struct {
	store          ObjectStore
	publisher      StatusPublisher
	config         *config.Config
	textureHandler *handlers.TextureHandler
	logger         *zap.Logger
	retryDelay     time.Duration
}

func NewRabbitMqService(store ObjectStore, publisher StatusPublisher, cfg *config.Config, logger *zap.Logger) *RabbitMqService {
	return &RabbitMqService{
		store:          store,
		publisher:      publisher,
		config:         cfg,
		textureHandler: handlers.NewTextureHandler(logger),
		logger:         logger,
		retryDelay:     2 * time.Second,
	}
}

// fireBackgroundCleanup drops the worker's scratch files and the raw upload.
// The status record and generated maps stay until the client releases the task.
func (rabbitMqService *RabbitMqService) fireBackgroundCleanup(parentCtx context.Context, job types.TextureJob) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), 90*time.Second)
		defer cancel()

		if err := utils.RemoveLocalTask(rabbitMqService.config.WorkDir, job.TaskID); err != nil {
			rabbitMqService.logger.Warn("[bg-cleanup] error while removing local task dir", zap.String("taskId", job.TaskID), zap.Error(err))
		}
		if _, err := rabbitMqService.store.DeleteS3Object(ctx, job.RawKey); err != nil {
			rabbitMqService.logger.Warn("[bg-cleanup] error while deleting raw upload", zap.String("key", job.RawKey), zap.Error(err))
		}
	}()
}

// SetPhase writes the task's status record and announces it on the status
// exchange.
func (rabbitMqService *RabbitMqService) SetPhase(ctx context.Context, taskID string, phase int, errorMsg string, maps []string) error {
	record := utils.InitStatusRecord(taskID, phase, errorMsg, maps)
	if err := rabbitMqService.store.PutJSON(ctx, utils.StatusKey(taskID), record); err != nil {
		return fmt.Errorf("write status record: %w", err)
	}

	if rabbitMqService.publisher == nil {
		return nil
	}
	statusMessage := utils.InitStatusMessage(record)
	if err := rabbitMqService.publisher.PublishJSON(ctx, config.StatusExchange, config.StatusRoutingKey, statusMessage); err != nil {
		if utils.IsFatalError(err) {
			return fmt.Errorf("fatal: cannot publish status: %w", err)
		}
		rabbitMqService.logger.Warn("failed to publish status", zap.String("taskId", taskID), zap.Int("phase", phase), zap.Error(err))
	}
	return nil
}

func (rabbitMqService *RabbitMqService) fail(ctx context.Context, job types.TextureJob, errorMsg string, cause error) error {
	if err := rabbitMqService.SetPhase(ctx, job.TaskID, types.PhaseProcessingFailed, errorMsg, nil); err != nil {
		// The task would otherwise stay in processing forever.
		return models.ProcessingError{Err: fmt.Errorf("%s: %w (status not written: %v)", errorMsg, cause, err), Requeue: utils.IsTransientError(err)}
	}
	rabbitMqService.fireBackgroundCleanup(ctx, job)
	return models.ProcessingError{Err: fmt.Errorf("%s for task %s: %w", errorMsg, job.TaskID, cause), Requeue: false}
}

func (rabbitMqService *RabbitMqService) withRetry(ctx context.Context, what string, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(rabbitMqService.retryDelay)),
		backoff.WithMaxTries(3),
		backoff.WithNotify(func(err error, next time.Duration) {
			rabbitMqService.logger.Warn("attempt failed", zap.String("op", what), zap.Duration("retryIn", next), zap.Error(err))
		}),
	)
	return err
}

// ProcessMessage runs one texture job: fetch the photo, generate the maps,
// store them and mark the task completed. Every failure after parsing ends
// with a failed status record.
func (rabbitMqService *RabbitMqService) ProcessMessage(ctx context.Context, d amqp.Delivery) error {
	var rabbitMqMessage models.RabbitMqMessage
	if err := utils.ParseJSON(d.Body, &rabbitMqMessage); err != nil {
		return models.ProcessingError{Err: fmt.Errorf("%s: %w", queueErrors.ErrParse, err), Requeue: false}
	}
	job := rabbitMqMessage.Data
	if job.TaskID == "" || job.RawKey == "" {
		return models.ProcessingError{Err: fmt.Errorf("%s: missing task id or raw key", queueErrors.ErrParse), Requeue: false}
	}
	if err := utils.ValidateTaskID(job.TaskID); err != nil {
		return models.ProcessingError{Err: fmt.Errorf("%s: %w", queueErrors.ErrParse, err), Requeue: false}
	}
	if job.TextureSize <= 0 {
		job.TextureSize = rabbitMqService.config.TextureSize
	}
	if job.TextureMode == "" {
		job.TextureMode = rabbitMqService.config.TextureMode
	}

	logger := rabbitMqService.logger.With(zap.String("taskId", job.TaskID))
	logger.Info("processing texture job", zap.String("pattern", rabbitMqMessage.Pattern), zap.String("rawKey", job.RawKey))
	if job.CreatedAt != "" {
		logger.Debug("job created", zap.String("createdAt", job.CreatedAt))
	}

	if err := rabbitMqService.SetPhase(ctx, job.TaskID, types.PhaseProcessingStarted, "", nil); err != nil {
		return err
	}

	taskDir := utils.LocalTaskDir(rabbitMqService.config.WorkDir, job.TaskID)
	rawPath, err := utils.PathUtil(taskDir, path.Join("raw", path.Base(job.RawKey)))
	if err != nil {
		return rabbitMqService.fail(ctx, job, queueErrors.ErrDownload, err)
	}

	err = rabbitMqService.withRetry(ctx, "download", func() error {
		_, err := rabbitMqService.store.DownloadObject(ctx, job.RawKey, rawPath, nil)
		return err
	})
	if err != nil {
		logger.Error("download failed after 3 attempts", zap.Error(err))
		return rabbitMqService.fail(ctx, job, queueErrors.ErrDownload, err)
	}

	files, err := rabbitMqService.textureHandler.GenerateMaps(ctx, job, rawPath, filepath.Join(taskDir, "processed"))
	if err != nil {
		logger.Error("map generation failed", zap.Error(err))
		return rabbitMqService.fail(ctx, job, queueErrors.ErrGenerate, err)
	}

	maps := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		maps[i] = filepath.Base(file)
		key := utils.ProcessedKey(job.TaskID, maps[i])
		g.Go(func() error {
			return rabbitMqService.withRetry(gctx, "upload", func() error {
				return rabbitMqService.store.PutFile(gctx, key, file, "image/png", nil)
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("upload failed", zap.Error(err))
		return rabbitMqService.fail(ctx, job, queueErrors.ErrUpload, err)
	}

	if err := rabbitMqService.SetPhase(ctx, job.TaskID, types.PhaseProcessingCompleted, "", maps); err != nil {
		return err
	}
	logger.Info("texture job completed", zap.Strings("maps", maps))

	rabbitMqService.fireBackgroundCleanup(ctx, job)
	return nil
}

func (rabbitMqService *RabbitMqService) handleDelivery(ctx context.Context, queueName string, d amqp.Delivery) {
	err := rabbitMqService.ProcessMessage(ctx, d)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	rabbitMqService.logger.Error("error processing message", zap.String("queue", queueName), zap.Error(err))

	var procErr models.ProcessingError
	if errors.As(err, &procErr) {
		_ = d.Nack(false, procErr.Requeue)
		return
	}
	_ = d.Nack(false, utils.IsTransientError(err))
}

func (rabbitMqService *RabbitMqService) consume(ctx context.Context, queueName string, worker int) {
	logger := rabbitMqService.logger.With(zap.String("queue", queueName), zap.Int("worker", worker))

	var conn *amqp.Connection
	var consumerCh *amqp.Channel
	defer func() {
		if consumerCh != nil {
			consumerCh.Close()
		}
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		default:
		}

		if consumerCh == nil || consumerCh.IsClosed() {
			if conn == nil || conn.IsClosed() {
				newConn, err := NewRabbitMQClient(rabbitMqService.config.RabbitMqURL)
				if err != nil {
					logger.Warn("failed to connect to RabbitMQ", zap.Error(err))
					sleepCtx(ctx, 5*time.Second)
					continue
				}
				conn = newConn
			}
			newCh, err := NewChannel(conn)
			if err != nil {
				logger.Warn("failed to create channel", zap.Error(err))
				sleepCtx(ctx, 5*time.Second)
				continue
			}
			consumerCh = newCh
			logger.Debug("channel created")
		}

		msgs, err := NewQueueConsumer(consumerCh, queueName)
		if err != nil {
			logger.Warn("failed to start consumer", zap.Error(err))
			consumerCh.Close()
			consumerCh = nil
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		logger.Info("worker started, waiting for messages")

		channelClosed := false
		for !channelClosed {
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return
			case d, ok := <-msgs:
				if !ok {
					logger.Warn("channel closed, will recreate")
					consumerCh = nil
					channelClosed = true
					sleepCtx(ctx, 2*time.Second)
					break
				}
				rabbitMqService.handleDelivery(ctx, queueName, d)
			}
		}
	}
}

// Start declares the queues and the status topology, then runs the
// configured number of consumers per job queue until ctx is cancelled.
func (rabbitMqService *RabbitMqService) Start(ctx context.Context, conn *amqp.Connection) error {
	ch, err := NewChannel(conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := DeclareStatusTopology(ch); err != nil {
		return err
	}
	rabbitMqService.logger.Info("status topology declared", zap.String("exchange", config.StatusExchange))

	for _, queueName := range rabbitMqService.config.RabbitMqQueues {
		if queueName == config.StatusQueue {
			continue
		}
		if _, err := NewQueue(ch, queueName); err != nil {
			return err
		}

		count, ok := config.Worker[queueName]
		if !ok {
			rabbitMqService.logger.Warn("could not get worker count, using 1", zap.String("queue", queueName))
			count = 1
		}
		for i := range count {
			go rabbitMqService.consume(ctx, queueName, i+1)
		}
		rabbitMqService.logger.Info("queue declared", zap.String("queue", queueName), zap.Int("workers", count))
	}

	<-ctx.Done()
	rabbitMqService.logger.Info("shutting down all consumers gracefully")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
