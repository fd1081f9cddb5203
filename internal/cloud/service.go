// Package cloud implements texture.RemoteJobService on an S3 bucket and a
// RabbitMQ job queue, the same pair the texture worker consumes.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/config"
	"github.com/mahirjain10/texture-workers/internal/aws"
	"github.com/mahirjain10/texture-workers/internal/texture"
	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

const jobPattern = "texture_job"

// ObjectStore is the subset of aws.S3Service the client side needs.
type ObjectStore interface {
	PutFile(ctx context.Context, key string, filePath string, contentType string, progress aws.ProgressFunc) error
	DownloadObject(ctx context.Context, key string, filePath string, progress aws.ProgressFunc) (int64, error)
	PutJSON(ctx context.Context, key string, v any) error
	GetJSON(ctx context.Context, key string, v any) error
	ListPrefix(ctx context.Context, prefix string) ([]aws.ObjectInfo, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// JobPublisher hands a job message to the queue.
type JobPublisher interface {
	PublishJSON(ctx context.Context, exchange string, routingKey string, message any) error
}

type Service struct {
	store       ObjectStore
	publisher   JobPublisher
	jobQueue    string
	textureSize int
	logger      *zap.Logger
	newID       func() string
	now         func() time.Time
}

func NewService(store ObjectStore, publisher JobPublisher, textureSize int, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		publisher:   publisher,
		jobQueue:    config.JobQueue,
		textureSize: textureSize,
		logger:      logger,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Initiate creates a task by writing its first status record.
func (s *Service) Initiate(ctx context.Context, cfg texture.Configuration) (texture.InitResult, error) {
	if cfg.TextureMode != types.TextureModeAI && cfg.TextureMode != types.TextureModeManual {
		return texture.InitResult{ResultCode: types.CodeInvalidArgument, ResultMessage: fmt.Sprintf("unknown texture mode %q", cfg.TextureMode)}, nil
	}
	taskID := s.newID()
	record := utils.InitStatusRecord(taskID, types.PhaseInitiated, "", nil)
	record.TextureMode = cfg.TextureMode
	if err := s.store.PutJSON(ctx, utils.StatusKey(taskID), record); err != nil {
		s.logger.Error("failed to create task", zap.String("taskId", taskID), zap.Error(err))
		return texture.InitResult{ResultCode: codeFor(ctx, err, types.CodeStorage), ResultMessage: err.Error()}, nil
	}
	s.logger.Info("task created", zap.String("taskId", taskID), zap.String("mode", cfg.TextureMode))
	return texture.InitResult{TaskID: taskID, ResultCode: types.CodeOK, ResultMessage: "task created"}, nil
}

// Upload stores the photo, marks the upload as complete and queues the
// texture job. The texture mode recorded with the job comes from the task's
// status record.
func (s *Service) Upload(ctx context.Context, taskID string, assetPath string, l texture.TransferListener) {
	if err := utils.CheckReadable(assetPath); err != nil {
		l.OnError(taskID, types.CodeInvalidArgument, err.Error())
		return
	}
	var record types.StatusRecord
	if err := s.store.GetJSON(ctx, utils.StatusKey(taskID), &record); err != nil {
		code := codeFor(ctx, err, types.CodeNetwork)
		if errors.Is(err, aws.ErrObjectNotFound) {
			code = types.CodeTaskNotFound
		}
		l.OnError(taskID, code, err.Error())
		return
	}
	if record.Phase != types.PhaseInitiated {
		l.OnError(taskID, types.CodeInvalidArgument, "photo already uploaded for task")
		return
	}

	rawKey := utils.RawKey(taskID, assetPath)
	progress := func(done, total int64) {
		if total > 0 {
			l.OnProgress(taskID, float64(done)/float64(total))
		}
	}
	if err := s.store.PutFile(ctx, rawKey, assetPath, "", progress); err != nil {
		l.OnError(taskID, codeFor(ctx, err, types.CodeStorage), err.Error())
		return
	}

	record.Phase = types.PhaseUploadCompleted
	record.UpdatedAt = s.now().UTC()
	if err := s.store.PutJSON(ctx, utils.StatusKey(taskID), &record); err != nil {
		l.OnError(taskID, codeFor(ctx, err, types.CodeStorage), err.Error())
		return
	}

	msg := types.JobMessage{
		Pattern: jobPattern,
		Data: types.TextureJob{
			TaskID:      taskID,
			FileName:    filepath.Base(assetPath),
			RawKey:      rawKey,
			TextureMode: record.TextureMode,
			TextureSize: s.textureSize,
			CreatedAt:   s.now().UTC().Format(time.RFC3339),
		},
	}
	if err := s.publisher.PublishJSON(ctx, "", s.jobQueue, msg); err != nil {
		l.OnError(taskID, codeFor(ctx, err, types.CodeQueue), err.Error())
		return
	}
	l.OnProgress(taskID, 1)
	l.OnResult(taskID, true)
}

// QueryStatus reads the task's status record. Transport failures are returned
// as errors; a missing record is reported through the result code.
func (s *Service) QueryStatus(ctx context.Context, taskID string) (texture.QueryResult, error) {
	var record types.StatusRecord
	if err := s.store.GetJSON(ctx, utils.StatusKey(taskID), &record); err != nil {
		if errors.Is(err, aws.ErrObjectNotFound) {
			return texture.QueryResult{ResultCode: types.CodeTaskNotFound}, nil
		}
		return texture.QueryResult{}, err
	}
	return texture.QueryResult{ResultCode: types.CodeOK, PhaseCode: record.Phase}, nil
}

// Download copies every generated map into destinationPath. Progress counts
// bytes across all maps.
func (s *Service) Download(ctx context.Context, taskID string, destinationPath string, l texture.TransferListener) {
	objects, err := s.store.ListPrefix(ctx, utils.ProcessedPrefix(taskID))
	if err != nil {
		l.OnError(taskID, codeFor(ctx, err, types.CodeNetwork), err.Error())
		return
	}
	if len(objects) == 0 {
		l.OnError(taskID, types.CodeTaskNotFound, "no texture maps stored for task")
		return
	}

	var total int64
	for _, obj := range objects {
		total += obj.Size
	}
	var before int64
	for _, obj := range objects {
		dest := filepath.Join(destinationPath, path.Base(obj.Key))
		n, err := s.store.DownloadObject(ctx, obj.Key, dest, func(done, _ int64) {
			if total > 0 {
				l.OnProgress(taskID, float64(before+done)/float64(total))
			}
		})
		if err != nil {
			l.OnError(taskID, codeFor(ctx, err, types.CodeStorage), err.Error())
			return
		}
		before += n
		s.logger.Debug("texture map downloaded", zap.String("taskId", taskID), zap.String("file", dest))
	}
	l.OnProgress(taskID, 1)
	l.OnResult(taskID, true)
}

// Release deletes everything stored for the task.
func (s *Service) Release(ctx context.Context, taskID string) error {
	if taskID == "" {
		return nil
	}
	return utils.DeleteRemotePrefix(ctx, s.store, utils.TaskPrefix(taskID))
}

// codeFor picks the result code for a failed call: cancellation wins over the
// operation's default code.
func codeFor(ctx context.Context, err error, fallback int) int {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return types.CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.CodeNetwork
	}
	return fallback
}
