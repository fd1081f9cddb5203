package texture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// UploadObserver receives the events of one upload.
type UploadObserver interface {
	OnUploadProgress(taskID string, fraction float64)
	OnUploadResult(outcome UploadOutcome)
}

// DownloadObserver receives the events of one download.
type DownloadObserver interface {
	OnDownloadProgress(taskID string, fraction float64)
	OnDownloadResult(outcome DownloadOutcome)
}

// Engine implements the individual task operations on top of a RemoteJobService.
// It holds no session state of its own.
type Engine struct {
	remote RemoteJobService
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(remote RemoteJobService, logger *zap.Logger) *Engine {
	return &Engine{remote: remote, logger: logger, now: time.Now}
}

// Begin initiates a remote task. On success the returned session is in
// StateInitiated and carries a non-empty task id.
func (e *Engine) Begin(ctx context.Context, cfg Configuration) (*TaskSession, error) {
	if cfg.TextureMode == "" {
		cfg.TextureMode = types.TextureModeAI
	}
	if cfg.TextureMode != types.TextureModeAI && cfg.TextureMode != types.TextureModeManual {
		return nil, &InitiationError{Code: types.CodeInvalidArgument, Message: fmt.Sprintf("unknown texture mode %q", cfg.TextureMode)}
	}

	res, err := e.remote.Initiate(ctx, cfg)
	if err != nil {
		return nil, &InitiationError{Code: types.CodeNetwork, Message: err.Error()}
	}
	if res.ResultCode != types.CodeOK || res.TaskID == "" {
		code := res.ResultCode
		if code == types.CodeOK {
			code = types.CodeInternal
		}
		e.logger.Error("get taskId error", zap.Int("retCode", res.ResultCode), zap.String("retMsg", res.ResultMessage))
		return nil, &InitiationError{Code: code, Message: res.ResultMessage}
	}

	s := NewTaskSession()
	if err := s.assignTaskID(res.TaskID, e.now()); err != nil {
		return nil, err
	}
	if err := s.Advance(StateInitiated); err != nil {
		return nil, err
	}
	e.logger.Info("task initiated", zap.String("taskId", s.TaskID), zap.String("retMsg", res.ResultMessage))
	return s, nil
}
