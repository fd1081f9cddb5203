package texture

import (
	"context"

	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

// UploadAsync starts pushing the photo at assetPath. It returns immediately;
// the observer receives the progress and the single terminal outcome. A
// session without a task id is refused with an InitiationError before the
// transport is touched.
func (e *Engine) UploadAsync(ctx context.Context, s *TaskSession, assetPath string, obs UploadObserver) (*Handle, error) {
	taskID := ""
	if s != nil {
		taskID = s.TaskID
	}
	if taskID == "" {
		return nil, &InitiationError{Code: types.CodeTaskNotFound, Message: "task id is empty"}
	}
	if err := utils.CheckReadable(assetPath); err != nil {
		return nil, &UploadError{TaskID: taskID, Code: types.CodeInvalidArgument, Message: err.Error()}
	}

	t := newTransfer(taskID,
		func(f float64) {
			e.logger.Debug("uploading", zap.String("taskId", taskID), zap.Float64("progress", f))
			obs.OnUploadProgress(taskID, f)
		},
		func(complete bool, code int, message string) {
			out := UploadOutcome{TaskID: taskID, Complete: complete, Message: message}
			if !complete {
				out.ErrorCode = &code
				e.logger.Error("uploading error", zap.String("taskId", taskID), zap.Int("code", code), zap.String("message", message))
			}
			obs.OnUploadResult(out)
		},
	)
	return t.run(ctx, func(ctx context.Context, l TransferListener) {
		e.remote.Upload(ctx, taskID, assetPath, l)
	}), nil
}
