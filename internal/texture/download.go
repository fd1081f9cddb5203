package texture

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// DownloadAsync fetches the generated maps into destinationPath. The caller is
// responsible for having observed readiness first.
func (e *Engine) DownloadAsync(ctx context.Context, s *TaskSession, destinationPath string, obs DownloadObserver) (*Handle, error) {
	taskID := ""
	if s != nil {
		taskID = s.TaskID
	}
	if taskID == "" {
		return nil, &DownloadError{Code: types.CodeTaskNotFound, Message: "task id is empty"}
	}
	if strings.TrimSpace(destinationPath) == "" {
		return nil, &DownloadError{TaskID: taskID, Code: types.CodeInvalidArgument, Message: "destination path is empty"}
	}

	t := newTransfer(taskID,
		func(f float64) {
			e.logger.Debug("downloading", zap.String("taskId", taskID), zap.Float64("progress", f))
			obs.OnDownloadProgress(taskID, f)
		},
		func(complete bool, code int, message string) {
			out := DownloadOutcome{TaskID: taskID, Complete: complete, Message: message}
			if complete {
				out.Path = destinationPath
			} else {
				out.ErrorCode = &code
				e.logger.Error("download error", zap.String("taskId", taskID), zap.Int("code", code), zap.String("message", message))
			}
			obs.OnDownloadResult(out)
		},
	)
	return t.run(ctx, func(ctx context.Context, l TransferListener) {
		e.remote.Download(ctx, taskID, destinationPath, l)
	}), nil
}
