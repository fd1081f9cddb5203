package texture

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const releaseTimeout = 30 * time.Second

// Release frees the remote resources of the task and moves the session to
// StateReleased. It is best effort: failures are logged, never returned. A
// session without a task id or one already released is not sent to the remote.
func (e *Engine) Release(ctx context.Context, s *TaskSession) {
	if s == nil {
		return
	}
	if s.State == StateReleased {
		e.logger.Debug("release skipped, already released", zap.String("taskId", s.TaskID))
		return
	}
	defer func() { _ = s.Advance(StateReleased) }()

	if s.TaskID == "" {
		e.logger.Debug("release skipped, no task id")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := e.remote.Release(ctx, s.TaskID); err != nil {
		e.logger.Warn("release failed", zap.String("taskId", s.TaskID), zap.Error(err))
		return
	}
	e.logger.Info("task released", zap.String("taskId", s.TaskID))
}
