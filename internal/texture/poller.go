package texture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// Query reads the current phase of the task. It blocks on the network and
// must not run on the coordinator.
func (e *Engine) Query(ctx context.Context, s *TaskSession) (StatusSnapshot, error) {
	if s == nil || s.TaskID == "" {
		return StatusSnapshot{}, &QueryError{Code: types.CodeTaskNotFound, Message: "task id is empty"}
	}
	taskID := s.TaskID

	res, err := e.remote.QueryStatus(ctx, taskID)
	if err != nil {
		code := types.CodeNetwork
		if errors.Is(err, context.Canceled) {
			code = types.CodeCancelled
		}
		return StatusSnapshot{}, &QueryError{TaskID: taskID, Code: code, Message: err.Error()}
	}
	if res.ResultCode != types.CodeOK {
		return StatusSnapshot{}, &QueryError{TaskID: taskID, Code: res.ResultCode}
	}
	phase, ok := PhaseFromCode(res.PhaseCode)
	if !ok {
		return StatusSnapshot{}, &QueryError{TaskID: taskID, Code: types.CodeInternal, Message: fmt.Sprintf("unknown phase code %d", res.PhaseCode)}
	}

	e.logger.Info("material generation query result", zap.String("taskId", taskID), zap.Int("status", res.PhaseCode), zap.Stringer("phase", phase))
	return StatusSnapshot{TaskID: taskID, RawCode: res.PhaseCode, Phase: phase, At: e.now()}, nil
}

// PollPolicy bounds automatic polling. Zero MaxTries and MaxElapsed mean no
// bound from that dimension; the backoff library default still caps elapsed time.
type PollPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxTries        uint
}

var errNotReady = errors.New("task not ready")

// PollUntilReady queries with exponential backoff until the phase is terminal.
// A QueryError stops polling at once. ProcessingFailed is returned as a
// snapshot, not as an error.
func (e *Engine) PollUntilReady(ctx context.Context, s *TaskSession, p PollPolicy) (StatusSnapshot, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.logger.Debug("task not complete yet", zap.Duration("next", next))
		}),
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}

	var last StatusSnapshot
	_, err := backoff.Retry(ctx, func() (StatusSnapshot, error) {
		snap, err := e.Query(ctx, s)
		if err != nil {
			return snap, backoff.Permanent(err)
		}
		last = snap
		if Decide(snap) == NotReady {
			return snap, errNotReady
		}
		return snap, nil
	}, opts...)

	var qe *QueryError
	switch {
	case err == nil:
		return last, nil
	case errors.As(err, &qe):
		return last, qe
	case errors.Is(err, errNotReady):
		return last, fmt.Errorf("%w: last phase %s", ErrPollExhausted, last.Phase)
	}
	return last, err
}
