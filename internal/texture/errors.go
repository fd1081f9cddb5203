package texture

import (
	"errors"
	"fmt"

	"github.com/mahirjain10/texture-workers/internal/types"
)

var (
	ErrTaskIDImmutable      = errors.New("task id already assigned")
	ErrStateRegression      = errors.New("session state cannot move backwards")
	ErrSessionReleased      = errors.New("session released")
	ErrSessionFailed        = errors.New("session failed")
	ErrSessionActive        = errors.New("a session is already active")
	ErrNoSession            = errors.New("no session started")
	ErrUploadPending        = errors.New("upload has not completed")
	ErrDownloadNotPermitted = errors.New("download not permitted before the task completes")
	ErrPollExhausted        = errors.New("task did not complete within the poll policy")
	ErrClientClosed         = errors.New("client closed")
)

// InitiationError reports that the remote service refused to create a task.
type InitiationError struct {
	Code    int
	Message string
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("get taskId error: %d (%s)", e.Code, describe(e.Code, e.Message))
}

// UploadError reports a failed photo transfer.
type UploadError struct {
	TaskID  string
	Code    int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of task %s failed: code %d (%s)", e.TaskID, e.Code, describe(e.Code, e.Message))
}

// QueryError reports that the task status could not be read. It is never
// produced for a task whose remote job failed; that is PhaseProcessingFailed.
type QueryError struct {
	TaskID  string
	Code    int
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query of task %s failed: code %d (%s)", e.TaskID, e.Code, describe(e.Code, e.Message))
}

// DownloadError reports a failed artifact transfer.
type DownloadError struct {
	TaskID  string
	Code    int
	Message string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of task %s failed: code %d (%s)", e.TaskID, e.Code, describe(e.Code, e.Message))
}

// ErrorCode extracts the provider code from any of the error types above.
func ErrorCode(err error) (int, bool) {
	var (
		ie *InitiationError
		ue *UploadError
		qe *QueryError
		de *DownloadError
	)
	switch {
	case errors.As(err, &ie):
		return ie.Code, true
	case errors.As(err, &ue):
		return ue.Code, true
	case errors.As(err, &qe):
		return qe.Code, true
	case errors.As(err, &de):
		return de.Code, true
	}
	return 0, false
}

func describe(code int, message string) string {
	if message != "" {
		return message
	}
	return types.CodeText(code)
}
