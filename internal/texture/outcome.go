package texture

import (
	"time"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// Phase is the remote job's coarse lifecycle stage.
type Phase int

const (
	PhaseInitiated           Phase = types.PhaseInitiated
	PhaseUploadCompleted     Phase = types.PhaseUploadCompleted
	PhaseProcessingStarted   Phase = types.PhaseProcessingStarted
	PhaseProcessingCompleted Phase = types.PhaseProcessingCompleted
	PhaseProcessingFailed    Phase = types.PhaseProcessingFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitiated:
		return "initiated"
	case PhaseUploadCompleted:
		return "upload_completed"
	case PhaseProcessingStarted:
		return "processing_started"
	case PhaseProcessingCompleted:
		return "processing_completed"
	case PhaseProcessingFailed:
		return "processing_failed"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PhaseFromCode maps a remote status code onto a Phase.
func PhaseFromCode(code int) (Phase, bool) {
	if code < types.PhaseInitiated || code > types.PhaseProcessingFailed {
		return 0, false
	}
	return Phase(code), true
}

// StatusSnapshot is a point-in-time read of a task's phase.
type StatusSnapshot struct {
	TaskID  string    `json:"taskId"`
	RawCode int       `json:"rawCode"`
	Phase   Phase     `json:"phase"`
	At      time.Time `json:"at"`
}

// Readiness is the caller's decision derived from a snapshot.
type Readiness int

const (
	NotReady Readiness = iota
	Ready
	ProcessingFailed
)

func (r Readiness) String() string {
	switch r {
	case Ready:
		return "ready"
	case ProcessingFailed:
		return "processing_failed"
	}
	return "not_ready"
}

func (r Readiness) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decide classifies a successful query. Only ProcessingCompleted unlocks the download.
func Decide(s StatusSnapshot) Readiness {
	switch s.Phase {
	case PhaseProcessingCompleted:
		return Ready
	case PhaseProcessingFailed:
		return ProcessingFailed
	}
	return NotReady
}

// UploadOutcome is delivered exactly once per upload attempt.
type UploadOutcome struct {
	TaskID    string `json:"taskId"`
	Complete  bool   `json:"complete"`
	ErrorCode *int   `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Err returns the failure carried by the outcome, if any.
func (o UploadOutcome) Err() error {
	if o.Complete {
		return nil
	}
	code := types.CodeInternal
	if o.ErrorCode != nil {
		code = *o.ErrorCode
	}
	return &UploadError{TaskID: o.TaskID, Code: code, Message: o.Message}
}

// DownloadOutcome is delivered exactly once per download attempt.
type DownloadOutcome struct {
	TaskID    string `json:"taskId"`
	Complete  bool   `json:"complete"`
	Path      string `json:"path,omitempty"`
	ErrorCode *int   `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (o DownloadOutcome) Err() error {
	if o.Complete {
		return nil
	}
	code := types.CodeInternal
	if o.ErrorCode != nil {
		code = *o.ErrorCode
	}
	return &DownloadError{TaskID: o.TaskID, Code: code, Message: o.Message}
}
