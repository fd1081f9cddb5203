package types

import "time"

// Phase codes written to a task's status record.
const (
	PhaseInitiated           = 0
	PhaseUploadCompleted     = 1
	PhaseProcessingStarted   = 2
	PhaseProcessingCompleted = 3
	PhaseProcessingFailed    = 4
)

// StatusRecord is the point-in-time phase of a task as stored next to its
// assets. TextureMode is only set until the job is queued.
type StatusRecord struct {
	TaskID      string    `json:"taskId"`
	Phase       int       `json:"phase"`
	TextureMode string    `json:"textureMode,omitempty"`
	ErrorMsg    string    `json:"errorMsg,omitempty"`
	Maps        []string  `json:"maps,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StatusMessage represents the full message envelope published on the status exchange
type StatusMessage struct {
	Pattern string       `json:"pattern"`
	Data    StatusRecord `json:"data"`
}
