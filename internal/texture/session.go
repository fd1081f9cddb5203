package texture

import (
	"fmt"
	"time"
)

// State is the client-side lifecycle stage of a TaskSession.
type State int

const (
	StateUninitiated State = iota
	StateInitiated
	StateUploading
	StateUploaded
	StatePolling
	StateReadyToDownload
	StateDownloading
	StateDownloaded
	StateFailed
	StateReleased
)

var stateNames = [...]string{
	StateUninitiated:     "uninitiated",
	StateInitiated:       "initiated",
	StateUploading:       "uploading",
	StateUploaded:        "uploaded",
	StatePolling:         "polling",
	StateReadyToDownload: "ready_to_download",
	StateDownloading:     "downloading",
	StateDownloaded:      "downloaded",
	StateFailed:          "failed",
	StateReleased:        "released",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// canFail lists the stages with a terminal error path into StateFailed.
func (s State) canFail() bool {
	switch s {
	case StateInitiated, StateUploading, StatePolling, StateDownloading:
		return true
	}
	return false
}

// TaskSession is one client-side attempt to process one photo. It is owned by
// the Coordinator; nothing else mutates it.
type TaskSession struct {
	TaskID    string    `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
	State     State     `json:"state"`
}

func NewTaskSession() *TaskSession {
	return &TaskSession{State: StateUninitiated}
}

func (s *TaskSession) assignTaskID(id string, at time.Time) error {
	if s.TaskID != "" {
		return ErrTaskIDImmutable
	}
	s.TaskID = id
	s.CreatedAt = at
	return nil
}

// Advance moves the session to next. Stages only move forward, repeated
// polling is allowed, Failed is absorbing and Released is reachable from
// anywhere.
func (s *TaskSession) Advance(next State) error {
	cur := s.State
	switch {
	case cur == StateReleased:
		return ErrSessionReleased
	case next == StateReleased:
	case cur == StateFailed:
		return ErrSessionFailed
	case next == StateFailed:
		if !cur.canFail() {
			return fmt.Errorf("%w: cannot fail from %s", ErrStateRegression, cur)
		}
	case next == StatePolling && cur == StatePolling:
	case next <= cur:
		return fmt.Errorf("%w: %s -> %s", ErrStateRegression, cur, next)
	}
	s.State = next
	return nil
}

// Snapshot returns a copy safe to hand to other goroutines.
func (s *TaskSession) Snapshot() TaskSession {
	return *s
}
