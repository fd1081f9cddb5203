package texture

import "context"

// Configuration is the fixed set of processing options sent on initiation.
type Configuration struct {
	// TextureMode selects the backend working mode: "ai" or "manual".
	TextureMode string
}

// InitResult is the remote answer to a session initiation.
type InitResult struct {
	TaskID        string
	ResultCode    int
	ResultMessage string
}

// QueryResult is the raw remote status of a task. PhaseCode is only
// meaningful when ResultCode is zero.
type QueryResult struct {
	ResultCode int
	PhaseCode  int
}

// TransferListener receives the events of one upload or download. OnResult and
// OnError are terminal.
type TransferListener interface {
	OnProgress(taskID string, fraction float64)
	OnResult(taskID string, complete bool)
	OnError(taskID string, code int, message string)
}

// RemoteJobService is the asynchronous job API the client is written against.
// Upload and Download block until the transfer ends and report through the
// listener from the calling goroutine.
type RemoteJobService interface {
	Initiate(ctx context.Context, cfg Configuration) (InitResult, error)
	Upload(ctx context.Context, taskID string, assetPath string, l TransferListener)
	QueryStatus(ctx context.Context, taskID string) (QueryResult, error)
	Download(ctx context.Context, taskID string, destinationPath string, l TransferListener)
	Release(ctx context.Context, taskID string) error
}
