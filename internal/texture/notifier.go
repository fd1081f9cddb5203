package texture

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NotificationKind identifies the terminal outcome a notification reports.
type NotificationKind string

const (
	NotifyInitiationFailed  NotificationKind = "initiation_failed"
	NotifyUploadSucceeded   NotificationKind = "upload_succeeded"
	NotifyUploadFailed      NotificationKind = "upload_failed"
	NotifyReady             NotificationKind = "ready_to_download"
	NotifyNotReady          NotificationKind = "not_ready"
	NotifyProcessingFailed  NotificationKind = "processing_failed"
	NotifyQueryFailed       NotificationKind = "query_failed"
	NotifyDownloadSucceeded NotificationKind = "download_succeeded"
	NotifyDownloadFailed    NotificationKind = "download_failed"
)

// Notification is the one-shot user-facing message for a terminal outcome.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	TaskID  string           `json:"taskId,omitempty"`
	Code    int              `json:"code"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Notifier shows notifications to the user. Notify is called from the coordinator.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(n Notification) {
	fields := []zap.Field{zap.String("kind", string(n.Kind)), zap.String("taskId", n.TaskID), zap.Int("code", n.Code)}
	switch n.Kind {
	case NotifyInitiationFailed, NotifyUploadFailed, NotifyProcessingFailed, NotifyQueryFailed, NotifyDownloadFailed:
		l.Logger.Warn(n.Message, fields...)
	default:
		l.Logger.Info(n.Message, fields...)
	}
}

// DefaultRecorderLimit is the history size of a zero Recorder.
const DefaultRecorderLimit = 100

// Recorder keeps the most recent notifications and is safe for concurrent
// reads. Older entries are dropped once Limit is reached.
type Recorder struct {
	Limit int

	mu  sync.Mutex
	all []Notification
}

func NewRecorder(limit int) *Recorder {
	return &Recorder{Limit: limit}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultRecorderLimit
	}
	if len(r.all) >= limit {
		kept := r.all[len(r.all)-limit+1:]
		r.all = append(make([]Notification, 0, limit), kept...)
	}
	r.all = append(r.all, n)
}

// Latest returns the most recent notification.
func (r *Recorder) Latest() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// MultiNotifier fans a notification out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notification) {
	for _, x := range m {
		x.Notify(n)
	}
}

func notificationFor(kind NotificationKind, taskID string, code int) Notification {
	var msg string
	switch kind {
	case NotifyInitiationFailed:
		msg = fmt.Sprintf("Get taskId error: %d", code)
	case NotifyUploadSucceeded:
		msg = "Upload process successful"
	case NotifyUploadFailed:
		msg = fmt.Sprintf("Failure in upload process! Error code: %d", code)
	case NotifyReady:
		msg = "You can download the texture maps now"
	case NotifyNotReady:
		msg = "Material generation task is not complete yet!"
	case NotifyProcessingFailed:
		msg = "Material generation failed on the server"
	case NotifyQueryFailed:
		msg = fmt.Sprintf("Failure in material generation task. Error code: %d", code)
	case NotifyDownloadSucceeded:
		msg = fmt.Sprintf("Download success. Task Id: %s", taskID)
	case NotifyDownloadFailed:
		msg = fmt.Sprintf("Download fail! Error code: %d", code)
	}
	return Notification{Kind: kind, TaskID: taskID, Code: code, Message: msg, At: time.Now()}
}
