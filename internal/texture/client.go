package texture

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

var ErrPollDisabled = errors.New("automatic polling is disabled")

// Options configures a Client.
type Options struct {
	Config Configuration
	// DownloadDir receives one sub-directory per task.
	DownloadDir string
	// Poll enables AwaitReady when non-nil.
	Poll     *PollPolicy
	Notifier Notifier
	Logger   *zap.Logger
}

// Status is a copy of the client's user-facing state.
type Status struct {
	Session          *TaskSession    `json:"session,omitempty"`
	LastSnapshot     *StatusSnapshot `json:"lastSnapshot,omitempty"`
	DownloadEnabled  bool            `json:"downloadEnabled"`
	UploadProgress   float64         `json:"uploadProgress"`
	DownloadProgress float64         `json:"downloadProgress"`
	Closed           bool            `json:"closed"`
}

// Client runs one workflow at a time: Upload, any number of Query calls,
// Download once the task is ready, and Close (or Reset) at the end. The
// task session is released exactly once per workflow.
type Client struct {
	engine *Engine
	coord  *Coordinator
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Fields below are owned by the coordinator goroutine.
	gen              uint64
	session          *TaskSession
	initiating       bool
	initDone         chan struct{}
	ending           bool
	closed           bool
	snapshot         *StatusSnapshot
	downloadEnabled  bool
	uploadProgress   float64
	downloadProgress float64
	cancelOp         context.CancelFunc
}

func NewClient(remote RemoteJobService, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		engine: NewEngine(remote, opts.Logger),
		coord:  NewCoordinator(64),
		opts:   opts,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go c.coord.Run(ctx)
	return c
}

func (c *Client) notify(kind NotificationKind, taskID string, code int) {
	c.opts.Notifier.Notify(notificationFor(kind, taskID, code))
}

func (c *Client) guard() error {
	switch {
	case c.closed:
		return ErrClientClosed
	case c.ending:
		return ErrSessionActive
	}
	return nil
}

// Upload initiates a task and starts uploading the photo at assetPath. It
// returns as soon as the work is scheduled; the outcome arrives as a notification.
// An unreadable photo is refused before any task is initiated.
func (c *Client) Upload(ctx context.Context, assetPath string) error {
	if rerr := utils.CheckReadable(assetPath); rerr != nil {
		return &UploadError{Code: types.CodeInvalidArgument, Message: rerr.Error()}
	}
	var err error
	var gen uint64
	var done chan struct{}
	if derr := c.coord.Do(ctx, func() {
		if err = c.guard(); err != nil {
			return
		}
		switch {
		case c.initiating:
			err = ErrSessionActive
		case c.session != nil && c.session.State == StateFailed:
			err = ErrSessionFailed
		case c.session != nil && c.session.TaskID != "":
			err = ErrSessionActive
		default:
			c.initiating = true
			c.initDone = make(chan struct{})
			gen, done = c.gen, c.initDone
		}
	}); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	go func() {
		s, err := c.engine.Begin(c.ctx, c.opts.Config)
		c.coord.Post(func() {
			defer close(done)
			c.initiating = false
			if gen != c.gen {
				return
			}
			if err != nil {
				c.session = NewTaskSession()
				code, _ := ErrorCode(err)
				c.notify(NotifyInitiationFailed, "", code)
				return
			}
			c.session = s
			if c.ending || c.closed {
				return
			}
			c.startUpload(gen, s, assetPath)
		})
	}()
	return nil
}

// startUpload runs on the coordinator.
func (c *Client) startUpload(gen uint64, s *TaskSession, assetPath string) {
	if err := s.Advance(StateUploading); err != nil {
		c.logger.Error("cannot start upload", zap.Error(err))
		return
	}
	opCtx, cancel := context.WithCancel(c.ctx)
	c.cancelOp = cancel
	c.uploadProgress = 0

	obs := &uploadObserver{c: c, gen: gen, s: s, cancel: cancel}
	if _, err := c.engine.UploadAsync(opCtx, s, assetPath, obs); err != nil {
		cancel()
		_ = s.Advance(StateFailed)
		code, _ := ErrorCode(err)
		c.notify(NotifyUploadFailed, s.TaskID, code)
	}
}

type uploadObserver struct {
	c      *Client
	gen    uint64
	s      *TaskSession
	cancel context.CancelFunc
}

func (o *uploadObserver) OnUploadProgress(_ string, fraction float64) {
	o.c.coord.Post(func() {
		if o.gen == o.c.gen {
			o.c.uploadProgress = fraction
		}
	})
}

func (o *uploadObserver) OnUploadResult(out UploadOutcome) {
	o.c.coord.Post(func() {
		o.cancel()
		if o.gen != o.c.gen {
			return
		}
		if out.Complete {
			if err := o.s.Advance(StateUploaded); err != nil {
				o.c.logger.Warn("upload result ignored", zap.String("taskId", out.TaskID), zap.Error(err))
				return
			}
			o.c.uploadProgress = 1
			o.c.notify(NotifyUploadSucceeded, out.TaskID, types.CodeOK)
			return
		}
		_ = o.s.Advance(StateFailed)
		code, _ := ErrorCode(out.Err())
		o.c.notify(NotifyUploadFailed, out.TaskID, code)
	})
}

// beginQuery checks the ordering rules and returns a copy of the session to query.
func (c *Client) beginQuery(ctx context.Context) (TaskSession, uint64, error) {
	var (
		snap TaskSession
		gen  uint64
		err  error
	)
	if derr := c.coord.Do(ctx, func() {
		if err = c.guard(); err != nil {
			return
		}
		switch {
		case c.session == nil || c.session.TaskID == "":
			err = ErrNoSession
		case c.session.State == StateFailed:
			err = ErrSessionFailed
		case c.session.State < StateUploaded:
			err = ErrUploadPending
		default:
			if c.session.State == StateUploaded {
				_ = c.session.Advance(StatePolling)
			}
			snap, gen = c.session.Snapshot(), c.gen
		}
	}); derr != nil {
		return snap, 0, derr
	}
	return snap, gen, err
}

// applySnapshot runs on the coordinator and produces the single notification
// for a query.
func (c *Client) applySnapshot(gen uint64, snap StatusSnapshot, qerr error) Readiness {
	if gen != c.gen {
		return NotReady
	}
	if qerr != nil {
		code, _ := ErrorCode(qerr)
		c.notify(NotifyQueryFailed, c.session.TaskID, code)
		return NotReady
	}
	c.snapshot = &snap
	r := Decide(snap)
	switch r {
	case Ready:
		if c.session.State == StatePolling {
			_ = c.session.Advance(StateReadyToDownload)
			c.downloadEnabled = true
		}
		c.notify(NotifyReady, snap.TaskID, types.CodeOK)
	case ProcessingFailed:
		if c.session.State == StatePolling {
			_ = c.session.Advance(StateFailed)
		}
		c.downloadEnabled = false
		c.notify(NotifyProcessingFailed, snap.TaskID, types.CodeProcessing)
	default:
		c.notify(NotifyNotReady, snap.TaskID, types.CodeOK)
	}
	return r
}

// Query reads the task phase once. It blocks on the network in the calling
// goroutine; only the result is applied on the coordinator.
func (c *Client) Query(ctx context.Context) (StatusSnapshot, Readiness, error) {
	s, gen, err := c.beginQuery(ctx)
	if err != nil {
		return StatusSnapshot{}, NotReady, err
	}
	snap, qerr := c.engine.Query(ctx, &s)

	var r Readiness
	if derr := c.coord.Do(ctx, func() { r = c.applySnapshot(gen, snap, qerr) }); derr != nil {
		return snap, NotReady, derr
	}
	return snap, r, qerr
}

// AwaitReady polls with the configured backoff until the task completes,
// fails, or the policy gives up.
func (c *Client) AwaitReady(ctx context.Context) (StatusSnapshot, Readiness, error) {
	if c.opts.Poll == nil {
		return StatusSnapshot{}, NotReady, ErrPollDisabled
	}
	s, gen, err := c.beginQuery(ctx)
	if err != nil {
		return StatusSnapshot{}, NotReady, err
	}
	snap, perr := c.engine.PollUntilReady(ctx, &s, *c.opts.Poll)

	var qerr error
	var qe *QueryError
	switch {
	case errors.As(perr, &qe):
		qerr = perr
	case perr != nil && snap.TaskID == "":
		// stopped before any successful query
		qerr = &QueryError{TaskID: s.TaskID, Code: types.CodeCancelled, Message: perr.Error()}
	}
	var r Readiness
	if derr := c.coord.Do(ctx, func() { r = c.applySnapshot(gen, snap, qerr) }); derr != nil {
		return snap, NotReady, derr
	}
	return snap, r, perr
}

// Download fetches the generated maps. It is refused until a query has
// reported the task as complete.
func (c *Client) Download(ctx context.Context) error {
	var err error
	if derr := c.coord.Do(ctx, func() {
		if err = c.guard(); err != nil {
			return
		}
		if !c.downloadEnabled || c.session == nil || c.session.State != StateReadyToDownload {
			err = ErrDownloadNotPermitted
			return
		}
		c.startDownload(c.gen, c.session)
	}); derr != nil {
		return derr
	}
	return err
}

// startDownload runs on the coordinator.
func (c *Client) startDownload(gen uint64, s *TaskSession) {
	_ = s.Advance(StateDownloading)
	c.downloadEnabled = false
	c.downloadProgress = 0

	opCtx, cancel := context.WithCancel(c.ctx)
	c.cancelOp = cancel
	dest := filepath.Join(c.opts.DownloadDir, s.TaskID)

	obs := &downloadObserver{c: c, gen: gen, s: s, cancel: cancel}
	if _, err := c.engine.DownloadAsync(opCtx, s, dest, obs); err != nil {
		cancel()
		_ = s.Advance(StateFailed)
		code, _ := ErrorCode(err)
		c.notify(NotifyDownloadFailed, s.TaskID, code)
	}
}

type downloadObserver struct {
	c      *Client
	gen    uint64
	s      *TaskSession
	cancel context.CancelFunc
}

func (o *downloadObserver) OnDownloadProgress(_ string, fraction float64) {
	o.c.coord.Post(func() {
		if o.gen == o.c.gen {
			o.c.downloadProgress = fraction
		}
	})
}

func (o *downloadObserver) OnDownloadResult(out DownloadOutcome) {
	o.c.coord.Post(func() {
		o.cancel()
		if o.gen != o.c.gen {
			return
		}
		if out.Complete {
			if err := o.s.Advance(StateDownloaded); err != nil {
				o.c.logger.Warn("download result ignored", zap.String("taskId", out.TaskID), zap.Error(err))
				return
			}
			o.c.downloadProgress = 1
			o.c.notify(NotifyDownloadSucceeded, out.TaskID, types.CodeOK)
			return
		}
		_ = o.s.Advance(StateFailed)
		code, _ := ErrorCode(out.Err())
		o.c.notify(NotifyDownloadFailed, out.TaskID, code)
	})
}

// Cancel aborts the upload or download in flight, if any. The transfer ends
// with a CodeCancelled failure.
func (c *Client) Cancel(ctx context.Context) error {
	return c.coord.Do(ctx, func() {
		if c.cancelOp != nil {
			c.cancelOp()
		}
	})
}

// Status returns a copy of the user-facing state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.coord.Do(ctx, func() {
		if c.session != nil {
			s := c.session.Snapshot()
			st.Session = &s
		}
		if c.snapshot != nil {
			snap := *c.snapshot
			st.LastSnapshot = &snap
		}
		st.DownloadEnabled = c.downloadEnabled
		st.UploadProgress = c.uploadProgress
		st.DownloadProgress = c.downloadProgress
		st.Closed = c.closed
	})
	return st, err
}

// Reset cancels any transfer in flight, releases the current workflow's task
// and starts a fresh workflow.
func (c *Client) Reset(ctx context.Context) error {
	return c.endWorkflow(ctx, false)
}

// Close releases the task and stops the client. Calling it again is a no-op.
// Transfers still in flight are cancelled, not awaited.
func (c *Client) Close(ctx context.Context) error {
	return c.endWorkflow(ctx, true)
}

func (c *Client) endWorkflow(ctx context.Context, closing bool) error {
	var (
		skip bool
		err  error
		wait chan struct{}
	)
	if derr := c.coord.Do(ctx, func() {
		switch {
		case c.closed && closing:
			skip = true
		case c.closed:
			err = ErrClientClosed
		case c.ending:
			err = ErrSessionActive
		default:
			c.ending = true
			c.closed = closing
			if c.initiating {
				wait = c.initDone
			}
		}
	}); derr != nil {
		if closing && errors.Is(derr, ErrClientClosed) {
			return nil
		}
		return derr
	}
	if skip || err != nil {
		return err
	}

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			// The workflow is already committed to ending; finish it once
			// initiation settles so the task is still released.
			go func() {
				<-wait
				_ = c.finishWorkflow(context.WithoutCancel(ctx), closing)
			}()
			return ctx.Err()
		}
	}
	return c.finishWorkflow(context.WithoutCancel(ctx), closing)
}

// finishWorkflow releases the session and clears the workflow state. ctx is
// expected to be detached from the caller's cancellation.
func (c *Client) finishWorkflow(ctx context.Context, closing bool) error {
	var s *TaskSession
	if err := c.coord.Do(ctx, func() {
		if c.cancelOp != nil {
			c.cancelOp()
		}
		if c.session != nil {
			cp := c.session.Snapshot()
			s = &cp
		}
	}); err != nil {
		return err
	}

	c.engine.Release(ctx, s)

	err := c.coord.Do(ctx, func() {
		if c.session != nil {
			_ = c.session.Advance(StateReleased)
		}
		if closing {
			return
		}
		c.gen++
		c.session = nil
		c.snapshot = nil
		c.downloadEnabled = false
		c.uploadProgress = 0
		c.downloadProgress = 0
		c.cancelOp = nil
		c.ending = false
	})
	if closing {
		c.coord.Stop()
		<-c.coord.Finished()
		c.cancel()
	}
	return err
}
