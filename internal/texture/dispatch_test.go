package texture

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/types"
)

type uploadEvents struct {
	mu       sync.Mutex
	progress []float64
	results  []UploadOutcome
	// afterTerminal counts progress events seen after a result.
	afterTerminal int
}

func (u *uploadEvents) OnUploadProgress(_ string, f float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.results) > 0 {
		u.afterTerminal++
	}
	u.progress = append(u.progress, f)
}

func (u *uploadEvents) OnUploadResult(out UploadOutcome) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.results = append(u.results, out)
}

func (u *uploadEvents) snapshot() ([]float64, []UploadOutcome, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]float64(nil), u.progress...), append([]UploadOutcome(nil), u.results...), u.afterTerminal
}

func startedSession(t *testing.T, id string) *TaskSession {
	t.Helper()
	s := NewTaskSession()
	require.NoError(t, s.assignTaskID(id, time.Now()))
	require.NoError(t, s.Advance(StateInitiated))
	return s
}

func waitHandle(t *testing.T, h *Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestUploadProgressIsMonotonicAndPrecedesResult(t *testing.T) {
	remote := &fakeRemote{upload: func(_ context.Context, taskID, _ string, l TransferListener) {
		l.OnProgress(taskID, 0.2)
		l.OnProgress(taskID, 0.6)
		l.OnProgress(taskID, 0.4)
		l.OnProgress(taskID, math.NaN())
		l.OnProgress(taskID, 1.5)
		l.OnResult(taskID, true)
		l.OnError(taskID, types.CodeNetwork, "late")
		l.OnProgress(taskID, 1)
	}}
	e := NewEngine(remote, zap.NewNop())
	obs := &uploadEvents{}

	h, err := e.UploadAsync(context.Background(), startedSession(t, "T1"), writeAsset(t), obs)
	require.NoError(t, err)
	waitHandle(t, h)

	progress, results, after := obs.snapshot()
	assert.Equal(t, []float64{0.2, 0.6, 1}, progress)
	require.Len(t, results, 1)
	assert.True(t, results[0].Complete)
	assert.Nil(t, results[0].ErrorCode)
	assert.NoError(t, results[0].Err())
	assert.Zero(t, after)
}

func TestUploadErrorOutcome(t *testing.T) {
	remote := &fakeRemote{upload: func(_ context.Context, taskID, _ string, l TransferListener) {
		l.OnError(taskID, types.CodeQueue, "timeout")
		l.OnResult(taskID, true)
	}}
	e := NewEngine(remote, zap.NewNop())
	obs := &uploadEvents{}

	h, err := e.UploadAsync(context.Background(), startedSession(t, "T1"), writeAsset(t), obs)
	require.NoError(t, err)
	waitHandle(t, h)

	_, results, _ := obs.snapshot()
	require.Len(t, results, 1)
	require.NotNil(t, results[0].ErrorCode)
	assert.Equal(t, types.CodeQueue, *results[0].ErrorCode)

	var ue *UploadError
	require.ErrorAs(t, results[0].Err(), &ue)
	assert.Equal(t, types.CodeQueue, ue.Code)
	assert.Equal(t, "timeout", ue.Message)
}

func TestUploadIncompleteResultIsFailure(t *testing.T) {
	remote := &fakeRemote{upload: func(_ context.Context, taskID, _ string, l TransferListener) {
		l.OnResult(taskID, false)
	}}
	e := NewEngine(remote, zap.NewNop())
	obs := &uploadEvents{}

	h, err := e.UploadAsync(context.Background(), startedSession(t, "T1"), writeAsset(t), obs)
	require.NoError(t, err)
	waitHandle(t, h)

	_, results, _ := obs.snapshot()
	require.Len(t, results, 1)
	assert.False(t, results[0].Complete)
	assert.Equal(t, types.CodeInternal, *results[0].ErrorCode)
}

func TestUploadWithoutResultStillTerminates(t *testing.T) {
	remote := &fakeRemote{upload: func(_ context.Context, taskID, _ string, l TransferListener) {
		l.OnProgress(taskID, 0.5)
	}}
	e := NewEngine(remote, zap.NewNop())
	obs := &uploadEvents{}

	h, err := e.UploadAsync(context.Background(), startedSession(t, "T1"), writeAsset(t), obs)
	require.NoError(t, err)
	waitHandle(t, h)

	_, results, _ := obs.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, types.CodeInternal, *results[0].ErrorCode)
}

func TestUploadEmptyTaskIDNeverContactsTransport(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(remote, zap.NewNop())

	for _, s := range []*TaskSession{nil, NewTaskSession()} {
		h, err := e.UploadAsync(context.Background(), s, writeAsset(t), &uploadEvents{})
		assert.Nil(t, h)
		var ie *InitiationError
		require.ErrorAs(t, err, &ie)
	}
	_, upload, _, _ := remote.calls()
	assert.Zero(t, upload)
}

func TestUploadUnreadableAsset(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(remote, zap.NewNop())

	_, err := e.UploadAsync(context.Background(), startedSession(t, "T1"), t.TempDir(), &uploadEvents{})
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, types.CodeInvalidArgument, ue.Code)
	_, upload, _, _ := remote.calls()
	assert.Zero(t, upload)
}

func TestUploadCancellation(t *testing.T) {
	started := make(chan struct{})
	remote := &fakeRemote{upload: func(ctx context.Context, taskID, _ string, l TransferListener) {
		close(started)
		<-ctx.Done()
		l.OnProgress(taskID, 0.9)
		l.OnResult(taskID, true)
	}}
	e := NewEngine(remote, zap.NewNop())
	obs := &uploadEvents{}

	ctx, cancel := context.WithCancel(context.Background())
	h, err := e.UploadAsync(ctx, startedSession(t, "T1"), writeAsset(t), obs)
	require.NoError(t, err)
	<-started
	cancel()
	waitHandle(t, h)

	progress, results, _ := obs.snapshot()
	assert.Empty(t, progress)
	require.Len(t, results, 1)
	assert.Equal(t, types.CodeCancelled, *results[0].ErrorCode)
}

type downloadEvents struct {
	mu       sync.Mutex
	progress []float64
	results  []DownloadOutcome
}

func (d *downloadEvents) OnDownloadProgress(_ string, f float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = append(d.progress, f)
}

func (d *downloadEvents) OnDownloadResult(out DownloadOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, out)
}

func TestDownloadOutcome(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(remote, zap.NewNop())
	obs := &downloadEvents{}
	dest := t.TempDir()

	h, err := e.DownloadAsync(context.Background(), startedSession(t, "T1"), dest, obs)
	require.NoError(t, err)
	waitHandle(t, h)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []float64{0.25, 1}, obs.progress)
	require.Len(t, obs.results, 1)
	assert.Equal(t, DownloadOutcome{TaskID: "T1", Complete: true, Path: dest}, obs.results[0])
}

func TestDownloadRejectsMissingInputs(t *testing.T) {
	remote := &fakeRemote{}
	e := NewEngine(remote, zap.NewNop())

	_, err := e.DownloadAsync(context.Background(), NewTaskSession(), t.TempDir(), &downloadEvents{})
	var de *DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, types.CodeTaskNotFound, de.Code)

	_, err = e.DownloadAsync(context.Background(), startedSession(t, "T1"), " ", &downloadEvents{})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, types.CodeInvalidArgument, de.Code)

	_, _, _, download := remote.calls()
	assert.Zero(t, download)
}
