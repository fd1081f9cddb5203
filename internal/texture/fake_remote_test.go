package texture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRemote is a scriptable RemoteJobService. Unset hooks default to a
// successful run.
type fakeRemote struct {
	mu sync.Mutex

	initiate func(ctx context.Context, cfg Configuration) (InitResult, error)
	upload   func(ctx context.Context, taskID, assetPath string, l TransferListener)
	download func(ctx context.Context, taskID, dest string, l TransferListener)

	// queries are returned in order; the last one repeats.
	queries  []QueryResult
	queryErr error

	initiateCalls int
	uploadCalls   int
	queryCalls    int
	downloadCalls int
	released      []string
	lastConfig    Configuration
	lastDest      string
}

func (f *fakeRemote) Initiate(ctx context.Context, cfg Configuration) (InitResult, error) {
	f.mu.Lock()
	f.initiateCalls++
	f.lastConfig = cfg
	hook := f.initiate
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, cfg)
	}
	return InitResult{TaskID: "T1", ResultMessage: "ok"}, nil
}

func (f *fakeRemote) Upload(ctx context.Context, taskID, assetPath string, l TransferListener) {
	f.mu.Lock()
	f.uploadCalls++
	hook := f.upload
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, taskID, assetPath, l)
		return
	}
	l.OnProgress(taskID, 0.5)
	l.OnProgress(taskID, 1)
	l.OnResult(taskID, true)
}

func (f *fakeRemote) QueryStatus(_ context.Context, _ string) (QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryErr != nil {
		return QueryResult{}, f.queryErr
	}
	if len(f.queries) == 0 {
		return QueryResult{PhaseCode: 1}, nil
	}
	q := f.queries[0]
	if len(f.queries) > 1 {
		f.queries = f.queries[1:]
	}
	return q, nil
}

func (f *fakeRemote) Download(ctx context.Context, taskID, dest string, l TransferListener) {
	f.mu.Lock()
	f.downloadCalls++
	f.lastDest = dest
	hook := f.download
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, taskID, dest, l)
		return
	}
	l.OnProgress(taskID, 0.25)
	l.OnProgress(taskID, 1)
	l.OnResult(taskID, true)
}

func (f *fakeRemote) Release(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, taskID)
	return nil
}

func (f *fakeRemote) calls() (initiate, upload, query, download int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiateCalls, f.uploadCalls, f.queryCalls, f.downloadCalls
}

func (f *fakeRemote) releasedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

func writeAsset(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(p, []byte("not really a jpeg"), 0o644))
	return p
}

func waitForKind(t *testing.T, rec *Recorder, kind NotificationKind) Notification {
	t.Helper()
	var found Notification
	require.Eventually(t, func() bool {
		for _, n := range rec.All() {
			if n.Kind == kind {
				found = n
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s notification", kind)
	return found
}

func kinds(rec *Recorder) []NotificationKind {
	var out []NotificationKind
	for _, n := range rec.All() {
		out = append(out, n.Kind)
	}
	return out
}
