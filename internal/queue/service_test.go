package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/config"
	"github.com/mahirjain10/texture-workers/internal/aws"
	queueErrors "github.com/mahirjain10/texture-workers/internal/queue/errors"
	"github.com/mahirjain10/texture-workers/internal/queue/models"
	"github.com/mahirjain10/texture-workers/internal/types"
	"github.com/mahirjain10/texture-workers/internal/utils"
)

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
	putErr    error
}

func (m *memStore) DownloadObject(_ context.Context, key, filePath string, _ aws.ProgressFunc) (int64, error) {
	m.mu.Lock()
	m.downloads++
	b, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return 0, aws.ErrObjectNotFound
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return 0, err
	}
	return int64(len(b)), os.WriteFile(filePath, b, 0o644)
}

func (m *memStore) PutFile(_ context.Context, key, filePath, _ string, _ aws.ProgressFunc) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) PutJSON(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) DeleteS3Object(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return true, nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStore) status(t *testing.T, taskID string) types.StatusRecord {
	t.Helper()
	m.mu.Lock()
	b := m.objects[utils.StatusKey(taskID)]
	m.mu.Unlock()
	var r types.StatusRecord
	require.NoError(t, json.Unmarshal(b, &r))
	return r
}

type statusLog struct {
	mu     sync.Mutex
	phases []int
}

func (s *statusLog) PublishJSON(_ context.Context, exchange, key string, message any) error {
	if exchange != config.StatusExchange || key != config.StatusRoutingKey {
		return errors.New("unexpected route")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, message.(*types.StatusMessage).Data.Phase)
	return nil
}

type ack struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ack) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ack) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}
func (a *ack) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func photo(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(12, 12, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func delivery(t *testing.T, job types.TextureJob) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(types.JobMessage{Pattern: "texture_job", Data: job})
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func newTestService(t *testing.T, store *memStore, pub StatusPublisher) *RabbitMqService {
	t.Helper()
	cfg := &config.Config{WorkDir: t.TempDir(), TextureSize: 8, TextureMode: types.TextureModeAI}
	s := NewRabbitMqService(store, pub, cfg, zap.NewNop())
	s.retryDelay = time.Millisecond
	return s
}

func TestProcessMessage(t *testing.T) {
	rawKey := utils.RawKey("T1", "photo.png")
	store := &memStore{objects: map[string][]byte{rawKey: photo(t)}}
	pub := &statusLog{}
	s := newTestService(t, store, pub)

	err := s.ProcessMessage(context.Background(), delivery(t, types.TextureJob{TaskID: "T1", RawKey: rawKey, TextureMode: types.TextureModeManual}))
	require.NoError(t, err)

	r := store.status(t, "T1")
	assert.Equal(t, types.PhaseProcessingCompleted, r.Phase)
	assert.Equal(t, []string{"diffuse.png", "normal.png"}, r.Maps)
	assert.True(t, store.has(utils.ProcessedKey("T1", "diffuse.png")))
	assert.True(t, store.has(utils.ProcessedKey("T1", "normal.png")))
	assert.Equal(t, []int{types.PhaseProcessingStarted, types.PhaseProcessingCompleted}, pub.phases)

	require.Eventually(t, func() bool {
		_, err := os.Stat(utils.LocalTaskDir(s.config.WorkDir, "T1"))
		return !store.has(rawKey) && os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessMessageDownloadFailure(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	pub := &statusLog{}
	s := newTestService(t, store, pub)

	err := s.ProcessMessage(context.Background(), delivery(t, types.TextureJob{TaskID: "T1", RawKey: "tasks/T1/raw/gone.png"}))
	var procErr models.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.False(t, procErr.Requeue)
	assert.Equal(t, 3, store.downloads)

	r := store.status(t, "T1")
	assert.Equal(t, types.PhaseProcessingFailed, r.Phase)
	assert.Equal(t, queueErrors.ErrDownload, r.ErrorMsg)
	assert.Equal(t, []int{types.PhaseProcessingStarted, types.PhaseProcessingFailed}, pub.phases)
}

func TestProcessMessageGenerateFailure(t *testing.T) {
	rawKey := utils.RawKey("T1", "photo.png")
	store := &memStore{objects: map[string][]byte{rawKey: []byte("not an image")}}
	s := newTestService(t, store, nil)

	err := s.ProcessMessage(context.Background(), delivery(t, types.TextureJob{TaskID: "T1", RawKey: rawKey}))
	require.Error(t, err)
	r := store.status(t, "T1")
	assert.Equal(t, types.PhaseProcessingFailed, r.Phase)
	assert.Equal(t, queueErrors.ErrGenerate, r.ErrorMsg)
}

func TestProcessMessageUploadFailure(t *testing.T) {
	rawKey := utils.RawKey("T1", "photo.png")
	store := &memStore{objects: map[string][]byte{rawKey: photo(t)}, putErr: errors.New("bucket gone")}
	s := newTestService(t, store, nil)

	err := s.ProcessMessage(context.Background(), delivery(t, types.TextureJob{TaskID: "T1", RawKey: rawKey}))
	require.Error(t, err)
	r := store.status(t, "T1")
	assert.Equal(t, types.PhaseProcessingFailed, r.Phase)
	assert.Equal(t, queueErrors.ErrUpload, r.ErrorMsg)
}

func TestProcessMessageRejectsUnsafeTaskID(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	s := newTestService(t, store, nil)
	outside := filepath.Join(filepath.Dir(s.config.WorkDir), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	for _, id := range []string{"..", "../..", "a/../../b"} {
		err := s.ProcessMessage(context.Background(), delivery(t, types.TextureJob{TaskID: id, RawKey: "tasks/x/raw/p.png"}))
		var procErr models.ProcessingError
		require.ErrorAs(t, err, &procErr, id)
		assert.False(t, procErr.Requeue)
		assert.ErrorContains(t, err, queueErrors.ErrParse)
	}
	assert.Zero(t, store.downloads)
	assert.FileExists(t, outside)
}

func TestWithRetry(t *testing.T) {
	s := newTestService(t, &memStore{}, nil)

	calls := 0
	err := s.withRetry(context.Background(), "flaky", func() error {
		calls++
		if calls < 2 {
			return errors.New("try again")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	boom := errors.New("still down")
	err = s.withRetry(context.Background(), "down", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	s.retryDelay = time.Hour
	calls = 0
	err = s.withRetry(ctx, "cancelled", func() error {
		calls++
		cancel()
		return boom
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestHandleDelivery(t *testing.T) {
	rawKey := utils.RawKey("T1", "photo.png")
	store := &memStore{objects: map[string][]byte{rawKey: photo(t)}}
	s := newTestService(t, store, nil)

	a := &ack{}
	d := delivery(t, types.TextureJob{TaskID: "T1", RawKey: rawKey})
	d.Acknowledger = a
	s.handleDelivery(context.Background(), config.JobQueue, d)
	assert.True(t, a.acked)

	a = &ack{}
	bad := amqp.Delivery{Body: []byte("{"), Acknowledger: a}
	s.handleDelivery(context.Background(), config.JobQueue, bad)
	assert.True(t, a.nacked)
	assert.False(t, a.requeue)
}
