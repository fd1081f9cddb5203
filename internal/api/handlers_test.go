package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/texture-workers/internal/texture"
	"github.com/mahirjain10/texture-workers/internal/types"
)

type stubClient struct {
	uploadPath  string
	uploadErr   error
	queryErr    error
	awaited     bool
	downloadErr error
	resets      int
	cancels     int
}

func (s *stubClient) Upload(_ context.Context, p string) error {
	s.uploadPath = p
	return s.uploadErr
}

func (s *stubClient) Query(context.Context) (texture.StatusSnapshot, texture.Readiness, error) {
	if s.queryErr != nil {
		return texture.StatusSnapshot{}, texture.NotReady, s.queryErr
	}
	return texture.StatusSnapshot{TaskID: "T1", RawCode: 2, Phase: texture.PhaseProcessingStarted}, texture.NotReady, nil
}

func (s *stubClient) AwaitReady(context.Context) (texture.StatusSnapshot, texture.Readiness, error) {
	s.awaited = true
	return texture.StatusSnapshot{TaskID: "T1", RawCode: 3, Phase: texture.PhaseProcessingCompleted}, texture.Ready, nil
}

func (s *stubClient) Download(context.Context) error { return s.downloadErr }

func (s *stubClient) Cancel(context.Context) error {
	s.cancels++
	return nil
}

func (s *stubClient) Status(context.Context) (texture.Status, error) {
	return texture.Status{Session: &texture.TaskSession{TaskID: "T1", State: texture.StatePolling}}, nil
}

func (s *stubClient) Reset(context.Context) error {
	s.resets++
	return nil
}

func newRouter(c TextureClient, n Notifications) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterHandlers(r, c, n)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestUpload(t *testing.T) {
	c := &stubClient{}
	r := newRouter(c, &texture.Recorder{})

	w := do(r, http.MethodPost, "/upload", `{"path":"/tmp/brick.jpg"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/tmp/brick.jpg", c.uploadPath)

	w = do(r, http.MethodPost, "/upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c.uploadErr = texture.ErrSessionActive
	w = do(r, http.MethodPost, "/upload", `{"path":"/tmp/brick.jpg"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStatus(t *testing.T) {
	c := &stubClient{}
	r := newRouter(c, &texture.Recorder{})

	w := do(r, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Snapshot struct {
			TaskID string `json:"taskId"`
			Phase  string `json:"phase"`
		} `json:"snapshot"`
		Readiness string `json:"readiness"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "T1", resp.Snapshot.TaskID)
	assert.Equal(t, "processing_started", resp.Snapshot.Phase)
	assert.Equal(t, "not_ready", resp.Readiness)
	assert.False(t, c.awaited)

	w = do(r, http.MethodGet, "/status?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, c.awaited)
	assert.Contains(t, w.Body.String(), `"readiness":"ready"`)
}

func TestStatusQueryError(t *testing.T) {
	c := &stubClient{queryErr: &texture.QueryError{TaskID: "T1", Code: types.CodeTaskNotFound}}
	r := newRouter(c, &texture.Recorder{})

	w := do(r, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, types.CodeTaskNotFound, body["code"])

	c.queryErr = texture.ErrUploadPending
	w = do(r, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownload(t *testing.T) {
	c := &stubClient{}
	r := newRouter(c, &texture.Recorder{})

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPost, "/download", "").Code)

	c.downloadErr = texture.ErrDownloadNotPermitted
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/download", "").Code)

	c.downloadErr = texture.ErrClientClosed
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/download", "").Code)
}

func TestSessionAndCancel(t *testing.T) {
	c := &stubClient{}
	r := newRouter(c, &texture.Recorder{})

	w := do(r, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"polling"`)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/session", "").Code)
	assert.Equal(t, 1, c.resets)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/cancel", "").Code)
	assert.Equal(t, 1, c.cancels)
}

func TestNotifications(t *testing.T) {
	rec := &texture.Recorder{}
	r := newRouter(&stubClient{}, rec)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/notifications/latest", "").Code)

	rec.Notify(texture.Notification{Kind: texture.NotifyUploadSucceeded, TaskID: "T1", Message: "Upload process successful"})
	rec.Notify(texture.Notification{Kind: texture.NotifyNotReady, TaskID: "T1", Message: "Material generation task is not complete yet!"})

	w := do(r, http.MethodGet, "/notifications/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	var n texture.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, texture.NotifyNotReady, n.Kind)

	w = do(r, http.MethodGet, "/notifications", "")
	var all []texture.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotImplemented, statusFor(texture.ErrPollDisabled))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(texture.ErrPollExhausted))
	assert.Equal(t, http.StatusBadGateway, statusFor(&texture.InitiationError{Code: 7}))
	assert.Equal(t, http.StatusBadRequest, statusFor(&texture.UploadError{Code: types.CodeInvalidArgument}))
	assert.Equal(t, http.StatusBadGateway, statusFor(&texture.UploadError{Code: types.CodeQueue}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
