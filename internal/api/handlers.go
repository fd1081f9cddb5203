package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mahirjain10/texture-workers/internal/texture"
	"github.com/mahirjain10/texture-workers/internal/types"
)

// TextureClient is the part of texture.Client exposed over HTTP.
type TextureClient interface {
	Upload(ctx context.Context, assetPath string) error
	Query(ctx context.Context) (texture.StatusSnapshot, texture.Readiness, error)
	AwaitReady(ctx context.Context) (texture.StatusSnapshot, texture.Readiness, error)
	Download(ctx context.Context) error
	Cancel(ctx context.Context) error
	Status(ctx context.Context) (texture.Status, error)
	Reset(ctx context.Context) error
}

// Notifications gives read access to the notifications shown to the user.
type Notifications interface {
	Latest() (texture.Notification, bool)
	All() []texture.Notification
}

type APIHandler struct {
	Client        TextureClient
	Notifications Notifications
}

type UploadRequest struct {
	Path string `json:"path" binding:"required"`
}

type QueryResponse struct {
	Snapshot  texture.StatusSnapshot `json:"snapshot"`
	Readiness texture.Readiness      `json:"readiness"`
}

func RegisterHandlers(r *gin.Engine, client TextureClient, notifications Notifications) {
	h := &APIHandler{Client: client, Notifications: notifications}

	r.POST("/upload", h.upload)
	r.GET("/status", h.status)
	r.POST("/download", h.download)
	r.POST("/cancel", h.cancel)

	r.GET("/session", h.session)
	r.DELETE("/session", h.reset)

	r.GET("/notifications", h.notifications)
	r.GET("/notifications/latest", h.latestNotification)
}

func (h *APIHandler) upload(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.Client.Upload(c.Request.Context(), req.Path); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// status queries the task once, or polls until a terminal phase with ?wait=true.
func (h *APIHandler) status(c *gin.Context) {
	query := h.Client.Query
	if c.Query("wait") == "true" {
		query = h.Client.AwaitReady
	}
	snap, readiness, err := query(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, QueryResponse{Snapshot: snap, Readiness: readiness})
}

func (h *APIHandler) download(c *gin.Context) {
	if err := h.Client.Download(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *APIHandler) cancel(c *gin.Context) {
	if err := h.Client.Cancel(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) session(c *gin.Context) {
	st, err := h.Client.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *APIHandler) reset(c *gin.Context) {
	if err := h.Client.Reset(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.Notifications.All())
}

func (h *APIHandler) latestNotification(c *gin.Context) {
	n, ok := h.Notifications.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no notifications yet"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if code, ok := texture.ErrorCode(err); ok {
		body["code"] = code
	}
	c.JSON(statusFor(err), body)
}

func statusFor(err error) int {
	var (
		ie *texture.InitiationError
		ue *texture.UploadError
		qe *texture.QueryError
		de *texture.DownloadError
	)
	switch {
	case errors.Is(err, texture.ErrClientClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, texture.ErrPollDisabled):
		return http.StatusNotImplemented
	case errors.Is(err, texture.ErrPollExhausted),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, texture.ErrNoSession),
		errors.Is(err, texture.ErrSessionActive),
		errors.Is(err, texture.ErrSessionFailed),
		errors.Is(err, texture.ErrSessionReleased),
		errors.Is(err, texture.ErrUploadPending),
		errors.Is(err, texture.ErrDownloadNotPermitted):
		return http.StatusConflict
	case errors.As(err, &ue) && ue.Code == types.CodeInvalidArgument:
		return http.StatusBadRequest
	case errors.As(err, &ie), errors.As(err, &ue), errors.As(err, &qe), errors.As(err, &de):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
