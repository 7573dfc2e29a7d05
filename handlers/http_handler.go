package handlers

import (
	"errors"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/gin-gonic/gin"

	"github.com/scandesk/scandesk-services-sessions/internal/apperrors"
	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/models"
	"github.com/scandesk/scandesk-services-sessions/services"
)

type HTTPHandler struct {
	sessionService   services.SessionService
	lifecycleService services.LifecycleService

	logger logging.Logger
}

func NewHTTPHandler(sessSvc services.SessionService, lifecycleSvc services.LifecycleService, l logging.Logger) *HTTPHandler {
	return &HTTPHandler{
		sessionService:   sessSvc,
		lifecycleService: lifecycleSvc,
		logger:           l,
	}
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.POST("/create-session", h.CreateSession)
	r.GET("/session-status", h.SessionStatus)
	r.POST("/update-session", h.UpdateSession)
	r.POST("/cleanup-session-files", h.CleanupSessionFiles)
	r.POST("/cleanup-expired", h.CleanupExpired)
}

type createSessionRequest struct {
	UserID string `json:"userId"`
}

func (h *HTTPHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "userId is required"})
		return
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), req.UserID)
	if err != nil {
		h.logger.Error("create session failed", "user_id", req.UserID, "error", err)
		c.JSON(errorStatusCode(err), gin.H{"success": false, "error": "could not create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"sessionId": session.SessionID,
		"expiresAt": session.ExpiresAt,
	})
}

func (h *HTTPHandler) SessionStatus(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "sessionId is required"})
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(errorStatusCode(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.SessionID,
		"status":    session.Status,
		"expiresAt": session.ExpiresAt,
	})
}

type updateSessionRequest struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	FilePath  string `json:"filePath"`
}

func (h *HTTPHandler) UpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if req.SessionID == "" || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "sessionId and status are required"})
		return
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	session, err := h.lifecycleService.Transition(c.Request.Context(), req.SessionID, status, req.FilePath)
	if err != nil {
		c.JSON(errorStatusCode(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": session.SessionID,
		"status":    session.Status,
	})
}

type cleanupSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (h *HTTPHandler) CleanupSessionFiles(c *gin.Context) {
	var req cleanupSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "session_id is required"})
		return
	}

	summary, err := h.lifecycleService.Cleanup(c.Request.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("cleanup failed", "session_id", req.SessionID, "error", err)
		status := errorStatusCode(err)
		if isAccessDenied(err) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"success": false, "error": "cleanup failed"})
		return
	}

	var failureReasons []string
	for _, f := range summary.Failures {
		failureReasons = append(failureReasons, f.Key+": "+f.Reason)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"session_id":    summary.SessionID,
		"files_deleted": summary.FilesDeleted,
		"errors":        failureReasons,
	})
}

func (h *HTTPHandler) CleanupExpired(c *gin.Context) {
	summary, err := h.lifecycleService.SweepExpired(c.Request.Context())
	if err != nil {
		h.logger.Error("expired session sweep failed", "error", err)
		c.JSON(errorStatusCode(err), gin.H{"success": false, "error": "sweep failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": summary,
	})
}

func errorStatusCode(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSessionExpired):
		return http.StatusGone
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrMissingFilePath), errors.Is(err, apperrors.ErrUnexpectedFilePath):
		return http.StatusBadRequest
	case apperrors.IsInvalidTransition(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrStoreUnavailable), errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied"
}
