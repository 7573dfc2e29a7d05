package services

import (
	"context"
	"errors"
	"time"

	"github.com/scandesk/scandesk-services-sessions/internal/apperrors"
	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/models"
	"github.com/scandesk/scandesk-services-sessions/store"
)

// LifecycleService owns every mutation of a scan session after creation:
// forward status transitions with sliding expiry, cascade cleanup of the
// session's storage objects, and the periodic sweep of expired sessions.
type LifecycleService interface {
	Transition(ctx context.Context, sessionID string, requested models.Status, filePath string) (*models.ScanSession, error)
	Cleanup(ctx context.Context, sessionID string) (*models.CleanupSummary, error)
	SweepExpired(ctx context.Context) (*models.SweepSummary, error)
}

type LifecycleServiceImpl struct {
	sessionStore store.SessionStore
	scanStorage  store.ScanStorage

	logger logging.Logger
	now    func() time.Time
}

func NewLifecycleServiceImpl(
	sessionStore store.SessionStore,
	scanStorage store.ScanStorage,
	l logging.Logger,
) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		sessionStore: sessionStore,
		scanStorage:  scanStorage,
		logger:       l,
		now:          time.Now,
	}
}

// Transition moves a session forward one edge in the lifecycle graph. The
// session is always re-read first; the write is conditional on the status
// observed here, so two racing callers cannot both win.
func (svc *LifecycleServiceImpl) Transition(ctx context.Context, sessionID string, requested models.Status, filePath string) (*models.ScanSession, error) {
	now := svc.now().UTC()

	session, err := svc.sessionStore.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Expired(now) {
		svc.logger.Info("transition rejected, session expired", "session_id", sessionID, "expires_at", session.ExpiresAt)
		return nil, apperrors.ErrSessionExpired
	}

	if !models.CanTransition(session.Status, requested) {
		return nil, &apperrors.InvalidTransitionError{
			From: session.Status.String(),
			To:   requested.String(),
		}
	}

	// filePath is set if and only if the session reaches uploaded
	if requested == models.StatusUploaded && filePath == "" {
		return nil, apperrors.ErrMissingFilePath
	}
	if requested != models.StatusUploaded && filePath != "" {
		return nil, apperrors.ErrUnexpectedFilePath
	}

	updated, err := svc.sessionStore.UpdateStatus(ctx, sessionID, session.Status, requested, filePath, models.NextExpiry(now))
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			svc.logger.Info("transition lost a concurrent race", "session_id", sessionID, "requested", requested)
		}
		return nil, err
	}

	svc.logger.Info("session transitioned", "session_id", sessionID, "from", session.Status, "to", updated.Status, "expires_at", updated.ExpiresAt)
	return updated, nil
}

// Cleanup deletes every storage object under the session's prefix and then
// the session record itself. A missing session is success: cleanup races
// the sweep job and user-triggered cleanup, and the second caller must not
// fail. The record is deleted even when some objects could not be: a few
// orphan files beat a session row that lives forever.
func (svc *LifecycleServiceImpl) Cleanup(ctx context.Context, sessionID string) (*models.CleanupSummary, error) {
	summary := &models.CleanupSummary{SessionID: sessionID}

	_, err := svc.sessionStore.Get(ctx, sessionID)
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		svc.logger.Info("session already cleaned", "session_id", sessionID)
		return summary, nil
	}
	if err != nil {
		return nil, err
	}

	keys, err := svc.scanStorage.ListSessionObjects(ctx, sessionID)
	if err != nil {
		svc.logger.Error("failed to list session objects, record will still be deleted", "session_id", sessionID, "error", err)
		summary.Failures = append(summary.Failures, models.DeletionFailure{
			Key:    sessionID + "/",
			Reason: err.Error(),
		})
	}

	if len(keys) > 0 {
		result, err := svc.scanStorage.DeleteObjects(ctx, keys)
		if err != nil {
			return summary, err
		}
		summary.FilesDeleted = result.Deleted
		summary.Failures = append(summary.Failures, result.Failures...)
	}

	if err := svc.sessionStore.Delete(ctx, sessionID); err != nil {
		svc.logger.Error("session record deletion failed", "session_id", sessionID, "error", err)
		return summary, err
	}

	svc.logger.Info("session cleaned", "session_id", sessionID, "files_deleted", summary.FilesDeleted, "failures", len(summary.Failures))
	return summary, nil
}

// SweepExpired cleans every session past its expiry. Sessions are handled
// independently: one failure is logged and counted, never propagated.
func (svc *LifecycleServiceImpl) SweepExpired(ctx context.Context) (*models.SweepSummary, error) {
	now := svc.now().UTC()

	expired, err := svc.sessionStore.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	summary := &models.SweepSummary{}

	for _, session := range expired {
		cleanup, err := svc.Cleanup(ctx, session.SessionID)
		summary.SessionsProcessed++

		if cleanup != nil {
			summary.FilesDeleted += cleanup.FilesDeleted
			summary.FileDeletionFailures += len(cleanup.Failures)
		}
		if err != nil {
			svc.logger.Error("expired session cleanup failed", "session_id", session.SessionID, "error", err)
		}
	}

	summary.CleanupTime = svc.now().UTC()

	svc.logger.Info("expired session sweep complete",
		"sessions_processed", summary.SessionsProcessed,
		"files_deleted", summary.FilesDeleted,
		"file_deletion_failures", summary.FileDeletionFailures,
	)

	return summary, nil
}
