package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scandesk/scandesk-services-sessions/models"
	"github.com/scandesk/scandesk-services-sessions/store"
)

type SessionService interface {
	CreateSession(ctx context.Context, userID string) (*models.ScanSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ScanSession, error)
}

type SessionServiceImpl struct {
	sessionStore store.SessionStore
	now          func() time.Time
}

func NewSessionServiceImpl(sessionStore store.SessionStore) *SessionServiceImpl {
	return &SessionServiceImpl{
		sessionStore: sessionStore,
		now:          time.Now,
	}
}

func (svc *SessionServiceImpl) CreateSession(ctx context.Context, userID string) (*models.ScanSession, error) {
	now := svc.now().UTC()

	session := models.ScanSession{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Status:    models.StatusPending,
		ExpiresAt: models.NextExpiry(now),
		CreatedAt: now,
	}

	if err := svc.sessionStore.Create(ctx, session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (svc *SessionServiceImpl) GetSession(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	return svc.sessionStore.Get(ctx, sessionID)
}
