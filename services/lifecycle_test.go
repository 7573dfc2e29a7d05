package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scandesk/scandesk-services-sessions/internal/apperrors"
	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/models"
	"github.com/scandesk/scandesk-services-sessions/store"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.ScanSession

	// when set, Get holds every racer after its read until all of them
	// have read, so concurrent transitions observe the same stale state
	getGate *sync.WaitGroup
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.ScanSession)}
}

func (f *fakeSessionStore) Create(_ context.Context, session models.ScanSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.SessionID]; ok {
		return apperrors.ErrConflict
	}
	f.sessions[session.SessionID] = session
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, sessionID string) (*models.ScanSession, error) {
	f.mu.Lock()
	session, ok := f.sessions[sessionID]
	f.mu.Unlock()

	if f.getGate != nil {
		f.getGate.Done()
		f.getGate.Wait()
	}

	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return &session, nil
}

func (f *fakeSessionStore) UpdateStatus(_ context.Context, sessionID string, expected, next models.Status, filePath string, expiresAt time.Time) (*models.ScanSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	if session.Status != expected {
		return nil, apperrors.ErrConflict
	}

	session.Status = next
	session.ExpiresAt = expiresAt
	if filePath != "" {
		session.FilePath = filePath
	}
	f.sessions[sessionID] = session
	return &session, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessionStore) ListExpired(_ context.Context, now time.Time) ([]models.ScanSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired []models.ScanSession
	for _, session := range f.sessions {
		if now.After(session.ExpiresAt) {
			expired = append(expired, session)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].SessionID < expired[j].SessionID })
	return expired, nil
}

func (f *fakeSessionStore) IsReady(context.Context) error { return nil }
func (f *fakeSessionStore) Name() string                  { return "fakeSessionStore" }

type fakeScanStorage struct {
	mu       sync.Mutex
	keys     map[string]bool
	failKeys map[string]string // key -> failure reason
	listErr  error
}

func newFakeScanStorage(keys ...string) *fakeScanStorage {
	s := &fakeScanStorage{
		keys:     make(map[string]bool),
		failKeys: make(map[string]string),
	}
	for _, k := range keys {
		s.keys[k] = true
	}
	return s
}

func (f *fakeScanStorage) ListSessionObjects(_ context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	var keys []string
	for k := range f.keys {
		if strings.HasPrefix(k, sessionID+"/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeScanStorage) DeleteObjects(_ context.Context, keys []string) (store.BatchDeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result store.BatchDeleteResult
	for _, k := range keys {
		if reason, failed := f.failKeys[k]; failed {
			result.Failures = append(result.Failures, models.DeletionFailure{Key: k, Reason: reason})
			continue
		}
		delete(f.keys, k)
		result.Deleted++
	}
	return result, nil
}

func (f *fakeScanStorage) IsReady(context.Context) error { return nil }
func (f *fakeScanStorage) Name() string                  { return "fakeScanStorage" }

func newTestLifecycle(sessions *fakeSessionStore, scans *fakeScanStorage) *LifecycleServiceImpl {
	return NewLifecycleServiceImpl(sessions, scans, logging.NewNopLogger())
}

func seedSession(t *testing.T, sessions *fakeSessionStore, id string, status models.Status, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, sessions.Create(context.Background(), models.ScanSession{
		SessionID: id,
		UserID:    "user-1",
		Status:    status,
		ExpiresAt: expiresAt,
		CreatedAt: expiresAt.Add(-models.SessionTTL),
	}))
}

func TestTransition_SlidingExpiry(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())

	seedSession(t, sessions, "s1", models.StatusPending, t0.Add(5*time.Minute))

	// scanned at T0+2m extends expiry to T0+7m, not T0+10m
	svc.now = func() time.Time { return t0.Add(2 * time.Minute) }
	updated, err := svc.Transition(ctx, "s1", models.StatusScanned, "")
	require.NoError(t, err)
	require.Equal(t, models.StatusScanned, updated.Status)
	require.Equal(t, t0.Add(7*time.Minute), updated.ExpiresAt)

	// at T0+8m the session is past its extended expiry
	svc.now = func() time.Time { return t0.Add(8 * time.Minute) }
	_, err = svc.Transition(ctx, "s1", models.StatusUploaded, "s1/scan.jpg")
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestTransition_ExpiredRejectsEverything(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())
	svc.now = func() time.Time { return t0.Add(10 * time.Minute) }

	seedSession(t, sessions, "s1", models.StatusPending, t0.Add(5*time.Minute))

	for _, requested := range []models.Status{models.StatusPending, models.StatusScanned, models.StatusUploaded} {
		_, err := svc.Transition(ctx, "s1", requested, "s1/scan.jpg")
		require.ErrorIs(t, err, apperrors.ErrSessionExpired, "requested %s", requested)
	}
}

func TestTransition_NotFound(t *testing.T) {
	svc := newTestLifecycle(newFakeSessionStore(), newFakeScanStorage())

	_, err := svc.Transition(context.Background(), "missing", models.StatusScanned, "")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestTransition_InvalidEdges(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "pending", models.StatusPending, t0.Add(5*time.Minute))
	seedSession(t, sessions, "scanned", models.StatusScanned, t0.Add(5*time.Minute))
	seedSession(t, sessions, "uploaded", models.StatusUploaded, t0.Add(5*time.Minute))

	cases := []struct {
		sessionID string
		requested models.Status
	}{
		{"pending", models.StatusPending},  // same-state
		{"pending", models.StatusUploaded}, // skipping a step
		{"scanned", models.StatusPending},  // backward
		{"uploaded", models.StatusScanned}, // out of a terminal state
	}

	for _, tc := range cases {
		_, err := svc.Transition(ctx, tc.sessionID, tc.requested, "x/scan.jpg")
		require.True(t, apperrors.IsInvalidTransition(err), "%s -> %s: got %v", tc.sessionID, tc.requested, err)
	}
}

func TestTransition_UploadedRequiresFilePath(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusScanned, t0.Add(5*time.Minute))

	_, err := svc.Transition(ctx, "s1", models.StatusUploaded, "")
	require.ErrorIs(t, err, apperrors.ErrMissingFilePath)

	updated, err := svc.Transition(ctx, "s1", models.StatusUploaded, "s1/scan.jpg")
	require.NoError(t, err)
	require.Equal(t, "s1/scan.jpg", updated.FilePath)
}

func TestTransition_FilePathOnlyOnUpload(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusPending, t0.Add(5*time.Minute))

	_, err := svc.Transition(ctx, "s1", models.StatusScanned, "s1/sneaky.jpg")
	require.ErrorIs(t, err, apperrors.ErrUnexpectedFilePath)

	// the rejected call must not have written anything
	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, session.Status)
	require.Empty(t, session.FilePath)
}

func TestTransition_ConcurrentRace(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	svc := newTestLifecycle(sessions, newFakeScanStorage())
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusPending, t0.Add(5*time.Minute))

	// both callers must observe pending before either writes
	gate := &sync.WaitGroup{}
	gate.Add(2)
	sessions.getGate = gate

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Transition(ctx, "s1", models.StatusScanned, "")
			errs <- err
		}()
	}

	var succeeded, conflicted int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)
}

func TestCleanup_Idempotent(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	scans := newFakeScanStorage("s1/front.jpg", "s1/back.jpg")
	svc := newTestLifecycle(sessions, scans)
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusScanned, t0.Add(5*time.Minute))

	first, err := svc.Cleanup(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, first.FilesDeleted)
	require.Empty(t, first.Failures)

	_, err = sessions.Get(ctx, "s1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	// the second call is success, not an error
	second, err := svc.Cleanup(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 0, second.FilesDeleted)
	require.Empty(t, second.Failures)
}

func TestCleanup_PartialFailureStillDeletesRecord(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	scans := newFakeScanStorage("s1/a.jpg", "s1/b.jpg", "s1/c.jpg")
	scans.failKeys["s1/b.jpg"] = "access denied"
	svc := newTestLifecycle(sessions, scans)
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusScanned, t0.Add(5*time.Minute))

	summary, err := svc.Cleanup(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.FilesDeleted)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "s1/b.jpg", summary.Failures[0].Key)
	require.Equal(t, "access denied", summary.Failures[0].Reason)

	// failed object deletions never keep the session row alive
	_, err = sessions.Get(ctx, "s1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestCleanup_ListFailureStillDeletesRecord(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	scans := newFakeScanStorage("s1/a.jpg")
	scans.listErr = errors.New("storage timeout")
	svc := newTestLifecycle(sessions, scans)
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "s1", models.StatusScanned, t0.Add(5*time.Minute))

	summary, err := svc.Cleanup(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 0, summary.FilesDeleted)
	require.Len(t, summary.Failures, 1)
	require.Equal(t, "s1/", summary.Failures[0].Key)
	require.Equal(t, "storage timeout", summary.Failures[0].Reason)

	// an unlistable prefix never keeps the session row alive
	_, err = sessions.Get(ctx, "s1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSweepExpired_MixedExpiry(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sessions := newFakeSessionStore()
	scans := newFakeScanStorage("old1/a.jpg", "old1/b.jpg", "old2/a.jpg", "live/a.jpg")
	scans.failKeys["old2/a.jpg"] = "storage timeout"
	svc := newTestLifecycle(sessions, scans)
	svc.now = func() time.Time { return t0 }

	seedSession(t, sessions, "old1", models.StatusPending, t0.Add(-time.Minute))
	seedSession(t, sessions, "old2", models.StatusScanned, t0.Add(-time.Hour))
	seedSession(t, sessions, "live", models.StatusPending, t0.Add(time.Minute))

	summary, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.SessionsProcessed)
	require.Equal(t, 2, summary.FilesDeleted)
	require.Equal(t, 1, summary.FileDeletionFailures)
	require.Equal(t, t0, summary.CleanupTime)

	// non-expired sessions are untouched
	live, err := sessions.Get(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, live.Status)

	_, err = sessions.Get(ctx, "old1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = sessions.Get(ctx, "old2")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
