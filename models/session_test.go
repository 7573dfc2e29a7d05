package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpired_StrictlyAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := ScanSession{ExpiresAt: now}

	require.False(t, session.Expired(now.Add(-time.Second)))
	require.False(t, session.Expired(now), "a transition exactly at expires_at is still allowed")
	require.True(t, session.Expired(now.Add(time.Second)))
}

func TestNextExpiry_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(5*time.Minute), NextExpiry(now))
}
