package models

import "time"

// SessionTTL is the sliding expiration window. Every successful transition
// extends expires_at by this much from the transition time, not from
// creation.
const SessionTTL = 5 * time.Minute

// ScanSession represents a cross-device scan handoff session.
type ScanSession struct {
	SessionID string    `dynamodbav:"session_id" json:"sessionId"`
	UserID    string    `dynamodbav:"user_id" json:"userId"`
	Status    Status    `dynamodbav:"status" json:"status"`
	FilePath  string    `dynamodbav:"file_path,omitempty" json:"filePath,omitempty"`
	ExpiresAt time.Time `dynamodbav:"expires_at,unixtime" json:"expiresAt"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// Expired reports whether the session is past its expiry at now. The
// comparison is strict: a transition exactly at expires_at is still allowed.
func (s ScanSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// NextExpiry computes the sliding expiry for a transition happening at now.
func NextExpiry(now time.Time) time.Time {
	return now.Add(SessionTTL)
}
