package models

import "time"

// DeletionFailure records one object the storage adapter could not delete.
// Partial failure is expected output here, not an error.
type DeletionFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// CleanupSummary reports the outcome of cleaning a single session.
type CleanupSummary struct {
	SessionID    string            `json:"session_id"`
	FilesDeleted int               `json:"files_deleted"`
	Failures     []DeletionFailure `json:"failures,omitempty"`
}

// SweepSummary aggregates one pass over all expired sessions.
type SweepSummary struct {
	SessionsProcessed    int       `json:"sessionsProcessed"`
	FilesDeleted         int       `json:"filesDeleted"`
	FileDeletionFailures int       `json:"fileDeletionFailures"`
	CleanupTime          time.Time `json:"cleanupTime"`
}

// CleanupRequestedEvent is the message body other services publish to the
// cleanup queue when a session's files should be removed.
type CleanupRequestedEvent struct {
	SessionID string `json:"session_id"`
}
