package models

import "fmt"

// Status is the scan session lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScanned   Status = "scanned"
	StatusUploaded  Status = "uploaded"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusScanned, StatusUploaded, StatusCompleted, StatusExpired:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

// transitions is the full lifecycle graph. Sessions only move forward;
// terminal states carry no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:   {StatusScanned},
	StatusScanned:   {StatusUploaded},
	StatusUploaded:  nil,
	StatusCompleted: nil,
	StatusExpired:   nil,
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
