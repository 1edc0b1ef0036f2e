package model

import "time"

// RefreshRequest asks for an asynchronous forced recomputation of one
// referee's snapshot.
type RefreshRequest struct {
	RequestID  string    `json:"request_id"`
	RefereeID  string    `json:"referee_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Refresh acknowledgement statuses.
const (
	RefreshQueued  = "queued"
	RefreshPending = "already_queued"
)

// RefreshAck answers a refresh request.
type RefreshAck struct {
	RequestID string `json:"request_id,omitempty"`
	RefereeID string `json:"referee_id"`
	Status    string `json:"status"`
}
