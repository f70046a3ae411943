// Package audit records identify outcomes as append-only events. Emission is
// post-commit and best-effort: a full inbox or a failing publisher never
// fails the request that produced the event.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened to a cluster.
type Action string

const (
	ActionContactCreated Action = "contact.created"
	ActionClusterMerged  Action = "contact.cluster_merged"
	ActionSecondaryAdded Action = "contact.secondary_added"
)

// Event is one audit record. DemotedIDs is populated for merge events only.
type Event struct {
	ID               string    `json:"id"`
	Action           Action    `json:"action"`
	PrimaryContactID int64     `json:"primaryContactId"`
	ContactID        int64     `json:"contactId,omitempty"`
	DemotedIDs       []int64   `json:"demotedIds,omitempty"`
	RequestID        string    `json:"requestId,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewEvent stamps an event with identity and time.
func NewEvent(action Action, primaryID int64) Event {
	return Event{
		ID:               uuid.NewString(),
		Action:           action,
		PrimaryContactID: primaryID,
		Timestamp:        time.Now().UTC(),
	}
}

// Publisher delivers events to their destination (kafka, logs).
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
