// Package audit records membership and domain-verification changes. Events
// flow through a Publisher to a Sink; production uses Kafka, tests use the
// in-memory sink.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened.
type Action string

const (
	ActionOrgCreated     Action = "org.created"
	ActionOrgUpdated     Action = "org.updated"
	ActionOrgDeleted     Action = "org.deleted"
	ActionDomainVerified Action = "domain.verified"
	ActionMemberPromoted Action = "member.promoted"
)

// Event is one audit record. OrgID keys partitioning so all events for an
// organization stay ordered.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Action    Action    `json:"action"`
	OrgID     uuid.UUID `json:"org_id"`
	ActorID   uuid.UUID `json:"actor_id,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Email     string    `json:"email,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
