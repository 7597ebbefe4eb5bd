// Package assignment stores the links between subjects and entities: grants,
// denial overrides, and their revocation.
package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/subject"
)

// State says whether a link row is live or has been revoked. Revocation is
// an explicit state, not an implied nullable timestamp, so switches over it
// stay exhaustive.
type State int

const (
	// StateActive marks a link that currently contributes to resolution.
	StateActive State = iota
	// StateRevoked marks a link that was withdrawn; it is kept for history
	// and never blocks a re-grant.
	StateRevoked
)

// Assignment is one subject-to-entity link row.
type Assignment struct {
	ID        uuid.UUID   `json:"id"`
	Subject   subject.Ref `json:"subject"`
	EntityID  uuid.UUID   `json:"entity_id"`
	Denied    bool        `json:"denied"`
	State     State       `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	RevokedAt time.Time   `json:"revoked_at,omitempty"` // zero unless State is StateRevoked
}

// Active reports whether the link still contributes to resolution.
func (a Assignment) Active() bool {
	return a.State == StateActive
}
