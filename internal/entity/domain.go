// Package entity implements storage and lifecycle for the four grantable
// entity kinds: permissions, roles, teams and features.
package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the four entity families sharing one shape.
type Kind string

const (
	KindPermission Kind = "permission"
	KindRole       Kind = "role"
	KindTeam       Kind = "team"
	KindFeature    Kind = "feature"
)

// Kinds lists every entity kind in stable order.
func Kinds() []Kind {
	return []Kind{KindPermission, KindRole, KindTeam, KindFeature}
}

// ParseKind validates a kind received from the outside.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPermission, KindRole, KindTeam, KindFeature:
		return Kind(s), nil
	}
	return "", fmt.Errorf("entity: unknown kind %q", s)
}

func (k Kind) String() string { return string(k) }

// Entity is one permission, role, team or feature record.
type Entity struct {
	ID             uuid.UUID  `json:"id"`
	Kind           Kind       `json:"kind"`
	Name           string     `json:"name"`
	IsActive       bool       `json:"is_active"`
	GrantByDefault bool       `json:"grant_by_default"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the entity has been soft-deleted.
func (e Entity) Deleted() bool {
	return e.DeletedAt != nil
}
