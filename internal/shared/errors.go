package shared

import "errors"

var (
	// ErrEntityNotFound indicates a lookup found no live entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrDuplicateName indicates a create or rename collides with a live entity of the same kind.
	ErrDuplicateName = errors.New("duplicate entity name")
	// ErrFeatureDisabled indicates the targeted capability is switched off globally.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrModelIncompatible indicates the subject type does not declare support for the entity kind.
	ErrModelIncompatible = errors.New("subject type does not support entity kind")
	// ErrMissingActor indicates auditing is enabled but no actor accompanied a mutation.
	ErrMissingActor = errors.New("actor required while auditing is enabled")
)
