// Package subject identifies the application-owned actors and resources that
// hold grants. The engine never persists subjects; it references them by a
// type tag and an opaque primary key.
package subject

import "fmt"

// SystemType tags the distinguished actor used when no caller identity was supplied.
const SystemType = "system"

// Ref is a polymorphic reference to an application subject.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// System returns the sentinel actor recorded for unattended mutations.
func System() Ref {
	return Ref{Type: SystemType, ID: SystemType}
}

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// IsSystem reports whether the reference is the system sentinel.
func (r Ref) IsSystem() bool {
	return r.Type == SystemType
}

// String renders the reference as "type:id".
func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}
