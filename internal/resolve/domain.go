// Package resolve computes effective access: which entities of a kind a
// subject holds once direct grants, role grants, team grants, default grants
// and denial overrides are combined. All reads go through the versioned
// cache; a warmed resolution touches no database.
package resolve

import "fmt"

// Link is one cached assignment edge between a subject and an entity name.
type Link struct {
	Name   string `json:"name"`
	Denied bool   `json:"denied"`
}

// Record is a cached snapshot of one live entity, with relation names
// embedded for roles and teams.
type Record struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Active      bool     `json:"active"`
	Default     bool     `json:"default"`
	Permissions []string `json:"permissions,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Access is one effectively held entity together with every path that
// grants it.
type Access struct {
	Record
	Sources []string `json:"sources"`
}

// SourceDirect marks a grant held through a direct assignment.
const SourceDirect = "direct"

// SourceDefault marks a grant held through the entity's default-grant flag.
const SourceDefault = "default"

// SourceViaRole marks a grant mediated by a directly assigned role.
func SourceViaRole(role string) string {
	return fmt.Sprintf("via role %s", role)
}

// SourceViaTeam marks a grant mediated by team membership.
func SourceViaTeam(team string) string {
	return fmt.Sprintf("via team %s", team)
}

// SourceViaTeamRole marks a grant reached through a role held by a team the
// subject belongs to.
func SourceViaTeamRole(team, role string) string {
	return fmt.Sprintf("via team %s's role %s", team, role)
}
