package resolve

import (
	"context"
	"sort"

	"github.com/gatekit/gatekit/internal/cache"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/subject"
)

// EntitySource loads live entities for the cached per-kind collection.
type EntitySource interface {
	AllOfKind(ctx context.Context, kind entity.Kind) ([]entity.Entity, error)
}

// RelationSource loads entity-to-entity link names for the cached
// collection.
type RelationSource interface {
	MapChildren(ctx context.Context, parentKind, childKind entity.Kind) (map[string][]string, error)
}

// LinkSource loads a subject's active assignment edges for one kind.
type LinkSource interface {
	LinksFor(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]Link, error)
}

// Engine resolves effective access for subjects. It is a pure read layer:
// resolution never errors on an unknown subject, it returns an empty set.
type Engine struct {
	cache     *cache.Versioned
	entities  EntitySource
	relations RelationSource
	links     LinkSource
}

// NewEngine constructs an Engine.
func NewEngine(c *cache.Versioned, entities EntitySource, relations RelationSource, links LinkSource) *Engine {
	return &Engine{cache: c, entities: entities, relations: relations, links: links}
}

// Effective returns the entities of the kind the subject effectively holds,
// sorted by name.
func (e *Engine) Effective(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]Record, error) {
	accesses, err := e.Resolve(ctx, ref, kind)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(accesses))
	for i, a := range accesses {
		records[i] = a.Record
	}
	return records, nil
}

// EffectiveNames returns only the names of effectively held entities.
func (e *Engine) EffectiveNames(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]string, error) {
	accesses, err := e.Resolve(ctx, ref, kind)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(accesses))
	for i, a := range accesses {
		names[i] = a.Name
	}
	return names, nil
}

// Has reports whether the subject effectively holds the named entity.
func (e *Engine) Has(ctx context.Context, ref subject.Ref, kind entity.Kind, name string) (bool, error) {
	accesses, err := e.Resolve(ctx, ref, kind)
	if err != nil {
		return false, err
	}
	for _, a := range accesses {
		if a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Resolve computes the effective set with provenance. Every entity carries
// all of its sources: direct, via role R, via team T, via team T's role R,
// default. A denial row only ever suppresses the default term; grants
// reached through direct, role or team paths are unaffected.
func (e *Engine) Resolve(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]Access, error) {
	col, err := e.collection(ctx, kind)
	if err != nil {
		return nil, err
	}
	links, err := e.subjectLinks(ctx, ref, kind)
	if err != nil {
		return nil, err
	}

	denied := make(map[string]struct{})
	sources := make(map[string][]string)
	add := func(name, source string) {
		rec, ok := col[name]
		if !ok || !rec.Active {
			return
		}
		sources[name] = append(sources[name], source)
	}

	for _, l := range links {
		if l.Denied {
			denied[l.Name] = struct{}{}
			continue
		}
		add(l.Name, SourceDirect)
	}

	if kind == entity.KindPermission {
		roleCol, err := e.collection(ctx, entity.KindRole)
		if err != nil {
			return nil, err
		}
		roles, err := e.heldNames(ctx, ref, entity.KindRole, roleCol)
		if err != nil {
			return nil, err
		}
		for _, role := range roles {
			for _, perm := range roleCol[role].Permissions {
				add(perm, SourceViaRole(role))
			}
		}
		if err := e.addTeamGrants(ctx, ref, kind, roleCol, add); err != nil {
			return nil, err
		}
	} else if kind == entity.KindRole {
		if err := e.addTeamGrants(ctx, ref, kind, nil, add); err != nil {
			return nil, err
		}
	}

	for name, rec := range col {
		if !rec.Active || !rec.Default {
			continue
		}
		if _, ok := denied[name]; ok {
			continue
		}
		add(name, SourceDefault)
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	accesses := make([]Access, 0, len(names))
	for _, name := range names {
		srcs := sources[name]
		sort.Strings(srcs)
		accesses = append(accesses, Access{Record: col[name], Sources: dedupe(srcs)})
	}
	return accesses, nil
}

// addTeamGrants folds in what the subject's active teams contribute: the
// team's own children of the requested kind, and for permissions also the
// grants reachable through the team's active roles.
func (e *Engine) addTeamGrants(ctx context.Context, ref subject.Ref, kind entity.Kind, roleCol map[string]Record, add func(name, source string)) error {
	teamCol, err := e.collection(ctx, entity.KindTeam)
	if err != nil {
		return err
	}
	teams, err := e.heldNames(ctx, ref, entity.KindTeam, teamCol)
	if err != nil {
		return err
	}
	for _, team := range teams {
		rec := teamCol[team]
		switch kind {
		case entity.KindRole:
			for _, role := range rec.Roles {
				add(role, SourceViaTeam(team))
			}
		case entity.KindPermission:
			for _, perm := range rec.Permissions {
				add(perm, SourceViaTeam(team))
			}
			for _, role := range rec.Roles {
				roleRec, ok := roleCol[role]
				if !ok || !roleRec.Active {
					continue
				}
				for _, perm := range roleRec.Permissions {
					add(perm, SourceViaTeamRole(team, role))
				}
			}
		}
	}
	return nil
}

// heldNames returns the names of the kind the subject holds through direct
// assignment, filtered to active entities.
func (e *Engine) heldNames(ctx context.Context, ref subject.Ref, kind entity.Kind, col map[string]Record) ([]string, error) {
	links, err := e.subjectLinks(ctx, ref, kind)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range links {
		if l.Denied {
			continue
		}
		rec, ok := col[l.Name]
		if !ok || !rec.Active {
			continue
		}
		names = append(names, l.Name)
	}
	return names, nil
}

// collection returns the cached name-keyed snapshot of every live entity of
// the kind, relation names embedded.
func (e *Engine) collection(ctx context.Context, kind entity.Kind) (map[string]Record, error) {
	key, err := e.cache.Key(ctx, "entities", kind.String())
	if err != nil {
		return nil, err
	}
	var col map[string]Record
	err = e.cache.FetchJSON(ctx, key, &col, func(ctx context.Context) (any, error) {
		return e.loadCollection(ctx, kind)
	})
	if err != nil {
		return nil, err
	}
	return col, nil
}

func (e *Engine) loadCollection(ctx context.Context, kind entity.Kind) (map[string]Record, error) {
	entities, err := e.entities.AllOfKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	var perms, roles map[string][]string
	switch kind {
	case entity.KindRole:
		if perms, err = e.relations.MapChildren(ctx, kind, entity.KindPermission); err != nil {
			return nil, err
		}
	case entity.KindTeam:
		if perms, err = e.relations.MapChildren(ctx, kind, entity.KindPermission); err != nil {
			return nil, err
		}
		if roles, err = e.relations.MapChildren(ctx, kind, entity.KindRole); err != nil {
			return nil, err
		}
	}
	col := make(map[string]Record, len(entities))
	for _, ent := range entities {
		col[ent.Name] = Record{
			ID:          ent.ID.String(),
			Name:        ent.Name,
			Active:      ent.IsActive,
			Default:     ent.GrantByDefault,
			Permissions: perms[ent.Name],
			Roles:       roles[ent.Name],
		}
	}
	return col, nil
}

// subjectLinks returns the cached active assignment edges for the subject
// and kind.
func (e *Engine) subjectLinks(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]Link, error) {
	key, err := e.cache.Key(ctx, "links", ref.Type, ref.ID, kind.String())
	if err != nil {
		return nil, err
	}
	var links []Link
	err = e.cache.FetchJSON(ctx, key, &links, func(ctx context.Context) (any, error) {
		found, err := e.links.LinksFor(ctx, ref, kind)
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = []Link{}
		}
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}
