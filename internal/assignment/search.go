package assignment

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// Search projections drive the assign / unassign / denied tables. They are
// pure reads composed from the store's listings: filter by name, sort with
// a locale-aware collator, cut one page.

// SearchAssigned pages through the entities of the kind the subject holds
// directly.
func (s *Service) SearchAssigned(ctx context.Context, ref subject.Ref, kind entity.Kind, req shared.PageRequest) (shared.Page[entity.Entity], error) {
	entities, err := s.repo.AssignedEntities(ctx, ref, kind)
	if err != nil {
		return shared.Page[entity.Entity]{}, err
	}
	return projectPage(entities, req), nil
}

// SearchUnassigned pages through the live entities of the kind the subject
// does not hold directly; candidates for a new grant.
func (s *Service) SearchUnassigned(ctx context.Context, ref subject.Ref, kind entity.Kind, req shared.PageRequest) (shared.Page[entity.Entity], error) {
	all, err := s.entities.AllOfKind(ctx, kind)
	if err != nil {
		return shared.Page[entity.Entity]{}, err
	}
	assigned, err := s.repo.AssignedEntities(ctx, ref, kind)
	if err != nil {
		return shared.Page[entity.Entity]{}, err
	}
	held := make(map[string]struct{}, len(assigned))
	for _, e := range assigned {
		held[e.Name] = struct{}{}
	}
	var candidates []entity.Entity
	for _, e := range all {
		if _, ok := held[e.Name]; !ok {
			candidates = append(candidates, e)
		}
	}
	return projectPage(candidates, req), nil
}

// SearchDenied pages through the entities of the kind carrying an active
// denial row for the subject.
func (s *Service) SearchDenied(ctx context.Context, ref subject.Ref, kind entity.Kind, req shared.PageRequest) (shared.Page[entity.Entity], error) {
	entities, err := s.repo.DeniedEntities(ctx, ref, kind)
	if err != nil {
		return shared.Page[entity.Entity]{}, err
	}
	return projectPage(entities, req), nil
}

func projectPage(entities []entity.Entity, req shared.PageRequest) shared.Page[entity.Entity] {
	req = req.Normalize()
	filtered := entities
	if req.Search != "" {
		needle := strings.ToLower(req.Search)
		filtered = nil
		for _, e := range entities {
			if strings.Contains(strings.ToLower(e.Name), needle) {
				filtered = append(filtered, e)
			}
		}
	}
	sortEntities(filtered, req)
	return shared.PageSlice(filtered, req)
}

func sortEntities(entities []entity.Entity, req shared.PageRequest) {
	cl := collate.New(language.Und, collate.IgnoreCase)
	desc := strings.EqualFold(req.SortDir, "desc")
	byName := func(a, b entity.Entity) bool {
		if desc {
			return cl.CompareString(a.Name, b.Name) > 0
		}
		return cl.CompareString(a.Name, b.Name) < 0
	}
	less := byName
	switch req.SortBy {
	case "grant_by_default":
		less = func(a, b entity.Entity) bool {
			if a.GrantByDefault != b.GrantByDefault {
				return a.GrantByDefault != desc
			}
			return cl.CompareString(a.Name, b.Name) < 0
		}
	case "is_active":
		less = func(a, b entity.Entity) bool {
			if a.IsActive != b.IsActive {
				return a.IsActive != desc
			}
			return cl.CompareString(a.Name, b.Name) < 0
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return less(entities[i], entities[j]) })
}
