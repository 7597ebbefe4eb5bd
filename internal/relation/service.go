package relation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// RepositoryPort defines data access methods for entity links.
type RepositoryPort interface {
	Attach(ctx context.Context, parentID, childID uuid.UUID) error
	Detach(ctx context.Context, parentID, childID uuid.UUID) (bool, error)
	Children(ctx context.Context, parentID uuid.UUID, childKind entity.Kind) ([]entity.Entity, error)
	MapChildren(ctx context.Context, parentKind, childKind entity.Kind) (map[string][]string, error)
}

// Invalidator bumps the shared cache version after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service manages which permissions roles hold and which roles and
// permissions teams hold.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	audit  audit.Sink
	flags  shared.Features
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, cache Invalidator, sink audit.Sink, flags shared.Features, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, cache: cache, audit: sink, flags: flags, logger: logger}
}

// Attach links child under parent after validating the kind pair.
func (s *Service) Attach(ctx context.Context, parent, child entity.Entity) error {
	actor, err := s.guard(ctx, parent, child)
	if err != nil {
		return err
	}
	if err := s.repo.Attach(ctx, parent.ID, child.ID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, parent, child, "attached")
	return nil
}

// Detach removes the link between parent and child. Returns false when no
// link existed.
func (s *Service) Detach(ctx context.Context, parent, child entity.Entity) (bool, error) {
	actor, err := s.guard(ctx, parent, child)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.Detach(ctx, parent.ID, child.ID)
	if err != nil {
		return false, err
	}
	if removed {
		s.invalidate(ctx)
		s.record(ctx, actor, parent, child, "detached")
	}
	return removed, nil
}

// Children lists the live children of childKind linked under parent.
func (s *Service) Children(ctx context.Context, parent entity.Entity, childKind entity.Kind) ([]entity.Entity, error) {
	return s.repo.Children(ctx, parent.ID, childKind)
}

// ReplaceChildren diffs the wanted set against the stored one and applies
// only the difference.
func (s *Service) ReplaceChildren(ctx context.Context, parent entity.Entity, childKind entity.Kind, wanted []entity.Entity) error {
	actor, err := s.guard(ctx, parent, entity.Entity{Kind: childKind})
	if err != nil {
		return err
	}
	for _, child := range wanted {
		if child.Kind != childKind {
			return fmt.Errorf("relation: expected %s, got %s", childKind, child.Kind)
		}
	}
	current, err := s.repo.Children(ctx, parent.ID, childKind)
	if err != nil {
		return err
	}
	existing := make(map[uuid.UUID]entity.Entity, len(current))
	for _, child := range current {
		existing[child.ID] = child
	}
	keep := make(map[uuid.UUID]struct{}, len(wanted))
	for _, child := range wanted {
		keep[child.ID] = struct{}{}
		if _, ok := existing[child.ID]; !ok {
			if err := s.repo.Attach(ctx, parent.ID, child.ID); err != nil {
				return err
			}
			s.record(ctx, actor, parent, child, "attached")
		}
	}
	for id, child := range existing {
		if _, ok := keep[id]; !ok {
			if _, err := s.repo.Detach(ctx, parent.ID, id); err != nil {
				return err
			}
			s.record(ctx, actor, parent, child, "detached")
		}
	}
	s.invalidate(ctx)
	return nil
}

// guard validates the kind pair, feature gating and actor presence.
func (s *Service) guard(ctx context.Context, parent, child entity.Entity) (subject.Ref, error) {
	if !validPair(parent.Kind, child.Kind) {
		return subject.Ref{}, fmt.Errorf("relation: %s cannot hold %s", parent.Kind, child.Kind)
	}
	if err := entity.KindEnabled(parent.Kind, s.flags); err != nil {
		return subject.Ref{}, err
	}
	if err := entity.KindEnabled(child.Kind, s.flags); err != nil {
		return subject.Ref{}, err
	}
	actor, ok := subject.ActorFromContext(ctx)
	if !ok {
		if s.flags.Audit {
			return subject.Ref{}, shared.ErrMissingActor
		}
		actor = subject.System()
	}
	return actor, nil
}

// validPair allows role-holds-permission, team-holds-role and
// team-holds-permission. Roles never hold roles and teams never hold teams,
// keeping resolution single-hop.
func validPair(parent, child entity.Kind) bool {
	switch parent {
	case entity.KindRole:
		return child == entity.KindPermission
	case entity.KindTeam:
		return child == entity.KindRole || child == entity.KindPermission
	}
	return false
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor subject.Ref, parent, child entity.Entity, action string) {
	if !s.flags.Audit {
		return
	}
	entry := audit.Entry{
		Actor:      actor,
		Action:     fmt.Sprintf("%s.%s_%s", parent.Kind, child.Kind, action),
		EntityKind: parent.Kind.String(),
		EntityID:   parent.ID.String(),
		EntityName: parent.Name,
		Meta:       map[string]any{"child_kind": child.Kind.String(), "child_name": child.Name},
		At:         time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
