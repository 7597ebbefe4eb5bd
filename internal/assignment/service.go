package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/resolve"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// RepositoryPort defines data access methods for assignment links.
type RepositoryPort interface {
	HasActive(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error)
	Insert(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error)
	AnyForEntity(ctx context.Context, entityID uuid.UUID) (bool, error)
	LinksFor(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]resolve.Link, error)
	AssignedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error)
	DeniedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error)
}

// EntitySource lists live entities of a kind; used by the search projections.
type EntitySource interface {
	AllOfKind(ctx context.Context, kind entity.Kind) ([]entity.Entity, error)
}

// Invalidator bumps the shared cache version after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates grant and denial links between subjects and entities.
type Service struct {
	repo     RepositoryPort
	entities EntitySource
	registry *Registry
	cache    Invalidator
	audit    audit.Sink
	flags    shared.Features
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, entities EntitySource, registry *Registry, cache Invalidator, sink audit.Sink, flags shared.Features, logger *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{repo: repo, entities: entities, registry: registry, cache: cache, audit: sink, flags: flags, logger: logger}
}

// Assign creates a grant link. Idempotent: returns true whether the link was
// created now or already existed.
func (s *Service) Assign(ctx context.Context, ref subject.Ref, ent entity.Entity) (bool, error) {
	return s.link(ctx, ref, ent, false, "assigned")
}

// Deny creates a denial override suppressing a default grant for this one
// subject. The store accepts denials on non-default entities too; they are
// inert for resolution.
func (s *Service) Deny(ctx context.Context, ref subject.Ref, ent entity.Entity) (bool, error) {
	return s.link(ctx, ref, ent, true, "denied")
}

// Revoke withdraws the grant link. Returns false when none was active.
func (s *Service) Revoke(ctx context.Context, ref subject.Ref, ent entity.Entity) (bool, error) {
	return s.unlink(ctx, ref, ent, false, "revoked")
}

// Undeny withdraws the denial override. Returns false when none was active.
func (s *Service) Undeny(ctx context.Context, ref subject.Ref, ent entity.Entity) (bool, error) {
	return s.unlink(ctx, ref, ent, true, "undenied")
}

func (s *Service) link(ctx context.Context, ref subject.Ref, ent entity.Entity, denied bool, action string) (bool, error) {
	actor, err := s.guard(ctx, ref, ent.Kind)
	if err != nil {
		return false, err
	}
	exists, err := s.repo.HasActive(ctx, ref, ent.ID, denied)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	err = s.repo.Insert(ctx, Assignment{
		ID:       uuid.New(),
		Subject:  ref,
		EntityID: ent.ID,
		Denied:   denied,
		State:    StateActive,
	})
	if err != nil {
		return false, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, ref, ent, action)
	return true, nil
}

func (s *Service) unlink(ctx context.Context, ref subject.Ref, ent entity.Entity, denied bool, action string) (bool, error) {
	actor, err := s.guard(ctx, ref, ent.Kind)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.Revoke(ctx, ref, ent.ID, denied)
	if err != nil {
		return false, err
	}
	if removed {
		s.invalidate(ctx)
		s.record(ctx, actor, ref, ent, action)
	}
	return removed, nil
}

// AssignedTo returns the active entities of the kind the subject holds
// directly.
func (s *Service) AssignedTo(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return s.repo.AssignedEntities(ctx, ref, kind)
}

// DeniedFrom returns the entities of the kind with an active denial row for
// the subject.
func (s *Service) DeniedFrom(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return s.repo.DeniedEntities(ctx, ref, kind)
}

// ExistsForEntity reports whether any subject holds the entity; callers use
// it to gate destructive entity operations.
func (s *Service) ExistsForEntity(ctx context.Context, ent entity.Entity) (bool, error) {
	return s.repo.AnyForEntity(ctx, ent.ID)
}

// guard enforces capability declaration, feature gating and actor presence.
func (s *Service) guard(ctx context.Context, ref subject.Ref, kind entity.Kind) (subject.Ref, error) {
	if err := entity.KindEnabled(kind, s.flags); err != nil {
		return subject.Ref{}, err
	}
	if s.registry != nil && !s.registry.Interacts(ref.Type, kind) {
		return subject.Ref{}, fmt.Errorf("%w: %s cannot hold %s", shared.ErrModelIncompatible, ref.Type, kind)
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

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor subject.Ref, ref subject.Ref, ent entity.Entity, action string) {
	if !s.flags.Audit {
		return
	}
	entry := audit.Entry{
		Actor:      actor,
		Action:     fmt.Sprintf("%s.%s", ent.Kind, action),
		EntityKind: ent.Kind.String(),
		EntityID:   ent.ID.String(),
		EntityName: ent.Name,
		Meta:       map[string]any{"subject": ref.String()},
		At:         time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
