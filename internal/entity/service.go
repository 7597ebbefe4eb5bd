package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// RepositoryPort defines data access methods for entities.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entity) (Entity, error)
	FindByName(ctx context.Context, kind Kind, name string) (Entity, error)
	FindByNameWithTrashed(ctx context.Context, kind Kind, name string) (Entity, error)
	FindByID(ctx context.Context, id uuid.UUID) (Entity, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (Entity, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Entity, error)
	SetGrantByDefault(ctx context.Context, id uuid.UUID, grant bool) (Entity, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	AllOfKind(ctx context.Context, kind Kind) ([]Entity, error)
	PageOfKind(ctx context.Context, kind Kind, req shared.PageRequest) ([]Entity, int, error)
}

// Invalidator bumps the shared cache version after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service orchestrates entity lifecycle operations.
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

// Exists reports whether a live entity of the kind and name exists.
func (s *Service) Exists(ctx context.Context, kind Kind, name string) (bool, error) {
	_, err := s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
	if errors.Is(err, shared.ErrEntityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByName returns the live entity of the kind and name, or
// shared.ErrEntityNotFound when absent or soft-deleted.
func (s *Service) FindByName(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
}

// FindByNameWithTrashed looks the name up across soft-deleted entities too,
// distinguishing "deleted" from "never existed".
func (s *Service) FindByNameWithTrashed(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.repo.FindByNameWithTrashed(ctx, kind, strings.TrimSpace(name))
}

// Create stores a new active entity with default-grant off.
func (s *Service) Create(ctx context.Context, kind Kind, name string) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, errors.New("entity: name required")
	}
	actor, err := s.guard(ctx, kind)
	if err != nil {
		return Entity{}, err
	}
	if _, err := s.repo.FindByName(ctx, kind, name); err == nil {
		return Entity{}, shared.ErrDuplicateName
	} else if !errors.Is(err, shared.ErrEntityNotFound) {
		return Entity{}, err
	}
	created, err := s.repo.Insert(ctx, Entity{
		ID:       uuid.New(),
		Kind:     kind,
		Name:     name,
		IsActive: true,
	})
	if err != nil {
		return Entity{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, created, "created", nil)
	return created, nil
}

// Rename changes the entity name, keeping per-kind uniqueness among live rows.
func (s *Service) Rename(ctx context.Context, kind Kind, name, newName string) (Entity, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return Entity{}, errors.New("entity: name required")
	}
	actor, err := s.guard(ctx, kind)
	if err != nil {
		return Entity{}, err
	}
	current, err := s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
	if err != nil {
		return Entity{}, err
	}
	if current.Name == newName {
		return current, nil
	}
	if _, err := s.repo.FindByName(ctx, kind, newName); err == nil {
		return Entity{}, shared.ErrDuplicateName
	} else if !errors.Is(err, shared.ErrEntityNotFound) {
		return Entity{}, err
	}
	renamed, err := s.repo.UpdateName(ctx, current.ID, newName)
	if err != nil {
		return Entity{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, renamed, "renamed", map[string]any{"previous_name": current.Name})
	return renamed, nil
}

// Deactivate turns the entity off. Idempotent.
func (s *Service) Deactivate(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.setActive(ctx, kind, name, false, "deactivated")
}

// Reactivate turns the entity back on. Idempotent.
func (s *Service) Reactivate(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.setActive(ctx, kind, name, true, "reactivated")
}

func (s *Service) setActive(ctx context.Context, kind Kind, name string, active bool, action string) (Entity, error) {
	actor, err := s.guard(ctx, kind)
	if err != nil {
		return Entity{}, err
	}
	current, err := s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
	if err != nil {
		return Entity{}, err
	}
	if current.IsActive == active {
		return current, nil
	}
	updated, err := s.repo.SetActive(ctx, current.ID, active)
	if err != nil {
		return Entity{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, updated, action, nil)
	return updated, nil
}

// GrantByDefault turns on the default grant. Existing denial rows for other
// subjects are untouched.
func (s *Service) GrantByDefault(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.setDefault(ctx, kind, name, true, "default_granted")
}

// RevokeDefaultGrant turns the default grant off. Denial rows remain, inert
// until the flag is re-enabled.
func (s *Service) RevokeDefaultGrant(ctx context.Context, kind Kind, name string) (Entity, error) {
	return s.setDefault(ctx, kind, name, false, "default_grant_revoked")
}

func (s *Service) setDefault(ctx context.Context, kind Kind, name string, grant bool, action string) (Entity, error) {
	actor, err := s.guard(ctx, kind)
	if err != nil {
		return Entity{}, err
	}
	current, err := s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
	if err != nil {
		return Entity{}, err
	}
	if current.GrantByDefault == grant {
		return current, nil
	}
	updated, err := s.repo.SetGrantByDefault(ctx, current.ID, grant)
	if err != nil {
		return Entity{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actor, updated, action, nil)
	return updated, nil
}

// Delete soft-deletes the entity. Its assignment rows stop contributing to
// resolution through live-entity filtering, not cascades.
func (s *Service) Delete(ctx context.Context, kind Kind, name string) (bool, error) {
	actor, err := s.guard(ctx, kind)
	if err != nil {
		return false, err
	}
	current, err := s.repo.FindByName(ctx, kind, strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	deleted, err := s.repo.SoftDelete(ctx, current.ID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.invalidate(ctx)
		s.record(ctx, actor, current, "deleted", nil)
	}
	return deleted, nil
}

// All returns every live entity of the kind.
func (s *Service) All(ctx context.Context, kind Kind) ([]Entity, error) {
	return s.repo.AllOfKind(ctx, kind)
}

// Page returns one page of live entities of the kind.
func (s *Service) Page(ctx context.Context, kind Kind, req shared.PageRequest) (shared.Page[Entity], error) {
	req = req.Normalize()
	entities, total, err := s.repo.PageOfKind(ctx, kind, req)
	if err != nil {
		return shared.Page[Entity]{}, err
	}
	return shared.NewPage(entities, req.Page, req.PerPage, total), nil
}

// guard enforces kind-level feature gating and actor presence for mutations.
func (s *Service) guard(ctx context.Context, kind Kind) (subject.Ref, error) {
	if err := KindEnabled(kind, s.flags); err != nil {
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

// KindEnabled maps a kind to its feature toggle. Permissions are always on.
func KindEnabled(kind Kind, flags shared.Features) error {
	switch kind {
	case KindRole:
		if !flags.Roles {
			return fmt.Errorf("%w: roles", shared.ErrFeatureDisabled)
		}
	case KindTeam:
		if !flags.Teams {
			return fmt.Errorf("%w: teams", shared.ErrFeatureDisabled)
		}
	case KindFeature:
		if !flags.Features {
			return fmt.Errorf("%w: features", shared.ErrFeatureDisabled)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor subject.Ref, e Entity, action string, meta map[string]any) {
	if !s.flags.Audit {
		return
	}
	entry := audit.Entry{
		Actor:      actor,
		Action:     fmt.Sprintf("%s.%s", e.Kind, action),
		EntityKind: e.Kind.String(),
		EntityID:   e.ID.String(),
		EntityName: e.Name,
		Meta:       meta,
		At:         time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
