package assignment

import (
	"context"
	"fmt"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/resolve"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

// Grants is a capability-scoped accessor for one subject. It exposes only
// the operations the subject's declared kinds support, so application code
// talks to a narrow handle instead of the full store.
type Grants struct {
	ref    subject.Ref
	kinds  map[entity.Kind]struct{}
	svc    *Service
	engine *resolve.Engine
}

// For returns a Grants handle for the subject. The subject type must have
// declared at least one kind.
func (s *Service) For(ref subject.Ref, engine *resolve.Engine) (*Grants, error) {
	declared := s.registry.Kinds(ref.Type)
	if len(declared) == 0 {
		return nil, fmt.Errorf("%w: %s declares no entity kinds", shared.ErrModelIncompatible, ref.Type)
	}
	kinds := make(map[entity.Kind]struct{}, len(declared))
	for _, k := range declared {
		kinds[k] = struct{}{}
	}
	return &Grants{ref: ref, kinds: kinds, svc: s, engine: engine}, nil
}

// Ref returns the subject this handle is scoped to.
func (g *Grants) Ref() subject.Ref {
	return g.ref
}

func (g *Grants) supports(kind entity.Kind) error {
	if _, ok := g.kinds[kind]; !ok {
		return fmt.Errorf("%w: %s cannot hold %s", shared.ErrModelIncompatible, g.ref.Type, kind)
	}
	return nil
}

// Assign grants the entity to the subject.
func (g *Grants) Assign(ctx context.Context, ent entity.Entity) (bool, error) {
	if err := g.supports(ent.Kind); err != nil {
		return false, err
	}
	return g.svc.Assign(ctx, g.ref, ent)
}

// Revoke withdraws a direct grant.
func (g *Grants) Revoke(ctx context.Context, ent entity.Entity) (bool, error) {
	if err := g.supports(ent.Kind); err != nil {
		return false, err
	}
	return g.svc.Revoke(ctx, g.ref, ent)
}

// Deny suppresses a default grant for the subject.
func (g *Grants) Deny(ctx context.Context, ent entity.Entity) (bool, error) {
	if err := g.supports(ent.Kind); err != nil {
		return false, err
	}
	return g.svc.Deny(ctx, g.ref, ent)
}

// Undeny lifts a denial override.
func (g *Grants) Undeny(ctx context.Context, ent entity.Entity) (bool, error) {
	if err := g.supports(ent.Kind); err != nil {
		return false, err
	}
	return g.svc.Undeny(ctx, g.ref, ent)
}

// Assigned lists the active entities of the kind held directly.
func (g *Grants) Assigned(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	if err := g.supports(kind); err != nil {
		return nil, err
	}
	return g.svc.AssignedTo(ctx, g.ref, kind)
}

// Effective resolves the subject's effective entities of the kind.
func (g *Grants) Effective(ctx context.Context, kind entity.Kind) ([]resolve.Record, error) {
	if err := g.supports(kind); err != nil {
		return nil, err
	}
	return g.engine.Effective(ctx, g.ref, kind)
}

// Resolve resolves the effective entities of the kind with provenance.
func (g *Grants) Resolve(ctx context.Context, kind entity.Kind) ([]resolve.Access, error) {
	if err := g.supports(kind); err != nil {
		return nil, err
	}
	return g.engine.Resolve(ctx, g.ref, kind)
}

// Has reports whether the subject effectively holds the named entity.
func (g *Grants) Has(ctx context.Context, kind entity.Kind, name string) (bool, error) {
	if err := g.supports(kind); err != nil {
		return false, err
	}
	return g.engine.Has(ctx, g.ref, kind, name)
}
