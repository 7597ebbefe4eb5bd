package assignment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/resolve"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

type memoryAssignmentRepo struct {
	rows     []Assignment
	entities map[uuid.UUID]entity.Entity
}

func newMemoryAssignmentRepo() *memoryAssignmentRepo {
	return &memoryAssignmentRepo{entities: make(map[uuid.UUID]entity.Entity)}
}

func (r *memoryAssignmentRepo) know(entities ...entity.Entity) {
	for _, e := range entities {
		r.entities[e.ID] = e
	}
}

func (r *memoryAssignmentRepo) HasActive(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error) {
	for _, a := range r.rows {
		if a.Subject == ref && a.EntityID == entityID && a.Denied == denied && a.State == StateActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAssignmentRepo) Insert(ctx context.Context, a Assignment) error {
	r.rows = append(r.rows, a)
	return nil
}

func (r *memoryAssignmentRepo) Revoke(ctx context.Context, ref subject.Ref, entityID uuid.UUID, denied bool) (bool, error) {
	for i, a := range r.rows {
		if a.Subject == ref && a.EntityID == entityID && a.Denied == denied && a.State == StateActive {
			r.rows[i].State = StateRevoked
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAssignmentRepo) AnyForEntity(ctx context.Context, entityID uuid.UUID) (bool, error) {
	for _, a := range r.rows {
		if a.EntityID == entityID && !a.Denied && a.State == StateActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryAssignmentRepo) LinksFor(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]resolve.Link, error) {
	var out []resolve.Link
	for _, a := range r.rows {
		if a.Subject != ref || a.State != StateActive {
			continue
		}
		e, ok := r.entities[a.EntityID]
		if !ok || e.Kind != kind || e.Deleted() {
			continue
		}
		out = append(out, resolve.Link{Name: e.Name, Denied: a.Denied})
	}
	return out, nil
}

func (r *memoryAssignmentRepo) listEntities(ref subject.Ref, kind entity.Kind, denied, activeOnly bool) []entity.Entity {
	var out []entity.Entity
	for _, a := range r.rows {
		if a.Subject != ref || a.Denied != denied || a.State != StateActive {
			continue
		}
		e, ok := r.entities[a.EntityID]
		if !ok || e.Kind != kind || e.Deleted() {
			continue
		}
		if activeOnly && !e.IsActive {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (r *memoryAssignmentRepo) AssignedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return r.listEntities(ref, kind, false, true), nil
}

func (r *memoryAssignmentRepo) DeniedEntities(ctx context.Context, ref subject.Ref, kind entity.Kind) ([]entity.Entity, error) {
	return r.listEntities(ref, kind, true, false), nil
}

type staticEntitySource struct {
	all map[entity.Kind][]entity.Entity
}

func (s *staticEntitySource) AllOfKind(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	return s.all[kind], nil
}

type recordingSink struct {
	entries []audit.Entry
}

func (s *recordingSink) Record(ctx context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type countingBumper struct {
	bumps int
}

func (b *countingBumper) Bump(context.Context) error {
	b.bumps++
	return nil
}

func permission(name string) entity.Entity {
	return entity.Entity{ID: uuid.New(), Kind: entity.KindPermission, Name: name, IsActive: true}
}

func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Declare("user", entity.KindPermission, entity.KindRole, entity.KindTeam, entity.KindFeature)
	reg.Declare("service", entity.KindPermission)
	return reg
}

func actorContext() context.Context {
	return subject.ContextWithActor(context.Background(), subject.Ref{Type: "user", ID: "admin"})
}

func newTestService(t *testing.T) (*Service, *memoryAssignmentRepo, *staticEntitySource, *recordingSink, *countingBumper) {
	t.Helper()
	repo := newMemoryAssignmentRepo()
	source := &staticEntitySource{all: make(map[entity.Kind][]entity.Entity)}
	sink := &recordingSink{}
	bumper := &countingBumper{}
	svc := NewService(repo, source, testRegistry(), bumper, sink, shared.AllFeatures(), nil)
	return svc, repo, source, sink, bumper
}

func TestAssignIdempotent(t *testing.T) {
	svc, repo, _, sink, bumper := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}
	perm := permission("edit-posts")
	repo.know(perm)

	ok, err := svc.Assign(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, bumper.bumps)
	require.Len(t, sink.entries, 1)
	require.Equal(t, "permission.assigned", sink.entries[0].Action)

	// Repeating reports success and records nothing new.
	ok, err = svc.Assign(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, bumper.bumps)
	require.Len(t, sink.entries, 1)
	require.Len(t, repo.rows, 1)
}

func TestRevokeThenReassignCreatesFreshRow(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}
	perm := permission("edit-posts")
	repo.know(perm)

	_, err := svc.Assign(ctx, alice, perm)
	require.NoError(t, err)

	removed, err := svc.Revoke(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, removed)

	// Revoking again is a no-op.
	removed, err = svc.Revoke(ctx, alice, perm)
	require.NoError(t, err)
	require.False(t, removed)

	ok, err := svc.Assign(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, repo.rows, 2)
	require.Equal(t, StateRevoked, repo.rows[0].State)
	require.Equal(t, StateActive, repo.rows[1].State)
}

func TestDenyIsIndependentOfGrant(t *testing.T) {
	svc, repo, _, sink, _ := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}
	perm := permission("edit-posts")
	repo.know(perm)

	_, err := svc.Assign(ctx, alice, perm)
	require.NoError(t, err)

	ok, err := svc.Deny(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "permission.denied", sink.entries[len(sink.entries)-1].Action)

	// Undenying leaves the grant row alone.
	removed, err := svc.Undeny(ctx, alice, perm)
	require.NoError(t, err)
	require.True(t, removed)

	assigned, err := svc.AssignedTo(ctx, alice, entity.KindPermission)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
}

func TestGuardRejectsUndeclaredSubjectType(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := actorContext()
	bot := subject.Ref{Type: "service", ID: "reporter"}
	role := entity.Entity{ID: uuid.New(), Kind: entity.KindRole, Name: "editor", IsActive: true}
	repo.know(role)

	_, err := svc.Assign(ctx, bot, role)
	require.ErrorIs(t, err, shared.ErrModelIncompatible)
}

func TestGuardFeatureGate(t *testing.T) {
	repo := newMemoryAssignmentRepo()
	flags := shared.Features{Roles: false, Teams: true, Features: true, Audit: true}
	svc := NewService(repo, &staticEntitySource{}, testRegistry(), nil, nil, flags, nil)
	ctx := actorContext()
	role := entity.Entity{ID: uuid.New(), Kind: entity.KindRole, Name: "editor", IsActive: true}

	_, err := svc.Assign(ctx, subject.Ref{Type: "user", ID: "alice"}, role)
	require.ErrorIs(t, err, shared.ErrFeatureDisabled)
}

func TestGuardMissingActor(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	perm := permission("edit-posts")
	repo.know(perm)

	_, err := svc.Assign(context.Background(), subject.Ref{Type: "user", ID: "alice"}, perm)
	require.ErrorIs(t, err, shared.ErrMissingActor)
}

func TestExistsForEntityIgnoresDenialsAndRevoked(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}
	perm := permission("edit-posts")
	repo.know(perm)

	held, err := svc.ExistsForEntity(ctx, perm)
	require.NoError(t, err)
	require.False(t, held)

	_, err = svc.Deny(ctx, alice, perm)
	require.NoError(t, err)
	held, err = svc.ExistsForEntity(ctx, perm)
	require.NoError(t, err)
	require.False(t, held)

	_, err = svc.Assign(ctx, alice, perm)
	require.NoError(t, err)
	held, err = svc.ExistsForEntity(ctx, perm)
	require.NoError(t, err)
	require.True(t, held)

	_, err = svc.Revoke(ctx, alice, perm)
	require.NoError(t, err)
	held, err = svc.ExistsForEntity(ctx, perm)
	require.NoError(t, err)
	require.False(t, held)
}

func TestSearchProjections(t *testing.T) {
	svc, repo, source, _, _ := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}

	editPosts := permission("edit-posts")
	deletePosts := permission("delete-posts")
	publish := permission("publish")
	repo.know(editPosts, deletePosts, publish)
	source.all[entity.KindPermission] = []entity.Entity{deletePosts, editPosts, publish}

	_, err := svc.Assign(ctx, alice, editPosts)
	require.NoError(t, err)
	_, err = svc.Deny(ctx, alice, publish)
	require.NoError(t, err)

	assigned, err := svc.SearchAssigned(ctx, alice, entity.KindPermission, shared.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, assigned.Total)
	require.Equal(t, "edit-posts", assigned.Data[0].Name)

	unassigned, err := svc.SearchUnassigned(ctx, alice, entity.KindPermission, shared.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, unassigned.Total)
	require.Equal(t, "delete-posts", unassigned.Data[0].Name)
	require.Equal(t, "publish", unassigned.Data[1].Name)

	denied, err := svc.SearchDenied(ctx, alice, entity.KindPermission, shared.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, denied.Total)
	require.Equal(t, "publish", denied.Data[0].Name)

	filtered, err := svc.SearchUnassigned(ctx, alice, entity.KindPermission, shared.PageRequest{Search: "posts"})
	require.NoError(t, err)
	require.Equal(t, 1, filtered.Total)
	require.Equal(t, "delete-posts", filtered.Data[0].Name)
}

func TestSearchSortDirection(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := actorContext()
	alice := subject.Ref{Type: "user", ID: "alice"}

	for _, name := range []string{"beta", "alpha", "gamma"} {
		perm := permission(name)
		repo.know(perm)
		_, err := svc.Assign(ctx, alice, perm)
		require.NoError(t, err)
	}

	page, err := svc.SearchAssigned(ctx, alice, entity.KindPermission, shared.PageRequest{SortDir: "desc"})
	require.NoError(t, err)
	names := make([]string, 0, len(page.Data))
	for _, e := range page.Data {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"gamma", "beta", "alpha"}, names)
}
