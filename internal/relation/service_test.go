package relation

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/audit"
	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

type memoryRelationRepo struct {
	entities map[uuid.UUID]entity.Entity
	links    map[uuid.UUID]map[uuid.UUID]struct{}
}

func newMemoryRelationRepo() *memoryRelationRepo {
	return &memoryRelationRepo{
		entities: make(map[uuid.UUID]entity.Entity),
		links:    make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (r *memoryRelationRepo) know(entities ...entity.Entity) {
	for _, e := range entities {
		r.entities[e.ID] = e
	}
}

func (r *memoryRelationRepo) Attach(ctx context.Context, parentID, childID uuid.UUID) error {
	if r.links[parentID] == nil {
		r.links[parentID] = make(map[uuid.UUID]struct{})
	}
	r.links[parentID][childID] = struct{}{}
	return nil
}

func (r *memoryRelationRepo) Detach(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	if _, ok := r.links[parentID][childID]; !ok {
		return false, nil
	}
	delete(r.links[parentID], childID)
	return true, nil
}

func (r *memoryRelationRepo) Children(ctx context.Context, parentID uuid.UUID, childKind entity.Kind) ([]entity.Entity, error) {
	var out []entity.Entity
	for childID := range r.links[parentID] {
		child, ok := r.entities[childID]
		if !ok || child.Kind != childKind || child.Deleted() {
			continue
		}
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRelationRepo) MapChildren(ctx context.Context, parentKind, childKind entity.Kind) (map[string][]string, error) {
	out := make(map[string][]string)
	for parentID, children := range r.links {
		parent, ok := r.entities[parentID]
		if !ok || parent.Kind != parentKind || parent.Deleted() {
			continue
		}
		for childID := range children {
			child, ok := r.entities[childID]
			if !ok || child.Kind != childKind || child.Deleted() {
				continue
			}
			out[parent.Name] = append(out[parent.Name], child.Name)
		}
	}
	return out, nil
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

func makeEntity(kind entity.Kind, name string) entity.Entity {
	return entity.Entity{ID: uuid.New(), Kind: kind, Name: name, IsActive: true}
}

func actorContext() context.Context {
	return subject.ContextWithActor(context.Background(), subject.Ref{Type: "user", ID: "admin"})
}

func newTestService(t *testing.T) (*Service, *memoryRelationRepo, *recordingSink, *countingBumper) {
	t.Helper()
	repo := newMemoryRelationRepo()
	sink := &recordingSink{}
	bumper := &countingBumper{}
	svc := NewService(repo, bumper, sink, shared.AllFeatures(), nil)
	return svc, repo, sink, bumper
}

func TestAttachAndDetach(t *testing.T) {
	svc, repo, sink, bumper := newTestService(t)
	ctx := actorContext()
	editor := makeEntity(entity.KindRole, "editor")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	repo.know(editor, editPosts)

	require.NoError(t, svc.Attach(ctx, editor, editPosts))
	require.Equal(t, 1, bumper.bumps)
	require.Equal(t, "role.permission_attached", sink.entries[0].Action)

	children, err := svc.Children(ctx, editor, entity.KindPermission)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "edit-posts", children[0].Name)

	removed, err := svc.Detach(ctx, editor, editPosts)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, "role.permission_detached", sink.entries[len(sink.entries)-1].Action)

	// Detaching again is a no-op.
	removed, err = svc.Detach(ctx, editor, editPosts)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestInvalidPairsRejected(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := actorContext()
	editor := makeEntity(entity.KindRole, "editor")
	admin := makeEntity(entity.KindRole, "admin")
	writers := makeEntity(entity.KindTeam, "writers")
	platform := makeEntity(entity.KindTeam, "platform")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	repo.know(editor, admin, writers, platform, editPosts)

	// Roles never hold roles; teams never hold teams; permissions hold nothing.
	require.Error(t, svc.Attach(ctx, editor, admin))
	require.Error(t, svc.Attach(ctx, writers, platform))
	require.Error(t, svc.Attach(ctx, editPosts, editor))

	require.NoError(t, svc.Attach(ctx, writers, editor))
	require.NoError(t, svc.Attach(ctx, writers, editPosts))
}

func TestAttachFeatureGate(t *testing.T) {
	repo := newMemoryRelationRepo()
	flags := shared.Features{Roles: true, Teams: false, Features: true, Audit: true}
	svc := NewService(repo, nil, nil, flags, nil)
	ctx := actorContext()
	writers := makeEntity(entity.KindTeam, "writers")
	editor := makeEntity(entity.KindRole, "editor")
	repo.know(writers, editor)

	err := svc.Attach(ctx, writers, editor)
	require.ErrorIs(t, err, shared.ErrFeatureDisabled)
}

func TestAttachMissingActor(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	editor := makeEntity(entity.KindRole, "editor")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	repo.know(editor, editPosts)

	err := svc.Attach(context.Background(), editor, editPosts)
	require.ErrorIs(t, err, shared.ErrMissingActor)
}

func TestReplaceChildrenAppliesDiff(t *testing.T) {
	svc, repo, sink, _ := newTestService(t)
	ctx := actorContext()
	editor := makeEntity(entity.KindRole, "editor")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	deletePosts := makeEntity(entity.KindPermission, "delete-posts")
	publish := makeEntity(entity.KindPermission, "publish")
	repo.know(editor, editPosts, deletePosts, publish)

	require.NoError(t, svc.Attach(ctx, editor, editPosts))
	require.NoError(t, svc.Attach(ctx, editor, deletePosts))
	audits := len(sink.entries)

	// Keep edit-posts, drop delete-posts, add publish.
	err := svc.ReplaceChildren(ctx, editor, entity.KindPermission, []entity.Entity{editPosts, publish})
	require.NoError(t, err)

	children, err := svc.Children(ctx, editor, entity.KindPermission)
	require.NoError(t, err)
	namesOf := make([]string, 0, len(children))
	for _, c := range children {
		namesOf = append(namesOf, c.Name)
	}
	require.Equal(t, []string{"edit-posts", "publish"}, namesOf)

	// One attach and one detach recorded; the kept link is untouched.
	require.Equal(t, audits+2, len(sink.entries))
}

func TestReplaceChildrenEmptyClearsAll(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := actorContext()
	editor := makeEntity(entity.KindRole, "editor")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	repo.know(editor, editPosts)

	require.NoError(t, svc.Attach(ctx, editor, editPosts))
	require.NoError(t, svc.ReplaceChildren(ctx, editor, entity.KindPermission, nil))

	children, err := svc.Children(ctx, editor, entity.KindPermission)
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestMapChildren(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := actorContext()
	editor := makeEntity(entity.KindRole, "editor")
	viewer := makeEntity(entity.KindRole, "viewer")
	editPosts := makeEntity(entity.KindPermission, "edit-posts")
	viewPosts := makeEntity(entity.KindPermission, "view-posts")
	repo.know(editor, viewer, editPosts, viewPosts)

	require.NoError(t, svc.Attach(ctx, editor, editPosts))
	require.NoError(t, svc.Attach(ctx, editor, viewPosts))
	require.NoError(t, svc.Attach(ctx, viewer, viewPosts))

	mapped, err := repo.MapChildren(ctx, entity.KindRole, entity.KindPermission)
	require.NoError(t, err)
	sort.Strings(mapped["editor"])
	require.Equal(t, []string{"edit-posts", "view-posts"}, mapped["editor"])
	require.Equal(t, []string{"view-posts"}, mapped["viewer"])
}
