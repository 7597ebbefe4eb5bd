package assignment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/entity"
	"github.com/gatekit/gatekit/internal/shared"
	"github.com/gatekit/gatekit/internal/subject"
)

func TestForRequiresDeclaredKinds(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	_, err := svc.For(subject.Ref{Type: "webhook", ID: "w1"}, nil)
	require.ErrorIs(t, err, shared.ErrModelIncompatible)

	grants, err := svc.For(subject.Ref{Type: "service", ID: "reporter"}, nil)
	require.NoError(t, err)
	require.Equal(t, "service", grants.Ref().Type)
}

func TestGrantsScopedToDeclaredKinds(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)
	ctx := actorContext()

	grants, err := svc.For(subject.Ref{Type: "service", ID: "reporter"}, nil)
	require.NoError(t, err)

	perm := permission("emit-reports")
	repo.know(perm)

	ok, err := grants.Assign(ctx, perm)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := grants.Assigned(ctx, entity.KindPermission)
	require.NoError(t, err)
	require.Len(t, held, 1)

	// Services declared only permissions; roles are out of scope.
	role := entity.Entity{Kind: entity.KindRole, Name: "editor", IsActive: true}
	_, err = grants.Assign(ctx, role)
	require.ErrorIs(t, err, shared.ErrModelIncompatible)

	_, err = grants.Assigned(ctx, entity.KindRole)
	require.ErrorIs(t, err, shared.ErrModelIncompatible)
}

func TestRegistryAccumulates(t *testing.T) {
	reg := NewRegistry()
	reg.Declare("user", entity.KindPermission)
	reg.Declare("user", entity.KindRole, entity.KindPermission)

	require.True(t, reg.Interacts("user", entity.KindRole))
	require.False(t, reg.Interacts("user", entity.KindTeam))
	require.Equal(t, []entity.Kind{entity.KindPermission, entity.KindRole}, reg.Kinds("user"))
}
