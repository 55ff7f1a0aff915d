package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
	apperrors "github.com/flowgate/flowgate/pkg/errors"
)

func seedQueryFixture(t *testing.T, env *testEnv) {
	t.Helper()
	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Read, permissions.Update)
	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceTask, permissions.Any, permissions.Read)
	env.grant(t, models.AuthorizationGrant, "", "sales",
		permissions.ResourceProcessDefinition, permissions.Any, permissions.Read)
	env.grant(t, models.AuthorizationRevoke, "mary", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Update)
}

func TestQueryFiltersBySubjectAndResource(t *testing.T) {
	env := newTestEnv(t)
	seedQueryFixture(t, env)

	rows, err := env.store.Query(env.admin).UserIDIn("jonny").List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = env.store.Query(env.admin).
		UserIDIn("jonny").
		ResourceType(permissions.ResourceProcessDefinition.Type).
		List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "invoice", rows[0].ResourceID)

	count, err := env.store.Query(env.admin).GroupIDIn("sales").Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	rows, err = env.store.Query(env.admin).
		AuthorizationType(models.AuthorizationRevoke).
		List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "mary", rows[0].UserID)
}

func TestQueryUserAndGroupFiltersAreExclusive(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.Query(env.admin).
		UserIDIn("jonny").
		GroupIDIn("sales").
		List(context.Background())
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Contains(t, err.Error(), "user and group authorizations at the same time")
}

func TestQueryHasPermissionMatchesContainingMasks(t *testing.T) {
	env := newTestEnv(t)
	seedQueryFixture(t, env)

	// Three rules carry READ; only one carries READ and UPDATE.
	count, err := env.store.Query(env.admin).
		HasPermission(permissions.Read).
		Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	count, err = env.store.Query(env.admin).
		HasPermission(permissions.Read).
		HasPermission(permissions.Update).
		Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestQueryOrderingRequiresDirection(t *testing.T) {
	env := newTestEnv(t)
	seedQueryFixture(t, env)

	_, err := env.store.Query(env.admin).
		OrderByResourceType().
		List(context.Background())
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.store.Query(env.admin).Asc().List(context.Background())
	require.ErrorIs(t, err, apperrors.ErrValidation)

	rows, err := env.store.Query(env.admin).
		OrderByResourceType().Desc().
		OrderByResourceID().Asc().
		List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i := 1; i < len(rows); i++ {
		require.GreaterOrEqual(t, rows[i-1].ResourceType, rows[i].ResourceType)
	}
}

func TestQuerySingleResult(t *testing.T) {
	env := newTestEnv(t)
	seedQueryFixture(t, env)

	row, err := env.store.Query(env.admin).
		UserIDIn("mary").
		SingleResult(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, models.AuthorizationRevoke, row.Type)

	row, err = env.store.Query(env.admin).
		UserIDIn("nobody").
		SingleResult(context.Background())
	require.NoError(t, err)
	require.Nil(t, row)

	_, err = env.store.Query(env.admin).
		ResourceType(permissions.ResourceProcessDefinition.Type).
		SingleResult(context.Background())
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestQueryHidesRowsThePrincipalCannotRead(t *testing.T) {
	env := newTestEnv(t)
	seedQueryFixture(t, env)

	// Without a READ grant on the Authorization resource nothing is visible.
	rows, err := env.store.Query(Principal{UserID: "jonny"}).List(context.Background())
	require.NoError(t, err)
	require.Empty(t, rows)

	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceAuthorization, permissions.Any, permissions.Read)

	rows, err = env.store.Query(Principal{UserID: "jonny"}).List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)

	count, err := env.store.Query(Principal{UserID: "jonny"}).Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, count)
}
