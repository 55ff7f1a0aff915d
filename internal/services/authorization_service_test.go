package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
	apperrors "github.com/flowgate/flowgate/pkg/errors"
)

func TestCreateAssignsIDAndInitialRevision(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))
	auth.ResourceID = "invoice"
	require.NoError(t, auth.AddPermission(permissions.Read))

	id, err := env.store.Create(context.Background(), env.admin, auth)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.EqualValues(t, 1, auth.Revision)

	loaded, err := env.store.Get(context.Background(), env.admin, id)
	require.NoError(t, err)
	require.Equal(t, auth.Permissions, loaded.Permissions)
	require.Equal(t, "invoice", loaded.ResourceID)
}

func TestCreateRequiresExactlyOneSubject(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))

	_, err := env.store.Create(context.Background(), env.admin, auth)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Authorization must either have a 'userId' or a 'groupId'.")

	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetGroupID("sales"))
	_, err = env.store.Create(context.Background(), env.admin, auth)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Authorization must either have a 'userId' or a 'groupId'.")
}

func TestCreateRequiresResourceType(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetUserID("jonny"))

	_, err := env.store.Create(context.Background(), env.admin, auth)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Authorization 'resourceType' cannot be null.")
}

func TestCreateRejectsWildcardGroup(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetGroupID(permissions.Any))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))

	_, err := env.store.Create(context.Background(), env.admin, auth)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateDefaultsResourceIDToWildcard(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))
	require.NoError(t, auth.AddPermission(permissions.Read))

	_, err := env.store.Create(context.Background(), env.admin, auth)
	require.NoError(t, err)
	require.Equal(t, permissions.Any, auth.ResourceID)
}

func TestDuplicateSubjectAndScopeIsRejectedAcrossTypes(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Read)

	// Same subject and scope with a different rule type still collides.
	duplicate := models.NewAuthorization(models.AuthorizationRevoke)
	require.NoError(t, duplicate.SetUserID("jonny"))
	require.NoError(t, duplicate.SetResource(permissions.ResourceProcessDefinition))
	duplicate.ResourceID = "invoice"
	require.NoError(t, duplicate.AddPermission(permissions.Read))

	_, err := env.store.Create(context.Background(), env.admin, duplicate)
	require.ErrorIs(t, err, apperrors.ErrUniqueness)

	// A different scope is fine.
	duplicate.ID = ""
	duplicate.ResourceID = "order"
	_, err = env.store.Create(context.Background(), env.admin, duplicate)
	require.NoError(t, err)
}

func TestDuplicateInsertRejectedByDatabase(t *testing.T) {
	env := newTestEnv(t)

	userRow := func(authType models.AuthorizationType) *models.Authorization {
		auth := models.NewAuthorization(authType)
		require.NoError(t, auth.SetUserID("jonny"))
		require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))
		auth.ResourceID = "invoice"
		auth.Revision = 1
		return auth
	}

	// Insert directly, skipping the service's uniqueness pre-read: the
	// schema's unique index must refuse the second row on its own, even
	// when the rule type differs.
	require.NoError(t, env.db.Create(userRow(models.AuthorizationGrant)).Error)

	err := env.db.Create(userRow(models.AuthorizationRevoke)).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))

	groupRow := func() *models.Authorization {
		auth := models.NewAuthorization(models.AuthorizationGrant)
		require.NoError(t, auth.SetGroupID("sales"))
		require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))
		auth.ResourceID = "invoice"
		auth.Revision = 1
		return auth
	}

	require.NoError(t, env.db.Create(groupRow()).Error)

	err = env.db.Create(groupRow()).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))
}

func TestUpdateBumpsRevision(t *testing.T) {
	env := newTestEnv(t)
	auth := env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Read)

	require.NoError(t, auth.AddPermission(permissions.Update))
	require.NoError(t, env.store.Update(context.Background(), env.admin, auth))
	require.EqualValues(t, 2, auth.Revision)

	loaded, err := env.store.Get(context.Background(), env.admin, auth.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, loaded.Revision)
	require.True(t, loaded.HasPermission(permissions.Update))
}

func TestStaleRevisionFailsOptimisticLocking(t *testing.T) {
	env := newTestEnv(t)
	auth := env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Read)

	stale := *auth
	require.NoError(t, env.store.Update(context.Background(), env.admin, auth))

	require.NoError(t, stale.AddPermission(permissions.Delete))
	err := env.store.Update(context.Background(), env.admin, &stale)
	require.ErrorIs(t, err, apperrors.ErrOptimisticLocking)
}

func TestUpdateMissingAuthorizationIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	auth.ID = "00000000-0000-0000-0000-000000000000"
	auth.Revision = 1
	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))

	err := env.store.Update(context.Background(), env.admin, auth)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	auth := env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, "invoice", permissions.Read)

	require.NoError(t, env.store.Delete(context.Background(), env.admin, auth.ID))
	require.NoError(t, env.store.Delete(context.Background(), env.admin, auth.ID))

	_, err := env.store.Get(context.Background(), env.admin, auth.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStoreIsSelfGoverning(t *testing.T) {
	env := newTestEnv(t)
	nobody := Principal{UserID: "nobody"}

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))

	_, err := env.store.Create(context.Background(), nobody, auth)
	require.ErrorIs(t, err, apperrors.ErrAdminRequired)

	// A wildcard grant on the Authorization resource opens the store up.
	env.grant(t, models.AuthorizationGrant, "nobody", "",
		permissions.ResourceAuthorization, permissions.Any,
		permissions.Create, permissions.Read, permissions.Update, permissions.Delete)

	id, err := env.store.Create(context.Background(), nobody, auth)
	require.NoError(t, err)

	loaded, err := env.store.Get(context.Background(), nobody, id)
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(context.Background(), nobody, loaded.ID))
}

func TestCascadeHelpersDeleteBySubjectAndScope(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceProcessDefinition, permissions.Any, permissions.Read)
	env.grant(t, models.AuthorizationGrant, "jonny", "",
		permissions.ResourceTask, "task-1", permissions.Read)
	env.grant(t, models.AuthorizationGrant, "", "sales",
		permissions.ResourceTask, "task-1", permissions.Read)

	removed, err := env.store.DeleteForUser(context.Background(), "jonny")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	removed, err = env.store.DeleteForResource(context.Background(),
		permissions.ResourceTask.Type, "task-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	// Wildcard and empty arguments never match anything.
	removed, err = env.store.DeleteForUser(context.Background(), permissions.Any)
	require.NoError(t, err)
	require.Zero(t, removed)
	removed, err = env.store.DeleteForGroup(context.Background(), "")
	require.NoError(t, err)
	require.Zero(t, removed)
	removed, err = env.store.DeleteForResource(context.Background(),
		permissions.ResourceTask.Type, permissions.Any)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestDisabledCheckingSkipsStoreGate(t *testing.T) {
	env := newTestEnv(t)
	env.settings.SetEnabled(false)

	auth := models.NewAuthorization(models.AuthorizationGrant)
	require.NoError(t, auth.SetUserID("jonny"))
	require.NoError(t, auth.SetResource(permissions.ResourceProcessDefinition))
	require.NoError(t, auth.AddPermission(permissions.Read))

	_, err := env.store.Create(context.Background(), Principal{}, auth)
	require.NoError(t, err)
}
