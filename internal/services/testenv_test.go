package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/flowgate/flowgate/internal/database/testutil"
	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
)

type testEnv struct {
	db          *gorm.DB
	settings    *permissions.Settings
	checker     *AuthorizationChecker
	store       *AuthorizationService
	provisioner *ProvisioningService
	admin       Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	settings := permissions.NewSettings(true, []string{"admin"}, nil)

	checker, err := NewAuthorizationChecker(db, settings)
	require.NoError(t, err)

	store, err := NewAuthorizationService(db, checker, settings)
	require.NoError(t, err)

	provisioner, err := NewProvisioningService(store)
	require.NoError(t, err)

	return &testEnv{
		db:          db,
		settings:    settings,
		checker:     checker,
		store:       store,
		provisioner: provisioner,
		admin:       Principal{UserID: "admin"},
	}
}

// grant stores a rule as the admin principal and returns its id.
func (env *testEnv) grant(t *testing.T, authType models.AuthorizationType, userID, groupID string, resource permissions.Resource, resourceID string, perms ...permissions.Permission) *models.Authorization {
	t.Helper()

	auth := models.NewAuthorization(authType)
	if userID != "" {
		require.NoError(t, auth.SetUserID(userID))
	}
	if groupID != "" {
		require.NoError(t, auth.SetGroupID(groupID))
	}
	require.NoError(t, auth.SetResource(resource))
	auth.ResourceID = resourceID
	for _, perm := range perms {
		require.NoError(t, auth.AddPermission(perm))
	}

	_, err := env.store.Create(context.Background(), env.admin, auth)
	require.NoError(t, err)
	return auth
}
