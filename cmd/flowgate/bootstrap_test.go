package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/internal/app"
	"github.com/flowgate/flowgate/internal/permissions"
)

func TestBootstrapRuntimeWiresServices(t *testing.T) {
	cfg := &app.Config{
		Database: app.DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:bootstrap_test?mode=memory&cache=shared&_foreign_keys=1",
		},
		Authorization: app.AuthorizationConfig{
			Enabled:    true,
			AdminUsers: []string{"admin"},
		},
	}

	stack, err := bootstrapRuntime(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, stack.Shutdown())
	})

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Checker)
	require.NotNil(t, stack.Store)
	require.NotNil(t, stack.Provisioner)
	require.True(t, stack.Settings.IsAdmin("admin", nil))

	// The schema is migrated and the store usable straight away.
	require.NoError(t, stack.Provisioner.OnUserCreated(context.Background(), "jonny"))

	ok, err := stack.Checker.IsAuthorized(context.Background(), "jonny", nil,
		permissions.Read, permissions.ResourceUser, "jonny")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBootstrapRuntimeRejectsUnknownDriver(t *testing.T) {
	cfg := &app.Config{
		Database: app.DatabaseConfig{Driver: "oracle"},
	}

	_, err := bootstrapRuntime(cfg)
	require.Error(t, err)
}
