package main

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/flowgate/flowgate/internal/app"
	"github.com/flowgate/flowgate/internal/database"
	"github.com/flowgate/flowgate/internal/permissions"
	"github.com/flowgate/flowgate/internal/services"
)

// runtimeStack bundles the long-lived collaborators of the decision engine.
type runtimeStack struct {
	DB          *gorm.DB
	Settings    *permissions.Settings
	Checker     *services.AuthorizationChecker
	Store       *services.AuthorizationService
	Provisioner *services.ProvisioningService
}

// bootstrapRuntime opens the database, migrates the schema and wires the
// authorization services from configuration.
func bootstrapRuntime(cfg *app.Config) (*runtimeStack, error) {
	db, err := database.Open(cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	settings := cfg.Settings()

	checker, err := services.NewAuthorizationChecker(db, settings)
	if err != nil {
		return nil, err
	}

	store, err := services.NewAuthorizationService(db, checker, settings)
	if err != nil {
		return nil, err
	}

	provisioner, err := services.NewProvisioningService(store)
	if err != nil {
		return nil, err
	}

	return &runtimeStack{
		DB:          db,
		Settings:    settings,
		Checker:     checker,
		Store:       store,
		Provisioner: provisioner,
	}, nil
}

// Shutdown releases the database connection.
func (s *runtimeStack) Shutdown() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
