package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
	apperrors "github.com/flowgate/flowgate/pkg/errors"
	"github.com/flowgate/flowgate/pkg/logger"
	"github.com/flowgate/flowgate/pkg/metrics"
)

// AuthorizationService persists authorization rules. It is self-governing:
// creating, updating and deleting rules is itself gated on the Authorization
// resource type unless the caller is an admin principal or checks are
// disabled.
type AuthorizationService struct {
	db       *gorm.DB
	checker  Authorizer
	settings *permissions.Settings
	log      *zap.Logger
}

// NewAuthorizationService constructs the rule store.
func NewAuthorizationService(db *gorm.DB, checker Authorizer, settings *permissions.Settings) (*AuthorizationService, error) {
	if db == nil {
		return nil, errors.New("authorization service: db is required")
	}
	if checker == nil {
		return nil, errors.New("authorization service: checker is required")
	}
	if settings == nil {
		return nil, errors.New("authorization service: settings are required")
	}
	return &AuthorizationService{
		db:       db,
		checker:  checker,
		settings: settings,
		log:      logger.WithModule("authorization"),
	}, nil
}

// Create validates and persists a new rule, assigning its id and revision 1.
func (s *AuthorizationService) Create(ctx context.Context, principal Principal, auth *models.Authorization) (string, error) {
	ctx = ensureContext(ctx)

	if err := s.checker.Require(ctx, principal, permissions.Create, permissions.ResourceAuthorization, ""); err != nil {
		metrics.StoreMutations.WithLabelValues("create", "failure").Inc()
		return "", err
	}

	if err := s.validate(auth); err != nil {
		metrics.StoreMutations.WithLabelValues("create", "failure").Inc()
		return "", err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, auth); err != nil {
			return err
		}

		auth.Revision = 1
		if err := tx.Create(auth).Error; err != nil {
			if isUniqueConstraintError(err) {
				return s.uniquenessError(auth)
			}
			return fmt.Errorf("authorization service: create: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.StoreMutations.WithLabelValues("create", "failure").Inc()
		return "", err
	}

	metrics.StoreMutations.WithLabelValues("create", "success").Inc()
	s.log.Info("authorization created",
		zap.String("id", auth.ID),
		zap.String("type", auth.Type.String()),
		zap.String("resource", permissions.ResourceName(auth.ResourceType)))
	return auth.ID, nil
}

// Update persists changes to an existing rule. The record must carry the
// revision last read; a stale revision is a concurrency failure, not a
// validation failure.
func (s *AuthorizationService) Update(ctx context.Context, principal Principal, auth *models.Authorization) error {
	ctx = ensureContext(ctx)

	if auth.ID == "" {
		return apperrors.NewValidation("Authorization 'id' is required for updates")
	}

	if err := s.checker.Require(ctx, principal, permissions.Update, permissions.ResourceAuthorization, auth.ID); err != nil {
		metrics.StoreMutations.WithLabelValues("update", "failure").Inc()
		return err
	}

	if err := s.validate(auth); err != nil {
		metrics.StoreMutations.WithLabelValues("update", "failure").Inc()
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, auth); err != nil {
			return err
		}

		result := tx.Model(&models.Authorization{}).
			Where("id = ? AND revision = ?", auth.ID, auth.Revision).
			Updates(map[string]any{
				"auth_type":     auth.Type,
				"user_id":       auth.UserID,
				"group_id":      auth.GroupID,
				"resource_type": auth.ResourceType,
				"resource_id":   auth.ResourceID,
				"permissions":   auth.Permissions,
				"revision":      auth.Revision + 1,
			})
		if result.Error != nil {
			if isUniqueConstraintError(result.Error) {
				return s.uniquenessError(auth)
			}
			return fmt.Errorf("authorization service: update: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Authorization{}).Where("id = ?", auth.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("authorization service: update: %w", err)
			}
			if count == 0 {
				return apperrors.ErrNotFound.WithMessage(fmt.Sprintf("Authorization with id '%s' does not exist", auth.ID))
			}
			return apperrors.ErrOptimisticLocking
		}
		return nil
	})
	if err != nil {
		metrics.StoreMutations.WithLabelValues("update", "failure").Inc()
		return err
	}

	auth.Revision++
	metrics.StoreMutations.WithLabelValues("update", "success").Inc()
	return nil
}

// Delete removes a rule by id. Deleting a missing id is a no-op.
func (s *AuthorizationService) Delete(ctx context.Context, principal Principal, id string) error {
	ctx = ensureContext(ctx)

	if err := s.checker.Require(ctx, principal, permissions.Delete, permissions.ResourceAuthorization, id); err != nil {
		metrics.StoreMutations.WithLabelValues("delete", "failure").Inc()
		return err
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Authorization{}).Error; err != nil {
		metrics.StoreMutations.WithLabelValues("delete", "failure").Inc()
		return fmt.Errorf("authorization service: delete: %w", err)
	}

	metrics.StoreMutations.WithLabelValues("delete", "success").Inc()
	return nil
}

// Get loads a single rule by id, gated on read access to it.
func (s *AuthorizationService) Get(ctx context.Context, principal Principal, id string) (*models.Authorization, error) {
	ctx = ensureContext(ctx)

	if err := s.checker.Require(ctx, principal, permissions.Read, permissions.ResourceAuthorization, id); err != nil {
		return nil, err
	}

	var auth models.Authorization
	if err := s.db.WithContext(ctx).First(&auth, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage(fmt.Sprintf("Authorization with id '%s' does not exist", id))
		}
		return nil, fmt.Errorf("authorization service: get: %w", err)
	}
	return &auth, nil
}

// Query starts a filterable search over the rule set for the principal.
func (s *AuthorizationService) Query(principal Principal) *AuthorizationQuery {
	return newAuthorizationQuery(s.db, s.checker, s.settings, principal)
}

// validate runs the record's save-time checks and applies the defaults the
// store owns.
func (s *AuthorizationService) validate(auth *models.Authorization) error {
	if auth == nil {
		return apperrors.NewValidation("Authorization is required")
	}
	if err := auth.Validate(); err != nil {
		return err
	}

	// Wildcard scope is the default when no concrete instance is named.
	if auth.ResourceID == "" {
		auth.ResourceID = permissions.Any
	}
	return nil
}

// DeleteForUser removes every rule naming the user as subject. It is a
// cascade helper for identity lifecycle cleanup and is not gated.
func (s *AuthorizationService) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	if userID == "" || userID == permissions.Any {
		return 0, nil
	}
	result := s.db.WithContext(ensureContext(ctx)).
		Where("user_id = ?", userID).
		Delete(&models.Authorization{})
	if result.Error != nil {
		return 0, fmt.Errorf("authorization service: delete for user: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteForGroup removes every rule naming the group as subject.
func (s *AuthorizationService) DeleteForGroup(ctx context.Context, groupID string) (int64, error) {
	if groupID == "" {
		return 0, nil
	}
	result := s.db.WithContext(ensureContext(ctx)).
		Where("group_id = ?", groupID).
		Delete(&models.Authorization{})
	if result.Error != nil {
		return 0, fmt.Errorf("authorization service: delete for group: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteForResource removes every rule scoped to a concrete resource
// instance, used when the resource itself disappears.
func (s *AuthorizationService) DeleteForResource(ctx context.Context, resourceType int, resourceID string) (int64, error) {
	if resourceID == "" || resourceID == permissions.Any {
		return 0, nil
	}
	result := s.db.WithContext(ensureContext(ctx)).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Delete(&models.Authorization{})
	if result.Error != nil {
		return 0, fmt.Errorf("authorization service: delete for resource: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// checkUnique enforces at most one rule per subject and resource scope,
// independent of the authorization type.
func (s *AuthorizationService) checkUnique(tx *gorm.DB, auth *models.Authorization) error {
	query := tx.Model(&models.Authorization{}).
		Where("resource_type = ? AND resource_id = ?", auth.ResourceType, auth.ResourceID)

	if auth.HasUserSubject() {
		query = query.Where("user_id = ?", auth.UserID)
	} else {
		query = query.Where("group_id = ?", auth.GroupID)
	}
	if auth.ID != "" {
		query = query.Where("id <> ?", auth.ID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("authorization service: uniqueness check: %w", err)
	}
	if count > 0 {
		return s.uniquenessError(auth)
	}
	return nil
}

func (s *AuthorizationService) uniquenessError(auth *models.Authorization) error {
	subject := ""
	switch {
	case auth.HasUserSubject():
		subject = fmt.Sprintf("user '%s'", auth.UserID)
	case auth.HasGroupSubject():
		subject = fmt.Sprintf("group '%s'", auth.GroupID)
	}
	return apperrors.ErrUniqueness.WithMessage(fmt.Sprintf(
		"An authorization for %s on resource '%s' with id '%s' already exists",
		subject, permissions.ResourceName(auth.ResourceType), auth.ResourceID))
}

// insert persists a rule without the self-governance gate. It backs the
// default-provisioning collaborator, which acts as the system itself.
func (s *AuthorizationService) insert(ctx context.Context, auth *models.Authorization) error {
	if err := s.validate(auth); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkUnique(tx, auth); err != nil {
			return err
		}
		auth.Revision = 1
		if err := tx.Create(auth).Error; err != nil {
			if isUniqueConstraintError(err) {
				return s.uniquenessError(auth)
			}
			return fmt.Errorf("authorization service: create: %w", err)
		}
		return nil
	})
}
