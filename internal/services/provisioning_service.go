package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
	"github.com/flowgate/flowgate/pkg/logger"
)

// LifecycleListener receives identity lifecycle events so the rule set can
// be provisioned and cleaned up alongside users, groups and tenants.
type LifecycleListener interface {
	OnUserCreated(ctx context.Context, userID string) error
	OnGroupCreated(ctx context.Context, groupID, creatorUserID string) error
	OnUserDeleted(ctx context.Context, userID string) error
	OnGroupDeleted(ctx context.Context, groupID string) error
	OnTenantDeleted(ctx context.Context, tenantID string) error
	OnMembershipCreated(ctx context.Context, userID, groupID string) error
	OnMembershipDeleted(ctx context.Context, userID, groupID string) error
}

// ProvisioningService seeds default rules when identities appear and removes
// rules that reference identities which no longer exist. It writes as the
// system itself, bypassing the self-governance gate.
type ProvisioningService struct {
	store *AuthorizationService
	log   *zap.Logger
}

var _ LifecycleListener = (*ProvisioningService)(nil)

// NewProvisioningService constructs the lifecycle listener.
func NewProvisioningService(store *AuthorizationService) (*ProvisioningService, error) {
	if store == nil {
		return nil, errors.New("provisioning service: store is required")
	}
	return &ProvisioningService{
		store: store,
		log:   logger.WithModule("provisioning"),
	}, nil
}

// OnUserCreated grants a new user full permissions on their own user
// resource so they can manage their own account.
func (s *ProvisioningService) OnUserCreated(ctx context.Context, userID string) error {
	if userID == "" || userID == permissions.Any {
		return nil
	}

	auth := models.NewAuthorization(models.AuthorizationGrant)
	if err := auth.SetUserID(userID); err != nil {
		return err
	}
	if err := auth.SetResource(permissions.ResourceUser); err != nil {
		return err
	}
	auth.ResourceID = userID
	if err := auth.AddPermission(permissions.All); err != nil {
		return err
	}

	if err := s.store.insert(ensureContext(ctx), auth); err != nil {
		return fmt.Errorf("provisioning: user '%s': %w", userID, err)
	}
	s.log.Info("default user authorization created", zap.String("user_id", userID))
	return nil
}

// OnGroupCreated grants the creating user full permissions on the new group.
func (s *ProvisioningService) OnGroupCreated(ctx context.Context, groupID, creatorUserID string) error {
	if groupID == "" || creatorUserID == "" || creatorUserID == permissions.Any {
		return nil
	}

	auth := models.NewAuthorization(models.AuthorizationGrant)
	if err := auth.SetUserID(creatorUserID); err != nil {
		return err
	}
	if err := auth.SetResource(permissions.ResourceGroup); err != nil {
		return err
	}
	auth.ResourceID = groupID
	if err := auth.AddPermission(permissions.All); err != nil {
		return err
	}

	if err := s.store.insert(ensureContext(ctx), auth); err != nil {
		return fmt.Errorf("provisioning: group '%s': %w", groupID, err)
	}
	s.log.Info("default group authorization created",
		zap.String("group_id", groupID), zap.String("creator", creatorUserID))
	return nil
}

// OnUserDeleted removes every rule naming the user as subject and every rule
// scoped to the user's own resource.
func (s *ProvisioningService) OnUserDeleted(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	bySubject, err := s.store.DeleteForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("provisioning: user cascade '%s': %w", userID, err)
	}
	byResource, err := s.store.DeleteForResource(ctx, permissions.ResourceUser.Type, userID)
	if err != nil {
		return fmt.Errorf("provisioning: user cascade '%s': %w", userID, err)
	}

	if total := bySubject + byResource; total > 0 {
		s.log.Info("user authorizations removed",
			zap.String("user_id", userID), zap.Int64("count", total))
	}
	return nil
}

// OnGroupDeleted removes every rule naming the group as subject and every
// rule scoped to the group's own resource, including membership scopes.
func (s *ProvisioningService) OnGroupDeleted(ctx context.Context, groupID string) error {
	ctx = ensureContext(ctx)

	total, err := s.store.DeleteForGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("provisioning: group cascade '%s': %w", groupID, err)
	}
	for _, resourceType := range []int{permissions.ResourceGroup.Type, permissions.ResourceGroupMembership.Type} {
		removed, err := s.store.DeleteForResource(ctx, resourceType, groupID)
		if err != nil {
			return fmt.Errorf("provisioning: group cascade '%s': %w", groupID, err)
		}
		total += removed
	}

	if total > 0 {
		s.log.Info("group authorizations removed",
			zap.String("group_id", groupID), zap.Int64("count", total))
	}
	return nil
}

// OnTenantDeleted removes rules scoped to the tenant and its memberships.
func (s *ProvisioningService) OnTenantDeleted(ctx context.Context, tenantID string) error {
	ctx = ensureContext(ctx)

	var total int64
	for _, resourceType := range []int{permissions.ResourceTenant.Type, permissions.ResourceTenantMembership.Type} {
		removed, err := s.store.DeleteForResource(ctx, resourceType, tenantID)
		if err != nil {
			return fmt.Errorf("provisioning: tenant cascade '%s': %w", tenantID, err)
		}
		total += removed
	}

	if total > 0 {
		s.log.Info("tenant authorizations removed",
			zap.String("tenant_id", tenantID), zap.Int64("count", total))
	}
	return nil
}

// OnMembershipCreated is informational. Group membership changes take effect
// on the next decision because candidate selection reads the membership set
// from the principal, not from stored state.
func (s *ProvisioningService) OnMembershipCreated(ctx context.Context, userID, groupID string) error {
	return nil
}

// OnMembershipDeleted mirrors OnMembershipCreated.
func (s *ProvisioningService) OnMembershipDeleted(ctx context.Context, userID, groupID string) error {
	return nil
}
