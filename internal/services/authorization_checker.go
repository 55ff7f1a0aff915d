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

// Authorizer abstracts the decision function for services and tests.
type Authorizer interface {
	IsAuthorized(ctx context.Context, userID string, groupIDs []string, perm permissions.Permission, resource permissions.Resource, resourceID string) (bool, error)
	Require(ctx context.Context, principal Principal, perm permissions.Permission, resource permissions.Resource, resourceID string) error
}

// AuthorizationChecker resolves whether a subject holds a permission on a
// resource by folding the stored authorization rules.
type AuthorizationChecker struct {
	db       *gorm.DB
	settings *permissions.Settings
	log      *zap.Logger
}

var _ Authorizer = (*AuthorizationChecker)(nil)

// NewAuthorizationChecker constructs a checker backed by the provided
// database and runtime settings.
func NewAuthorizationChecker(db *gorm.DB, settings *permissions.Settings) (*AuthorizationChecker, error) {
	if db == nil {
		return nil, errors.New("authorization checker: db is required")
	}
	if settings == nil {
		return nil, errors.New("authorization checker: settings are required")
	}
	return &AuthorizationChecker{
		db:       db,
		settings: settings,
		log:      logger.WithModule("authorization"),
	}, nil
}

// IsAuthorized reports whether the user, or one of its groups, holds every
// bit of perm on the resource scope. An empty resourceID queries the
// type-wide scope, matching only wildcard rules.
func (c *AuthorizationChecker) IsAuthorized(ctx context.Context, userID string, groupIDs []string, perm permissions.Permission, resource permissions.Resource, resourceID string) (bool, error) {
	outcome, err := c.resolve(ctx, userID, groupIDs, perm, resource, resourceID)
	if err != nil {
		metrics.AuthorizationDecisions.WithLabelValues(resource.Name, "error").Inc()
		return false, err
	}

	result := "deny"
	if outcome.authorized {
		result = "allow"
	}
	metrics.AuthorizationDecisions.WithLabelValues(resource.Name, result).Inc()
	return outcome.authorized, nil
}

// Require returns nil when the principal may perform the operation. A denial
// with no applicable rule at all is reported as the admin requirement,
// distinct from the permission-specific denial.
func (c *AuthorizationChecker) Require(ctx context.Context, principal Principal, perm permissions.Permission, resource permissions.Resource, resourceID string) error {
	outcome, err := c.resolve(ctx, principal.UserID, principal.GroupIDs, perm, resource, resourceID)
	if err != nil {
		return err
	}
	if outcome.authorized {
		return nil
	}

	c.log.Debug("authorization denied",
		zap.String("user_id", principal.UserID),
		zap.String("permission", perm.Name),
		zap.String("resource", resource.Name),
		zap.String("resource_id", resourceID),
		zap.Int("candidate_rules", outcome.candidates))

	if outcome.candidates == 0 {
		return apperrors.ErrAdminRequired
	}
	return apperrors.NewAuthorizationDenied(perm.Name, resource.Name, resourceID)
}

type decisionOutcome struct {
	authorized bool
	candidates int
}

// tierMasks folds one precedence tier: granted bits from GLOBAL/GRANT rules,
// revoked bits from REVOKE rules.
type tierMasks struct {
	granted int
	revoked int
}

func (c *AuthorizationChecker) resolve(ctx context.Context, userID string, groupIDs []string, perm permissions.Permission, resource permissions.Resource, resourceID string) (decisionOutcome, error) {
	ctx = ensureContext(ctx)

	if !c.settings.Enabled() {
		return decisionOutcome{authorized: true}, nil
	}

	if c.settings.IsAdmin(userID, groupIDs) {
		metrics.AdminBypasses.Inc()
		return decisionOutcome{authorized: true}, nil
	}

	if _, ok := permissions.ResourceByType(resource.Type); !ok {
		return decisionOutcome{}, fmt.Errorf("authorization checker: unknown resource type %d", resource.Type)
	}
	if !permissions.IsValid(resource.Type, perm) {
		return decisionOutcome{}, apperrors.NewInvalidPermission(perm.Name, resource.Name)
	}

	groupIDs = normaliseIDs(groupIDs)
	if userID == "" && len(groupIDs) == 0 {
		return decisionOutcome{}, nil
	}

	rows, err := c.candidates(ctx, userID, groupIDs, resource, resourceID)
	if err != nil {
		return decisionOutcome{}, fmt.Errorf("authorization checker: load candidates: %w", err)
	}

	var user, group, global tierMasks
	matched := 0

	for _, row := range rows {
		var tier *tierMasks
		switch {
		case row.UserID == permissions.Any:
			tier = &global
		case userID != "" && row.UserID == userID:
			tier = &user
		case containsString(groupIDs, row.GroupID):
			tier = &group
		default:
			continue
		}

		matched++
		if row.Type == models.AuthorizationRevoke {
			tier.revoked |= row.Permissions
		} else {
			tier.granted |= row.Permissions
		}
	}

	// Per-bit precedence: the most specific tier that addresses a bit governs
	// it; unaddressed bits fall through, and bits no tier addresses deny.
	resolved, handled := 0, 0
	for _, tier := range []tierMasks{user, group, global} {
		addressed := (tier.granted | tier.revoked) &^ handled
		resolved |= (tier.granted &^ tier.revoked) & addressed
		handled |= addressed
	}

	return decisionOutcome{
		authorized: resolved&perm.Value == perm.Value,
		candidates: matched,
	}, nil
}

func (c *AuthorizationChecker) candidates(ctx context.Context, userID string, groupIDs []string, resource permissions.Resource, resourceID string) ([]models.Authorization, error) {
	query := c.db.WithContext(ctx).
		Model(&models.Authorization{}).
		Where("resource_type = ?", resource.Type)

	if resourceID == "" || resourceID == permissions.Any {
		query = query.Where("resource_id = ?", permissions.Any)
	} else {
		query = query.Where("resource_id IN ?", []string{permissions.Any, resourceID})
	}

	subject := c.db.Where("user_id = ?", permissions.Any)
	if userID != "" {
		subject = subject.Or("user_id = ?", userID)
	}
	if len(groupIDs) > 0 {
		subject = subject.Or("group_id IN ?", groupIDs)
	}

	var rows []models.Authorization
	if err := query.Where(subject).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
