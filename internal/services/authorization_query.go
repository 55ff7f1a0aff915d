package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/flowgate/flowgate/internal/models"
	"github.com/flowgate/flowgate/internal/permissions"
	apperrors "github.com/flowgate/flowgate/pkg/errors"
)

// AuthorizationQuery accumulates filters and ordering for a search over the
// rule set. Filters and ordering are chainable; the first misuse is recorded
// and surfaced at the terminal call.
type AuthorizationQuery struct {
	db        *gorm.DB
	checker   Authorizer
	settings  *permissions.Settings
	principal Principal

	userIDs      []string
	groupIDs     []string
	resourceType *int
	resourceID   *string
	authType     *models.AuthorizationType
	permMasks    []int

	orderClauses []string
	pendingOrder string
	err          error
}

func newAuthorizationQuery(db *gorm.DB, checker Authorizer, settings *permissions.Settings, principal Principal) *AuthorizationQuery {
	return &AuthorizationQuery{
		db:        db,
		checker:   checker,
		settings:  settings,
		principal: principal,
	}
}

func (q *AuthorizationQuery) fail(err error) *AuthorizationQuery {
	if q.err == nil {
		q.err = err
	}
	return q
}

// UserIDIn restricts results to rules whose subject is one of the users.
func (q *AuthorizationQuery) UserIDIn(ids ...string) *AuthorizationQuery {
	if len(q.groupIDs) > 0 {
		return q.fail(apperrors.NewValidation("Cannot query for user and group authorizations at the same time"))
	}
	q.userIDs = append(q.userIDs, ids...)
	return q
}

// GroupIDIn restricts results to rules whose subject is one of the groups.
func (q *AuthorizationQuery) GroupIDIn(ids ...string) *AuthorizationQuery {
	if len(q.userIDs) > 0 {
		return q.fail(apperrors.NewValidation("Cannot query for user and group authorizations at the same time"))
	}
	q.groupIDs = append(q.groupIDs, ids...)
	return q
}

// ResourceType restricts results to one resource type.
func (q *AuthorizationQuery) ResourceType(resourceType int) *AuthorizationQuery {
	q.resourceType = &resourceType
	return q
}

// ResourceID restricts results to one resource scope.
func (q *AuthorizationQuery) ResourceID(resourceID string) *AuthorizationQuery {
	q.resourceID = &resourceID
	return q
}

// AuthorizationType restricts results to one rule type.
func (q *AuthorizationQuery) AuthorizationType(authType models.AuthorizationType) *AuthorizationQuery {
	q.authType = &authType
	return q
}

// HasPermission keeps rules whose bitmask contains every bit of the
// permission. Repeated calls are conjunctive.
func (q *AuthorizationQuery) HasPermission(perm permissions.Permission) *AuthorizationQuery {
	q.permMasks = append(q.permMasks, perm.Value)
	return q
}

// OrderByResourceType stages an ordering; Asc or Desc must follow.
func (q *AuthorizationQuery) OrderByResourceType() *AuthorizationQuery {
	return q.stageOrder("resource_type")
}

// OrderByResourceID stages an ordering; Asc or Desc must follow.
func (q *AuthorizationQuery) OrderByResourceID() *AuthorizationQuery {
	return q.stageOrder("resource_id")
}

func (q *AuthorizationQuery) stageOrder(column string) *AuthorizationQuery {
	if q.pendingOrder != "" {
		return q.fail(apperrors.NewValidation(fmt.Sprintf(
			"Invalid query: call asc() or desc() after ordering by '%s'", q.pendingOrder)))
	}
	q.pendingOrder = column
	return q
}

// Asc directs the most recently staged ordering.
func (q *AuthorizationQuery) Asc() *AuthorizationQuery {
	return q.direct("ASC")
}

// Desc directs the most recently staged ordering.
func (q *AuthorizationQuery) Desc() *AuthorizationQuery {
	return q.direct("DESC")
}

func (q *AuthorizationQuery) direct(direction string) *AuthorizationQuery {
	if q.pendingOrder == "" {
		return q.fail(apperrors.NewValidation("Invalid query: call an orderBy method before asc() or desc()"))
	}
	q.orderClauses = append(q.orderClauses, q.pendingOrder+" "+direction)
	q.pendingOrder = ""
	return q
}

func (q *AuthorizationQuery) build(ctx context.Context) (*gorm.DB, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.pendingOrder != "" {
		return nil, apperrors.NewValidation(fmt.Sprintf(
			"Invalid query: call asc() or desc() after ordering by '%s'", q.pendingOrder))
	}

	tx := q.db.WithContext(ctx).Model(&models.Authorization{})

	if len(q.userIDs) > 0 {
		tx = tx.Where("user_id IN ?", q.userIDs)
	}
	if len(q.groupIDs) > 0 {
		tx = tx.Where("group_id IN ?", q.groupIDs)
	}
	if q.resourceType != nil {
		tx = tx.Where("resource_type = ?", *q.resourceType)
	}
	if q.resourceID != nil {
		tx = tx.Where("resource_id = ?", *q.resourceID)
	}
	if q.authType != nil {
		tx = tx.Where("auth_type = ?", *q.authType)
	}
	for _, mask := range q.permMasks {
		tx = tx.Where("permissions & ? = ?", mask, mask)
	}
	if len(q.orderClauses) > 0 {
		tx = tx.Order(strings.Join(q.orderClauses, ", "))
	}
	return tx, nil
}

// List returns all matching rules the principal may read.
func (q *AuthorizationQuery) List(ctx context.Context) ([]models.Authorization, error) {
	ctx = ensureContext(ctx)

	tx, err := q.build(ctx)
	if err != nil {
		return nil, err
	}

	var rows []models.Authorization
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("authorization query: list: %w", err)
	}
	return q.readable(ctx, rows)
}

// Count returns the number of matching rules the principal may read.
func (q *AuthorizationQuery) Count(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	if q.bypassReadGate() {
		tx, err := q.build(ctx)
		if err != nil {
			return 0, err
		}
		var count int64
		if err := tx.Count(&count).Error; err != nil {
			return 0, fmt.Errorf("authorization query: count: %w", err)
		}
		return count, nil
	}

	rows, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// SingleResult returns the sole matching rule, nil if none match, and an
// error if more than one matches.
func (q *AuthorizationQuery) SingleResult(ctx context.Context) (*models.Authorization, error) {
	rows, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, apperrors.NewValidation(fmt.Sprintf(
			"Query returned %d results when at most one was expected", len(rows)))
	}
}

func (q *AuthorizationQuery) bypassReadGate() bool {
	if !q.settings.Enabled() {
		return true
	}
	return q.settings.IsAdmin(q.principal.UserID, q.principal.GroupIDs)
}

// readable keeps the rows the principal can read. Admins and disabled
// checking see everything.
func (q *AuthorizationQuery) readable(ctx context.Context, rows []models.Authorization) ([]models.Authorization, error) {
	if q.bypassReadGate() {
		return rows, nil
	}

	visible := make([]models.Authorization, 0, len(rows))
	for _, row := range rows {
		ok, err := q.checker.IsAuthorized(ctx, q.principal.UserID, q.principal.GroupIDs, permissions.Read, permissions.ResourceAuthorization, row.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, row)
		}
	}
	return visible, nil
}
