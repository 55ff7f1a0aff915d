package models

import (
	"fmt"

	"go.uber.org/multierr"

	apperrors "github.com/flowgate/flowgate/pkg/errors"

	"github.com/flowgate/flowgate/internal/permissions"
)

// AuthorizationType distinguishes the three rule kinds.
type AuthorizationType int

const (
	// AuthorizationGlobal applies to every user; its subject is always the
	// wildcard user id.
	AuthorizationGlobal AuthorizationType = 0
	// AuthorizationGrant gives permissions to a user or group.
	AuthorizationGrant AuthorizationType = 1
	// AuthorizationRevoke takes permissions away from a user or group.
	AuthorizationRevoke AuthorizationType = 2
)

func (t AuthorizationType) String() string {
	switch t {
	case AuthorizationGlobal:
		return "GLOBAL"
	case AuthorizationGrant:
		return "GRANT"
	case AuthorizationRevoke:
		return "REVOKE"
	default:
		return fmt.Sprintf("AuthorizationType(%d)", int(t))
	}
}

// Valid reports whether t is one of the three declared rule kinds.
func (t AuthorizationType) Valid() bool {
	switch t {
	case AuthorizationGlobal, AuthorizationGrant, AuthorizationRevoke:
		return true
	}
	return false
}

// Authorization is a persisted access-control rule binding a subject to a
// permission bitmask on a resource scope. Exactly one of UserID/GroupID is
// set; the wildcard '*' as UserID means "every user", the wildcard as
// ResourceID means "every instance of the resource type".
type Authorization struct {
	BaseModel

	// Revision backs optimistic locking: updates must supply the revision
	// last read and the store increments it on every successful write.
	Revision int64 `gorm:"not null;default:0" json:"revision"`

	Type AuthorizationType `gorm:"column:auth_type;not null;index" json:"type"`

	// The absent subject side is stored as the empty string, never NULL.
	// NULLs compare distinct in unique indexes on every supported backend,
	// which would let duplicate subject+resource rows through.
	UserID       string            `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_authorizations_subject_resource,priority:1" json:"user_id"`
	GroupID      string            `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_authorizations_subject_resource,priority:2" json:"group_id"`
	ResourceType int               `gorm:"not null;uniqueIndex:idx_authorizations_subject_resource,priority:3;index:idx_authorizations_resource,priority:1" json:"resource_type"`
	ResourceID   string            `gorm:"type:varchar(64);uniqueIndex:idx_authorizations_subject_resource,priority:4;index:idx_authorizations_resource,priority:2" json:"resource_id"`
	Permissions  int               `gorm:"not null;default:0" json:"permissions"`
}

// TableName overrides the default table name for GORM.
func (Authorization) TableName() string {
	return "authorizations"
}

// NewAuthorization stamps the rule kind and zero permissions. GLOBAL rules
// get the wildcard user subject immediately.
func NewAuthorization(authType AuthorizationType) *Authorization {
	auth := &Authorization{Type: authType, ResourceType: -1}
	if authType == AuthorizationGlobal {
		auth.UserID = permissions.Any
	}
	return auth
}

// SetUserID assigns the user subject. GLOBAL rules only accept the wildcard.
func (a *Authorization) SetUserID(userID string) error {
	if a.Type == AuthorizationGlobal && userID != permissions.Any {
		return apperrors.NewValidation(fmt.Sprintf(
			"Illegal value '%s' for userId for GLOBAL authorization. Must be '%s'", userID, permissions.Any))
	}
	a.UserID = userID
	return nil
}

// SetGroupID assigns the group subject. GLOBAL rules cannot target groups.
func (a *Authorization) SetGroupID(groupID string) error {
	if a.Type == AuthorizationGlobal {
		return apperrors.NewValidation("Cannot use 'groupId' for GLOBAL authorization")
	}
	a.GroupID = groupID
	return nil
}

// SetResource assigns the resource type after verifying already-held bits
// remain declared for it.
func (a *Authorization) SetResource(resource permissions.Resource) error {
	mask := permissions.Permission{Name: "composite", Value: a.Permissions}
	if a.Permissions != 0 && !permissions.IsValid(resource.Type, mask) {
		return apperrors.NewInvalidPermission(fmt.Sprintf("%d", a.Permissions), resource.Name)
	}
	a.ResourceType = resource.Type
	return nil
}

// AddPermission sets the permission bits on the rule. The bits must be
// declared for the rule's resource type; the check fails fast here rather
// than at save time.
func (a *Authorization) AddPermission(perm permissions.Permission) error {
	if err := a.checkPermissionCompatible(perm); err != nil {
		return err
	}
	a.Permissions |= perm.Value
	return nil
}

// RemovePermission clears the permission bits on the rule. Clearing a bit on
// a freshly constructed rule (zero bitmask) is a no-op.
func (a *Authorization) RemovePermission(perm permissions.Permission) error {
	if err := a.checkPermissionCompatible(perm); err != nil {
		return err
	}
	a.Permissions &^= perm.Value
	return nil
}

// HasPermission reports whether every bit of perm is present in the rule's
// bitmask.
func (a *Authorization) HasPermission(perm permissions.Permission) bool {
	return perm.Matches(a.Permissions)
}

// IsPermissionGranted is the read alias of HasPermission for GLOBAL and
// GRANT rules. Calling it on a REVOKE rule is a usage error.
func (a *Authorization) IsPermissionGranted(perm permissions.Permission) (bool, error) {
	if a.Type == AuthorizationRevoke {
		return false, apperrors.NewValidation(
			"Method 'isPermissionGranted' cannot be used for authorization with type 'REVOKE'")
	}
	return a.HasPermission(perm), nil
}

// IsPermissionRevoked reports whether a REVOKE rule takes the permission
// away. Calling it on a GLOBAL or GRANT rule is a usage error.
func (a *Authorization) IsPermissionRevoked(perm permissions.Permission) (bool, error) {
	if a.Type != AuthorizationRevoke {
		return false, apperrors.NewValidation(fmt.Sprintf(
			"Method 'isPermissionRevoked' cannot be used for authorization with type '%s'", a.Type))
	}
	return a.HasPermission(perm), nil
}

func (a *Authorization) checkPermissionCompatible(perm permissions.Permission) error {
	// The resource type may not be assigned yet; the store re-checks the
	// full record at save time.
	if _, ok := permissions.ResourceByType(a.ResourceType); !ok {
		return nil
	}
	if !permissions.IsValid(a.ResourceType, perm) {
		return apperrors.NewInvalidPermission(perm.Name, permissions.ResourceName(a.ResourceType))
	}
	return nil
}

// Validate applies the structural invariants deferred to save time. The
// record may have passed through several partial states before this point,
// so every violation is reported, not just the first.
func (a *Authorization) Validate() error {
	var violations error

	if !a.Type.Valid() {
		violations = multierr.Append(violations,
			apperrors.NewValidation(fmt.Sprintf("Invalid authorization type %d", int(a.Type))))
	}

	if a.HasUserSubject() == a.HasGroupSubject() {
		violations = multierr.Append(violations,
			apperrors.NewValidation("Authorization must either have a 'userId' or a 'groupId'."))
	}
	if a.HasGroupSubject() && a.GroupID == permissions.Any {
		violations = multierr.Append(violations,
			apperrors.NewValidation(fmt.Sprintf("The id '%s' is reserved for the wildcard match and cannot name a group", permissions.Any)))
	}

	resource, known := permissions.ResourceByType(a.ResourceType)
	if !known {
		violations = multierr.Append(violations,
			apperrors.NewValidation("Authorization 'resourceType' cannot be null."))
	}

	if violations != nil {
		return violations
	}

	if a.Permissions != 0 {
		mask := permissions.Permission{Name: fmt.Sprintf("%d", a.Permissions), Value: a.Permissions}
		if !permissions.IsValid(a.ResourceType, mask) {
			return apperrors.NewInvalidPermission(mask.Name, resource.Name)
		}
	}
	return nil
}

// HasUserSubject reports whether the rule names a user subject.
func (a *Authorization) HasUserSubject() bool {
	return a.UserID != ""
}

// HasGroupSubject reports whether the rule names a group subject.
func (a *Authorization) HasGroupSubject() bool {
	return a.GroupID != ""
}
