package rbac

import (
	"errors"

	"seald/internal/domain"
)

const (
	DefaultAdminRole  = "seald_admin"
	DefaultAdminScope = "evidence:*"

	RoleSubmitter = "submitter"
	RoleReviewer  = "compliance_reviewer"
	RoleAuditor   = "auditor"
	RoleSupport   = "support"
)

// rolePermissions grants permissions by role. Scopes on the principal
// grant the named permission directly.
var rolePermissions = map[string][]string{
	RoleSubmitter: {
		domain.PermDraftWrite,
		domain.PermDraftRead,
		domain.PermSeal,
		domain.PermContentLink,
		domain.PermSimulate,
	},
	RoleReviewer: {domain.PermDraftRead, domain.PermReview},
	RoleAuditor:  {domain.PermDraftRead},
	RoleSupport:  {domain.PermDraftRead},
}

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Authorizer struct {
	adminRole  string
	adminScope string
	roles      map[string][]string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{
		adminRole:  DefaultAdminRole,
		adminScope: DefaultAdminScope,
		roles:      rolePermissions,
	}
}

// Require checks that principal may use permission inside tenantID.
// Admins bypass the permission check but never the tenant check.
func (a *Authorizer) Require(principal domain.Principal, tenantID string, permission string) error {
	if principal.Subject == "" || principal.TenantID == "" {
		return domain.ErrUnauthorized
	}
	if tenantID != "" && tenantID != principal.TenantID {
		return &AuthzError{Code: "TENANT_MISMATCH", Err: domain.ErrForbidden}
	}
	if permission == "" || a.hasAdmin(principal) {
		return nil
	}
	if a.grants(principal, permission) {
		return nil
	}
	if len(principal.Roles) == 0 && len(principal.Scopes) == 0 {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	return &AuthzError{Code: "MISSING_SCOPE", Err: domain.ErrForbidden}
}

func (a *Authorizer) hasAdmin(principal domain.Principal) bool {
	for _, r := range principal.Roles {
		if r == a.adminRole {
			return true
		}
	}
	for _, s := range principal.Scopes {
		if s == a.adminScope {
			return true
		}
	}
	return false
}

func (a *Authorizer) grants(principal domain.Principal, permission string) bool {
	for _, s := range principal.Scopes {
		if s == permission {
			return true
		}
	}
	for _, r := range principal.Roles {
		for _, p := range a.roles[r] {
			if p == permission {
				return true
			}
		}
	}
	return false
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}
