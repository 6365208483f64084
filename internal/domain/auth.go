package domain

type Principal struct {
	Subject  string
	TenantID string
	Roles    []string
	Scopes   []string
}

func (p Principal) Actor() Actor {
	return Actor{TenantID: p.TenantID, ID: p.Subject, Roles: p.Roles}
}

type Authorizer interface {
	Require(principal Principal, tenantID string, permission string) error
}

const (
	PermDraftWrite  = "evidence:draft"
	PermDraftRead   = "evidence:read"
	PermSeal        = "evidence:seal"
	PermReview      = "evidence:review"
	PermContentLink = "evidence:link"
	PermSimulate    = "evidence:simulate"
)
