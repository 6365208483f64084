package header

import (
	"strings"

	"seald/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	HeaderSubject = "X-Principal-Subject"
	HeaderTenant  = "X-Principal-Tenant"
	HeaderScopes  = "X-Principal-Scopes"
	HeaderRoles   = "X-Principal-Roles"
)

// Authenticator trusts principal headers set by the fronting gateway.
type Authenticator struct {
	fallback *domain.Principal
}

func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// NewLocalAuthenticator fills in fallback when the request carries no
// subject. It backs AUTH_MODE=none.
func NewLocalAuthenticator(fallback domain.Principal) *Authenticator {
	return &Authenticator{fallback: &fallback}
}

func (a *Authenticator) Authenticate(c *gin.Context) (domain.Principal, error) {
	principal := domain.Principal{
		Subject:  strings.TrimSpace(c.GetHeader(HeaderSubject)),
		TenantID: strings.TrimSpace(c.GetHeader(HeaderTenant)),
	}
	if scopes := strings.TrimSpace(c.GetHeader(HeaderScopes)); scopes != "" {
		principal.Scopes = splitCSV(scopes)
	}
	if roles := strings.TrimSpace(c.GetHeader(HeaderRoles)); roles != "" {
		principal.Roles = splitCSV(roles)
	}
	if principal.Subject == "" && a.fallback != nil {
		return *a.fallback, nil
	}
	if principal.Subject == "" || principal.TenantID == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return principal, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
