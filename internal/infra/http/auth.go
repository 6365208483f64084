package http

import (
	"errors"
	"net/http"

	"seald/internal/config"
	"seald/internal/domain"
	"seald/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// requireAuth authenticates the caller and checks permission inside the
// caller's own tenant. It writes the error response on failure.
func (s *Server) requireAuth(c *gin.Context, permission string) (domain.Principal, bool) {
	if s.authenticator == nil {
		s.writeErrorCode(c, http.StatusInternalServerError, domain.CodeServerError, "auth configuration error", nil)
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c)
	if err != nil || principal.Subject == "" {
		s.writeErrorCode(c, http.StatusUnauthorized, domain.CodeUnauthorized, "missing or invalid principal", nil)
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	if s.authorizer != nil {
		if err := s.authorizer.Require(principal, principal.TenantID, permission); err != nil {
			s.writeAuthzError(c, err)
			return domain.Principal{}, false
		}
	}
	return principal, true
}

// requireCapability checks an environment capability for the caller's
// roles. Hidden surfaces answer NOT_FOUND rather than FORBIDDEN.
func (s *Server) requireCapability(c *gin.Context, principal domain.Principal, capability config.Capability, hidden bool) bool {
	if s.caps.Allows(principal.Roles, capability) {
		return true
	}
	if hidden {
		s.writeErrorCode(c, http.StatusNotFound, domain.CodeNotFound, "route not found", nil)
	} else {
		s.writeErrorCode(c, http.StatusForbidden, domain.CodeForbidden, "capability not granted", nil)
	}
	return false
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}

func (s *Server) writeAuthzError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		s.writeErrorCode(c, http.StatusUnauthorized, domain.CodeUnauthorized, "unauthorized", nil)
		return
	}
	message := "forbidden"
	if authz, ok := rbac.IsAuthzError(err); ok {
		message = "forbidden: " + authz.Code
	}
	s.writeErrorCode(c, http.StatusForbidden, domain.CodeForbidden, message, nil)
}
