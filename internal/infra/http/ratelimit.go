package http

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"seald/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeDraftCreate     = "drafts:create"
	routeDraftUpdate     = "drafts:update"
	routeDraftAttach     = "drafts:attach"
	routeDraftSeal       = "drafts:seal"
	routeDraftAbandon    = "drafts:abandon"
	routeEvidenceReview  = "evidence:review"
	routeEvidenceContent = "evidence:content"
	routeSimulate        = "simulate"
)

// enforceRateLimit applies the per tenant and endpoint window to mutating
// routes. A failing limiter lets the request through.
func (s *Server) enforceRateLimit(c *gin.Context, routeID string, principal domain.Principal) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("tenant:%s:endpoint:%s", principal.TenantID, routeID)
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		log.Printf("rate limiter unavailable for %s: %v", key, err)
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		s.writeErrorCode(c, http.StatusTooManyRequests, domain.CodeRateLimited, "rate limit exceeded", nil)
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
