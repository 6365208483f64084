package http

import (
	"strings"

	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerCorrelationID     = "X-Correlation-ID"
	correlationContextKey   = "correlation_id"
	maxInboundCorrelationID = 128
)

// correlationMiddleware assigns every request a correlation id, echoed in
// the response header and stored on the request context for audit. A
// well-formed inbound id is kept so clients can stitch retries together.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerCorrelationID))
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}
		c.Set(correlationContextKey, id)
		c.Header(headerCorrelationID, id)
		c.Request = c.Request.WithContext(usecase.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxInboundCorrelationID {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}

func correlationID(c *gin.Context) string {
	if id := c.GetString(correlationContextKey); id != "" {
		return id
	}
	return usecase.CorrelationID(c.Request.Context())
}
