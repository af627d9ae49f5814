package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// TokenParser verifies a bearer token
type TokenParser interface {
	Parse(token string) (*models.PassClaims, error)
}

// BearerAuth verifies the Authorization bearer token and stores the verified
// claims in the context. Requests without a valid token stop with 401.
func BearerAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "no token"})
			return
		}

		scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization header"})
			return
		}

		claims, err := parser.Parse(token)
		if err != nil {
			observability.Logger().Debug("rejected bearer token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.PublicMessage(err)})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by BearerAuth
func ClaimsFromContext(c *gin.Context) (*models.PassClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*models.PassClaims)
	return claims, ok && claims != nil
}
