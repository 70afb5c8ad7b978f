package middleware

import (
	"strings"

	"devstream/internal/core/domain"
	"devstream/internal/core/services"
	apperrors "devstream/pkg/errors"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware requires a valid bearer token and stores the resolved
// identity on the gin context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(apperrors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			c.Error(apperrors.NewUnauthorizedError("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Error(apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), apperrors.StatusFor(apperrors.ErrCodeUnauthorized)))
			c.Abort()
			return
		}

		c.Set(identityKey, services.IdentityFromClaims(claims, "", domain.ConnectionID(claims.ID)))
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
