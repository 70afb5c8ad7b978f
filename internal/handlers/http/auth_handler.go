package http

import (
	"net/http"

	"devstream/internal/core/services"
	"devstream/internal/infrastructure/middleware"
	"devstream/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	auth.GET("/me", middleware.AuthMiddleware(h.authService), h.Me)
}

// Me echoes the identity carried by the caller's bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError("authentication required"))
		return
	}
	c.JSON(http.StatusOK, identity)
}
