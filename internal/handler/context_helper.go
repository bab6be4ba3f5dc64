package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/trial-subjects-api/internal/middleware"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
	"github.com/noah-isme/trial-subjects-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireUserID writes a 401 and returns false when the request carries no identity.
func requireUserID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.UserID, true
}
