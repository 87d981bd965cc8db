package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojo-admin-api/internal/middleware"
	"github.com/noah-isme/dojo-admin-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}

// actorID returns the authenticated user id, empty for anonymous requests.
func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func clientMeta(c *gin.Context) (ip, userAgent string) {
	return c.ClientIP(), c.GetHeader("User-Agent")
}
