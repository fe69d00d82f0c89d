package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"promo-code-service/internal/core/auth"
	"promo-code-service/internal/service"
	resp "promo-code-service/internal/transport/http/response"
)

// Context keys set by AuthJWT for downstream handlers.
const (
	CtxUserID  = "userID"
	CtxIsAdmin = "isAdmin"
)

// AuthJWT authenticates the bearer token and rejects tokens issued before
// the user's last logout (token version mismatch). Missing or invalid
// credentials are always 401.
func AuthJWT(j *auth.JWTer, users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			resp.AbortMessage(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			resp.AbortMessage(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		tv, err := users.TokenVersion(c.Request.Context(), claims.UID)
		if err != nil || tv != claims.TokenVersion {
			resp.AbortMessage(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		c.Set(CtxUserID, claims.UID)
		c.Set(CtxIsAdmin, claims.Admin)
		c.Next()
	}
}

// RequireAdmin gates admin-only routes. It runs after AuthJWT, so a request
// reaching it always has a valid identity; lacking the admin flag is 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(CtxIsAdmin) {
			resp.AbortMessage(c, http.StatusForbidden, "Access denied. Admin privileges required.")
			return
		}
		c.Next()
	}
}
