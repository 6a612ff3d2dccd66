package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/common/auth"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
)

const (
	ActorContextKey   = "actor"
	AccessTokenCookie = "access_token"
)

// AuthMiddleware resolves the caller from the Authorization header, falling
// back to the access_token cookie set by the guest and staff frontends.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			if v, err := c.Cookie(AccessTokenCookie); err == nil {
				token = v
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		id, err := verifier.Identify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		role := models.Role(id.Role)
		if !role.Valid() {
			c.JSON(http.StatusForbidden, gin.H{"error": "unknown role"})
			c.Abort()
			return
		}
		if role == models.RoleGuest && id.TableNumber <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "guest token has no table"})
			c.Abort()
			return
		}

		c.Set(ActorContextKey, models.Actor{
			ID:          id.Subject,
			Role:        role,
			TableNumber: id.TableNumber,
			GuestID:     id.GuestID,
		})
		c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed. It must run after
// AuthMiddleware.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if !allowed[actor.Role] {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// StaffOnly admits STAFF, MANAGER and ADMIN.
func StaffOnly() gin.HandlerFunc {
	return RequireRoles(models.StaffRoles...)
}

func GetActor(c *gin.Context) (models.Actor, error) {
	if val, ok := c.Get(ActorContextKey); ok {
		if actor, ok := val.(models.Actor); ok {
			return actor, nil
		}
	}
	return models.Actor{}, errors.New("actor not found in context")
}
