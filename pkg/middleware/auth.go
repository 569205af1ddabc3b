package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey = "claims"
	OwnerKey  = "owner"
	RoleKey   = "role"
	TokenKey  = "token"
)

// DefaultRole is assigned when a token carries no known role.
const DefaultRole = "collaborateur"

// knownRoles in increasing privilege order.
var knownRoles = []string{"collaborateur", "senior", "expert", "admin"}

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports whether a raw access token was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

// AuthMiddleware verifies Bearer tokens and stores the caller's subject and
// role in the context. rev may be nil.
func AuthMiddleware(ver Verifier, rev RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			return
		}

		idToken, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := idToken.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		// only signed tokens reach the revocation store
		if rev != nil {
			revoked, err := rev.IsRevoked(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "revocation check failed"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, token)
		c.Set(OwnerKey, sub)
		c.Set(RoleKey, RoleFromClaims(claims))
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return "", false
	}
	// Expect 'Bearer <token>'
	var token string
	if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
		return "", false
	}
	return token, true
}

// RoleFromClaims reads a "role" claim, falling back to the highest known role
// in Keycloak's realm_access.roles, then to DefaultRole.
func RoleFromClaims(claims map[string]interface{}) string {
	if r, ok := claims["role"].(string); ok && isKnownRole(r) {
		return r
	}
	best := ""
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		if roles, ok := ra["roles"].([]interface{}); ok {
			for _, known := range knownRoles {
				for _, r := range roles {
					if s, _ := r.(string); s == known {
						best = known
					}
				}
			}
		}
	}
	if best == "" {
		return DefaultRole
	}
	return best
}

func isKnownRole(r string) bool {
	for _, k := range knownRoles {
		if k == r {
			return true
		}
	}
	return false
}

// Owner returns the authenticated subject, or "".
func Owner(c *gin.Context) string { return c.GetString(OwnerKey) }

// Role returns the authenticated role, or "".
func Role(c *gin.Context) string { return c.GetString(RoleKey) }

// RawToken returns the bearer token the request was authenticated with.
func RawToken(c *gin.Context) string { return c.GetString(TokenKey) }
