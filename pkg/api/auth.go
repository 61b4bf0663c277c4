package api

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Principal is what a TokenVerifier resolves an opaque bearer token to.
type Principal struct {
	ID        string
	ExpiresAt time.Time
}

// TokenVerifier is the external auth collaborator the core consumes: it
// resolves an opaque bearer token to a principal, or rejects it. Token
// issuance (auth.login) is out of scope here by design — only verification
// is.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

const principalContextKey = "api.principal"

// requireAuth rejects any request without a valid bearer token. The push
// endpoint authenticates separately (query-param token) in ws.go, since the
// WebSocket upgrade request can't carry a custom header from a browser.
func requireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeErrorKind(c, 401, "Unauthenticated", "missing bearer token")
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, prefix)

		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil || principal == nil {
			writeErrorKind(c, 401, "Unauthenticated", "invalid or expired token")
			c.Abort()
			return
		}
		if !principal.ExpiresAt.IsZero() && principal.ExpiresAt.Before(time.Now()) {
			writeErrorKind(c, 401, "Unauthenticated", "token expired")
			c.Abort()
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

func principalFrom(c *gin.Context) *Principal {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
