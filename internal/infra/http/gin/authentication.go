package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	chatsvc "homedesk/internal/app/services/chat"
	"homedesk/internal/app/services/identity"
	domainchat "homedesk/internal/domain/chat"
)

const principalContextKey = "homedesk.principal"

// AuthMiddleware resolves the bearer token to a principal. Requests
// without a resolvable identity continue anonymously; the handlers decide
// what requires one.
type AuthMiddleware struct {
	Resolver identity.Resolver
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Resolver == nil {
		c.Next()
		return
	}
	resolved, err := m.Resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrUnknownToken) && m.Logger != nil {
			m.Logger.Debug("token resolution failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, chatsvc.Principal{
		ID:   resolved.ID,
		Name: resolved.Name,
		Role: resolved.Role,
	})
	c.Next()
}

func setPrincipal(c *gin.Context, p chatsvc.Principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (chatsvc.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return chatsvc.Principal{}, false
	}
	p, ok := val.(chatsvc.Principal)
	return p, ok
}

func requirePrincipal(c *gin.Context) (chatsvc.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return chatsvc.Principal{}, false
	}
	return p, true
}

func requireRole(c *gin.Context, role domainchat.Role) (chatsvc.Principal, bool) {
	p, ok := requirePrincipal(c)
	if !ok {
		return chatsvc.Principal{}, false
	}
	if p.Role != role {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return chatsvc.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
