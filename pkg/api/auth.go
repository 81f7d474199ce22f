package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/crater/pkg/crerr"
)

const tokenScheme = "CraterToken "

// extractAuthor extracts the operator identity from oauth2-proxy headers,
// used by the ACL check for operator/bot commands (§4.6 "a separately
// resolved identity").
func extractAuthor(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	return "api-client"
}

// bearerToken extracts the token from an `Authorization: CraterToken <token>`
// header (§6 "Auth header").
func bearerToken(c *echo.Context) (string, bool) {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, tokenScheme) {
		return "", false
	}
	return strings.TrimPrefix(h, tokenScheme), true
}

// agentAuth is middleware enforcing bearer-token auth for /agent-api/
// routes, resolving the caller's agent name into the request context
// (§4.6, §6).
func (s *Server) agentAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.JSON(http.StatusForbidden, failed(statusUnauthorized, "missing bearer token"))
		}
		agentRecord, err := s.agents.GetAgent(c.Request().Context(), agentNameFromToken(c))
		if err != nil {
			return c.JSON(http.StatusForbidden, failed(statusUnauthorized, "unknown agent"))
		}
		if !tokensMatch(token, agentRecord.TokenHash) {
			return c.JSON(http.StatusForbidden, failed(statusUnauthorized, "invalid token"))
		}
		c.Set(ctxAgentName, agentRecord.Name)
		return next(c)
	}
}

// agentNameFromToken resolves the claiming agent's declared name, sent via
// the X-Crater-Agent header alongside the bearer token (the token alone
// does not name its owner).
func agentNameFromToken(c *echo.Context) string {
	return c.Request().Header.Get("X-Crater-Agent")
}

const ctxAgentName = "crater-agent-name"

// operatorAuth is middleware enforcing ACL membership for operator/bot
// endpoints (§4.6, §4.8 ACL).
func (s *Server) operatorAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		identity := extractAuthor(c)
		if !s.cfg.ACL().Allows(identity) {
			return writeError(c, crerr.ErrAuth)
		}
		c.Set(ctxIdentity, identity)
		return next(c)
	}
}

const ctxIdentity = "crater-operator-identity"
