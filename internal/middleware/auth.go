package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/pkg/auth"
	"github.com/medassist/booking-api/pkg/errors"
	"github.com/medassist/booking-api/pkg/httputil"
)

const ContextPrincipal = "principal"

var (
	errMissingHeader = errors.Unauthorized(nil)
	errForbiddenRole = errors.Forbidden("you are not allowed to perform this action")
)

type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores the caller's principal
// in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, errMissingHeader)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.RespondWithError(c, errMissingHeader)
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}

		principal := model.Principal{ID: claims.UserID, Role: model.Role(claims.Role)}
		if !principal.Role.Valid() {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			httputil.RespondWithError(c, errMissingHeader)
			return
		}
		for _, r := range roles {
			if principal.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errForbiddenRole)
	}
}

func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}
