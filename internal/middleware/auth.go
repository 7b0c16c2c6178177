package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/pkg/auth"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/httputil"
)

const (
	ContextAccountID = "account_id"
	ContextEmail     = "email"
	ContextRole      = "role"
)

// Auth validates the bearer token and stashes the caller's identity in
// the request context.
func Auth(jwtService auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized("invalid authorization header", nil))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithError(c, apperrors.Unauthorized("invalid token", err))
			c.Abort()
			return
		}

		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not in the allowed
// set. It must run after Auth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := model.Role(c.GetString(ContextRole))
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, apperrors.Forbidden("insufficient role", nil))
		c.Abort()
	}
}

// AccountID extracts the authenticated caller's account id.
func AccountID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
