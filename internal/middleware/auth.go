package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/pkg/auth"
)

const (
	ContextActorID    = "actor_id"
	ContextActorEmail = "actor_email"
)

type AuthMiddleware struct {
	tokens   auth.TokenValidator
	required bool
}

// NewAuthMiddleware builds the actor middleware. Tokens are issued upstream;
// a nil validator treats every request as anonymous.
func NewAuthMiddleware(tokens auth.TokenValidator, required bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, required: required}
}

// Authenticate attributes the request to the bearer token's subject. Without
// a token the request runs as the anonymous actor unless tokens are required.
// A token that is present but invalid is always rejected.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := model.Actor{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		header := c.GetHeader("Authorization")
		switch {
		case header == "" || m.tokens == nil:
			if m.required {
				m.reject(c, "missing authorization header")
				return
			}
		default:
			token, ok := auth.BearerToken(header)
			if !ok {
				m.reject(c, "invalid authorization format")
				return
			}
			claims, err := m.tokens.ValidateToken(token)
			if err != nil {
				m.reject(c, "invalid token")
				return
			}
			actor.ID = claims.Subject
			actor.Email = claims.Email
		}

		if actor.ID != "" {
			c.Set(ContextActorID, actor.ID)
			c.Set(ContextActorEmail, actor.Email)
		}
		c.Request = c.Request.WithContext(model.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (m *AuthMiddleware) reject(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Code:    http.StatusUnauthorized,
		Message: msg,
		TraceID: TraceID(c),
	})
}
