// Package middleware holds the Fiber middleware stack: request identity,
// user-context assembly, rate limiting and the error envelope.
package middleware

import (
	"strings"

	"mailagent_server/core/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// userContextKey is the Locals slot holding the request's user context.
const userContextKey = "user_context"

// SessionContext assembles the per-request user context from the session
// token and transport metadata. It never rejects: tools validate the context
// themselves, so a missing user and a missing session each produce their own
// error instead of a generic 401 here.
//
// X-User-Id is the caller's claimed identity. The token subject fills it in
// only when the header is absent, which keeps a stolen-token mismatch
// detectable downstream.
func SessionContext(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := &domain.UserContext{
			UserID:    c.Get("X-User-Id"),
			IPAddress: c.IP(),
			UserAgent: c.Get("User-Agent"),
		}

		if tokenString := bearerToken(c); tokenString != "" {
			if sub, jti, ok := parseSessionToken(tokenString, secret); ok {
				uc.SessionID = jti
				if uc.UserID == "" {
					uc.UserID = sub
				}
			}
		}

		c.Locals(userContextKey, uc)
		return c.Next()
	}
}

// UserContextFrom returns the context assembled by SessionContext, or nil
// when the middleware did not run.
func UserContextFrom(c *fiber.Ctx) *domain.UserContext {
	uc, _ := c.Locals(userContextKey).(*domain.UserContext)
	return uc
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// parseSessionToken verifies the token signature and extracts the subject
// and session id. Claim expiry is deliberately not checked here: the session
// registry is the authority on liveness, so an expired session and a revoked
// one fail validation the same way.
func parseSessionToken(tokenString, secret string) (sub, jti string, ok bool) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return "", "", false
	}

	claims, okClaims := token.Claims.(jwt.MapClaims)
	if !okClaims {
		return "", "", false
	}
	sub, _ = claims["sub"].(string)
	jti, _ = claims["jti"].(string)
	return sub, jti, true
}
