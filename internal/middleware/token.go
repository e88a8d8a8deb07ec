package middleware

import (
	"FaceBridge/pkg/handlerUtil"
	jwtPkg "FaceBridge/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
	CallerKey         = "caller"
)

type tokenMiddleware struct {
	secret string
}

// newTokenMiddleware enables bearer authentication only when a signing
// secret is configured.
func newTokenMiddleware(secret string) *tokenMiddleware {
	return &tokenMiddleware{secret: secret}
}

func (t *tokenMiddleware) enabled() bool {
	return t.secret != ""
}

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	if !m.token.enabled() {
		return ctx.Next()
	}

	errHandler := handlerUtil.New(m.log)
	requestID := m.GetRequestID(ctx)

	token, err := jwtPkg.VerifyTokenHeader(ctx, m.token.secret)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, err.Error())
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errHandler.HandleUnauthorized(ctx, requestID, "invalid token claims")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return errHandler.HandleUnauthorized(ctx, requestID, "token has no subject")
	}

	ctx.Locals(CallerKey, subject)

	m.log.WithField("caller", subject).Debug("Authentication successful")
	return ctx.Next()
}
