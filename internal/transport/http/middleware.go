package http

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/service"
)

const (
	localsAccountID = "account_id"
	localsEmail     = "account_email"
	localsRole      = "account_role"
)

// requestContext снабжает каждый запрос request_id, логгером в контексте
// и таймаутом на обработку.
func (s *Server) requestContext(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, requestID)

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		ctx = log.Into(ctx, s.log)
		c.SetUserContext(log.WithAttrs(ctx, slog.String("request_id", requestID)))

		return c.Next()
	}
}

// requireAuth пропускает запрос дальше только с действительным access-токеном.
// Идентичность из claims кладётся в Locals.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "missing access token"})
	}

	accountID, email, role, err := s.svc.Authenticate(c.UserContext(), token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid credentials or token"})
	}

	c.Locals(localsAccountID, accountID)
	c.Locals(localsEmail, email)
	c.Locals(localsRole, role)

	return c.Next()
}

func bearerToken(header string) string {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}

func accountIDFromCtx(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(localsAccountID).(uuid.UUID)
	if !ok {
		return uuid.Nil, service.ErrInvalidToken
	}

	return id, nil
}
