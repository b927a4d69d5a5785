package http

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pribylovaa/identity-service/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

// respondError переводит ошибки сервисного слоя в HTTP-статусы.
//
// Сбои аутентификации по форме ответа неразличимы: неверный пароль,
// неизвестный email и отозванный/истёкший refresh-токен дают одинаковый 401.
// Внутренние ошибки наружу не раскрываются.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	var blocked *service.BlockedError
	if errors.As(err, &blocked) {
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds(blocked.RetryAfter))
		return c.Status(fiber.StatusForbidden).JSON(errorResponse{Error: "account temporarily blocked"})
	}

	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds(limited.RetryAfter))
		return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{Error: "confirmation recently sent"})
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked):
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: "invalid credentials or token"})
	case errors.Is(err, service.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Error: "email already registered"})
	case errors.Is(err, service.ErrEmailNotConfirmed):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "email not confirmed"})
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "email already confirmed"})
	case errors.Is(err, service.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid email"})
	case errors.Is(err, service.ErrWeakPassword):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "password too weak"})
	case errors.Is(err, service.ErrEmptyPassword):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "password required"})
	}

	s.log.Error("request_failed",
		slog.String("path", c.Path()),
		slog.String("err", err.Error()),
	)

	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal server error"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: msg})
}

// retryAfterSeconds округляет длительность вверх до целых секунд,
// чтобы Retry-After никогда не занижал оставшееся время.
func retryAfterSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}

	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}

// errorHandler — глобальный обработчик fiber: ошибки маршрутизации и паники
// после recover приходят сюда.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	return c.Status(code).JSON(errorResponse{Error: msg})
}
