// Package http реализует REST API сервиса идентичности поверх fiber.
//
// Маршруты версии v1:
//
//	POST /api/v1/signup                  — регистрация;
//	POST /api/v1/confirm-email           — подтверждение email по токену;
//	POST /api/v1/resend-confirmation     — повторный запрос токена подтверждения;
//	POST /api/v1/signin                  — вход, выпуск пары токенов;
//	POST /api/v1/refresh                 — ротация пары токенов;
//	POST /api/v1/logout                  — отзыв сессии (требует access-токен);
//	POST /api/v1/password-reset/request  — запрос токена сброса пароля;
//	POST /api/v1/password-reset/confirm  — установка нового пароля.
package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pribylovaa/identity-service/internal/config"
	"github.com/pribylovaa/identity-service/internal/service"
)

// Server связывает fiber-приложение с сервисным слоем.
type Server struct {
	app *fiber.App
	svc *service.Service
	cfg config.HTTPConfig
	log *slog.Logger
}

// New собирает приложение: middleware, маршруты, обработчик ошибок.
func New(svc *service.Service, cfg config.HTTPConfig, timeout time.Duration, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "identity-service",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app: app,
		svc: svc,
		cfg: cfg,
		log: log,
	}

	app.Use(recover.New())
	app.Use(s.requestContext(timeout))
	app.Use(metricsMiddleware())

	v1 := app.Group("/api/v1")
	v1.Post("/signup", s.handleSignUp)
	v1.Post("/confirm-email", s.handleConfirmEmail)
	v1.Post("/resend-confirmation", s.handleResendConfirmation)
	v1.Post("/signin", s.handleSignIn)
	v1.Post("/refresh", s.handleRefresh)
	v1.Post("/logout", s.requireAuth, s.handleLogout)
	v1.Post("/password-reset/request", s.handlePasswordResetRequest)
	v1.Post("/password-reset/confirm", s.handlePasswordResetConfirm)

	return s
}

// App отдаёт fiber-приложение (используется в тестах через app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen запускает HTTP-сервер; блокируется до остановки.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown останавливает сервер, дожидаясь активных запросов не дольше timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
