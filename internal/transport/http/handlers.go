package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pribylovaa/identity-service/internal/service"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type tokenPairResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleSignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	account, err := s.svc.SignUp(c.UserContext(), req.Email, req.Username, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(accountResponse{
		ID:       account.ID.String(),
		Email:    account.Email,
		Username: account.Username,
		Role:     string(account.Role),
	})
}

func (s *Server) handleConfirmEmail(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.svc.ConfirmEmail(c.UserContext(), req.Token); err != nil {
		// Непригодный или истёкший токен подтверждения — ошибка запроса,
		// а не аутентификации.
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			return badRequest(c, "invalid confirmation token")
		case errors.Is(err, service.ErrTokenExpired):
			return badRequest(c, "confirmation token expired")
		}

		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: "email confirmed"})
}

func (s *Server) handleResendConfirmation(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.svc.RequestConfirmationByEmail(c.UserContext(), req.Email); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return badRequest(c, "unknown account")
		}

		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: "confirmation sent"})
}

func (s *Server) handleSignIn(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	pair, _, err := s.svc.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPairResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	pair, err := s.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenPairResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	accountID, err := accountIDFromCtx(c)
	if err != nil {
		return s.respondError(c, err)
	}

	if err := s.svc.Logout(c.UserContext(), accountID); err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: "logged out"})
}

func (s *Server) handlePasswordResetRequest(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.svc.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: "reset requested"})
}

func (s *Server) handlePasswordResetConfirm(c *fiber.Ctx) error {
	var req resetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.svc.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			return badRequest(c, "invalid reset token")
		case errors.Is(err, service.ErrTokenExpired):
			return badRequest(c, "reset token expired")
		}

		return s.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(messageResponse{Message: "password updated"})
}
