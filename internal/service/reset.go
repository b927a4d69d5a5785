package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
)

// RequestPasswordReset выпускает токен сброса пароля и отправляет его на почту.
// Неизвестный email не выдаётся наружу: ответ одинаков для существующих и
// несуществующих аккаунтов.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "service.reset.RequestPasswordReset"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Info("password_reset_unknown_email",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
			)

			return nil
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	token := uuid.NewString()
	expiresAt := now.Add(s.cfg.ResetTokenTTL)

	if err := s.storage.SetResetToken(ctx, account.ID, token, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.notifier.SendPasswordReset(ctx, account.Email, token, account.Username); err != nil {
		lg.Warn("password_reset_mail_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(account.Email)),
			slog.String("err", err.Error()),
		)
	}

	lg.Info("password_reset_token_issued",
		slog.String("op", op),
		slog.String("account_id", account.ID.String()),
	)

	return nil
}

// ResetPassword устанавливает новый пароль по одноразовому токену сброса.
// Смена пароля отзывает активную сессию аккаунта.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "service.reset.ResetPassword"

	if token == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rec, err := s.storage.SessionByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if rec.ResetToken == nil || rec.ResetExpiresAt == nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	now := time.Now().UTC()
	if !rec.ResetExpiresAt.After(now) {
		return fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	hashedPassword, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePasswordHash(ctx, rec.AccountID, hashedPassword); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.ClearResetToken(ctx, rec.AccountID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.revokeSession(ctx, rec)

	log.From(ctx).Info("password_reset_done",
		slog.String("op", op),
		slog.String("account_id", rec.AccountID.String()),
	)

	return nil
}

// revokeSession гасит активный refresh-токен после смены пароля.
// Сбой отзыва не фатален: токен истечёт по сроку, событие логируется.
func (s *Service) revokeSession(ctx context.Context, rec *models.SessionRecord) {
	const op = "service.reset.revokeSession"

	lg := log.From(ctx)

	if err := s.storage.ClearRefreshToken(ctx, rec.AccountID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		lg.Warn("session_revoke_failed",
			slog.String("op", op),
			slog.String("account_id", rec.AccountID.String()),
			slog.String("err", err.Error()),
		)
	}

	if rec.RefreshTokenHash != nil {
		s.cacheRevoke(ctx, *rec.RefreshTokenHash, rec.RefreshExpiresAt)
	}
}
