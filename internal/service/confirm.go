package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
)

// confirmRetryAttempts ограничивает число повторов цикла выпуска при
// проигранных условных записях (конкурентные запросы одного аккаунта).
const confirmRetryAttempts = 5

// RequestConfirmation выпускает токен подтверждения email с защитой от
// злоупотреблений. Порядок проверок фиксирован:
//
//  1. уже подтверждён  -> ErrAlreadyConfirmed;
//  2. блокировка истекла -> снять и продолжить;
//  3. блокировка активна -> BlockedError с оставшимся временем;
//  4. лимит запросов исчерпан -> поставить блокировку, BlockedError;
//  5. с прошлого запроса прошло меньше окна -> RateLimitedError
//     (счётчик запросов НЕ увеличивается);
//  6. увеличить счётчик, выпустить токен, отправить письмо.
//
// Конкурентные вызовы для одного аккаунта сериализуются условными записями:
// проигравший перезапускает цикл со свежего снимка состояния.
func (s *Service) RequestConfirmation(ctx context.Context, accountID uuid.UUID) error {
	const op = "service.confirm.RequestConfirmation"

	lg := log.From(ctx)

	for attempt := 0; attempt < confirmRetryAttempts; attempt++ {
		account, err := s.storage.AccountByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return fmt.Errorf("%s: %w", op, err)
		}

		if account.IsEmailConfirmed {
			return fmt.Errorf("%s: %w", op, ErrAlreadyConfirmed)
		}

		now := time.Now().UTC()

		if account.IsBlocked && account.BlockUntil != nil && !account.BlockUntil.After(now) {
			if _, err := s.storage.UnblockIfElapsed(ctx, account.ID, now); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			// Состояние изменилось, перечитываем.
			continue
		}

		if account.BlockedAt(now) {
			return fmt.Errorf("%s: %w", op, &BlockedError{RetryAfter: account.BlockUntil.Sub(now)})
		}

		if account.FailedConfirmationAttempts >= s.cfg.ConfirmationAttemptLimit {
			until := now.Add(s.cfg.BlockDuration)

			ok, err := s.storage.BlockAccount(ctx, account.ID, until)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if !ok {
				continue
			}

			lg.Warn("confirmation_account_blocked",
				slog.String("op", op),
				slog.String("account_id", account.ID.String()),
				slog.Time("block_until", until),
			)

			return fmt.Errorf("%s: %w", op, &BlockedError{RetryAfter: s.cfg.BlockDuration})
		}

		if account.LastConfirmationRequest != nil {
			elapsed := now.Sub(*account.LastConfirmationRequest)
			if elapsed < s.cfg.ConfirmationTokenTTL {
				return fmt.Errorf("%s: %w", op, &RateLimitedError{RetryAfter: s.cfg.ConfirmationTokenTTL - elapsed})
			}
		}

		// Условное увеличение счётчика — точка сериализации всего цикла.
		ok, err := s.storage.IncrementConfirmationAttempts(ctx, account.ID, account.FailedConfirmationAttempts, now)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			continue
		}

		token := uuid.NewString()
		expiresAt := now.Add(s.cfg.ConfirmationTokenTTL)

		if err := s.storage.SetConfirmationToken(ctx, account.ID, token, expiresAt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := s.notifier.SendConfirmation(ctx, account.Email, token, account.Username); err != nil {
			// Доставка письма — best-effort: токен уже действителен,
			// пользователь может запросить повтор после окна.
			lg.Warn("confirmation_mail_failed",
				slog.String("op", op),
				slog.String("email", redact.Email(account.Email)),
				slog.String("err", err.Error()),
			)
		}

		lg.Info("confirmation_token_issued",
			slog.String("op", op),
			slog.String("account_id", account.ID.String()),
			slog.Int("attempt_no", account.FailedConfirmationAttempts+1),
		)

		return nil
	}

	return fmt.Errorf("%s: concurrent state change, retries exhausted", op)
}

// RequestConfirmationByEmail — вариант RequestConfirmation для публичного
// маршрута повторной отправки: аккаунт ищется по email. Неизвестный email
// сообщается так же, как непригодный токен.
func (s *Service) RequestConfirmationByEmail(ctx context.Context, email string) error {
	const op = "service.confirm.RequestConfirmationByEmail"

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return s.RequestConfirmation(ctx, account.ID)
}

// ConfirmEmail подтверждает email по одноразовому токену. Успешное
// подтверждение активирует аккаунт и гасит токен; повторное предъявление
// того же токена отклоняется как непригодный.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	const op = "service.confirm.ConfirmEmail"

	if token == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	rec, err := s.storage.SessionByConfirmationToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if rec.ConfirmationToken == nil || rec.ConfirmationExpiresAt == nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	now := time.Now().UTC()
	if !rec.ConfirmationExpiresAt.After(now) {
		return fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if err := s.storage.MarkEmailConfirmed(ctx, rec.AccountID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.ClearConfirmationToken(ctx, rec.AccountID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("email_confirmed",
		slog.String("op", op),
		slog.String("account_id", rec.AccountID.String()),
	)

	return nil
}
