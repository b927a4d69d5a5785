package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

const sessionColumns = `
	account_id,
	refresh_token_hash, refresh_expires_at,
	confirmation_token, confirmation_expires_at,
	reset_token, reset_expires_at,
	updated_at
`

func scanSession(row pgx.Row) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := row.Scan(
		&rec.AccountID,
		&rec.RefreshTokenHash,
		&rec.RefreshExpiresAt,
		&rec.ConfirmationToken,
		&rec.ConfirmationExpiresAt,
		&rec.ResetToken,
		&rec.ResetExpiresAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// SessionByAccountID находит запись сессии аккаунта.
func (s *Storage) SessionByAccountID(ctx context.Context, accountID uuid.UUID) (*models.SessionRecord, error) {
	const op = "storage.postgres.SessionByAccountID"

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE account_id = $1`

	rec, err := scanSession(s.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// SessionByConfirmationToken находит запись по токену подтверждения почты.
func (s *Storage) SessionByConfirmationToken(ctx context.Context, token string) (*models.SessionRecord, error) {
	const op = "storage.postgres.SessionByConfirmationToken"

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE confirmation_token = $1`

	rec, err := scanSession(s.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// SessionByResetToken находит запись по токену сброса пароля.
func (s *Storage) SessionByResetToken(ctx context.Context, token string) (*models.SessionRecord, error) {
	const op = "storage.postgres.SessionByResetToken"

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE reset_token = $1`

	rec, err := scanSession(s.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// SetConfirmationToken перезаписывает токен подтверждения и его срок.
// Запись сессии создаётся лениво; прежний токен перестаёт существовать.
func (s *Storage) SetConfirmationToken(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SetConfirmationToken"

	query := `
		INSERT INTO sessions(account_id, confirmation_token, confirmation_expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id)
		DO UPDATE SET
			confirmation_token = EXCLUDED.confirmation_token,
			confirmation_expires_at = EXCLUDED.confirmation_expires_at,
			updated_at = now()
	`

	_, err := s.db.Exec(ctx, query, accountID, token, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClearConfirmationToken обнуляет только поля подтверждения.
func (s *Storage) ClearConfirmationToken(ctx context.Context, accountID uuid.UUID) error {
	const op = "storage.postgres.ClearConfirmationToken"

	query := `
		UPDATE sessions
		SET confirmation_token = NULL, confirmation_expires_at = NULL, updated_at = now()
		WHERE account_id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// SetResetToken перезаписывает токен сброса пароля и его срок.
func (s *Storage) SetResetToken(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error {
	const op = "storage.postgres.SetResetToken"

	query := `
		INSERT INTO sessions(account_id, reset_token, reset_expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id)
		DO UPDATE SET
			reset_token = EXCLUDED.reset_token,
			reset_expires_at = EXCLUDED.reset_expires_at,
			updated_at = now()
	`

	_, err := s.db.Exec(ctx, query, accountID, token, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ClearResetToken обнуляет только поля сброса пароля.
func (s *Storage) ClearResetToken(ctx context.Context, accountID uuid.UUID) error {
	const op = "storage.postgres.ClearResetToken"

	query := `
		UPDATE sessions
		SET reset_token = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE account_id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ReplaceRefreshToken безусловно перезаписывает хэш refresh-токена:
// у аккаунта не бывает больше одной активной сессии.
func (s *Storage) ReplaceRefreshToken(ctx context.Context, accountID uuid.UUID, hash string, expiresAt time.Time) error {
	const op = "storage.postgres.ReplaceRefreshToken"

	query := `
		INSERT INTO sessions(account_id, refresh_token_hash, refresh_expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id)
		DO UPDATE SET
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			updated_at = now()
	`

	_, err := s.db.Exec(ctx, query, accountID, hash, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateRefreshToken атомарно заменяет oldHash на newHash. Возвращает:
//
//	(true, nil)  — предъявленный токен был актуален, ротация выполнена;
//	(false, nil) — сохранённый хэш уже другой (отзыв или конкурирующая ротация);
//	(false, ErrNotFound) — записи сессии нет.
func (s *Storage) RotateRefreshToken(ctx context.Context, accountID uuid.UUID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	const op = "storage.postgres.RotateRefreshToken"

	const upd = `
		UPDATE sessions
		SET refresh_token_hash = $3, refresh_expires_at = $4, updated_at = now()
		WHERE account_id = $1 AND refresh_token_hash = $2
		RETURNING account_id
	`

	var updated uuid.UUID
	err := s.db.QueryRow(ctx, upd, accountID, oldHash, newHash, expiresAt).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `SELECT 1 FROM sessions WHERE account_id = $1`

	var one int
	err = s.db.QueryRow(ctx, sel, accountID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// ClearRefreshToken обнуляет только поля refresh-токена (logout).
func (s *Storage) ClearRefreshToken(ctx context.Context, accountID uuid.UUID) error {
	const op = "storage.postgres.ClearRefreshToken"

	query := `
		UPDATE sessions
		SET refresh_token_hash = NULL, refresh_expires_at = NULL, updated_at = now()
		WHERE account_id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// PurgeExpired обнуляет просроченные токены подтверждения/сброса и refresh-хэши.
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.PurgeExpired"

	query := `
		UPDATE sessions
		SET confirmation_token = CASE WHEN confirmation_expires_at <= $1 THEN NULL ELSE confirmation_token END,
		    confirmation_expires_at = CASE WHEN confirmation_expires_at <= $1 THEN NULL ELSE confirmation_expires_at END,
		    reset_token = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_token END,
		    reset_expires_at = CASE WHEN reset_expires_at <= $1 THEN NULL ELSE reset_expires_at END,
		    refresh_token_hash = CASE WHEN refresh_expires_at <= $1 THEN NULL ELSE refresh_token_hash END,
		    refresh_expires_at = CASE WHEN refresh_expires_at <= $1 THEN NULL ELSE refresh_expires_at END,
		    updated_at = now()
		WHERE confirmation_expires_at <= $1
		   OR reset_expires_at <= $1
		   OR refresh_expires_at <= $1
	`

	_, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
