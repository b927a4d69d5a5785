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

const accountColumns = `
	id, email, username, password_hash, role,
	is_email_confirmed, is_active,
	failed_confirmation_attempts, last_confirmation_request,
	is_blocked, block_until,
	created_at, updated_at
`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var acc models.Account
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.Username,
		&acc.PasswordHash,
		&acc.Role,
		&acc.IsEmailConfirmed,
		&acc.IsActive,
		&acc.FailedConfirmationAttempts,
		&acc.LastConfirmationRequest,
		&acc.IsBlocked,
		&acc.BlockUntil,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &acc, nil
}

// SaveAccount создаёт новый аккаунт.
func (s *Storage) SaveAccount(ctx context.Context, account *models.Account) error {
	const op = "storage.postgres.SaveAccount"

	query := `
		INSERT INTO accounts(
			id, email, username, password_hash, role,
			is_email_confirmed, is_active,
			failed_confirmation_attempts, last_confirmation_request,
			is_blocked, block_until,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Username,
		account.PasswordHash,
		account.Role,
		account.IsEmailConfirmed,
		account.IsActive,
		account.FailedConfirmationAttempts,
		account.LastConfirmationRequest,
		account.IsBlocked,
		account.BlockUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AccountByEmail находит аккаунт по email.
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const op = "storage.postgres.AccountByEmail"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	acc, err := scanAccount(s.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

// AccountByID находит аккаунт по ID.
func (s *Storage) AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const op = "storage.postgres.AccountByID"

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return acc, nil
}

// MarkEmailConfirmed выставляет is_email_confirmed и is_active.
func (s *Storage) MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.MarkEmailConfirmed"

	query := `
		UPDATE accounts
		SET is_email_confirmed = TRUE, is_active = TRUE, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdatePasswordHash заменяет хэш пароля.
func (s *Storage) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const op = "storage.postgres.UpdatePasswordHash"

	query := `
		UPDATE accounts
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// IncrementConfirmationAttempts увеличивает счётчик попыток, только если он
// всё ещё равен expected (compare-and-swap). Возвращает:
//
//	(true, nil)  — счётчик увеличен этим вызовом;
//	(false, nil) — состояние изменил конкурирующий запрос, нужно перечитать;
//	(false, ErrNotFound) — аккаунт не найден.
func (s *Storage) IncrementConfirmationAttempts(ctx context.Context, id uuid.UUID, expected int, now time.Time) (bool, error) {
	const op = "storage.postgres.IncrementConfirmationAttempts"

	const upd = `
		UPDATE accounts
		SET failed_confirmation_attempts = failed_confirmation_attempts + 1,
		    last_confirmation_request = $3,
		    updated_at = now()
		WHERE id = $1 AND failed_confirmation_attempts = $2
		RETURNING id
	`

	var updated uuid.UUID
	err := s.db.QueryRow(ctx, upd, id, expected, now).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, s.accountExists(ctx, op, id)
}

// BlockAccount выставляет блокировку до until, только если аккаунт ещё не заблокирован.
func (s *Storage) BlockAccount(ctx context.Context, id uuid.UUID, until time.Time) (bool, error) {
	const op = "storage.postgres.BlockAccount"

	const upd = `
		UPDATE accounts
		SET is_blocked = TRUE, block_until = $2, updated_at = now()
		WHERE id = $1 AND is_blocked = FALSE
		RETURNING id
	`

	var updated uuid.UUID
	err := s.db.QueryRow(ctx, upd, id, until).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, s.accountExists(ctx, op, id)
}

// UnblockIfElapsed сбрасывает состояние троттлера, только если блокировка истекла.
func (s *Storage) UnblockIfElapsed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const op = "storage.postgres.UnblockIfElapsed"

	const upd = `
		UPDATE accounts
		SET failed_confirmation_attempts = 0,
		    last_confirmation_request = NULL,
		    is_blocked = FALSE,
		    block_until = NULL,
		    updated_at = now()
		WHERE id = $1 AND block_until IS NOT NULL AND block_until <= $2
		RETURNING id
	`

	var updated uuid.UUID
	err := s.db.QueryRow(ctx, upd, id, now).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, s.accountExists(ctx, op, id)
}

// accountExists различает CAS-промах и отсутствие аккаунта.
func (s *Storage) accountExists(ctx context.Context, op string, id uuid.UUID) error {
	const sel = `SELECT 1 FROM accounts WHERE id = $1`

	var one int
	err := s.db.QueryRow(ctx, sel, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
