package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/identity-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (аккаунт/сессия/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/токен).
	ErrAlreadyExists = errors.New("already exists")
)

// AccountStorage выполняет операции над аккаунтами.
//
// Условные обновления (Increment/Block/Unblock) — точки сериализации троттлера
// подтверждений: из конкурирующих запросов побеждает ровно один, проигравший
// получает false и перечитывает состояние. Обычный read-modify-write здесь
// недопустим.
type AccountStorage interface {
	// SaveAccount создаёт новый аккаунт.
	SaveAccount(ctx context.Context, account *models.Account) error
	// AccountByEmail находит аккаунт по email.
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// AccountByID находит аккаунт по ID.
	AccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// MarkEmailConfirmed выставляет is_email_confirmed и is_active.
	MarkEmailConfirmed(ctx context.Context, id uuid.UUID) error
	// UpdatePasswordHash заменяет хэш пароля.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// IncrementConfirmationAttempts увеличивает счётчик попыток на 1 и фиксирует
	// момент запроса, только если счётчик всё ещё равен expected.
	// Возвращает false, если состояние успел изменить конкурирующий запрос.
	IncrementConfirmationAttempts(ctx context.Context, id uuid.UUID, expected int, now time.Time) (bool, error)
	// BlockAccount выставляет блокировку до until, только если аккаунт ещё не заблокирован.
	BlockAccount(ctx context.Context, id uuid.UUID, until time.Time) (bool, error)
	// UnblockIfElapsed сбрасывает счётчик, момент последнего запроса и блокировку,
	// только если block_until уже наступил.
	UnblockIfElapsed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// SessionStorage выполняет операции над записями сессий (см. models.SessionRecord).
// Поля записи очищаются независимо по назначению.
type SessionStorage interface {
	// SessionByAccountID находит запись сессии аккаунта.
	SessionByAccountID(ctx context.Context, accountID uuid.UUID) (*models.SessionRecord, error)
	// SessionByConfirmationToken находит запись по токену подтверждения почты.
	SessionByConfirmationToken(ctx context.Context, token string) (*models.SessionRecord, error)
	// SessionByResetToken находит запись по токену сброса пароля.
	SessionByResetToken(ctx context.Context, token string) (*models.SessionRecord, error)
	// SetConfirmationToken перезаписывает токен подтверждения и его срок
	// (запись создаётся, если её ещё нет).
	SetConfirmationToken(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error
	// ClearConfirmationToken обнуляет только поля подтверждения.
	ClearConfirmationToken(ctx context.Context, accountID uuid.UUID) error
	// SetResetToken перезаписывает токен сброса пароля и его срок.
	SetResetToken(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error
	// ClearResetToken обнуляет только поля сброса пароля.
	ClearResetToken(ctx context.Context, accountID uuid.UUID) error
	// ReplaceRefreshToken безусловно перезаписывает хэш refresh-токена:
	// вход с паролем вытесняет предыдущую сессию аккаунта.
	ReplaceRefreshToken(ctx context.Context, accountID uuid.UUID, hash string, expiresAt time.Time) error
	// RotateRefreshToken атомарно заменяет oldHash на newHash.
	// Возвращает false, если сохранённый хэш уже не равен oldHash
	// (токен был отозван либо ротацию выиграл конкурирующий запрос).
	RotateRefreshToken(ctx context.Context, accountID uuid.UUID, oldHash, newHash string, expiresAt time.Time) (bool, error)
	// ClearRefreshToken обнуляет только поля refresh-токена (logout).
	ClearRefreshToken(ctx context.Context, accountID uuid.UUID) error
	// PurgeExpired обнуляет просроченные токены подтверждения/сброса
	// и просроченные refresh-хэши.
	PurgeExpired(ctx context.Context, now time.Time) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	AccountStorage
	SessionStorage
	Close()
}
