package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — плоская роль аккаунта. Политик авторизации сервис не вычисляет,
// роль лишь попадает в claims access-токена.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account — учётная запись с состоянием подтверждения почты и блокировки.
//
// Инвариант: IsBlocked == true тогда и только тогда, когда BlockUntil установлен
// и находится в будущем, либо счётчик попыток превысил предел. Согласованность
// этих полей поддерживает троттлер подтверждений (service.RequestConfirmation);
// никакой другой код их не мутирует.
type Account struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	Role         Role

	IsEmailConfirmed bool
	IsActive         bool

	// FailedConfirmationAttempts — число реально выпущенных токенов подтверждения
	// с момента последнего сброса; отказ по rate-limit счётчик не увеличивает.
	FailedConfirmationAttempts int
	// LastConfirmationRequest — момент последнего выпуска токена подтверждения (UTC).
	LastConfirmationRequest *time.Time

	IsBlocked  bool
	BlockUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlockedAt сообщает, активна ли блокировка аккаунта в момент now.
func (a *Account) BlockedAt(now time.Time) bool {
	return a.BlockUntil != nil && a.BlockUntil.After(now)
}
