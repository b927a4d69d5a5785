package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord — персистентная связка токенов одного аккаунта: refresh-токен
// (хранится только его хэш), токен подтверждения почты и токен сброса пароля.
//
// Описание:
//   - на один аккаунт приходится не более одной записи (account_id — первичный ключ),
//     запись создаётся лениво при первом выпуске любого из токенов;
//   - одновременно существует не более одного непросроченного токена подтверждения:
//     выпуск нового перезаписывает предыдущий;
//   - поля очищаются независимо по назначению: сброс refresh-токена не трогает
//     токен подтверждения и наоборот;
//   - наличие RefreshTokenHash — единственный механизм отзыва сессии: очистка поля
//     немедленно делает refresh-токен непригодным.
type SessionRecord struct {
	AccountID uuid.UUID

	// RefreshTokenHash — sha256 от refresh-токена в base64url; сам токен
	// на сервере не хранится.
	RefreshTokenHash *string
	RefreshExpiresAt *time.Time

	ConfirmationToken     *string
	ConfirmationExpiresAt *time.Time

	ResetToken     *string
	ResetExpiresAt *time.Time

	UpdatedAt time.Time
}
