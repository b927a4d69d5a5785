// service содержит бизнес-логику identity-сервиса: регистрацию и вход,
// конечный автомат троттлинга подтверждений почты с прогрессирующей
// блокировкой, выпуск/ротацию пар токенов и сброс пароля. Работа с
// хранилищем идёт через интерфейсы из пакета storage, доставка писем —
// через интерфейс Notifier.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; экземпляр безопасен для
//     конкурентного использования из разных горутин при условии, что
//     переданное хранилище потокобезопасно. Сериализация конкурирующих
//     мутаций одного аккаунта выполняется условными обновлениями на
//     стороне хранилища, а не in-process-блокировками.
//   - Ошибки возвращаются типизированными и далее маппятся транспортом
//     на HTTP-коды (см. комментарии к переменным ошибок ниже).
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pribylovaa/identity-service/internal/cache"
	"github.com/pribylovaa/identity-service/internal/config"
	"github.com/pribylovaa/identity-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или аккаунт не найден.
	// Ошибка намеренно одна на оба случая. Транспорт: 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken — e-mail уже занят другим аккаунтом. Транспорт: 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrEmailNotConfirmed — вход до подтверждения почты. Транспорт: 400.
	ErrEmailNotConfirmed = errors.New("email not confirmed")

	// ErrAlreadyConfirmed — запрос токена подтверждения для уже
	// подтверждённого аккаунта. Транспорт: 400.
	ErrAlreadyConfirmed = errors.New("email already confirmed")

	// ErrAccountBlocked — активна блокировка выпусков токена подтверждения.
	// Возвращается внутри BlockedError с остатком блокировки. Транспорт: 403.
	ErrAccountBlocked = errors.New("account blocked")

	// ErrRateLimited — повторный запрос токена до истечения предыдущего.
	// Возвращается внутри RateLimitedError с остатком окна. Транспорт: 429.
	ErrRateLimited = errors.New("confirmation rate limited")

	// ErrInvalidToken — токен (access/refresh/подтверждение/сброс) некорректен
	// по формату/подписи или отсутствует в хранилище. Транспорт: 401 либо 400
	// в зависимости от эндпоинта.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: как ErrInvalidToken.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — refresh-токен был вытеснен ротацией или logout и
	// недействителен независимо от подписи. Транспорт: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// BlockedError несёт остаток активной блокировки. errors.Is(err, ErrAccountBlocked).
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("account blocked, retry after %s", e.RetryAfter)
}

func (e *BlockedError) Unwrap() error { return ErrAccountBlocked }

// RateLimitedError несёт остаток окна rate-limit. errors.Is(err, ErrRateLimited).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("confirmation rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Notifier доставляет письма с токенами. Доставка асинхронна по смыслу:
// её сбой не откатывает породившую операцию (см. RequestConfirmation).
type Notifier interface {
	// SendConfirmation отправляет письмо с токеном подтверждения почты.
	SendConfirmation(ctx context.Context, email, token, displayName string) error
	// SendPasswordReset отправляет письмо с токеном сброса пароля.
	SendPasswordReset(ctx context.Context, email, token, displayName string) error
}

// Service описывает бизнес-логику identity-сервиса.
type Service struct {
	storage  storage.Storage
	notifier Notifier
	cfg      config.AuthConfig
	rcache   cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, notifier Notifier, cfg config.AuthConfig) *Service {
	return &Service{
		storage:  storage,
		notifier: notifier,
		cfg:      cfg,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
