package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/pkg/log"
	"github.com/pribylovaa/identity-service/internal/pkg/redact"
	"github.com/pribylovaa/identity-service/internal/storage"
)

// SignUp регистрирует новый аккаунт и выпускает первый токен подтверждения.
//
// Сбой любой операции после создания аккаунта (выпуск токена, доставка письма)
// логируется, но регистрацию не откатывает: аккаунт остаётся в состоянии
// "не подтверждён", подтверждение можно запросить повторно.
func (s *Service) SignUp(ctx context.Context, email, username, password string) (*models.Account, error) {
	const op = "service.auth.SignUp"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.AccountByEmail(ctx, normEmail)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           uuid.New(),
		Email:        normEmail,
		Username:     strings.TrimSpace(username),
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.RequestConfirmation(ctx, account.ID); err != nil {
		lg.Warn("signup_confirmation_issue_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
			slog.String("err", err.Error()),
		)
	}

	return account, nil
}

// SignIn выполняет вход по email+пароль и выпускает пару токенов,
// безусловно вытесняя предыдущую сессию аккаунта.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.TokenPair, *models.Account, error) {
	const op = "service.auth.SignIn"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	account, err := s.storage.AccountByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(account.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := time.Now().UTC()
	if account.BlockedAt(now) {
		return nil, nil, fmt.Errorf("%s: %w", op, &BlockedError{RetryAfter: account.BlockUntil.Sub(now)})
	}

	if !account.IsEmailConfirmed {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailNotConfirmed)
	}

	pair, refreshHash, refreshExpiresAt, err := s.mintTokenPair(ctx, account, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	// Хэш вытесняемой сессии нужен, чтобы пометить его отозванным в кэше.
	var (
		oldHash string
		oldExp  *time.Time
	)
	if rec, err := s.storage.SessionByAccountID(ctx, account.ID); err == nil && rec.RefreshTokenHash != nil {
		oldHash = *rec.RefreshTokenHash
		oldExp = rec.RefreshExpiresAt
	}

	if err := s.storage.ReplaceRefreshToken(ctx, account.ID, refreshHash, refreshExpiresAt); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.cacheRevoke(ctx, oldHash, oldExp)

	return pair, account, nil
}

// Refresh обновляет пару токенов по refresh-токену.
//
// Порядок проверок фиксирован: сначала подпись и срок (дешёвая проверка),
// затем сверка с сохранённым хэшем (отзыв). Ротация атомарна: предыдущий
// токен становится непригодным в момент условной перезаписи хэша.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "service.auth.Refresh"

	lg := log.From(ctx)

	accountID, err := s.parseRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	oldHash := hashToken(refreshToken)

	// Быстрый отказ по кэшу; источник истины — условная перезапись в БД.
	if s.rcache != nil {
		if revoked, cerr := s.rcache.IsRevoked(ctx, oldHash); cerr == nil && revoked {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}
	}

	account, err := s.storage.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	pair, newHash, refreshExpiresAt, err := s.mintTokenPair(ctx, account, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rotated, err := s.storage.RotateRefreshToken(ctx, account.ID, oldHash, newHash, refreshExpiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !rotated {
		lg.Warn("refresh_rotation_lost",
			slog.String("op", op),
			slog.String("account_id", account.ID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	s.cacheRevoke(ctx, oldHash, nil)

	return pair, nil
}

// Logout отзывает активную сессию аккаунта: обнуляются только поля
// refresh-токена, токены подтверждения/сброса остаются нетронутыми.
func (s *Service) Logout(ctx context.Context, accountID uuid.UUID) error {
	const op = "service.auth.Logout"

	rec, err := s.storage.SessionByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.ClearRefreshToken(ctx, accountID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rec.RefreshTokenHash != nil {
		s.cacheRevoke(ctx, *rec.RefreshTokenHash, rec.RefreshExpiresAt)
	}

	return nil
}

// Authenticate проверяет access-токен и возвращает идентичность из его claims.
// Транспорт вызывает её до диспетчеризации защищённых маршрутов.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (uuid.UUID, string, models.Role, error) {
	const op = "service.auth.Authenticate"

	uid, email, role, err := s.validateAccessToken(accessToken)
	if err != nil {
		return uuid.Nil, "", "", fmt.Errorf("%s: %w", op, err)
	}

	return uid, email, role, nil
}

// cacheRevoke помечает хэш вытесненного refresh-токена отозванным в кэше.
// Кэш — best-effort: его сбои только логируются. TTL метки — остаток жизни
// токена, если он известен, иначе верхняя граница RefreshTokenTTL.
func (s *Service) cacheRevoke(ctx context.Context, hash string, expiresAt *time.Time) {
	if s.rcache == nil || hash == "" {
		return
	}

	ttl := s.cfg.RefreshTokenTTL
	if expiresAt != nil {
		ttl = time.Until(*expiresAt)
	}

	if err := s.rcache.MarkRevoked(ctx, hash, ttl); err != nil {
		log.From(ctx).Warn("cache_revoke_failed", slog.String("err", err.Error()))
	}
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем (bcrypt, постоянное время).
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
