package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/identity-service/internal/storage"
)

// Интеграционные тесты репозитория сессий: ленивое создание записи,
// независимые поля по назначению токена, условная ротация refresh-хэша
// и фоновая очистка просроченных токенов.

func saveTestAccount(t *testing.T, st *Storage, email string) uuid.UUID {
	t.Helper()
	acc := newAccount(email)
	require.NoError(t, st.SaveAccount(context.Background(), acc))
	return acc.ID
}

func TestIntegration_SetConfirmationToken_LazyRowAndOverwrite(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	id := saveTestAccount(t, st, "sess1@example.com")
	expires := time.Now().UTC().Add(5 * time.Minute)

	// Записи ещё нет: INSERT ... ON CONFLICT создаёт её.
	require.NoError(t, st.SetConfirmationToken(context.Background(), id, "token-1", expires))

	rec, err := st.SessionByConfirmationToken(context.Background(), "token-1")
	require.NoError(t, err)
	require.Equal(t, id, rec.AccountID)
	require.NotNil(t, rec.ConfirmationToken)
	require.Equal(t, "token-1", *rec.ConfirmationToken)

	// Повторный выпуск перезаписывает токен: старый перестаёт находиться.
	require.NoError(t, st.SetConfirmationToken(context.Background(), id, "token-2", expires))

	_, err = st.SessionByConfirmationToken(context.Background(), "token-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	rec, err = st.SessionByConfirmationToken(context.Background(), "token-2")
	require.NoError(t, err)
	require.Equal(t, id, rec.AccountID)
}

func TestIntegration_ClearConfirmationToken_KeepsOtherFields(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	id := saveTestAccount(t, st, "sess2@example.com")
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, st.SetConfirmationToken(context.Background(), id, "conf-token", expires))
	require.NoError(t, st.ReplaceRefreshToken(context.Background(), id, "refresh-hash", expires))

	require.NoError(t, st.ClearConfirmationToken(context.Background(), id))

	rec, err := st.SessionByAccountID(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, rec.ConfirmationToken)
	require.Nil(t, rec.ConfirmationExpiresAt)
	// Поля refresh не затронуты.
	require.NotNil(t, rec.RefreshTokenHash)
	require.Equal(t, "refresh-hash", *rec.RefreshTokenHash)
}

func TestIntegration_ResetToken_SetLookupClear(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	id := saveTestAccount(t, st, "sess3@example.com")
	expires := time.Now().UTC().Add(30 * time.Minute)

	require.NoError(t, st.SetResetToken(context.Background(), id, "reset-token", expires))

	rec, err := st.SessionByResetToken(context.Background(), "reset-token")
	require.NoError(t, err)
	require.Equal(t, id, rec.AccountID)

	require.NoError(t, st.ClearResetToken(context.Background(), id))

	_, err = st.SessionByResetToken(context.Background(), "reset-token")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_RotateRefreshToken_CAS(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	id := saveTestAccount(t, st, "sess4@example.com")
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, st.ReplaceRefreshToken(context.Background(), id, "hash-1", expires))

	// Актуальный хэш — ротация проходит.
	ok, err := st.RotateRefreshToken(context.Background(), id, "hash-1", "hash-2", expires)
	require.NoError(t, err)
	require.True(t, ok)

	// Предыдущий хэш устарел: повторное предъявление проигрывает.
	ok, err = st.RotateRefreshToken(context.Background(), id, "hash-1", "hash-3", expires)
	require.NoError(t, err)
	require.False(t, ok)

	rec, err := st.SessionByAccountID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "hash-2", *rec.RefreshTokenHash)

	// Нет записи сессии — ErrNotFound, а не промах.
	_, err = st.RotateRefreshToken(context.Background(), uuid.New(), "x", "y", expires)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_ClearRefreshToken_Logout(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	id := saveTestAccount(t, st, "sess5@example.com")
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, st.ReplaceRefreshToken(context.Background(), id, "hash", expires))
	require.NoError(t, st.ClearRefreshToken(context.Background(), id))

	rec, err := st.SessionByAccountID(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, rec.RefreshTokenHash)
	require.Nil(t, rec.RefreshExpiresAt)

	require.ErrorIs(t, st.ClearRefreshToken(context.Background(), uuid.New()), storage.ErrNotFound)
}

func TestIntegration_PurgeExpired_NullsOnlyExpired(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()

	expired := saveTestAccount(t, st, "expired@example.com")
	require.NoError(t, st.SetConfirmationToken(context.Background(), expired, "old-conf", now.Add(-time.Minute)))
	require.NoError(t, st.ReplaceRefreshToken(context.Background(), expired, "old-refresh", now.Add(-time.Minute)))

	alive := saveTestAccount(t, st, "alive@example.com")
	require.NoError(t, st.SetConfirmationToken(context.Background(), alive, "fresh-conf", now.Add(time.Hour)))

	require.NoError(t, st.PurgeExpired(context.Background(), now))

	rec, err := st.SessionByAccountID(context.Background(), expired)
	require.NoError(t, err)
	require.Nil(t, rec.ConfirmationToken)
	require.Nil(t, rec.RefreshTokenHash)

	rec, err = st.SessionByAccountID(context.Background(), alive)
	require.NoError(t, err)
	require.NotNil(t, rec.ConfirmationToken)
	require.Equal(t, "fresh-conf", *rec.ConfirmationToken)
}

func TestIntegration_SessionLookups_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.SessionByAccountID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.SessionByConfirmationToken(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.SessionByResetToken(context.Background(), "ghost")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
