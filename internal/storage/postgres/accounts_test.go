package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

// Интеграционные тесты репозитория аккаунтов:
// - поднимают реальный PostgreSQL через testcontainers-go (postgres:16-alpine);
// - применяют миграции из ./migrations;
// - проверяют happy-path, уникальность email (CITEXT) и условные обновления
//   троттлера (инкремент счётчика, блокировка, снятие блокировки).
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// repoRootFromThisFile — определяет корень репозитория относительно текущего файла тестов.
// Используется для поиска SQL-миграций в каталоге ./migrations независимо от текущего рабочего каталога.
func repoRootFromThisFile() string {
	// internal/storage/postgres/... -> подняться на 3 уровня до корня.
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", ".."))
}

// readMigration — читает содержимое SQL-миграции из подкаталога ./migrations.
func readMigration(t *testing.T, name string) string {
	t.Helper()
	root := repoRootFromThisFile()
	path := filepath.Join(root, "migrations", name)
	b, err := os.ReadFile(path)
	require.NoError(t, err, "read migration %s", path)
	return string(b)
}

// startPostgres — поднимает временный экземпляр PostgreSQL, применяет миграции
// и возвращает инициализированное хранилище и функцию очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	// применяем миграции.
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, readMigration(t, "1_init_accounts.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, readMigration(t, "2_init_sessions.up.sql"))
	require.NoError(t, err)

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

func newAccount(email string) *models.Account {
	now := time.Now().UTC()
	return &models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestIntegration_SaveAccount_And_ByEmail_And_ByID_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("User@Example.Com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	// CITEXT: поиск регистронезависим.
	gotByEmail, err := st.AccountByEmail(context.Background(), strings.ToLower(acc.Email))
	require.NoError(t, err)
	require.Equal(t, acc.ID, gotByEmail.ID)
	require.Equal(t, models.RoleUser, gotByEmail.Role)
	require.False(t, gotByEmail.IsEmailConfirmed)
	require.Zero(t, gotByEmail.FailedConfirmationAttempts)
	require.Nil(t, gotByEmail.LastConfirmationRequest)
	require.Nil(t, gotByEmail.BlockUntil)
	require.WithinDuration(t, acc.CreatedAt, gotByEmail.CreatedAt, time.Second)

	gotByID, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, acc.ID, gotByID.ID)
}

func TestIntegration_SaveAccount_UniqueEmail_CaseInsensitive_Violation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	require.NoError(t, st.SaveAccount(context.Background(), newAccount("user@example.com")))

	err := st.SaveAccount(context.Background(), newAccount("USER@EXAMPLE.COM"))
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_AccountLookups_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.AccountByEmail(context.Background(), "absent@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.AccountByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_MarkEmailConfirmed_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("confirm@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	require.NoError(t, st.MarkEmailConfirmed(context.Background(), acc.ID))

	got, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.True(t, got.IsEmailConfirmed)
	require.True(t, got.IsActive)

	require.ErrorIs(t, st.MarkEmailConfirmed(context.Background(), uuid.New()), storage.ErrNotFound)
}

func TestIntegration_UpdatePasswordHash_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("pw@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	require.NoError(t, st.UpdatePasswordHash(context.Background(), acc.ID, "new-hash"))

	got, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
}

func TestIntegration_IncrementConfirmationAttempts_CAS(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("cas@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	now := time.Now().UTC()

	ok, err := st.IncrementConfirmationAttempts(context.Background(), acc.ID, 0, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.FailedConfirmationAttempts)
	require.NotNil(t, got.LastConfirmationRequest)
	require.WithinDuration(t, now, *got.LastConfirmationRequest, time.Second)

	// Устаревший снимок (expected=0 при фактическом 1) — промах без ошибки.
	ok, err = st.IncrementConfirmationAttempts(context.Background(), acc.ID, 0, now)
	require.NoError(t, err)
	require.False(t, ok)

	// Несуществующий аккаунт — ErrNotFound, а не промах.
	_, err = st.IncrementConfirmationAttempts(context.Background(), uuid.New(), 0, now)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_BlockAccount_OnlyOnce(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("block@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	until := time.Now().UTC().Add(time.Hour)

	ok, err := st.BlockAccount(context.Background(), acc.ID, until)
	require.NoError(t, err)
	require.True(t, ok)

	// Повторная блокировка проигрывает: is_blocked уже TRUE.
	ok, err = st.BlockAccount(context.Background(), acc.ID, until.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.True(t, got.IsBlocked)
	require.NotNil(t, got.BlockUntil)
	require.WithinDuration(t, until, *got.BlockUntil, time.Second)
}

func TestIntegration_UnblockIfElapsed_ResetsThrottlerState(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("unblock@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	now := time.Now().UTC()
	_, err := st.IncrementConfirmationAttempts(context.Background(), acc.ID, 0, now)
	require.NoError(t, err)

	// Блокировка в прошлом: снятие проходит и обнуляет состояние троттлера.
	ok, err := st.BlockAccount(context.Background(), acc.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.UnblockIfElapsed(context.Background(), acc.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := st.AccountByID(context.Background(), acc.ID)
	require.NoError(t, err)
	require.False(t, got.IsBlocked)
	require.Nil(t, got.BlockUntil)
	require.Nil(t, got.LastConfirmationRequest)
	require.Zero(t, got.FailedConfirmationAttempts)

	// Без активной блокировки снятие — промах.
	ok, err = st.UnblockIfElapsed(context.Background(), acc.ID, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegration_UnblockIfElapsed_FutureBlock_Miss(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	acc := newAccount("future@example.com")
	require.NoError(t, st.SaveAccount(context.Background(), acc))

	now := time.Now().UTC()
	ok, err := st.BlockAccount(context.Background(), acc.ID, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.UnblockIfElapsed(context.Background(), acc.ID, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegration_AccountQueries_ContextCanceled(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.AccountByEmail(ctx, "user@example.com")
	require.ErrorIs(t, err, context.Canceled)

	_, err = st.AccountByID(ctx, uuid.New())
	require.ErrorIs(t, err, context.Canceled)
}
