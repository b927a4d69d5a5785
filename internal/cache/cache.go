// cache реализует список отозванных refresh-токенов поверх Redis.
//
// Кэш — исключительно негативный быстрый путь: попадание означает, что токен
// уже отозван (ротация, logout, смена пароля), и запрос отклоняется без
// похода в БД. Промах кэша ничего не доказывает — решение о валидности всегда
// принимает условная перезапись хэша в БД. Поэтому потеря Redis или его
// недоступность безопасны: сервис лишь теряет ранний отказ.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix — префикс ключей по умолчанию.
const DefaultPrefix = "identity:rt:"

// RefreshCache — контракт списка отозванных refresh-токенов.
// Ключ — sha256-хэш токена в base64url, сам токен в Redis не попадает.
type RefreshCache interface {
	// IsRevoked сообщает, помечен ли хэш как отозванный.
	IsRevoked(ctx context.Context, hash string) (bool, error)
	// MarkRevoked помечает хэш отозванным на срок ttl.
	// Дольше жить метке незачем: к этому моменту истекает и сам токен.
	MarkRevoked(ctx context.Context, hash string, ttl time.Duration) error
	// Close закрывает клиент Redis.
	Close() error
}

type revocationList struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется DefaultPrefix.
func NewRedisCache(redisURL, prefix string) (RefreshCache, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &revocationList{rdb: rdb, prefix: prefix}, nil
}

func (c *revocationList) key(hash string) string { return c.prefix + hash }

func (c *revocationList) IsRevoked(ctx context.Context, hash string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(hash)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (c *revocationList) MarkRevoked(ctx context.Context, hash string, ttl time.Duration) error {
	if ttl <= 0 {
		// Токен уже истёк, метка не нужна.
		return nil
	}

	return c.rdb.Set(ctx, c.key(hash), "1", ttl).Err()
}

func (c *revocationList) Close() error { return c.rdb.Close() }
