// Пакет ratelimit — ограничение частоты ingestion-запросов.
// Счётчики живут в Redis, а не в памяти процесса: лимит действует
// на идентичность суммарно по всем репликам сервиса.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arturkryukov/datavault/internal/apperr"
)

// Limiter — проверка лимита для ключа (идентичности).
type Limiter interface {
	// Allow возвращает nil, если запрос в пределах лимита,
	// и ошибку KindRateLimited при превышении.
	Allow(ctx context.Context, key string) error
}

// RedisLimiter — fixed-window счётчик в Redis (INCR + EXPIRE).
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	logger *slog.Logger
}

// NewRedisLimiter создаёт лимитер: limit запросов в окно window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		logger: logger.With(slog.String("component", "ratelimit")),
	}
}

// Allow инкрементирует счётчик окна и сравнивает с лимитом.
// INCR и EXPIRE в одном pipeline: TTL выставляется атомарно с первым
// инкрементом, окно не может остаться без истечения.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	rkey := windowKey(key, time.Now(), l.window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Недоступность Redis не должна блокировать ingestion:
		// пропускаем запрос, фиксируем проблему в логе.
		l.logger.Warn("Redis недоступен, лимит не проверен",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if incr.Val() > l.limit {
		return apperr.New(apperr.KindRateLimited,
			"превышен лимит загрузок, повторите позже")
	}
	return nil
}

// windowKey строит ключ Redis для текущего окна.
// Окно идентифицируется номером интервала от эпохи: все реплики
// сервиса считают в один и тот же ключ.
func windowKey(key string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return fmt.Sprintf("dv:ratelimit:%s:%d", key, bucket)
}
