package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	"github.com/redis/go-redis/v9"
)

type RateLimitRepository interface {
	CheckRateLimit(ctx context.Context, scope, subject string) (bool, int, int, error)
}

type redisRepository struct {
	client *redis.Client
	cfg    config.RateConfig
	now    func() time.Time
}

func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	redisURL := cfg.RedisConnect.GetDSN()
	slog.Info("Connecting to Redis", slog.String("url", fmt.Sprintf("redis://%s:<password>@%s", cfg.RedisConnect.Username, cfg.RedisConnect.Addr())))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = cfg.RedisConnect.DB

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		// the client reconnects on its own, callers decide whether this is fatal
		return client, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("✅ Successfully connected to Redis")

	return client, nil
}

func NewRateLimitRepo(client *redis.Client, cfg config.RateConfig) RateLimitRepository {
	return &redisRepository{client: client, cfg: cfg, now: time.Now}
}

// CheckRateLimit records one attempt for subject within scope using a sliding
// window. Returns isAllowed, attempts left, seconds to wait, error.
func (r *redisRepository) CheckRateLimit(ctx context.Context, scope, subject string) (bool, int, int, error) {
	logger := middleware.LoggerFromContext(ctx)

	key := fmt.Sprintf("rate:%s:%s", scope, subject)
	now := r.now()
	windowStart := now.Add(-r.cfg.WindowSize).UnixNano()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.cfg.WindowSize)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Redis pipeline execution failed for rate limit", slog.String("key", key), slog.Any("error", err))
		return false, 0, 0, fmt.Errorf("redis pipeline error for rate limit check: %w", err)
	}

	attempts := count.Val()
	remaining := r.cfg.MaxAttempts - attempts

	if attempts > r.cfg.MaxAttempts {
		scores, err := r.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{Key: key, Start: 0, Stop: 0}).Result()
		if err != nil || len(scores) == 0 {
			logger.Error("Failed to get oldest attempt time for rate limit", slog.String("key", key), slog.Any("error", err))
			return false, 0, int(r.cfg.WindowSize.Seconds()), fmt.Errorf("failed to get oldest attempt time: %w", err)
		}

		oldest := time.Unix(0, int64(scores[0].Score))
		retryAfter := max(int(oldest.Add(r.cfg.WindowSize).Sub(now).Seconds()), 1)

		logger.Warn("Rate limit exceeded", slog.String("scope", scope), slog.String("subject", subject), slog.Int64("attempts", attempts))

		return false, 0, retryAfter, nil
	}

	logger.Debug("Rate limit check passed", slog.String("scope", scope), slog.Int64("attempts", attempts), slog.Int64("remaining", remaining))

	return true, int(remaining), 0, nil
}
