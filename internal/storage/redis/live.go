package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "Traitors-Arena/internal/errors"
	"Traitors-Arena/pkg/logger"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
}

// LiveCache 基于 Redis 实现观战计数与视图缓存。多节点部署时
// 各节点共享同一份计数,单节点故障不影响对局推进。
type LiveCache struct {
	client *goredis.Client
	logger *slog.Logger
}

// NewLiveCache 建立连接并做一次连通性探测。
func NewLiveCache(ctx context.Context, cfg Config) (*LiveCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeCacheFailure, err, "连接 Redis 失败")
	}
	return &LiveCache{client: client, logger: logger.Named("redis")}, nil
}

func spectatorKey(matchID string) string { return "arena:spectators:" + matchID }
func viewKey(matchID string) string      { return "arena:view:" + matchID }

// Incr 实现 game.SpectatorCounter。
func (c *LiveCache) Incr(ctx context.Context, matchID string) (int64, error) {
	count, err := c.client.Incr(ctx, spectatorKey(matchID)).Result()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeCacheFailure, err, "观战计数自增失败")
	}
	return count, nil
}

// Decr 实现 game.SpectatorCounter,计数不会降到零以下。
func (c *LiveCache) Decr(ctx context.Context, matchID string) (int64, error) {
	count, err := c.client.Decr(ctx, spectatorKey(matchID)).Result()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeCacheFailure, err, "观战计数自减失败")
	}
	if count < 0 {
		c.client.Set(ctx, spectatorKey(matchID), 0, 0)
		return 0, nil
	}
	return count, nil
}

// Count 实现 game.SpectatorCounter,键不存在时计数为零。
func (c *LiveCache) Count(ctx context.Context, matchID string) (int64, error) {
	count, err := c.client.Get(ctx, spectatorKey(matchID)).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, xerrors.Wrap(xerrors.CodeCacheFailure, err, "读取观战计数失败")
	}
	return count, nil
}

// GetView 实现 game.ViewCache。
func (c *LiveCache) GetView(ctx context.Context, matchID string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, viewKey(matchID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("读取视图缓存失败", slog.Any("error", err), slog.String("match_id", matchID))
		}
		return nil, false
	}
	return payload, true
}

// SetView 实现 game.ViewCache,写入失败只记录日志。
func (c *LiveCache) SetView(ctx context.Context, matchID string, payload []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, viewKey(matchID), payload, ttl).Err(); err != nil {
		c.logger.Warn("写入视图缓存失败", slog.Any("error", err), slog.String("match_id", matchID))
	}
}

// Close 关闭底层连接。
func (c *LiveCache) Close() error {
	return c.client.Close()
}
