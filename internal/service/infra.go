package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/config"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/database"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/repository"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// infra 可选的外部依赖（Redis / PostgreSQL），未启用时为 nil
type infra struct {
	redisClient *redis.Client
	db          *sql.DB
	events      *repository.RiskEventsRepository
}

// openInfra 按配置连接 Redis 与数据库；启用但连接失败时返回错误
func openInfra(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*infra, error) {
	in := &infra{}

	if cfg.RedisEnabled {
		client := store.NewRedisClient(&cfg.Redis)
		if err := store.Ping(ctx, client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		in.redisClient = client
		logger.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		in.db = db
		in.events = repository.NewRiskEventsRepository(db, logger)
		if err := in.events.EnsureSchema(ctx); err != nil {
			in.close()
			return nil, fmt.Errorf("failed to prepare risk_events schema: %w", err)
		}
		logger.Info("DB enabled", zap.String("host", cfg.Database.Host))
	}

	return in, nil
}

// kv 返回状态缓存；Redis 未启用时为 nil
func (in *infra) kv() store.KV {
	if in.redisClient == nil {
		return nil
	}
	return store.NewRedisKV(in.redisClient)
}

func (in *infra) close() {
	if in.redisClient != nil {
		_ = in.redisClient.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
