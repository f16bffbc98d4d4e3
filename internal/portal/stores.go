package portal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/creche/internal/config"
	"github.com/nao1215/creche/pkg/tokenstore"
)

// redisKeyPrefix はRedisに保存するトークンのキー接頭辞。
const redisKeyPrefix = "creche:portal:"

// OpenStores は設定に従ってトークンストアの生成方法を用意する。
// 戻り値のcloseは接続を閉じる。
func OpenStores(ctx context.Context, cfg config.TokenStoreConfig, logger *zap.Logger) (StoreFactory, func() error, error) {
	switch cfg.Kind {
	case config.TokenStoreSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		if err := tokenstore.MigrateSQLite(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("トークンストアの初期化に失敗: %w", err)
		}
		factory := func(key string) tokenstore.Store { return tokenstore.NewSQLite(db, key) }
		return factory, db.Close, nil

	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
		}
		ttl := time.Duration(cookieMaxAge) * time.Second
		factory := func(key string) tokenstore.Store { return tokenstore.NewRedis(client, redisKeyPrefix+key, ttl) }
		return factory, client.Close, nil

	default:
		factory := func(string) tokenstore.Store { return tokenstore.NewMemory() }
		return factory, func() error { return nil }, nil
	}
}
