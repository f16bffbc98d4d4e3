package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis はRedisの文字列キーにトークンを保持するストア。
// ポータルを複数台で動かす場合に使う。
type Redis struct {
	client *redis.Client
	key    string
	// ttl はキーの有効期限。0の場合は期限を設定しない。
	ttl time.Duration
}

// NewRedis はkeyに束縛されたRedisストアを生成する。
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

// Get はキーに対応するトークンを返す。
func (r *Redis) Get(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "get", Key: r.key, Err: err}
	}
	return token, token != "", nil
}

// Set はトークンを保存する。空文字列の場合はキーを削除する。
func (r *Redis) Set(ctx context.Context, token string) error {
	if token == "" {
		if err := r.client.Del(ctx, r.key).Err(); err != nil {
			return &StorageError{Op: "clear", Key: r.key, Err: err}
		}
		return nil
	}
	if err := r.client.Set(ctx, r.key, token, r.ttl).Err(); err != nil {
		return &StorageError{Op: "set", Key: r.key, Err: err}
	}
	return nil
}

// Clear はキーを削除する。
func (r *Redis) Clear(ctx context.Context) error {
	return r.Set(ctx, "")
}
