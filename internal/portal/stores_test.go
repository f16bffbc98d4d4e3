package portal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/nao1215/creche/internal/config"
)

// TestOpenStores は設定ごとのストア生成を検証する。
func TestOpenStores(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.TokenStoreConfig
	}{
		{name: "memory", cfg: config.TokenStoreConfig{Kind: config.TokenStoreMemory}},
		{name: "sqlite", cfg: config.TokenStoreConfig{Kind: config.TokenStoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "portal.db")}},
		{name: "redis", cfg: config.TokenStoreConfig{Kind: config.TokenStoreRedis, RedisAddr: mr.Addr()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			factory, closeFn, err := OpenStores(ctx, tt.cfg, nil)
			if err != nil {
				t.Fatalf("OpenStores()でエラーが発生: %v", err)
			}
			t.Cleanup(func() { _ = closeFn() })

			a := factory(StoreKey("a"))
			b := factory(StoreKey("b"))
			if err := a.Set(ctx, "tok-a"); err != nil {
				t.Fatalf("Set()でエラーが発生: %v", err)
			}
			if _, ok, _ := b.Get(ctx); ok {
				t.Error("別のキーのストアからトークンが読めてはならない")
			}
			token, ok, err := a.Get(ctx)
			if err != nil || !ok || token != "tok-a" {
				t.Errorf("Get() = (%q, %v, %v), want (%q, true, nil)", token, ok, err, "tok-a")
			}
		})
	}

	t.Run("Redisに接続できない場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		_, _, err := OpenStores(context.Background(), config.TokenStoreConfig{Kind: config.TokenStoreRedis, RedisAddr: "127.0.0.1:1"}, nil)
		if err == nil {
			t.Fatal("OpenStores()がエラーを返すべきだが、nilが返った")
		}
	})
}
