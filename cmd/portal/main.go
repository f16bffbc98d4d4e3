// crecheポータルのエントリポイント。
// ブラウザセッションごとにログイン状態を管理し、バックエンドAPIを呼び出すHTML画面を提供する。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/creche/internal/config"
	"github.com/nao1215/creche/internal/portal"
	"github.com/nao1215/creche/pkg/logging"
)

// janitorInterval はアイドルセッションを掃除する間隔。
const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logger.Level, Dev: cfg.Logger.Dev, File: cfg.Logger.File})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := portal.OpenStores(ctx, cfg.TokenStore, logger)
	if err != nil {
		logger.Fatal("トークンストアの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = closeStores() }()

	registry := portal.NewRegistry(portal.RegistryConfig{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout(),
		Stores:      stores,
		IdleTimeout: cfg.Portal.SessionIdle,
	}, logger)
	defer registry.Close()
	go registry.RunJanitor(ctx, janitorInterval)

	server, err := portal.NewServer(registry, portal.Options{
		Port:         cfg.App.Port,
		StartupWait:  cfg.Portal.StartupWait,
		CookieSecure: cfg.Portal.CookieSecure,
	}, logger)
	if err != nil {
		logger.Fatal("ポータルサーバーの初期化に失敗", zap.Error(err))
	}

	logger.Info("ポータルを起動します",
		zap.String("port", cfg.App.Port),
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("token_store", string(cfg.TokenStore.Kind)),
	)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("ポータルの起動に失敗", zap.Error(err))
	}
}
