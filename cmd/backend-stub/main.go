// バックエンドスタブのエントリポイント。
// ポータルのローカル開発と結合確認のために、creche のREST APIを模したサーバーを起動する。
package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/creche/internal/backendstub"
	"github.com/nao1215/creche/internal/config"
	"github.com/nao1215/creche/pkg/logging"
)

func main() {
	cfg := config.LoadStub()

	logger, err := logging.New(logging.Config{Level: cfg.Logger.Level, Dev: cfg.Logger.Dev, File: cfg.Logger.File})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	if err := backendstub.Migrate(ctx, db, logger); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	server := backendstub.NewServer(db, backendstub.Options{
		Port:           cfg.Port,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: []string{cfg.AllowedOrigin},
	}, logger)
	if err := server.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatal("管理者アカウントの作成に失敗", zap.Error(err))
	}

	logger.Info("バックエンドスタブを起動します", zap.String("port", cfg.Port), zap.String("db", cfg.DBPath))
	if err := server.Run(ctx); err != nil {
		logger.Fatal("バックエンドスタブの起動に失敗", zap.Error(err))
	}
}
