// Package logging はzapによる構造化ロガーの生成を提供する。
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ログファイルのローテーション設定。
const (
	rotationTime = 24 * time.Hour
	maxAge       = 7 * 24 * time.Hour
)

// Config はロガーの設定。
type Config struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// Dev が真の場合は開発者向けのコンソール形式で出力する。
	Dev bool
	// File が空でない場合、標準出力に加えて日次でローテーションするファイルにJSON形式で書き出す。
	// 実際のファイル名は File に日付の接尾辞を付けたもので、File 自体は最新ファイルへのリンクになる。
	File string
}

// New は設定に従ってzap.Loggerを生成する。
// 本番モードではJSON形式で標準出力に書き出す。
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		TimeKey:       "ts",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	})

	var fileCore zapcore.Core
	if cfg.File != "" {
		w, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(rotationTime),
			rotatelogs.WithMaxAge(maxAge),
		)
		if err != nil {
			return nil, fmt.Errorf("ログファイルの準備に失敗: %w", err)
		}
		fileCore = zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	}

	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(level)
		if fileCore == nil {
			return c.Build()
		}
		return c.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	if fileCore != nil {
		core = zapcore.NewTee(core, fileCore)
	}
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// parseLevel は文字列をログレベルに変換する。不明な値はinfoとして扱う。
func parseLevel(s string) zapcore.Level {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(strings.TrimSpace(s))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
