// Package config は環境変数からポータルとバックエンドスタブの設定を読み込む。
//
// 起動時に一度だけ読み込み、実行中に変更することはない。
// カレントディレクトリに .env があれば環境変数より先に読み込む。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TokenStoreKind はトークンストアの永続化方式。
type TokenStoreKind string

const (
	// TokenStoreMemory はプロセス内メモリに保持する。
	TokenStoreMemory TokenStoreKind = "memory"
	// TokenStoreSQLite はSQLiteファイルに保持する。
	TokenStoreSQLite TokenStoreKind = "sqlite"
	// TokenStoreRedis はRedisに保持する。
	TokenStoreRedis TokenStoreKind = "redis"
)

// ErrAPIBaseURLRequired はバックエンドのベースURLが未設定であることを表す。
var ErrAPIBaseURLRequired = errors.New("CRECHE_API_BASE_URLが設定されていません")

// Config はポータルサーバーの設定。
type Config struct {
	App        AppConfig
	API        APIConfig
	TokenStore TokenStoreConfig
	Logger     LoggerConfig
	Portal     PortalConfig
}

// AppConfig はHTTPサーバーの設定。
type AppConfig struct {
	Port string
}

// APIConfig はバックエンドAPIへの接続設定。
type APIConfig struct {
	// BaseURL はバックエンドのベースURL。起動後は変更されない。
	BaseURL string
	// TimeoutSeconds はHTTPリクエストのタイムアウト秒数。0以下で無制限。
	TimeoutSeconds int
}

// TokenStoreConfig はトークンストアの設定。
type TokenStoreConfig struct {
	Kind          TokenStoreKind
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoggerConfig はロガーの設定。
type LoggerConfig struct {
	Level string
	Dev   bool
	// File はログファイルのパス。空の場合は標準出力のみ。
	File string
}

// PortalConfig はブラウザセッションの管理設定。
type PortalConfig struct {
	// StartupWait は新規セッションの起動確認を待つ最大時間。
	StartupWait time.Duration
	// SessionIdle はアクセスがないセッションを破棄するまでの時間。
	SessionIdle time.Duration
	// CookieSecure はセッションCookieにSecure属性を付けるかどうか。
	CookieSecure bool
}

// Load は環境変数からポータルの設定を読み込む。
func Load() (*Config, error) {
	_ = godotenv.Load()

	baseURL := strings.TrimRight(os.Getenv("CRECHE_API_BASE_URL"), "/")
	if baseURL == "" {
		return nil, ErrAPIBaseURLRequired
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("CRECHE_API_BASE_URLが不正です: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DBが不正です: %w", err)
	}

	kind := TokenStoreKind(strings.ToLower(getEnv("TOKEN_STORE", string(TokenStoreMemory))))
	switch kind {
	case TokenStoreMemory, TokenStoreSQLite, TokenStoreRedis:
	default:
		return nil, fmt.Errorf("TOKEN_STOREが不正です: %q", kind)
	}

	return &Config{
		App: AppConfig{
			Port: getEnv("PORT", "8080"),
		},
		API: APIConfig{
			BaseURL:        baseURL,
			TimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 30),
		},
		TokenStore: TokenStoreConfig{
			Kind:          kind,
			SQLitePath:    getEnv("SQLITE_PATH", "portal.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dev:   getEnvAsBool("LOG_DEV", false),
			File:  os.Getenv("LOG_FILE"),
		},
		Portal: PortalConfig{
			StartupWait:  time.Duration(getEnvAsInt("PORTAL_STARTUP_WAIT_MS", 2000)) * time.Millisecond,
			SessionIdle:  time.Duration(getEnvAsInt("PORTAL_SESSION_IDLE_MINUTES", 60)) * time.Minute,
			CookieSecure: getEnvAsBool("COOKIE_SECURE", false),
		},
	}, nil
}

// Timeout はHTTPクライアントのタイムアウトを返す。
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// StubConfig はバックエンドスタブの設定。
type StubConfig struct {
	Port          string
	JWTSecret     string
	DBPath        string
	AdminEmail    string
	AdminPassword string
	AllowedOrigin string
	Logger        LoggerConfig
}

// LoadStub は環境変数からバックエンドスタブの設定を読み込む。
func LoadStub() *StubConfig {
	_ = godotenv.Load()

	return &StubConfig{
		Port:          getEnv("STUB_PORT", "8090"),
		JWTSecret:     getEnv("STUB_JWT_SECRET", "dev-secret"),
		DBPath:        getEnv("STUB_DB_PATH", "backend-stub.db"),
		AdminEmail:    getEnv("STUB_ADMIN_EMAIL", "admin@creche.local"),
		AdminPassword: getEnv("STUB_ADMIN_PASSWORD", "Admin123!"),
		AllowedOrigin: getEnv("STUB_ALLOWED_ORIGIN", "http://localhost:8080"),
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			Dev:   getEnvAsBool("LOG_DEV", false),
			File:  os.Getenv("LOG_FILE"),
		},
	}
}

// getEnv は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
