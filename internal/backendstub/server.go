package backendstub

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/creche/pkg/httpserver"
	"github.com/nao1215/creche/pkg/middleware"
	"github.com/nao1215/creche/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// 役割。ポータル側のsession.Roleと同じ値を使う。
const (
	RoleAdmin  = "ADMIN"
	RoleUser   = "USER"
	RoleParent = "PARENT"
)

// defaultTokenTTL は発行するトークンの有効期間。
const defaultTokenTTL = 24 * time.Hour

// Options はスタブサーバーの設定。
type Options struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。0の場合は24時間。
	TokenTTL time.Duration
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
}

// Server はバックエンドスタブのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はSQLiteへのクエリ実行オブジェクト。
	queries *Queries
	// jwtSecret はJWT署名用の秘密鍵。
	jwtSecret  string
	tokenTTL   time.Duration
	bcryptCost int
	logger     *zap.Logger
}

// Migrate はスタブのテーブルを作成する。
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return migration.Run(ctx, db, migrations, "migrations", "backendstub", logger)
}

// NewServer はマイグレーション済みのdbを使うスタブサーバーを生成する。
func NewServer(db *sql.DB, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	if len(opts.AllowedOrigins) > 0 {
		router.Use(middleware.CORS(opts.AllowedOrigins))
	}

	s := &Server{
		router:     router,
		port:       opts.Port,
		queries:    NewQueries(db),
		jwtSecret:  opts.JWTSecret,
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
		logger:     logger,
	}
	s.setupRoutes()

	return s
}

// Handler はルーティング済みのハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終わるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// SeedAdmin は管理者アカウントが無ければ作成する。既に存在する場合は何もしない。
func (s *Server) SeedAdmin(ctx context.Context, email, password string) error {
	_, err := s.queries.GetUserByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("管理者アカウントの取得に失敗: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	id, err := s.queries.CreateUser(ctx, CreateUserParams{
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("管理者アカウントの作成に失敗: %w", err)
	}
	s.logger.Info("管理者アカウントを作成しました", zap.Int64("user_id", id), zap.String("email", email))
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証エンドポイント（認証不要）
	auth := s.router.Group("/api/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/register", s.handleRegister())
		auth.GET("/me", middleware.JWTAuth(s.jwtSecret), s.handleMe())
	}

	api := s.router.Group("/api")
	api.Use(middleware.JWTAuth(s.jwtSecret))
	{
		parent := api.Group("/parent", middleware.RequireRole(RoleParent))
		{
			parent.GET("/children", s.handleListOwnChildren())
			parent.POST("/children", s.handleCreateChild())
			parent.GET("/appointments", s.handleListOwnAppointments())
			parent.POST("/appointments", s.handleCreateAppointment())
		}

		admin := api.Group("/admin", middleware.RequireRole(RoleAdmin))
		{
			admin.GET("/children", s.handleListChildren())
			admin.PATCH("/children/:id/approve", s.handleApproveChild())
			admin.GET("/appointments", s.handleListAppointments())
		}

		user := api.Group("/user", middleware.RequireRole(RoleUser, RoleAdmin))
		{
			user.GET("/appointments", s.handleListAppointments())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "backend-stub"})
	})
}
