package portal

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/creche/internal/authz"
	"github.com/nao1215/creche/internal/session"
	"github.com/nao1215/creche/pkg/httpserver"
	"github.com/nao1215/creche/pkg/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面のパス。
const (
	PathLogin    = "/login"
	PathRegister = "/register"
	PathLogout   = "/logout"
	PathHome     = "/"
)

// destinations は権限判定で使うリダイレクト先。
var destinations = authz.Destinations{Login: PathLogin, Home: PathHome}

// Options はポータルサーバーの設定。
type Options struct {
	// Port はリッスンポート。
	Port string
	// StartupWait は新しいセッションの本人確認を待つ最大時間。
	StartupWait time.Duration
	// CookieSecure はセッションCookieにSecure属性を付けるかどうか。
	CookieSecure bool
}

// Server はポータルのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// registry はブラウザセッションごとのセッションマネージャ。
	registry *Registry

	startupWait  time.Duration
	cookieSecure bool
	logger       *zap.Logger
}

// NewServer は新しいポータルサーバーを生成する。
func NewServer(registry *Registry, opts Options, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("テンプレートの読み込みに失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.SetHTMLTemplate(tmpl)

	s := &Server{
		router:       router,
		port:         opts.Port,
		registry:     registry,
		startupWait:  opts.StartupWait,
		cookieSecure: opts.CookieSecure,
		logger:       logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はルーティング済みのハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終わるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "portal", "sessions": s.registry.Len()})
	})

	pages := s.router.Group("/", s.withSession())
	{
		// 認証不要
		public := pages.Group("", s.gate(authz.Public))
		public.GET(PathLogin, s.handleLoginForm())
		public.POST(PathLogin, s.handleLogin())
		public.GET(PathRegister, s.handleRegisterForm())
		public.POST(PathRegister, s.handleRegister())
		public.POST(PathLogout, s.handleLogout())

		// ログイン済みであれば役割を問わない
		authed := pages.Group("", s.gate(authz.Authenticated()))
		authed.GET(PathHome, s.handleHome())
		authed.GET("/profile", s.handleProfile())

		parent := pages.Group("/parent", s.gate(authz.Role(session.RoleParent)))
		parent.GET("/children", s.handleParentChildren())
		parent.POST("/children", s.handleCreateChild())
		parent.GET("/appointments", s.handleParentAppointments())
		parent.POST("/appointments", s.handleCreateAppointment())

		admin := pages.Group("/admin", s.gate(authz.Role(session.RoleAdmin)))
		admin.GET("/children", s.handleAdminChildren())
		admin.POST("/children/:id/approve", s.handleApproveChild())
		admin.GET("/appointments", s.handleAppointments("/api/admin/appointments"))

		user := pages.Group("/user", s.gate(authz.AnyRole(session.RoleUser, session.RoleAdmin)))
		user.GET("/appointments", s.handleAppointments("/api/user/appointments"))
	}
}
