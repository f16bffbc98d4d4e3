package portal

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/creche/internal/session"
	"github.com/nao1215/creche/pkg/httpclient"
)

// page は全テンプレートに渡す画面データ。
type page struct {
	Title    string
	Identity *session.Identity
	// Path は現在のリクエストパス。再ログイン後の戻り先に使う。
	Path    string
	Refresh int
	Notice  string
	Error   string
	// Reauth はバックエンドが401を返した場合に再ログインの導線を表示する。
	Reauth bool
	Next   string
	Form   any
	Data   any
}

func newPage(c *gin.Context, title string, state session.State) *page {
	return &page{
		Title:    title,
		Identity: state.Identity,
		Path:     c.Request.URL.RequestURI(),
	}
}

// fail はエラー内容をpageに反映する。
// ログイン中に401が返ってもログアウトはせず、再ログインの導線を出すだけにとどめる。
func (p *page) fail(err error) {
	p.Error = displayMessage(err)
	p.Reauth = httpclient.IsUnauthorized(err) && p.Identity != nil
}

// loginForm はログインフォームの入力。検証はセッションマネージャが行う。
type loginForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	Next     string `form:"next"`
}

// registerForm はアカウント作成フォームの入力。
type registerForm struct {
	FullName        string `form:"fullName"`
	Email           string `form:"email"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword" binding:"eqfield=Password"`
}

// childForm は園児プロフィール登録フォームの入力。
type childForm struct {
	FullName    string `form:"fullName" binding:"required,max=120"`
	DateOfBirth string `form:"dateOfBirth" binding:"required,datetime=2006-01-02"`
}

// appointmentForm は見学予約フォームの入力。日時はdatetime-local形式。
type appointmentForm struct {
	ScheduledAt string `form:"scheduledAt" binding:"required,datetime=2006-01-02T15:04"`
	Note        string `form:"note" binding:"max=500"`
}

func (s *Server) handleLoginForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := currentState(c)
		if state.Authenticated() {
			c.Redirect(http.StatusSeeOther, PathHome)
			return
		}
		p := newPage(c, "ログイン", state)
		p.Next = c.Query("next")
		p.Form = loginForm{}
		c.HTML(http.StatusOK, "login.html", p)
	}
}

// handleLogin はログインフォームを処理する。
// 成功時は本人情報の取得まで終わってから遷移するため、遷移先で必ずログイン済みとして判定される。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form loginForm
		_ = c.ShouldBind(&form)
		sess := currentSession(c)

		if _, err := sess.Manager.Login(c.Request.Context(), form.Email, form.Password); err != nil {
			s.logger.Info("ログインに失敗しました", zap.Error(err))
			p := newPage(c, "ログイン", sess.Manager.State())
			p.Next = form.Next
			form.Password = ""
			p.Form = form
			p.fail(err)
			c.HTML(statusFor(err), "login.html", p)
			return
		}
		c.Redirect(http.StatusSeeOther, safeNext(form.Next))
	}
}

func (s *Server) handleRegisterForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := currentState(c)
		if state.Authenticated() {
			c.Redirect(http.StatusSeeOther, PathHome)
			return
		}
		p := newPage(c, "アカウント作成", state)
		p.Form = registerForm{}
		c.HTML(http.StatusOK, "register.html", p)
	}
}

// handleRegister はアカウント作成フォームを処理する。作成後は同じ資格情報でログインまで行う。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form registerForm
		sess := currentSession(c)

		err := c.ShouldBind(&form)
		if err != nil {
			err = bindError(err)
		} else {
			_, err = sess.Manager.Register(c.Request.Context(), form.FullName, form.Email, form.Password)
		}
		if err != nil {
			s.logger.Info("アカウント作成に失敗しました", zap.Error(err))
			p := newPage(c, "アカウント作成", sess.Manager.State())
			form.Password, form.ConfirmPassword = "", ""
			p.Form = form
			p.fail(err)
			c.HTML(statusFor(err), "register.html", p)
			return
		}
		c.Redirect(http.StatusSeeOther, PathHome)
	}
}

// handleLogout はトークンと本人情報を破棄してログイン画面へ遷移する。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		currentSession(c).Manager.Logout()
		c.Redirect(http.StatusSeeOther, PathLogin)
	}
}

func (s *Server) handleHome() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "home.html", newPage(c, "ホーム", currentState(c)))
	}
}

func (s *Server) handleProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "profile.html", newPage(c, "プロフィール", currentState(c)))
	}
}

func (s *Server) handleParentChildren() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := newPage(c, "園児プロフィール", currentState(c))
		p.Form = childForm{}
		p.Notice = noticeFor(c.Query("created"))
		s.renderChildren(c, p, http.StatusOK)
	}
}

// handleCreateChild は園児プロフィールを登録する。失敗時は入力を保持したままフォームを再表示する。
func (s *Server) handleCreateChild() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form childForm
		err := c.ShouldBind(&form)
		if err != nil {
			err = bindError(err)
		} else {
			_, err = backendOf(c).createChild(c.Request.Context(), newChild{
				FullName:    strings.TrimSpace(form.FullName),
				DateOfBirth: form.DateOfBirth,
			})
		}
		if err != nil {
			p := newPage(c, "園児プロフィール", currentState(c))
			p.Form = form
			p.fail(err)
			s.renderChildren(c, p, statusFor(err))
			return
		}
		c.Redirect(http.StatusSeeOther, "/parent/children?created=1")
	}
}

// renderChildren は一覧を取得して園児プロフィール画面を描画する。
// 一覧の取得に失敗してもフォームは表示する。
func (s *Server) renderChildren(c *gin.Context, p *page, status int) {
	children, err := backendOf(c).ownChildren(c.Request.Context())
	if err != nil {
		s.logDomainError(c, err)
		if p.Error == "" {
			p.fail(err)
			status = statusFor(err)
		}
	}
	p.Data = children
	c.HTML(status, "parent_children.html", p)
}

func (s *Server) handleParentAppointments() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := newPage(c, "見学予約", currentState(c))
		p.Form = appointmentForm{}
		p.Notice = noticeFor(c.Query("created"))
		s.renderParentAppointments(c, p, http.StatusOK)
	}
}

// handleCreateAppointment は見学を予約する。日時はポータルのタイムゾーンで解釈する。
func (s *Server) handleCreateAppointment() gin.HandlerFunc {
	return func(c *gin.Context) {
		var form appointmentForm
		err := c.ShouldBind(&form)
		if err != nil {
			err = bindError(err)
		} else {
			// バインド時に形式は検証済み
			at, _ := time.ParseInLocation("2006-01-02T15:04", form.ScheduledAt, time.Local)
			_, err = backendOf(c).createAppointment(c.Request.Context(), newAppointment{
				ScheduledAt: at.Format(time.RFC3339),
				Note:        strings.TrimSpace(form.Note),
			})
		}
		if err != nil {
			p := newPage(c, "見学予約", currentState(c))
			p.Form = form
			p.fail(err)
			s.renderParentAppointments(c, p, statusFor(err))
			return
		}
		c.Redirect(http.StatusSeeOther, "/parent/appointments?created=1")
	}
}

func (s *Server) renderParentAppointments(c *gin.Context, p *page, status int) {
	appointments, err := backendOf(c).ownAppointments(c.Request.Context())
	if err != nil {
		s.logDomainError(c, err)
		if p.Error == "" {
			p.fail(err)
			status = statusFor(err)
		}
	}
	p.Data = appointments
	c.HTML(status, "parent_appointments.html", p)
}

func (s *Server) handleAdminChildren() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := newPage(c, "園児の承認", currentState(c))
		if c.Query("approved") != "" {
			p.Notice = "承認しました"
		}
		s.renderAdminChildren(c, p, http.StatusOK)
	}
}

// handleApproveChild は園児プロフィールを承認する。バックエンドにはPATCHで送る。
func (s *Server) handleApproveChild() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			p := newPage(c, "園児の承認", currentState(c))
			p.Error = "IDが不正です"
			s.renderAdminChildren(c, p, http.StatusBadRequest)
			return
		}

		if _, err := backendOf(c).approveChild(c.Request.Context(), id); err != nil {
			s.logDomainError(c, err)
			p := newPage(c, "園児の承認", currentState(c))
			p.fail(err)
			s.renderAdminChildren(c, p, statusFor(err))
			return
		}
		c.Redirect(http.StatusSeeOther, "/admin/children?approved="+strconv.FormatInt(id, 10))
	}
}

func (s *Server) renderAdminChildren(c *gin.Context, p *page, status int) {
	children, err := backendOf(c).allChildren(c.Request.Context())
	if err != nil {
		s.logDomainError(c, err)
		if p.Error == "" {
			p.fail(err)
			status = statusFor(err)
		}
	}
	p.Data = children
	c.HTML(status, "admin_children.html", p)
}

// handleAppointments は見学予約一覧を表示する。管理者と職員で取得元のAPIだけが異なる。
func (s *Server) handleAppointments(apiPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := newPage(c, "見学予約一覧", currentState(c))
		status := http.StatusOK

		appointments, err := backendOf(c).appointments(c.Request.Context(), apiPath)
		if err != nil {
			s.logDomainError(c, err)
			p.fail(err)
			status = statusFor(err)
		}
		p.Data = appointments
		c.HTML(status, "appointments.html", p)
	}
}

// logDomainError はドメインAPIの失敗を記録する。4xxは利用者起因のためInfoにとどめる。
func (s *Server) logDomainError(c *gin.Context, err error) {
	if status := httpclient.StatusOf(err); status >= 400 && status < 500 {
		s.logger.Info("バックエンドがリクエストを拒否しました", zap.String("path", c.Request.URL.Path), zap.Error(err))
		return
	}
	s.logger.Warn("バックエンドの呼び出しに失敗しました", zap.String("path", c.Request.URL.Path), zap.Error(err))
}

func backendOf(c *gin.Context) backend {
	return backend{api: currentSession(c).API}
}

func noticeFor(created string) string {
	if created == "" {
		return ""
	}
	return "登録しました"
}
