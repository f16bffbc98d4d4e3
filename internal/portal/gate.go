package portal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nao1215/creche/internal/authz"
	"github.com/nao1215/creche/internal/session"
)

// CookieName はブラウザセッションIDを保存するCookie名。
const CookieName = "creche_sid"

// cookieMaxAge はセッションCookieの有効期間（秒）。
const cookieMaxAge = 30 * 24 * 60 * 60

// コンテキストキー。
const (
	contextKeySession = "portal_session"
	contextKeyState   = "portal_state"
)

// placeholderRefresh は確認中画面の自動再読み込み間隔（秒）。
const placeholderRefresh = 1

// withSession はCookieからブラウザセッションを取り出し、無ければ発行するGinミドルウェアを返す。
// 新しいセッションの本人確認はStartupWaitまで待つ。フォーム送信は確認が終わるまで待つ。
func (s *Server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(CookieName)
		if err != nil || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, sid, cookieMaxAge, "/", "", s.cookieSecure, true)
		}

		sess, created := s.registry.Acquire(sid)
		if created {
			s.logger.Debug("ブラウザセッションを開始しました", zap.String("sid", shortID(sid)))
		}

		if isSafeMethod(c.Request.Method) {
			waitReady(c.Request.Context(), sess.Manager, s.startupWait)
		} else {
			select {
			case <-sess.Manager.Ready():
			case <-c.Request.Context().Done():
			}
		}

		c.Set(contextKeySession, sess)
		c.Next()
	}
}

// gate はauthz.Decideの判定結果に従って描画・確認中表示・リダイレクトを行うGinミドルウェアを返す。
func (s *Server) gate(req authz.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := currentSession(c).Manager.State()
		decision := authz.Decide(state, req, destinations)

		switch decision.Outcome {
		case authz.Placeholder:
			p := newPage(c, "確認中", state)
			p.Refresh = placeholderRefresh
			c.Header("Cache-Control", "no-store")
			c.HTML(http.StatusOK, "checking.html", p)
			c.Abort()
		case authz.Redirect:
			location := decision.Location
			if location == destinations.Login && c.Request.Method == http.MethodGet {
				location += "?next=" + url.QueryEscape(c.Request.URL.RequestURI())
			}
			c.Redirect(http.StatusSeeOther, location)
			c.Abort()
		default:
			c.Set(contextKeyState, state)
			c.Next()
		}
	}
}

// currentSession はwithSessionが設定したセッションを返す。
func currentSession(c *gin.Context) *Session {
	return c.MustGet(contextKeySession).(*Session)
}

// currentState はgateが判定に使った状態を返す。
func currentState(c *gin.Context) session.State {
	if v, ok := c.Get(contextKeyState); ok {
		return v.(session.State)
	}
	return currentSession(c).Manager.State()
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// safeNext はログイン後の遷移先として使える相対パスだけを返す。
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return PathHome
	}
	if next == PathLogin || strings.HasPrefix(next, PathLogin+"?") || next == PathRegister {
		return PathHome
	}
	return next
}
