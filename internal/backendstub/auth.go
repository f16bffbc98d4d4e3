package backendstub

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/creche/pkg/middleware"
)

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// registerRequest はアカウント作成のリクエストボディ。
type registerRequest struct {
	FullName string `json:"fullName" binding:"required,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// identityResponse は /api/auth/me のレスポンス。
type identityResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// handleLogin はメールアドレスとパスワードを検証してトークンを発行するハンドラを返す。
// 存在しないアカウントとパスワード誤りは区別しない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスとパスワードを入力してください"})
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), normalizeEmail(req.Email))
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("ユーザー取得エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "メールアドレスまたはパスワードが正しくありません"})
			return
		}

		token, err := middleware.GenerateJWT(s.jwtSecret, user.ID, user.Email, user.Role, s.tokenTTL)
		if err != nil {
			s.logger.Error("JWT生成エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// handleRegister は保護者アカウントを作成するハンドラを返す。
// トークンは発行しないため、利用側は続けてログインする。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "入力内容が不正です"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			s.logger.Error("パスワードのハッシュ化エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウント作成に失敗しました"})
			return
		}

		id, err := s.queries.CreateUser(c.Request.Context(), CreateUserParams{
			FullName:     strings.TrimSpace(req.FullName),
			Email:        normalizeEmail(req.Email),
			PasswordHash: string(hash),
			Role:         RoleParent,
		})
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			s.logger.Error("ユーザー作成エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウント作成に失敗しました"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": id})
	}
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if errors.Is(err, ErrNotFound) {
			// トークンは有効でもアカウントが消えていれば認証失敗として扱う
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			s.logger.Error("ユーザー取得エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, identityResponse{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     user.Role,
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
