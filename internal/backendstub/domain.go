package backendstub

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/creche/pkg/middleware"
)

// createChildRequest は園児プロフィール作成のリクエストボディ。
type createChildRequest struct {
	FullName    string `json:"fullName" binding:"required,max=120"`
	DateOfBirth string `json:"dateOfBirth" binding:"required,datetime=2006-01-02"`
}

// createAppointmentRequest は見学予約のリクエストボディ。
type createAppointmentRequest struct {
	ScheduledAt string `json:"scheduledAt" binding:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Note        string `json:"note" binding:"max=500"`
}

// handleListOwnChildren はログイン中の保護者が登録した園児一覧を返すハンドラを返す。
func (s *Server) handleListOwnChildren() gin.HandlerFunc {
	return func(c *gin.Context) {
		children, err := s.queries.ListChildrenByParent(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.internalError(c, "園児一覧の取得に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, children)
	}
}

// handleCreateChild は承認待ちの園児プロフィールを作成するハンドラを返す。
func (s *Server) handleCreateChild() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createChildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "氏名と生年月日（YYYY-MM-DD）を入力してください"})
			return
		}

		child, err := s.queries.CreateChild(c.Request.Context(), CreateChildParams{
			ParentID:    middleware.GetUserID(c),
			FullName:    strings.TrimSpace(req.FullName),
			DateOfBirth: req.DateOfBirth,
		})
		if err != nil {
			s.internalError(c, "園児プロフィールの作成に失敗しました", err)
			return
		}
		c.JSON(http.StatusCreated, child)
	}
}

// handleListChildren は全ての園児プロフィールを返すハンドラを返す。
func (s *Server) handleListChildren() gin.HandlerFunc {
	return func(c *gin.Context) {
		children, err := s.queries.ListChildren(c.Request.Context())
		if err != nil {
			s.internalError(c, "園児一覧の取得に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, children)
	}
}

// handleApproveChild は園児プロフィールを承認するハンドラを返す。
func (s *Server) handleApproveChild() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "IDが不正です"})
			return
		}

		child, err := s.queries.ApproveChild(c.Request.Context(), id)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "園児プロフィールが見つかりません"})
			return
		}
		if err != nil {
			s.internalError(c, "園児プロフィールの承認に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, child)
	}
}

// handleListOwnAppointments はログイン中の保護者の見学予約を返すハンドラを返す。
func (s *Server) handleListOwnAppointments() gin.HandlerFunc {
	return func(c *gin.Context) {
		appointments, err := s.queries.ListAppointmentsByParent(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.internalError(c, "見学予約の取得に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, appointments)
	}
}

// handleCreateAppointment は見学予約を作成するハンドラを返す。過去の日時は受け付けない。
func (s *Server) handleCreateAppointment() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "見学日時を入力してください"})
			return
		}

		// バインド時に形式は検証済み
		at, _ := time.Parse(time.RFC3339, req.ScheduledAt)
		if !at.After(time.Now()) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "見学日時は未来の日時を指定してください"})
			return
		}

		appointment, err := s.queries.CreateAppointment(c.Request.Context(), CreateAppointmentParams{
			ParentID:    middleware.GetUserID(c),
			ScheduledAt: at.UTC().Format(time.RFC3339),
			Note:        strings.TrimSpace(req.Note),
		})
		if err != nil {
			s.internalError(c, "見学予約の作成に失敗しました", err)
			return
		}
		c.JSON(http.StatusCreated, appointment)
	}
}

// handleListAppointments は全ての見学予約を返すハンドラを返す。
func (s *Server) handleListAppointments() gin.HandlerFunc {
	return func(c *gin.Context) {
		appointments, err := s.queries.ListAppointments(c.Request.Context())
		if err != nil {
			s.internalError(c, "見学予約の取得に失敗しました", err)
			return
		}
		c.JSON(http.StatusOK, appointments)
	}
}

// internalError はエラーを記録して500を返す。
func (s *Server) internalError(c *gin.Context, message string, err error) {
	s.logger.Error(message, zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
