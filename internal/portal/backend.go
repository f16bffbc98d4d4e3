package portal

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/creche/pkg/httpclient"
)

// 園児プロフィールの承認状態。
const (
	ChildPending  = "PENDING"
	ChildApproved = "APPROVED"
)

// Child はバックエンドが返す園児プロフィール。
type Child struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parentId"`
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// Pending は承認待ちかどうかを返す。
func (c Child) Pending() bool {
	return c.Status == ChildPending
}

// Appointment はバックエンドが返す見学予約。
type Appointment struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parentId"`
	ScheduledAt string `json:"scheduledAt"`
	Note        string `json:"note"`
	CreatedAt   string `json:"createdAt"`
}

// When は表示用の日時を返す。解釈できない場合は受け取った文字列をそのまま返す。
func (a Appointment) When() string {
	t, err := time.Parse(time.RFC3339, a.ScheduledAt)
	if err != nil {
		return a.ScheduledAt
	}
	return t.Local().Format("2006-01-02 15:04")
}

// newChild は園児プロフィール作成のリクエストボディ。
type newChild struct {
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
}

// newAppointment は見学予約のリクエストボディ。
type newAppointment struct {
	ScheduledAt string `json:"scheduledAt"`
	Note        string `json:"note,omitempty"`
}

// backend はドメインAPIの呼び出しをまとめたもの。
// トークンの付与はapiに合成されたミドルウェアが行う。
type backend struct {
	api *httpclient.Client
}

func (b backend) ownChildren(ctx context.Context) ([]Child, error) {
	var children []Child
	if err := b.api.Get(ctx, "/api/parent/children", &children); err != nil {
		return nil, fmt.Errorf("園児一覧の取得に失敗: %w", err)
	}
	return children, nil
}

func (b backend) createChild(ctx context.Context, in newChild) (Child, error) {
	var child Child
	if err := b.api.Post(ctx, "/api/parent/children", in, &child); err != nil {
		return Child{}, fmt.Errorf("園児プロフィールの作成に失敗: %w", err)
	}
	return child, nil
}

func (b backend) allChildren(ctx context.Context) ([]Child, error) {
	var children []Child
	if err := b.api.Get(ctx, "/api/admin/children", &children); err != nil {
		return nil, fmt.Errorf("園児一覧の取得に失敗: %w", err)
	}
	return children, nil
}

func (b backend) approveChild(ctx context.Context, id int64) (Child, error) {
	var child Child
	if err := b.api.Patch(ctx, fmt.Sprintf("/api/admin/children/%d/approve", id), nil, &child); err != nil {
		return Child{}, fmt.Errorf("園児プロフィールの承認に失敗: %w", err)
	}
	return child, nil
}

func (b backend) ownAppointments(ctx context.Context) ([]Appointment, error) {
	var appointments []Appointment
	if err := b.api.Get(ctx, "/api/parent/appointments", &appointments); err != nil {
		return nil, fmt.Errorf("見学予約の取得に失敗: %w", err)
	}
	return appointments, nil
}

func (b backend) createAppointment(ctx context.Context, in newAppointment) (Appointment, error) {
	var appointment Appointment
	if err := b.api.Post(ctx, "/api/parent/appointments", in, &appointment); err != nil {
		return Appointment{}, fmt.Errorf("見学予約の作成に失敗: %w", err)
	}
	return appointment, nil
}

// appointments は管理者・職員向けの見学予約一覧を取得する。pathで取得元を切り替える。
func (b backend) appointments(ctx context.Context, path string) ([]Appointment, error) {
	var appointments []Appointment
	if err := b.api.Get(ctx, path, &appointments); err != nil {
		return nil, fmt.Errorf("見学予約の取得に失敗: %w", err)
	}
	return appointments, nil
}
