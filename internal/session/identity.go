package session

import "fmt"

// Role はユーザーの役割。
// 下記以外の値もそのまま保持し、役割を限定した画面では一致しないものとして扱う。
type Role string

const (
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
	// RoleUser は一般ユーザー。
	RoleUser Role = "USER"
	// RoleParent は保護者。
	RoleParent Role = "PARENT"
)

// Identity はバックエンドから取得した認証済みユーザーの情報。
// クライアント側で部分的に書き換えることはなく、常に丸ごと置き換える。
type Identity struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Status はセッションの状態。
type Status int

const (
	// StatusInitializing は起動時の本人確認を行っている状態。
	StatusInitializing Status = iota
	// StatusAnonymous は未ログインの状態。
	StatusAnonymous
	// StatusAuthenticated はログイン済みの状態。
	StatusAuthenticated
	// StatusAuthFailed は起動時の本人確認に失敗した状態。
	// トークン破棄後すぐにStatusAnonymousへ遷移するため、購読者にのみ通知される。
	StatusAuthFailed
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAuthFailed:
		return "auth_failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State はセッションの状態のスナップショット。
type State struct {
	Status Status
	// Identity はログイン中のユーザー。未ログインの場合はnil。
	Identity *Identity
	// Loading は起動時の本人確認が進行中の場合のみ真。
	Loading bool
}

// Authenticated はユーザー情報が存在するかどうかを返す。
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// Transition は状態遷移の通知。
type Transition struct {
	From State
	To   State
}
