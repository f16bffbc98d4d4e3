// Package authz は画面遷移時の権限判定を行う。
//
// 判定はセッションの状態と遷移先の要件だけで決まる純粋関数であり、
// 描画・確認中表示・リダイレクトのいずれかを返す。
// これはナビゲーション層での利便のための判定でしかなく、信頼境界ではない。
// 役割の検証はバックエンドがすべてのエンドポイントで独立して行う。
package authz

import (
	"slices"

	"github.com/nao1215/creche/internal/session"
)

// Level は遷移先が要求する認証の水準。
type Level int

const (
	// LevelNone は認証不要。
	LevelNone Level = iota
	// LevelAuthenticated はログイン済みであれば役割を問わない。
	LevelAuthenticated
	// LevelRole は指定した役割のいずれかを要求する。
	LevelRole
)

// Requirement は遷移先の要件。
type Requirement struct {
	Level Level
	Roles []session.Role
}

// Public は認証不要の要件。
var Public = Requirement{Level: LevelNone}

// Authenticated はログイン済みであることだけを要求する。
func Authenticated() Requirement {
	return Requirement{Level: LevelAuthenticated}
}

// Role は役割が完全一致することを要求する。
func Role(r session.Role) Requirement {
	return Requirement{Level: LevelRole, Roles: []session.Role{r}}
}

// AnyRole は役割がいずれかに一致することを要求する。
func AnyRole(roles ...session.Role) Requirement {
	return Requirement{Level: LevelRole, Roles: roles}
}

// Outcome は判定結果の種類。
type Outcome int

const (
	// Render は遷移先を描画する。
	Render Outcome = iota
	// Placeholder は確認中の表示を行う。リダイレクトはしない。
	Placeholder
	// Redirect は別の遷移先へリダイレクトする。
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Placeholder:
		return "placeholder"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Destinations はリダイレクト先。
type Destinations struct {
	// Login は未ログイン時の遷移先。
	Login string
	// Home はログイン済みだが権限が無い場合の遷移先。
	Home string
}

// Decision は判定結果。
type Decision struct {
	Outcome Outcome
	// Location はOutcomeがRedirectの場合の遷移先。
	Location string
}

// Decide はセッションの状態と遷移先の要件から判定結果を返す。
// 起動時の本人確認中は結果が未確定のため、要件に関わらず確認中表示とする。
func Decide(state session.State, req Requirement, dest Destinations) Decision {
	if state.Loading {
		return Decision{Outcome: Placeholder}
	}
	if req.Level == LevelNone {
		return Decision{Outcome: Render}
	}
	if state.Identity == nil {
		return Decision{Outcome: Redirect, Location: dest.Login}
	}
	if req.Level == LevelRole && !slices.Contains(req.Roles, state.Identity.Role) {
		return Decision{Outcome: Redirect, Location: dest.Home}
	}
	return Decision{Outcome: Render}
}
