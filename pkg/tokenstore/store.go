package tokenstore

import (
	"context"
	"fmt"
)

// Store はベアラートークンの保存先。
type Store interface {
	// Get は保存されているトークンを返す。存在しない場合はokが偽になる。
	Get(ctx context.Context) (token string, ok bool, err error)
	// Set はトークンを保存する。空文字列を渡した場合は削除する。
	Set(ctx context.Context, token string) error
	// Clear はトークンを削除する。Set(ctx, "") と同じ。
	Clear(ctx context.Context) error
}

// StorageError は下位ストレージの操作失敗を表す。
type StorageError struct {
	// Op は失敗した操作名（get, set, clear）。
	Op string
	// Key はストアが束縛されているキー。
	Key string
	// Err は下位ストレージが返したエラー。
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("トークンストアの%s操作に失敗: key=%s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Source はストアをHTTPクライアント用のトークン取得関数に変換する。
// 読み出しに失敗した場合はトークンが無いものとして扱う。
func Source(s Store) func(ctx context.Context) (string, bool) {
	return func(ctx context.Context) (string, bool) {
		token, ok, err := s.Get(ctx)
		if err != nil || !ok {
			return "", false
		}
		return token, true
	}
}
