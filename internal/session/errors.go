package session

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrDisposed は破棄済みのマネージャを操作したことを表す。
	ErrDisposed = errors.New("セッションマネージャは破棄済みです")
	// ErrEmptyToken はバックエンドが空のトークンを返したことを表す。
	ErrEmptyToken = errors.New("バックエンドが空のトークンを返しました")
	// ErrInvalidIdentity はバックエンドが不正な本人情報を返したことを表す。
	ErrInvalidIdentity = errors.New("バックエンドが不正な本人情報を返しました")
)

// ValidationError は入力値のクライアント側検証に失敗したことを表す。
// このエラーが返る場合、ネットワーク通信は一切行われていない。
type ValidationError struct {
	// Fields はフィールド名ごとのメッセージ。
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return "入力内容に誤りがあります: " + strings.Join(msgs, ", ")
}

// IsValidation はerrが *ValidationError かどうかを判定する。
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
