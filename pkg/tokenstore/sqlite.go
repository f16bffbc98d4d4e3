package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"

	"go.uber.org/zap"

	"github.com/nao1215/creche/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrateSQLite はclient_tokensテーブルを作成する。
// NewSQLiteで生成したストアを使う前に一度だけ呼び出す。
func MigrateSQLite(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	return migration.Run(ctx, db, migrations, "migrations", "tokenstore", logger)
}

// SQLite はSQLiteの1行にトークンを保持するストア。
// 複数のストアが同じDBを共有でき、行はキーで区別される。
type SQLite struct {
	db  *sql.DB
	key string
}

// NewSQLite はkeyに束縛されたSQLiteストアを生成する。
func NewSQLite(db *sql.DB, key string) *SQLite {
	return &SQLite{db: db, key: key}
}

// Get はキーに対応するトークンを返す。
func (s *SQLite) Get(ctx context.Context) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx, "SELECT token FROM client_tokens WHERE key = ?", s.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "get", Key: s.key, Err: err}
	}
	return token, token != "", nil
}

// Set はキーに対応するトークンを保存する。空文字列の場合は行を削除する。
func (s *SQLite) Set(ctx context.Context, token string) error {
	if token == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM client_tokens WHERE key = ?", s.key); err != nil {
			return &StorageError{Op: "clear", Key: s.key, Err: err}
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tokens (key, token, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, s.key, token)
	if err != nil {
		return &StorageError{Op: "set", Key: s.key, Err: err}
	}
	return nil
}

// Clear はキーに対応するトークンを削除する。
func (s *SQLite) Clear(ctx context.Context) error {
	return s.Set(ctx, "")
}
