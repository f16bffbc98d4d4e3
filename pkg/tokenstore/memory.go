package tokenstore

import (
	"context"
	"sync"
)

// Memory はプロセス内メモリにトークンを保持するストア。
// プロセスが終了するとトークンは失われる。
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory は空のメモリストアを生成する。
func NewMemory() *Memory {
	return &Memory{}
}

// Get は保持しているトークンを返す。
func (m *Memory) Get(_ context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

// Set はトークンを保持する。空文字列の場合は削除する。
func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// Clear は保持しているトークンを削除する。
func (m *Memory) Clear(ctx context.Context) error {
	return m.Set(ctx, "")
}
