package portal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/creche/internal/session"
	"github.com/nao1215/creche/pkg/httpclient"
	"github.com/nao1215/creche/pkg/tokenstore"
)

// StoreFactory はブラウザセッションごとのトークンストアを生成する。
// keyはセッションIDから導出され、ストア間で重複しない。
type StoreFactory func(key string) tokenstore.Store

// RegistryConfig はRegistryの設定。
type RegistryConfig struct {
	// BaseURL はバックエンドのベースURL。
	BaseURL string
	// Timeout はバックエンドへのリクエストのタイムアウト。
	Timeout time.Duration
	// Stores はトークンストアの生成方法。nilの場合はメモリに保持する。
	Stores StoreFactory
	// IdleTimeout はアクセスが無いセッションを破棄するまでの時間。
	IdleTimeout time.Duration
	// HTTPClient は全セッションで共有する接続プール。nilの場合はセッションごとに生成する。
	HTTPClient *http.Client
}

// Session はブラウザセッション1つ分の状態。
type Session struct {
	// ID はCookieに保存するセッションID。
	ID string
	// Manager はこのセッションのログイン状態を管理する。
	Manager *session.Manager
	// API はこのセッションのトークンを付与してバックエンドを呼び出す。
	API *httpclient.Client

	lastSeen time.Time
}

// Registry はセッションIDごとにセッションマネージャを保持する。
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry(cfg RegistryConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stores == nil {
		cfg.Stores = func(string) tokenstore.Store { return tokenstore.NewMemory() }
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// StoreKey はセッションIDからトークンストアのキーを導出する。
func StoreKey(sid string) string {
	return "token:" + sid
}

// Acquire はセッションIDに対応するセッションを返す。無ければ生成して起動時の本人確認を非同期に開始する。
// 生成した場合はcreatedが真になる。
func (r *Registry) Acquire(sid string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sid]; ok {
		s.lastSeen = r.now()
		return s, false
	}

	store := r.cfg.Stores(StoreKey(sid))
	logger := r.logger.With(zap.String("sid", shortID(sid)))

	opts := []httpclient.Option{
		httpclient.WithTimeout(r.cfg.Timeout),
		httpclient.WithMiddleware(
			httpclient.BearerToken(tokenstore.Source(store)),
			httpclient.RequestLogger(logger),
		),
	}
	if r.cfg.HTTPClient != nil {
		opts = append(opts, httpclient.WithHTTPClient(r.cfg.HTTPClient))
	}
	api := httpclient.New(r.cfg.BaseURL, opts...)

	s = &Session{
		ID:       sid,
		Manager:  session.NewManager(api, store, logger),
		API:      api,
		lastSeen: r.now(),
	}
	r.sessions[sid] = s

	go s.Manager.Start(context.Background())
	return s, true
}

// Len は保持しているセッション数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep はIdleTimeoutを超えてアクセスの無いセッションを破棄し、破棄した数を返す。
// トークンストアには触れないため、永続化されたトークンは次のアクセスで再確認される。
func (r *Registry) Sweep() int {
	if r.cfg.IdleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	cutoff := r.now().Add(-r.cfg.IdleTimeout)
	var expired []*Session
	for sid, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, sid)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Manager.Dispose()
	}
	if len(expired) > 0 {
		r.logger.Debug("アイドル状態のセッションを破棄しました", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// RunJanitor はctxが終わるまで定期的にSweepを実行する。
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close は全てのセッションを破棄する。
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Manager.Dispose()
	}
}

// waitReady は起動時の本人確認が終わるかwaitが経過するまで待つ。確認が終わっていれば真を返す。
func waitReady(ctx context.Context, m *session.Manager, wait time.Duration) bool {
	select {
	case <-m.Ready():
		return true
	default:
	}
	if wait <= 0 {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-m.Ready():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// shortID はログ出力用にセッションIDの先頭だけを返す。
func shortID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}
