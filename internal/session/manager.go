package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nao1215/creche/pkg/httpclient"
	"github.com/nao1215/creche/pkg/tokenstore"
)

// バックエンドの認証エンドポイント。
const (
	PathLogin    = "/api/auth/login"
	PathRegister = "/api/auth/register"
	PathMe       = "/api/auth/me"
)

// API はセッションマネージャが使うバックエンドへの送信経路。*httpclient.Client が満たす。
type API interface {
	Get(ctx context.Context, path string, result any) error
	Post(ctx context.Context, path string, body, result any) error
}

// loginResponse は /api/auth/login のレスポンス。
type loginResponse struct {
	Token string `json:"token"`
}

// registerResponse は /api/auth/register のレスポンス。
type registerResponse struct {
	ID int64 `json:"id"`
}

// Manager はログイン状態の唯一の管理者。
// 状態はバックエンドへの問い合わせ結果で確定させ、ローカルのキャッシュだけでは決めない。
type Manager struct {
	api    API
	store  tokenstore.Store
	logger *zap.Logger

	mu    sync.RWMutex
	state State
	// gen はログイン・ログアウトのたびに進む世代番号。
	// 起動時の本人確認より後に状態が変わっていれば、その結果を捨てるために使う。
	gen       uint64
	disposed  bool
	cancel    context.CancelFunc
	observers map[int]func(Transition)
	nextObsID int

	startOnce sync.Once
	ready     chan struct{}

	// tokenMu はトークンストアへの書き込みと世代の確認を一体にする。
	// 古い起動時確認が、後から保存されたトークンを消さないようにする。
	tokenMu sync.Mutex
}

// NewManager は起動前（Initializing）のセッションマネージャを生成する。
// Startを呼ぶまでバックエンドへは一切アクセスしない。
func NewManager(api API, store tokenstore.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		api:       api,
		store:     store,
		logger:    logger,
		state:     State{Status: StatusInitializing, Loading: true},
		observers: make(map[int]func(Transition)),
		ready:     make(chan struct{}),
	}
}

// State は現在の状態のコピーを返す。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyState(m.state)
}

// Ready は起動時の本人確認が終わると閉じるチャネルを返す。
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe は状態遷移の通知先を登録し、登録解除用の関数を返す。
// 通知はロックの外で、遷移を起こしたゴルーチン上で呼ばれる。
func (m *Manager) Subscribe(fn func(Transition)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// Start はトークンストアを確認し、トークンがあればバックエンドに本人情報を問い合わせる。
// トークンが無ければ通信せずに未ログインへ遷移する。
// 問い合わせに失敗した場合はトークンを破棄して未ログインへ遷移し、エラーは返さない。
// ただしctxの取り消しやDisposeで中断された場合と、確認中にログイン・ログアウトが完了した場合はトークンに触れない。
// 2回目以降の呼び出しは何もしない（実行中であれば完了を待つ）。
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		defer close(m.ready)
		m.start(ctx)
	})
}

func (m *Manager) start(parent context.Context) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	gen := m.gen
	m.mu.Unlock()
	defer cancel()

	token, ok, err := m.store.Get(ctx)
	if err != nil {
		// 読み出し失敗はトークン無しとして扱う
		m.logger.Warn("トークンストアの読み出しに失敗したため未ログインとして扱います", zap.Error(err))
		ok = false
	}
	if !ok {
		if !m.apply(gen, State{Status: StatusAnonymous}) {
			m.settle()
		}
		return
	}

	identity, err := m.fetchIdentity(httpclient.WithToken(ctx, token))
	if err != nil {
		if ctx.Err() != nil {
			// 取り消された確認は失敗ではない。トークンは次回の起動時確認に残す。
			m.logger.Info("起動時の本人確認が取り消されました", zap.Error(err))
			m.settle()
			return
		}
		if !m.clearTokenIfCurrent(context.WithoutCancel(ctx), gen) {
			m.settle()
			return
		}
		m.logger.Info("起動時の本人確認に失敗したためトークンを破棄しました", zap.Error(err))
		if m.apply(gen, State{Status: StatusAuthFailed}) {
			m.apply(gen, State{Status: StatusAnonymous})
		}
		return
	}

	if !m.apply(gen, State{Status: StatusAuthenticated, Identity: &identity}) {
		m.settle()
	}
}

// settle は起動時確認の結果を反映できなかった場合に、確認中のままの状態を未ログインにする。
// 途中でログインやログアウトが完了していれば、その状態をそのまま残す。
func (m *Manager) settle() {
	m.mu.Lock()
	if m.disposed || m.state.Status != StatusInitializing {
		m.mu.Unlock()
		return
	}
	notify := m.setLocked(State{Status: StatusAnonymous})
	m.mu.Unlock()
	notify()
}

// clearTokenIfCurrent は世代が変わっておらず破棄もされていなければトークンを削除する。
// 削除した場合に真を返す。
func (m *Manager) clearTokenIfCurrent(ctx context.Context, gen uint64) bool {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()

	m.mu.RLock()
	current := !m.disposed && m.gen == gen
	m.mu.RUnlock()
	if !current {
		return false
	}
	m.clearToken(ctx)
	return true
}

// Login はメールアドレスとパスワードでログインする。
// トークン交換に成功したらトークンを保存し、続けて本人情報を取得してから戻る。
// トークン交換に失敗した場合は状態もトークンストアも変更しない。
// 本人情報の取得に失敗した場合はエラーを返すが、保存済みのトークンはそのまま残る。
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	creds := Credentials{Email: strings.TrimSpace(email), Password: password}
	if err := check(creds); err != nil {
		return Identity{}, err
	}
	return m.login(ctx, creds)
}

// Register はアカウントを作成し、同じ資格情報でログインする。
// アカウント作成に失敗した場合は副作用なしでエラーを返す。
func (m *Manager) Register(ctx context.Context, fullName, email, password string) (Identity, error) {
	reg := Registration{
		FullName: strings.TrimSpace(fullName),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	if err := check(reg); err != nil {
		return Identity{}, err
	}
	if m.isDisposed() {
		return Identity{}, ErrDisposed
	}

	var created registerResponse
	if err := m.api.Post(ctx, PathRegister, reg, &created); err != nil {
		return Identity{}, fmt.Errorf("アカウントの作成に失敗: %w", err)
	}
	m.logger.Info("アカウントを作成しました", zap.Int64("account_id", created.ID))

	return m.login(ctx, Credentials{Email: reg.Email, Password: reg.Password})
}

func (m *Manager) login(ctx context.Context, creds Credentials) (Identity, error) {
	if m.isDisposed() {
		return Identity{}, ErrDisposed
	}

	var resp loginResponse
	if err := m.api.Post(ctx, PathLogin, creds, &resp); err != nil {
		return Identity{}, fmt.Errorf("ログインに失敗: %w", err)
	}
	if resp.Token == "" {
		return Identity{}, ErrEmptyToken
	}

	// 世代を進めてから保存し、実行中の起動時確認がこのトークンを消さないようにする。
	// 保存に失敗しても続行する。次回起動時に未ログインになるだけで済む。
	m.tokenMu.Lock()
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		m.tokenMu.Unlock()
		return Identity{}, ErrDisposed
	}
	m.gen++
	m.mu.Unlock()
	if err := m.store.Set(ctx, resp.Token); err != nil {
		m.logger.Warn("トークンの保存に失敗しました", zap.Error(err))
	}
	m.tokenMu.Unlock()

	identity, err := m.fetchIdentity(httpclient.WithToken(ctx, resp.Token))
	if err != nil {
		return Identity{}, fmt.Errorf("本人情報の取得に失敗: %w", err)
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return Identity{}, ErrDisposed
	}
	m.gen++
	notify := m.setLocked(State{Status: StatusAuthenticated, Identity: &identity})
	m.mu.Unlock()
	notify()

	m.logger.Info("ログインしました", zap.Int64("user_id", identity.ID), zap.String("role", string(identity.Role)))
	return identity, nil
}

// Logout はトークンと本人情報を同期的に破棄する。バックエンドへの通信は行わない。
func (m *Manager) Logout() {
	m.tokenMu.Lock()
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
	m.clearToken(context.Background())
	m.tokenMu.Unlock()

	m.mu.Lock()
	notify := m.setLocked(State{Status: StatusAnonymous})
	m.mu.Unlock()
	notify()
}

// Dispose はマネージャを破棄する。実行中の起動時確認を取り消し、
// 以降のLogin/RegisterはErrDisposedを返す。トークンストアには触れない。
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disposed = true
	if m.cancel != nil {
		m.cancel()
	}
	clear(m.observers)
}

func (m *Manager) isDisposed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.disposed
}

// fetchIdentity は /api/auth/me から本人情報を取得する。
func (m *Manager) fetchIdentity(ctx context.Context) (Identity, error) {
	var identity Identity
	if err := m.api.Get(ctx, PathMe, &identity); err != nil {
		return Identity{}, err
	}
	if identity.Email == "" || identity.Role == "" {
		return Identity{}, fmt.Errorf("%w: role=%q", ErrInvalidIdentity, identity.Role)
	}
	return identity, nil
}

func (m *Manager) clearToken(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("トークンの削除に失敗しました", zap.Error(err))
	}
}

// apply は世代が変わっていなければ状態を更新する。更新した場合に真を返す。
func (m *Manager) apply(gen uint64, next State) bool {
	m.mu.Lock()
	if m.disposed || m.gen != gen {
		m.mu.Unlock()
		return false
	}
	notify := m.setLocked(next)
	m.mu.Unlock()
	notify()
	return true
}

// setLocked は状態を更新し、購読者への通知関数を返す。m.muを保持した状態で呼ぶこと。
func (m *Manager) setLocked(next State) func() {
	from := m.state
	m.state = next

	if len(m.observers) == 0 {
		return func() {}
	}
	observers := make([]func(Transition), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	tr := Transition{From: copyState(from), To: copyState(next)}
	return func() {
		for _, fn := range observers {
			fn(tr)
		}
	}
}

func copyState(s State) State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
