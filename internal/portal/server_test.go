package portal

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/creche/internal/backendstub"
	"github.com/nao1215/creche/internal/session"
	"github.com/nao1215/creche/pkg/tokenstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// テスト用の管理者アカウント。
const (
	testAdminEmail    = "admin@creche.test"
	testAdminPassword = "Admin123!"
)

// sharedStores はキーごとのストアを保持し、同じキーには同じストアを返す。
// セッション破棄後の再確認を検証するために使う。
type sharedStores struct {
	mu     sync.Mutex
	stores map[string]*tokenstore.Memory
}

func newSharedStores() *sharedStores {
	return &sharedStores{stores: make(map[string]*tokenstore.Memory)}
}

func (s *sharedStores) get(key string) *tokenstore.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[key]
	if !ok {
		st = tokenstore.NewMemory()
		s.stores[key] = st
	}
	return st
}

func (s *sharedStores) factory() StoreFactory {
	return func(key string) tokenstore.Store { return s.get(key) }
}

// newStubBackend はインメモリSQLiteのバックエンドスタブを起動する。
func newStubBackend(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := backendstub.Migrate(ctx, db, nil); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	stub := backendstub.NewServer(db, backendstub.Options{JWTSecret: "test-secret", BcryptCost: bcrypt.MinCost}, nil)
	if err := stub.SeedAdmin(ctx, testAdminEmail, testAdminPassword); err != nil {
		t.Fatalf("管理者アカウントの作成に失敗: %v", err)
	}

	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// newTestPortal はbackendURLに接続するポータルを起動する。
func newTestPortal(t *testing.T, backendURL string, stores StoreFactory, startupWait time.Duration) (*Server, *Registry, *httptest.Server) {
	t.Helper()

	registry := NewRegistry(RegistryConfig{
		BaseURL:     backendURL,
		Timeout:     5 * time.Second,
		Stores:      stores,
		IdleTimeout: time.Hour,
	}, nil)
	t.Cleanup(registry.Close)

	s, err := NewServer(registry, Options{StartupWait: startupWait}, nil)
	if err != nil {
		t.Fatalf("NewServer()でエラーが発生: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, registry, ts
}

// browser はCookieを保持するHTTPクライアント。リダイレクトは自動で辿る。
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejarの生成に失敗: %v", err)
	}
	return &browser{t: t, base: base, client: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

// response は読み込み済みのレスポンス。
type response struct {
	status int
	path   string
	body   string
}

func (b *browser) read(resp *http.Response, err error) response {
	b.t.Helper()

	if err != nil {
		b.t.Fatalf("リクエストに失敗: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("レスポンスの読み込みに失敗: %v", err)
	}
	return response{status: resp.StatusCode, path: resp.Request.URL.Path, body: string(body)}
}

func (b *browser) get(path string) response {
	b.t.Helper()
	return b.read(b.client.Get(b.base + path))
}

func (b *browser) post(path string, form url.Values) response {
	b.t.Helper()
	return b.read(b.client.PostForm(b.base+path, form))
}

// setSID はセッションCookieを固定する。
func (b *browser) setSID(sid string) {
	u, _ := url.Parse(b.base)
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: CookieName, Value: sid, Path: "/"}})
}

func (b *browser) login(email, password string) response {
	b.t.Helper()
	return b.post(PathLogin, url.Values{"email": {email}, "password": {password}})
}

// TestPortal_EndToEnd はバックエンドスタブを相手に一連の操作を検証する。
func TestPortal_EndToEnd(t *testing.T) {
	t.Parallel()

	backend := newStubBackend(t)
	_, _, portal := newTestPortal(t, backend.URL, nil, 2*time.Second)

	parent := newBrowser(t, portal.URL)

	// 未ログインで保護された画面を開くとログイン画面へ
	res := parent.get("/parent/children")
	if res.path != PathLogin || res.status != http.StatusOK {
		t.Fatalf("未ログイン時の遷移先: got %s (%d), want %s", res.path, res.status, PathLogin)
	}
	if !strings.Contains(res.body, `name="next" value="/parent/children"`) {
		t.Errorf("ログイン画面に戻り先が含まれていない: %s", res.body)
	}

	// アカウント作成後はログイン済みでホームへ
	res = parent.post(PathRegister, url.Values{
		"fullName":        {"Thandi Mokoena"},
		"email":           {"thandi@x.com"},
		"password":        {"Secret123!"},
		"confirmPassword": {"Secret123!"},
	})
	if res.path != PathHome || !strings.Contains(res.body, "ようこそ、Thandi Mokoena さん") {
		t.Fatalf("アカウント作成後の画面: got %s, body=%s", res.path, res.body)
	}

	// 園児プロフィールを登録
	res = parent.post("/parent/children", url.Values{"fullName": {"Lerato Mokoena"}, "dateOfBirth": {"2022-03-14"}})
	if res.status != http.StatusOK || !strings.Contains(res.body, "Lerato Mokoena") || !strings.Contains(res.body, "承認待ち") {
		t.Fatalf("園児登録後の画面: status=%d body=%s", res.status, res.body)
	}

	// 見学を予約
	at := time.Now().Add(72 * time.Hour).Format("2006-01-02T15:04")
	res = parent.post("/parent/appointments", url.Values{"scheduledAt": {at}, "note": {"午前希望"}})
	if res.status != http.StatusOK || !strings.Contains(res.body, "午前希望") {
		t.Fatalf("見学予約後の画面: status=%d body=%s", res.status, res.body)
	}

	// 管理者画面には入れずホームへ戻される
	res = parent.get("/admin/children")
	if res.path != PathHome {
		t.Errorf("役割不一致時の遷移先: got %s, want %s", res.path, PathHome)
	}

	// 管理者が承認
	admin := newBrowser(t, portal.URL)
	res = admin.login(testAdminEmail, testAdminPassword)
	if res.path != PathHome {
		t.Fatalf("管理者ログイン後の遷移先: got %s, body=%s", res.path, res.body)
	}
	res = admin.get("/admin/children")
	if !strings.Contains(res.body, "Lerato Mokoena") {
		t.Fatalf("管理者の園児一覧に登録済みの園児が無い: %s", res.body)
	}
	res = admin.post("/admin/children/1/approve", nil)
	if res.status != http.StatusOK || !strings.Contains(res.body, "承認しました") {
		t.Fatalf("承認後の画面: status=%d body=%s", res.status, res.body)
	}
	res = admin.get("/admin/appointments")
	if !strings.Contains(res.body, "午前希望") {
		t.Errorf("管理者の見学予約一覧に予約が無い: %s", res.body)
	}

	// 保護者側でも承認済みになる
	res = parent.get("/parent/children")
	if !strings.Contains(res.body, "承認済み") {
		t.Errorf("承認状態が反映されていない: %s", res.body)
	}

	// ログアウト後は保護された画面を開けない
	res = parent.post(PathLogout, nil)
	if res.path != PathLogin {
		t.Fatalf("ログアウト後の遷移先: got %s, want %s", res.path, PathLogin)
	}
	res = parent.get("/profile")
	if res.path != PathLogin {
		t.Errorf("ログアウト後にプロフィールを開いた遷移先: got %s, want %s", res.path, PathLogin)
	}
}

// TestPortal_LoginForm はログインフォームの入力エラーと戻り先を検証する。
func TestPortal_LoginForm(t *testing.T) {
	t.Parallel()

	backend := newStubBackend(t)
	_, _, portal := newTestPortal(t, backend.URL, nil, 2*time.Second)

	t.Run("検証エラーでは入力を保持して再表示すること", func(t *testing.T) {
		t.Parallel()

		b := newBrowser(t, portal.URL)
		res := b.login("not-an-email", "x")
		if res.status != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", res.status, http.StatusBadRequest)
		}
		if !strings.Contains(res.body, `value="not-an-email"`) {
			t.Errorf("入力が保持されていない: %s", res.body)
		}
		if !strings.Contains(res.body, "email") {
			t.Errorf("エラーメッセージが表示されていない: %s", res.body)
		}
	})

	t.Run("認証失敗ではバックエンドのメッセージを表示すること", func(t *testing.T) {
		t.Parallel()

		b := newBrowser(t, portal.URL)
		res := b.login(testAdminEmail, "wrong-password")
		if res.status != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", res.status, http.StatusUnauthorized)
		}
		if !strings.Contains(res.body, "メールアドレスまたはパスワードが正しくありません") {
			t.Errorf("エラーメッセージが表示されていない: %s", res.body)
		}
		if strings.Contains(res.body, "もう一度ログインする") {
			t.Error("未ログイン時に再ログインの導線が表示されている")
		}
	})

	t.Run("ログイン後は戻り先へ遷移すること", func(t *testing.T) {
		t.Parallel()

		b := newBrowser(t, portal.URL)
		res := b.post(PathLogin, url.Values{
			"email": {testAdminEmail}, "password": {testAdminPassword}, "next": {"/admin/appointments"},
		})
		if res.path != "/admin/appointments" {
			t.Errorf("遷移先: got %s, want %s", res.path, "/admin/appointments")
		}
	})

	t.Run("ログイン済みでログイン画面を開くとホームへ遷移すること", func(t *testing.T) {
		t.Parallel()

		b := newBrowser(t, portal.URL)
		b.login(testAdminEmail, testAdminPassword)
		res := b.get(PathLogin)
		if res.path != PathHome {
			t.Errorf("遷移先: got %s, want %s", res.path, PathHome)
		}
	})

	t.Run("確認用パスワードが一致しない場合はアカウントを作成しないこと", func(t *testing.T) {
		t.Parallel()

		b := newBrowser(t, portal.URL)
		res := b.post(PathRegister, url.Values{
			"fullName": {"A"}, "email": {"a@x.com"}, "password": {"Secret123!"}, "confirmPassword": {"Secret124!"},
		})
		if res.status != http.StatusBadRequest || !strings.Contains(res.body, "パスワードが一致しません") {
			t.Fatalf("status=%d body=%s", res.status, res.body)
		}
		if res := b.login("a@x.com", "Secret123!"); res.status != http.StatusUnauthorized {
			t.Errorf("作成されていないはずのアカウントでログインできた: status=%d", res.status)
		}
	})
}

// TestPortal_DomainForms はドメインフォームの検証を検証する。
func TestPortal_DomainForms(t *testing.T) {
	t.Parallel()

	backend := newStubBackend(t)
	_, _, portal := newTestPortal(t, backend.URL, nil, 2*time.Second)

	b := newBrowser(t, portal.URL)
	b.post(PathRegister, url.Values{
		"fullName": {"Thandi"}, "email": {"t@x.com"}, "password": {"Secret123!"}, "confirmPassword": {"Secret123!"},
	})

	t.Run("生年月日の形式が不正な場合は入力を保持して再表示すること", func(t *testing.T) {
		res := b.post("/parent/children", url.Values{"fullName": {"Child"}, "dateOfBirth": {"14/03/2022"}})
		if res.status != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", res.status, http.StatusBadRequest)
		}
		if !strings.Contains(res.body, "生年月日の形式が正しくありません") || !strings.Contains(res.body, `value="Child"`) {
			t.Errorf("body=%s", res.body)
		}
	})

	t.Run("過去の日時ではバックエンドのメッセージを表示すること", func(t *testing.T) {
		past := time.Now().Add(-24 * time.Hour).Format("2006-01-02T15:04")
		res := b.post("/parent/appointments", url.Values{"scheduledAt": {past}})
		if res.status != http.StatusUnprocessableEntity {
			t.Errorf("ステータスコード: got %d, want %d", res.status, http.StatusUnprocessableEntity)
		}
		if !strings.Contains(res.body, "未来の日時") {
			t.Errorf("body=%s", res.body)
		}
	})
}

// gatedBackend は /api/auth/me の応答を任意に制御できるバックエンド。
type gatedBackend struct {
	mu        sync.Mutex
	identity  session.Identity
	meStatus  int
	domain401 bool
	release   chan struct{}
	meCalls   int
}

func (g *gatedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	g.mu.Lock()
	release, status, identity, domain401 := g.release, g.meStatus, g.identity, g.domain401
	if r.URL.Path == session.PathMe {
		g.meCalls++
	}
	g.mu.Unlock()

	switch {
	case r.URL.Path == session.PathMe:
		if release != nil {
			<-release
		}
		if status != 0 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "トークンが無効です"})
			return
		}
		_ = json.NewEncoder(w).Encode(identity)
	case domain401:
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "トークンの有効期限が切れています"})
	default:
		_, _ = io.WriteString(w, "[]")
	}
}

func (g *gatedBackend) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.meCalls
}

var thandi = session.Identity{ID: 7, FullName: "Thandi Mokoena", Email: "thandi@x.com", Role: session.RoleParent}

// TestPortal_Startup は既存のトークンを持つブラウザの起動時確認を検証する。
func TestPortal_Startup(t *testing.T) {
	t.Parallel()

	t.Run("確認中は確認中画面を返しリダイレクトしないこと", func(t *testing.T) {
		t.Parallel()

		gb := &gatedBackend{identity: thandi, release: make(chan struct{})}
		backend := httptest.NewServer(gb)
		t.Cleanup(backend.Close)
		var once sync.Once
		releaseAll := func() { once.Do(func() { close(gb.release) }) }
		t.Cleanup(releaseAll)

		stores := newSharedStores()
		sid := uuid.NewString()
		_ = stores.get(StoreKey(sid)).Set(context.Background(), "tok-1")
		_, _, portal := newTestPortal(t, backend.URL, stores.factory(), 0)

		b := newBrowser(t, portal.URL)
		b.setSID(sid)

		res := b.get("/parent/children")
		if res.status != http.StatusOK || res.path != "/parent/children" {
			t.Fatalf("確認中の応答: status=%d path=%s", res.status, res.path)
		}
		if !strings.Contains(res.body, "ログイン状態を確認しています") || !strings.Contains(res.body, `http-equiv="refresh"`) {
			t.Errorf("確認中画面になっていない: %s", res.body)
		}

		releaseAll()
		deadline := time.Now().Add(2 * time.Second)
		for {
			res = b.get("/parent/children")
			if !strings.Contains(res.body, "ログイン状態を確認しています") || time.Now().After(deadline) {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if res.path != "/parent/children" || !strings.Contains(res.body, "登録済みの園児") {
			t.Errorf("確認後の画面: path=%s body=%s", res.path, res.body)
		}
	})

	t.Run("本人確認に失敗した場合はトークンを破棄してログイン画面へ遷移すること", func(t *testing.T) {
		t.Parallel()

		gb := &gatedBackend{meStatus: http.StatusUnauthorized}
		backend := httptest.NewServer(gb)
		t.Cleanup(backend.Close)

		stores := newSharedStores()
		sid := uuid.NewString()
		store := stores.get(StoreKey(sid))
		_ = store.Set(context.Background(), "expired")
		_, _, portal := newTestPortal(t, backend.URL, stores.factory(), 2*time.Second)

		b := newBrowser(t, portal.URL)
		b.setSID(sid)

		res := b.get("/profile")
		if res.path != PathLogin {
			t.Errorf("遷移先: got %s, want %s", res.path, PathLogin)
		}
		if _, ok, _ := store.Get(context.Background()); ok {
			t.Error("トークンが破棄されていない")
		}
	})

	t.Run("トークンが無い場合はバックエンドに問い合わせないこと", func(t *testing.T) {
		t.Parallel()

		gb := &gatedBackend{identity: thandi}
		backend := httptest.NewServer(gb)
		t.Cleanup(backend.Close)
		_, _, portal := newTestPortal(t, backend.URL, nil, 2*time.Second)

		res := newBrowser(t, portal.URL).get("/")
		if res.path != PathLogin {
			t.Errorf("遷移先: got %s, want %s", res.path, PathLogin)
		}
		if n := gb.calls(); n != 0 {
			t.Errorf("/api/auth/me の呼び出し回数: got %d, want 0", n)
		}
	})

	t.Run("破棄されたセッションは保存済みトークンで復元されること", func(t *testing.T) {
		t.Parallel()

		gb := &gatedBackend{identity: thandi}
		backend := httptest.NewServer(gb)
		t.Cleanup(backend.Close)

		stores := newSharedStores()
		sid := uuid.NewString()
		_ = stores.get(StoreKey(sid)).Set(context.Background(), "tok-1")
		_, registry, portal := newTestPortal(t, backend.URL, stores.factory(), 2*time.Second)

		b := newBrowser(t, portal.URL)
		b.setSID(sid)
		if res := b.get("/profile"); !strings.Contains(res.body, "thandi@x.com") {
			t.Fatalf("プロフィールが表示されない: %s", res.body)
		}

		registry.mu.Lock()
		registry.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		registry.mu.Unlock()
		if n := registry.Sweep(); n != 1 {
			t.Fatalf("Sweep(): got %d, want 1", n)
		}

		if res := b.get("/profile"); !strings.Contains(res.body, "thandi@x.com") {
			t.Errorf("復元後にプロフィールが表示されない: %s", res.body)
		}
		if n := gb.calls(); n != 2 {
			t.Errorf("/api/auth/me の呼び出し回数: got %d, want 2", n)
		}
	})
}

// TestPortal_MidSession401 はログイン中にドメインAPIが401を返した場合を検証する。
func TestPortal_MidSession401(t *testing.T) {
	t.Parallel()

	gb := &gatedBackend{identity: thandi, domain401: true}
	backend := httptest.NewServer(gb)
	t.Cleanup(backend.Close)

	stores := newSharedStores()
	sid := uuid.NewString()
	store := stores.get(StoreKey(sid))
	_ = store.Set(context.Background(), "tok-1")
	_, _, portal := newTestPortal(t, backend.URL, stores.factory(), 2*time.Second)

	b := newBrowser(t, portal.URL)
	b.setSID(sid)

	res := b.get("/parent/appointments")
	if res.status != http.StatusUnauthorized {
		t.Errorf("ステータスコード: got %d, want %d", res.status, http.StatusUnauthorized)
	}
	if !strings.Contains(res.body, "もう一度ログインする") {
		t.Errorf("再ログインの導線が表示されていない: %s", res.body)
	}

	// ログイン状態とトークンはそのまま
	if token, ok, _ := store.Get(context.Background()); !ok || token != "tok-1" {
		t.Errorf("トークン: got %q (ok=%v), want %q", token, ok, "tok-1")
	}
	if res := b.get("/profile"); res.path != "/profile" {
		t.Errorf("プロフィールの遷移先: got %s, want /profile", res.path)
	}
}

// TestHealth はヘルスチェックを検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	_, _, portal := newTestPortal(t, "http://127.0.0.1:1", nil, 0)
	res := newBrowser(t, portal.URL).get("/health")
	if res.status != http.StatusOK || !strings.Contains(res.body, `"service":"portal"`) {
		t.Errorf("status=%d body=%s", res.status, res.body)
	}
}
