package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Doer はHTTPリクエストを送信するもの。*http.Client が満たす。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc は関数をDoerとして扱うためのアダプタ。
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do はf(req)を呼び出す。
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Client はバックエンドAPI用のJSONクライアント。
type Client struct {
	// doer はミドルウェアを合成した送信処理。
	doer Doer
	// baseURL はバックエンドのベースURL。生成後は変更されない。
	baseURL string
}

// Option はClientの生成オプション。
type Option func(*options)

type options struct {
	httpClient  *http.Client
	timeout     time.Duration
	middlewares []Middleware
}

// WithHTTPClient は内部で使用する *http.Client を指定する。
// 複数のClientで接続プールを共有する場合に使う。
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout はリクエストのタイムアウトを指定する。WithHTTPClientと併用した場合は無視される。
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMiddleware は送信処理に適用するミドルウェアを追加する。
// 先に指定したものほど外側（先に実行される側）になる。
func WithMiddleware(m ...Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, m...) }
}

// New は新しいクライアントを生成する。
// baseURLには接続先のベースURL（例: "https://api.creche.example"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	return &Client{
		doer:    Chain(httpClient, o.middlewares...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL は接続先のベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

// Post は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// Put は指定パスにJSONボディでPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPut, path, body, result)
}

// Patch は指定パスにJSONボディでPATCHリクエストを送信する。
func (c *Client) Patch(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPatch, path, body, result)
}

// Delete は指定パスにDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, result)
}

// Do はJSON形式のHTTPリクエストを実行する共通処理。
// bodyがnilの場合はボディを送らない。resultがnilまたはレスポンスボディが空の場合はデコードしない。
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if err := Classify(resp); err != nil {
		return err
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}
