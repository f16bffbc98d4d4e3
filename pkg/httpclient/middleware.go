package httpclient

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Middleware は送信処理を包む関数。
type Middleware func(next Doer) Doer

// Chain はdoerにミドルウェアを合成する。mws[0]が最も外側になる。
func Chain(doer Doer, mws ...Middleware) Doer {
	for i := len(mws) - 1; i >= 0; i-- {
		doer = mws[i](doer)
	}
	return doer
}

// TokenSource は現在のベアラートークンを返す関数。トークンが無い場合はokが偽になる。
type TokenSource func(ctx context.Context) (token string, ok bool)

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyToken はリクエスト単位でトークンを上書きするためのキー。
const contextKeyToken contextKey = "bearer_token"

// WithToken はこのコンテキストで送るリクエストに使うトークンを設定する。
// TokenSourceより優先される。発行直後のトークンで本人情報を取得する場合に使う。
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

// BearerToken はトークンが存在する場合にAuthorizationヘッダーを付与するミドルウェアを返す。
// トークンが無い場合はヘッダーを一切付けない。
func BearerToken(source TokenSource) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			ctx := req.Context()
			token, ok := ctx.Value(contextKeyToken).(string)
			if !ok && source != nil {
				token, _ = source(ctx)
			}
			return next.Do(InjectBearer(req, token))
		})
	}
}

// InjectBearer はtokenが空でなければAuthorizationヘッダーを付与したリクエストを返す。
// 元のリクエストは変更しない。tokenが空の場合は既存のAuthorizationヘッダーも取り除く。
func InjectBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token == "" {
		out.Header.Del("Authorization")
		return out
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}

// RequestLogger は送信したリクエストの結果をデバッグログに出力するミドルウェアを返す。
// Authorizationヘッダーの値は出力しない。
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.Do(req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("latency", time.Since(start)),
				zap.Bool("authorized", req.Header.Get("Authorization") != ""),
			}
			if err != nil {
				logger.Debug("バックエンドへの送信に失敗", append(fields, zap.Error(err))...)
				return nil, err
			}
			logger.Debug("バックエンドへ送信", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}
