// Package middleware はGinベースのHTTPサーバーで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、zapによるアクセスログ、CORS設定に加え、
// バックエンドスタブが使うJWTの発行・検証と役割チェックを含む。
package middleware
