// Package session は「誰がログインしているか」を管理するセッションマネージャを提供する。
//
// トークンストアにトークンがあれば起動時にバックエンドへ本人情報を問い合わせ、
// 失敗した場合はトークンを破棄して未ログイン状態に落とす。
// ログインはトークン交換と本人情報取得の2往復で構成され、
// 本人情報が確定するまで呼び出し元には戻らない。
package session
