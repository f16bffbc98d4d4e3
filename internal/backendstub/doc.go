// Package backendstub はポータルの開発・結合テスト用に、creche のREST APIを模したサーバーを提供する。
//
// /api/auth/* でアカウント作成・ログイン・本人情報取得を、/api/parent/* と /api/admin/* と /api/user/* で
// 園児プロフィールと見学予約を扱う。データはSQLiteに保存し、パスワードはbcryptでハッシュ化する。
// 役割による権限チェックはこのサーバー側で行う。
package backendstub
