// Package portal はcrecheの管理ポータルをHTMLで提供するGinサーバーを実装する。
//
// ブラウザごとにCookieでセッションを識別し、セッションごとにトークンストア・
// バックエンドクライアント・セッションマネージャを1組ずつ持つ。
// 各画面の表示可否はauthz.Decideで判定し、本人確認中は確認中画面を返す。
// 画面から呼ぶドメインAPIが401を返してもログアウトはせず、再ログインの導線を表示する。
package portal
