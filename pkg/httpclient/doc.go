// Package httpclient はバックエンドREST APIへの唯一の送信経路を提供する。
//
// ベースURLは生成時に固定され、GET/POST/PUT/PATCH/DELETEの各動詞で
// JSONを送受信する。ベアラートークンの付与などの横断処理は
// Middleware として明示的に合成する。2xx以外の応答は *RequestError、
// 応答を受け取れなかった場合は *NetworkError として呼び出し側に返し、
// クライアント自身は一切回復処理を行わない。
package httpclient
