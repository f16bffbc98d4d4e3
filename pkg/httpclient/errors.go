package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody はエラーレスポンスとして読み込むボディの上限バイト数。
const maxErrorBody = 64 << 10

// NetworkError はレスポンスを受け取れなかったことを表す。
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("HTTPリクエストの送信に失敗: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError は2xx以外のレスポンスを表す。
type RequestError struct {
	// Status はHTTPステータスコード。
	Status int
	// Body はレスポンスボディの生データ。
	Body []byte
	// Payload はボディがJSONオブジェクトだった場合のデコード結果。
	Payload map[string]any
}

func (e *RequestError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("HTTPエラー: status=%d, message=%s", e.Status, msg)
	}
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.Status, string(e.Body))
}

// Message はバックエンドが付与したエラーメッセージを返す。
// "message" または "error" フィールドが文字列の場合に限る。
func (e *RequestError) Message() string {
	for _, key := range []string{"message", "error"} {
		if s, ok := e.Payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Classify はレスポンスを分類し、2xx以外の場合は *RequestError を返す。
// 2xxの場合はボディを読まずにnilを返す。
func Classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	reqErr := &RequestError{Status: resp.StatusCode, Body: body}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		reqErr.Payload = payload
	}
	return reqErr
}

// StatusOf はエラーに含まれるHTTPステータスコードを返す。
// *RequestError でない場合は0を返す。
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}

// IsUnauthorized はバックエンドが401を返したかどうかを判定する。
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNetwork はレスポンスを受け取れなかったエラーかどうかを判定する。
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
