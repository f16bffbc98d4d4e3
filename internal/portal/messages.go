package portal

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nao1215/creche/internal/session"
	"github.com/nao1215/creche/pkg/httpclient"
)

// displayMessage はエラーを画面に表示する文言に変換する。
// バックエンドがメッセージを返していればそれを優先する。
func displayMessage(err error) string {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		return joinFields(verr.Fields)
	}

	var ferr formError
	if errors.As(err, &ferr) {
		return joinFields(ferr)
	}

	var reqErr *httpclient.RequestError
	if errors.As(err, &reqErr) {
		if msg := reqErr.Message(); msg != "" {
			return msg
		}
		if reqErr.Status == http.StatusUnauthorized {
			return "認証に失敗しました。もう一度ログインしてください。"
		}
		if reqErr.Status >= 500 {
			return "サーバーでエラーが発生しました。時間をおいて再度お試しください。"
		}
		return fmt.Sprintf("リクエストが受け付けられませんでした（%d）", reqErr.Status)
	}

	if httpclient.IsNetwork(err) {
		return "サーバーに接続できませんでした。通信環境を確認してください。"
	}
	if errors.Is(err, session.ErrDisposed) {
		return "セッションが終了しました。ページを再読み込みしてください。"
	}
	return "予期しないエラーが発生しました。"
}

// statusFor はエラーを画面として返す際のHTTPステータスを返す。
func statusFor(err error) int {
	var ferr formError
	switch {
	case session.IsValidation(err), errors.As(err, &ferr):
		return http.StatusBadRequest
	case httpclient.IsNetwork(err):
		return http.StatusBadGateway
	}
	if status := httpclient.StatusOf(err); status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}

// formError はフォーム入力の検証エラー。キーはフォームの項目名。
type formError map[string]string

func (e formError) Error() string {
	return "入力内容に誤りがあります: " + joinFields(e)
}

// formLabels はフォーム項目の表示名。
var formLabels = map[string]string{
	"Email":           "メールアドレス",
	"Password":        "パスワード",
	"ConfirmPassword": "パスワード（確認）",
	"FullName":        "氏名",
	"DateOfBirth":     "生年月日",
	"ScheduledAt":     "見学日時",
	"Note":            "備考",
}

// bindError はgin.Context.ShouldBindの結果をformErrorに変換する。
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return formError{"form": "入力内容を読み取れませんでした"}
	}

	fe := make(formError, len(verrs))
	for _, v := range verrs {
		label := formLabels[v.Field()]
		if label == "" {
			label = v.Field()
		}
		fe[v.Field()] = fieldMessage(label, v)
	}
	return fe
}

func fieldMessage(label string, v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return label + "を入力してください"
	case "email":
		return label + "の形式が正しくありません"
	case "min":
		return fmt.Sprintf("%sは%s文字以上で入力してください", label, v.Param())
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください", label, v.Param())
	case "eqfield":
		return "パスワードが一致しません"
	case "datetime":
		return label + "の形式が正しくありません"
	default:
		return label + "が不正です"
	}
}

func joinFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fields[k])
	}
	return strings.Join(msgs, " / ")
}
