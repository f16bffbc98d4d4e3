package session

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate は入力検証器。並行利用しても安全。
var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials はログインに使う資格情報。
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration はアカウント作成に使う情報。
type Registration struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// fieldNames はjsonタグ名に対応する表示名。
var fieldNames = map[string]string{
	"FullName": "fullName",
	"Email":    "email",
	"Password": "password",
}

// check はvalidatorの結果を *ValidationError に変換する。
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("入力検証に失敗: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fieldNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		fields[name] = message(name, fe)
	}
	return &ValidationError{Fields: fields}
}

func message(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + "は必須です"
	case "email":
		return name + "の形式が正しくありません"
	case "min":
		return fmt.Sprintf("%sは%s文字以上で入力してください", name, fe.Param())
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください", name, fe.Param())
	default:
		return name + "が不正です"
	}
}
