// Package validation はリクエストボディの入力値検証を行う。
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/moamoa/internal/model"
)

// DateLayout は生年月日の入力形式。
const DateLayout = "2006-01-02"

var (
	koreanNamePattern = regexp.MustCompile(`^[가-힣a-zA-Z\s]+$`)
	krMobilePattern   = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)
)

// maskedFields は値をレスポンスに含めないフィールド。
var maskedFields = map[string]bool{"password": true}

// messages はフィールドとタグの組に対するメッセージ。
var messages = map[string]string{
	"email.required":            "올바른 이메일 형식을 입력해주세요",
	"email.email":               "올바른 이메일 형식을 입력해주세요",
	"password.required":         "비밀번호를 입력해주세요",
	"password.min":              "비밀번호는 최소 8자 이상이어야 합니다",
	"password.password_charset": "비밀번호는 대소문자와 숫자를 포함해야 합니다",
	"password.bcrypt_len":       "비밀번호는 72바이트 이하여야 합니다",
	"name.required":             "이름은 2자 이상 20자 이하여야 합니다",
	"name.min":                  "이름은 2자 이상 20자 이하여야 합니다",
	"name.max":                  "이름은 2자 이상 20자 이하여야 합니다",
	"name.korean_name":          "이름은 한글, 영문, 공백만 입력 가능합니다",
	"phone.kr_mobile":           "올바른 휴대폰 번호를 입력해주세요",
	"birthday.ymd":              "생일은 YYYY-MM-DD 형식이어야 합니다",
	"photo.url":                 "올바른 URL 형식을 입력해주세요",
	"photo.max":                 "URL이 너무 깁니다",
}

// tagMessages はフィールド固有のメッセージがない場合の既定値。
var tagMessages = map[string]string{
	"required": "필수 입력값입니다",
	"email":    "올바른 이메일 형식을 입력해주세요",
	"url":      "올바른 URL 형식을 입력해주세요",
	"min":      "입력값이 너무 짧습니다",
	"max":      "입력값이 너무 깁니다",
}

// Validator はgo-playground/validatorのラッパー。
// 検証失敗はB002のAPIErrorに変換する。
type Validator struct {
	v *validator.Validate
}

// New はカスタムタグを登録したValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名はJSONのキー名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 登録に失敗するのはタグ名が不正な場合のみ
	mustRegister(v, "password_charset", passwordCharset)
	mustRegister(v, "bcrypt_len", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= 72
	})
	mustRegister(v, "korean_name", func(fl validator.FieldLevel) bool {
		return koreanNamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "kr_mobile", func(fl validator.FieldLevel) bool {
		return krMobilePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "ymd", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// passwordCharset は大文字・小文字・数字をそれぞれ1文字以上含むかを判定する。
func passwordCharset(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// Struct は構造体を検証する。失敗した場合はB002の*model.APIErrorを返す。
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewBadRequestError("", nil)
	}

	fields := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, toFieldError(fe))
	}
	return model.NewValidationError(fields)
}

func toFieldError(fe validator.FieldError) model.FieldError {
	field := fe.Field()
	msg, ok := messages[field+"."+fe.Tag()]
	if !ok {
		msg, ok = tagMessages[fe.Tag()]
		if !ok {
			msg = "입력값이 올바르지 않습니다"
		}
	}

	var value any
	if !maskedFields[field] {
		value = fe.Value()
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				value = nil
			} else {
				value = rv.Elem().Interface()
			}
		}
	}

	return model.FieldError{Field: field, Message: msg, Value: value}
}

// ParseDate はYYYY-MM-DD形式の日付を解析する。
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
