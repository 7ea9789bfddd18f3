package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// Codeの先頭文字がHTTPステータスの系統を決める。
// ErrはS系エラーの内部原因で、ログにのみ出力しクライアントには返さない。
type APIError struct {
	Code   string // エラーコード
	Reason string // ユーザー向けメッセージ
	Data   any    // フィールド単位の詳細など
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Reason)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Status はエラーコードの系統に対応するHTTPステータスを返す。
func (e *APIError) Status() int {
	return StatusForCode(e.Code)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest     = "B001"
	ErrCodeValidation     = "B002"
	ErrCodeUnauthorized   = "A001"
	ErrCodeTokenExpired   = "A002"
	ErrCodeForbidden      = "F001"
	ErrCodeAdminOnly      = "F002"
	ErrCodeNotFound       = "N001"
	ErrCodeUserNotFound   = "N002"
	ErrCodeEventNotFound  = "N003"
	ErrCodeConflict       = "C001"
	ErrCodeDuplicateEmail = "C002"
	ErrCodeDuplicateEvent = "C003"
	ErrCodeInternal       = "S001"
	ErrCodeDatabase       = "S002"
	ErrCodePayment        = "S003"
)

// StatusForCode はエラーコードの先頭文字からHTTPステータスを決定する。
// 未知のコードは500として扱う。
func StatusForCode(code string) int {
	if code == "" {
		return http.StatusInternalServerError
	}
	switch code[0] {
	case 'B':
		return http.StatusBadRequest
	case 'A':
		return http.StatusUnauthorized
	case 'F':
		return http.StatusForbidden
	case 'N':
		return http.StatusNotFound
	case 'C':
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FieldError はバリデーション失敗の1フィールド分の詳細。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func newAPIError(code, reason string, data any) *APIError {
	return &APIError{Code: code, Reason: reason, Data: data}
}

// reasonOr は空文字の場合に既定のメッセージを返す。
func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

// NewBadRequestError は不正リクエストエラーを生成する。
func NewBadRequestError(reason string, data any) *APIError {
	return newAPIError(ErrCodeBadRequest, reasonOr(reason, "잘못된 요청입니다"), data)
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(fields []FieldError) *APIError {
	return newAPIError(ErrCodeValidation, "입력값이 올바르지 않습니다", fields)
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(reason string) *APIError {
	return newAPIError(ErrCodeUnauthorized, reasonOr(reason, "인증이 필요합니다"), nil)
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError(reason string) *APIError {
	return newAPIError(ErrCodeTokenExpired, reasonOr(reason, "토큰이 만료되었습니다"), nil)
}

// NewForbiddenError は権限エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return newAPIError(ErrCodeForbidden, reasonOr(reason, "접근 권한이 없습니다"), nil)
}

// NewAdminOnlyError は管理者専用エラーを生成する。
func NewAdminOnlyError() *APIError {
	return newAPIError(ErrCodeAdminOnly, "관리자만 접근할 수 있습니다", nil)
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(reason string) *APIError {
	return newAPIError(ErrCodeNotFound, reasonOr(reason, "요청한 리소스를 찾을 수 없습니다"), nil)
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return newAPIError(ErrCodeUserNotFound, "사용자를 찾을 수 없습니다", nil)
}

// NewEventNotFoundError はイベントが見つからない場合のエラーを生成する。
func NewEventNotFoundError() *APIError {
	return newAPIError(ErrCodeEventNotFound, "이벤트를 찾을 수 없습니다", nil)
}

// NewConflictError は重複データエラーを生成する。
func NewConflictError(reason string) *APIError {
	return newAPIError(ErrCodeConflict, reasonOr(reason, "이미 존재하는 데이터입니다"), nil)
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return newAPIError(ErrCodeDuplicateEmail, "이미 사용 중인 이메일입니다", nil)
}

// NewDuplicateEventError はイベント重複エラーを生成する。
func NewDuplicateEventError() *APIError {
	return newAPIError(ErrCodeDuplicateEvent, "이미 존재하는 이벤트입니다", nil)
}

// NewInternalError は内部エラーを生成する。errは詳細としてログにのみ残る。
func NewInternalError(err error) *APIError {
	return &APIError{Code: ErrCodeInternal, Reason: "서버 오류가 발생했습니다", Err: err}
}

// NewDatabaseError はデータストアのエラーを生成する。
func NewDatabaseError(err error) *APIError {
	return &APIError{Code: ErrCodeDatabase, Reason: "데이터베이스 오류가 발생했습니다", Err: err}
}

// NewPaymentError は決済エラーを生成する。
func NewPaymentError(err error) *APIError {
	return &APIError{Code: ErrCodePayment, Reason: "결제 처리 중 오류가 발생했습니다", Err: err}
}
