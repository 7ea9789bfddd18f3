package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moamoa/internal/model"
)

// 結果種別
const (
	ResultSuccess = "SUCCESS"
	ResultFail    = "FAIL"
)

// Envelope は全レスポンス共通の外形。
type Envelope struct {
	ResultType string     `json:"resultType"`
	Error      *ErrorBody `json:"error"`
	Success    any        `json:"success"`
}

// ErrorBody は失敗時のエラー詳細。
type ErrorBody struct {
	ErrorCode string `json:"errorCode"`
	Reason    string `json:"reason"`
	Data      any    `json:"data"`
}

// WriteSuccess は成功レスポンスを書き込む。
func WriteSuccess(w http.ResponseWriter, statusCode int, payload any) {
	writeEnvelope(w, statusCode, Envelope{ResultType: ResultSuccess, Success: payload})
}

// WriteError はエラーを統一フォーマットで書き込む。
// *model.APIError以外のエラーはS001として扱い、詳細はログにのみ記録する。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
	}
	writeAPIError(w, r, apiErr.Status(), apiErr)
}

// WriteErrorStatus はコード系統と異なるステータスでエラーを書き込む。
// 429や405など、エラーコード体系に専用の系統がない場合に使う。
func WriteErrorStatus(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	writeAPIError(w, r, statusCode, apiErr)
}

// writeAPIError はステータスを指定してエラーを書き込む。
func writeAPIError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	if statusCode >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("error_code", apiErr.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		}
		if apiErr.Err != nil {
			attrs = append(attrs, slog.String("error", apiErr.Err.Error()))
		}
		if id := RequestIDFromContext(r.Context()); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		slog.Error("request failed", attrs...)
	}

	writeEnvelope(w, statusCode, Envelope{
		ResultType: ResultFail,
		Error: &ErrorBody{
			ErrorCode: apiErr.Code,
			Reason:    apiErr.Reason,
			Data:      apiErr.Data,
		},
	})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
