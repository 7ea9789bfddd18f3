// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/moamoa/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey は認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// requestStateKey はロギングミドルウェアが用意するリクエスト単位の状態のキー。
	requestStateKey = contextKey("request_state")
)

// requestState は下流で決まった値を外側のミドルウェアに伝える。
type requestState struct {
	requestID string
	userID    int64
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過していない場合はfalseを返す。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok && user != nil {
		st.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}

// RequestIDFromContext はロギングミドルウェアが採番したリクエストIDを返す。
func RequestIDFromContext(ctx context.Context) string {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		return st.requestID
	}
	return ""
}
