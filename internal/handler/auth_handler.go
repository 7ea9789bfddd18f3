// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/middleware"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/validation"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.User, *auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	IssueTokens(user *model.User, reason string) (*auth.TokenPair, error)
}

// ProfileServiceInterface はプロフィール参照・更新のサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error)
	GetPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error)
	UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientURL    string // OAuth完了後のリダイレクト先
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	profiles  ProfileServiceInterface
	validator *validation.Validator
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, profiles ProfileServiceInterface, v *validation.Validator, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		profiles:  profiles,
		validator: v,
		config:    config,
	}
}

// authResponse は登録・ログインのレスポンス。
type authResponse struct {
	User   *model.User     `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// tokensResponse はトークン再発行のレスポンス。
type tokensResponse struct {
	Tokens *auth.TokenPair `json:"tokens"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register はパスワードアカウントを作成する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	user, tokens, err := h.service.Register(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

// Login はPassword戦略で認証済みのユーザーにトークンを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.IssueTokens(user, auth.IssueLogin)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

// Refresh はリフレッシュトークンから新しいトークンペアを発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	// ボディ省略はトークン未指定として扱う
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		if err := middleware.DecodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, r, err)
			return
		}
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, tokensResponse{Tokens: tokens})
}

// Me は現在のユーザーのプロフィールを関連リソース数付きで返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), user.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, profile)
}

// Logout はログアウトを受け付ける。トークンはクライアントが破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.UserFromContext(r.Context()); ok {
		slog.Info("user logged out", slog.Int64("user_id", user.ID))
	}
	middleware.WriteSuccess(w, http.StatusOK, messageResponse{Message: "로그아웃되었습니다"})
}

// OAuthStart はOAuthフローを開始する。
// GET /auth/{provider}
func (h *AuthHandler) OAuthStart(provider auth.OAuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := generateState()
		if err != nil {
			middleware.WriteError(w, r, model.NewInternalError(err))
			return
		}

		middleware.SetOAuthStateCookie(w, state, h.config.CookieSecure)
		http.Redirect(w, r, provider.GetLoginURL(state), http.StatusFound)
	}
}

// OAuthCallback はOAuth戦略で認証済みのユーザーにトークンを発行し、クライアントに戻す。
// GET /auth/{provider}/callback
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.IssueTokens(user, auth.IssueOAuth)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	q := url.Values{}
	q.Set("accessToken", tokens.AccessToken)
	q.Set("refreshToken", tokens.RefreshToken)
	target := strings.TrimRight(h.config.ClientURL, "/") + "/auth/callback?" + q.Encode()

	http.Redirect(w, r, target, http.StatusFound)
}

// requireUser はコンテキストの認証済みユーザーを返す。いなければA001を書き込む。
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError(""))
		return nil, false
	}
	return user, true
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
