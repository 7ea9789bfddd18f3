package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moamoa/internal/model"
)

// newTokenServer はアクセストークンを返すトークンエンドポイントを立てる。
func newTokenServer(t *testing.T, wantCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("code"); got != wantCode {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			return
		}
		if got := r.PostForm.Get("client_id"); got != "test-client-id" {
			t.Errorf("client_id = %q, want test-client-id", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newUserInfoServer はBearerトークンを確認してbodyを返すユーザー情報エンドポイントを立てる。
func newUserInfoServer(t *testing.T, body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(tokenURL, userInfoURL string) OAuthConfig {
	return OAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:3000/auth/callback",
		TokenURL:     tokenURL,
		UserInfoURL:  userInfoURL,
	}
}

func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGoogleOAuthProvider(OAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:3000/auth/google/callback",
	})

	u, err := url.Parse(provider.GetLoginURL("test-state-value"))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if u.Host != "accounts.google.com" {
		t.Errorf("host = %q, want accounts.google.com", u.Host)
	}

	q := u.Query()
	tests := []struct {
		key  string
		want string
	}{
		{"client_id", "test-client-id"},
		{"redirect_uri", "http://localhost:3000/auth/google/callback"},
		{"state", "test-state-value"},
		{"response_type", "code"},
		{"scope", "openid email profile"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := q.Get(tt.key); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer := newTokenServer(t, "test-auth-code")
	userInfoServer := newUserInfoServer(t, map[string]any{
		"sub":            "google-sub-12345",
		"email":          "user@gmail.com",
		"email_verified": true,
		"name":           "Google User",
		"picture":        "https://lh3.googleusercontent.com/a/photo",
	})

	provider := NewGoogleOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

	profile, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	want := OAuthProfile{
		Provider:      model.ProviderGoogle,
		ExternalID:    "google-sub-12345",
		Email:         "user@gmail.com",
		EmailVerified: true,
		Name:          "Google User",
		Photo:         "https://lh3.googleusercontent.com/a/photo",
	}
	if *profile != want {
		t.Errorf("profile = %+v, want %+v", *profile, want)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_EmailVerified(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want bool
	}{
		{
			name: "未確認のメール",
			body: map[string]any{"sub": "g-1", "email": "user@gmail.com", "email_verified": false},
			want: false,
		},
		{
			name: "フラグなし",
			body: map[string]any{"sub": "g-1", "email": "user@gmail.com"},
			want: false,
		},
		{
			name: "メールなし",
			body: map[string]any{"sub": "g-1", "email_verified": true},
			want: false,
		},
		{
			name: "確認済み",
			body: map[string]any{"sub": "g-1", "email": "user@gmail.com", "email_verified": true},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenServer := newTokenServer(t, "valid-code")
			userInfoServer := newUserInfoServer(t, tt.body)
			provider := NewGoogleOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

			profile, err := provider.ExchangeCode(context.Background(), "valid-code")
			if err != nil {
				t.Fatalf("ExchangeCode() error = %v", err)
			}
			if profile.EmailVerified != tt.want {
				t.Errorf("EmailVerified = %v, want %v", profile.EmailVerified, tt.want)
			}
		})
	}
}

func TestGoogleOAuthProvider_ExchangeCode_TokenError(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	provider := NewGoogleOAuthProvider(testOAuthConfig(tokenServer.URL, "http://127.0.0.1:1/unused"))

	if _, err := provider.ExchangeCode(context.Background(), "invalid-code"); err == nil {
		t.Fatal("expected error from ExchangeCode with invalid code")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

	_, err := provider.ExchangeCode(context.Background(), "valid-code")
	if err == nil {
		t.Fatal("expected error when user info fetch fails")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should mention status, got %v", err)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_MissingSub(t *testing.T) {
	tokenServer := newTokenServer(t, "valid-code")
	userInfoServer := newUserInfoServer(t, map[string]any{"email": "user@gmail.com"})

	provider := NewGoogleOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

	if _, err := provider.ExchangeCode(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error when sub is missing")
	}
}

func TestKakaoOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewKakaoOAuthProvider(OAuthConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:3000/auth/kakao/callback",
	})

	u, err := url.Parse(provider.GetLoginURL("kakao-state"))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if u.Host != "kauth.kakao.com" {
		t.Errorf("host = %q, want kauth.kakao.com", u.Host)
	}
	if got := u.Query().Get("state"); got != "kakao-state" {
		t.Errorf("state = %q, want kakao-state", got)
	}
	if got := u.Query().Get("scope"); !strings.Contains(got, "account_email") {
		t.Errorf("scope = %q, should contain account_email", got)
	}
}

func TestKakaoOAuthProvider_ExchangeCode(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want OAuthProfile
	}{
		{
			name: "メールアドレスあり",
			body: map[string]any{
				"id": int64(3141592653),
				"kakao_account": map[string]any{
					"email":             "user@kakao.com",
					"is_email_verified": true,
					"profile": map[string]any{
						"nickname":          "카카오친구",
						"profile_image_url": "https://k.kakaocdn.net/img.jpg",
					},
				},
			},
			want: OAuthProfile{
				Provider:      model.ProviderKakao,
				ExternalID:    "3141592653",
				Email:         "user@kakao.com",
				EmailVerified: true,
				Name:          "카카오친구",
				Photo:         "https://k.kakaocdn.net/img.jpg",
			},
		},
		{
			name: "メールアドレス未同意はpropertiesにフォールバック",
			body: map[string]any{
				"id": 12345,
				"properties": map[string]any{
					"nickname":      "닉네임",
					"profile_image": "https://k.kakaocdn.net/p.jpg",
				},
			},
			want: OAuthProfile{
				Provider:   model.ProviderKakao,
				ExternalID: "12345",
				Name:       "닉네임",
				Photo:      "https://k.kakaocdn.net/p.jpg",
			},
		},
		{
			name: "未検証のメールアドレス",
			body: map[string]any{
				"id": 777,
				"kakao_account": map[string]any{
					"email":             "unverified@kakao.com",
					"is_email_verified": false,
				},
			},
			want: OAuthProfile{
				Provider:   model.ProviderKakao,
				ExternalID: "777",
				Email:      "unverified@kakao.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenServer := newTokenServer(t, "kakao-code")
			userInfoServer := newUserInfoServer(t, tt.body)
			provider := NewKakaoOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

			profile, err := provider.ExchangeCode(context.Background(), "kakao-code")
			if err != nil {
				t.Fatalf("ExchangeCode() error = %v", err)
			}
			if *profile != tt.want {
				t.Errorf("profile = %+v, want %+v", *profile, tt.want)
			}
		})
	}
}

func TestKakaoOAuthProvider_ExchangeCode_MissingID(t *testing.T) {
	tokenServer := newTokenServer(t, "kakao-code")
	userInfoServer := newUserInfoServer(t, map[string]any{"properties": map[string]any{"nickname": "x"}})
	provider := NewKakaoOAuthProvider(testOAuthConfig(tokenServer.URL, userInfoServer.URL))

	if _, err := provider.ExchangeCode(context.Background(), "kakao-code"); err == nil {
		t.Fatal("expected error when id is missing")
	}
}
