package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/model"
)

// --- モック ---

type mockAuthenticator struct {
	passwordFn func(ctx context.Context, email, password string) (*model.User, error)
	bearerFn   func(ctx context.Context, token string) (*model.User, error)
	oauthFn    func(ctx context.Context, provider auth.OAuthProvider, code string) (*model.User, error)
}

func (m *mockAuthenticator) AuthenticatePassword(ctx context.Context, email, password string) (*model.User, error) {
	return m.passwordFn(ctx, email, password)
}

func (m *mockAuthenticator) AuthenticateBearer(ctx context.Context, token string) (*model.User, error) {
	return m.bearerFn(ctx, token)
}

func (m *mockAuthenticator) AuthenticateOAuth(ctx context.Context, provider auth.OAuthProvider, code string) (*model.User, error) {
	return m.oauthFn(ctx, provider, code)
}

type mockFriendRepo struct {
	existsFn func(ctx context.Context, a, b int64) (bool, error)
}

func (m *mockFriendRepo) ExistsAccepted(ctx context.Context, a, b int64) (bool, error) {
	return m.existsFn(ctx, a, b)
}

type stubProvider struct {
	name model.Provider
}

func (p *stubProvider) Name() model.Provider           { return p.name }
func (p *stubProvider) GetLoginURL(state string) string { return "https://idp.example.com/?state=" + state }
func (p *stubProvider) ExchangeCode(context.Context, string) (*auth.OAuthProfile, error) {
	return nil, nil
}

// decodeEnvelope はレスポンスボディを共通フォーマットとしてデコードする。
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v\nraw: %s", err, w.Body.String())
	}
	return env
}

// assertFail はFAILレスポンスのステータスとエラーコードを検証する。
func assertFail(t *testing.T, w *httptest.ResponseRecorder, status int, code string) Envelope {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d", w.Code, status)
	}
	env := decodeEnvelope(t, w)
	if env.ResultType != ResultFail {
		t.Errorf("resultType = %q, want FAIL", env.ResultType)
	}
	if env.Error == nil {
		t.Fatal("error should not be null")
	}
	if env.Error.ErrorCode != code {
		t.Errorf("errorCode = %q, want %q", env.Error.ErrorCode, code)
	}
	if env.Success != nil {
		t.Errorf("success = %v, want null", env.Success)
	}
	return env
}
