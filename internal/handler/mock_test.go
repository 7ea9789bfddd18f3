package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/middleware"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
)

// --- モック ---

type mockAuthService struct {
	registerFn    func(ctx context.Context, req model.RegisterRequest) (*model.User, *auth.TokenPair, error)
	refreshFn     func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	issueTokensFn func(user *model.User, reason string) (*auth.TokenPair, error)
}

func (m *mockAuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, *auth.TokenPair, error) {
	return m.registerFn(ctx, req)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	return m.refreshFn(ctx, refreshToken)
}

func (m *mockAuthService) IssueTokens(user *model.User, reason string) (*auth.TokenPair, error) {
	if m.issueTokensFn != nil {
		return m.issueTokensFn(user, reason)
	}
	return &auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

type mockProfileService struct {
	getProfileFn       func(ctx context.Context, userID int64) (*model.UserProfile, error)
	getPublicProfileFn func(ctx context.Context, userID int64) (*model.PublicProfile, error)
	updateProfileFn    func(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error)
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	return m.getProfileFn(ctx, userID)
}

func (m *mockProfileService) GetPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	return m.getPublicProfileFn(ctx, userID)
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error) {
	return m.updateProfileFn(ctx, userID, req)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// memoryUserRepo はシナリオテスト用のインメモリユーザーリポジトリ。
type memoryUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1, users: make(map[int64]*model.User)}
}

func (m *memoryUserRepo) get(id int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (m *memoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.get(id), nil
}

func (m *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.nextID++
	c := *user
	m.users[user.ID] = &c
	return nil
}

func (m *memoryUserRepo) CreateWithSocialLogin(ctx context.Context, user *model.User, sl *model.SocialLogin) error {
	if err := m.Create(ctx, user); err != nil {
		return err
	}
	sl.UserID = user.ID
	return nil
}

func (m *memoryUserRepo) UpdateLastLoginAt(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Phone != nil {
		u.Phone = update.Phone
	}
	if update.Birthday != nil {
		u.Birthday = update.Birthday
	}
	if update.Photo != nil {
		u.Photo = update.Photo
	}
	c := *u
	return &c, nil
}

func (m *memoryUserRepo) CountRelations(ctx context.Context, id int64) (*model.RelationCounts, error) {
	return &model.RelationCounts{}, nil
}

type memorySocialRepo struct{}

func (memorySocialRepo) FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error) {
	return nil, nil
}

func (memorySocialRepo) Create(ctx context.Context, sl *model.SocialLogin) error { return nil }

func (memorySocialRepo) CountByUserID(ctx context.Context, userID int64) (int, error) { return 0, nil }

type friendSet map[[2]int64]bool

func (f friendSet) ExistsAccepted(ctx context.Context, a, b int64) (bool, error) {
	return f[[2]int64{a, b}] || f[[2]int64{b, a}], nil
}

type stubProvider struct {
	name    model.Provider
	profile *auth.OAuthProfile
}

func (p *stubProvider) Name() model.Provider { return p.name }

func (p *stubProvider) GetLoginURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (*auth.OAuthProfile, error) {
	return p.profile, nil
}

// --- ヘルパー ---

// envelope はsuccessを遅延デコードするためのレスポンス表現。
type envelope struct {
	ResultType string                `json:"resultType"`
	Error      *middleware.ErrorBody `json:"error"`
	Success    json.RawMessage       `json:"success"`
}

// decodeEnvelope はレスポンスを共通フォーマットとしてデコードし、successをdstに展開する。
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v\nraw: %s", err, w.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Success, dst); err != nil {
			t.Fatalf("failed to decode success payload: %v", err)
		}
	}
	return env
}

// assertSuccess はSUCCESSレスポンスのステータスを検証し、successをdstに展開する。
func assertSuccess(t *testing.T, w *httptest.ResponseRecorder, status int, dst any) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	env := decodeEnvelope(t, w, dst)
	if env.ResultType != middleware.ResultSuccess {
		t.Errorf("resultType = %q, want SUCCESS", env.ResultType)
	}
	if env.Error != nil {
		t.Errorf("error = %+v, want null", env.Error)
	}
}

// assertFail はFAILレスポンスのステータスとエラーコードを検証する。
func assertFail(t *testing.T, w *httptest.ResponseRecorder, status int, code string) *middleware.ErrorBody {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	env := decodeEnvelope(t, w, nil)
	if env.ResultType != middleware.ResultFail {
		t.Errorf("resultType = %q, want FAIL", env.ResultType)
	}
	if string(env.Success) != "null" {
		t.Errorf("success = %s, want null", env.Success)
	}
	if env.Error == nil {
		t.Fatal("error should not be null")
	}
	if env.Error.ErrorCode != code {
		t.Errorf("errorCode = %q, want %q", env.Error.ErrorCode, code)
	}
	return env.Error
}

// withUser は認証済みユーザーをコンテキストに設定したリクエストを返す。
func withUser(r *http.Request, user *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), user))
}
