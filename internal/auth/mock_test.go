package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn              func(ctx context.Context, id int64) (*model.User, error)
	findByEmailFn           func(ctx context.Context, email string) (*model.User, error)
	createFn                func(ctx context.Context, user *model.User) error
	createWithSocialLoginFn func(ctx context.Context, user *model.User, sl *model.SocialLogin) error
	updateLastLoginAtFn     func(ctx context.Context, id int64, at time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) CreateWithSocialLogin(ctx context.Context, user *model.User, sl *model.SocialLogin) error {
	if m.createWithSocialLoginFn != nil {
		return m.createWithSocialLoginFn(ctx, user, sl)
	}
	return nil
}

func (m *mockUserRepo) UpdateLastLoginAt(ctx context.Context, id int64, at time.Time) error {
	if m.updateLastLoginAtFn != nil {
		return m.updateLastLoginAtFn(ctx, id, at)
	}
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) CountRelations(ctx context.Context, id int64) (*model.RelationCounts, error) {
	return &model.RelationCounts{}, nil
}

type mockSocialRepo struct {
	findFn          func(ctx context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error)
	createFn        func(ctx context.Context, sl *model.SocialLogin) error
	countByUserIDFn func(ctx context.Context, userID int64) (int, error)
}

func (m *mockSocialRepo) FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error) {
	if m.findFn != nil {
		return m.findFn(ctx, provider, externalID)
	}
	return nil, nil
}

func (m *mockSocialRepo) Create(ctx context.Context, sl *model.SocialLogin) error {
	if m.createFn != nil {
		return m.createFn(ctx, sl)
	}
	return nil
}

func (m *mockSocialRepo) CountByUserID(ctx context.Context, userID int64) (int, error) {
	if m.countByUserIDFn != nil {
		return m.countByUserIDFn(ctx, userID)
	}
	return 0, nil
}

var (
	_ repository.UserRepository        = (*mockUserRepo)(nil)
	_ repository.SocialLoginRepository = (*mockSocialRepo)(nil)
)

// memoryStore はユーザーと紐付けをメモリ上に保持する簡易ストア。
// 一意制約を再現し、リゾルバの冪等性と競合時の挙動を検証する。
type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*model.User
	socials []*model.SocialLogin
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, users: make(map[int64]*model.User)}
}

func (s *memoryStore) addUser(u *model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextID
	s.nextID++
	c := *u
	s.users[u.ID] = &c
	return u
}

func (s *memoryStore) userRepo() *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(_ context.Context, id int64) (*model.User, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if u, ok := s.users[id]; ok {
				c := *u
				return &c, nil
			}
			return nil, nil
		},
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, u := range s.users {
				if u.Email == email {
					c := *u
					return &c, nil
				}
			}
			return nil, nil
		},
		createWithSocialLoginFn: func(_ context.Context, user *model.User, sl *model.SocialLogin) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, u := range s.users {
				if u.Email == user.Email {
					return repository.ErrDuplicate
				}
			}
			for _, e := range s.socials {
				if e.Provider == sl.Provider && e.ExternalID == sl.ExternalID {
					return repository.ErrDuplicate
				}
			}
			user.ID = s.nextID
			s.nextID++
			c := *user
			s.users[user.ID] = &c
			sl.UserID = user.ID
			sc := *sl
			s.socials = append(s.socials, &sc)
			return nil
		},
		updateLastLoginAtFn: func(_ context.Context, id int64, at time.Time) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			if u, ok := s.users[id]; ok {
				u.LastLoginAt = &at
			}
			return nil
		},
	}
}

func (s *memoryStore) socialRepo() *mockSocialRepo {
	return &mockSocialRepo{
		findFn: func(_ context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, e := range s.socials {
				if e.Provider == provider && e.ExternalID == externalID {
					c := *e
					return &c, nil
				}
			}
			return nil, nil
		},
		createFn: func(_ context.Context, sl *model.SocialLogin) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, e := range s.socials {
				if e.Provider == sl.Provider && e.ExternalID == sl.ExternalID {
					return repository.ErrDuplicate
				}
			}
			c := *sl
			s.socials = append(s.socials, &c)
			return nil
		},
		countByUserIDFn: func(_ context.Context, userID int64) (int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			n := 0
			for _, e := range s.socials {
				if e.UserID == userID {
					n++
				}
			}
			return n, nil
		},
	}
}

func (s *memoryStore) socialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.socials)
}

func (s *memoryStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// recordingMetrics は記録されたメトリクスを保持する。
type recordingMetrics struct {
	mu          sync.Mutex
	attempts    []string
	issued      []string
	resolutions []string
}

func (m *recordingMetrics) RecordAuthAttempt(strategy, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, strategy+":"+outcome)
}

func (m *recordingMetrics) RecordTokensIssued(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, reason)
}

func (m *recordingMetrics) RecordOAuthResolution(provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions = append(m.resolutions, provider+":"+outcome)
}

func (m *recordingMetrics) RecordHTTPStatus(int) {}

type mockProvider struct {
	name       model.Provider
	exchangeFn func(ctx context.Context, code string) (*OAuthProfile, error)
}

func (p *mockProvider) Name() model.Provider { return p.name }

func (p *mockProvider) GetLoginURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *mockProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	return p.exchangeFn(ctx, code)
}
