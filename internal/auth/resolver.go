package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/moamoa/internal/metrics"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
	"github.com/hitoshi/moamoa/internal/security"
)

// 解決経路のメトリクスラベル
const (
	resolutionExisting = "existing"
	resolutionLinked   = "linked"
	resolutionCreated  = "created"
	resolutionRace     = "race_recovered"
)

// defaultNames はIdPが表示名を返さない場合の既定名。
var defaultNames = map[model.Provider]string{
	model.ProviderGoogle: "구글 사용자",
	model.ProviderKakao:  "카카오 사용자",
}

// IdentityResolver はOAuthプロフィールをユーザーに解決し、必要に応じて紐付け・作成を行う。
type IdentityResolver struct {
	userRepo   repository.UserRepository
	socialRepo repository.SocialLoginRepository
	sanitizer  *security.ProfileSanitizer
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewIdentityResolver はIdentityResolverを生成する。
func NewIdentityResolver(
	userRepo repository.UserRepository,
	socialRepo repository.SocialLoginRepository,
	sanitizer *security.ProfileSanitizer,
	collector metrics.MetricsCollector,
) *IdentityResolver {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &IdentityResolver{
		userRepo:   userRepo,
		socialRepo: socialRepo,
		sanitizer:  sanitizer,
		metrics:    collector,
		now:        time.Now,
	}
}

// Resolve は以下の順でユーザーを決定する。
//  1. (provider, external_id) の紐付けがあればその所有者
//  2. メールアドレスが一致するユーザーがいれば紐付けを追加
//  3. どちらもなければユーザーと紐付けを同一トランザクションで作成
//
// 2, 3で一意制約違反が起きた場合は同時ログインとみなし、1回だけ再読込する。
func (r *IdentityResolver) Resolve(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	if profile == nil || profile.ExternalID == "" {
		return nil, model.NewUnauthorizedError("소셜 로그인 정보가 올바르지 않습니다")
	}
	provider := string(profile.Provider)

	user, err := r.findLinked(ctx, profile)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if err := r.touch(ctx, user); err != nil {
			return nil, err
		}
		r.metrics.RecordOAuthResolution(provider, resolutionExisting)
		return user.WithoutPassword(), nil
	}

	email := NormalizeEmail(profile.Email)
	if email != "" {
		existing, err := r.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, model.NewDatabaseError(err)
		}
		if existing != nil {
			user, err := r.link(ctx, existing, profile)
			if err != nil {
				return nil, err
			}
			r.metrics.RecordOAuthResolution(provider, resolutionLinked)
			return user, nil
		}
	}

	user, err = r.create(ctx, profile, email)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordOAuthResolution(provider, resolutionCreated)
	return user, nil
}

// findLinked は紐付け済みのユーザーを返す。見つからない場合はnil。
func (r *IdentityResolver) findLinked(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	sl, err := r.socialRepo.FindByProviderAndExternalID(ctx, profile.Provider, profile.ExternalID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if sl == nil {
		return nil, nil
	}
	user, err := r.userRepo.FindByID(ctx, sl.UserID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		// ON DELETE CASCADEのため通常は起きない
		return nil, model.NewDatabaseError(fmt.Errorf("social login %d references missing user %d", sl.ID, sl.UserID))
	}
	return user, nil
}

// link は既存ユーザーに紐付けを追加する。パスワードハッシュは変更しない。
func (r *IdentityResolver) link(ctx context.Context, user *model.User, profile *OAuthProfile) (*model.User, error) {
	err := r.socialRepo.Create(ctx, &model.SocialLogin{
		UserID:     user.ID,
		Provider:   profile.Provider,
		ExternalID: profile.ExternalID,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return r.recoverRace(ctx, profile, user.Email)
	}
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}

	slog.Info("social login linked to existing user",
		slog.Int64("user_id", user.ID),
		slog.String("provider", string(profile.Provider)),
	)

	if err := r.touch(ctx, user); err != nil {
		return nil, err
	}
	return user.WithoutPassword(), nil
}

// create はユーザーと最初の紐付けを作成する。
func (r *IdentityResolver) create(ctx context.Context, profile *OAuthProfile, email string) (*model.User, error) {
	verified := email != "" && profile.EmailVerified
	if email == "" {
		email = syntheticEmail(profile.Provider, profile.ExternalID)
	}

	now := r.now()
	user := &model.User{
		Email:         email,
		Name:          r.sanitizer.Name(profile.Name, defaultNames[profile.Provider]),
		Photo:         r.sanitizer.Photo(profile.Photo),
		EmailVerified: verified,
		LastLoginAt:   &now,
	}
	sl := &model.SocialLogin{
		Provider:   profile.Provider,
		ExternalID: profile.ExternalID,
	}

	err := r.userRepo.CreateWithSocialLogin(ctx, user, sl)
	if errors.Is(err, repository.ErrDuplicate) {
		return r.recoverRace(ctx, profile, email)
	}
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}

	slog.Info("new user created via social login",
		slog.Int64("user_id", user.ID),
		slog.String("provider", string(profile.Provider)),
	)
	return user, nil
}

// recoverRace は同時ログインで一意制約違反が起きた後に1回だけ再読込する。
func (r *IdentityResolver) recoverRace(ctx context.Context, profile *OAuthProfile, email string) (*model.User, error) {
	provider := string(profile.Provider)

	user, err := r.findLinked(ctx, profile)
	if err != nil {
		return nil, err
	}
	if user != nil {
		r.metrics.RecordOAuthResolution(provider, resolutionRace)
		return user.WithoutPassword(), nil
	}

	if email != "" {
		existing, err := r.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, model.NewDatabaseError(err)
		}
		if existing != nil {
			err := r.socialRepo.Create(ctx, &model.SocialLogin{
				UserID:     existing.ID,
				Provider:   profile.Provider,
				ExternalID: profile.ExternalID,
			})
			if err != nil && !errors.Is(err, repository.ErrDuplicate) {
				return nil, model.NewDatabaseError(err)
			}
			r.metrics.RecordOAuthResolution(provider, resolutionRace)
			return existing.WithoutPassword(), nil
		}
	}

	return nil, model.NewDatabaseError(fmt.Errorf("identity for %s/%s not found after unique violation", provider, profile.ExternalID))
}

// touch は最終ログイン日時を更新する。
func (r *IdentityResolver) touch(ctx context.Context, user *model.User) error {
	now := r.now()
	if err := r.userRepo.UpdateLastLoginAt(ctx, user.ID, now); err != nil {
		return model.NewDatabaseError(err)
	}
	user.LastLoginAt = &now
	return nil
}

// syntheticEmail はメールアドレスを返さないIdP向けの代替アドレスを生成する。
func syntheticEmail(provider model.Provider, externalID string) string {
	return fmt.Sprintf("%s_%s@%s.temp", provider, externalID, provider)
}

// NormalizeEmail はメールアドレスを前後空白除去・小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
