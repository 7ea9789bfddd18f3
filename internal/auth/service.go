// Package auth はパスワード・JWT・OAuthによる認証とトークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/moamoa/internal/metrics"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
	"github.com/hitoshi/moamoa/internal/validation"
)

// 認証戦略のメトリクスラベル
const (
	StrategyPassword = "password"
	StrategyBearer   = "bearer"
	StrategyRefresh  = "refresh"
	StrategyOAuth    = "oauth"
)

// トークン発行理由のメトリクスラベル
const (
	IssueRegister = "register"
	IssueLogin    = "login"
	IssueRefresh  = "refresh"
	IssueOAuth    = "oauth"
)

const (
	reasonInvalidCredentials = "이메일 또는 비밀번호가 잘못되었습니다"
	reasonSocialOnly         = "소셜 로그인으로 가입된 계정입니다"
	reasonRefreshRequired    = "Refresh token이 필요합니다"
	reasonInvalidUser        = "유효하지 않은 사용자입니다"
	reasonOAuthFailed        = "소셜 로그인에 실패했습니다"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// RevealSocialOnly がtrueの場合、ソーシャル専用アカウントへのパスワードログインに専用の理由を返す。
	RevealSocialOnly bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo   repository.UserRepository
	socialRepo repository.SocialLoginRepository
	tokens     *TokenIssuer
	resolver   *IdentityResolver
	metrics    metrics.MetricsCollector
	config     ServiceConfig
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	socialRepo repository.SocialLoginRepository,
	tokens *TokenIssuer,
	resolver *IdentityResolver,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo:   userRepo,
		socialRepo: socialRepo,
		tokens:     tokens,
		resolver:   resolver,
		metrics:    collector,
		config:     config,
		now:        time.Now,
	}
}

// Register はパスワードアカウントを作成し、トークンペアを発行する。
// 入力は検証済みであること。
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.User, *TokenPair, error) {
	email := NormalizeEmail(req.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, model.NewDatabaseError(err)
	}
	if existing != nil {
		return nil, nil, model.NewDuplicateEmailError()
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, nil, model.NewInternalError(err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
	}
	if req.Phone != nil && *req.Phone != "" {
		phone := *req.Phone
		user.Phone = &phone
	}
	if req.Birthday != nil && *req.Birthday != "" {
		birthday, err := validation.ParseDate(*req.Birthday)
		if err != nil {
			return nil, nil, model.NewBadRequestError("생일 형식이 올바르지 않습니다", nil)
		}
		user.Birthday = &birthday
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 確認後に同じメールアドレスで登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewDuplicateEmailError()
		}
		return nil, nil, model.NewDatabaseError(err)
	}

	slog.Info("user registered", slog.Int64("user_id", user.ID))

	pair, err := s.IssueTokens(user, IssueRegister)
	if err != nil {
		return nil, nil, err
	}
	return user.WithoutPassword(), pair, nil
}

// AuthenticatePassword はメールアドレスとパスワードで認証する。
// 存在しないメールアドレスと誤ったパスワードは同じエラーを返す。
func (s *Service) AuthenticatePassword(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.authenticatePassword(ctx, email, password)
	s.record(StrategyPassword, err)
	return user, err
}

func (s *Service) authenticatePassword(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		compareDummy(password)
		return nil, model.NewUnauthorizedError(reasonInvalidCredentials)
	}

	if !user.HasPassword() {
		count, err := s.socialRepo.CountByUserID(ctx, user.ID)
		if err != nil {
			return nil, model.NewDatabaseError(err)
		}
		if count == 0 {
			// パスワードもソーシャル紐付けもないアカウントはデータ不整合
			slog.Error("account has neither password nor social login",
				slog.Int64("user_id", user.ID),
			)
			return nil, model.NewUnauthorizedError(reasonInvalidCredentials)
		}
		if s.config.RevealSocialOnly {
			return nil, model.NewUnauthorizedError(reasonSocialOnly)
		}
		return nil, model.NewUnauthorizedError(reasonInvalidCredentials)
	}

	ok, err := ComparePassword(password, user.PasswordHash)
	if err != nil {
		slog.Error("stored password hash is malformed",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnauthorizedError(reasonInvalidCredentials)
	}
	if !ok {
		return nil, model.NewUnauthorizedError(reasonInvalidCredentials)
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLoginAt(ctx, user.ID, now); err != nil {
		return nil, model.NewDatabaseError(err)
	}
	user.LastLoginAt = &now

	return user.WithoutPassword(), nil
}

// AuthenticateBearer はアクセストークンを検証し、対応するユーザーを返す。
// ユーザーが削除されている場合はN002を返す。
func (s *Service) AuthenticateBearer(ctx context.Context, token string) (*model.User, error) {
	user, err := s.authenticateBearer(ctx, token)
	s.record(StrategyBearer, err)
	return user, err
}

func (s *Service) authenticateBearer(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.WithoutPassword(), nil
}

// AuthenticateOAuth は認可コードをプロフィールに交換し、ユーザーに解決する。
func (s *Service) AuthenticateOAuth(ctx context.Context, provider OAuthProvider, code string) (*model.User, error) {
	user, err := s.authenticateOAuth(ctx, provider, code)
	s.record(StrategyOAuth+"_"+string(provider.Name()), err)
	return user, err
}

func (s *Service) authenticateOAuth(ctx context.Context, provider OAuthProvider, code string) (*model.User, error) {
	if code == "" {
		return nil, model.NewUnauthorizedError(reasonOAuthFailed)
	}

	profile, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed",
			slog.String("provider", string(provider.Name())),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnauthorizedError(reasonOAuthFailed)
	}

	return s.resolver.Resolve(ctx, profile)
}

// Refresh はリフレッシュトークンを検証し、新しいトークンペアを発行する。
// リフレッシュトークンのローテーションや失効管理は行わない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	s.record(StrategyRefresh, err)
	return pair, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, model.NewUnauthorizedError(reasonRefreshRequired)
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError(reasonInvalidUser)
	}

	return s.IssueTokens(user, IssueRefresh)
}

// IssueTokens はユーザーのトークンペアを発行する。
func (s *Service) IssueTokens(user *model.User, reason string) (*TokenPair, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	s.metrics.RecordTokensIssued(reason)
	return pair, nil
}

// record は認証試行の結果をメトリクスに記録する。
func (s *Service) record(strategy string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = model.ErrCodeInternal
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			outcome = apiErr.Code
		}
	}
	s.metrics.RecordAuthAttempt(strategy, outcome)
}
