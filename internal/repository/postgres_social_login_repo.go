package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/moamoa/internal/model"
)

// PostgresSocialLoginRepo はPostgreSQLを使用したsocial_loginsリポジトリ。
type PostgresSocialLoginRepo struct {
	db *sql.DB
}

// NewPostgresSocialLoginRepo はPostgresSocialLoginRepoを生成する。
func NewPostgresSocialLoginRepo(db *sql.DB) *PostgresSocialLoginRepo {
	return &PostgresSocialLoginRepo{db: db}
}

// FindByProviderAndExternalID はproviderとexternal_idで紐付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresSocialLoginRepo) FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error) {
	sl := &model.SocialLogin{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, external_id, created_at
		 FROM social_logins
		 WHERE provider = $1 AND external_id = $2`,
		string(provider), externalID,
	).Scan(&sl.ID, &sl.UserID, &sl.Provider, &sl.ExternalID, &sl.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find social login: %w", err)
	}
	return sl, nil
}

func insertSocialLogin(ctx context.Context, q rowQuerier, sl *model.SocialLogin) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO social_logins (user_id, provider, external_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		sl.UserID, string(sl.Provider), sl.ExternalID,
	).Scan(&sl.ID, &sl.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert social login: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert social login: %w", err)
	}
	return nil
}

// Create は既存ユーザーに紐付けを追加する。
func (r *PostgresSocialLoginRepo) Create(ctx context.Context, sl *model.SocialLogin) error {
	return insertSocialLogin(ctx, r.db, sl)
}

// CountByUserID はユーザーの紐付け件数を返す。
func (r *PostgresSocialLoginRepo) CountByUserID(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM social_logins WHERE user_id = $1`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count social logins: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SocialLoginRepository = (*PostgresSocialLoginRepo)(nil)
