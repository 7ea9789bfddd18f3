package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/moamoa/internal/model"
)

// PostgresFriendRepo はPostgreSQLを使用した友達関係リポジトリ。
type PostgresFriendRepo struct {
	db *sql.DB
}

// NewPostgresFriendRepo はPostgresFriendRepoを生成する。
func NewPostgresFriendRepo(db *sql.DB) *PostgresFriendRepo {
	return &PostgresFriendRepo{db: db}
}

// ExistsAccepted はa, b間に承認済みの友達関係があるかを返す。
func (r *PostgresFriendRepo) ExistsAccepted(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM friends
			WHERE status = $3
			  AND ((requester_id = $1 AND receiver_id = $2)
			    OR (requester_id = $2 AND receiver_id = $1))
		)`,
		a, b, string(model.FriendStatusAccepted),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ FriendRepository = (*PostgresFriendRepo)(nil)
