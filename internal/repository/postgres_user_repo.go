package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/moamoa/internal/model"
)

const userColumns = `id, email, password_hash, name, phone, birthday, photo,
	email_verified, cash, created_at, last_login_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser はusersの1行をmodel.Userに変換する。
func scanUser(row rowScanner) (*model.User, error) {
	var (
		u            model.User
		passwordHash sql.NullString
		phone        sql.NullString
		birthday     sql.NullTime
		photo        sql.NullString
		lastLoginAt  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &passwordHash, &u.Name, &phone, &birthday, &photo,
		&u.EmailVerified, &u.Cash, &u.CreatedAt, &lastLoginAt)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = passwordHash.String
	if phone.Valid {
		u.Phone = &phone.String
	}
	if birthday.Valid {
		u.Birthday = &birthday.Time
	}
	if photo.Valid {
		u.Photo = &photo.String
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return &u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertUser(ctx context.Context, q rowQuerier, user *model.User) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, name, phone, birthday, photo, email_verified, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, cash`,
		user.Email, nullString(user.PasswordHash), user.Name, user.Phone, user.Birthday, user.Photo,
		user.EmailVerified, user.LastLoginAt,
	).Scan(&user.ID, &user.CreatedAt, &user.Cash)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	return insertUser(ctx, r.db, user)
}

// CreateWithSocialLogin はユーザーとsocial_loginsレコードを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithSocialLogin(ctx context.Context, user *model.User, socialLogin *model.SocialLogin) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}

	socialLogin.UserID = user.ID
	if err := insertSocialLogin(ctx, tx, socialLogin); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateLastLoginAt は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLoginAt(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdateProfile はnilでないフィールドのみ更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
			name = COALESCE($2, name),
			phone = COALESCE($3, phone),
			birthday = COALESCE($4, birthday),
			photo = COALESCE($5, photo),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, update.Name, update.Phone, update.Birthday, update.Photo,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// CountRelations は関連リソースの件数をまとめて取得する。
func (r *PostgresUserRepo) CountRelations(ctx context.Context, id int64) (*model.RelationCounts, error) {
	var c model.RelationCounts
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM friends WHERE requester_id = $1),
			(SELECT COUNT(*) FROM friends WHERE receiver_id = $1),
			(SELECT COUNT(*) FROM wishlists WHERE user_id = $1),
			(SELECT COUNT(*) FROM birthday_events WHERE owner_id = $1)`,
		id,
	).Scan(&c.SentFriendRequests, &c.ReceivedFriendRequests, &c.Wishlists, &c.BirthdayEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to count relations: %w", err)
	}
	return &c, nil
}

// nullString は空文字をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
