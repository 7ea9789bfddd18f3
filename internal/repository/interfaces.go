// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/moamoa/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// emailは正規化済み（小文字・前後空白なし）であること。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// メールアドレスが重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithSocialLogin はユーザーとsocial_loginsレコードを同一トランザクションで作成する。
	// 一意制約違反の場合はErrDuplicateをラップして返し、どちらのレコードも残らない。
	CreateWithSocialLogin(ctx context.Context, user *model.User, socialLogin *model.SocialLogin) error

	// UpdateLastLoginAt は最終ログイン日時を更新する。
	UpdateLastLoginAt(ctx context.Context, id int64, at time.Time) error

	// UpdateProfile はプロフィールを部分更新し、更新後のユーザーを返す。
	// 対象が存在しない場合はnilを返す。
	UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) (*model.User, error)

	// CountRelations は友達申請・ウィッシュリスト・誕生日イベントの件数を返す。
	CountRelations(ctx context.Context, id int64) (*model.RelationCounts, error)
}

// SocialLoginRepository は外部IdP紐付け情報の永続化インターフェース。
type SocialLoginRepository interface {
	// FindByProviderAndExternalID はproviderとexternal_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.SocialLogin, error)

	// Create は既存ユーザーに紐付けを追加する。
	// (provider, external_id) が重複する場合はErrDuplicateをラップして返す。
	Create(ctx context.Context, socialLogin *model.SocialLogin) error

	// CountByUserID はユーザーの紐付け件数を返す。
	CountByUserID(ctx context.Context, userID int64) (int, error)
}

// FriendRepository は友達関係の参照インターフェース。
type FriendRepository interface {
	// ExistsAccepted はa, b間に承認済みの友達関係があるかを返す。
	// 申請者・受信者の向きは問わない。
	ExistsAccepted(ctx context.Context, a, b int64) (bool, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
