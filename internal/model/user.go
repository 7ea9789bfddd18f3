// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはソーシャルログイン専用アカウントでは空になる。
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	Phone         *string    `json:"phone"`
	Birthday      *time.Time `json:"birthday"`
	Photo         *string    `json:"photo"`
	EmailVerified bool       `json:"emailVerified"`
	Cash          int64      `json:"cash"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt"`
}

// HasPassword はパスワードログインが可能なアカウントかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// WithoutPassword はパスワードハッシュを除去したコピーを返す。
func (u *User) WithoutPassword() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderGoogle はGoogle OAuth。
	ProviderGoogle Provider = "google"
	// ProviderKakao はKakao OAuth。
	ProviderKakao Provider = "kakao"
)

// SocialLogin は外部IdPとの紐付け情報を表す。
// (Provider, ExternalID) はグローバルに一意。
type SocialLogin struct {
	ID         int64
	UserID     int64
	Provider   Provider
	ExternalID string
	CreatedAt  time.Time
}

// FriendStatus は友達申請の状態を表す。
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "PENDING"
	FriendStatusAccepted FriendStatus = "ACCEPTED"
	FriendStatusRejected FriendStatus = "REJECTED"
)

// RelationCounts はユーザーに紐づくリソース数を表す。
type RelationCounts struct {
	SentFriendRequests     int `json:"sentFriendRequests"`
	ReceivedFriendRequests int `json:"receivedFriendRequests"`
	Wishlists              int `json:"wishlists"`
	BirthdayEvents         int `json:"birthdayEvents"`
}

// UserProfile は/auth/meで返すプロフィール。
type UserProfile struct {
	*User
	Count RelationCounts `json:"_count"`
}

// PublicProfile は友達に公開するプロフィール。
type PublicProfile struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Photo    *string    `json:"photo"`
	Birthday *time.Time `json:"birthday"`
}

// ProfileUpdate はプロフィール更新の入力。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name     *string
	Phone    *string
	Birthday *time.Time
	Photo    *string
}
