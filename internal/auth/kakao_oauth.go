package auth

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/oauth2/kakao"

	"github.com/hitoshi/moamoa/internal/model"
)

const defaultKakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

// KakaoOAuthProvider はKakaoログインによる認証を提供する。
type KakaoOAuthProvider struct {
	client *oauthClient
}

// NewKakaoOAuthProvider はKakaoOAuthProviderを生成する。
// Kakaoはclient_secretを任意とする。
func NewKakaoOAuthProvider(cfg OAuthConfig) *KakaoOAuthProvider {
	return &KakaoOAuthProvider{
		client: newOAuthClient(cfg, kakao.Endpoint, []string{"profile_nickname", "profile_image", "account_email"}, defaultKakaoUserInfoURL),
	}
}

// Name はプロバイダー種別を返す。
func (p *KakaoOAuthProvider) Name() model.Provider {
	return model.ProviderKakao
}

// GetLoginURL はKakaoの認証URLを生成する。
func (p *KakaoOAuthProvider) GetLoginURL(state string) string {
	return p.client.loginURL(state)
}

// kakaoUserInfo は/v2/user/meのレスポンスのうち使用する部分。
type kakaoUserInfo struct {
	ID         int64 `json:"id"`
	Properties struct {
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"properties"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Profile         struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// ExchangeCode は認可コードを交換し、Kakaoのプロフィールを取得する。
// メールアドレスは利用者の同意がない場合は空になる。
func (p *KakaoOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	var info kakaoUserInfo
	if err := p.client.fetchUserInfo(ctx, code, &info); err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("empty id in user info response")
	}

	name := info.KakaoAccount.Profile.Nickname
	if name == "" {
		name = info.Properties.Nickname
	}
	photo := info.KakaoAccount.Profile.ProfileImageURL
	if photo == "" {
		photo = info.Properties.ProfileImage
	}

	email := info.KakaoAccount.Email
	return &OAuthProfile{
		Provider:      model.ProviderKakao,
		ExternalID:    strconv.FormatInt(info.ID, 10),
		Email:         email,
		EmailVerified: email != "" && info.KakaoAccount.IsEmailVerified,
		Name:          name,
		Photo:         photo,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*KakaoOAuthProvider)(nil)
