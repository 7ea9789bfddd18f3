package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/moamoa/internal/model"
)

// TokenConfig はトークン発行の設定。
// アクセストークンとリフレッシュトークンは別の秘密鍵で署名する。
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenPair はクライアントに返すトークンの組。
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims はトークンに含めるクレーム。
type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256によるトークンの発行と検証を行う。
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(config TokenConfig) *TokenIssuer {
	return &TokenIssuer{config: config, now: time.Now}
}

// GenerateTokenPair はユーザーのアクセストークンとリフレッシュトークンを発行する。
func (i *TokenIssuer) GenerateTokenPair(userID int64, email string) (*TokenPair, error) {
	access, err := i.sign(userID, email, i.config.AccessSecret, i.config.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := i.sign(userID, email, i.config.RefreshSecret, i.config.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *TokenIssuer) sign(userID int64, email, secret string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyAccessToken はアクセストークンを検証する。
// 署名・形式の不正はA001、期限切れはA002を返す。
func (i *TokenIssuer) VerifyAccessToken(token string) (*Claims, error) {
	return i.verify(token, i.config.AccessSecret,
		"유효하지 않은 토큰입니다", "Access token이 만료되었습니다")
}

// VerifyRefreshToken はリフレッシュトークンを検証する。
func (i *TokenIssuer) VerifyRefreshToken(token string) (*Claims, error) {
	return i.verify(token, i.config.RefreshSecret,
		"유효하지 않은 refresh token입니다", "Refresh token이 만료되었습니다")
}

func (i *TokenIssuer) verify(token, secret, invalidReason, expiredReason string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		// v5は署名検証後にクレームを検証するため、期限切れは署名が正しい場合のみ返る
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.NewTokenExpiredError(expiredReason)
		}
		return nil, model.NewUnauthorizedError(invalidReason)
	}
	if !parsed.Valid || claims.UserID <= 0 {
		return nil, model.NewUnauthorizedError(invalidReason)
	}
	return claims, nil
}
