// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// JWT
	JWTSecret           string        `env:"JWT_SECRET"`
	JWTRefreshSecret    string        `env:"JWT_REFRESH_SECRET"`
	JWTExpiresIn        time.Duration `env:"JWT_EXPIRES_IN" envDefault:"168h"`
	JWTRefreshExpiresIn time.Duration `env:"JWT_REFRESH_EXPIRES_IN" envDefault:"720h"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:3000/auth/google/callback"`
	KakaoClientID      string `env:"KAKAO_CLIENT_ID"`
	KakaoClientSecret  string `env:"KAKAO_CLIENT_SECRET"`
	KakaoRedirectURL   string `env:"KAKAO_REDIRECT_URL" envDefault:"http://localhost:3000/auth/kakao/callback"`

	// Auth
	AuthRevealSocialOnly bool `env:"AUTH_REVEAL_SOCIAL_ONLY" envDefault:"true"`
	RateLimitAuth        int  `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"3000"`
	ClientURL  string `env:"CLIENT_URL" envDefault:"http://localhost:3000"`

	// Cookie
	CookieSecure bool `env:"COOKIE_SECURE"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// Logging
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"14"`
}

// Load は.envファイル（存在する場合）と環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	if err := LoadDotenvIfPresent(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.JWTExpiresIn <= 0 || cfg.JWTRefreshExpiresIn <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.RateLimitAuth <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_AUTH must be positive: %d", cfg.RateLimitAuth)
	}

	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = cfg.ClientURL
	}
	if _, ok := os.LookupEnv("COOKIE_SECURE"); !ok {
		cfg.CookieSecure = strings.HasPrefix(cfg.ClientURL, "https://")
	}

	return cfg, nil
}

// GoogleEnabled はGoogle OAuthが設定されているかを返す。
// クライアントID・シークレット・リダイレクトURLが全て必要。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// KakaoEnabled はKakao OAuthが設定されているかを返す。
// Kakaoのクライアントシークレットは任意。
func (c *Config) KakaoEnabled() bool {
	return c.KakaoClientID != "" && c.KakaoRedirectURL != ""
}

// LoadDotenvIfPresent は指定された.envファイルを読み込む。存在しないファイルは無視する。
// 既に設定済みの環境変数は上書きしない。
func LoadDotenvIfPresent(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat dotenv file %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load dotenv file %s: %w", path, err)
		}
	}
	return nil
}
