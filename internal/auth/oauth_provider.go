package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/hitoshi/moamoa/internal/model"
)

// maxUserInfoBytes はユーザー情報レスポンスの読み込み上限。
const maxUserInfoBytes = 1 << 20

// OAuthProfile は外部IdPから取得したプロフィール。
type OAuthProfile struct {
	Provider      model.Provider
	ExternalID    string
	Email         string // IdPが返さない場合は空
	EmailVerified bool
	Name          string
	Photo         string
}

// OAuthProvider は外部IdPとの認可コードフローを抽象化する。
type OAuthProvider interface {
	// Name はプロバイダー種別を返す。
	Name() model.Provider
	// GetLoginURL は認可画面へのURLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error)
}

// OAuthConfig はプロバイダー共通の設定。
// AuthURL, TokenURL, UserInfoURLはテスト用に上書きできる。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient はトークン交換とユーザー情報取得に使う。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// oauthClient はx/oauth2を使った認可コード交換とユーザー情報取得の共通処理。
type oauthClient struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func newOAuthClient(cfg OAuthConfig, endpoint oauth2.Endpoint, scopes []string, defaultUserInfoURL string) *oauthClient {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &oauthClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		httpClient:  httpClient,
	}
}

func (c *oauthClient) loginURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// fetchUserInfo は認可コードを交換し、ユーザー情報エンドポイントのJSONをdstにデコードする。
func (c *oauthClient) fetchUserInfo(ctx context.Context, code string, dst any) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := c.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse user info response: %w", err)
	}
	return nil
}
