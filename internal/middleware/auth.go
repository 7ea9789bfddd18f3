package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
	"github.com/hitoshi/moamoa/internal/validation"
)

// OAuthStateCookie はOAuthのstateを保持するCookie名。
const OAuthStateCookie = "oauth_state"

// maxBodyBytes はJSONボディの読み込み上限。
const maxBodyBytes = 1 << 20

const (
	reasonAuthRequired   = "인증이 필요합니다"
	reasonNoResourceID   = "리소스 접근 권한이 없습니다"
	reasonNotOwner       = "자신의 리소스만 접근할 수 있습니다"
	reasonNoTargetUserID = "대상 사용자 ID가 필요합니다"
	reasonFriendsOnly    = "친구만 접근할 수 있습니다"
	reasonInvalidState   = "유효하지 않은 로그인 요청입니다"
	reasonOAuthFailed    = "소셜 로그인에 실패했습니다"
	reasonMalformedBody  = "요청 본문이 올바른 JSON이 아닙니다"
)

// StrategyKind は認証方式の種別。
type StrategyKind int

const (
	// KindPassword はメールアドレスとパスワードによる認証。
	KindPassword StrategyKind = iota
	// KindBearer はAuthorizationヘッダーのアクセストークンによる必須認証。
	KindBearer
	// KindOptionalBearer はトークンがあれば検証し、なければ匿名で通す。
	KindOptionalBearer
	// KindOAuth は外部IdPのコールバックによる認証。
	KindOAuth
)

// Strategy は認証方式。ProviderはKindOAuthの場合のみ使う。
type Strategy struct {
	Kind     StrategyKind
	Provider model.Provider
}

// Password はパスワード認証の戦略を返す。
func Password() Strategy { return Strategy{Kind: KindPassword} }

// Bearer は必須のBearer認証の戦略を返す。
func Bearer() Strategy { return Strategy{Kind: KindBearer} }

// OptionalBearer は任意のBearer認証の戦略を返す。
func OptionalBearer() Strategy { return Strategy{Kind: KindOptionalBearer} }

// OAuth は指定プロバイダーのOAuthコールバック認証の戦略を返す。
func OAuth(provider model.Provider) Strategy {
	return Strategy{Kind: KindOAuth, Provider: provider}
}

// Authenticator は各戦略の検証処理。auth.Serviceが実装する。
type Authenticator interface {
	AuthenticatePassword(ctx context.Context, email, password string) (*model.User, error)
	AuthenticateBearer(ctx context.Context, token string) (*model.User, error)
	AuthenticateOAuth(ctx context.Context, provider auth.OAuthProvider, code string) (*model.User, error)
}

// Gateway は認証と認可のミドルウェアを組み立てる。
type Gateway struct {
	authenticator Authenticator
	providers     map[model.Provider]auth.OAuthProvider
	friends       repository.FriendRepository
	validator     *validation.Validator
	secureCookie  bool
}

// GatewayConfig はGatewayの依存関係。
type GatewayConfig struct {
	Authenticator Authenticator
	Providers     []auth.OAuthProvider
	Friends       repository.FriendRepository
	Validator     *validation.Validator
	SecureCookie  bool
}

// NewGateway はGatewayを生成する。
func NewGateway(cfg GatewayConfig) *Gateway {
	providers := make(map[model.Provider]auth.OAuthProvider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name()] = p
	}
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	return &Gateway{
		authenticator: cfg.Authenticator,
		providers:     providers,
		friends:       cfg.Friends,
		validator:     v,
		secureCookie:  cfg.SecureCookie,
	}
}

// Provider は登録済みのOAuthプロバイダーを返す。
func (g *Gateway) Provider(name model.Provider) (auth.OAuthProvider, bool) {
	p, ok := g.providers[name]
	return p, ok
}

// Authenticate は戦略に対応するミドルウェアを返す。
// 成功したリクエストのコンテキストには認証済みユーザーが入る。
func (g *Gateway) Authenticate(strategy Strategy) func(next http.Handler) http.Handler {
	switch strategy.Kind {
	case KindPassword:
		return g.password
	case KindBearer:
		return g.bearer(true)
	case KindOptionalBearer:
		return g.bearer(false)
	case KindOAuth:
		provider, ok := g.providers[strategy.Provider]
		if !ok {
			return reject(model.NewNotFoundError(""))
		}
		return g.oauth(provider)
	default:
		panic(fmt.Sprintf("middleware: unknown strategy kind %d", strategy.Kind))
	}
}

// reject は常にerrを返すミドルウェア。
func reject(err error) func(next http.Handler) http.Handler {
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, r, err)
		})
	}
}

func (g *Gateway) password(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req model.LoginRequest
		if err := DecodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
		if err := g.validator.Struct(req); err != nil {
			WriteError(w, r, err)
			return
		}

		user, err := g.authenticator.AuthenticatePassword(r.Context(), req.Email, req.Password)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (g *Gateway) bearer(required bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				if required {
					WriteError(w, r, model.NewUnauthorizedError(reasonAuthRequired))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := g.authenticator.AuthenticateBearer(r.Context(), token)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
// ヘッダーがない場合とBearer形式でない場合はfalseを返す。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (g *Gateway) oauth(provider auth.OAuthProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(OAuthStateCookie)
			// stateは1回限り
			ClearOAuthStateCookie(w, g.secureCookie)

			state := r.URL.Query().Get("state")
			if err != nil || cookie.Value == "" || state == "" ||
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
				WriteError(w, r, model.NewUnauthorizedError(reasonInvalidState))
				return
			}

			if idpErr := r.URL.Query().Get("error"); idpErr != "" {
				slog.Warn("oauth provider returned error",
					slog.String("provider", string(provider.Name())),
					slog.String("error", idpErr),
				)
				WriteError(w, r, model.NewUnauthorizedError(reasonOAuthFailed))
				return
			}

			user, err := g.authenticator.AuthenticateOAuth(r.Context(), provider, r.URL.Query().Get("code"))
			if err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// SetOAuthStateCookie はstateを短命のHttpOnly Cookieに保存する。
func SetOAuthStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearOAuthStateCookie はstateのCookieを削除する。
func ClearOAuthStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireOwnership は対象ユーザーIDが認証済みユーザーと一致する場合のみ通す。
// IDはパスパラメータ、クエリ、JSONボディの順に探し、文字列として比較する。
// Authenticateの後に配置すること。
func (g *Gateway) RequireOwnership(field string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteError(w, r, model.NewUnauthorizedError(reasonAuthRequired))
				return
			}

			target := chi.URLParam(r, field)
			if target == "" {
				target = r.URL.Query().Get(field)
			}
			if target == "" {
				v, err := bodyField(r, field)
				if err != nil {
					WriteError(w, r, err)
					return
				}
				target = v
			}

			if target == "" {
				WriteError(w, r, model.NewForbiddenError(reasonNoResourceID))
				return
			}
			if target != strconv.FormatInt(user.ID, 10) {
				WriteError(w, r, model.NewForbiddenError(reasonNotOwner))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFriendship は本人または承認済みの友達のみ通す。
// 対象IDはパスパラメータ、JSONボディの順に探す。
func (g *Gateway) RequireFriendship(field string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteError(w, r, model.NewUnauthorizedError(reasonAuthRequired))
				return
			}

			target := chi.URLParam(r, field)
			if target == "" {
				v, err := bodyField(r, field)
				if err != nil {
					WriteError(w, r, err)
					return
				}
				target = v
			}
			if target == "" {
				WriteError(w, r, model.NewForbiddenError(reasonNoTargetUserID))
				return
			}
			if target == strconv.FormatInt(user.ID, 10) {
				next.ServeHTTP(w, r)
				return
			}

			targetID, err := strconv.ParseInt(target, 10, 64)
			if err != nil || targetID <= 0 {
				WriteError(w, r, model.NewForbiddenError(reasonFriendsOnly))
				return
			}

			friends, err := g.friends.ExistsAccepted(r.Context(), user.ID, targetID)
			if err != nil {
				WriteError(w, r, model.NewDatabaseError(err))
				return
			}
			if !friends {
				WriteError(w, r, model.NewForbiddenError(reasonFriendsOnly))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyField はJSONボディのトップレベルのフィールドを文字列で返す。
// 読み込んだボディは後続のハンドラーのために復元する。
// ボディがない、JSONオブジェクトでない、またはフィールドがない場合は空文字を返す。
func bodyField(r *http.Request, field string) (string, *model.APIError) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	r.Body.Close()
	if err != nil {
		return "", model.NewBadRequestError(reasonMalformedBody, nil)
	}
	if len(raw) > maxBodyBytes {
		return "", model.NewBadRequestError("요청 본문이 너무 큽니다", nil)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return "", nil
	}

	switch v := obj[field].(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", nil
	}
}

// DecodeJSON はリクエストボディをdstにデコードする。失敗時はB001を返す。
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return model.NewBadRequestError(reasonMalformedBody, nil)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return model.NewBadRequestError(reasonMalformedBody, nil)
	}
	return nil
}
