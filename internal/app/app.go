// Package app は設定の読み込み、依存関係の組み立て、サブコマンドの実行を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/moamoa/internal/auth"
	"github.com/hitoshi/moamoa/internal/config"
	"github.com/hitoshi/moamoa/internal/database"
	"github.com/hitoshi/moamoa/internal/handler"
	"github.com/hitoshi/moamoa/internal/logger"
	"github.com/hitoshi/moamoa/internal/metrics"
	"github.com/hitoshi/moamoa/internal/middleware"
	"github.com/hitoshi/moamoa/internal/repository"
	"github.com/hitoshi/moamoa/internal/security"
	"github.com/hitoshi/moamoa/internal/user"
	"github.com/hitoshi/moamoa/internal/validation"
)

const (
	defaultPort     = "3000"
	shutdownTimeout = 30 * time.Second
	oauthTimeout    = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、設定に従ってグローバルロガーを差し替える。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// 返されるio.Closerはログファイルを閉じる。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// 1. 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってロガーを再構成する
	l, closer, err := logger.New(w, logger.Options{
		Format:     cfg.LogFormat,
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	slog.SetDefault(l)

	return cfg, closer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultPort
		}
		return runHealthcheck(port)
	}

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer closer.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("client_url", cfg.ClientURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係の組み立て
	router, cleanup := NewHandler(cfg, db, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	defer cleanup()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// NewHandler は設定とDB接続から全依存関係を組み立て、ルーターを返す。
// 返される関数はバックグラウンド処理を停止する。
func NewHandler(cfg *config.Config, db *sql.DB, reg prometheus.Registerer, gatherer prometheus.Gatherer) (http.Handler, func()) {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	socialRepo := repository.NewPostgresSocialLoginRepo(db)
	friendRepo := repository.NewPostgresFriendRepo(db)

	// 2. 共通コンポーネント
	collector := metrics.NewCollector(reg)
	sanitizer := security.NewProfileSanitizer()
	v := validation.New()

	// 3. 認証
	issuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTExpiresIn,
		RefreshTTL:    cfg.JWTRefreshExpiresIn,
	})
	resolver := auth.NewIdentityResolver(userRepo, socialRepo, sanitizer, collector)
	authService := auth.NewService(userRepo, socialRepo, issuer, resolver, collector, auth.ServiceConfig{
		RevealSocialOnly: cfg.AuthRevealSocialOnly,
	})
	providers := oauthProviders(cfg)

	gateway := middleware.NewGateway(middleware.GatewayConfig{
		Authenticator: authService,
		Providers:     providers,
		Friends:       friendRepo,
		Validator:     v,
		SecureCookie:  cfg.CookieSecure,
	})
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitAuth))

	// 4. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		AuthRateLimiter:   rateLimiter,
		Gateway:           gateway,
		Metrics:           collector,
		Validator:         v,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			ClientURL:    cfg.ClientURL,
			CookieSecure: cfg.CookieSecure,
		},
		Providers: providers,

		ProfileService: user.NewService(userRepo, sanitizer),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(gatherer),
	})

	return router, rateLimiter.Stop
}

// oauthProviders はクライアントIDが設定されたプロバイダーのみを返す。
func oauthProviders(cfg *config.Config) []auth.OAuthProvider {
	client := &http.Client{Timeout: oauthTimeout}

	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.OAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			HTTPClient:   client,
		}))
	}
	if cfg.KakaoEnabled() {
		providers = append(providers, auth.NewKakaoOAuthProvider(auth.OAuthConfig{
			ClientID:     cfg.KakaoClientID,
			ClientSecret: cfg.KakaoClientSecret,
			RedirectURL:  cfg.KakaoRedirectURL,
			HTTPClient:   client,
		}))
	}

	for _, p := range providers {
		slog.Info("oauth provider enabled", slog.String("provider", string(p.Name())))
	}
	return providers
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
